// Package sitetime pins every timestamp and "today" boundary to the
// production site's time zone.
//
// The ledger groups rows by calendar day, so the zone must never come from
// the process environment. A Clock carries the zone explicitly and every
// query that needs "today" receives a Day computed from it.
package sitetime

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const (
	// DefaultZone is the IANA zone of the production site.
	DefaultZone = "America/Mexico_City"

	// StampLayout is the layout of every stored timestamp.
	StampLayout = "2006-01-02 15:04:05"

	// DayLayout is the layout of a Day.
	DayLayout = "2006-01-02"
)

// Day is a site-local calendar date formatted as YYYY-MM-DD.
type Day string

// String implements fmt.Stringer.
func (d Day) String() string { return string(d) }

// ParseDay validates an explicit YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day(t.Format(DayLayout)), nil
}

// AddDays returns the day n days after d.
func (d Day) AddDays(n int) Day {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return d
	}
	return Day(t.AddDate(0, 0, n).Format(DayLayout))
}

// ISOWeek returns the half-open day range [monday, next monday) of an ISO
// 8601 week.
func ISOWeek(year, week int) (from, to Day, err error) {
	if week < 1 || week > 53 {
		return "", "", fmt.Errorf("invalid ISO week %d", week)
	}
	// January 4th always falls in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return "", "", fmt.Errorf("year %d has no ISO week %d", year, week)
	}
	from = Day(monday.Format(DayLayout))
	return from, from.AddDays(7), nil
}

// Week returns the ISO year and week of day.
func (d Day) Week() (year, week int, err error) {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid day %q: %w", d, err)
	}
	year, week = t.ISOWeek()
	return year, week, nil
}

// Clock reports the current instant in the site zone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for the named IANA zone. An empty name selects
// DefaultZone.
func New(zone string) (*Clock, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Fixed returns a Clock that always reports t. Used by tests and replay tooling.
func Fixed(t time.Time) *Clock {
	return &Clock{loc: t.Location(), now: func() time.Time { return t }}
}

// WithNow returns a copy of c whose current instant comes from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

// Location returns the site zone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the site zone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// Today returns the current site-local calendar day.
func (c *Clock) Today() Day { return Day(c.Now().Format(DayLayout)) }

// Stamp returns the current site-local timestamp in StampLayout.
func (c *Clock) Stamp() string { return c.Now().Format(StampLayout) }

// DayOf returns the site-local day of t.
func (c *Clock) DayOf(t time.Time) Day { return Day(t.In(c.loc).Format(DayLayout)) }

// ResolveDay accepts either an explicit YYYY-MM-DD date or a natural
// language expression ("yesterday", "last friday") and returns the
// site-local day it refers to. An empty expression means today.
func (c *Clock) ResolveDay(expr string) (Day, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return c.Today(), nil
	}
	if d, err := ParseDay(expr); err == nil {
		return d, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(expr, c.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse day %q: %w", expr, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized day %q", expr)
	}
	return c.DayOf(r.Time), nil
}
