// Package loadtest drives concurrent writers against a ledger while sync
// snapshots are collected, the way a busy site shift does: several scales
// saving weighings and receiving records at once while the background pass
// reads today's rows.
//
// It reports per-operation latency and verifies afterwards that every write
// landed exactly once and that each receiving record owns one queue entry.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/procesa/pesaje/internal/ledger/db"
)

// Options sizes a run.
type Options struct {
	Scales            int // concurrent weighing writers, one load each
	WeighingsPerScale int
	Docks             int // concurrent receiving writers
	RecordsPerDock    int
	Collectors        int // concurrent snapshot readers
}

// DefaultOptions returns a shift-sized run.
func DefaultOptions() Options {
	return Options{
		Scales:            4,
		WeighingsPerScale: 25,
		Docks:             2,
		RecordsPerDock:    25,
		Collectors:        2,
	}
}

// LatencyStats captures latency percentiles of one operation.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Report is the outcome of a run.
type Report struct {
	Weighings LatencyStats
	Receiving LatencyStats
	Collects  LatencyStats
	Errors    []error
	Elapsed   time.Duration
}

// Run executes the load against ledger and verifies the result. The ledger
// should be empty for today, otherwise verification counts pre-existing
// rows.
func Run(ctx context.Context, ledger *db.DB, opts Options) (*Report, error) {
	if opts.Scales < 0 || opts.Docks < 0 || opts.Collectors < 0 {
		return nil, fmt.Errorf("worker counts cannot be negative")
	}

	var (
		mu        sync.Mutex
		weighings []time.Duration
		receiving []time.Duration
		collects  []time.Duration
		errs      []error
	)
	record := func(dst *[]time.Duration, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		*dst = append(*dst, d)
		if err != nil {
			errs = append(errs, err)
		}
	}

	start := time.Now()
	var writers sync.WaitGroup

	for s := 0; s < opts.Scales; s++ {
		writers.Add(1)
		go func(scale int) {
			defer writers.Done()
			carga := strconv.Itoa(scale + 1)
			for i := 0; i < opts.WeighingsPerScale && ctx.Err() == nil; i++ {
				t0 := time.Now()
				_, err := ledger.SaveWeighing(ctx, db.WeighingInput{
					LoadNumber:   carga,
					RequestedQty: 1e9,
					ContainerSKU: "TL-" + carga,
					SizeSKU:      "S1",
					Lot:          "A100",
					Tank:         carga,
					Tare:         10,
					GrossWeight:  float64(500 + i),
					TagWeight:    float64(490 + i),
				})
				if err != nil {
					err = fmt.Errorf("scale %d weighing %d failed: %w", scale, i, err)
				}
				record(&weighings, time.Since(t0), err)
			}
		}(s)
	}

	for d := 0; d < opts.Docks; d++ {
		writers.Add(1)
		go func(dock int) {
			defer writers.Done()
			for i := 0; i < opts.RecordsPerDock && ctx.Err() == nil; i++ {
				t0 := time.Now()
				_, err := ledger.SaveReceivingRecord(ctx, db.ReceivingInput{
					BasicLot:     fmt.Sprintf("LDT%03d", dock),
					ContainerSKU: "TR",
					Tank:         strconv.Itoa(dock),
					GrossWeight:  300,
					Tare:         20,
				})
				if err != nil {
					err = fmt.Errorf("dock %d record %d failed: %w", dock, i, err)
				}
				record(&receiving, time.Since(t0), err)
			}
		}(d)
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for c := 0; c < opts.Collectors; c++ {
		readers.Add(1)
		go func(collector int) {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				default:
				}
				t0 := time.Now()
				_, err := ledger.CollectToday(ctx)
				if err != nil && ctx.Err() == nil {
					err = fmt.Errorf("collector %d failed: %w", collector, err)
				} else {
					err = nil
				}
				record(&collects, time.Since(t0), err)
				time.Sleep(time.Millisecond)
			}
		}(c)
	}

	writers.Wait()
	close(done)
	readers.Wait()

	report := &Report{
		Weighings: computeLatencyStats(weighings),
		Receiving: computeLatencyStats(receiving),
		Collects:  computeLatencyStats(collects),
		Errors:    errs,
		Elapsed:   time.Since(start),
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(errs) > 0 {
		return report, fmt.Errorf("%d operations failed, first: %w", len(errs), errs[0])
	}
	if err := verify(ctx, ledger, opts); err != nil {
		return report, err
	}
	return report, nil
}

// verify checks that every write is visible exactly once.
func verify(ctx context.Context, ledger *db.DB, opts Options) error {
	snap, err := ledger.CollectToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect final snapshot: %w", err)
	}
	if want := opts.Scales * opts.WeighingsPerScale; len(snap.Details) != want {
		return fmt.Errorf("snapshot has %d detail lines, want %d", len(snap.Details), want)
	}
	if want := opts.Docks * opts.RecordsPerDock; len(snap.Receiving) != want {
		return fmt.Errorf("snapshot has %d receiving records, want %d", len(snap.Receiving), want)
	}
	if opts.Scales > 0 && opts.WeighingsPerScale > 0 {
		if len(snap.General) != 1 {
			return fmt.Errorf("snapshot has %d general documents, want 1", len(snap.General))
		}
		if len(snap.Loads) != opts.Scales {
			return fmt.Errorf("snapshot has %d loads, want %d", len(snap.Loads), opts.Scales)
		}
	}

	pending, err := ledger.PendingEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	owners := make(map[string]int, len(pending))
	for _, e := range pending {
		owners[e.RecordID]++
	}
	for _, r := range snap.Receiving {
		if owners[r.ID] != 1 {
			return fmt.Errorf("receiving record %s has %d queue entries, want 1", r.ID, owners[r.ID])
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}

// Print writes the latency table of s under name.
func (s LatencyStats) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Count:         %d\n", s.Count)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
