// Package logging builds the component loggers of a site process.
//
// Every component gets a plain *log.Logger with a bracketed prefix
// ("[sync] ", "[daemon] ", "[api] ") so a single log file can be grepped by
// component. Output goes to stderr and, when a file is configured, to a
// size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared log output.
type Options struct {
	File       string // empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Quiet      bool // drop the stderr sink
}

// Sink is the shared destination of every component logger.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
}

// NewSink opens the log destination described by opts.
func NewSink(opts Options) (*Sink, error) {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	s := &Sink{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, s.file)
	}

	switch len(writers) {
	case 0:
		s.w = io.Discard
	case 1:
		s.w = writers[0]
	default:
		s.w = io.MultiWriter(writers...)
	}
	return s, nil
}

// Writer returns the combined destination, e.g. for gin's request log.
func (s *Sink) Writer() io.Writer { return s.w }

// New returns a logger for one component. component "sync" yields the
// prefix "[sync] ".
func (s *Sink) New(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Rotate forces a rotation of the file sink, if any.
func (s *Sink) Rotate() error {
	if s.file == nil {
		return nil
	}
	return s.file.Rotate()
}

// Close closes the file sink.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
