package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	ledgersync "github.com/procesa/pesaje/internal/ledger/sync"
)

// Trigger names what started a pass.
type Trigger string

const (
	TriggerTick   Trigger = "tick"
	TriggerManual Trigger = "manual"
)

// Switch is the runtime on/off switch. *config.RuntimeSwitch implements it.
type Switch interface {
	SyncEnabled() bool
}

// Observer receives orchestrator events. The live feed implements it.
// Methods are called synchronously from the orchestrator goroutine and must
// not block.
type Observer interface {
	SyncStarted(trigger Trigger)
	SyncFinished(trigger Trigger, out ledgersync.Outcome, elapsed time.Duration)
	SyncSkipped(trigger Trigger, reason string)
	SwitchChanged(enabled bool)
}

// Skip reasons reported to the Observer.
const (
	SkipBusy     = "pass already running"
	SkipDisabled = "sync_enabled is false"
)

// Config holds configuration for the orchestrator.
type Config struct {
	// Interval between scheduled ticks.
	Interval time.Duration

	// SwitchPath is the runtime switch file watched for change reports.
	// Empty disables watching; the switch is still consulted every tick.
	SwitchPath string

	// Logger for orchestrator activity.
	Logger *log.Logger

	// Observer receives pass and switch events. May be nil.
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 10 * time.Minute,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// PassRecord describes the most recent completed pass.
type PassRecord struct {
	Trigger  Trigger
	Started  time.Time
	Elapsed  time.Duration
	Outcome  ledgersync.Outcome
	Panicked bool
}

// Orchestrator runs sync passes on a fixed interval and on demand.
//
// A single mutex guards every pass. A scheduled tick that finds it held is
// skipped, not queued. A manual trigger waits for it. Passes therefore
// never overlap, whichever way they were started.
type Orchestrator struct {
	syncer ledgersync.Syncer
	sw     Switch
	config *Config

	passMu sync.Mutex

	lastMu sync.RWMutex
	last   *PassRecord

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	watcher *SwitchWatcher
}

// New creates an orchestrator with default configuration.
func New(syncer ledgersync.Syncer, sw Switch) (*Orchestrator, error) {
	return NewWithConfig(syncer, sw, DefaultConfig())
}

// NewWithConfig creates an orchestrator with custom configuration.
func NewWithConfig(syncer ledgersync.Syncer, sw Switch, config *Config) (*Orchestrator, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	return &Orchestrator{
		syncer: syncer,
		sw:     sw,
		config: config,
	}, nil
}

// Start launches the scheduling loop and, when configured, the switch
// watcher. It returns immediately; call Stop to shut down.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	if o.running {
		return fmt.Errorf("orchestrator already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)

	if o.config.SwitchPath != "" {
		w, err := NewSwitchWatcher(o.config.SwitchPath, o.sw)
		if err != nil {
			cancel()
			return err
		}
		if err := w.Start(); err != nil {
			_ = w.Stop()
			// The switch still works without the watcher.
			o.config.Logger.Printf("Warning: not watching %s: %v", o.config.SwitchPath, err)
		} else {
			o.watcher = w
			o.wg.Add(1)
			go o.watchSwitch(loopCtx, w)
		}
	}

	o.cancel = cancel
	o.running = true

	o.wg.Add(1)
	go o.loop(loopCtx)

	o.config.Logger.Printf("Sync orchestrator started (interval %s)", o.config.Interval)
	return nil
}

// Run starts the orchestrator and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	o.config.Logger.Println("Shutdown signal received")
	return o.Stop()
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (o *Orchestrator) Stop() error {
	o.stateMu.Lock()
	if !o.running {
		o.stateMu.Unlock()
		return nil
	}
	o.running = false
	cancel := o.cancel
	w := o.watcher
	o.watcher = nil
	o.stateMu.Unlock()

	o.config.Logger.Println("Stopping sync orchestrator")
	cancel()

	var err error
	if w != nil {
		err = w.Stop()
	}
	o.wg.Wait()

	o.config.Logger.Println("Sync orchestrator stopped")
	return err
}

// IsRunning reports whether the scheduling loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.running
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick runs one scheduled pass. It returns false without running when the
// switch is off or another pass holds the lock.
func (o *Orchestrator) Tick(ctx context.Context) (ledgersync.Outcome, bool) {
	if o.sw != nil && !o.sw.SyncEnabled() {
		o.config.Logger.Println("Sync disabled by runtime switch, skipping tick")
		o.notifySkipped(TriggerTick, SkipDisabled)
		return ledgersync.Outcome{}, false
	}

	if !o.passMu.TryLock() {
		o.config.Logger.Println("Previous pass still running, skipping tick")
		o.notifySkipped(TriggerTick, SkipBusy)
		return ledgersync.Outcome{}, false
	}
	defer o.passMu.Unlock()

	return o.runPass(ctx, TriggerTick), true
}

// Trigger runs one pass now, waiting for any in-flight pass first. It runs
// regardless of the runtime switch.
func (o *Orchestrator) Trigger(ctx context.Context) ledgersync.Outcome {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	return o.runPass(ctx, TriggerManual)
}

// runPass executes one pass. The caller holds passMu.
func (o *Orchestrator) runPass(ctx context.Context, trigger Trigger) (out ledgersync.Outcome) {
	start := time.Now()
	rec := &PassRecord{Trigger: trigger, Started: start}

	if obs := o.config.Observer; obs != nil {
		obs.SyncStarted(trigger)
	}
	o.config.Logger.Printf("Starting %s sync pass", trigger)

	defer func() {
		if r := recover(); r != nil {
			o.config.Logger.Printf("ERROR: sync pass panicked: %v", r)
			out = ledgersync.Outcome{
				Status:  ledgersync.StatusError,
				Message: fmt.Sprintf("Error en la sincronización: %v", r),
				Err:     fmt.Errorf("sync pass panicked: %v", r),
			}
			rec.Panicked = true
		}

		rec.Elapsed = time.Since(start)
		rec.Outcome = out
		o.lastMu.Lock()
		o.last = rec
		o.lastMu.Unlock()

		if out.OK() {
			o.config.Logger.Printf("Sync pass finished in %s: %s", rec.Elapsed.Round(time.Millisecond), out.Message)
		} else {
			o.config.Logger.Printf("WARNING: sync pass failed in %s: %s", rec.Elapsed.Round(time.Millisecond), out.Message)
		}
		if obs := o.config.Observer; obs != nil {
			obs.SyncFinished(trigger, out, rec.Elapsed)
		}
	}()

	return o.syncer.RunPass(ctx)
}

// LastPass returns the most recent completed pass, or nil.
func (o *Orchestrator) LastPass() *PassRecord {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.last == nil {
		return nil
	}
	rec := *o.last
	return &rec
}

func (o *Orchestrator) notifySkipped(trigger Trigger, reason string) {
	if obs := o.config.Observer; obs != nil {
		obs.SyncSkipped(trigger, reason)
	}
}

// watchSwitch reports switch changes until the watcher stops.
func (o *Orchestrator) watchSwitch(ctx context.Context, w *SwitchWatcher) {
	defer o.wg.Done()

	last := o.sw == nil || o.sw.SyncEnabled()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Enabled == last {
				continue
			}
			last = ev.Enabled
			o.config.Logger.Printf("Runtime switch changed (%s): sync_enabled=%v", ev.Op, ev.Enabled)
			if obs := o.config.Observer; obs != nil {
				obs.SwitchChanged(ev.Enabled)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			o.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
