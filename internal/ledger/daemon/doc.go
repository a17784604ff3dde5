// Package daemon schedules sync passes for a site process.
//
// # Architecture
//
//   - Orchestrator: one mutex, a periodic tick and a manual trigger. Both
//     entry points funnel into the same guarded pass.
//   - SwitchWatcher: fsnotify watch on the runtime switch file, reported to
//     the log and the live feed.
//
// # Scheduling
//
// Every Interval the orchestrator reads the runtime switch from disk. When
// sync is disabled the tick does nothing. Otherwise it tries the pass lock;
// if a pass is already running (a slow remote, or a manual trigger) the tick
// is dropped, not queued. The manual trigger blocks on the same lock and
// ignores the switch:
//
//	tick ──► switch off? ──► skip
//	     └─► TryLock fails? ──► skip
//	     └─► RunPass ──► Unlock
//
//	Trigger ──► Lock (waits) ──► RunPass ──► Unlock
//
// A pass that fails or panics is logged and reported to the Observer; the
// loop keeps running.
//
// # Usage
//
//	orch, err := daemon.NewWithConfig(syncer, config.NewRuntimeSwitch(path), &daemon.Config{
//	    Interval:   10 * time.Minute,
//	    SwitchPath: path,
//	    Logger:     sink.New("daemon"),
//	    Observer:   notifier,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := orch.Start(ctx); err != nil {
//	    return err
//	}
//	defer orch.Stop()
//
//	outcome := orch.Trigger(ctx) // manual pass
package daemon
