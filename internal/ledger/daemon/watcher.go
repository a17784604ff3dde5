package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates the switch file was created or replaced.
	OpCreate EventOp = iota
	// OpModify indicates the switch file was written in place.
	OpModify
	// OpDelete indicates the switch file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SwitchEvent reports a change of the runtime switch file.
type SwitchEvent struct {
	Path string
	Op   EventOp
	// Enabled is the switch value read right after the event.
	Enabled bool
}

// SwitchWatcher watches the runtime switch file for changes.
//
// It watches the parent directory, not the file, so editors that save by
// writing a temporary file and renaming it are still seen. Events are
// informational: the orchestrator re-reads the switch on every tick anyway.
type SwitchWatcher struct {
	watcher *fsnotify.Watcher
	sw      Switch
	path    string
	events  chan SwitchEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSwitchWatcher creates a watcher for the switch file at path.
// The watcher must be started with Start() before it will emit events.
func NewSwitchWatcher(path string, sw Switch) (*SwitchWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("switch path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve switch path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &SwitchWatcher{
		watcher: watcher,
		sw:      sw,
		path:    abs,
		events:  make(chan SwitchEvent, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the switch file's directory.
func (w *SwitchWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the Events and Errors channels.
// Stopping a watcher that was never started only releases fsnotify.
func (w *SwitchWatcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if !wasRunning {
		return w.watcher.Close()
	}

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of switch file events.
func (w *SwitchWatcher) Events() <-chan SwitchEvent { return w.events }

// Errors returns the channel of watcher errors.
func (w *SwitchWatcher) Errors() <-chan error { return w.errors }

// IsRunning returns true if the watcher is currently running.
func (w *SwitchWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SwitchWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, ok := w.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent keeps only events for the switch file itself.
func (w *SwitchWatcher) convertEvent(event fsnotify.Event) (SwitchEvent, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != w.path {
		return SwitchEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return SwitchEvent{}, false
	}

	enabled := true
	if w.sw != nil {
		enabled = w.sw.SyncEnabled()
	}
	return SwitchEvent{Path: w.path, Op: op, Enabled: enabled}, true
}
