package dashboard

import (
	"log"
	"time"

	"github.com/procesa/pesaje/internal/ledger/daemon"
	ledgersync "github.com/procesa/pesaje/internal/ledger/sync"
)

// SyncData describes a pass event.
type SyncData struct {
	Trigger    string `json:"trigger"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"mensaje,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Processed  int    `json:"procesados,omitempty"`
	Failed     int    `json:"fallidos,omitempty"`
	Rows       int    `json:"registros,omitempty"`
	Day        string `json:"dia,omitempty"`
	DurationMS int64  `json:"duracion_ms,omitempty"`
}

// ConfigData describes a runtime switch change.
type ConfigData struct {
	SyncEnabled bool `json:"sync_enabled"`
}

// FieldData describes an edit made through the field gateway.
type FieldData struct {
	Table string `json:"tabla"`
	ID    string `json:"id"`
	Field string `json:"campo"`
	NewID string `json:"nuevo_id,omitempty"`
}

// Notifier turns orchestrator and gateway events into feed messages.
// It implements daemon.Observer.
type Notifier struct {
	hub    *Hub
	logger *log.Logger
}

var _ daemon.Observer = (*Notifier)(nil)

// NewNotifier creates a notifier publishing to hub.
func NewNotifier(hub *Hub, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{hub: hub, logger: logger}
}

// SyncStarted implements daemon.Observer.
func (n *Notifier) SyncStarted(trigger daemon.Trigger) {
	n.hub.Publish(MessageTypeSyncStarted, SyncData{Trigger: string(trigger)})
}

// SyncFinished implements daemon.Observer.
func (n *Notifier) SyncFinished(trigger daemon.Trigger, out ledgersync.Outcome, elapsed time.Duration) {
	data := SyncData{
		Trigger:    string(trigger),
		Status:     out.Status,
		Message:    out.Message,
		Processed:  out.Queue.Processed,
		Failed:     out.Queue.Failed + out.Queue.Blocked,
		Rows:       out.Snapshot.Rows,
		Day:        out.Snapshot.Day,
		DurationMS: elapsed.Milliseconds(),
	}

	typ := MessageTypeSyncComplete
	if !out.OK() {
		typ = MessageTypeSyncFailed
	}
	n.hub.Publish(typ, data)
}

// SyncSkipped implements daemon.Observer.
func (n *Notifier) SyncSkipped(trigger daemon.Trigger, reason string) {
	n.hub.Publish(MessageTypeSyncSkipped, SyncData{Trigger: string(trigger), Reason: reason})
}

// SwitchChanged implements daemon.Observer.
func (n *Notifier) SwitchChanged(enabled bool) {
	n.logger.Printf("Runtime switch: sync_enabled=%v", enabled)
	n.hub.Publish(MessageTypeConfigChanged, ConfigData{SyncEnabled: enabled})
}

// FieldUpdated reports a gateway edit. newID is set when the edit created
// the row under a different id.
func (n *Notifier) FieldUpdated(table, id, field, newID string) {
	data := FieldData{Table: table, ID: id, Field: field}
	if newID != id {
		data.NewID = newID
	}
	n.hub.Publish(MessageTypeFieldUpdated, data)
}
