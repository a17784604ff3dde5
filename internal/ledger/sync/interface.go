package sync

import (
	"context"
	"encoding/json"

	"github.com/procesa/pesaje/internal/ledger/schema"
)

// Remote is the remote authoritative backend. *Client implements it.
type Remote interface {
	PushSnapshot(ctx context.Context, snap *schema.Snapshot) (json.RawMessage, error)
	InsertRecord(ctx context.Context, rec *schema.ReceivingRecord) (int64, error)
	UpdateRecord(ctx context.Context, rec *schema.ReceivingRecord) error
	DeleteRecord(ctx context.Context, remoteID int64) error
}

// Syncer reconciles the local ledger with the remote backend.
//
// A pass never marks local state as synced unless the remote confirmed the
// exchange, so a failed pass leaves everything in place for the next one.
type Syncer interface {
	// RunPass drains the change queue and then pushes today's snapshot.
	//
	// The outcome is always returned, even on failure; Outcome.Err carries
	// the first error that made the pass fail.
	RunPass(ctx context.Context) Outcome

	// DrainQueue pushes pending receiving-record mutations in enqueue order.
	//
	// A failed entry blocks the later entries of the same record for this
	// pass; entries of other records keep going. The drain stops at the
	// first ErrUnreachable.
	DrainQueue(ctx context.Context) (QueueReport, error)

	// PushToday sends today's snapshot. An empty snapshot is not sent.
	PushToday(ctx context.Context) (SnapshotReport, error)
}

// Status values of an Outcome.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Outcome is the structured result of one pass, shaped for the manual
// trigger endpoint.
type Outcome struct {
	Status   string          `json:"status"`
	Message  string          `json:"mensaje"`
	Response json.RawMessage `json:"respuesta_backend,omitempty"`

	Queue    QueueReport    `json:"-"`
	Snapshot SnapshotReport `json:"-"`
	Err      error          `json:"-"`
}

// OK reports whether the pass succeeded.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// QueueReport counts what a queue drain did.
type QueueReport struct {
	Pending   int // entries found pending at the start
	Processed int // confirmed and marked processed
	Failed    int // attempted and failed
	Blocked   int // skipped behind an earlier failure of the same record
	Aborted   bool // stopped early; later entries were not attempted
}

// SnapshotReport describes a snapshot push.
type SnapshotReport struct {
	Day      string
	Counts   map[schema.Table]int
	Rows     int
	Sent     bool
	Response json.RawMessage
}
