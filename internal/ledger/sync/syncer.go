package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *db.DB
	remote Remote
	logger *log.Logger
}

// New creates a new Syncer instance.
//
// The ledger must have its schema in place before passing it to this
// function. If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	ledger, err := db.Open("data/pesaje.db")
//	if err != nil {
//	    return err
//	}
//	client := sync.NewClient(sync.ClientConfig{SnapshotURL: url, Key: key})
//	syncer := sync.New(ledger, client, nil)
//	outcome := syncer.RunPass(ctx)
func New(ledger *db.DB, remote Remote, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     ledger,
		remote: remote,
		logger: logger,
	}
}

// RunPass implements Syncer.RunPass.
func (s *syncer) RunPass(ctx context.Context) Outcome {
	out := Outcome{Status: StatusOK}

	queue, err := s.DrainQueue(ctx)
	out.Queue = queue
	if err != nil {
		out.Status = StatusError
		out.Err = err
		out.Response = remoteBody(err)
		if queue.Aborted {
			out.Message = fmt.Sprintf("Error en la sincronización: %v", err)
			return out
		}
	}

	snap, err := s.PushToday(ctx)
	out.Snapshot = snap
	if err != nil {
		out.Status = StatusError
		out.Err = err
		out.Response = remoteBody(err)
		out.Message = fmt.Sprintf("Error al enviar los datos del día: %v", err)
		return out
	}
	if snap.Response != nil {
		out.Response = snap.Response
	}

	switch {
	case out.Status == StatusError:
		out.Message = fmt.Sprintf("Sincronización parcial: %d pendientes fallaron", queue.Failed+queue.Blocked)
	case !snap.Sent:
		out.Message = "No hay datos para sincronizar"
	default:
		out.Message = fmt.Sprintf("Sincronización completada: %d registros del %s", snap.Rows, snap.Day)
	}
	return out
}

// DrainQueue implements Syncer.DrainQueue.
func (s *syncer) DrainQueue(ctx context.Context) (QueueReport, error) {
	var report QueueReport

	entries, err := s.db.PendingEntries(ctx)
	if err != nil {
		report.Aborted = true
		return report, fmt.Errorf("failed to read sync queue: %w", err)
	}
	report.Pending = len(entries)
	if len(entries) == 0 {
		return report, nil
	}

	s.logger.Printf("Draining %d queued changes", len(entries))

	blocked := make(map[string]bool)
	var firstErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}

		key := string(e.Table) + "/" + e.RecordID
		if blocked[key] {
			report.Blocked++
			continue
		}

		if err := s.pushEntry(ctx, e); err != nil {
			blocked[key] = true
			if errors.Is(err, ErrNoRemoteID) {
				// Waits for the INSERT that assigns the remote id.
				report.Blocked++
				s.logger.Printf("%s %s %s (entry %d) waits for a remote id", e.Operation, e.Table, e.RecordID, e.ID)
				continue
			}
			report.Failed++
			s.logger.Printf("WARNING: %s %s %s (entry %d) failed: %v", e.Operation, e.Table, e.RecordID, e.ID, err)
			if IsUnreachable(err) {
				report.Aborted = true
				return report, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := s.db.MarkProcessed(ctx, e.ID); err != nil {
			report.Aborted = true
			return report, fmt.Errorf("failed to mark entry %d processed: %w", e.ID, err)
		}
		report.Processed++
	}

	s.logger.Printf("Queue drained: processed=%d failed=%d blocked=%d",
		report.Processed, report.Failed, report.Blocked)
	return report, firstErr
}

// pushEntry sends one queued mutation. It returns nil only when the remote
// confirmed it and any remote id has been stored locally.
func (s *syncer) pushEntry(ctx context.Context, e schema.QueueEntry) error {
	if e.Table != schema.TableReceiving {
		return fmt.Errorf("%w: queued table %q is not synced per record", schema.ErrValidation, e.Table)
	}

	rec, err := s.db.GetReceivingRecord(ctx, e.RecordID)
	if err != nil {
		return err
	}

	switch e.Operation {
	case schema.OpInsert:
		if rec.RemoteID != nil && *rec.RemoteID > 0 {
			// Confirmed by an earlier pass that stopped before marking.
			return nil
		}
		remoteID, err := s.remote.InsertRecord(ctx, rec)
		if err != nil {
			return err
		}
		if err := s.db.SetRemoteID(ctx, rec.ID, remoteID); err != nil {
			return fmt.Errorf("failed to store remote id %d: %w", remoteID, err)
		}
		s.logger.Printf("Inserted %s as remote %d", rec.ID, remoteID)
		return nil

	case schema.OpUpdate:
		return s.remote.UpdateRecord(ctx, rec)

	case schema.OpDelete:
		if rec.RemoteID == nil {
			return fmt.Errorf("%w: %s", ErrNoRemoteID, rec.ID)
		}
		return s.remote.DeleteRecord(ctx, *rec.RemoteID)
	}
	return fmt.Errorf("%w: unknown operation %q", schema.ErrValidation, e.Operation)
}

// PushToday implements Syncer.PushToday.
func (s *syncer) PushToday(ctx context.Context) (SnapshotReport, error) {
	day := s.db.Today()
	report := SnapshotReport{Day: string(day)}

	snap, err := s.db.CollectDay(ctx, day)
	if err != nil {
		return report, fmt.Errorf("failed to collect snapshot: %w", err)
	}
	report.Counts = snap.Counts()
	report.Rows = snap.Len()

	if snap.Empty() {
		s.logger.Printf("Nothing to push for %s", day)
		return report, nil
	}

	resp, err := s.remote.PushSnapshot(ctx, snap)
	if err != nil {
		return report, err
	}
	report.Sent = true
	report.Response = resp

	s.logger.Printf("Pushed snapshot for %s: %d rows", day, report.Rows)
	return report, nil
}

// remoteBody returns the remote answer carried by err, if any.
func remoteBody(err error) json.RawMessage {
	var re *RemoteError
	if errors.As(err, &re) {
		return asJSON(re.Body)
	}
	return nil
}
