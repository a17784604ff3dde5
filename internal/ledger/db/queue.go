package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/procesa/pesaje/internal/ledger/schema"
)

// Enqueue appends a pending mutation for a receiving record and returns the
// entry id. Entries are never deleted.
func (db *DB) Enqueue(ctx context.Context, table schema.Table, recordID string, op schema.Operation) (int64, error) {
	return db.enqueue(ctx, db.conn, table, recordID, op)
}

func (db *DB) enqueue(ctx context.Context, q querier, table schema.Table, recordID string, op schema.Operation) (int64, error) {
	if !op.Valid() {
		return 0, fmt.Errorf("%w: unknown operation %q", schema.ErrValidation, op)
	}
	if recordID == "" {
		return 0, fmt.Errorf("%w: record id is required", schema.ErrValidation)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO cola_sincronizacion (tabla, id_registro, tipo_operacion, procesado, fecha_creacion)
		VALUES (?, ?, ?, 0, ?)
	`, string(table), recordID, string(op), db.clock.Stamp())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s %s: %w", op, table, recordID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue entry id: %w", err)
	}
	return id, nil
}

// PendingEntries returns every unprocessed entry in insertion order.
func (db *DB) PendingEntries(ctx context.Context) ([]schema.QueueEntry, error) {
	return db.queryEntries(ctx, "WHERE procesado = 0 ORDER BY id", 0)
}

// QueueEntries returns the most recent entries, processed or not, newest
// first. A limit of zero returns all of them.
func (db *DB) QueueEntries(ctx context.Context, limit int) ([]schema.QueueEntry, error) {
	return db.queryEntries(ctx, "ORDER BY id DESC", limit)
}

func (db *DB) queryEntries(ctx context.Context, clause string, limit int) ([]schema.QueueEntry, error) {
	query := `
		SELECT id, tabla, id_registro, tipo_operacion, procesado, fecha_creacion, fecha_procesado
		FROM cola_sincronizacion ` + clause
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	entries := []schema.QueueEntry{}
	for rows.Next() {
		var (
			e         schema.QueueEntry
			table, op string
			processed int
		)
		if err := rows.Scan(&e.ID, &table, &e.RecordID, &op, &processed, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Table = schema.Table(table)
		e.Operation = schema.Operation(op)
		e.Processed = processed == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkProcessed retires a queue entry. Marking an entry twice is a no-op
// and keeps the first processing timestamp.
func (db *DB) MarkProcessed(ctx context.Context, entryID int64) error {
	return db.setProcessed(ctx, entryID, true)
}

// UnmarkProcessed returns a processed entry to the pending set so the next
// pass replays it.
func (db *DB) UnmarkProcessed(ctx context.Context, entryID int64) error {
	return db.setProcessed(ctx, entryID, false)
}

func (db *DB) setProcessed(ctx context.Context, entryID int64, processed bool) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM cola_sincronizacion WHERE id = ?", entryID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up queue entry %d: %w", entryID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: queue entry %d", schema.ErrNotFound, entryID)
		}

		var err error
		if processed {
			_, err = tx.ExecContext(ctx, `
				UPDATE cola_sincronizacion SET procesado = 1, fecha_procesado = ?
				WHERE id = ? AND procesado = 0
			`, db.clock.Stamp(), entryID)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE cola_sincronizacion SET procesado = 0, fecha_procesado = NULL
				WHERE id = ?
			`, entryID)
		}
		if err != nil {
			return fmt.Errorf("failed to update queue entry %d: %w", entryID, err)
		}
		return nil
	})
}

// QueueStats counts pending and processed entries.
type QueueStats struct {
	Pending   int `json:"pendientes"`
	Processed int `json:"procesados"`
}

// QueueStats returns the current queue counters.
func (db *DB) QueueStats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN procesado = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN procesado = 1 THEN 1 ELSE 0 END), 0)
		FROM cola_sincronizacion
	`).Scan(&s.Pending, &s.Processed)
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return s, nil
}
