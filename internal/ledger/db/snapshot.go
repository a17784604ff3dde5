package db

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/sitetime"
)

// CollectToday returns the active rows created on the current site-local day.
func (db *DB) CollectToday(ctx context.Context) (*schema.Snapshot, error) {
	return db.CollectDay(ctx, db.Today())
}

// CollectDay returns the active rows of every ledger table created on day.
//
// The five tables are read concurrently without a shared transaction; a
// row written while the snapshot is taken may or may not be included. An
// empty day yields an empty snapshot, not an error.
func (db *DB) CollectDay(ctx context.Context, day sitetime.Day) (*schema.Snapshot, error) {
	snap := schema.NewSnapshot()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := collect(ctx, db, schema.TableReceiving, schema.ReceivingColumns, "fecha_hora_guardado", day,
			func() (*schema.ReceivingRecord, []any) { r := &schema.ReceivingRecord{}; return r, r.ScanArgs() })
		snap.Receiving = rows
		return err
	})
	g.Go(func() error {
		rows, err := collect(ctx, db, schema.TableGeneral, schema.GeneralColumns, "fecha_creacion", day,
			func() (*schema.GeneralDocument, []any) { r := &schema.GeneralDocument{}; return r, r.ScanArgs() })
		snap.General = rows
		return err
	})
	g.Go(func() error {
		rows, err := collect(ctx, db, schema.TableLoad, schema.LoadColumns, "fecha_creacion", day,
			func() (*schema.LoadHeader, []any) { r := &schema.LoadHeader{}; return r, r.ScanArgs() })
		snap.Loads = rows
		return err
	})
	g.Go(func() error {
		rows, err := collect(ctx, db, schema.TableDetail, schema.DetailColumns, "fecha_creacion", day,
			func() (*schema.DetailLine, []any) { r := &schema.DetailLine{}; return r, r.ScanArgs() })
		snap.Details = rows
		return err
	})
	g.Go(func() error {
		rows, err := collect(ctx, db, schema.TableRegrade, schema.RegradeColumns, "fecha_creacion", day,
			func() (*schema.RegradeLine, []any) { r := &schema.RegradeLine{}; return r, r.ScanArgs() })
		snap.Regrades = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// collect reads the active rows of one table created on day. newRow returns
// a fresh row and its scan destinations.
func collect[T any](ctx context.Context, db *DB, table schema.Table, cols []string, dateCol string,
	day sitetime.Day, newRow func() (*T, []any)) ([]T, error) {

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE date(%s) = ? AND %s = 0
		ORDER BY %s, rowid
	`, strings.Join(cols, ", "), table, dateCol, table.DeleteColumn(), dateCol)

	rows, err := db.conn.QueryContext(ctx, query, string(day))
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s: %w", table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		row, dest := newRow()
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return out, nil
}
