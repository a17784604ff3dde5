package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/procesa/pesaje/internal/ledger/schema"
)

// ReceivingInput is one weighing captured at the receiving dock.
type ReceivingInput struct {
	BasicLot     string // lote_basico, e.g. "ABC123"
	FDA          string // operator-supplied FDA code for non-basic lots
	ContainerSKU string
	SizeSKU      string
	Tank         string
	Certificate  string
	UnloadDate   string
	TagTime      string
	WeighTime    string
	Notes        string
	Employee     string
	GrossWeight  float64
	Tare         float64
}

// Validate checks the required fields.
func (in *ReceivingInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.BasicLot) == "" {
		missing = append(missing, "lote_basico")
	}
	if strings.TrimSpace(in.ContainerSKU) == "" {
		missing = append(missing, "sku_tina")
	}
	if in.GrossWeight <= 0 {
		missing = append(missing, "peso_bruto")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", schema.ErrValidation, strings.Join(missing, ", "))
	}
	if in.Tare < 0 {
		return fmt.Errorf("%w: tara cannot be negative", schema.ErrValidation)
	}
	return nil
}

// SaveReceivingRecord stores a receiving weighing and enqueues its INSERT
// for the remote backend in the same transaction.
//
// The net weight is gross minus tare. Basic lots derive their FDA code from
// the cumulative active net weight of the lot including this record.
func (db *DB) SaveReceivingRecord(ctx context.Context, in ReceivingInput) (*schema.ReceivingRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	basic := strings.ToUpper(strings.TrimSpace(in.BasicLot))
	net := in.GrossWeight - in.Tare
	id := uuid.NewString()

	var rec *schema.ReceivingRecord
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := lotNetTotal(ctx, tx, basic)
		if err != nil {
			return err
		}

		fda := schema.ResolveFDA(basic, prior+net, strings.TrimSpace(in.FDA))
		lotFDA, lotSAP := schema.LotLabels(basic, fda, in.ContainerSKU)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO camaras_frigorifico (
				uuid, id_procesa_app, fecha_de_descarga, certificado, sku_tina, sku_talla,
				peso_bruto, tanque, hora_de_marbete, hora_de_pesado, fda, lote_fda, lote_sap,
				peso_neto, tara, observaciones, fecha_hora_guardado, estado, empleado
			) VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		`,
			id, nullable(in.UnloadDate), nullable(in.Certificate), in.ContainerSKU, nullable(in.SizeSKU),
			in.GrossWeight, nullable(in.Tank), nullable(in.TagTime), nullable(in.WeighTime),
			nullable(fda), lotFDA, lotSAP, net, in.Tare, nullable(in.Notes), db.clock.Stamp(),
			nullable(in.Employee),
		); err != nil {
			return fmt.Errorf("failed to insert receiving record: %w", err)
		}

		if _, err := db.enqueue(ctx, tx, schema.TableReceiving, id, schema.OpInsert); err != nil {
			return err
		}

		rec, err = getReceiving(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetReceivingRecord returns a receiving record by id, deleted or not.
func (db *DB) GetReceivingRecord(ctx context.Context, id string) (*schema.ReceivingRecord, error) {
	return getReceiving(ctx, db.conn, id)
}

func getReceiving(ctx context.Context, q querier, id string) (*schema.ReceivingRecord, error) {
	var r schema.ReceivingRecord
	query := fmt.Sprintf("SELECT %s FROM camaras_frigorifico WHERE uuid = ?",
		strings.Join(schema.ReceivingColumns, ", "))
	err := q.QueryRowContext(ctx, query, id).Scan(r.ScanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", schema.ErrNotFound, schema.TableReceiving, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receiving record %s: %w", id, err)
	}
	return &r, nil
}

// SetRemoteID stores the identifier the remote backend assigned to a
// receiving record. remoteID must be positive.
func (db *DB) SetRemoteID(ctx context.Context, id string, remoteID int64) error {
	if remoteID <= 0 {
		return fmt.Errorf("%w: remote id must be positive, got %d", schema.ErrValidation, remoteID)
	}
	res, err := db.conn.ExecContext(ctx,
		"UPDATE camaras_frigorifico SET id_procesa_app = ? WHERE uuid = ?", remoteID, id)
	if err != nil {
		return fmt.Errorf("failed to store remote id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s %s", schema.ErrNotFound, schema.TableReceiving, id)
	}
	return nil
}

// RecentReceivingRecords returns the latest active receiving records, newest
// first.
func (db *DB) RecentReceivingRecords(ctx context.Context, limit int) ([]schema.ReceivingRecord, error) {
	if limit <= 0 {
		limit = 13
	}
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM camaras_frigorifico
		WHERE estado = 0
		ORDER BY fecha_hora_guardado DESC, rowid DESC
		LIMIT ?
	`, strings.Join(schema.ReceivingColumns, ", ")), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receiving records: %w", err)
	}
	defer rows.Close()

	recs := []schema.ReceivingRecord{}
	for rows.Next() {
		var r schema.ReceivingRecord
		if err := rows.Scan(r.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan receiving record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// LotNetTotal returns the active net weight received for a basic lot.
func (db *DB) LotNetTotal(ctx context.Context, basicLot string) (float64, error) {
	return lotNetTotal(ctx, db.conn, strings.ToUpper(strings.TrimSpace(basicLot)))
}

func lotNetTotal(ctx context.Context, q querier, basicLot string) (float64, error) {
	var total float64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(peso_neto), 0) FROM camaras_frigorifico
		WHERE estado = 0 AND lote_fda LIKE ? || '%'
	`, basicLot).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to total lot %s: %w", basicLot, err)
	}
	return total, nil
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
