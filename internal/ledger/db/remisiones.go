package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/sitetime"
)

// UpsertGeneralDocument returns the active general document of day, creating
// it on first use.
//
// fields are remisiones_general columns. Only non-empty values are written,
// so a later call never blanks a value set earlier. A column outside the
// editable whitelist fails with schema.ErrValidation.
func (db *DB) UpsertGeneralDocument(ctx context.Context, day sitetime.Day, fields map[string]string) (string, error) {
	var id string
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = db.upsertGeneral(ctx, tx, day, fields)
		return err
	})
	return id, err
}

func (db *DB) upsertGeneral(ctx context.Context, q querier, day sitetime.Day, fields map[string]string) (string, error) {
	cols, vals, err := nonEmptyFields(schema.TableGeneral, fields)
	if err != nil {
		return "", err
	}

	var id string
	err = q.QueryRowContext(ctx, `
		SELECT uuid FROM remisiones_general
		WHERE date(fecha_creacion) = ? AND borrado = 0
		ORDER BY fecha_creacion, uuid
		LIMIT 1
	`, string(day)).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		insertCols := append([]string{"uuid", "fecha_creacion"}, cols...)
		args := append([]any{id, db.stampFor(day)}, vals...)
		query := fmt.Sprintf("INSERT INTO remisiones_general (%s) VALUES (%s)",
			strings.Join(insertCols, ", "), placeholders(len(insertCols)))
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("failed to create general document: %w", err)
		}
		return id, nil

	case err != nil:
		return "", fmt.Errorf("failed to look up general document: %w", err)
	}

	if len(cols) > 0 {
		if err := updateColumns(ctx, q, schema.TableGeneral, id, cols, vals); err != nil {
			return "", fmt.Errorf("failed to merge general document: %w", err)
		}
	}
	return id, nil
}

// UpsertLoadHeader returns the active load (carga, qty) of the general
// document on day, creating it on first use.
func (db *DB) UpsertLoadHeader(ctx context.Context, day sitetime.Day, generalID, carga string, qty float64) (string, error) {
	var id string
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = db.upsertLoad(ctx, tx, day, generalID, carga, qty)
		return err
	})
	return id, err
}

func (db *DB) upsertLoad(ctx context.Context, q querier, day sitetime.Day, generalID, carga string, qty float64) (string, error) {
	carga = strings.TrimSpace(carga)
	if carga == "" {
		return "", fmt.Errorf("%w: carga is required", schema.ErrValidation)
	}
	if generalID == "" {
		return "", fmt.Errorf("%w: general document id is required", schema.ErrValidation)
	}

	var id string
	err := q.QueryRowContext(ctx, `
		SELECT uuid FROM remisiones_cabecera
		WHERE id_remision_general = ? AND carga = ? AND cantidad_solicitada = ?
		  AND date(fecha_creacion) = ? AND borrado = 0
		ORDER BY fecha_creacion, uuid
		LIMIT 1
	`, generalID, carga, qty, string(day)).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		_, err := q.ExecContext(ctx, `
			INSERT INTO remisiones_cabecera (uuid, id_remision_general, carga, cantidad_solicitada, fecha_creacion)
			VALUES (?, ?, ?, ?, ?)
		`, id, generalID, carga, qty, db.stampFor(day))
		if err != nil {
			return "", fmt.Errorf("failed to create load header: %w", err)
		}
		return id, nil

	case err != nil:
		return "", fmt.Errorf("failed to look up load header: %w", err)
	}
	return id, nil
}

// InsertDetailLine adds a weighed container to a load and returns its id.
//
// line.ID is used when set, otherwise a new id is generated. NetWeight and
// Shrink are ignored; the store derives them.
func (db *DB) InsertDetailLine(ctx context.Context, loadID string, line schema.DetailLine) (string, error) {
	return db.insertDetail(ctx, db.conn, loadID, line)
}

func (db *DB) insertDetail(ctx context.Context, q querier, loadID string, line schema.DetailLine) (string, error) {
	if loadID == "" {
		return "", fmt.Errorf("%w: load id is required", schema.ErrValidation)
	}
	id := line.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO remisiones_cuerpo (
			uuid, id_remision, sku_tina, sku_talla, tara, lote, tanque,
			peso_marbete, peso_bascula, peso_neto_devolucion, peso_bruto_devolucion,
			observaciones, is_msc, is_sensorial, fecha_creacion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, loadID, line.ContainerSKU, line.SizeSKU, line.Tare, line.Lot, line.Tank,
		line.TagWeight, line.GrossWeight, line.ReturnNet, line.ReturnGross,
		line.Notes, line.MSC, line.Sensory, db.clock.Stamp(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert detail line: %w", err)
	}
	return id, nil
}

// InsertRegradeLine adds a re-graded container to a general document and
// returns its id. line.ID is used when set.
func (db *DB) InsertRegradeLine(ctx context.Context, generalID string, line schema.RegradeLine) (string, error) {
	return db.insertRegrade(ctx, db.conn, generalID, line)
}

func (db *DB) insertRegrade(ctx context.Context, q querier, generalID string, line schema.RegradeLine) (string, error) {
	if generalID == "" {
		return "", fmt.Errorf("%w: general document id is required", schema.ErrValidation)
	}
	id := line.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO remisiones_retallados (
			uuid, id_remision_general, sku_tina, sku_talla, lote, tanque, tara,
			peso_bascula, peso_marbete, observaciones, is_msc, is_sensorial, fecha_creacion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, generalID, line.ContainerSKU, line.SizeSKU, line.Lot, line.Tank, line.Tare,
		line.GrossWeight, line.TagWeight, line.Notes, line.MSC, line.Sensory, db.clock.Stamp(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert regrade line: %w", err)
	}
	return id, nil
}

// SoftDelete flags a row as deleted. The row stays retrievable by id.
//
// Deleting a receiving record also enqueues a DELETE for the remote backend
// in the same transaction. Deleting an already deleted row is a no-op.
func (db *DB) SoftDelete(ctx context.Context, table schema.Table, id string) error {
	if !isLedgerTable(table) {
		return fmt.Errorf("%w: cannot delete from %q", schema.ErrValidation, table)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		col := table.DeleteColumn()

		var deleted int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", col, table), id).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", schema.ErrNotFound, table, id)
		}
		if err != nil {
			return fmt.Errorf("failed to look up %s %s: %w", table, id, err)
		}
		if deleted == 1 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = 1 WHERE uuid = ?", table, col), id); err != nil {
			return fmt.Errorf("failed to soft delete %s %s: %w", table, id, err)
		}

		if table == schema.TableReceiving {
			if _, err := db.enqueue(ctx, tx, table, id, schema.OpDelete); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetField updates one whitelisted column of an active row.
//
// For remision tables the store triggers recompute peso_neto and merma in
// the same transaction when a source column changes. For receiving records
// SetField recomputes peso_neto itself and enqueues an UPDATE.
func (db *DB) SetField(ctx context.Context, table schema.Table, id, field string, value any) error {
	f, err := schema.EditableField(table, field)
	if err != nil {
		return err
	}
	v, err := f.Coerce(value)
	if err != nil {
		return err
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = ? WHERE uuid = ? AND %s = 0", table, f.Column, table.DeleteColumn()),
			v, id)
		if err != nil {
			return fmt.Errorf("failed to update %s.%s: %w", table, f.Column, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: active %s %s", schema.ErrNotFound, table, id)
		}

		if table == schema.TableReceiving {
			if f.Column == "peso_bruto" || f.Column == "tara" {
				if _, err := tx.ExecContext(ctx, `
					UPDATE camaras_frigorifico SET peso_neto = peso_bruto - tara WHERE uuid = ?
				`, id); err != nil {
					return fmt.Errorf("failed to recompute net weight: %w", err)
				}
			}
			if _, err := db.enqueue(ctx, tx, table, id, schema.OpUpdate); err != nil {
				return err
			}
		}
		return nil
	})
}

// parentColumn is the linkage column set when UpsertField creates a row.
var parentColumn = map[schema.Table]string{
	schema.TableLoad:    "id_remision_general",
	schema.TableRegrade: "id_remision_general",
}

// UpsertField sets one whitelisted column of a remision row, creating the
// row under id when it does not exist yet.
//
// parentID links a created load or regrade line to its general document and
// is ignored otherwise. A soft-deleted row is neither updated nor recreated:
// the call fails with schema.ErrValidation. created reports whether a new
// row was inserted.
func (db *DB) UpsertField(ctx context.Context, table schema.Table, id, field string, value any, parentID string) (created bool, err error) {
	if table == schema.TableReceiving || !isLedgerTable(table) {
		return false, fmt.Errorf("%w: %q is not a remision table", schema.ErrValidation, table)
	}
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: id is required", schema.ErrValidation)
	}
	f, err := schema.EditableField(table, field)
	if err != nil {
		return false, err
	}
	v, err := f.Coerce(value)
	if err != nil {
		return false, err
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		exists, deleted, err := rowState(ctx, tx, table, id)
		if err != nil {
			return err
		}
		if deleted {
			return fmt.Errorf("%w: %s %s was deleted", schema.ErrValidation, table, id)
		}
		if exists {
			return updateColumns(ctx, tx, table, id, []string{f.Column}, []any{v})
		}

		cols := []string{"uuid", "fecha_creacion", f.Column}
		args := []any{id, db.clock.Stamp(), v}
		if col, ok := parentColumn[table]; ok && parentID != "" {
			cols = append(cols, col)
			args = append(args, parentID)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to create %s %s: %w", table, id, err)
		}
		created = true
		return nil
	})
	return created, err
}

// RowState reports whether a row exists in table and whether it is deleted.
func (db *DB) RowState(ctx context.Context, table schema.Table, id string) (exists, deleted bool, err error) {
	return rowState(ctx, db.conn, table, id)
}

func rowState(ctx context.Context, q querier, table schema.Table, id string) (exists, deleted bool, err error) {
	if !isLedgerTable(table) {
		return false, false, fmt.Errorf("%w: unknown table %q", schema.ErrValidation, table)
	}
	var flag int
	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", table.DeleteColumn(), table), id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to look up %s %s: %w", table, id, err)
	}
	return true, flag == 1, nil
}

// GetGeneralDocument returns a general document by id, deleted or not.
func (db *DB) GetGeneralDocument(ctx context.Context, id string) (*schema.GeneralDocument, error) {
	var g schema.GeneralDocument
	if err := db.getByID(ctx, schema.TableGeneral, schema.GeneralColumns, id, g.ScanArgs()); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetLoadHeader returns a load by id, deleted or not.
func (db *DB) GetLoadHeader(ctx context.Context, id string) (*schema.LoadHeader, error) {
	var l schema.LoadHeader
	if err := db.getByID(ctx, schema.TableLoad, schema.LoadColumns, id, l.ScanArgs()); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetDetailLine returns a detail line by id, deleted or not.
func (db *DB) GetDetailLine(ctx context.Context, id string) (*schema.DetailLine, error) {
	var d schema.DetailLine
	if err := db.getByID(ctx, schema.TableDetail, schema.DetailColumns, id, d.ScanArgs()); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetRegradeLine returns a regrade line by id, deleted or not.
func (db *DB) GetRegradeLine(ctx context.Context, id string) (*schema.RegradeLine, error) {
	var r schema.RegradeLine
	if err := db.getByID(ctx, schema.TableRegrade, schema.RegradeColumns, id, r.ScanArgs()); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) getByID(ctx context.Context, table schema.Table, cols []string, id string, dest []any) error {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", strings.Join(cols, ", "), table)
	err := db.conn.QueryRowContext(ctx, query, id).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", schema.ErrNotFound, table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", table, id, err)
	}
	return nil
}

// LoadWithLines is a load and its active detail lines.
type LoadWithLines struct {
	schema.LoadHeader
	Lines []schema.DetailLine `json:"detalles"`
}

// LoadsForDay returns the active loads created on day with their active
// detail lines in weighing order.
func (db *DB) LoadsForDay(ctx context.Context, day sitetime.Day) ([]LoadWithLines, error) {
	loads, err := db.activeLoads(ctx, "date(fecha_creacion) = ?", string(day))
	if err != nil {
		return nil, err
	}
	return db.withLines(ctx, loads)
}

// LoadsInRange returns the active loads created on days in [from, to),
// oldest first, with their active detail lines.
func (db *DB) LoadsInRange(ctx context.Context, from, to sitetime.Day) ([]LoadWithLines, error) {
	if to <= from {
		return nil, fmt.Errorf("%w: empty range %s to %s", schema.ErrValidation, from, to)
	}
	loads, err := db.activeLoads(ctx, "date(fecha_creacion) >= ? AND date(fecha_creacion) < ?", string(from), string(to))
	if err != nil {
		return nil, err
	}
	return db.withLines(ctx, loads)
}

// LoadForDay returns the active load of day keyed by carga and requested
// quantity, or ErrNotFound.
func (db *DB) LoadForDay(ctx context.Context, day sitetime.Day, carga string, qty float64) (*LoadWithLines, error) {
	loads, err := db.activeLoads(ctx, "date(fecha_creacion) = ? AND carga = ? AND cantidad_solicitada = ?",
		string(day), strings.TrimSpace(carga), qty)
	if err != nil {
		return nil, err
	}
	if len(loads) == 0 {
		return nil, fmt.Errorf("%w: load %s/%v on %s", schema.ErrNotFound, carga, qty, day)
	}
	out, err := db.withLines(ctx, loads[:1])
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// NetDelivered sums the net weight of the active detail lines in the active
// loads of a general document.
func (db *DB) NetDelivered(ctx context.Context, generalID string) (float64, error) {
	var total float64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(d.peso_neto), 0)
		FROM remisiones_cuerpo d
		JOIN remisiones_cabecera c ON c.uuid = d.id_remision
		WHERE c.id_remision_general = ? AND c.borrado = 0 AND d.borrado = 0
	`, generalID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum delivered net: %w", err)
	}
	return total, nil
}

func (db *DB) withLines(ctx context.Context, loads []schema.LoadHeader) ([]LoadWithLines, error) {
	out := make([]LoadWithLines, 0, len(loads))
	for _, l := range loads {
		lines, err := db.ActiveDetailLines(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, LoadWithLines{LoadHeader: l, Lines: lines})
	}
	return out, nil
}

func (db *DB) activeLoads(ctx context.Context, where string, args ...any) ([]schema.LoadHeader, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM remisiones_cabecera
		WHERE %s AND borrado = 0
		ORDER BY fecha_creacion, uuid
	`, strings.Join(schema.LoadColumns, ", "), where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loads: %w", err)
	}
	defer rows.Close()

	loads := []schema.LoadHeader{}
	for rows.Next() {
		var l schema.LoadHeader
		if err := rows.Scan(l.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan load: %w", err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// ActiveDetailLines returns the non-deleted lines of a load in weighing order.
func (db *DB) ActiveDetailLines(ctx context.Context, loadID string) ([]schema.DetailLine, error) {
	return activeDetailLines(ctx, db.conn, loadID)
}

func activeDetailLines(ctx context.Context, q querier, loadID string) ([]schema.DetailLine, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM remisiones_cuerpo
		WHERE id_remision = ? AND borrado = 0
		ORDER BY fecha_creacion, rowid
	`, strings.Join(schema.DetailColumns, ", ")), loadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail lines: %w", err)
	}
	defer rows.Close()

	lines := []schema.DetailLine{}
	for rows.Next() {
		var d schema.DetailLine
		if err := rows.Scan(d.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan detail line: %w", err)
		}
		lines = append(lines, d)
	}
	return lines, rows.Err()
}

// RegradeLinesForGeneral returns the non-deleted regrade lines of a general
// document in creation order.
func (db *DB) RegradeLinesForGeneral(ctx context.Context, generalID string) ([]schema.RegradeLine, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM remisiones_retallados
		WHERE id_remision_general = ? AND borrado = 0
		ORDER BY fecha_creacion, rowid
	`, strings.Join(schema.RegradeColumns, ", ")), generalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query regrade lines: %w", err)
	}
	defer rows.Close()

	lines := []schema.RegradeLine{}
	for rows.Next() {
		var r schema.RegradeLine
		if err := rows.Scan(r.ScanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan regrade line: %w", err)
		}
		lines = append(lines, r)
	}
	return lines, rows.Err()
}

// nonEmptyFields validates fields against the whitelist of table and returns
// the non-empty ones in a stable column order.
func nonEmptyFields(table schema.Table, fields map[string]string) ([]string, []any, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var cols []string
	var vals []any
	for _, name := range names {
		f, err := schema.EditableField(table, name)
		if err != nil {
			return nil, nil, err
		}
		raw := strings.TrimSpace(fields[name])
		if raw == "" {
			continue
		}
		v, err := f.Coerce(raw)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, f.Column)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

func updateColumns(ctx context.Context, q querier, table schema.Table, id string, cols []string, vals []any) error {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args := append(append([]any{}, vals...), id)
	_, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE uuid = ?", table, strings.Join(sets, ", ")), args...)
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func isLedgerTable(t schema.Table) bool {
	for _, lt := range schema.LedgerTables {
		if lt == t {
			return true
		}
	}
	return false
}
