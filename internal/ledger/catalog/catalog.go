// Package catalog manages the static lookup tables of the site: container
// tares, size descriptions and ship initials.
//
// Catalogs are downloaded elsewhere and handed to Import as a JSON array.
// An import replaces the whole table in one transaction, so readers see
// either the old catalog or the new one.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

// Kind names a catalog.
type Kind string

const (
	KindTare Kind = "tina"
	KindSize Kind = "talla"
	KindShip Kind = "barcos"
)

// Kinds lists every catalog kind.
var Kinds = []Kind{KindTare, KindSize, KindShip}

// ParseKind resolves a catalog kind from its name or its table name.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == s || string(k.Table()) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown catalog %q", schema.ErrValidation, s)
}

// Table returns the store table backing k.
func (k Kind) Table() schema.Table {
	switch k {
	case KindTare:
		return schema.TableTareCatalog
	case KindSize:
		return schema.TableSizeCatalog
	case KindShip:
		return schema.TableShipCatalog
	}
	return ""
}

// TareEntry is one container type and its empty weight.
type TareEntry struct {
	SKU  string      `json:"sku"`
	Tare json.Number `json:"tara"`
}

// SizeEntry is one size SKU.
type SizeEntry struct {
	SKU         string `json:"sku"`
	Description string `json:"descripcion"`
	Species     string `json:"especie"`
	Size        string `json:"talla"`
}

// ShipEntry maps a ship initial to its name.
type ShipEntry struct {
	Initial     string `json:"inicial"`
	Description string `json:"descripcion"`
}

// Store reads and replaces catalogs in the ledger.
type Store struct {
	ledger *db.DB
}

// New returns a catalog store over ledger.
func New(ledger *db.DB) *Store {
	return &Store{ledger: ledger}
}

// Import replaces the catalog of kind with the JSON array read from r.
func Import(ctx context.Context, ledger *db.DB, kind Kind, r io.Reader) (int, error) {
	return New(ledger).Import(ctx, kind, r)
}

// Import replaces the catalog of kind with the JSON array read from r and
// returns the number of rows written. A malformed document leaves the
// current catalog untouched.
func (s *Store) Import(ctx context.Context, kind Kind, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var (
		query string
		rows  [][]any
	)
	stamp := s.ledger.Clock().Stamp()

	switch kind {
	case KindTare:
		var entries []TareEntry
		if err := dec.Decode(&entries); err != nil {
			return 0, fmt.Errorf("%w: failed to decode %s catalog: %v", schema.ErrValidation, kind, err)
		}
		query = "INSERT INTO catalogo_de_tina (sku, tara, fecha_hora_guardado) VALUES (?, ?, ?)"
		for i, e := range entries {
			if strings.TrimSpace(e.SKU) == "" {
				return 0, fmt.Errorf("%w: tina entry %d has no sku", schema.ErrValidation, i)
			}
			tare, ok, err := schema.ParseNumber(e.Tare)
			if err != nil || !ok {
				return 0, fmt.Errorf("%w: tina %s has invalid tara %q", schema.ErrValidation, e.SKU, e.Tare)
			}
			rows = append(rows, []any{strings.TrimSpace(e.SKU), tare, stamp})
		}

	case KindSize:
		var entries []SizeEntry
		if err := dec.Decode(&entries); err != nil {
			return 0, fmt.Errorf("%w: failed to decode %s catalog: %v", schema.ErrValidation, kind, err)
		}
		query = "INSERT INTO catalogo_de_talla (sku, descripcion, especie, talla, fecha_hora_guardado) VALUES (?, ?, ?, ?, ?)"
		for _, e := range entries {
			rows = append(rows, []any{e.SKU, e.Description, e.Species, e.Size, stamp})
		}

	case KindShip:
		var entries []ShipEntry
		if err := dec.Decode(&entries); err != nil {
			return 0, fmt.Errorf("%w: failed to decode %s catalog: %v", schema.ErrValidation, kind, err)
		}
		query = "INSERT INTO catalogo_de_barcos (inicial, descripcion, fecha_hora_guardado) VALUES (?, ?, ?)"
		for _, e := range entries {
			rows = append(rows, []any{e.Initial, e.Description, stamp})
		}

	default:
		return 0, fmt.Errorf("%w: unknown catalog %q", schema.ErrValidation, kind)
	}

	tx, err := s.ledger.RawDB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(kind.Table())); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", kind.Table(), err)
	}
	for _, args := range rows {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", kind.Table(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", kind.Table(), err)
	}
	return len(rows), nil
}

// TareFor returns the empty weight of a container SKU. found is false when
// the SKU is not in the catalog.
func (s *Store) TareFor(ctx context.Context, sku string) (tare float64, found bool, err error) {
	err = s.ledger.RawDB().QueryRowContext(ctx,
		"SELECT tara FROM catalogo_de_tina WHERE sku = ? ORDER BY id LIMIT 1", strings.TrimSpace(sku)).Scan(&tare)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up tara for %s: %w", sku, err)
	}
	return tare, true, nil
}

// SizeDescription returns the label of a size SKU. Product SKUs (prefix P)
// read "<especie> <talla>"; every other SKU reads its descripcion. An
// unknown SKU yields "".
func (s *Store) SizeDescription(ctx context.Context, sku string) (string, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return "", nil
	}
	query := "SELECT COALESCE(descripcion, '') FROM catalogo_de_talla WHERE sku = ? ORDER BY id LIMIT 1"
	if strings.HasPrefix(strings.ToUpper(sku), "P") {
		query = "SELECT COALESCE(especie, '') || ' ' || COALESCE(talla, '') FROM catalogo_de_talla WHERE sku = ? ORDER BY id LIMIT 1"
	}

	var desc string
	err := s.ledger.RawDB().QueryRowContext(ctx, query, sku).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up size %s: %w", sku, err)
	}
	return desc, nil
}

// ShipName returns the ship registered under initial. found is false when
// no ship matches.
func (s *Store) ShipName(ctx context.Context, initial string) (name string, found bool, err error) {
	var desc sql.NullString
	err = s.ledger.RawDB().QueryRowContext(ctx,
		"SELECT descripcion FROM catalogo_de_barcos WHERE inicial = ? ORDER BY id LIMIT 1", strings.TrimSpace(initial)).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up ship %s: %w", initial, err)
	}
	return desc.String, true, nil
}

// Count returns the number of rows in the catalog of kind.
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	table := kind.Table()
	if table == "" {
		return 0, fmt.Errorf("%w: unknown catalog %q", schema.ErrValidation, kind)
	}
	var n int
	if err := s.ledger.RawDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
