// Package gateway applies single-field edits coming from the weighing
// screens to remision rows.
//
// The screens edit cells of rows that may not have been saved yet, so an
// edit addresses a row by id and creates it when it does not exist. The id
// actually used is returned and is authoritative: for regrade lines the
// gateway mints a fresh id when the screen had none.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/schema"
)

// Listener is told about every applied edit. id is the requested id, empty
// when the caller sent none; newID is the row actually written. May be nil.
type Listener interface {
	FieldUpdated(table, id, field, newID string)
}

// Edit is one field edit as received from a screen.
type Edit struct {
	Table           string // general, cabecera, cuerpo, retallados
	ID              string
	Field           string
	Value           any
	ParentGeneralID string // links a created cabecera or retallado
}

// Result reports what an edit did.
type Result struct {
	ID      string // the id actually used
	Created bool
}

// Gateway applies edits to the ledger.
type Gateway struct {
	db       *db.DB
	listener Listener
	logger   *log.Logger
}

// New creates a gateway. If logger is nil, a default logger writing to
// stderr is used.
func New(ledger *db.DB, listener Listener, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	return &Gateway{db: ledger, listener: listener, logger: logger}
}

// isUnsetID reports whether a screen sent no usable id.
func isUnsetID(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "undefined", "null", "none":
		return true
	}
	return false
}

// SetRemisionField updates field on the row id of table, creating the row
// when no row with that id exists. It returns the effective id.
//
// Validation failures (unknown table or field, malformed number, deleted
// row) wrap schema.ErrValidation.
func (g *Gateway) SetRemisionField(ctx context.Context, e Edit) (Result, error) {
	table, err := schema.ParseRemisionTable(e.Table)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(e.Field) == "" {
		return Result{}, fmt.Errorf("%w: field is required", schema.ErrValidation)
	}
	if isUnsetID(e.ParentGeneralID) {
		e.ParentGeneralID = ""
	}

	requested := strings.TrimSpace(e.ID)
	if isUnsetID(requested) {
		requested = ""
	}
	id := requested
	if id == "" {
		if table != schema.TableRegrade {
			return Result{}, fmt.Errorf("%w: id is required for %s", schema.ErrValidation, table)
		}
		id = uuid.NewString()
	}

	created, err := g.db.UpsertField(ctx, table, id, e.Field, e.Value, e.ParentGeneralID)
	if err != nil {
		return Result{}, err
	}

	if created {
		g.logger.Printf("Created %s %s via %s", table, id, e.Field)
	}
	if g.listener != nil {
		g.listener.FieldUpdated(string(table), requested, e.Field, id)
	}
	return Result{ID: id, Created: created}, nil
}
