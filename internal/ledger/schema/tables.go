package schema

import (
	"fmt"
	"strings"
)

// Table names a ledger table.
type Table string

const (
	TableGeneral   Table = "remisiones_general"
	TableLoad      Table = "remisiones_cabecera"
	TableDetail    Table = "remisiones_cuerpo"
	TableRegrade   Table = "remisiones_retallados"
	TableReceiving Table = "camaras_frigorifico"
	TableQueue     Table = "cola_sincronizacion"

	TableTareCatalog Table = "catalogo_de_tina"
	TableSizeCatalog Table = "catalogo_de_talla"
	TableShipCatalog Table = "catalogo_de_barcos"
)

// LedgerTables lists the tables that take part in a day snapshot.
var LedgerTables = []Table{TableReceiving, TableGeneral, TableLoad, TableDetail, TableRegrade}

// remisionAliases maps the short names used by the field-update entry point.
var remisionAliases = map[string]Table{
	"general":    TableGeneral,
	"cabecera":   TableLoad,
	"cuerpo":     TableDetail,
	"retallados": TableRegrade,
}

// ParseRemisionTable resolves a remision table from its short name
// (general, cabecera, cuerpo, retallados) or its full table name.
func ParseRemisionTable(name string) (Table, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if t, ok := remisionAliases[name]; ok {
		return t, nil
	}
	for _, t := range remisionAliases {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown remision table %q", ErrValidation, name)
}

// String implements fmt.Stringer.
func (t Table) String() string { return string(t) }

// DeleteColumn returns the soft-delete flag column of t.
func (t Table) DeleteColumn() string {
	if t == TableReceiving {
		return "estado"
	}
	return "borrado"
}

// Operation is the kind of mutation recorded in the change queue.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}
