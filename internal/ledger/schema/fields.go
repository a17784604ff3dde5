package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FieldKind selects how an incoming value is coerced before it is stored.
type FieldKind int

const (
	// KindText stores the value as text.
	KindText FieldKind = iota
	// KindNumber stores the value as a real; empty input stores NULL.
	KindNumber
	// KindFlag stores 1 for any truthy input and 0 otherwise.
	KindFlag
)

// Field is one editable column.
type Field struct {
	Column string
	Kind   FieldKind
}

func text(col string) Field   { return Field{Column: col, Kind: KindText} }
func number(col string) Field { return Field{Column: col, Kind: KindNumber} }
func flag(col string) Field   { return Field{Column: col, Kind: KindFlag} }

func fieldSet(fields ...Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Column] = f
	}
	return m
}

// editable is the per-table whitelist. Derived columns (peso_neto, merma)
// and linkage columns are deliberately absent.
var editable = map[Table]map[string]Field{
	TableGeneral: fieldSet(
		text("folio"), text("cliente"), text("numero_sello"), text("placas_contenedor"),
		text("factura"), text("observaciones"), text("fecha_produccion"),
		text("numero_remision"), text("empleado"),
	),
	TableLoad: fieldSet(
		text("carga"), number("cantidad_solicitada"),
	),
	TableDetail: fieldSet(
		text("sku_tina"), text("sku_talla"), number("tara"), text("lote"), text("tanque"),
		number("peso_marbete"), number("peso_bascula"), number("peso_neto_devolucion"),
		number("peso_bruto_devolucion"), text("observaciones"),
		flag("is_msc"), flag("is_sensorial"),
	),
	TableRegrade: fieldSet(
		text("sku_tina"), text("sku_talla"), text("lote"), text("tanque"), number("tara"),
		number("peso_bascula"), number("peso_marbete"), text("observaciones"),
		flag("is_msc"), flag("is_sensorial"),
	),
	TableReceiving: fieldSet(
		text("sku_tina"), text("sku_talla"), number("peso_bruto"), number("tara"),
		text("tanque"), text("observaciones"),
	),
}

// EditableField returns the whitelisted field name of table.
func EditableField(table Table, name string) (Field, error) {
	fields, ok := editable[table]
	if !ok {
		return Field{}, fmt.Errorf("%w: table %q has no editable fields", ErrValidation, table)
	}
	f, ok := fields[name]
	if !ok {
		return Field{}, fmt.Errorf("%w: field %q is not editable on %s", ErrValidation, name, table)
	}
	return f, nil
}

// EditableFields returns the sorted whitelist of table.
func EditableFields(table Table) []string {
	fields := editable[table]
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Coerce converts value into the representation stored for f.
// The result is nil (SQL NULL), a string, a float64 or an int. Empty
// input stores NULL for text and number fields.
func (f Field) Coerce(value any) (any, error) {
	switch f.Kind {
	case KindFlag:
		return FlagValue(value), nil
	case KindNumber:
		n, ok, err := ParseNumber(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrValidation, f.Column, err)
		}
		if !ok {
			return nil, nil
		}
		return n, nil
	default:
		if value == nil {
			return nil, nil
		}
		switch v := value.(type) {
		case string:
			if v == "" {
				return nil, nil
			}
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case json.Number:
			return v.String(), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
}

// FlagValue maps any truthy representation to 1 and everything else to 0.
func FlagValue(value any) int {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
	case int:
		if v != 0 {
			return 1
		}
	case int64:
		if v != 0 {
			return 1
		}
	case float64:
		if v != 0 {
			return 1
		}
	case json.Number:
		if f, err := v.Float64(); err == nil && f != 0 {
			return 1
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes", "si", "sí", "y", "s":
			return 1
		}
	}
	return 0
}

// ParseNumber reads a weight or quantity. A comma decimal separator is
// accepted. ok is false when the input is empty. NaN and infinities are
// rejected: SQLite stores NaN as NULL, which would blank the derived
// weights.
func ParseNumber(value any) (n float64, ok bool, err error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, err = v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("invalid number %q", v)
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		f, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid number %q", v)
		}
	default:
		return 0, false, fmt.Errorf("unsupported numeric value %v (%T)", value, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("invalid number %v", value)
	}
	return f, true, nil
}
