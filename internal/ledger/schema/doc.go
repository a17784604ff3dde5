// Package schema defines the ledger record types and the rules that govern
// how they may be edited.
//
// The ledger is hierarchical:
//
//	remisiones_general      one per site-local day
//	  remisiones_cabecera   a load, unique per (carga, cantidad_solicitada, day)
//	    remisiones_cuerpo   one weighed container
//	  remisiones_retallados re-graded containers, attached to the day directly
//
//	camaras_frigorifico     receiving-dock weighings, pushed one by one
//	cola_sincronizacion     pending mutations of camaras_frigorifico
//
// Every table soft-deletes through a flag column (see Table.DeleteColumn).
//
// # Editable fields
//
// Each table has an explicit whitelist of editable columns. Anything else is
// rejected with ErrValidation:
//
//	f, err := schema.EditableField(schema.TableDetail, "peso_bascula")
//	if err != nil {
//	    return err // ErrValidation
//	}
//	v, err := f.Coerce("1234,5") // 1234.5
//
// Flag columns (is_msc, is_sensorial) coerce any truthy input to 1 and
// everything else to 0.
package schema
