package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AlekSi/pointer"

	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/split"
)

// Division moves part of the container being weighed to another load.
type Division struct {
	NewLoadNumber   string  // carga receiving the divided portion
	NewRequestedQty float64 // cantidad_solicitada of that load
	NewContainer    string  // label of the new container, recorded in the notes
}

// WeighingInput is one container weighed against a load of today's
// general document.
type WeighingInput struct {
	LoadNumber   string
	RequestedQty float64

	ContainerSKU string
	SizeSKU      string
	Lot          string
	Tank         string
	Tare         float64
	GrossWeight  float64
	TagWeight    float64
	Shrink       float64 // only used for the divided portion
	ReturnNet    *float64
	ReturnGross  *float64
	Notes        string
	Sensory      bool

	// Header carries remisiones_general columns merged into today's document.
	Header map[string]string

	// Division, when set, splits the container between this load and the
	// division load.
	Division *Division
}

// Validate checks required and numeric fields.
func (in *WeighingInput) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"carga":     in.LoadNumber,
		"sku_tina":  in.ContainerSKU,
		"sku_talla": in.SizeSKU,
		"lote":      in.Lot,
		"tanque":    in.Tank,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if in.RequestedQty <= 0 {
		missing = append(missing, "cantidad_solicitada")
	}
	if in.GrossWeight <= 0 {
		missing = append(missing, "peso_bascula")
	}
	if in.TagWeight <= 0 {
		missing = append(missing, "peso_marbete")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing required fields: %s", schema.ErrValidation, strings.Join(missing, ", "))
	}
	if _, err := strconv.Atoi(strings.TrimSpace(in.LoadNumber)); err != nil {
		return fmt.Errorf("%w: carga must be an integer, got %q", schema.ErrValidation, in.LoadNumber)
	}
	if in.Tare < 0 {
		return fmt.Errorf("%w: tara cannot be negative", schema.ErrValidation)
	}
	if d := in.Division; d != nil {
		if _, err := strconv.Atoi(strings.TrimSpace(d.NewLoadNumber)); err != nil {
			return fmt.Errorf("%w: division carga must be an integer, got %q", schema.ErrValidation, d.NewLoadNumber)
		}
		if d.NewRequestedQty <= 0 {
			return fmt.Errorf("%w: division cantidad_solicitada must be positive", schema.ErrValidation)
		}
	}
	return nil
}

// WeighingResult identifies the rows written by SaveWeighing.
type WeighingResult struct {
	GeneralID string        `json:"id_remision_general"`
	LoadID    string        `json:"id_remision"`
	LineIDs   []string      `json:"ids_cuerpo"`
	Split     *split.Result `json:"division,omitempty"`
}

// SaveWeighing records a weighed container under today's general document
// and the requested load, creating both on first use.
//
// Without a division one detail line is written. With a division the store
// reads the active net weights of the load, runs split.Split with this
// container last, and writes two lines in the same transaction:
//
//   - in this load, the portion that completes the requested quantity
//     (gross = remainder + tare, marbete = remainder, no shrink)
//   - in the division load, the surplus (gross = total gross - remainder,
//     marbete = net + Shrink, notes "SE DIVIDE <container>")
func (db *DB) SaveWeighing(ctx context.Context, in WeighingInput) (*WeighingResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	day := db.Today()
	msc := 0
	if schema.IsMSCLot(in.Lot) {
		msc = 1
	}
	sensory := 0
	if in.Sensory {
		sensory = 1
	}

	base := schema.DetailLine{
		ContainerSKU: pointer.ToString(strings.TrimSpace(in.ContainerSKU)),
		SizeSKU:      pointer.ToString(strings.TrimSpace(in.SizeSKU)),
		Lot:          pointer.ToString(strings.TrimSpace(in.Lot)),
		Tank:         pointer.ToString(strings.TrimSpace(in.Tank)),
		Tare:         pointer.ToFloat64(in.Tare),
		ReturnNet:    in.ReturnNet,
		ReturnGross:  in.ReturnGross,
		MSC:          msc,
		Sensory:      sensory,
	}
	if n := strings.TrimSpace(in.Notes); n != "" {
		base.Notes = pointer.ToString(n)
	}

	res := &WeighingResult{}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		generalID, err := db.upsertGeneral(ctx, tx, day, in.Header)
		if err != nil {
			return err
		}
		res.GeneralID = generalID

		loadID, err := db.upsertLoad(ctx, tx, day, generalID, in.LoadNumber, in.RequestedQty)
		if err != nil {
			return err
		}
		res.LoadID = loadID

		if in.Division == nil {
			line := base
			line.GrossWeight = pointer.ToFloat64(in.GrossWeight)
			line.TagWeight = pointer.ToFloat64(in.TagWeight)
			id, err := db.insertDetail(ctx, tx, loadID, line)
			if err != nil {
				return err
			}
			res.LineIDs = []string{id}
			return nil
		}

		existing, err := activeDetailLines(ctx, tx, loadID)
		if err != nil {
			return err
		}
		nets := make([]float64, 0, len(existing)+1)
		for _, l := range existing {
			if l.NetWeight != nil {
				nets = append(nets, *l.NetWeight)
			}
		}
		nets = append(nets, in.GrossWeight-in.Tare)

		result, err := split.Split(in.RequestedQty, nets)
		if err != nil {
			return err
		}
		if !result.Divisible() {
			return fmt.Errorf("%w: %w: surplus %v, container net %v",
				schema.ErrValidation, split.ErrSplitNotPossible, result.Surplus, result.Original)
		}
		res.Split = &result
		if result.NoSplitNeeded {
			line := base
			line.GrossWeight = pointer.ToFloat64(in.GrossWeight)
			line.TagWeight = pointer.ToFloat64(in.TagWeight)
			id, err := db.insertDetail(ctx, tx, loadID, line)
			if err != nil {
				return err
			}
			res.LineIDs = []string{id}
			return nil
		}

		kept := base
		kept.GrossWeight = pointer.ToFloat64(result.Remainder + in.Tare)
		kept.TagWeight = pointer.ToFloat64(result.Remainder)
		keptID, err := db.insertDetail(ctx, tx, loadID, kept)
		if err != nil {
			return err
		}

		newLoadID, err := db.upsertLoad(ctx, tx, day, generalID, in.Division.NewLoadNumber, in.Division.NewRequestedQty)
		if err != nil {
			return err
		}
		movedGross := in.GrossWeight - result.Remainder
		moved := base
		moved.GrossWeight = pointer.ToFloat64(movedGross)
		moved.TagWeight = pointer.ToFloat64(movedGross - in.Tare + in.Shrink)
		moved.Notes = pointer.ToString("SE DIVIDE " + strings.TrimSpace(in.Division.NewContainer))
		movedID, err := db.insertDetail(ctx, tx, newLoadID, moved)
		if err != nil {
			return err
		}

		res.LineIDs = []string{keptID, movedID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
