// Package split computes how the last loaded container is divided when the
// containers of a load weigh more than the quantity requested.
//
// Containers are consumed in loading order, so only the last one is ever
// divided. The portion that completes the requested quantity moves to a new
// container that goes to production; the surplus stays in the original,
// now lighter, container in storage.
//
// Example: nets [500, 500, 1000] against a request of 1700 give a total of
// 2000, a surplus of 300 and a remainder of 700. The new container carries
// 700 to production and the original keeps 300 in storage.
package split

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientQuantity is returned when the containers weigh less
	// than the requested quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity available")

	// ErrInvalidInput is returned for negative quantities or weights.
	ErrInvalidInput = errors.New("invalid split input")

	// ErrSplitNotPossible marks a result whose surplus is not smaller than
	// the last container. Split still reports such results; writers that
	// turn a result into physical containers reject them with this error.
	ErrSplitNotPossible = errors.New("surplus exceeds the last container")
)

// InsufficientMessage is the operator-facing text for ErrInsufficientQuantity.
const InsufficientMessage = "No hay suficiente cantidad disponible"

// NoSplitMessage is reported when the containers match the request exactly.
const NoSplitMessage = "No es necesario dividir ninguna tina"

// RoutingPolicy describes where each portion goes.
const RoutingPolicy = "Nueva tina siempre se va a producción"

// tolerance absorbs float noise when comparing summed weights.
const tolerance = 1e-6

// Result describes a container division.
type Result struct {
	// NoSplitNeeded is set when the containers match the request exactly.
	// Only RequestedQty, Total and ContainersUsed are meaningful then.
	NoSplitNeeded bool `json:"-"`

	RequestedQty   float64 `json:"cantidad_solicitada"`
	Total          float64 `json:"total_disponible"`
	Surplus        float64 `json:"excedente"`
	Original       float64 `json:"tina_original"`
	Remainder      float64 `json:"remanente_en_tina_original"`
	ToProduction   float64 `json:"tina_a_produccion"`
	ToStorage      float64 `json:"tina_a_almacen"`
	Recommendation string  `json:"operacion_recomendada"`
	ContainersUsed int     `json:"tinas_utilizadas"`
}

// Divisible reports whether the last container can physically hold the
// remainder, that is whether the surplus is smaller than the container.
func (r Result) Divisible() bool {
	return r.NoSplitNeeded || r.Remainder > tolerance
}

// Split divides the last of nets so the load delivers exactly requestedQty.
//
// nets are container net weights in loading order. Once the total exceeds
// the request a result is always returned, even when the surplus covers the
// whole last container: the remainder is then zero or negative and
// Divisible reports false. Split has no side effects.
func Split(requestedQty float64, nets []float64) (Result, error) {
	if requestedQty < 0 || math.IsNaN(requestedQty) || math.IsInf(requestedQty, 0) {
		return Result{}, fmt.Errorf("%w: requested quantity %v", ErrInvalidInput, requestedQty)
	}

	var total float64
	for i, n := range nets {
		if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return Result{}, fmt.Errorf("%w: container %d weighs %v", ErrInvalidInput, i+1, n)
		}
		total += n
	}

	switch {
	case total < requestedQty-tolerance:
		return Result{}, ErrInsufficientQuantity
	case math.Abs(total-requestedQty) <= tolerance:
		return Result{
			NoSplitNeeded:  true,
			RequestedQty:   requestedQty,
			Total:          total,
			ContainersUsed: len(nets),
		}, nil
	}

	last := nets[len(nets)-1]
	surplus := total - requestedQty
	remainder := last - surplus
	if math.Abs(remainder) <= tolerance {
		remainder = 0
	}

	return Result{
		RequestedQty:   requestedQty,
		Total:          total,
		Surplus:        surplus,
		Original:       last,
		Remainder:      remainder,
		ToProduction:   remainder,
		ToStorage:      surplus,
		Recommendation: RoutingPolicy,
		ContainersUsed: len(nets),
	}, nil
}
