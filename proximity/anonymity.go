package proximity

import (
	"errors"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// ErrLowDensity signals that a cell could not be coarsened into an
// anonymity set of at least K occupants. It is an internal signal: the query
// service translates it into a wider or tunneling search, it is never
// surfaced to callers as an error.
var ErrLowDensity = errors.New("low density cell")

// LowDensityCell is the sentinel returned together with ErrLowDensity. A
// single occupant of a small cell must never be distinguishable from "zero
// people here", so an under-populated exact cell is never leaked.
const LowDensityCell = geocell.Cell("")

// Resolver enforces the k-anonymity invariant on cell disclosure: every
// effective cell it returns holds at least MinAnonymitySet occupants.
type Resolver struct {
	cfg *Config
	idx *OccupancyIndex
}

// NewResolver builds a resolver reading from the given occupancy index.
func NewResolver(cfg *Config, idx *OccupancyIndex) *Resolver {
	return &Resolver{cfg: cfg, idx: idx}
}

// floorLevel is the coarsest level the resolver may climb to for a cell.
func (r *Resolver) floorLevel(cell geocell.Cell) int {
	floor := cell.Level() - r.cfg.MaxCoarsening
	if floor < geocell.MinLevel {
		floor = geocell.MinLevel
	}
	return floor
}

// Resolve returns the effective cell to use for all anonymized lookups on
// behalf of cell: the cell itself when it holds at least K occupants,
// otherwise the nearest ancestor that does. When even the coarsest allowed
// ancestor stays below K it returns LowDensityCell and ErrLowDensity.
// Read-only, no side effects.
func (r *Resolver) Resolve(cell geocell.Cell) (geocell.Cell, error) {
	if len(cell) == 0 {
		return LowDensityCell, ErrLowDensity
	}
	floor := r.floorLevel(cell)
	cur := cell
	for {
		if r.idx.CountIn(cur) >= r.cfg.MinAnonymitySet {
			return cur, nil
		}
		if cur.Level() <= floor {
			return LowDensityCell, ErrLowDensity
		}
		parent, ok := cur.Parent()
		if !ok {
			return LowDensityCell, ErrLowDensity
		}
		cur = parent
	}
}

// Floor returns the coarsest ancestor the resolver would ever disclose for
// the cell. The query service reports it when resolution fails, so a sparse
// area is only ever described at the safe coarse level.
func (r *Resolver) Floor(cell geocell.Cell) geocell.Cell {
	ancestor, ok := cell.Ancestor(r.floorLevel(cell))
	if !ok {
		return cell
	}
	return ancestor
}
