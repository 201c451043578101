package proximity

import (
	"errors"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// ErrInvalidCell rejects density estimation over a cell that does not
// describe a region (the empty sentinel).
var ErrInvalidCell = errors.New("invalid cell")

// Estimator computes the "magic density" feedback signal: non-stale users
// per square kilometer within a cell.
type Estimator struct {
	idx *OccupancyIndex
}

// NewEstimator builds an estimator reading from the given occupancy index.
func NewEstimator(idx *OccupancyIndex) *Estimator {
	return &Estimator{idx: idx}
}

// Estimate returns the occupant density of the cell in users per km². The
// area is the true geodesic area of the cell at its own level, so a
// coarsened cell is measured over its real, larger extent. Zero occupants
// or a degenerate area yield density 0, never a division by zero.
func (e *Estimator) Estimate(cell geocell.Cell) (float64, error) {
	if len(cell) == 0 {
		return 0, ErrInvalidCell
	}
	n := e.idx.CountIn(cell)
	if n == 0 {
		return 0, nil
	}
	area := geocell.AreaKm2(cell)
	if area <= 0 {
		return 0, nil
	}
	return float64(n) / area, nil
}
