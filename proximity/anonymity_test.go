package proximity

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

func TestResolveSatisfiedCell(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	cfg.MinAnonymitySet = 3
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	var cell geocell.Cell
	for i := 0; i < 3; i++ {
		var err error
		cell, err = idx.Upsert(fmt.Sprintf("u%d", i), testCoordA)
		c.Assert(err, qt.IsNil)
	}

	eff, err := resolver.Resolve(cell)
	c.Assert(err, qt.IsNil)
	c.Assert(eff, qt.Equals, cell)
}

func TestResolveCoarsens(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	cfg.MinAnonymitySet = 3
	cfg.MaxCoarsening = 2
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	cell, err := idx.Upsert("alone", testCoordA)
	c.Assert(err, qt.IsNil)

	// Two more users in a sibling cell: the parent holds three.
	sibling := siblingOf(cell)
	for i := 0; i < 2; i++ {
		_, err := idx.Upsert(fmt.Sprintf("s%d", i), coordIn(sibling))
		c.Assert(err, qt.IsNil)
	}

	parent, _ := cell.Parent()
	eff, err := resolver.Resolve(cell)
	c.Assert(err, qt.IsNil)
	c.Assert(eff, qt.Equals, parent)
	c.Assert(idx.CountIn(eff) >= cfg.MinAnonymitySet, qt.IsTrue)
}

func TestResolveLowDensitySentinel(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	cfg.MinAnonymitySet = 3
	cfg.MaxCoarsening = 1
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	cell, err := idx.Upsert("alone", testCoordA)
	c.Assert(err, qt.IsNil)

	// A single occupant must never be distinguishable from zero: the
	// exact cell is never returned.
	eff, err := resolver.Resolve(cell)
	c.Assert(err, qt.ErrorIs, ErrLowDensity)
	c.Assert(eff, qt.Equals, LowDensityCell)
}

func TestResolveEmptySentinelInput(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	eff, err := resolver.Resolve(LowDensityCell)
	c.Assert(err, qt.ErrorIs, ErrLowDensity)
	c.Assert(eff, qt.Equals, LowDensityCell)
}

// The k-anonymity invariant: any resolved cell holds at least K occupants,
// or the sentinel was returned. Never anything in between.
func TestKAnonymityInvariant(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	cfg.MinAnonymitySet = 4
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	// Scatter users at several nearby spots, uneven counts per cell.
	spots := []geocell.Coordinate{
		testCoordA,
		{Latitude: testCoordA.Latitude + 0.01, Longitude: testCoordA.Longitude},
		{Latitude: testCoordA.Latitude, Longitude: testCoordA.Longitude + 0.02},
		{Latitude: testCoordA.Latitude - 0.03, Longitude: testCoordA.Longitude - 0.01},
	}
	uid := 0
	for i, spot := range spots {
		for j := 0; j <= i; j++ {
			_, err := idx.Upsert(fmt.Sprintf("u%d", uid), spot)
			c.Assert(err, qt.IsNil)
			uid++
		}
	}

	for _, spot := range spots {
		cell, err := geocell.Encode(spot, cfg.Resolution)
		c.Assert(err, qt.IsNil)
		eff, err := resolver.Resolve(cell)
		if err != nil {
			c.Assert(err, qt.ErrorIs, ErrLowDensity)
			c.Assert(eff, qt.Equals, LowDensityCell)
			continue
		}
		c.Assert(idx.CountIn(eff) >= cfg.MinAnonymitySet, qt.IsTrue,
			qt.Commentf("resolved cell %s has %d occupants, below K", eff, idx.CountIn(eff)))
	}
}

func TestFloor(t *testing.T) {
	c := qt.New(t)
	cfg := testConfig()
	cfg.MaxCoarsening = 3
	idx := NewOccupancyIndex(cfg)
	defer idx.Close()
	resolver := NewResolver(cfg, idx)

	cell, err := geocell.Encode(testCoordA, cfg.Resolution)
	c.Assert(err, qt.IsNil)

	floor := resolver.Floor(cell)
	c.Assert(floor.Level(), qt.Equals, cfg.Resolution-cfg.MaxCoarsening)
	c.Assert(floor.Contains(cell), qt.IsTrue)
}
