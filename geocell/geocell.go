package geocell

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	// MinLevel is the coarsest cell resolution (one geohash character,
	// roughly continent sized).
	MinLevel = 1
	// MaxLevel is the finest cell resolution supported by the codec.
	MaxLevel = 12
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidLevel      = errors.New("invalid resolution level")
)

// Coordinate is an ephemeral latitude/longitude pair. It is never persisted
// for matching purposes; it only lives on the call stack of a single update
// or query.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate is a real point on the globe.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return fmt.Errorf("%w: not finite", ErrInvalidCoordinate)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// Point returns the coordinate as an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// Cell is an opaque identifier for a discretized region of space. The codec
// uses base-32 geohash strings, which makes coarsening monotonic: the parent
// of a cell is its identifier with the last character dropped, and every two
// coordinates sharing a cell at level R share all its ancestors at R' < R.
type Cell string

// Encode maps a coordinate to its cell at the given resolution level.
func Encode(c Coordinate, level int) (Cell, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if level < MinLevel || level > MaxLevel {
		return "", fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return Cell(geohash.EncodeWithPrecision(c.Latitude, c.Longitude, uint(level))), nil
}

// Level returns the resolution level of the cell. Higher means smaller.
func (c Cell) Level() int {
	return len(c)
}

// Parent returns the cell's ancestor at the next-coarser resolution level.
// The second return is false when the cell is already at the coarsest level.
func (c Cell) Parent() (Cell, bool) {
	if len(c) <= MinLevel {
		return c, false
	}
	return c[:len(c)-1], true
}

// Ancestor returns the cell's ancestor at the given level. The second return
// is false if the requested level is finer than the cell itself.
func (c Cell) Ancestor(level int) (Cell, bool) {
	if level < MinLevel || level > len(c) {
		return c, false
	}
	return c[:level], true
}

// Contains reports whether other lies within c (c is an ancestor of other,
// or the same cell).
func (c Cell) Contains(other Cell) bool {
	if len(other) < len(c) {
		return false
	}
	return other[:len(c)] == c
}

// Center returns the approximate center of the cell. It is coarse by
// construction and only suitable for density-area calculations, never as a
// stand-in for an occupant's position.
func Center(c Cell) Coordinate {
	lat, lng := geohash.DecodeCenter(string(c))
	return Coordinate{Latitude: lat, Longitude: lng}
}

// Bound returns the bounding region of the cell.
func Bound(c Cell) orb.Bound {
	box := geohash.BoundingBox(string(c))
	return orb.Bound{
		Min: orb.Point{box.MinLng, box.MinLat},
		Max: orb.Point{box.MaxLng, box.MaxLat},
	}
}

// AreaKm2 returns the true geodesic area of the cell in square kilometers.
// This is the area of the cell at its own level, so a coarsened cell reports
// its real (larger) extent.
func AreaKm2(c Cell) float64 {
	if len(c) == 0 {
		return 0
	}
	return geo.Area(Bound(c)) / 1e6
}

// WidthKm returns the approximate east-west extent of the cell in kilometers
// at the cell's own latitude.
func WidthKm(c Cell) float64 {
	if len(c) == 0 {
		return 0
	}
	b := Bound(c)
	return geo.Distance(
		orb.Point{b.Min.Lon(), b.Min.Lat()},
		orb.Point{b.Max.Lon(), b.Min.Lat()},
	) / 1000
}

// StepsForRadiusKm converts a metric radius into a number of neighbor-ring
// steps at the cell's resolution. Always at least one.
func StepsForRadiusKm(c Cell, radiusKm float64) int {
	w := WidthKm(c)
	if w <= 0 || radiusKm <= 0 {
		return 1
	}
	steps := int(math.Ceil(radiusKm / w))
	if steps < 1 {
		steps = 1
	}
	return steps
}

// Neighbors returns the eight cells adjacent to c at the same resolution.
func Neighbors(c Cell) []Cell {
	raw := geohash.Neighbors(string(c))
	out := make([]Cell, 0, len(raw))
	for _, n := range raw {
		out = append(out, Cell(n))
	}
	return out
}

// Rings returns the cells reachable from c within n neighbor steps, grouped
// by ring index: Rings(c, n)[0] is {c}, [1] the adjacent ring, and so on.
// Cells within each ring are sorted for deterministic iteration.
func Rings(c Cell, n int) [][]Cell {
	if n < 0 {
		n = 0
	}
	seen := map[Cell]struct{}{c: {}}
	rings := make([][]Cell, 0, n+1)
	rings = append(rings, []Cell{c})
	frontier := []Cell{c}
	for step := 1; step <= n; step++ {
		var next []Cell
		for _, cell := range frontier {
			for _, nb := range Neighbors(cell) {
				if _, ok := seen[nb]; ok {
					continue
				}
				seen[nb] = struct{}{}
				next = append(next, nb)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		rings = append(rings, next)
		frontier = next
	}
	return rings
}

// Ring returns every cell within n neighbor steps of c, including c itself.
func Ring(c Cell, n int) []Cell {
	var out []Cell
	for _, ring := range Rings(c, n) {
		out = append(out, ring...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
