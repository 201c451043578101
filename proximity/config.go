package proximity

import (
	"fmt"
	"time"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// Config carries every externally tunable constant of the proximity core.
// All values have working defaults; main binds them to flags and environment
// variables.
type Config struct {
	// Resolution is the cell level occupancy records are indexed at.
	Resolution int

	// MinAnonymitySet is K: the minimum number of distinct occupants a
	// cell needs before its occupancy may be disclosed.
	MinAnonymitySet int

	// MaxCoarsening bounds how many levels the anonymity resolver may
	// climb before giving up and returning the low-density sentinel.
	MaxCoarsening int

	// StalenessWindow is how long an occupancy record stays valid without
	// a fresh location update.
	StalenessWindow time.Duration

	// SweepInterval is the cadence of the background eviction sweeps.
	SweepInterval time.Duration

	// MinRadiusKm and MaxRadiusKm bound the elastic search radius.
	MinRadiusKm float64
	MaxRadiusKm float64

	// DensityLow and DensityHigh delimit the target density band in
	// users per square kilometer.
	DensityLow  float64
	DensityHigh float64

	// GrowFactor and ShrinkFactor scale the target radius when density
	// falls outside the band.
	GrowFactor   float64
	ShrinkFactor float64

	// SmoothingFactor moves the current radius toward the target each
	// observation. Must be in (0, 1].
	SmoothingFactor float64

	// TunnelAfterZeroQueries is how many consecutive zero-density
	// observations at max radius trigger hotspot tunneling.
	TunnelAfterZeroQueries int

	// AuraIdleTimeout expires a user's radius state after inactivity.
	AuraIdleTimeout time.Duration

	// QueryTimeout bounds a single nearby query. When exceeded the
	// service returns whatever it has collected, flagged partial.
	QueryTimeout time.Duration

	// Shards is the shard count for the occupancy index and aura store.
	Shards int

	// HotspotRefresh is the reload cadence of the hotspot table. Zero
	// disables periodic reloads.
	HotspotRefresh time.Duration

	// HotspotSeed is the static hotspot cell list used until (and unless)
	// a versioned set is published through the hotspot source.
	HotspotSeed []geocell.Cell
}

// DefaultConfig returns the tuning used in production unless overridden.
func DefaultConfig() *Config {
	return &Config{
		Resolution:             6,
		MinAnonymitySet:        3,
		MaxCoarsening:          3,
		StalenessWindow:        5 * time.Minute,
		SweepInterval:          time.Minute,
		MinRadiusKm:            0.5,
		MaxRadiusKm:            50,
		DensityLow:             2,
		DensityHigh:            8,
		GrowFactor:             1.5,
		ShrinkFactor:           0.6,
		SmoothingFactor:        0.35,
		TunnelAfterZeroQueries: 3,
		AuraIdleTimeout:        30 * time.Minute,
		QueryTimeout:           200 * time.Millisecond,
		Shards:                 32,
		HotspotRefresh:         5 * time.Minute,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Resolution < geocell.MinLevel || c.Resolution > geocell.MaxLevel {
		return fmt.Errorf("resolution must be between %d and %d", geocell.MinLevel, geocell.MaxLevel)
	}
	if c.MinAnonymitySet < 1 {
		return fmt.Errorf("minAnonymitySet must be at least 1")
	}
	if c.MaxCoarsening < 0 {
		return fmt.Errorf("maxCoarsening cannot be negative")
	}
	if c.StalenessWindow <= 0 {
		return fmt.Errorf("stalenessWindow must be positive")
	}
	if c.MinRadiusKm <= 0 || c.MaxRadiusKm < c.MinRadiusKm {
		return fmt.Errorf("radius bounds must satisfy 0 < min <= max")
	}
	if c.DensityLow < 0 || c.DensityHigh < c.DensityLow {
		return fmt.Errorf("density band must satisfy 0 <= low <= high")
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("smoothingFactor must be in (0, 1]")
	}
	if c.GrowFactor <= 1 {
		return fmt.Errorf("growFactor must exceed 1")
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		return fmt.Errorf("shrinkFactor must be in (0, 1)")
	}
	if c.TunnelAfterZeroQueries < 1 {
		return fmt.Errorf("tunnelAfterZeroQueries must be at least 1")
	}
	if c.Shards < 1 {
		return fmt.Errorf("shards must be at least 1")
	}
	return nil
}
