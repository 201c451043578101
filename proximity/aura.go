package proximity

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Trend is the current direction of a user's search radius.
type Trend string

const (
	TrendContracting Trend = "contracting"
	TrendStable      Trend = "stable"
	TrendExpanding   Trend = "expanding"
	TrendTunneling   Trend = "tunneling"
)

// radiusEpsilon is the slack used when checking whether the radius has
// effectively reached its maximum.
const radiusEpsilon = 1e-3

// AuraState is the per-user radius state. It is owned exclusively by the
// Controller; callers only ever see copies.
type AuraState struct {
	CurrentRadiusKm float64   `json:"currentRadiusKm"`
	TargetRadiusKm  float64   `json:"targetRadiusKm"`
	Density         float64   `json:"density"`
	Trend           Trend     `json:"trend"`
	ZeroStreak      int       `json:"-"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
}

type auraShard struct {
	mu     sync.Mutex
	states map[string]*AuraState
}

// Controller is the elastic radius control loop. Each observation compares
// the latest density estimate against the target band and moves the user's
// radius toward a new target with exponential smoothing, so consecutive
// queries never see the radius snap.
type Controller struct {
	cfg    *Config
	shards []*auraShard

	nowFn func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewController builds the controller and starts its idle-state expiry
// sweep. Call Close to stop it.
func NewController(cfg *Config) *Controller {
	c := &Controller{
		cfg:    cfg,
		shards: make([]*auraShard, cfg.Shards),
		nowFn:  time.Now,
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		c.shards[i] = &auraShard{states: make(map[string]*AuraState)}
	}
	if cfg.SweepInterval > 0 && cfg.AuraIdleTimeout > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the expiry sweep.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) shardFor(userID string) *auraShard {
	return c.shards[shardFor(userID, len(c.shards))]
}

func (c *Controller) clamp(r float64) float64 {
	return math.Min(c.cfg.MaxRadiusKm, math.Max(c.cfg.MinRadiusKm, r))
}

// Observe feeds the latest density estimate into the user's radius state
// and returns the updated state. A first observation lazily initializes the
// state at the minimum radius. When the estimate failed (densityErr set)
// the previous radius is held unchanged: resetting to a default could
// expose the user's area differently than intended.
func (c *Controller) Observe(userID string, density float64, densityErr error) AuraState {
	shard := c.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := c.nowFn()
	st, ok := shard.states[userID]
	if !ok {
		st = &AuraState{
			CurrentRadiusKm: c.cfg.MinRadiusKm,
			TargetRadiusKm:  c.cfg.MinRadiusKm,
			Trend:           TrendStable,
		}
		shard.states[userID] = st
	}

	if densityErr != nil {
		log.Warn().Err(densityErr).Str("user", userID).Msg("density estimation failed, holding radius")
		st.LastUpdatedAt = now
		return *st
	}

	st.Density = density
	switch {
	case density > c.cfg.DensityHigh:
		st.TargetRadiusKm = math.Max(c.cfg.MinRadiusKm, st.CurrentRadiusKm*c.cfg.ShrinkFactor)
		st.Trend = TrendContracting
		st.ZeroStreak = 0
	case density < c.cfg.DensityLow:
		st.TargetRadiusKm = math.Min(c.cfg.MaxRadiusKm, st.CurrentRadiusKm*c.cfg.GrowFactor)
		if density == 0 && st.CurrentRadiusKm >= c.cfg.MaxRadiusKm-radiusEpsilon {
			// Nobody reachable even at full expansion: count the streak
			// and fall back to hotspot tunneling instead of growing the
			// radius past its bound.
			st.ZeroStreak++
			st.TargetRadiusKm = c.cfg.MaxRadiusKm
			if st.ZeroStreak >= c.cfg.TunnelAfterZeroQueries {
				st.Trend = TrendTunneling
			} else {
				st.Trend = TrendExpanding
			}
		} else {
			st.ZeroStreak = 0
			st.Trend = TrendExpanding
		}
	default:
		st.TargetRadiusKm = st.CurrentRadiusKm
		st.Trend = TrendStable
		st.ZeroStreak = 0
	}

	st.CurrentRadiusKm += (st.TargetRadiusKm - st.CurrentRadiusKm) * c.cfg.SmoothingFactor
	st.CurrentRadiusKm = c.clamp(st.CurrentRadiusKm)
	st.LastUpdatedAt = now
	return *st
}

// State returns a copy of the user's current aura state, if one exists.
func (c *Controller) State(userID string) (AuraState, bool) {
	shard := c.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	st, ok := shard.states[userID]
	if !ok {
		return AuraState{}, false
	}
	return *st, true
}

// Forget drops the user's aura state, for explicit session teardown.
func (c *Controller) Forget(userID string) {
	shard := c.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.states, userID)
}

func (c *Controller) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep expires aura states idle for longer than AuraIdleTimeout, one shard
// lock at a time.
func (c *Controller) sweep() {
	now := c.nowFn()
	for _, shard := range c.shards {
		shard.mu.Lock()
		for userID, st := range shard.states {
			if now.Sub(st.LastUpdatedAt) > c.cfg.AuraIdleTimeout {
				delete(shard.states, userID)
			}
		}
		shard.mu.Unlock()
	}
}
