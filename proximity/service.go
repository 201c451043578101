package proximity

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// ErrMissingUser rejects operations without a caller identity.
var ErrMissingUser = errors.New("missing user id")

// DistanceTier is the coarse categorical proximity of a result. It is
// derived from cell adjacency, never from metric distance, and never stored.
type DistanceTier string

const (
	TierSame DistanceTier = "same"
	TierNear DistanceTier = "near"
	TierFar  DistanceTier = "far"
)

var tierRank = map[DistanceTier]int{TierSame: 0, TierNear: 1, TierFar: 2}

// NearbyResult is the only information ever disclosed about another user's
// position. The cell is always an anonymity-safe cell; there are no
// coordinates anywhere in it.
type NearbyResult struct {
	UserID string       `json:"userId"`
	Tier   DistanceTier `json:"distanceTier"`
	Cell   geocell.Cell `json:"cellId"`
}

// QueryOptions carries the optional filters of a nearby query.
type QueryOptions struct {
	Interests []string
}

// QueryResult is the answer to a nearby query.
type QueryResult struct {
	Results  []NearbyResult
	RadiusKm float64
	Trend    Trend
	Partial  bool
}

// UpdateResult is the answer to a location update. Anonymized reports
// whether the returned cell satisfies the k-anonymity set size; when false
// the cell is the coarsest disclosable ancestor of a low-density area.
type UpdateResult struct {
	Cell       geocell.Cell
	Anonymized bool
}

// ProfileSource looks up a user's declared interests for the shared-interest
// filter. Implementations must be safe for concurrent use.
type ProfileSource interface {
	Interests(ctx context.Context, userID string) ([]string, error)
}

// Service is the proximity query service: the narrow interface the rest of
// the application calls into. It owns the occupancy index, the anonymity
// resolver, the density estimator, the radius controller and the hotspot
// table, and exposes exactly two operations.
type Service struct {
	cfg        *Config
	idx        *OccupancyIndex
	resolver   *Resolver
	estimator  *Estimator
	controller *Controller
	hotspots   *HotspotTable
	profiles   ProfileSource
}

// NewService wires the engine together. profiles and hotspotSource may be
// nil: without profiles the interest filter is skipped, without a hotspot
// source the table stays on its static seed.
func NewService(cfg *Config, profiles ProfileSource, hotspotSource HotspotSource) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx := NewOccupancyIndex(cfg)
	hotspots := NewHotspotTable(cfg.HotspotSeed, hotspotSource, cfg.HotspotRefresh)
	hotspots.Start()
	return &Service{
		cfg:        cfg,
		idx:        idx,
		resolver:   NewResolver(cfg, idx),
		estimator:  NewEstimator(idx),
		controller: NewController(cfg),
		hotspots:   hotspots,
		profiles:   profiles,
	}, nil
}

// Close stops the background loops.
func (s *Service) Close() {
	s.idx.Close()
	s.controller.Close()
	s.hotspots.Close()
}

// Config returns the engine's configuration.
func (s *Service) Config() *Config {
	return s.cfg
}

// Index exposes the occupancy index for wiring and introspection (counts
// only, never positions).
func (s *Service) Index() *OccupancyIndex {
	return s.idx
}

// Hotspots exposes the hotspot table for wiring and introspection.
func (s *Service) Hotspots() *HotspotTable {
	return s.hotspots
}

// EndSession drops every piece of per-user state: the occupancy record and
// the aura state.
func (s *Service) EndSession(userID string) {
	s.idx.Remove(userID)
	s.controller.Forget(userID)
}

// UpdateLocation ingests a fresh coordinate for the user and returns the
// effective anonymized cell they are now discoverable under. The raw
// coordinate never leaves the call stack.
func (s *Service) UpdateLocation(ctx context.Context, userID string, coord geocell.Coordinate) (UpdateResult, error) {
	if userID == "" {
		return UpdateResult{}, ErrMissingUser
	}
	cell, err := s.idx.Upsert(userID, coord)
	if err != nil {
		return UpdateResult{}, err
	}
	eff, err := s.resolver.Resolve(cell)
	if errors.Is(err, ErrLowDensity) {
		// Under-populated area: disclose only the coarse floor ancestor.
		return UpdateResult{Cell: s.resolver.Floor(cell), Anonymized: false}, nil
	}
	return UpdateResult{Cell: eff, Anonymized: true}, nil
}

// QueryNearby answers "who is near this user". It updates the caller's
// occupancy record, feeds the latest density estimate through the radius
// controller, and collects anonymized, tiered results within the resulting
// radius. A query that outlives its deadline returns what it has collected
// so far with Partial set, never an error.
func (s *Service) QueryNearby(ctx context.Context, userID string, coord geocell.Coordinate, opts QueryOptions) (*QueryResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	base, err := s.idx.Upsert(userID, coord)
	if err != nil {
		return nil, err
	}

	eff, rerr := s.resolver.Resolve(base)
	var density float64
	var derr error
	if rerr == nil {
		density, derr = s.estimator.Estimate(eff)
	}
	// A low-density resolution is not an estimation failure: it means the
	// area is effectively empty, which the controller answers by expanding
	// or tunneling.
	st := s.controller.Observe(userID, density, derr)

	seen := map[string]struct{}{userID: {}}
	effCache := map[geocell.Cell]geocell.Cell{}
	results := []NearbyResult{}
	partial := false

	appendUsers := func(users []string, tier DistanceTier, cell geocell.Cell) {
		for _, uid := range users {
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			if !s.matchesInterests(ctx, uid, opts.Interests) {
				continue
			}
			results = append(results, NearbyResult{UserID: uid, Tier: tier, Cell: cell})
		}
	}

	// Same tier: occupants of the caller's own effective cell.
	if rerr == nil {
		appendUsers(s.idx.UsersIn(eff), TierSame, eff)
	}

	// Near and far tiers: ring enumeration at the base resolution out to
	// the current radius.
	steps := geocell.StepsForRadiusKm(base, st.CurrentRadiusKm)
	for ringIdx, ring := range geocell.Rings(base, steps) {
		if ringIdx == 0 {
			continue
		}
		if ctx.Err() != nil {
			partial = true
			break
		}
		tier := TierNear
		if ringIdx > 1 {
			tier = TierFar
		}
		for _, cell := range ring {
			users := s.idx.UsersIn(cell)
			if len(users) == 0 {
				continue
			}
			appendUsers(users, tier, s.disclosableCell(cell, effCache))
		}
	}

	// Tunneling: union in hotspot occupants regardless of geometric
	// distance, always tagged far.
	if st.Trend == TrendTunneling && !partial {
		for _, hotspot := range s.hotspots.Cells() {
			if ctx.Err() != nil {
				partial = true
				break
			}
			appendUsers(s.idx.UsersIn(hotspot), TierFar, hotspot)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if tierRank[results[i].Tier] != tierRank[results[j].Tier] {
			return tierRank[results[i].Tier] < tierRank[results[j].Tier]
		}
		return results[i].UserID < results[j].UserID
	})

	return &QueryResult{
		Results:  results,
		RadiusKm: st.CurrentRadiusKm,
		Trend:    st.Trend,
		Partial:  partial,
	}, nil
}

// disclosableCell maps an occupant's cell to the cell that may be reported
// for it: the cell itself when it satisfies k-anonymity, otherwise its
// anonymity-safe ancestor. Resolutions are cached per query.
func (s *Service) disclosableCell(cell geocell.Cell, cache map[geocell.Cell]geocell.Cell) geocell.Cell {
	if safe, ok := cache[cell]; ok {
		return safe
	}
	safe, err := s.resolver.Resolve(cell)
	if errors.Is(err, ErrLowDensity) {
		safe = s.resolver.Floor(cell)
	}
	cache[cell] = safe
	return safe
}

// matchesInterests applies the optional shared-interest filter. With no
// filter or no profile source every candidate matches. A profile lookup
// failure keeps the candidate rather than silently shrinking the result.
func (s *Service) matchesInterests(ctx context.Context, userID string, wanted []string) bool {
	if len(wanted) == 0 || s.profiles == nil {
		return true
	}
	have, err := s.profiles.Interests(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Str("user", userID).Msg("interest lookup failed, skipping filter")
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
