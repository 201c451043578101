package proximity

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// cellShard holds the cell -> occupant buckets for a slice of the key space.
// Each occupant entry carries its last-seen timestamp so stale records can be
// filtered lazily on read and evicted by the background sweep.
type cellShard struct {
	mu    sync.RWMutex
	cells map[geocell.Cell]map[string]time.Time
}

// userRecord is the reverse mapping entry: where a user is currently indexed.
type userRecord struct {
	cell     geocell.Cell
	lastSeen time.Time
}

type userShard struct {
	mu    sync.Mutex
	users map[string]userRecord
}

// OccupancyIndex is the live mapping of cell to present user IDs. It is the
// only shared mutable state in the core. It owns the occupancy records
// exclusively and never stores a raw coordinate: positions are discretized
// to cells on the way in.
type OccupancyIndex struct {
	cfg        *Config
	cellShards []*cellShard
	userShards []*userShard

	nowFn func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewOccupancyIndex builds the index and starts its background staleness
// sweep. Call Close to stop it.
func NewOccupancyIndex(cfg *Config) *OccupancyIndex {
	idx := &OccupancyIndex{
		cfg:        cfg,
		cellShards: make([]*cellShard, cfg.Shards),
		userShards: make([]*userShard, cfg.Shards),
		nowFn:      time.Now,
		stop:       make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		idx.cellShards[i] = &cellShard{cells: make(map[geocell.Cell]map[string]time.Time)}
		idx.userShards[i] = &userShard{users: make(map[string]userRecord)}
	}
	if cfg.SweepInterval > 0 {
		go idx.sweepLoop()
	}
	return idx
}

// Close stops the background sweep.
func (idx *OccupancyIndex) Close() {
	idx.stopOnce.Do(func() { close(idx.stop) })
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (idx *OccupancyIndex) cellShardFor(cell geocell.Cell) *cellShard {
	return idx.cellShards[shardFor(string(cell), len(idx.cellShards))]
}

func (idx *OccupancyIndex) userShardFor(userID string) *userShard {
	return idx.userShards[shardFor(userID, len(idx.userShards))]
}

// Upsert replaces the user's occupancy record with one derived from the
// given coordinate. The previous record is removed first, so no concurrent
// reader ever observes the user under two cells at once. Returns the cell
// the user is now indexed at.
func (idx *OccupancyIndex) Upsert(userID string, coord geocell.Coordinate) (geocell.Cell, error) {
	cell, err := geocell.Encode(coord, idx.cfg.Resolution)
	if err != nil {
		return "", err
	}
	now := idx.nowFn()

	us := idx.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	prev, ok := us.users[userID]
	if ok && prev.cell != cell {
		idx.removeFromCell(prev.cell, userID)
	}
	idx.addToCell(cell, userID, now)
	us.users[userID] = userRecord{cell: cell, lastSeen: now}
	return cell, nil
}

// Remove drops the user's occupancy record, if any.
func (idx *OccupancyIndex) Remove(userID string) {
	us := idx.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	rec, ok := us.users[userID]
	if !ok {
		return
	}
	idx.removeFromCell(rec.cell, userID)
	delete(us.users, userID)
}

func (idx *OccupancyIndex) addToCell(cell geocell.Cell, userID string, now time.Time) {
	cs := idx.cellShardFor(cell)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	bucket, ok := cs.cells[cell]
	if !ok {
		bucket = make(map[string]time.Time)
		cs.cells[cell] = bucket
	}
	bucket[userID] = now
}

func (idx *OccupancyIndex) removeFromCell(cell geocell.Cell, userID string) {
	cs := idx.cellShardFor(cell)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if bucket, ok := cs.cells[cell]; ok {
		delete(bucket, userID)
		if len(bucket) == 0 {
			delete(cs.cells, cell)
		}
	}
}

func (idx *OccupancyIndex) fresh(lastSeen, now time.Time) bool {
	return now.Sub(lastSeen) <= idx.cfg.StalenessWindow
}

// UsersIn returns the IDs of all non-stale users currently indexed within
// the cell. Cells at the index resolution are exact bucket lookups; coarser
// cells aggregate every bucket they contain. The result is sorted for
// deterministic iteration.
func (idx *OccupancyIndex) UsersIn(cell geocell.Cell) []string {
	if len(cell) == 0 {
		return nil
	}
	now := idx.nowFn()
	var out []string
	if cell.Level() >= idx.cfg.Resolution {
		cs := idx.cellShardFor(cell)
		cs.mu.RLock()
		for userID, seen := range cs.cells[cell] {
			if idx.fresh(seen, now) {
				out = append(out, userID)
			}
		}
		cs.mu.RUnlock()
	} else {
		prefix := string(cell)
		for _, cs := range idx.cellShards {
			cs.mu.RLock()
			for bucketCell, bucket := range cs.cells {
				if !strings.HasPrefix(string(bucketCell), prefix) {
					continue
				}
				for userID, seen := range bucket {
					if idx.fresh(seen, now) {
						out = append(out, userID)
					}
				}
			}
			cs.mu.RUnlock()
		}
	}
	sort.Strings(out)
	return out
}

// CountIn returns the number of non-stale distinct users within the cell.
func (idx *OccupancyIndex) CountIn(cell geocell.Cell) int {
	return len(idx.UsersIn(cell))
}

// CountNear returns the number of non-stale users within the given ring
// radius (in cells) around the cell, the cell itself included.
func (idx *OccupancyIndex) CountNear(cell geocell.Cell, ring int) int {
	total := 0
	for _, c := range geocell.Ring(cell, ring) {
		total += idx.CountIn(c)
	}
	return total
}

// CellFor returns the cell the user is currently indexed at, if any.
func (idx *OccupancyIndex) CellFor(userID string) (geocell.Cell, bool) {
	us := idx.userShardFor(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	rec, ok := us.users[userID]
	if !ok || !idx.fresh(rec.lastSeen, idx.nowFn()) {
		return "", false
	}
	return rec.cell, true
}

func (idx *OccupancyIndex) sweepLoop() {
	ticker := time.NewTicker(idx.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-idx.stop:
			return
		case <-ticker.C:
			idx.sweep()
		}
	}
}

// sweep evicts stale occupancy records. It locks one shard at a time so
// query traffic is never blocked behind a full-index scan.
func (idx *OccupancyIndex) sweep() {
	now := idx.nowFn()
	evicted := 0
	for _, cs := range idx.cellShards {
		cs.mu.Lock()
		for cell, bucket := range cs.cells {
			for userID, seen := range bucket {
				if !idx.fresh(seen, now) {
					delete(bucket, userID)
					evicted++
				}
			}
			if len(bucket) == 0 {
				delete(cs.cells, cell)
			}
		}
		cs.mu.Unlock()
	}
	for _, us := range idx.userShards {
		us.mu.Lock()
		for userID, rec := range us.users {
			if !idx.fresh(rec.lastSeen, now) {
				delete(us.users, userID)
			}
		}
		us.mu.Unlock()
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("occupancy sweep evicted stale records")
	}
}
