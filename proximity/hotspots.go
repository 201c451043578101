package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

// HotspotSource provides the latest published hotspot set: a versioned list
// of globally known high-occupancy cells used as tunneling candidates.
type HotspotSource interface {
	Latest(ctx context.Context) (version int64, cells []geocell.Cell, err error)
}

// HotspotTable is the live, reloadable hotspot configuration. It starts
// from a static seed list and refreshes from its source on a fixed cadence,
// so the hotspot set can change without redeploying the radius logic.
type HotspotTable struct {
	mu      sync.RWMutex
	version int64
	cells   []geocell.Cell

	source  HotspotSource
	refresh time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHotspotTable builds the table from the seed list. A nil source leaves
// the table static. Call Start to begin periodic reloads and Close to stop.
func NewHotspotTable(seed []geocell.Cell, source HotspotSource, refresh time.Duration) *HotspotTable {
	cells := make([]geocell.Cell, len(seed))
	copy(cells, seed)
	return &HotspotTable{
		cells:   cells,
		source:  source,
		refresh: refresh,
		stop:    make(chan struct{}),
	}
}

// Cells returns a copy of the current hotspot cell list.
func (t *HotspotTable) Cells() []geocell.Cell {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]geocell.Cell, len(t.cells))
	copy(out, t.cells)
	return out
}

// Version returns the version of the currently loaded set. The static seed
// is version 0.
func (t *HotspotTable) Version() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Reload pulls the latest set from the source and swaps it in when its
// version is newer than the loaded one.
func (t *HotspotTable) Reload(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	version, cells, err := t.source.Latest(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if version <= t.version {
		return nil
	}
	t.version = version
	t.cells = cells
	log.Info().Int64("version", version).Int("cells", len(cells)).Msg("hotspot table reloaded")
	return nil
}

// Start launches the periodic reload loop. It is a no-op without a source
// or with a zero refresh interval.
func (t *HotspotTable) Start() {
	if t.source == nil || t.refresh <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(t.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := t.Reload(ctx); err != nil {
					log.Warn().Err(err).Msg("hotspot reload failed, keeping previous set")
				}
				cancel()
			}
		}
	}()
}

// Close stops the reload loop.
func (t *HotspotTable) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}
