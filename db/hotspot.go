package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yunghundse/synclulu--sub007/geocell"
)

const hotspotCollection = "hotspots"

// HotspotSet is one published version of the hotspot configuration: the
// globally known high-occupancy cells used as tunneling candidates. Sets are
// append-only; readers always take the highest version.
type HotspotSet struct {
	Version   int64     `bson:"version" json:"version"`
	Cells     []string  `bson:"cells" json:"cells"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HotspotService provides methods to interact with the "hotspots" collection.
type HotspotService struct {
	Collection *mongo.Collection
}

// NewHotspotService creates a new HotspotService.
func NewHotspotService(db *Database) *HotspotService {
	return &HotspotService{
		Collection: db.Database.Collection(hotspotCollection),
	}
}

// Publish appends a new hotspot set one version above the latest and
// returns the version it was published as. The unique index on version
// rejects concurrent publishers; callers may retry.
func (s *HotspotService) Publish(ctx context.Context, cells []geocell.Cell) (int64, error) {
	latest, _, err := s.Latest(ctx)
	if err != nil {
		return 0, err
	}
	set := HotspotSet{
		Version:   latest + 1,
		Cells:     make([]string, 0, len(cells)),
		UpdatedAt: time.Now(),
	}
	for _, c := range cells {
		set.Cells = append(set.Cells, string(c))
	}
	if _, err := s.Collection.InsertOne(ctx, set); err != nil {
		return 0, err
	}
	return set.Version, nil
}

// Latest returns the newest published hotspot set. With nothing published
// yet it returns version 0 and no cells, which leaves the engine on its
// static seed list. Implements the hotspot source consumed by the engine's
// reloadable table.
func (s *HotspotService) Latest(ctx context.Context) (int64, []geocell.Cell, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var set HotspotSet
	err := s.Collection.FindOne(ctx, bson.M{}, opts).Decode(&set)
	if err == mongo.ErrNoDocuments {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	cells := make([]geocell.Cell, 0, len(set.Cells))
	for _, c := range set.Cells {
		cells = append(cells, geocell.Cell(c))
	}
	return set.Version, cells, nil
}
