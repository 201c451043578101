package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitializeDatabase ensures collections and indexes are ready for use.
func InitializeDatabase(db *Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return createIndexes(db, ctx)
}

// createIndexes creates all required indexes for collections.
func createIndexes(db *Database, ctx context.Context) error {
	// Profile collection: one document per user.
	profileColl := db.Database.Collection(profileCollection)
	_, err := profileColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "interests", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	// Hotspot collection: versioned sets, newest wins.
	hotspotColl := db.Database.Collection(hotspotCollection)
	_, err = hotspotColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}
