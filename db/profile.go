package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profileCollection = "profiles"

// Profile represents the schema for the "profiles" collection. It carries
// the non-location attributes of a user the proximity core needs, most
// importantly the declared interests used by the shared-interest filter.
// Positions are never written here: the occupancy index is in-memory only.
type Profile struct {
	UserID     string    `bson:"userId" json:"userId"`
	Interests  []string  `bson:"interests,omitempty" json:"interests,omitempty"`
	CreatedAt  time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastSeenAt time.Time `bson:"lastSeenAt,omitempty" json:"lastSeenAt,omitempty"`
}

// Validate checks if the profile data meets the required constraints.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("userId cannot be empty")
	}
	if len(p.Interests) > 50 {
		return fmt.Errorf("too many interests")
	}
	for _, interest := range p.Interests {
		if interest == "" || len(interest) > 64 {
			return fmt.Errorf("interest must be between 1 and 64 characters")
		}
	}
	return nil
}

// ProfileService provides methods to interact with the "profiles" collection.
type ProfileService struct {
	Collection *mongo.Collection
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *Database) *ProfileService {
	return &ProfileService{
		Collection: db.Database.Collection(profileCollection),
	}
}

// SetInterests upserts the user's profile with the given interest list.
func (s *ProfileService) SetInterests(ctx context.Context, userID string, interests []string) error {
	p := &Profile{UserID: userID, Interests: interests}
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now()
	filter := bson.M{"userId": userID}
	update := bson.M{
		"$set":         bson.M{"interests": interests, "lastSeenAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.Collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// GetProfile retrieves a Profile by user ID.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	filter := bson.M{"userId": userID}
	if err := s.Collection.FindOne(ctx, filter).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Interests returns the user's declared interests. A user without a profile
// has none; that is not an error.
func (s *ProfileService) Interests(ctx context.Context, userID string) ([]string, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile.Interests, nil
}

// TouchLastSeen updates the user's last-seen timestamp.
func (s *ProfileService) TouchLastSeen(ctx context.Context, userID string) error {
	filter := bson.M{"userId": userID}
	update := bson.M{"$set": bson.M{"lastSeenAt": time.Now()}}
	_, err := s.Collection.UpdateOne(ctx, filter, update)
	return err
}

// DeleteProfile deletes a Profile by user ID.
func (s *ProfileService) DeleteProfile(ctx context.Context, userID string) error {
	filter := bson.M{"userId": userID}
	_, err := s.Collection.DeleteOne(ctx, filter)
	return err
}

// CountProfiles returns the total number of profiles.
func (s *ProfileService) CountProfiles(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}
