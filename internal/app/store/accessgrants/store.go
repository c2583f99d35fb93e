// internal/app/store/accessgrants/store.go
package accessgrants

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/promptshelf/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the Mongo collection holding guest access links.
const CollectionName = "guest_access_links"

var (
	// ErrNotFound is returned when no link exists for an id.
	ErrNotFound = errors.New("access grant not found")
	// ErrDuplicate is returned when a link id is already taken.
	ErrDuplicate = errors.New("access grant already exists")
)

// Store manages guest access link records. Records are never deleted here;
// revocation flips status.
type Store struct {
	c *mongo.Collection
}

// New creates a new access grant Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// EnsureIndexes creates indexes for team listings and stats.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Team listing, newest first
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_guestlink_team_created"),
		},
		// Active links per team (list + gauge)
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_guestlink_status_expires"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a new link. The link's ID is its token.
func (s *Store) Create(ctx context.Context, g models.AccessGrant) error {
	_, err := s.c.InsertOne(ctx, g)
	if wafflemongo.IsDup(err) {
		return ErrDuplicate
	}
	return err
}

// Get loads a link by id (token).
func (s *Store) Get(ctx context.Context, id string) (models.AccessGrant, error) {
	var g models.AccessGrant
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.AccessGrant{}, ErrNotFound
	}
	if err != nil {
		return models.AccessGrant{}, err
	}
	return g, nil
}

// RecordAccess bumps the access counter and touches last_accessed.
func (s *Store) RecordAccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"access_count": 1},
			"$set": bson.M{"last_accessed": at},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTeam returns every link for a team, newest first.
func (s *Store) ListByTeam(ctx context.Context, teamID string) ([]models.AccessGrant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"team_id": teamID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AccessGrant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Revoke marks a link revoked. Revoking an already revoked link keeps the
// original revocation time and actor.
func (s *Store) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$ne": models.GrantStatusRevoked}},
		bson.M{"$set": bson.M{
			"status":     models.GrantStatusRevoked,
			"revoked_at": at,
			"revoked_by": revokedBy,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive counts active, unexpired links across all teams.
func (s *Store) CountActive(ctx context.Context, now time.Time) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"status": models.GrantStatusActive,
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": now}},
		},
	})
}
