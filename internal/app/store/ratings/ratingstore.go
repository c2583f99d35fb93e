// internal/app/store/ratings/ratingstore.go
package ratingstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/promptshelf/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrOutOfRange = errors.New("rating must be between 1 and 5")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ratings")}
}

// EnsureIndexes enforces one rating per rater per prompt.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "prompt_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_rating_prompt_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Upsert stores r as the rater's rating for the prompt and returns the value
// it replaced, or 0 if this is the rater's first rating.
func (s *Store) Upsert(ctx context.Context, r models.Rating) (previous int, err error) {
	if r.Value < models.MinRating || r.Value > models.MaxRating {
		return 0, ErrOutOfRange
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	filter := bson.M{"prompt_id": r.PromptID, "user_id": r.UserID}
	update := bson.M{
		"$set": bson.M{
			"value":      r.Value,
			"updated_at": r.UpdatedAt,
			"is_guest":   r.IsGuest,
		},
		"$setOnInsert": bson.M{
			"team_id":     r.TeamID,
			"guest_token": r.GuestToken,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var old models.Rating
	err = s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&old)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return old.Value, nil
}
