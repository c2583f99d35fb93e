// internal/app/store/prompts/promptstore.go
package promptstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultListLimit caps ListByTeam when no limit is given.
const DefaultListLimit = 200

var (
	ErrNotFound      = errors.New("prompt not found")
	ErrTitleRequired = errors.New("prompt title is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("prompts")}
}

// EnsureIndexes creates the team listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "title_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_prompt_team_title"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *Store) Create(ctx context.Context, p models.Prompt) (models.Prompt, error) {
	if strings.TrimSpace(p.Title) == "" {
		return models.Prompt{}, ErrTitleRequired
	}
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.TitleCI = text.Fold(p.Title)
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Prompt, error) {
	var p models.Prompt
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Prompt{}, ErrNotFound
	}
	if err != nil {
		return models.Prompt{}, err
	}
	return p, nil
}

// ListByTeam returns a team's prompts ordered by title.
func (s *Store) ListByTeam(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.Prompt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "title_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)
	cur, err := s.c.Find(ctx, bson.M{"team_id": teamID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Prompt
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IncCopyCount records one copy of the prompt.
func (s *Store) IncCopyCount(ctx context.Context, id primitive.ObjectID) error {
	return s.inc(ctx, id, bson.M{"copy_count": 1})
}

// IncCommentCount adjusts the comment counter by delta.
func (s *Store) IncCommentCount(ctx context.Context, id primitive.ObjectID, delta int64) error {
	return s.inc(ctx, id, bson.M{"comment_count": delta})
}

// ApplyRating adjusts the rating aggregates. A new rating passes
// (value, 1); a changed rating passes (new-old, 0).
func (s *Store) ApplyRating(ctx context.Context, id primitive.ObjectID, sumDelta, countDelta int64) error {
	return s.inc(ctx, id, bson.M{"rating_sum": sumDelta, "rating_count": countDelta})
}

func (s *Store) inc(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{
		"$inc": fields,
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
