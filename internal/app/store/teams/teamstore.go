// internal/app/store/teams/teamstore.go
package teamstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound          = errors.New("team not found")
	ErrDuplicateTeamName = errors.New("a team with this name already exists")
	ErrNameRequired      = errors.New("team name is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("teams")}
}

// EnsureIndexes creates the unique name index and the member lookup index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_team_name_ci"),
		},
		{
			Keys:    bson.D{{Key: "members.user_id", Value: 1}},
			Options: options.Index().SetName("idx_team_members_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a team with owner as its first member.
func (s *Store) Create(ctx context.Context, name string, owner models.TeamMember) (models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Team{}, ErrNameRequired
	}
	now := time.Now().UTC()
	owner.Role = models.TeamRoleOwner
	t := models.Team{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Members:   []models.TeamMember{owner},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, t); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Team{}, ErrDuplicateTeamName
		}
		return models.Team{}, err
	}
	return t, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Team, error) {
	var t models.Team
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, ErrNotFound
	}
	if err != nil {
		return models.Team{}, err
	}
	return t, nil
}

// GetByHex is GetByID for a hex id; a malformed id reports ErrNotFound.
func (s *Store) GetByHex(ctx context.Context, hex string) (models.Team, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return models.Team{}, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// AddMember adds or updates a member's role.
func (s *Store) AddMember(ctx context.Context, teamID primitive.ObjectID, m models.TeamMember) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": teamID, "members.user_id": m.UserID},
		bson.M{"$set": bson.M{"members.$.role": m.Role, "members.$.email": m.Email, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	res, err = s.c.UpdateOne(ctx,
		bson.M{"_id": teamID},
		bson.M{"$push": bson.M{"members": m}, "$set": bson.M{"updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns the teams userID belongs to, by name.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]models.Team, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"members.user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Team
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
