package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateTeam creates a team owned by ownerID.
func (f *Fixtures) CreateTeam(ctx context.Context, name, ownerID string) models.Team {
	f.t.Helper()

	now := time.Now().UTC()
	team := models.Team{
		ID:     primitive.NewObjectID(),
		Name:   name,
		NameCI: text.Fold(name),
		Members: []models.TeamMember{
			{UserID: ownerID, Email: ownerID + "@test.com", Role: models.TeamRoleOwner},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("teams").InsertOne(ctx, team); err != nil {
		f.t.Fatalf("failed to create team: %v", err)
	}
	return team
}

// CreatePrompt creates a prompt in the given team.
func (f *Fixtures) CreatePrompt(ctx context.Context, teamID primitive.ObjectID, title string) models.Prompt {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Prompt{
		ID:        primitive.NewObjectID(),
		TeamID:    teamID,
		Title:     title,
		TitleCI:   text.Fold(title),
		Body:      "Body of " + title,
		CreatedBy: "fixture",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("prompts").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create prompt: %v", err)
	}
	return p
}

// CreateAccessGrant creates an active guest link for the team that expires
// after ttl. A zero ttl creates a link with no expiry.
func (f *Fixtures) CreateAccessGrant(ctx context.Context, team models.Team, ttl time.Duration) models.AccessGrant {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.AccessGrant{
		ID:          uuid.NewString(),
		TeamID:      team.ID.Hex(),
		TeamName:    team.Name,
		CreatedBy:   "fixture",
		Status:      models.GrantStatusActive,
		Permissions: models.DefaultGuestPermissions(),
		CreatedAt:   now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		g.ExpiresAt = &exp
	}

	if _, err := f.db.Collection("guest_access_links").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create access grant: %v", err)
	}
	return g
}
