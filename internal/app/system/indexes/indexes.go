// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	"github.com/dalemusser/promptshelf/internal/app/store/audit"
	commentstore "github.com/dalemusser/promptshelf/internal/app/store/comments"
	"github.com/dalemusser/promptshelf/internal/app/store/oauthstate"
	promptstore "github.com/dalemusser/promptshelf/internal/app/store/prompts"
	ratingstore "github.com/dalemusser/promptshelf/internal/app/store/ratings"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ensurer is implemented by every store that owns indexes.
type ensurer interface {
	EnsureIndexes(ctx context.Context) error
}

type collection struct {
	name  string
	store ensurer
}

func collections(db *mongo.Database) []collection {
	return []collection{
		{accessgrants.CollectionName, accessgrants.New(db)},
		{"teams", teamstore.New(db)},
		{"prompts", promptstore.New(db)},
		{"comments", commentstore.New(db)},
		{"ratings", ratingstore.New(db)},
		{"audit_events", audit.New(db)},
		{"oauth_states", oauthstate.New(db)},
	}
}

/*
EnsureAll is called at startup. Each store's EnsureIndexes is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string

	for _, c := range collections(db) {
		start := time.Now()
		if err := c.store.EnsureIndexes(ctx); err != nil {
			logger.Error("ensure indexes failed", zap.String("collection", c.name), zap.Error(err))
			problems = append(problems, c.name+": "+err.Error())
			continue
		}
		logger.Debug("indexes ensured",
			zap.String("collection", c.name),
			zap.Duration("took", time.Since(start)))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
