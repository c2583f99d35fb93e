// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/promptshelf/internal/app/system/indexes"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// EnsureSchema creates the indexes every store depends on.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		logger.Error("ensure schema failed", zap.Error(err))
		return err
	}
	logger.Info("schema ensured")
	return nil
}
