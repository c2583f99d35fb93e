// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/dalemusser/waffle/config"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// DBDeps holds database/back-end dependencies for the app.
// Redis and NATS are nil when not configured.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         redis.UniversalClient
	NATS          *nats.Conn

	// workers started in Startup and stopped in Shutdown
	bg *background
}

// ConnectDB opens MongoDB and, when configured, Redis and NATS. A failure
// closes whatever was already opened.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (deps DBDeps, err error) {
	deps.bg = &background{}
	defer func() {
		if err != nil {
			closeDeps(context.Background(), deps, logger)
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(appCfg.MongoURI))
	if err != nil {
		return deps, fmt.Errorf("connect mongo: %w", err)
	}
	deps.MongoClient = client
	if err := client.Ping(cctx, nil); err != nil {
		return deps, fmt.Errorf("ping mongo: %w", err)
	}
	deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	if appCfg.GuestStorage == GuestStorageRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		deps.Redis = rdb
		if err := rdb.Ping(cctx).Err(); err != nil {
			return deps, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr), zap.Int("db", appCfg.RedisDB))
	}

	if appCfg.NATSURL != "" {
		nc, err := events.Connect(appCfg.NATSURL, logger)
		if err != nil {
			return deps, err
		}
		deps.NATS = nc
		logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
	}

	return deps, nil
}

// closeDeps releases every open backend. Errors are logged; the first is returned.
func closeDeps(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	var first error
	if deps.NATS != nil {
		if err := deps.NATS.Drain(); err != nil {
			logger.Warn("NATS drain failed", zap.Error(err))
			deps.NATS.Close()
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Error("Redis close failed", zap.Error(err))
			first = err
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
