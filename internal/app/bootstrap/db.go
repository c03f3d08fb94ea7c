// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	"github.com/dalemusser/stratacomm/internal/app/system/indexes"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens the record store and the optional push transports.
// On error, anything already opened is closed again.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (deps DBDeps, err error) {
	deps.Services = &Services{}
	defer func() {
		if err != nil {
			closeBackends(context.Background(), deps, logger)
			deps = DBDeps{}
		}
	}()

	switch appCfg.StoreType {
	case StoreMemory:
		logger.Warn("using in-memory store; data does not survive a restart")
		deps.Memory = memstore.New()
	default:
		opts := options.Client().
			ApplyURI(appCfg.MongoURI).
			SetAppName("stratacomm").
			SetMaxPoolSize(appCfg.MongoMaxPoolSize).
			SetMinPoolSize(appCfg.MongoMinPoolSize)
		client, cerr := mongo.Connect(ctx, opts)
		if cerr != nil {
			return deps, fmt.Errorf("connect mongo: %w", cerr)
		}
		deps.MongoClient = client

		pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		perr := client.Ping(pctx, readpref.Primary())
		cancel()
		if perr != nil {
			return deps, fmt.Errorf("ping mongo: %w", perr)
		}
		deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
		logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	}

	if appCfg.RedisURL != "" {
		ropts, perr := redis.ParseURL(appCfg.RedisURL)
		if perr != nil {
			return deps, fmt.Errorf("parse redis_url: %w", perr)
		}
		deps.Redis = redis.NewClient(ropts)
		pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		perr = deps.Redis.Ping(pctx).Err()
		cancel()
		if perr != nil {
			return deps, fmt.Errorf("ping redis: %w", perr)
		}
		logger.Info("connected to Redis", zap.String("addr", ropts.Addr))
	}

	if appCfg.NATSURL != "" && deps.Redis == nil {
		nc, nerr := livepush.ConnectNATS(livepush.NATSConfig{URL: appCfg.NATSURL})
		if nerr != nil {
			return deps, fmt.Errorf("connect nats: %w", nerr)
		}
		deps.NATS = nc
		logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrlRedacted()))
	}

	return deps, nil
}

// EnsureSchema creates indexes and collection validators. The in-memory
// store enforces its uniqueness rules in code and needs neither.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoDatabase == nil {
		return nil
	}
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	logger.Info("schema ensured")
	return nil
}

func closeBackends(ctx context.Context, deps DBDeps, logger *zap.Logger) {
	if deps.NATS != nil {
		if err := deps.NATS.Drain(); err != nil {
			logger.Warn("NATS drain failed", zap.Error(err))
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if deps.MongoClient != nil {
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
		}
	}
}
