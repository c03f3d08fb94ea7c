// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratacomm/internal/app/fabric"
	"github.com/dalemusser/stratacomm/internal/app/fabric/messaging"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	auditstore "github.com/dalemusser/stratacomm/internal/app/store/audit"
	collabstore "github.com/dalemusser/stratacomm/internal/app/store/collaborations"
	departmentstore "github.com/dalemusser/stratacomm/internal/app/store/departments"
	groupstore "github.com/dalemusser/stratacomm/internal/app/store/groups"
	"github.com/dalemusser/stratacomm/internal/app/store/memstore"
	messagestore "github.com/dalemusser/stratacomm/internal/app/store/messages"
	notificationstore "github.com/dalemusser/stratacomm/internal/app/store/notifications"
	organizationstore "github.com/dalemusser/stratacomm/internal/app/store/organizations"
	roleassignstore "github.com/dalemusser/stratacomm/internal/app/store/roleassign"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	teamstore "github.com/dalemusser/stratacomm/internal/app/store/teams"
	usermessagestore "github.com/dalemusser/stratacomm/internal/app/store/usermessages"
	userstore "github.com/dalemusser/stratacomm/internal/app/store/users"
	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/app/system/auth"
	"github.com/dalemusser/stratacomm/internal/app/system/authz"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/app/system/ratelimit"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Services are the long-lived objects built once at startup and shared by
// BuildHandler and Shutdown.
type Services struct {
	Auth   *auth.Manager
	Hub    *livepush.Hub
	Pusher *livepush.Pusher
	Fabric *fabric.Fabric

	// SendLimiter caps sends per user; nil when send_rate_limit is 0.
	SendLimiter *ratelimit.Limiter

	retry       *workers.PushRetry
	natsRelay   *livepush.NATSRelay
	stopRelay   context.CancelFunc
	relayExited chan struct{}
}

func mongoStores(db *mongo.Database, logger *zap.Logger) fabric.Stores {
	return fabric.Stores{
		Users:          userstore.New(db),
		Departments:    departmentstore.New(db),
		Teams:          teamstore.New(db),
		Roles:          rolestore.New(db),
		Assignments:    roleassignstore.New(db),
		Org:            organizationstore.New(db, logger),
		Groups:         groupstore.New(db),
		Collaborations: collabstore.New(db),
		Messages:       messagestore.New(db),
		Links:          usermessagestore.New(db),
		Notifications:  notificationstore.New(db),
		Audit:          auditstore.New(db),
	}
}

func memoryStores(ms *memstore.Store) fabric.Stores {
	return fabric.Stores{
		Users:          ms.Users(),
		Departments:    ms.Departments(),
		Teams:          ms.Teams(),
		Roles:          ms.Roles(),
		Assignments:    ms.RoleAssignments(),
		Org:            ms.Organization(),
		Groups:         ms.Groups(),
		Collaborations: ms.Collaborations(),
		Messages:       ms.Messages(),
		Links:          ms.UserMessages(),
		Notifications:  ms.Notifications(),
		Audit:          ms.Audit(),
	}
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It wires
// the live push path, builds the fabric, seeds the administrator and starts
// the push retry worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	svc := deps.Services
	if svc == nil {
		return fmt.Errorf("startup: services were not allocated by ConnectDB")
	}

	timeouts.Configure(timeouts.Config{
		FanOut:     appCfg.FanOutTimeout,
		PushBudget: appCfg.PushBudget,
	})

	am, err := auth.NewManager(appCfg.JWTSecret, appCfg.JWTIssuer, logger)
	if err != nil {
		logger.Error("auth manager init failed", zap.Error(err))
		return err
	}
	svc.Auth = am

	svc.Hub = livepush.NewHub(logger, appCfg.WSAllowedOrigins)
	adapter, err := svc.startPushTransport(deps, logger)
	if err != nil {
		return err
	}
	svc.Pusher = livepush.NewPusher(adapter, appCfg.PushBudget, logger)

	var st fabric.Stores
	if deps.Memory != nil {
		st = memoryStores(deps.Memory)
	} else {
		st = mongoStores(deps.MongoDatabase, logger)
	}

	var cache authz.Cache
	if deps.Redis != nil && appCfg.AuthzCacheTTL > 0 {
		cache = authz.NewRedisCache(deps.Redis, appCfg.AuthzCacheTTL)
		logger.Info("permission cache enabled", zap.Duration("ttl", appCfg.AuthzCacheTTL))
	}

	svc.Fabric = fabric.Build(st, fabric.Options{
		AuthzCache: cache,
		Pusher:     svc.Pusher,
		Messaging: messaging.Config{
			FanOutTimeout: appCfg.FanOutTimeout,
			Parallelism:   appCfg.FanOutParallelism,
		},
		Notify: notify.Config{
			TaskLinkBase: appCfg.TaskLinkBase,
			Parallelism:  appCfg.FanOutParallelism,
		},
		Audit: auditlog.Config{
			Admin:    appCfg.AuditLogAdmin,
			Security: appCfg.AuditLogSecurity,
		},
	}, logger)

	if appCfg.AdminUserID != "" {
		actx, cancel := context.WithTimeout(ctx, timeouts.Medium())
		err := svc.Fabric.EnsureAdmin(actx, appCfg.AdminUserID, appCfg.AdminUserName)
		cancel()
		if err != nil {
			logger.Error("administrator bootstrap failed", zap.String("user_id", appCfg.AdminUserID), zap.Error(err))
			return fmt.Errorf("ensure administrator: %w", err)
		}
		logger.Info("administrator ensured", zap.String("user_id", appCfg.AdminUserID))
	}

	if appCfg.SendRateLimit > 0 {
		svc.SendLimiter = ratelimit.New(appCfg.SendRateLimit, appCfg.SendRateWindow)
	}

	if appCfg.PushRetryInterval > 0 {
		svc.retry = workers.NewPushRetry(svc.Fabric.Notify, logger,
			appCfg.PushRetryInterval, appCfg.PushRetryWindow, appCfg.PushRetryBatch)
		svc.retry.Start()
	}
	return nil
}

// startPushTransport picks the adapter the pusher writes to. With Redis or
// NATS, events go through the broker and a relay hands them to this
// instance's hub, so every instance sees every push.
func (s *Services) startPushTransport(deps DBDeps, logger *zap.Logger) (livepush.Adapter, error) {
	switch {
	case deps.Redis != nil:
		relay := livepush.NewRedisRelay(deps.Redis, s.Hub, logger)
		rctx, cancel := context.WithCancel(context.Background())
		s.stopRelay = cancel
		s.relayExited = make(chan struct{})
		go func() {
			defer close(s.relayExited)
			if err := relay.Run(rctx); err != nil {
				logger.Error("redis push relay stopped", zap.Error(err))
			}
		}()
		logger.Info("live push via Redis")
		return livepush.NewRedisPublisher(deps.Redis), nil

	case deps.NATS != nil:
		s.natsRelay = livepush.NewNATSRelay(deps.NATS, s.Hub, logger)
		if err := s.natsRelay.Start(); err != nil {
			return nil, fmt.Errorf("start nats relay: %w", err)
		}
		logger.Info("live push via NATS")
		return livepush.NewNATSPublisher(deps.NATS), nil

	default:
		logger.Info("live push limited to this instance")
		return s.Hub, nil
	}
}
