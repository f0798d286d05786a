// Package bootstrap wires configuration, infrastructure, adapters and
// services into runnable API and worker processes.
package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"mail_server/adapter/out/messaging"
	"mail_server/adapter/out/mongodb"
	"mail_server/adapter/out/persistence"
	"mail_server/adapter/out/provider"
	"mail_server/adapter/out/storage"
	"mail_server/config"
	"mail_server/core/port/out"
	"mail_server/core/service/auth"
	"mail_server/core/service/outbox"
	"mail_server/core/service/sync"
	"mail_server/infra/database"
	"mail_server/pkg/locker"
	"mail_server/pkg/logger"
)

// Dependencies holds every shared component. Both processes build the
// full graph; the API only serves HTTP from it, the worker only
// consumes streams.
type Dependencies struct {
	Config *config.Config

	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	AccountRepo    out.AccountRepository
	CredentialRepo out.OAuthRepository
	MessageRepo    out.MessageRepository
	LabelRepo      out.LabelRepository
	AttachmentRepo out.AttachmentRepository
	OutboxRepo     out.OutboxRepository
	BodyRepo       out.BodyRepository

	Storage  out.BlobStorage
	Lock     out.SyncLock
	Producer out.TaskProducer
	Factory  out.ProviderFactory

	OAuthService *auth.OAuthService
	SyncManager  *sync.Manager
	OutboxSender *outbox.Sender
}

// NewDependencies builds the dependency graph. The returned cleanup
// closes every connection in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool, health checks)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx, persistence adapters)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (message bodies)
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() { mongoClient.Disconnect(context.Background()) })

	bodyAdapter := mongodb.NewBodyAdapter(mongoClient.Database(cfg.MongoDBName))
	if err := bodyAdapter.EnsureIndexes(context.Background()); err != nil {
		logger.WithError(err).Warn("failed to ensure mongo indexes")
	}
	deps.BodyRepo = bodyAdapter

	// Persistence
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.CredentialRepo = persistence.NewOAuthAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.LabelRepo = persistence.NewLabelAdapter(sqlDB)
	deps.AttachmentRepo = persistence.NewAttachmentAdapter(sqlDB)
	deps.OutboxRepo = persistence.NewOutboxAdapter(sqlDB)

	// Blob storage, lock, producer
	deps.Storage = storage.NewDiskStorage(cfg.StorageRoot)
	deps.Lock = locker.New(redisClient)
	deps.Producer = messaging.NewRedisProducer(redisClient)

	// Services
	deps.OAuthService = auth.NewOAuthService(cfg, deps.AccountRepo, deps.CredentialRepo, deps.Producer)
	deps.Factory = provider.NewGmailFactory(deps.OAuthService, cfg.GmailChunkSize)

	deps.SyncManager = sync.NewManager(
		cfg,
		deps.AccountRepo,
		deps.MessageRepo,
		deps.LabelRepo,
		deps.AttachmentRepo,
		deps.BodyRepo,
		deps.Storage,
		deps.Factory,
		deps.Producer,
		deps.Lock,
	)

	deps.OutboxSender = outbox.NewSender(
		deps.AccountRepo,
		deps.MessageRepo,
		deps.AttachmentRepo,
		deps.OutboxRepo,
		deps.Storage,
		deps.Factory,
		deps.Producer,
	)

	return deps, cleanup, nil
}
