package config

import (
	"context"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/repository/firestore"
	"github.com/secmon-lab/ackbot/pkg/repository/memory"
	"github.com/secmon-lab/ackbot/pkg/repository/postgres"
	"github.com/secmon-lab/ackbot/pkg/repository/redis"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Queue holds CLI flags for the retry queue backend
type Queue struct {
	backend string

	redisAddr     string
	redisURL      string
	redisPassword string
	redisDB       int
	redisKey      string

	projectID        string
	databaseID       string
	collectionPrefix string

	postgresDSN   string
	postgresTable string
}

// Flags returns CLI flags for queue configuration
func (q *Queue) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "queue-backend",
			Usage:       "Retry queue backend type (redis, firestore, postgres or memory)",
			Category:    "Queue",
			Value:       BackendRedis,
			Sources:     cli.EnvVars("ACKBOT_QUEUE_BACKEND"),
			Destination: &q.backend,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address host:port",
			Category:    "Queue",
			Value:       "localhost:6379",
			Sources:     cli.EnvVars("ACKBOT_REDIS_ADDR"),
			Destination: &q.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL (redis:// or rediss://), overrides --redis-addr",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_REDIS_URL"),
			Destination: &q.redisURL,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_REDIS_PASSWORD"),
			Destination: &q.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_REDIS_DB"),
			Destination: &q.redisDB,
		},
		&cli.StringFlag{
			Name:        "redis-key",
			Usage:       "Redis sorted set key of pending checks",
			Category:    "Queue",
			Value:       redis.DefaultKey,
			Sources:     cli.EnvVars("ACKBOT_REDIS_KEY"),
			Destination: &q.redisKey,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_FIRESTORE_PROJECT_ID"),
			Destination: &q.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_FIRESTORE_DATABASE_ID"),
			Destination: &q.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of the Firestore collection name",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &q.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string (required when using postgres backend)",
			Category:    "Queue",
			Sources:     cli.EnvVars("ACKBOT_POSTGRES_DSN", "DATABASE_URL"),
			Destination: &q.postgresDSN,
		},
		&cli.StringFlag{
			Name:        "postgres-table",
			Usage:       "PostgreSQL table of pending checks",
			Category:    "Queue",
			Value:       postgres.DefaultTable,
			Sources:     cli.EnvVars("ACKBOT_POSTGRES_TABLE"),
			Destination: &q.postgresTable,
		},
	}
}

func (q Queue) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", q.backend),
		slog.String("redis-addr", q.redisAddr),
		slog.Bool("redis-url.set", q.redisURL != ""),
		slog.Int("redis-db", q.redisDB),
		slog.String("redis-key", q.redisKey),
		slog.String("firestore-project-id", q.projectID),
		slog.String("firestore-database-id", q.databaseID),
		slog.Bool("postgres-dsn.set", q.postgresDSN != ""),
		slog.String("postgres-table", q.postgresTable),
	)
}

// Backend returns the configured backend type
func (q *Queue) Backend() string {
	return q.backend
}

// Configure initializes the retry queue of the configured backend.
// The caller is responsible for calling Close() on the returned queue.
func (q *Queue) Configure(ctx context.Context) (interfaces.RetryQueue, error) {
	switch q.backend {
	case BackendRedis:
		opt, err := q.redisOptions()
		if err != nil {
			return nil, err
		}
		queue, err := redis.New(ctx, opt, redis.WithKey(q.redisKey))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize redis queue")
		}
		logging.Default().Info("Using Redis retry queue", "addr", opt.Addr, "key", q.redisKey)
		return queue, nil

	case BackendFirestore:
		if q.projectID == "" {
			return nil, goerr.Wrap(ErrMissingRequired, "firestore-project-id is required when using firestore backend",
				goerr.V(OptionKey, "firestore-project-id"))
		}
		queue, err := firestore.New(ctx, q.projectID, q.databaseID, firestore.WithCollectionPrefix(q.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore queue")
		}
		logging.Default().Info("Using Firestore retry queue",
			"project_id", q.projectID,
			"database_id", q.databaseID,
		)
		return queue, nil

	case BackendPostgres:
		if q.postgresDSN == "" {
			return nil, goerr.Wrap(ErrMissingRequired, "postgres-dsn is required when using postgres backend",
				goerr.V(OptionKey, "postgres-dsn"))
		}
		queue, err := postgres.New(ctx, q.postgresDSN, postgres.WithTable(q.postgresTable))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize postgres queue")
		}
		logging.Default().Info("Using PostgreSQL retry queue", "table", q.postgresTable)
		return queue, nil

	case BackendMemory:
		logging.Default().Warn("Using in-memory retry queue (development mode), pending checks are lost on restart")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "unknown queue backend", goerr.V(BackendKey, q.backend))
	}
}

func (q *Queue) redisOptions() (*goredis.Options, error) {
	if q.redisURL != "" {
		opt, err := goredis.ParseURL(q.redisURL)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid redis-url")
		}
		return opt, nil
	}

	if q.redisAddr == "" {
		return nil, goerr.Wrap(ErrMissingRequired, "redis-addr is required when using redis backend",
			goerr.V(OptionKey, "redis-addr"))
	}
	return &goredis.Options{
		Addr:     q.redisAddr,
		Password: q.redisPassword,
		DB:       q.redisDB,
	}, nil
}
