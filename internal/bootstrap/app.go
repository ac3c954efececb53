package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	appsvc "literature-manager/internal/app"
	"literature-manager/internal/cache"
	"literature-manager/internal/config"
	"literature-manager/internal/githubstore"
	mysqlClient "literature-manager/internal/platform/mysql"
	rabbitmqClient "literature-manager/internal/platform/rabbitmq"
	redisClient "literature-manager/internal/platform/redis"
	"literature-manager/internal/repository"
	"literature-manager/internal/storage"
	"literature-manager/internal/syncer"
	"literature-manager/internal/thumbnail"
	"literature-manager/internal/worker"
)

// App owns every long-lived resource of the server. MySQL, Redis and RabbitMQ
// are optional; their fields stay nil when disabled.
type App struct {
	Config     *config.Config
	Papers     *repository.PaperRepository
	PDFs       *storage.Disk
	Thumbnails *storage.Disk
	Remote     *syncer.GitHubSyncer

	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	EventWorker *worker.EventPersistWorker

	Ingest  *appsvc.IngestService
	Library *appsvc.LibraryService
	Sync    *appsvc.SyncService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (a *App, err error) {
	a = &App{Config: cfg, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.PDFs, err = storage.NewDisk(cfg.Storage.PDFDir); err != nil {
		return nil, err
	}
	if a.Thumbnails, err = storage.NewDisk(cfg.Storage.ThumbnailDir); err != nil {
		return nil, err
	}
	a.Papers = repository.NewPaperRepository(cfg.Storage.DataFile)
	if _, err = a.Papers.Load(); err != nil {
		return nil, fmt.Errorf("open papers document failed: %w", err)
	}

	var (
		events   appsvc.EventPublisher
		activity appsvc.EventReader
		stats    appsvc.StatsCache
	)

	if cfg.MySQL.Enabled {
		if a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN()); err != nil {
			return nil, err
		}
		if err = mysqlClient.Migrate(a.MySQL); err != nil {
			return nil, err
		}
		eventRepo := repository.NewEventRepository(a.MySQL)
		events, activity = eventRepo, eventRepo
	}

	if cfg.RabbitMQ.Enabled {
		if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL); err != nil {
			return nil, err
		}
		events = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.EventQueue)
		if a.MySQL != nil {
			a.EventWorker = worker.NewEventPersistWorker(a.MQConn, repository.NewEventRepository(a.MySQL), cfg.RabbitMQ.EventQueue)
			if err = a.EventWorker.Start(ctx); err != nil {
				return nil, fmt.Errorf("start event worker failed: %w", err)
			}
		} else {
			log.Warn().Msg("rabbitmq enabled without mysql: events are queued but not persisted")
		}
	}

	if cfg.Redis.Enabled {
		if a.Redis, err = redisClient.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		stats = cache.NewStatsCache(a.Redis, cfg.StatsTTL())
	}

	a.Remote = syncer.NewGitHubSyncer(githubstore.New(githubstore.ConfigFrom(cfg.GitHub)), cfg.GitHub)

	a.Ingest = appsvc.NewIngestService(
		a.Papers, a.PDFs, a.Thumbnails,
		thumbnail.NewCommandRenderer(cfg.Thumbnail),
		events, stats,
		cfg.MaxFileSize(), cfg.Upload.MaxBatchFiles,
	)
	a.Library = appsvc.NewLibraryService(a.Papers, a.PDFs, a.Thumbnails, events, stats, activity)
	a.Sync = appsvc.NewSyncService(a.Papers, a.PDFs, a.Thumbnails, a.Remote, events, stats)

	log.Info().
		Str("data_file", cfg.Storage.DataFile).
		Bool("mysql", a.MySQL != nil).
		Bool("redis", a.Redis != nil).
		Bool("rabbitmq", a.MQConn != nil).
		Bool("github", a.Remote.IsConfigured()).
		Msg("application initialised")
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.MySQL != nil {
		errs = append(errs, mysqlClient.Close(a.MySQL))
	}
	return errors.Join(errs...)
}
