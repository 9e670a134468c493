// Package pipeline assembles the extraction and delivery stages from
// configuration.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/TextDrop/internal/awsx"
	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/database"
	"github.com/dharsanguruparan/TextDrop/internal/dedup"
	"github.com/dharsanguruparan/TextDrop/internal/detect"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/notifier"
	"github.com/dharsanguruparan/TextDrop/internal/orchestrator"
	"github.com/dharsanguruparan/TextDrop/internal/processing"
	"github.com/dharsanguruparan/TextDrop/internal/publish"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
	"github.com/dharsanguruparan/TextDrop/internal/repository"
	"github.com/dharsanguruparan/TextDrop/internal/s3storage"
	"github.com/dharsanguruparan/TextDrop/internal/secrets"
	"github.com/dharsanguruparan/TextDrop/internal/shortener"
)

// Pipeline holds the constructed stages and the clients they share.
type Pipeline struct {
	Store        *s3storage.Storage
	Orchestrator *orchestrator.Orchestrator
	Notifier     *notifier.Notifier
	// Ledger is nil when DATABASE_URL is empty.
	Ledger *repository.JobRepository
	Queue  *asynq.Client

	closers []func()
}

// Build connects to every backing service named in cfg. The processing pool
// of the local detector is bound to ctx.
func Build(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Pipeline, error) {
	p := &Pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	store, err := s3storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}
	p.Store = store

	awsCfg, err := awsx.Load(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var ledger orchestrator.Ledger
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		p.closers = append(p.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		p.Ledger = repository.NewJobRepository(pool)
		ledger = p.Ledger
	} else {
		log.Warn(ctx, "DATABASE_URL not set: job ledger disabled")
	}

	p.Queue = asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
	p.closers = append(p.closers, func() { _ = p.Queue.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	p.closers = append(p.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	var alerts orchestrator.Alerter
	if cfg.AlertTopicARN != "" {
		alerts = publish.NewTopic(awsCfg, cfg.AlertTopicARN)
	}

	p.Orchestrator = orchestrator.New(
		newDetector(ctx, cfg, awsCfg, store),
		store,
		queue.Scheduler{Client: p.Queue},
		ledger,
		alerts,
		orchestrator.Options{Interval: cfg.PollInterval, MaxAttempts: cfg.MaxPollAttempts},
		log.With("stage", "orchestrator"),
	)
	p.Notifier = notifier.New(
		store,
		secrets.NewManager(awsCfg, secrets.BitlyTokenField),
		shortener.NewBitly(cfg.BitlyAPIURL, &http.Client{Timeout: 10 * time.Second}),
		publish.NewTopic(awsCfg, cfg.TopicARN),
		dedup.NewMarker(rdb, cfg.DedupTTL),
		notifier.Config{SecretID: cfg.BitlySecretName, TTL: cfg.SignedURLTTL},
		notifier.WithLogger(log.With("stage", "notifier")),
	)
	ok = true
	return p, nil
}

func newDetector(ctx context.Context, cfg *config.Config, awsCfg aws.Config, store *s3storage.Storage) detect.Service {
	if cfg.Detector == config.DetectorLocal {
		pool := processing.New(cfg.Workers)
		pool.Start(ctx)
		return detect.NewLocal(pool, store)
	}
	return detect.NewTextract(awsCfg)
}

// Close releases every client Build opened.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
