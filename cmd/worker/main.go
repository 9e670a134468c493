// Command worker runs the extraction and delivery stages on the asynq queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/pipeline"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
	"github.com/dharsanguruparan/TextDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatal(logging.New(logging.Options{}), "load config", err)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "textdrop-worker"})

	p, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		fatal(log, "build pipeline", err)
	}
	defer p.Close()

	if cfg.EventSource == config.EventSourceListen {
		for _, bucket := range uniqueBuckets(p.Store.RawBucket(), p.Store.ProcessedBucket()) {
			go listen(ctx, p, bucket, log)
		}
	}

	server := asynq.NewServer(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), asynq.Config{
		Concurrency: cfg.Workers,
	})
	processor := worker.NewProcessor(p.Orchestrator, p.Notifier, log)
	mux := processor.Handler()

	log.Info(ctx, "worker started", "detector", cfg.Detector, "event_source", cfg.EventSource, "concurrency", cfg.Workers)
	if err := server.Start(mux); err != nil {
		fatal(log, "start worker", err)
	}
	<-ctx.Done()
	server.Shutdown()
	log.Info(context.Background(), "worker stopped")
}

// listen forwards MinIO bucket notifications onto the queue.
func listen(ctx context.Context, p *pipeline.Pipeline, bucket string, log *logging.Logger) {
	err := p.Store.Listen(ctx, bucket, func(ev model.ObjectEvent) {
		if err := queue.EnqueueObjectCreated(ctx, p.Queue, ev); err != nil {
			log.Error(ctx, "enqueue event failed", "bucket", ev.Bucket, "key", ev.Key, "error", err)
		}
	})
	if err != nil {
		log.Error(ctx, "bucket listener stopped", "bucket", bucket, "error", err)
	}
}

func uniqueBuckets(raw, processed string) []string {
	if raw == processed {
		return []string{raw}
	}
	return []string{raw, processed}
}

func fatal(log *logging.Logger, msg string, err error) {
	log.Error(context.Background(), msg, "error", err)
	os.Exit(1)
}
