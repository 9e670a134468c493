// Command server runs the upload address issuer and the storage event
// webhook.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/TextDrop/internal/api"
	"github.com/dharsanguruparan/TextDrop/internal/awsx"
	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/issuer"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/publish"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
	"github.com/dharsanguruparan/TextDrop/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatal(logging.New(logging.Options{}), "load config", err)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "textdrop-server"})

	store, err := s3storage.New(cfg)
	if err != nil {
		fatal(log, "init storage", err)
	}
	awsCfg, err := awsx.Load(ctx, cfg)
	if err != nil {
		fatal(log, "load aws config", err)
	}

	opts := []issuer.Option{issuer.WithLogger(log)}
	var publisher issuer.Publisher
	if cfg.TopicARN != "" {
		topic := publish.NewTopic(awsCfg, cfg.TopicARN)
		publisher = topic
		opts = append(opts, issuer.WithVerifier(topic))
	} else {
		log.Warn(ctx, "SNS_TOPIC_ARN not set: recipients are not verified and no upload notices are sent")
	}
	iss := issuer.New(store, publisher, cfg.SignedURLTTL, opts...)

	var enq queue.Enqueuer
	if cfg.EventSource == config.EventSourceWebhook {
		client := asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		defer client.Close()
		enq = client
	}

	srv := api.New(cfg, iss, enq, log)
	if err := srv.Run(ctx); err != nil {
		fatal(log, "server stopped", err)
	}
}

func fatal(log *logging.Logger, msg string, err error) {
	log.Error(context.Background(), msg, "error", err)
	os.Exit(1)
}
