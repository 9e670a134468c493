package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
)

// Extractor is the orchestrator surface the worker drives.
type Extractor interface {
	HandleObjectCreated(ctx context.Context, ev model.ObjectEvent) model.Result
	Poll(ctx context.Context, p queue.PollPayload) model.Result
}

// Deliverer is the notifier surface the worker drives.
type Deliverer interface {
	Handle(ctx context.Context, ev model.ObjectEvent) model.Result
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	extractor Extractor
	deliverer Deliverer
	log       *logging.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(extractor Extractor, deliverer Deliverer, log *logging.Logger) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	return &Processor{extractor: extractor, deliverer: deliverer, log: log}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ObjectCreatedTask, p.handleObjectCreated)
	mux.HandleFunc(queue.PollTask, p.handlePoll)
	return mux
}

// handleObjectCreated offers the event to both stages; each ignores keys
// outside its namespace.
func (p *Processor) handleObjectCreated(ctx context.Context, task *asynq.Task) error {
	ev, err := queue.DecodeObjectCreated(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	extracted := p.extractor.HandleObjectCreated(ctx, ev)
	p.report(ctx, "extract", extracted, "bucket", ev.Bucket, "key", ev.Key)
	delivered := p.deliverer.Handle(ctx, ev)
	p.report(ctx, "deliver", delivered, "bucket", ev.Bucket, "key", ev.Key)
	if err := AsTaskError(extracted); err != nil {
		return err
	}
	return AsTaskError(delivered)
}

func (p *Processor) handlePoll(ctx context.Context, task *asynq.Task) error {
	pp, err := queue.DecodePoll(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	res := p.extractor.Poll(ctx, pp)
	p.report(ctx, "poll", res, "job_id", pp.JobID, "attempt", pp.Attempt)
	return AsTaskError(res)
}

func (p *Processor) report(ctx context.Context, stage string, res model.Result, args ...any) {
	args = append(args, "stage", stage, "result", res.Kind, "message", res.Message)
	switch res.Kind {
	case model.Success, model.UserRejected:
		p.log.Debug(ctx, "stage finished", args...)
	case model.RetryableFailure:
		p.log.Warn(ctx, "stage will be retried", args...)
	default:
		p.log.Error(ctx, "stage failed", args...)
	}
}

// AsTaskError maps a stage result onto asynq: successes and rejections ack
// the task, retryable failures are retried with backoff and fatal failures
// are archived without retry.
func AsTaskError(res model.Result) error {
	switch res.Kind {
	case model.Success, model.UserRejected:
		return nil
	case model.RetryableFailure:
		return resultErr(res)
	default:
		return fmt.Errorf("%w: %w", resultErr(res), asynq.SkipRetry)
	}
}

func resultErr(res model.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return errors.New(res.String())
}
