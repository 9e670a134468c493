// Package orchestrator drives a raw upload through text detection and writes
// the text and CSV artifacts.
//
// Polling is a resumable state machine: each check is a separate invocation
// carrying {jobId, bucket, rawKey, attempt}. A check that finds the job still
// running schedules the next attempt instead of sleeping, and a job that is
// still running after MaxAttempts checks is dead-lettered.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dharsanguruparan/TextDrop/internal/detect"
	"github.com/dharsanguruparan/TextDrop/internal/extract"
	"github.com/dharsanguruparan/TextDrop/internal/layout"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/publish"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
)

// EmailTag is the raw object tag copied onto both artifacts.
const EmailTag = "email"

var (
	ErrJobFailed         = errors.New("detection job failed")
	ErrPollExhausted     = errors.New("detection job still running after poll budget")
	ErrUnsupportedUpload = errors.New("upload type not supported")
)

// Store is the blob store surface the orchestrator uses.
type Store interface {
	ObjectTags(ctx context.Context, bucket, key string) (map[string]string, error)
	PutArtifact(ctx context.Context, key string, body []byte, contentType string, tags map[string]string, jobID string) error
}

// Scheduler persists the next poll attempt.
type Scheduler interface {
	SchedulePoll(ctx context.Context, p queue.PollPayload, delay time.Duration) error
}

// Ledger records job transitions. Errors are logged, never fatal.
type Ledger interface {
	Started(ctx context.Context, jobID, bucket, rawKey string) error
	Polling(ctx context.Context, jobID string, attempt int) error
	Completed(ctx context.Context, jobID string, attempt int) error
	Failed(ctx context.Context, jobID string, attempt int, msg string) error
	DeadLettered(ctx context.Context, jobID string, attempt int, msg string) error
}

// Alerter receives operator alerts for failed and abandoned jobs.
type Alerter interface {
	Publish(ctx context.Context, msg publish.Message) (string, error)
}

// Options tune the poll loop.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

// Orchestrator is the extraction stage.
type Orchestrator struct {
	detector  detect.Service
	store     Store
	scheduler Scheduler
	ledger    Ledger
	alerts    Alerter
	opts      Options
	log       *logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New builds an Orchestrator. ledger and alerts may be nil.
func New(detector detect.Service, store Store, scheduler Scheduler, ledger Ledger, alerts Alerter, opts Options, log *logging.Logger) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 720
	}
	if ledger == nil {
		ledger = nopLedger{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		detector:  detector,
		store:     store,
		scheduler: scheduler,
		ledger:    ledger,
		alerts:    alerts,
		opts:      opts,
		log:       log,
		sleep:     sleepCtx,
	}
}

// HandleObjectCreated starts detection for a raw upload and schedules the
// first check. Keys outside incoming/ are ignored.
func (o *Orchestrator) HandleObjectCreated(ctx context.Context, ev model.ObjectEvent) model.Result {
	if res, ok := o.admit(ctx, ev); !ok {
		return res
	}
	jobID, err := o.start(ctx, ev)
	if err != nil {
		return model.Retryable(err)
	}
	p := queue.PollPayload{JobID: jobID, Bucket: ev.Bucket, RawKey: ev.Key, Attempt: 1}
	if err := o.scheduler.SchedulePoll(ctx, p, o.opts.Interval); err != nil {
		// The retry starts a fresh job; this one is never polled.
		o.log.Error(ctx, "first poll not scheduled", "job_id", jobID, "key", ev.Key, "error", err)
		o.record(ctx, jobID, o.ledger.Failed(ctx, jobID, 0, "first poll not scheduled: "+err.Error()))
		return model.Retryable(fmt.Errorf("schedule poll for job %s: %w", jobID, err))
	}
	return model.Succeeded("started job %s", jobID)
}

// Poll performs one check of a running job.
func (o *Orchestrator) Poll(ctx context.Context, p queue.PollPayload) model.Result {
	res, running := o.check(ctx, p)
	if !running {
		return res
	}
	if p.Attempt >= o.opts.MaxAttempts {
		return o.deadLetter(ctx, p)
	}
	next := p
	next.Attempt++
	if err := o.scheduler.SchedulePoll(ctx, next, o.opts.Interval); err != nil {
		return model.Retryable(err)
	}
	return res
}

// Run is the synchronous form: it starts the job and checks it in-process
// with the same interval and bound.
func (o *Orchestrator) Run(ctx context.Context, ev model.ObjectEvent) model.Result {
	if res, ok := o.admit(ctx, ev); !ok {
		return res
	}
	jobID, err := o.start(ctx, ev)
	if err != nil {
		return model.Retryable(err)
	}
	p := queue.PollPayload{JobID: jobID, Bucket: ev.Bucket, RawKey: ev.Key}
	for p.Attempt = 1; p.Attempt <= o.opts.MaxAttempts; p.Attempt++ {
		if err := o.sleep(ctx, o.opts.Interval); err != nil {
			return model.Retryable(fmt.Errorf("job %s: %w", jobID, err))
		}
		res, running := o.check(ctx, p)
		if !running {
			return res
		}
	}
	p.Attempt = o.opts.MaxAttempts
	return o.deadLetter(ctx, p)
}

// admit filters events down to raw uploads of a readable type.
func (o *Orchestrator) admit(ctx context.Context, ev model.ObjectEvent) (model.Result, bool) {
	if !layout.IsRaw(ev.Key) {
		return model.Succeeded("ignored %s", ev.Key), false
	}
	if ft := model.FileTypeOf(ev.Key); !ft.Supported() {
		o.log.Warn(ctx, "upload type not supported", "bucket", ev.Bucket, "key", ev.Key, "type", ft)
		return model.Rejected(fmt.Errorf("%s (%q): %w", ev.Key, ft, ErrUnsupportedUpload)), false
	}
	return model.Result{}, true
}

func (o *Orchestrator) start(ctx context.Context, ev model.ObjectEvent) (string, error) {
	jobID, err := o.detector.Start(ctx, ev.Bucket, ev.Key)
	if err != nil {
		o.log.Error(ctx, "start detection failed", "bucket", ev.Bucket, "key", ev.Key, "error", err)
		return "", fmt.Errorf("start detection for %s: %w", ev.Key, err)
	}
	o.log.Info(ctx, "detection started", "bucket", ev.Bucket, "key", ev.Key, "job_id", jobID)
	o.record(ctx, jobID, o.ledger.Started(ctx, jobID, ev.Bucket, ev.Key))
	return jobID, nil
}

// check reports running=true when the job has not reached a terminal status.
func (o *Orchestrator) check(ctx context.Context, p queue.PollPayload) (model.Result, bool) {
	log := o.log.With("job_id", p.JobID, "key", p.RawKey, "attempt", p.Attempt)
	job, err := o.detector.Get(ctx, p.JobID)
	if errors.Is(err, detect.ErrUnknownJob) {
		log.Error(ctx, "job unknown to detection service", "error", err)
		return model.Fatal(err), false
	}
	if err != nil {
		log.Warn(ctx, "job status unavailable", "error", err)
		return model.Retryable(fmt.Errorf("get job %s: %w", p.JobID, err)), false
	}

	switch job.Status {
	case model.JobInProgress:
		log.Debug(ctx, "job in progress", "status", job.Status)
		o.record(ctx, p.JobID, o.ledger.Polling(ctx, p.JobID, p.Attempt))
		return model.Succeeded("job %s in progress (attempt %d)", p.JobID, p.Attempt), true
	case model.JobSucceeded:
		if err := o.writeArtifacts(ctx, p, job.Lines); err != nil {
			log.Error(ctx, "artifact write failed", "error", err)
			return model.Retryable(err), false
		}
		o.record(ctx, p.JobID, o.ledger.Completed(ctx, p.JobID, p.Attempt))
		log.Info(ctx, "artifacts written", "status", job.Status, "lines", len(job.Lines))
		return model.Succeeded("job %s: wrote %d lines", p.JobID, len(job.Lines)), false
	default:
		msg := job.Message
		if msg == "" {
			msg = string(job.Status)
		}
		log.Error(ctx, "job ended without success", "status", job.Status, "message", msg)
		o.record(ctx, p.JobID, o.ledger.Failed(ctx, p.JobID, p.Attempt, msg))
		o.alert(ctx, p, fmt.Sprintf("Detection job %s for %s/%s ended with status %s: %s", p.JobID, p.Bucket, p.RawKey, job.Status, msg))
		return model.Fatal(fmt.Errorf("job %s: %s: %w", p.JobID, msg, ErrJobFailed)), false
	}
}

// writeArtifacts writes the text artifact, then the CSV artifact. Both carry
// the raw object's email tag and the job id.
func (o *Orchestrator) writeArtifacts(ctx context.Context, p queue.PollPayload, lines []string) error {
	pair, err := layout.ArtifactKeys(p.RawKey)
	if err != nil {
		return err
	}
	rawTags, err := o.store.ObjectTags(ctx, p.Bucket, p.RawKey)
	if err != nil {
		return fmt.Errorf("read tags of %s: %w", p.RawKey, err)
	}
	var tags map[string]string
	if email := rawTags[EmailTag]; email != "" {
		tags = map[string]string{EmailTag: email}
	}
	arts := extract.Build(lines)
	if err := o.store.PutArtifact(ctx, pair.Text, arts.Text, extract.TextContentType, tags, p.JobID); err != nil {
		return fmt.Errorf("write %s: %w", pair.Text, err)
	}
	if err := o.store.PutArtifact(ctx, pair.CSV, arts.CSV, extract.CSVContentType, tags, p.JobID); err != nil {
		return fmt.Errorf("write %s: %w", pair.CSV, err)
	}
	return nil
}

func (o *Orchestrator) deadLetter(ctx context.Context, p queue.PollPayload) model.Result {
	err := fmt.Errorf("job %s after %d attempts: %w", p.JobID, p.Attempt, ErrPollExhausted)
	o.log.Error(ctx, "job dead-lettered", "job_id", p.JobID, "key", p.RawKey, "attempt", p.Attempt)
	o.record(ctx, p.JobID, o.ledger.DeadLettered(ctx, p.JobID, p.Attempt, err.Error()))
	o.alert(ctx, p, fmt.Sprintf("Detection job %s for %s/%s was abandoned after %d status checks.", p.JobID, p.Bucket, p.RawKey, p.Attempt))
	return model.Fatal(err)
}

func (o *Orchestrator) alert(ctx context.Context, p queue.PollPayload, body string) {
	if o.alerts == nil {
		return
	}
	if _, err := o.alerts.Publish(ctx, publish.Message{Subject: "TextDrop extraction failed", Body: body}); err != nil {
		o.log.Warn(ctx, "alert not sent", "job_id", p.JobID, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, jobID string, err error) {
	if err != nil {
		o.log.Warn(ctx, "ledger update failed", "job_id", jobID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopLedger struct{}

func (nopLedger) Started(context.Context, string, string, string) error { return nil }
func (nopLedger) Polling(context.Context, string, int) error { return nil }
func (nopLedger) Completed(context.Context, string, int) error { return nil }
func (nopLedger) Failed(context.Context, string, int, string) error { return nil }
func (nopLedger) DeadLettered(context.Context, string, int, string) error { return nil }
