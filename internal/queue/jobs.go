package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

const (
	// ObjectCreatedTask is scheduled for every storage write notification.
	ObjectCreatedTask = "storage:object_created"
	// PollTask checks one detection job once and reschedules itself while the
	// job is still running.
	PollTask = "extraction:poll"
)

// ObjectCreatedPayload names the object that was written.
type ObjectCreatedPayload struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// PollPayload is the persisted state of an in-flight extraction.
type PollPayload struct {
	JobID   string `json:"jobId"`
	Bucket  string `json:"bucket"`
	RawKey  string `json:"rawKey"`
	Attempt int    `json:"attempt"`
}

// Enqueuer is the part of *asynq.Client the helpers need.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewObjectCreatedTask builds the task for ev.
func NewObjectCreatedTask(ev model.ObjectEvent) (*asynq.Task, error) {
	data, err := json.Marshal(ObjectCreatedPayload{Bucket: ev.Bucket, Key: ev.Key})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ObjectCreatedTask, data), nil
}

// EnqueueObjectCreated enqueues a storage write notification.
func EnqueueObjectCreated(ctx context.Context, client Enqueuer, ev model.ObjectEvent) error {
	task, err := NewObjectCreatedTask(ev)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue object created task: %w", err)
	}
	return nil
}

// PollTaskID is stable per job and attempt so a duplicate schedule collapses
// into the one already queued.
func PollTaskID(jobID string, attempt int) string {
	return fmt.Sprintf("poll:%s:%d", jobID, attempt)
}

// SchedulePoll enqueues p to run after delay.
func SchedulePoll(ctx context.Context, client Enqueuer, p PollPayload, delay time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(PollTask, data)
	_, err = client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID(PollTaskID(p.JobID, p.Attempt)),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("schedule poll %s: %w", PollTaskID(p.JobID, p.Attempt), err)
	}
	return nil
}

// DecodeObjectCreated reads the payload of an ObjectCreatedTask.
func DecodeObjectCreated(task *asynq.Task) (model.ObjectEvent, error) {
	var p ObjectCreatedPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return model.ObjectEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	return model.ObjectEvent{Bucket: p.Bucket, Key: p.Key}, nil
}

// DecodePoll reads the payload of a PollTask.
func DecodePoll(task *asynq.Task) (PollPayload, error) {
	var p PollPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return PollPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// Scheduler adapts an Enqueuer to the orchestrator's poll scheduling.
type Scheduler struct {
	Client Enqueuer
}

// SchedulePoll implements the orchestrator's Scheduler.
func (s Scheduler) SchedulePoll(ctx context.Context, p PollPayload, delay time.Duration) error {
	return SchedulePoll(ctx, s.Client, p, delay)
}

// RedisOpt converts connection settings into asynq's form.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}
