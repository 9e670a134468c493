package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
)

type fakeExtractor struct {
	events []model.ObjectEvent
	polls  []queue.PollPayload
	res    model.Result
}

func (f *fakeExtractor) HandleObjectCreated(_ context.Context, ev model.ObjectEvent) model.Result {
	f.events = append(f.events, ev)
	return f.res
}

func (f *fakeExtractor) Poll(_ context.Context, p queue.PollPayload) model.Result {
	f.polls = append(f.polls, p)
	return f.res
}

type fakeDeliverer struct {
	events []model.ObjectEvent
	res    model.Result
}

func (f *fakeDeliverer) Handle(_ context.Context, ev model.ObjectEvent) model.Result {
	f.events = append(f.events, ev)
	return f.res
}

func TestAsTaskError(t *testing.T) {
	cause := errors.New("boom")

	assert.NoError(t, AsTaskError(model.Succeeded("ok")))
	assert.NoError(t, AsTaskError(model.Rejected(cause)))

	err := AsTaskError(model.Retryable(cause))
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = AsTaskError(model.Fatal(cause))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.ErrorIs(t, AsTaskError(model.Result{Kind: model.FatalFailure}), asynq.SkipRetry)
}

func TestObjectCreatedFansOut(t *testing.T) {
	ext := &fakeExtractor{res: model.Succeeded("started")}
	del := &fakeDeliverer{res: model.Succeeded("ignored")}
	p := NewProcessor(ext, del, nil)
	ev := model.ObjectEvent{Bucket: "raw", Key: "incoming/a.pdf"}
	task, err := queue.NewObjectCreatedTask(ev)
	require.NoError(t, err)

	require.NoError(t, p.handleObjectCreated(context.Background(), task))

	assert.Equal(t, []model.ObjectEvent{ev}, ext.events)
	assert.Equal(t, []model.ObjectEvent{ev}, del.events)
}

func TestObjectCreatedPropagatesFailures(t *testing.T) {
	cause := errors.New("publish failed")
	p := NewProcessor(&fakeExtractor{res: model.Succeeded("ignored")}, &fakeDeliverer{res: model.Retryable(cause)}, nil)
	task, err := queue.NewObjectCreatedTask(model.ObjectEvent{Bucket: "done", Key: "processed/a.pdf.csv"})
	require.NoError(t, err)

	assert.ErrorIs(t, p.handleObjectCreated(context.Background(), task), cause)
}

func TestPollTask(t *testing.T) {
	ext := &fakeExtractor{res: model.Fatal(errors.New("exhausted"))}
	p := NewProcessor(ext, &fakeDeliverer{}, nil)
	task := asynq.NewTask(queue.PollTask, []byte(`{"jobId":"j","bucket":"raw","rawKey":"incoming/a.pdf","attempt":4}`))

	err := p.handlePoll(context.Background(), task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, []queue.PollPayload{{JobID: "j", Bucket: "raw", RawKey: "incoming/a.pdf", Attempt: 4}}, ext.polls)
}

func TestMalformedPayloadIsNotRetried(t *testing.T) {
	p := NewProcessor(&fakeExtractor{}, &fakeDeliverer{}, nil)

	assert.ErrorIs(t, p.handlePoll(context.Background(), asynq.NewTask(queue.PollTask, []byte("{"))), asynq.SkipRetry)
	assert.ErrorIs(t, p.handleObjectCreated(context.Background(), asynq.NewTask(queue.ObjectCreatedTask, []byte("x"))), asynq.SkipRetry)
}
