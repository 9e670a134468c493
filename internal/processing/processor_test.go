package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

func waitTerminal(t *testing.T, p *Processor, id string) model.Job {
	t.Helper()
	var job model.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = p.Status(id)
		return err == nil && job.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestProcessorRunsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := New(2)
	p.Start(ctx)

	p.Submit(Task{ID: "ok", Run: func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	}})
	p.Submit(Task{ID: "bad", Run: func(context.Context) ([]string, error) {
		return nil, errors.New("no text layer")
	}})

	ok := waitTerminal(t, p, "ok")
	assert.Equal(t, model.JobSucceeded, ok.Status)
	assert.Equal(t, []string{"a", "b"}, ok.Lines)

	bad := waitTerminal(t, p, "bad")
	assert.Equal(t, model.JobFailed, bad.Status)
	assert.Equal(t, "no text layer", bad.Message)
}

func TestProcessorSubmitIsVisibleBeforeStart(t *testing.T) {
	p := New(1)
	p.Submit(Task{ID: "queued", Run: func(context.Context) ([]string, error) { return nil, nil }})

	job, err := p.Status("queued")
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, job.Status)
}

func TestProcessorQueueFull(t *testing.T) {
	p := New(1) // buffer of 4, no workers started
	noop := func(context.Context) ([]string, error) { return nil, nil }
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		p.Submit(Task{ID: id, Run: noop})
	}

	job, err := p.Status("5")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "processing queue full", job.Message)
}

func TestProcessorUnknownJob(t *testing.T) {
	_, err := New(1).Status("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestProcessorEvictsFinishedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New(1)
	p.now = clock.Now
	p.Start(ctx)

	p.Submit(Task{ID: "j", Run: func(context.Context) ([]string, error) {
		return []string{"line"}, nil
	}})
	waitTerminal(t, p, "j")

	// Still readable inside the window, so a retried write can poll again.
	clock.Advance(DefaultRetention)
	job, err := p.Status("j")
	require.NoError(t, err)
	assert.Equal(t, []string{"line"}, job.Lines)

	clock.Advance(time.Second)
	_, err = p.Status("j")
	assert.ErrorIs(t, err, ErrNotFound)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.jobs)
}

func TestProcessorSweepsOnSubmit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New(1)
	p.now = clock.Now
	p.set("done", model.Job{ID: "done", Status: model.JobSucceeded, Lines: []string{"a"}})
	p.set("running", model.Job{ID: "running", Status: model.JobInProgress})

	clock.Advance(DefaultRetention + time.Second)
	p.Submit(Task{ID: "next", Run: func(context.Context) ([]string, error) { return nil, nil }})

	_, err := p.Status("done")
	assert.ErrorIs(t, err, ErrNotFound)
	running, err := p.Status("running")
	require.NoError(t, err)
	assert.Equal(t, model.JobInProgress, running.Status)
}
