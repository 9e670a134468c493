// Package processing runs detection work on a fixed pool of goroutines and
// remembers each job's status so callers can poll it. Finished jobs are
// dropped once they have been terminal for longer than the retention window.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

// ErrNotFound is returned by Status for unknown or evicted job ids.
var ErrNotFound = errors.New("job not found")

// DefaultRetention is how long a finished job stays readable. It covers a
// few missed poll intervals and the retries of an artifact write.
const DefaultRetention = 10 * time.Minute

// Task is one unit of work. Run returns the detected lines.
type Task struct {
	ID  string
	Run func(ctx context.Context) ([]string, error)
}

// Processor consumes Tasks and records their lifecycle.
type Processor struct {
	queue   chan Task
	workers int

	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry
}

type entry struct {
	job      model.Job
	finished time.Time
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		queue:     make(chan Task, workers*4),
		workers:   workers,
		retention: DefaultRetention,
		now:       time.Now,
		jobs:      make(map[string]*entry),
	}
}

// Start launches worker goroutines that exit when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Submit queues a task. The job is visible as IN_PROGRESS immediately; when
// the buffer is full the job is recorded as FAILED instead of blocking.
func (p *Processor) Submit(task Task) {
	p.set(task.ID, model.Job{ID: task.ID, Status: model.JobInProgress})
	select {
	case p.queue <- task:
	default:
		p.set(task.ID, model.Job{ID: task.ID, Status: model.JobFailed, Message: "processing queue full"})
	}
}

// Status returns a copy of the job's current state.
func (p *Processor) Status(id string) (model.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	if p.expired(e, p.now()) {
		delete(p.jobs, id)
		return model.Job{}, ErrNotFound
	}
	out := e.job
	out.Lines = append([]string(nil), e.job.Lines...)
	return out, nil
}

func (p *Processor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			p.process(ctx, task)
		}
	}
}

func (p *Processor) process(ctx context.Context, task Task) {
	lines, err := task.Run(ctx)
	if err != nil {
		p.set(task.ID, model.Job{ID: task.ID, Status: model.JobFailed, Message: err.Error()})
		return
	}
	p.set(task.ID, model.Job{ID: task.ID, Status: model.JobSucceeded, Lines: lines})
}

func (p *Processor) set(id string, job model.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for k, e := range p.jobs {
		if p.expired(e, now) {
			delete(p.jobs, k)
		}
	}
	e := &entry{job: job}
	if job.Status.Terminal() {
		e.finished = now
	}
	p.jobs[id] = e
}

func (p *Processor) expired(e *entry, now time.Time) bool {
	return !e.finished.IsZero() && now.Sub(e.finished) > p.retention
}
