package detect

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/TextDrop/internal/model"
	pdfutil "github.com/dharsanguruparan/TextDrop/internal/pdf"
	"github.com/dharsanguruparan/TextDrop/internal/processing"
)

// ErrNeedsOCR is the failure message of local jobs for image uploads.
var ErrNeedsOCR = errors.New("local detector reads PDF text layers only")

// Fetcher downloads object bytes.
type Fetcher interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Local runs detection in-process with the PDF text extractor. It keeps the
// same start/poll contract as Textract so the orchestrator does not care
// which one it is talking to.
type Local struct {
	pool  *processing.Processor
	fetch Fetcher
}

// NewLocal builds the adapter. The pool must already be started.
func NewLocal(pool *processing.Processor, fetch Fetcher) *Local {
	return &Local{pool: pool, fetch: fetch}
}

// Start queues a job and returns its id.
func (l *Local) Start(ctx context.Context, bucket, key string) (string, error) {
	id := uuid.NewString()
	l.pool.Submit(processing.Task{
		ID: id,
		Run: func(ctx context.Context) ([]string, error) {
			if !strings.EqualFold(path.Ext(key), ".pdf") {
				return nil, ErrNeedsOCR
			}
			data, err := l.fetch.Download(ctx, bucket, key)
			if err != nil {
				return nil, err
			}
			return pdfutil.ExtractLines(data)
		},
	})
	return id, nil
}

// Get returns the pooled job's status.
func (l *Local) Get(_ context.Context, jobID string) (model.Job, error) {
	job, err := l.pool.Status(jobID)
	if errors.Is(err, processing.ErrNotFound) {
		return model.Job{}, fmt.Errorf("%s: %w", jobID, ErrUnknownJob)
	}
	return job, err
}
