// Package detect talks to the text-detection job service. A job is started
// against an object in the blob store and polled until it reaches a terminal
// status; the service owns all job state.
package detect

import (
	"context"
	"errors"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

// ErrUnknownJob is returned by Get for job ids the service does not know.
var ErrUnknownJob = errors.New("unknown detection job")

// Service is the job contract both adapters implement.
type Service interface {
	// Start submits bucket/key for detection and returns the job id.
	Start(ctx context.Context, bucket, key string) (string, error)
	// Get returns the job's status. Lines are filled in, in service order,
	// only when the status is model.JobSucceeded.
	Get(ctx context.Context, jobID string) (model.Job, error)
}
