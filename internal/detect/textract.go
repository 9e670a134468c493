package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

// textractAPI is the subset of *textract.Client the adapter calls.
type textractAPI interface {
	StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// Textract runs detection jobs on Amazon Textract.
type Textract struct {
	api textractAPI
}

// NewTextract builds the adapter from an AWS config.
func NewTextract(cfg aws.Config) *Textract {
	return &Textract{api: textract.NewFromConfig(cfg)}
}

// Start begins asynchronous text detection for an S3 object.
func (t *Textract) Start(ctx context.Context, bucket, key string) (string, error) {
	out, err := t.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{Bucket: aws.String(bucket), Name: aws.String(key)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start text detection %s: %w", key, err)
	}
	if out.JobId == nil || *out.JobId == "" {
		return "", errors.New("start text detection: empty job id")
	}
	return *out.JobId, nil
}

// Get reads the job status and, once it has succeeded, every result page.
func (t *Textract) Get(ctx context.Context, jobID string) (model.Job, error) {
	job := model.Job{ID: jobID}
	var next *string
	for {
		out, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: next,
		})
		if err != nil {
			var notFound *types.InvalidJobIdException
			if errors.As(err, &notFound) {
				return model.Job{}, fmt.Errorf("%s: %w", jobID, ErrUnknownJob)
			}
			return model.Job{}, fmt.Errorf("get text detection %s: %w", jobID, err)
		}
		job.Status = model.JobStatus(out.JobStatus)
		job.Message = aws.ToString(out.StatusMessage)
		if out.JobStatus != types.JobStatusSucceeded {
			job.Lines = nil
			return job, nil
		}
		for _, block := range out.Blocks {
			if block.BlockType == types.BlockTypeLine {
				job.Lines = append(job.Lines, aws.ToString(block.Text))
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return job, nil
		}
		next = out.NextToken
	}
}
