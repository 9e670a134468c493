package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/events"
	"github.com/dharsanguruparan/TextDrop/internal/model"
)

const (
	// TaggingHeader carries object tags on a PUT.
	TaggingHeader = "X-Amz-Tagging"
	// JobIDMeta is the user metadata key artifacts carry their job id under.
	JobIDMeta = "job-id"

	objectCreatedEvent = "s3:ObjectCreated:*"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage wraps MinIO/S3 interactions for raw uploads and derived artifacts.
type Storage struct {
	client          *minio.Client
	rawBucket       string
	processedBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		rawBucket:       cfg.InputBucket,
		processedBucket: cfg.ProcessedBucket,
		region:          cfg.S3Region,
	}, nil
}

// RawBucket is the bucket holding incoming/.
func (s *Storage) RawBucket() string { return s.rawBucket }

// ProcessedBucket is the bucket holding processed/.
func (s *Storage) ProcessedBucket() string { return s.processedBucket }

// EnsureBuckets makes sure the raw/processed buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range uniq(s.rawBucket, s.processedBucket) {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// PresignUpload returns a PUT address for key in the raw bucket whose
// signature covers the tagging header, so the uploader cannot drop or change
// the tags.
func (s *Storage) PresignUpload(ctx context.Context, key string, tags map[string]string, ttl time.Duration) (string, map[string]string, error) {
	bound := map[string]string{}
	headers := http.Header{}
	if len(tags) > 0 {
		tagging := encodeTags(tags)
		headers.Set(TaggingHeader, tagging)
		bound[TaggingHeader] = tagging
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.rawBucket, key, ttl, url.Values{}, headers)
	if err != nil {
		return "", nil, fmt.Errorf("presign upload %s: %w", key, err)
	}
	return u.String(), bound, nil
}

// PutArtifact writes a derived artifact into the processed bucket.
func (s *Storage) PutArtifact(ctx context.Context, key string, body []byte, contentType string, tags map[string]string, jobID string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserTags:     tags,
		UserMetadata: map[string]string{JobIDMeta: jobID},
	}
	_, err := s.client.PutObject(ctx, s.processedBucket, key, bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", key, err)
	}
	return nil
}

// Download fetches an object's bytes from bucket.
func (s *Storage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf, nil
}

// PresignDownload returns a signed GET for a processed artifact that makes
// browsers download instead of render.
func (s *Storage) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", "attachment")
	u, err := s.client.PresignedGetObject(ctx, s.processedBucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign download %s: %w", key, err)
	}
	return u.String(), nil
}

// ObjectTags returns the tags of an object in bucket.
func (s *Storage) ObjectTags(ctx context.Context, bucket, key string) (map[string]string, error) {
	t, err := s.client.GetObjectTagging(ctx, bucket, key, minio.GetObjectTaggingOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get tags %s: %w", key, err)
	}
	return t.ToMap(), nil
}

// StatArtifact reads the metadata of a processed artifact.
func (s *Storage) StatArtifact(ctx context.Context, key string) (model.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.processedBucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return model.ObjectInfo{}, fmt.Errorf("%s/%s: %w", s.processedBucket, key, ErrNotFound)
		}
		return model.ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return model.ObjectInfo{
		Key:   info.Key,
		Size:  info.Size,
		ETag:  info.ETag,
		JobID: info.Metadata.Get("X-Amz-Meta-" + JobIDMeta),
	}, nil
}

// Listen subscribes to object-created notifications on bucket and calls fn for
// each record until ctx is cancelled. MinIO only; AWS buckets deliver events
// through the webhook ingress instead.
func (s *Storage) Listen(ctx context.Context, bucket string, fn func(model.ObjectEvent)) error {
	for info := range s.client.ListenBucketNotification(ctx, bucket, "", "", []string{objectCreatedEvent}) {
		if info.Err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("listen %s: %w", bucket, info.Err)
		}
		for _, rec := range info.Records {
			fn(events.FromRecord(rec))
		}
	}
	return nil
}

func encodeTags(tags map[string]string) string {
	v := url.Values{}
	for k, val := range tags {
		v.Set(k, val)
	}
	return v.Encode()
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func uniq(names ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
