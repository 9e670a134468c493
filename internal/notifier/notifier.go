// Package notifier tells the uploader where to download the derived
// artifacts. It fires on every artifact write but publishes once per job: the
// pair must be complete and a dedup marker keyed by the job id must be
// claimed before anything is sent.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dharsanguruparan/TextDrop/internal/dedup"
	"github.com/dharsanguruparan/TextDrop/internal/layout"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/publish"
	"github.com/dharsanguruparan/TextDrop/internal/s3storage"
)

const emailTag = "email"

var (
	// ErrSiblingMissing means the other artifact of the pair is not written
	// yet. Its own write event will trigger the notification.
	ErrSiblingMissing = errors.New("sibling artifact not written yet")
	// ErrPairIncomplete means the two artifacts belong to different jobs,
	// as happens while a re-run overwrites the pair.
	ErrPairIncomplete = errors.New("artifact pair incomplete")
)

// Store is the blob store surface the notifier uses.
type Store interface {
	StatArtifact(ctx context.Context, key string) (model.ObjectInfo, error)
	ObjectTags(ctx context.Context, bucket, key string) (map[string]string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Secrets resolves the shortener credential.
type Secrets interface {
	Lookup(ctx context.Context, secretID string) (string, error)
}

// Shortener shortens one URL.
type Shortener interface {
	Shorten(ctx context.Context, longURL, token string) (string, error)
}

// Publisher sends the notification.
type Publisher interface {
	Publish(ctx context.Context, msg publish.Message) (string, error)
}

// Marker is the once-per-job claim. Claim returns dedup.ErrAlreadyClaimed
// when another invocation holds the marker.
type Marker interface {
	Claim(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// Config holds the notifier's fixed settings.
type Config struct {
	SecretID string
	TTL      time.Duration
}

// Notifier is the delivery stage.
type Notifier struct {
	store     Store
	secrets   Secrets
	shortener Shortener
	publisher Publisher
	marker    Marker
	cfg       Config
	now       func() time.Time
	log       *logging.Logger
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithClock replaces time.Now for link expiry.
func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(n *Notifier) { n.log = l } }

// New builds a Notifier.
func New(store Store, secrets Secrets, shortener Shortener, publisher Publisher, marker Marker, cfg Config, opts ...Option) *Notifier {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	n := &Notifier{
		store:     store,
		secrets:   secrets,
		shortener: shortener,
		publisher: publisher,
		marker:    marker,
		cfg:       cfg,
		now:       time.Now,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Handle processes one storage write. Keys other than processed/*.txt and
// processed/*.csv are ignored.
func (n *Notifier) Handle(ctx context.Context, ev model.ObjectEvent) model.Result {
	if !layout.IsArtifact(ev.Key) {
		return model.Succeeded("ignored %s", ev.Key)
	}
	pair, err := layout.SiblingKeys(ev.Key)
	if err != nil {
		return model.Succeeded("ignored %s", ev.Key)
	}
	log := n.log.With("bucket", ev.Bucket, "key", ev.Key)

	jobID, err := n.completePair(ctx, pair)
	switch {
	case errors.Is(err, ErrSiblingMissing):
		log.Debug(ctx, "waiting for sibling artifact", "error", err)
		return model.Succeeded("waiting for sibling of %s", ev.Key)
	case errors.Is(err, ErrPairIncomplete):
		// A re-run rewrites the pair one artifact at a time; the later write
		// event sees matching job ids.
		log.Warn(ctx, "artifact pair from different jobs, waiting", "error", err)
		return model.Succeeded("waiting for sibling of %s", ev.Key)
	case err != nil:
		log.Error(ctx, "stat artifacts failed", "error", err)
		return model.Retryable(err)
	}
	log = log.With("job_id", jobID)

	if err := n.marker.Claim(ctx, jobID); err != nil {
		if errors.Is(err, dedup.ErrAlreadyClaimed) {
			log.Info(ctx, "notification already sent")
			return model.Succeeded("duplicate trigger for job %s", jobID)
		}
		log.Error(ctx, "claim failed", "error", err)
		return model.Retryable(fmt.Errorf("claim %s: %w", jobID, err))
	}

	res := n.deliver(ctx, ev.Bucket, pair, log)
	if res.Failed() {
		if err := n.marker.Release(ctx, jobID); err != nil {
			log.Error(ctx, "release failed", "error", err)
		}
		return res
	}
	return model.Succeeded("notification sent for job %s", jobID)
}

// completePair returns the shared job id of both artifacts.
func (n *Notifier) completePair(ctx context.Context, pair layout.Pair) (string, error) {
	txt, err := n.store.StatArtifact(ctx, pair.Text)
	if err != nil {
		return "", statErr(pair.Text, err)
	}
	csv, err := n.store.StatArtifact(ctx, pair.CSV)
	if err != nil {
		return "", statErr(pair.CSV, err)
	}
	if txt.JobID != csv.JobID {
		return "", fmt.Errorf("%s: job %q vs %q: %w", pair.Base, txt.JobID, csv.JobID, ErrPairIncomplete)
	}
	if txt.JobID == "" {
		// Artifacts written without a job id still dedup per pair.
		return pair.Base, nil
	}
	return txt.JobID, nil
}

func statErr(key string, err error) error {
	if errors.Is(err, s3storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrSiblingMissing)
	}
	return fmt.Errorf("stat %s: %w", key, err)
}

func (n *Notifier) deliver(ctx context.Context, bucket string, pair layout.Pair, log *logging.Logger) model.Result {
	token, err := n.secrets.Lookup(ctx, n.cfg.SecretID)
	if err != nil {
		log.Error(ctx, "secret lookup failed", "error", err)
		return model.Fatal(fmt.Errorf("shortener credential: %w", err))
	}
	txt, err := n.link(ctx, pair.Text, token, log)
	if err != nil {
		return model.Retryable(err)
	}
	csv, err := n.link(ctx, pair.CSV, token, log)
	if err != nil {
		return model.Retryable(err)
	}

	msg := publish.Message{Body: Compose(txt, csv, n.cfg.TTL)}
	tags, err := n.store.ObjectTags(ctx, bucket, pair.Text)
	if err != nil {
		log.Warn(ctx, "artifact tags unavailable", "error", err)
	} else if email := tags[emailTag]; email != "" {
		msg.Attributes = map[string]string{publish.EmailAttribute: email}
	}
	if _, err := n.publisher.Publish(ctx, msg); err != nil {
		log.Error(ctx, "publish failed", "error", err)
		return model.Retryable(err)
	}
	log.Info(ctx, "notification published", "shortened_text", txt.Shortened, "shortened_csv", csv.Shortened)
	return model.Succeeded("published")
}

// link mints a download address for key and shortens it, falling back to
// the long address when shortening fails.
func (n *Notifier) link(ctx context.Context, key, token string, log *logging.Logger) (model.DownloadLink, error) {
	minted := n.now()
	long, err := n.store.PresignDownload(ctx, key, n.cfg.TTL)
	if err != nil {
		log.Error(ctx, "presign download failed", "artifact", key, "error", err)
		return model.DownloadLink{}, fmt.Errorf("presign %s: %w", key, err)
	}
	dl := model.DownloadLink{Key: key, LongURL: long, ShortURL: long, ExpiresAt: minted.Add(n.cfg.TTL).UTC()}
	short, err := n.shortener.Shorten(ctx, long, token)
	if err != nil {
		log.Warn(ctx, "shortening failed, using signed url", "artifact", key, "url", redact(long), "error", err)
		return dl, nil
	}
	dl.ShortURL = short
	dl.Shortened = true
	return dl, nil
}

// Compose renders the notification body.
func Compose(txt, csv model.DownloadLink, ttl time.Duration) string {
	return fmt.Sprintf("Your document has been processed successfully. You can download the files using the links below:\n\n"+
		"Text File: %s\nCSV File: %s\n\nThe links will expire in %s.", txt.ShortURL, csv.ShortURL, expiry(ttl))
}

func expiry(ttl time.Duration) string {
	switch {
	case ttl == time.Hour:
		return "1 hour"
	case ttl%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(ttl/time.Hour))
	case ttl == time.Minute:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", int(ttl/time.Minute))
	}
}

// redact drops the query string, which holds the signature.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	return u.String()
}
