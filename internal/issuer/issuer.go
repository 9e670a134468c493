// Package issuer hands out time-limited upload addresses for the incoming/
// namespace.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dharsanguruparan/TextDrop/internal/layout"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/publish"
)

// Outcome is the result of one issuance request.
type Outcome string

const (
	// Issued means an address was minted.
	Issued Outcome = "issued"
	// Suppressed means the request was accepted but no address was minted
	// because the recipient cannot receive notifications.
	Suppressed Outcome = "suppressed"
	// Failed means the request could not be served.
	Failed Outcome = "failed"
)

const (
	uploadSubject = "File Upload Notification"

	msgIssued       = "Pre-signed URL generated and notification sent"
	msgIssuedQuiet  = "Pre-signed URL generated; upload notification could not be sent"
	msgUnverified   = "The email provided is not verified. Please verify the email and resubmit."
	msgFailed       = "Failed to generate URL"
	msgMissingField = "fileName and email are required"
)

// EmailTag is the object tag binding an upload to its requester.
const EmailTag = "email"

var ErrMissingField = errors.New(msgMissingField)

// Presigner mints signed upload addresses.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, tags map[string]string, ttl time.Duration) (string, map[string]string, error)
}

// Verifier answers whether email can receive notifications.
type Verifier interface {
	Verified(ctx context.Context, email string) (bool, error)
}

// Publisher sends the upload-started notification.
type Publisher interface {
	Publish(ctx context.Context, msg publish.Message) (string, error)
}

// Response is the issuance envelope. PreSignedURL is null unless Outcome is
// Issued.
type Response struct {
	Outcome       Outcome           `json:"-"`
	StatusCode    int               `json:"-"`
	PreSignedURL  *string           `json:"preSignedURL"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty"`
	UploadHeaders map[string]string `json:"uploadHeaders,omitempty"`
}

// Issuer serves UploadRequests.
type Issuer struct {
	presigner Presigner
	verifier  Verifier
	publisher Publisher
	ttl       time.Duration
	now       func() time.Time
	log       *logging.Logger
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithVerifier enables recipient verification. Without one every address is
// treated as verified.
func WithVerifier(v Verifier) Option { return func(i *Issuer) { i.verifier = v } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(i *Issuer) { i.now = now } }

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(i *Issuer) { i.log = l } }

// New builds an Issuer. publisher may be nil, in which case no upload
// notification is sent.
func New(presigner Presigner, publisher Publisher, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		presigner: presigner,
		publisher: publisher,
		ttl:       ttl,
		now:       time.Now,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue mints a write address for incoming/<fileName> with email bound as a
// signed tag header.
func (i *Issuer) Issue(ctx context.Context, req model.UploadRequest) Response {
	fileName := strings.TrimSpace(req.FileName)
	email := strings.TrimSpace(req.Email)
	if fileName == "" || email == "" {
		return Response{Outcome: Failed, StatusCode: http.StatusBadRequest, Error: ErrMissingField.Error()}
	}
	log := i.log.With("file_name", fileName)

	if i.verifier != nil {
		ok, err := i.verifier.Verified(ctx, email)
		if err != nil {
			log.Error(ctx, "recipient verification failed", "error", err)
			return failed()
		}
		if !ok {
			log.Info(ctx, "upload suppressed for unverified recipient")
			return Response{Outcome: Suppressed, StatusCode: http.StatusOK, Message: msgUnverified}
		}
	}

	key := layout.RawKey(fileName)
	mintedAt := i.now()
	url, headers, err := i.presigner.PresignUpload(ctx, key, map[string]string{EmailTag: email}, i.ttl)
	if err != nil {
		log.Error(ctx, "presign upload failed", "key", key, "error", err)
		return failed()
	}
	expiresAt := mintedAt.Add(i.ttl).UTC()
	resp := Response{
		Outcome:       Issued,
		StatusCode:    http.StatusOK,
		PreSignedURL:  &url,
		Message:       msgIssued,
		ExpiresAt:     &expiresAt,
		UploadHeaders: headers,
	}
	if err := i.notifyUpload(ctx, fileName); err != nil {
		log.Warn(ctx, "upload notification not sent", "error", err)
		resp.Message = msgIssuedQuiet
	}
	log.Info(ctx, "upload address issued", "key", key, "expires_at", expiresAt)
	return resp
}

func (i *Issuer) notifyUpload(ctx context.Context, fileName string) error {
	if i.publisher == nil {
		return publish.ErrNoTopic
	}
	_, err := i.publisher.Publish(ctx, publish.Message{
		Subject: uploadSubject,
		Body:    fmt.Sprintf("A new file has been uploaded: %s", fileName),
	})
	return err
}

func failed() Response {
	return Response{Outcome: Failed, StatusCode: http.StatusInternalServerError, Error: msgFailed}
}
