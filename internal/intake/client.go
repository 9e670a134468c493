// Package intake is the uploader side of the pipeline: it filters file
// types, asks the issuer for an address and PUTs the bytes there.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
)

// Status is the user-visible outcome of a submission.
type Status string

const (
	Uploaded   Status = "uploaded"
	Unverified Status = "unverified"
	Rejected   Status = "rejected"
	Failed     Status = "failed"
)

const (
	msgUnsupported  = "Unsupported file type! Allowed types are JPEG, PNG, PDF"
	msgUnverified   = "The email provided is not verified. Please verify the email and resubmit."
	msgUploadFailed = "Something went wrong while uploading the file! Please try again."
	msgIssueFailed  = "Something went wrong! Please try again later."
)

// ErrUnsupportedType is returned for anything other than JPEG, PNG or PDF.
var ErrUnsupportedType = errors.New("unsupported file type")

// Result describes how a submission ended.
type Result struct {
	Status  Status
	Message string
	Err     error
}

// Client talks to the issuer endpoint and the storage address it returns.
type Client struct {
	endpoint string
	http     *http.Client
	log      *logging.Logger
	loading  atomic.Bool
}

// New returns a Client for the issuer at endpoint.
func New(endpoint string, client *http.Client, log *logging.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{endpoint: endpoint, http: client, log: log}
}

// Loading reports whether a submission is in flight.
func (c *Client) Loading() bool { return c.loading.Load() }

// CheckType rejects file types the pipeline cannot read.
func CheckType(ft model.FileType) error {
	if !ft.Supported() {
		return fmt.Errorf("%q: %w", ft, ErrUnsupportedType)
	}
	return nil
}

// SubmitFile uploads the file at path on behalf of email.
func (c *Client) SubmitFile(ctx context.Context, path, email string) Result {
	ft := model.FileTypeOf(path)
	if err := CheckType(ft); err != nil {
		return Result{Status: Rejected, Message: msgUnsupported, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Status: Failed, Message: msgUploadFailed, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return c.Submit(ctx, filepath.Base(path), ft, data, email)
}

// Submit uploads data as fileName. The type filter runs before any network
// call.
func (c *Client) Submit(ctx context.Context, fileName string, ft model.FileType, data []byte, email string) Result {
	if err := CheckType(ft); err != nil {
		return Result{Status: Rejected, Message: msgUnsupported, Err: err}
	}
	c.loading.Store(true)
	defer c.loading.Store(false)

	addr, err := c.requestAddress(ctx, model.UploadRequest{FileName: fileName, Email: email, FileType: ft})
	if err != nil {
		c.log.Error(ctx, "address request failed", "file_name", fileName, "error", err)
		return Result{Status: Failed, Message: msgIssueFailed, Err: err}
	}
	if addr.PreSignedURL == nil || *addr.PreSignedURL == "" {
		c.log.Warn(ctx, "recipient not verified", "file_name", fileName)
		return Result{Status: Unverified, Message: msgUnverified}
	}
	headers := addr.UploadHeaders
	if len(headers) == 0 {
		headers = map[string]string{"X-Amz-Tagging": url.Values{"email": {email}}.Encode()}
	}
	if err := c.put(ctx, *addr.PreSignedURL, ft, data, headers); err != nil {
		c.log.Error(ctx, "upload failed", "file_name", fileName, "error", err)
		return Result{Status: Failed, Message: msgUploadFailed, Err: err}
	}
	c.log.Info(ctx, "upload complete", "file_name", fileName, "size", len(data))
	return Result{
		Status:  Uploaded,
		Message: "Your document is being processed. The generated file links will be emailed to " + email,
	}
}

type addressResponse struct {
	PreSignedURL  *string           `json:"preSignedURL"`
	Message       string            `json:"message"`
	Error         string            `json:"error"`
	UploadHeaders map[string]string `json:"uploadHeaders"`
}

func (c *Client) requestAddress(ctx context.Context, req model.UploadRequest) (*addressResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request address: %w", err)
	}
	defer resp.Body.Close()
	var out addressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode address response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request address: status %d: %s", resp.StatusCode, out.Error)
	}
	return &out, nil
}

func (c *Client) put(ctx context.Context, addr string, ft model.FileType, data []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, addr, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	req.Header.Set("Content-Type", string(ft))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
