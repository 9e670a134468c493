// Package model contains the struct definitions shared by the pipeline
// stages. Nothing here is persisted by the stages themselves: raw objects and
// derived artifacts live in the blob store, jobs live in the detection
// service.
package model

import (
	"mime"
	"path"
	"strings"
	"time"
)

// FileType is one of the upload formats the pipeline accepts.
type FileType string

const (
	FileTypeJPEG FileType = "image/jpeg"
	FileTypePNG  FileType = "image/png"
	FileTypePDF  FileType = "application/pdf"
)

// SupportedFileTypes lists the MIME types accepted at intake.
var SupportedFileTypes = []FileType{FileTypeJPEG, FileTypePNG, FileTypePDF}

// FileTypeOf returns the MIME type implied by the extension of a file name or
// object key.
func FileTypeOf(name string) FileType {
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return FileType(strings.TrimSpace(ct))
}

// Supported reports whether t is one of SupportedFileTypes.
func (t FileType) Supported() bool {
	for _, s := range SupportedFileTypes {
		if s == t {
			return true
		}
	}
	return false
}

// UploadRequest is what a client sends to obtain a write address. FileType is
// informational for the issuer.
type UploadRequest struct {
	FileName string   `json:"fileName"`
	Email    string   `json:"email"`
	FileType FileType `json:"fileType,omitempty"`
}

// SignedAddress is a time-limited write or read capability. BoundHeaders are
// part of the signature: a request that omits or alters them is rejected.
type SignedAddress struct {
	URL          string            `json:"url"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	BoundHeaders map[string]string `json:"boundHeaders,omitempty"`
}

// JobStatus mirrors the detection service's job states.
type JobStatus string

const (
	JobInProgress     JobStatus = "IN_PROGRESS"
	JobSucceeded      JobStatus = "SUCCEEDED"
	JobFailed         JobStatus = "FAILED"
	JobPartialSuccess JobStatus = "PARTIAL_SUCCESS"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s != JobInProgress
}

// Job is the detection service's view of one submission. Lines holds the
// LINE blocks in the order the service returned them and is only populated
// once Status is JobSucceeded.
type Job struct {
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
	Lines   []string  `json:"lines,omitempty"`
}

// DownloadLink is one entry of the delivery notification.
type DownloadLink struct {
	Key       string    `json:"key"`
	LongURL   string    `json:"longUrl"`
	ShortURL  string    `json:"shortUrl"`
	Shortened bool      `json:"shortened"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ObjectEvent is a storage write notification.
type ObjectEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ObjectInfo is the subset of object metadata the stages look at.
type ObjectInfo struct {
	Key   string
	Size  int64
	ETag  string
	JobID string
}
