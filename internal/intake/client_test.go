package intake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/TextDrop/internal/model"
)

// stack serves both the issuer endpoint and the signed storage address.
type stack struct {
	srv       *httptest.Server
	calls     atomic.Int32
	suppress  bool
	putStatus int
	gotReq    model.UploadRequest
	gotType   string
	gotTag    string
	gotBody   []byte
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{putStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/presign", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.gotReq))
		w.Header().Set("Content-Type", "application/json")
		if s.suppress {
			_, _ = w.Write([]byte(`{"preSignedURL":null,"message":"not verified"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"preSignedURL":  s.srv.URL + "/raw/incoming/" + s.gotReq.FileName + "?X-Amz-Signature=x",
			"uploadHeaders": map[string]string{"X-Amz-Tagging": "email=a%40example.com"},
		})
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.gotType = r.Header.Get("Content-Type")
		s.gotTag = r.Header.Get("X-Amz-Tagging")
		s.gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(s.putStatus)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func TestSubmitUploadsWithBoundHeaders(t *testing.T) {
	s := newStack(t)
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)

	res := c.Submit(context.Background(), "report.pdf", model.FileTypePDF, []byte("%PDF-1.4"), "a@example.com")

	require.Equal(t, Uploaded, res.Status, res.Err)
	assert.Equal(t, model.UploadRequest{FileName: "report.pdf", Email: "a@example.com", FileType: model.FileTypePDF}, s.gotReq)
	assert.Equal(t, "application/pdf", s.gotType)
	assert.Equal(t, "email=a%40example.com", s.gotTag)
	assert.Equal(t, []byte("%PDF-1.4"), s.gotBody)
	assert.False(t, c.Loading())
}

func TestSubmitRejectsUnsupportedTypesBeforeNetwork(t *testing.T) {
	s := newStack(t)
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)

	for _, ft := range []model.FileType{"image/gif", "text/plain", "application/zip", ""} {
		res := c.Submit(context.Background(), "x", ft, []byte("x"), "a@example.com")
		assert.Equal(t, Rejected, res.Status, ft)
		assert.ErrorIs(t, res.Err, ErrUnsupportedType)
		assert.False(t, c.Loading())
	}
	assert.Zero(t, s.calls.Load())
}

func TestSubmitFileRejectsByExtension(t *testing.T) {
	s := newStack(t)
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)

	res := c.SubmitFile(context.Background(), filepath.Join(t.TempDir(), "missing.gif"), "a@example.com")
	assert.Equal(t, Rejected, res.Status)
	assert.Zero(t, s.calls.Load())
}

func TestSubmitFile(t *testing.T) {
	s := newStack(t)
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))

	res := c.SubmitFile(context.Background(), path, "a@example.com")

	require.Equal(t, Uploaded, res.Status, res.Err)
	assert.Equal(t, "scan.png", s.gotReq.FileName)
	assert.Equal(t, "image/png", s.gotType)
}

func TestSubmitUnverified(t *testing.T) {
	s := newStack(t)
	s.suppress = true
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)

	res := c.Submit(context.Background(), "a.pdf", model.FileTypePDF, []byte("x"), "new@example.com")

	assert.Equal(t, Unverified, res.Status)
	assert.Equal(t, int32(1), s.calls.Load(), "no upload may happen")
}

func TestSubmitUploadFailure(t *testing.T) {
	s := newStack(t)
	s.putStatus = http.StatusForbidden
	c := New(s.srv.URL+"/presign", s.srv.Client(), nil)

	res := c.Submit(context.Background(), "a.pdf", model.FileTypePDF, []byte("x"), "a@example.com")

	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, msgUploadFailed, res.Message)
	assert.ErrorContains(t, res.Err, "403")
}

func TestSubmitIssuerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"preSignedURL":null,"error":"Failed to generate URL"}`))
	}))
	defer srv.Close()
	c := New(srv.URL, srv.Client(), nil)

	res := c.Submit(context.Background(), "a.pdf", model.FileTypePDF, []byte("x"), "a@example.com")

	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, msgIssueFailed, res.Message)
	assert.ErrorContains(t, res.Err, "Failed to generate URL")
}

func TestLoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var c *Client
	var seen atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(c.Loading())
		<-release
		_, _ = w.Write([]byte(`{"preSignedURL":null}`))
	}))
	defer srv.Close()
	c = New(srv.URL, srv.Client(), nil)

	done := make(chan Result)
	go func() { done <- c.Submit(context.Background(), "a.pdf", model.FileTypePDF, nil, "a@example.com") }()
	require.Eventually(t, c.Loading, time.Second, time.Millisecond)
	close(release)
	<-done

	assert.True(t, seen.Load())
	assert.False(t, c.Loading())
}
