// Package shortener turns long signed URLs into short links.
package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrEmptyLink is returned when the service answers without a link.
var ErrEmptyLink = errors.New("shortener returned no link")

// Bitly calls the Bitly v4 shorten endpoint.
type Bitly struct {
	endpoint string
	client   *http.Client
}

// NewBitly builds a client for endpoint (https://api-ssl.bitly.com/v4/shorten).
func NewBitly(endpoint string, client *http.Client) *Bitly {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Bitly{endpoint: endpoint, client: client}
}

type shortenRequest struct {
	LongURL string `json:"long_url"`
}

type shortenResponse struct {
	Link string `json:"link"`
}

// Shorten returns the short link for longURL using token as the bearer
// credential.
func (b *Bitly) Shorten(ctx context.Context, longURL, token string) (string, error) {
	body, err := json.Marshal(shortenRequest{LongURL: longURL})
	if err != nil {
		return "", fmt.Errorf("marshal shorten request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build shorten request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("shorten: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("shorten: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out shortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode shorten response: %w", err)
	}
	if out.Link == "" {
		return "", ErrEmptyLink
	}
	return out.Link, nil
}
