package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INPUT_BUCKET_NAME", "uploads")
	t.Setenv("PROCESSED_BUCKET_NAME", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "uploads", cfg.InputBucket)
	assert.Equal(t, "uploads", cfg.ProcessedBucket, "processed bucket falls back to the input bucket")
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)
	assert.Equal(t, "bitly_access_token", cfg.BitlySecretName)
	assert.Equal(t, DetectorTextract, cfg.Detector)
	assert.Equal(t, EventSourceWebhook, cfg.EventSource)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROCESSED_BUCKET_NAME", "out")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("MAX_POLL_ATTEMPTS", "3")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("DETECTOR", "LOCAL")
	t.Setenv("EVENT_SOURCE", "listen")
	t.Setenv("WORKERS", "-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.ProcessedBucket)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxPollAttempts)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, DetectorLocal, cfg.Detector)
	assert.Equal(t, EventSourceListen, cfg.EventSource)
	assert.Equal(t, defaultWorkerCount, cfg.Workers)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("MAX_POLL_ATTEMPTS", "many")
	t.Setenv("DETECTOR", "tesseract")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultPollInterval, cfg.PollInterval)
	assert.Equal(t, defaultMaxPolls, cfg.MaxPollAttempts)
	assert.Equal(t, DetectorTextract, cfg.Detector)
}
