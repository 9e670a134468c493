package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Options{Level: level, Output: &buf, Service: "test"}), &buf
}

func TestLoggerWritesFields(t *testing.T) {
	log, buf := newTestLogger("debug")
	ctx := context.Background()

	log.Info(ctx, "job started", "job_id", "j-1", "attempt", 2)
	log.Error(ctx, "job failed", "error", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"message":"job started"`)
	assert.Contains(t, out, `"job_id":"j-1"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"service":"test"`)
}

func TestLoggerLevelFilter(t *testing.T) {
	log, buf := newTestLogger("warn")
	ctx := context.Background()

	log.Debug(ctx, "hidden")
	log.Info(ctx, "hidden too")
	log.Warn(ctx, "visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestLoggerWithAddsFields(t *testing.T) {
	log, buf := newTestLogger("info")

	log.With("stage", "notifier").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, `"stage":"notifier"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestLoggerOddArgs(t *testing.T) {
	log, buf := newTestLogger("info")

	log.Info(context.Background(), "odd", "dangling")

	assert.Contains(t, buf.String(), `"!BADKEY":"dangling"`)
}

func TestNopDoesNotPanic(t *testing.T) {
	log := Nop()
	log.Info(context.TODO(), "ok")
	log.With("a", 1).Error(context.TODO(), "ok")
}
