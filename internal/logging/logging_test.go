package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "json", "info")
		require.NoError(t, err)
		logger.Info("hello", "driver_id", "D1")
		assert.Contains(t, buf.String(), `"msg":"hello"`)
		assert.Contains(t, buf.String(), `"driver_id":"D1"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "", "")
		require.NoError(t, err)
		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "xml", "info")
		assert.Error(t, err)
	})
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, "json", "info")
	LogError(logger, "pull failed", errors.New("boom"), slog.String("url", "http://x"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"err":"boom"`)
	assert.Contains(t, out, `"url":"http://x"`)

	LogError(nil, "ignored", errors.New("boom"))
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close failed") }

func TestSafeClose(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&buf, "json", "info")

	SafeClose(failingCloser{}, logger, "body")
	assert.Contains(t, buf.String(), `"resource":"body"`)

	SafeClose(nil, logger, "nil")
}

func TestContextRoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
