package logger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(WithLevel("loud"), WithOutputPaths([]string{"stdout"}))
	require.Error(t, err)
}

func TestNewLoggerCreatesFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	log, err := NewLogger(WithEncoding("console"), WithOutputPaths([]string{path}))
	require.NoError(t, err)
	log.Info("hello", String("k", "v"))
	assert.DirExists(t, filepath.Dir(path))
}

func TestTestLoggerChildrenShareEntries(t *testing.T) {
	root := NewTestLogger()
	child := root.Named("svc").With(String("a", "b"))
	child.Warn("careful")
	root.Info("plain")

	entries := root.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "svc", entries[0].Logger)
	assert.Len(t, entries[0].Fields, 1)
	assert.Len(t, root.EntriesAt("WARN"), 1)

	root.Clear()
	assert.Empty(t, root.GetEntries())
}

func TestFromContextAddsRequestID(t *testing.T) {
	root := NewTestLogger()
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	FromContext(ctx, root).Info("x")
	entries := root.GetEntries()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Fields, 1)
	assert.Equal(t, "request_id", entries[0].Fields[0].Key)
	assert.Equal(t, "req-1", entries[0].Fields[0].String)

	FromContext(context.Background(), root).Info("y")
	assert.Empty(t, root.GetEntries()[1].Fields)
}
