package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, f.err
}

func metadataOf(t *testing.T, c execCall) map[string]any {
	t.Helper()
	require.Len(t, c.args, 5)
	raw, ok := c.args[4].([]byte)
	require.True(t, ok)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	return meta
}

func TestDBLogHandlerWritesRecord(t *testing.T) {
	db := &fakeExecer{}
	jobID := uuid.New()
	logger := slog.New(NewDBLogHandler(db, jobID, nil))

	logger.Info("Research complete", "topics", 3, "error", errors.New("partial"))

	require.Len(t, db.calls, 1)
	c := db.calls[0]
	assert.Equal(t, jobID, c.args[0])
	assert.Equal(t, "INFO", c.args[2])
	assert.Equal(t, "Research complete", c.args[3])

	meta := metadataOf(t, c)
	assert.EqualValues(t, 3, meta["topics"])
	assert.Equal(t, "partial", meta["error"])
}

func TestDBLogHandlerAttrsAndGroups(t *testing.T) {
	db := &fakeExecer{}
	logger := slog.New(NewDBLogHandler(db, uuid.New(), nil)).
		With("job_id", "j1").
		WithGroup("stage").
		With("name", "supervisor")

	logger.Warn("Retrying", "attempt", 2)

	require.Len(t, db.calls, 1)
	meta := metadataOf(t, db.calls[0])
	assert.Equal(t, "j1", meta["job_id"])
	stage, ok := meta["stage"].(map[string]any)
	require.True(t, ok, "stage group missing: %v", meta)
	assert.Equal(t, "supervisor", stage["name"])
	assert.EqualValues(t, 2, stage["attempt"])
}

func TestDBLogHandlerForwards(t *testing.T) {
	db := &fakeExecer{}
	next := &countingHandler{}
	logger := slog.New(NewDBLogHandler(db, uuid.New(), next))

	logger.Debug("Stage started")

	assert.Len(t, db.calls, 1)
	assert.Equal(t, 1, next.count)
}

func TestDBLogHandlerReturnsExecError(t *testing.T) {
	db := &fakeExecer{err: errors.New("insert failed")}
	h := NewDBLogHandler(db, uuid.New(), nil)

	err := h.Handle(context.Background(), slog.NewRecord(testTime, slog.LevelError, "boom", 0))
	assert.EqualError(t, err, "insert failed")
}

type countingHandler struct{ count int }

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.count++
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }
