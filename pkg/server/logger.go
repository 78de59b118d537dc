package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of a pgx pool the log handler needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertLog = `
	INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
	VALUES ($1, $2, $3, $4, $5)
`

// DBLogHandler is a slog.Handler that writes records to research_logs so a
// job's progress can be read back through the API. Records are optionally
// forwarded to a second handler, usually the process's console handler.
type DBLogHandler struct {
	db     Execer
	jobID  uuid.UUID
	level  slog.Leveler
	next   slog.Handler
	attrs  []slog.Attr
	groups []string
}

func NewDBLogHandler(db Execer, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{db: db, jobID: jobID, level: slog.LevelDebug, next: next}
}

func (h *DBLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		_ = h.next.Handle(ctx, r.Clone())
	}

	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(meta, a)
	}
	target := meta
	for _, g := range h.groups {
		sub, ok := target[g].(map[string]any)
		if !ok {
			sub = map[string]any{}
			target[g] = sub
		}
		target = sub
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs must persist even when the caller's context is already cancelled.
	_, err = h.db.Exec(context.WithoutCancel(ctx), insertLog, h.jobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	if len(h.groups) == 0 {
		clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
		return &clone
	}
	// Attributes added inside a group belong to that group.
	grouped := slog.Group(h.groups[len(h.groups)-1], attrsToAny(attrs)...)
	for i := len(h.groups) - 2; i >= 0; i-- {
		grouped = slog.Group(h.groups[i], grouped)
	}
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), grouped)
	return &clone
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func addAttr(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		target := m
		if a.Key != "" {
			sub, ok := m[a.Key].(map[string]any)
			if !ok {
				sub = map[string]any{}
				m[a.Key] = sub
			}
			target = sub
		}
		for _, ga := range group {
			addAttr(target, ga)
		}
		return
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	m[a.Key] = v
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}
