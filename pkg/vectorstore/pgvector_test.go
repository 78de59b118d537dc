package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"standard", "research_archive", true},
		{"with numbers", "archive2", true},
		{"single letter", "a", true},
		{"max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true},
		{"starts with number", "1archive", false},
		{"dash", "research-archive", false},
		{"space", "research archive", false},
		{"sql injection", "archive; DROP TABLE research_jobs", false},
		{"empty", "", false},
		{"too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidTableName(tt.input))
		})
	}
}

func TestNewPGVectorStoreRejectsBadName(t *testing.T) {
	_, err := NewPGVectorStore(nil, "bad-name")
	assert.Error(t, err)
}

func TestBuildMetadataQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    Filter
		startArgs int
		wantQuery string
		wantArgs  int
		wantErr   bool
	}{
		{name: "empty", filter: Filter{}, wantQuery: "TRUE"},
		{name: "single key", filter: Filter{"request_id": "r1"}, wantQuery: "metadata @> $1", wantArgs: 1},
		{name: "placeholders follow existing args", filter: Filter{"request_id": "r1"}, startArgs: 1, wantQuery: "metadata @> $2", wantArgs: 2},
		{name: "multiple keys sorted", filter: Filter{"kind": "note", "request_id": "r1"}, wantQuery: "metadata @> $1 AND metadata @> $2", wantArgs: 2},
		{
			name:      "$or",
			filter:    Filter{"$or": []any{map[string]any{"kind": "note"}, Filter{"kind": "report"}}},
			wantQuery: "((metadata @> $1) OR (metadata @> $2))",
			wantArgs:  2,
		},
		{
			name:      "$not",
			filter:    Filter{"$not": map[string]any{"kind": "note"}},
			wantQuery: "NOT (metadata @> $1)",
			wantArgs:  1,
		},
		{
			name: "nested",
			filter: Filter{"$and": []any{
				map[string]any{"request_id": "r1"},
				map[string]any{"$or": []any{map[string]any{"kind": "note"}, map[string]any{"kind": "report"}}},
			}},
			wantQuery: "((metadata @> $1) AND (((metadata @> $2) OR (metadata @> $3))))",
			wantArgs:  3,
		},
		{name: "empty list ignored", filter: Filter{"$or": []any{}}, wantQuery: "TRUE"},
		{name: "$or not a list", filter: Filter{"$or": "x"}, wantErr: true},
		{name: "$and item not an object", filter: Filter{"$and": []any{"x"}}, wantErr: true},
		{name: "$not not an object", filter: Filter{"$not": []any{"x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := make([]any, tt.startArgs)
			got, err := buildMetadataQuery(tt.filter, &args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestBuildMetadataQueryEncodesContainment(t *testing.T) {
	var args []any
	_, err := buildMetadataQuery(Filter{"request_id": "r1"}, &args)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"request_id":"r1"}`, string(args[0].([]byte)))
}
