package aibridge

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/thinkblock/internal/apperr"
)

func decode(t *testing.T, raw json.RawMessage) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{
			name: "json fence",
			in:   "Here you go:\n```json\n{\"a\": 1}\n```\nThanks!",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "json fence preferred over earlier plain fence",
			in:   "```\nnot json\n```\n```json\n{\"a\": 2}\n```",
			want: map[string]any{"a": float64(2)},
		},
		{
			name: "plain fence with json tag",
			in:   "```\njson\n{\"a\": 3}\n```",
			want: map[string]any{"a": float64(3)},
		},
		{
			name: "trailing commentary with braces",
			in:   `Sure. {"a": {"b": [1, 2]}} Hope this helps {really}.`,
			want: map[string]any{"a": map[string]any{"b": []any{float64(1), float64(2)}}},
		},
		{
			name: "braces inside strings",
			in:   `{"text": "a } tricky { value", "n": 1} trailing }`,
			want: map[string]any{"text": "a } tricky { value", "n": float64(1)},
		},
		{
			name: "escaped quotes inside strings",
			in:   `{"text": "say \"}\" twice"}`,
			want: map[string]any{"text": `say "}" twice`},
		},
		{
			name: "bare array",
			in:   `Result: [{"id": "x", "level": 1}]`,
			want: []any{map[string]any{"id": "x", "level": float64(1)}},
		},
		{
			name: "stray bracket before object",
			in:   `[note] here is the answer {"a": 4}`,
			want: map[string]any{"a": float64(4)},
		},
		{
			name: "citation before object",
			in:   "Following guideline [1], here is the plan:\n{\"blocks\": [{\"title\": \"A\"}]}",
			want: map[string]any{"blocks": []any{map[string]any{"title": "A"}}},
		},
		{
			name: "citation list before object",
			in:   `See [1, 2] and ["x"] first. {"a": 5}`,
			want: map[string]any{"a": float64(5)},
		},
		{
			name: "body that is an array",
			in:   `[1, 2]`,
			want: []any{float64(1), float64(2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decode(t, raw))
		})
	}
}

func TestExtractJSON_RecoversTruncatedArrangements(t *testing.T) {
	in := `{"arrangements": [
    {"id": "a", "level": 0, "reason": "base"},
    {"id": "b", "level": 1, "reason": "core"},
    {"id": "c", "level": 2, "reason": "cut off mid-str`

	raw, err := ExtractJSON(in)
	require.NoError(t, err)

	var got struct {
		Arrangements []struct {
			ID string `json:"id"`
		} `json:"arrangements"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	ids := make([]string, 0, len(got.Arrangements))
	for _, a := range got.Arrangements {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestExtractJSON_RecoversTrailingComma(t *testing.T) {
	raw, err := ExtractJSON(`{"blocks": [{"title": "A"}, {"title": "B"},`)
	require.NoError(t, err)
	got := decode(t, raw).(map[string]any)
	assert.Len(t, got["blocks"], 2)
}

func TestExtractJSON_Failures(t *testing.T) {
	for name, in := range map[string]string{
		"no json":          "I cannot help with that.",
		"garbage in braces": "{not: json at all}",
		"citation only":     "As noted in [1], no plan today.",
		"empty":            "",
	} {
		t.Run(name, func(t *testing.T) {
			raw, err := ExtractJSON(in)
			require.Error(t, err)
			assert.Nil(t, raw)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.ErrorIs(t, err, apperr.ErrAIService)
			assert.True(t, strings.HasPrefix(in, perr.Raw))
		})
	}
}

func TestParseError_RawIsBounded(t *testing.T) {
	long := strings.Repeat("x", 2*rawPrefixLen)
	_, err := ExtractJSON(long)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Len(t, perr.Raw, rawPrefixLen)
}
