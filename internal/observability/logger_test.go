package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerTo_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "info", "json")

	slog.Info("persona restored", slog.String("profile", "Alice"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "persona restored", entry["msg"])
	assert.Equal(t, "Alice", entry["profile"])
}

func TestInitLoggerTo_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "info", "text")

	slog.Info("session authenticated")

	assert.Contains(t, buf.String(), "msg=\"session authenticated\"")
}

func TestInitLoggerTo_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "warn", "text")

	slog.Info("hidden")
	slog.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, "info", "json")

	t.Run("attaches_ids", func(t *testing.T) {
		buf.Reset()
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithUserID(ctx, 42)
		ctx = WithProfileID(ctx, 7)

		FromContext(ctx).Info("compilation reloaded")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "42", entry["user_id"])
		assert.Equal(t, "7", entry["profile_id"])
	})

	t.Run("plain_context_adds_nothing", func(t *testing.T) {
		buf.Reset()
		FromContext(context.Background()).Info("bare")

		assert.False(t, strings.Contains(buf.String(), "request_id"))
	})

	t.Run("request_id_lookup", func(t *testing.T) {
		id, ok := RequestID(WithRequestID(context.Background(), "abc"))
		assert.True(t, ok)
		assert.Equal(t, "abc", id)

		_, ok = RequestID(context.Background())
		assert.False(t, ok)
	})
}
