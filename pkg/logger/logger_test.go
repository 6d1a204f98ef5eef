package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := New("mapping", Config{Level: "debug", Format: "json", Output: &buf})

	log.WithField("mode", "view").Info("mapped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "mapping", line["component"])
	assert.Equal(t, "view", line["mode"])
	assert.Equal(t, "mapped", line["msg"])
}

func TestLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("x", Config{Level: "loud", Output: &buf})

	log.WithField("k", "v").Debug("hidden")
	assert.Zero(t, buf.Len())

	log.WithField("k", "v").Info("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithContextTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := New("x", Config{Output: &buf})

	ctx := WithTraceID(context.Background(), "trace-1")
	log.LogRequest(ctx, http.MethodGet, "/dispatch/view", http.StatusNotFound, 3*time.Millisecond)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "warning", line["level"])
	assert.EqualValues(t, 404, line["status"])
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
	assert.NotEmpty(t, NewTraceID())
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
