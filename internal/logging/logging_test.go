package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/config"
)

func TestNewJSONLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logDebug  bool
		wantLines int
	}{
		{name: "info drops debug", level: "info", logDebug: true, wantLines: 1},
		{name: "debug keeps debug", level: "debug", logDebug: true, wantLines: 2},
		{name: "invalid falls back to info", level: "loud", logDebug: true, wantLines: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(config.LogConfig{Level: tt.level, Format: "json"}, &buf)

			logger.Info().Msg("hello")
			if tt.logDebug {
				logger.Debug().Msg("details")
			}

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			assert.Len(t, lines, tt.wantLines)
		})
	}
}

func TestForJob(t *testing.T) {
	var buf bytes.Buffer
	logger := ForJob(NewWithWriter(config.LogConfig{Level: "info"}, &buf), "job-1")

	logger.Info().Msg("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "started", entry["message"])
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewAsynqLogger(NewWithWriter(config.LogConfig{Level: "info"}, &buf))

	l.Warn("queue ", "paused")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "asynq", entry["component"])
	assert.Equal(t, "queue paused", entry["message"])
}

func TestAsynqLevel(t *testing.T) {
	assert.Equal(t, asynq.DebugLevel, AsynqLevel("DEBUG"))
	assert.Equal(t, asynq.ErrorLevel, AsynqLevel("error"))
	assert.Equal(t, asynq.InfoLevel, AsynqLevel(""))
}
