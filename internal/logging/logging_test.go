package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuild_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := build("prod", "info", zapcore.AddSync(&buf))

	log.Info("hello", zap.Int("n", 1))
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "tasksphere", entry["service"])
	assert.Equal(t, "prod", entry["environment"])
	assert.EqualValues(t, 1, entry["n"])
}

func TestBuild_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := build("prod", "loud", zapcore.AddSync(&buf))
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestBuild_DebugLevel(t *testing.T) {
	log := build("dev", "DEBUG", zapcore.AddSync(&bytes.Buffer{}))
	assert.True(t, log.Core().Enabled(zap.DebugLevel))
}
