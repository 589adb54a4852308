package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestToHCLogLevel(t *testing.T) {
	tests := []struct {
		level int
		want  hclog.Level
	}{
		{-1, hclog.Error},
		{LevelError, hclog.Error},
		{LevelWarn, hclog.Warn},
		{LevelLog, hclog.Info},
		{LevelInfo, hclog.Info},
		{LevelDebug, hclog.Debug},
		{LevelTrace, hclog.Trace},
		{42, hclog.Trace},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHCLogLevel(tt.level), "level %d", tt.level)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelWarn, &buf)

	logger.Info("hidden message")
	logger.Warn("visible message", "repo", "acme/a")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden message"))
	assert.True(t, strings.Contains(out, "visible message"))
	assert.True(t, strings.Contains(out, "repo=acme/a"))
}

func TestInitOnlyOnce(t *testing.T) {
	first := Init(LevelInfo)
	second := Init(LevelTrace)

	assert.Same(t, first, second)
	assert.Same(t, first, L())
}
