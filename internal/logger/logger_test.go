package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	prev := Get()
	SetDefault(New(&buf, "warn", "text"))
	defer SetDefault(prev)

	Debug("debug message")
	Info("info message")
	Warn("warn message", "spot_id", "s1")
	Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "spot_id=s1")
	assert.Contains(t, out, "error message")
}
