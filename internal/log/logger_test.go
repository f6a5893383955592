package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	configured = false
	mu.Unlock()
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})

	l := WithComponent("manager")
	l.Info().Str("scene", "menu").Msg("scene loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "manager", entry["component"])
	assert.Equal(t, "menu", entry["scene"])
	assert.Equal(t, "scene loaded", entry["message"])
}

func TestConfigure_OnlyFirstCallApplies(t *testing.T) {
	var first, second bytes.Buffer
	mu.Lock()
	configured = false
	mu.Unlock()
	Configure(Config{Output: &first})
	Configure(Config{Output: &second})

	l := Base()
	l.Warn().Msg("hello")
	assert.NotZero(t, first.Len())
	assert.Zero(t, second.Len())
}
