package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "be-proc-approvals",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Component("evaluator").Info().Str("approval_id", "a1").Msg("Approval request created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "be-proc-approvals", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "evaluator", line["component"])
	assert.Equal(t, "a1", line["approval_id"])
	assert.Equal(t, "info", line["level"])
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty", Environment: "production", Output: &buf})

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}
