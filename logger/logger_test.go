package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initWithWriter(&buf, "info", "classifier", "prod"))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("request_id", "abc").Msg("classified")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "classifier", event["service"])
	assert.Equal(t, "prod", event["env"])
	assert.Equal(t, "abc", event["request_id"])
	assert.Equal(t, "classified", event["message"])
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initWithWriter(&buf, "ERROR", "classifier", "prod"))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("hidden")

	assert.Empty(t, buf.String())
}

func TestInit_UnknownLevel(t *testing.T) {
	err := Init("verbose", "classifier", "prod")

	assert.ErrorContains(t, err, "incorrect log level")
}
