package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spooky-finn/coinbase-depth-bridge/config"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_SameDestinationInBothModes(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	for _, pretty := range []bool{false, true} {
		var cfg config.Config
		cfg.Logging.Level = "info"
		cfg.Logging.Pretty = pretty

		var buf bytes.Buffer
		l := Component(newLogger(cfg, &buf), "feed-connection")
		l.Info().Msg("subscribed")

		assert.Contains(t, buf.String(), "subscribed", "pretty=%v", pretty)
		assert.Contains(t, buf.String(), "feed-connection", "pretty=%v", pretty)
	}
}

func TestNewLogger_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var cfg config.Config
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	l := newLogger(cfg, &buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
