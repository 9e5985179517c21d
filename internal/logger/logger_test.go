package logger

import (
	"bytes"
	"testing"

	"dmxcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLoggerWithOutput(config.LogConf{Level: "info"}, &buf)
	require.NoError(t, err)

	log.With(Fields{"module": "dmx"}).Info("frame loop started")
	log.With(Fields{"module": "dmx"}).Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "frame loop started")
	assert.Contains(t, out, "module=dmx")
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, "info", log.GetLevel())
}

func TestNewLoggerBadLevel(t *testing.T) {
	_, err := NewLoggerWithOutput(config.LogConf{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.With(Fields{"module": "test"}).Error("nothing")
	assert.Equal(t, "panic", log.GetLevel())
}
