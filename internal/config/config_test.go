package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	path := writeConfig(t, `
[logger]
log-level = "debug"

[dmx]
device = "/dev/ttyUSB0"
refresh-rate = 30
stop-timeout = "100ms"

[scenes]
dir = "/var/lib/dmxcore/scenes"

[mqtt]
enabled = true
server = "broker.local"
prefix = "stage"
status-interval = "10s"
`)

	cfg, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/dev/ttyUSB0", cfg.DMX.Device)
	assert.Equal(t, 30, cfg.DMX.RefreshRate)
	assert.Equal(t, 100*time.Millisecond, cfg.DMX.StopTimeout.Duration)
	assert.Equal(t, "/var/lib/dmxcore/scenes", cfg.Scenes.Dir)
	assert.Equal(t, "stage", cfg.MQTT.Prefix)
	assert.Equal(t, 10*time.Second, cfg.MQTT.StatusInterval.Duration)

	// untouched keys keep their defaults
	assert.Equal(t, 90000, cfg.DMX.BreakBaudRate)
	assert.Equal(t, "serial", cfg.DMX.Driver)
	assert.True(t, cfg.DMX.BlackoutOnStop)
	assert.Equal(t, "fixtures", cfg.Fixtures.Dir)
	assert.Equal(t, "1883", cfg.MQTT.Port)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestNewConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `[dmx]
device = "/dev/ttyUSB0"
`)
	t.Setenv("DMXCORE_DMX_DEVICE", "A6008isP")
	t.Setenv("DMXCORE_DMX_DRIVER", "null")

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "A6008isP", cfg.DMX.Device)
	assert.Equal(t, "null", cfg.DMX.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.DMX.Driver = "artnet" }, "dmx.driver"},
		{"rate too high", func(c *Config) { c.DMX.RefreshRate = 100 }, "dmx.refresh-rate"},
		{"rate zero", func(c *Config) { c.DMX.RefreshRate = 0 }, "dmx.refresh-rate"},
		{"break too fast", func(c *Config) { c.DMX.BreakBaudRate = 250000 }, "dmx.break-baud-rate"},
		{"no scene dir", func(c *Config) { c.Scenes.Dir = "" }, "scenes.dir"},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Qos = 3 }, "mqtt.qos"},
		{"mqtt disabled ignores qos", func(c *Config) { c.MQTT.Qos = 3 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, 25*time.Millisecond, DMXConf{RefreshRate: 40}.RefreshInterval())
}
