package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration.
type Config struct {
	Logger   LogConf     `toml:"logger"`   // Logger - logging configuration.
	DMX      DMXConf     `toml:"dmx"`      // DMX - transmitter configuration.
	Fixtures FixtureConf `toml:"fixtures"` // Fixtures - definition catalog.
	Patch    PatchConf   `toml:"patch"`    // Patch - patch table file.
	Scenes   SceneConf   `toml:"scenes"`   // Scenes - scene record directory.
	Chasers  ChaserConf  `toml:"chasers"`  // Chasers - chaser record directory.
	MQTT     MQTTConf    `toml:"mqtt"`     // MQTT - remote control bridge.
}

// LogConf configures the logger.
type LogConf struct {
	Level string `toml:"log-level"` // Level - logging level.
}

// DMXConf configures the transmission engine.
type DMXConf struct {
	Driver            string   `toml:"driver"`             // Driver - "serial" or "null".
	Device            string   `toml:"device"`             // Device - port path or USB serial number, empty picks the first adapter.
	LockDir           string   `toml:"lock-dir"`           // LockDir - where device lock files live.
	RefreshRate       int      `toml:"refresh-rate"`       // RefreshRate - frames per second.
	BreakBaudRate     int      `toml:"break-baud-rate"`    // BreakBaudRate - baud used to generate the break.
	StopTimeout       Duration `toml:"stop-timeout"`       // StopTimeout - bounded join for the send loop.
	BlackoutOnStop    bool     `toml:"blackout-on-stop"`   // BlackoutOnStop - send a zero frame when the loop stops.
	ReconnectInterval Duration `toml:"reconnect-interval"` // ReconnectInterval - watchdog period, 0 disables it.
	Hotplug           bool     `toml:"hotplug"`            // Hotplug - reopen when an adapter is plugged in.
}

// FixtureConf configures the definition catalog.
type FixtureConf struct {
	Dir string `toml:"dir"`
}

// PatchConf configures the patch table file.
type PatchConf struct {
	File string `toml:"file"`
}

// SceneConf configures the scene store.
type SceneConf struct {
	Dir string `toml:"dir"`
}

// ChaserConf configures the chaser engine.
type ChaserConf struct {
	Dir         string   `toml:"dir"`
	StopTimeout Duration `toml:"stop-timeout"`
}

// MQTTConf configures the MQTT client.
type MQTTConf struct {
	Enabled        bool     `toml:"enabled"`         // Enabled - start the bridge.
	ClientID       string   `toml:"clientID"`        // ClientID - client name.
	Host           string   `toml:"server"`          // Host - MQTT server address.
	Port           string   `toml:"port"`            // Port - MQTT server port.
	User           string   `toml:"user"`            // User - login.
	Password       string   `toml:"password"`        // Password - password.
	Qos            byte     `toml:"qos"`             // Qos - quality of service.
	Prefix         string   `toml:"prefix"`          // Prefix - topic root.
	StatusInterval Duration `toml:"status-interval"` // StatusInterval - status publish period.
}

// Duration decodes Go duration strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when a key is missing from the file.
func Default() *Config {
	return &Config{
		Logger: LogConf{Level: "info"},
		DMX: DMXConf{
			Driver:            "serial",
			LockDir:           os.TempDir(),
			RefreshRate:       40,
			BreakBaudRate:     90000,
			StopTimeout:       Duration{250 * time.Millisecond},
			BlackoutOnStop:    true,
			ReconnectInterval: Duration{5 * time.Second},
			Hotplug:           true,
		},
		Fixtures: FixtureConf{Dir: "fixtures"},
		Patch:    PatchConf{File: "patch.json"},
		Scenes:   SceneConf{Dir: "scenes"},
		Chasers:  ChaserConf{Dir: "chasers", StopTimeout: Duration{2 * time.Second}},
		MQTT: MQTTConf{
			ClientID:       "dmxcore",
			Host:           "localhost",
			Port:           "1883",
			Prefix:         "dmx",
			StatusInterval: Duration{30 * time.Second},
		},
	}
}

// NewConfig reads path over the defaults, applies DMXCORE_* environment
// overrides and validates the result.
func NewConfig(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return cfg, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DMXCORE_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DMXCORE_DMX_DEVICE"); v != "" {
		cfg.DMX.Device = v
	}
	if v := os.Getenv("DMXCORE_DMX_DRIVER"); v != "" {
		cfg.DMX.Driver = v
	}
	if v := os.Getenv("DMXCORE_MQTT_SERVER"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("DMXCORE_MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("DMXCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("DMXCORE_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.DMX.Driver {
	case "serial", "null":
	default:
		errs = append(errs, fmt.Sprintf("dmx.driver %q must be serial or null", c.DMX.Driver))
	}
	// A full 513-slot frame takes about 22.7ms on the wire, so 44 Hz is the ceiling.
	if c.DMX.RefreshRate < 1 || c.DMX.RefreshRate > 44 {
		errs = append(errs, "dmx.refresh-rate must be between 1 and 44")
	}
	// 9 low bits (start + 8 data) must last at least 88us.
	if c.DMX.BreakBaudRate < 1 || c.DMX.BreakBaudRate > 102272 {
		errs = append(errs, "dmx.break-baud-rate must be between 1 and 102272")
	}
	if c.DMX.StopTimeout.Duration <= 0 {
		errs = append(errs, "dmx.stop-timeout must be positive")
	}
	if c.DMX.ReconnectInterval.Duration < 0 {
		errs = append(errs, "dmx.reconnect-interval must not be negative")
	}
	if c.Fixtures.Dir == "" {
		errs = append(errs, "fixtures.dir is required")
	}
	if c.Scenes.Dir == "" {
		errs = append(errs, "scenes.dir is required")
	}
	if c.Chasers.Dir == "" {
		errs = append(errs, "chasers.dir is required")
	}
	if c.Chasers.StopTimeout.Duration <= 0 {
		errs = append(errs, "chasers.stop-timeout must be positive")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, "mqtt.server is required when mqtt is enabled")
		}
		if c.MQTT.Qos > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Prefix == "" {
			errs = append(errs, "mqtt.prefix is required when mqtt is enabled")
		}
		if c.MQTT.StatusInterval.Duration <= 0 {
			errs = append(errs, "mqtt.status-interval must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RefreshInterval is the period of one frame.
func (c DMXConf) RefreshInterval() time.Duration {
	return time.Second / time.Duration(c.RefreshRate)
}
