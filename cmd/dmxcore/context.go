package main

import (
	"strings"
	"sync"

	"dmxcore/internal/config"
	"dmxcore/internal/control"
	"dmxcore/internal/dmx"
	"dmxcore/internal/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		c.config, c.configErr = config.NewConfig(path)
	})
	return c.config, c.configErr
}

// offlineService loads the stores without touching any adapter. Used by the
// inspection and editing commands.
func (c *commandContext) offlineService() (*control.Service, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	s := control.New(cfg, dmx.NewMemoryOpener(0), logger.Discard())
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}
