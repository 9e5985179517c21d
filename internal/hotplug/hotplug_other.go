//go:build !linux

// Package hotplug reports serial adapters appearing on the system.
package hotplug

import (
	"context"
	"time"

	"dmxcore/internal/logger"
)

// Watcher is inert off Linux; the device watchdog interval still applies.
type Watcher struct {
	log *logger.Log
}

func New(log logger.Logger, _ func(device string)) *Watcher {
	return &Watcher{log: log.With(logger.Fields{"module": "hotplug"})}
}

func (w *Watcher) Start(context.Context) error {
	w.log.Debug("hotplug events are only available on linux")
	return nil
}

func (w *Watcher) Stop(time.Duration) error { return nil }

func (w *Watcher) Running() bool { return false }
