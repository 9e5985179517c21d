// Package control is the application context: it owns the engine, catalog,
// patch, scenes and chasers, and exposes the operations consumers call.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dmxcore/internal/chaser"
	"dmxcore/internal/config"
	"dmxcore/internal/dmx"
	"dmxcore/internal/dmxerr"
	"dmxcore/internal/fixture"
	"dmxcore/internal/hotplug"
	"dmxcore/internal/logger"
	"dmxcore/internal/patch"
	"dmxcore/internal/scene"
	"dmxcore/internal/task"
)

// Service wires the lighting core together. Nothing in it is global; two
// services with different openers can run side by side.
type Service struct {
	log *logger.Log
	cfg *config.Config

	Engine  *dmx.Engine
	Catalog *fixture.Catalog
	Patch   *patch.Manager
	Scenes  *scene.Store
	Chasers *chaser.Manager

	hotplug *hotplug.Watcher
	reopen  chan struct{}

	mu       sync.Mutex
	ctx      context.Context
	watchdog *task.Handle
}

// New builds a service from cfg. opener is the adapter backend.
func New(cfg *config.Config, opener dmx.Opener, log logger.Logger) *Service {
	engine := dmx.NewEngine(log, opener, dmx.Options{
		DeviceID:       cfg.DMX.Device,
		RefreshRate:    cfg.DMX.RefreshRate,
		BreakBaudRate:  cfg.DMX.BreakBaudRate,
		StopTimeout:    cfg.DMX.StopTimeout.Duration,
		BlackoutOnStop: cfg.DMX.BlackoutOnStop,
	})
	catalog := fixture.NewCatalog(cfg.Fixtures.Dir, log)
	p := patch.NewManager(catalog, log)
	scenes := scene.NewStore(cfg.Scenes.Dir, p, log)

	s := &Service{
		log:     log.With(logger.Fields{"module": "control"}),
		cfg:     cfg,
		Engine:  engine,
		Catalog: catalog,
		Patch:   p,
		Scenes:  scenes,
		Chasers: chaser.NewManager(cfg.Chasers.Dir, scenes, engine, cfg.Chasers.StopTimeout.Duration, log),
		reopen:  make(chan struct{}, 1),
		ctx:     context.Background(),
	}
	if cfg.DMX.Hotplug {
		s.hotplug = hotplug.New(log, func(string) { s.requestReopen() })
	}
	return s
}

// NewOpener returns the adapter backend named by cfg.Driver.
func NewOpener(cfg config.DMXConf) dmx.Opener {
	if cfg.Driver == "null" {
		name := cfg.Device
		if name == "" {
			name = "null"
		}
		return dmx.NewMemoryOpener(1, name)
	}
	return dmx.NewSerialOpener(cfg.LockDir)
}

// Load reads the catalog, patch table, scenes and chasers, then pushes the
// restored patch to the engine. Bad records are reported in the log and do
// not fail the load.
func (s *Service) Load() error {
	if _, err := s.Catalog.Load(); err != nil {
		return err
	}
	if s.cfg.Patch.File != "" {
		report, err := s.Patch.Load(s.cfg.Patch.File)
		if err != nil {
			return err
		}
		if len(report.Skipped) > 0 {
			s.log.Warnf("%d patched fixtures could not be restored", len(report.Skipped))
		}
	}
	if _, err := s.Scenes.Load(); err != nil {
		return err
	}
	if _, err := s.Chasers.Load(); err != nil {
		return err
	}
	s.Patch.ApplyTo(s.Engine)
	return nil
}

// Start opens the device and begins output. A missing adapter is not an
// error: the service runs without output and the watchdog keeps trying.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		if !errors.Is(err, dmxerr.ErrDevice) {
			return err
		}
		s.log.Warnf("running without output: %v", err)
	}

	if interval := s.cfg.DMX.ReconnectInterval.Duration; interval > 0 || s.hotplug != nil {
		h := task.Go(ctx, "dmx-watchdog", func(ctx context.Context) { s.watch(ctx, interval) })
		s.mu.Lock()
		s.watchdog = h
		s.mu.Unlock()
	}
	if s.hotplug != nil {
		if err := s.hotplug.Start(ctx); err != nil {
			s.log.Warnf("hotplug: %v", err)
		}
	}
	return nil
}

// Stop halts chasers and output, saves the patch table and releases the
// device.
func (s *Service) Stop() error {
	s.Chasers.StopAll()
	if s.hotplug != nil {
		if err := s.hotplug.Stop(s.cfg.DMX.StopTimeout.Duration); err != nil {
			s.log.Warnf("hotplug watcher did not stop: %v", err)
		}
	}

	s.mu.Lock()
	h := s.watchdog
	s.watchdog = nil
	s.mu.Unlock()
	if h != nil {
		if err := h.Stop(s.cfg.DMX.StopTimeout.Duration); err != nil {
			s.log.Warnf("watchdog did not stop: %v", err)
		}
	}

	var errs []error
	if err := s.savePatch(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// connect opens the adapter and starts the send loop.
func (s *Service) connect(ctx context.Context) error {
	if err := s.Engine.Open(""); err != nil {
		return err
	}
	return s.Engine.Start(ctx)
}

func (s *Service) requestReopen() {
	select {
	case s.reopen <- struct{}{}:
	default:
	}
}

// watch reopens the device after a failure or when an adapter appears.
func (s *Service) watch(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-s.reopen:
		}

		if s.Engine.Running() {
			continue
		}
		if err := s.connect(ctx); err != nil {
			s.log.Debugf("reconnect: %v", err)
			continue
		}
		s.log.Infof("output restored on %s", s.Engine.State().Device)
	}
}

func (s *Service) savePatch() error {
	if s.cfg.Patch.File == "" {
		return nil
	}
	if err := s.Patch.Save(s.cfg.Patch.File); err != nil {
		return fmt.Errorf("patch table: %w", err)
	}
	return nil
}
