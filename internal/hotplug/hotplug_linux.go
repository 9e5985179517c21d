//go:build linux

// Package hotplug reports serial adapters appearing on the system.
package hotplug

import (
	"context"
	"strings"
	"sync"
	"time"

	"dmxcore/internal/logger"
	"dmxcore/internal/task"
	"github.com/pilebones/go-udev/netlink"
)

// Watcher listens for udev netlink events and calls a handler with the
// device node of every tty that is added.
type Watcher struct {
	log     *logger.Log
	handler func(device string)

	mu     sync.Mutex
	conn   *netlink.UEventConn
	handle *task.Handle
}

// New returns a stopped watcher.
func New(log logger.Logger, handler func(device string)) *Watcher {
	return &Watcher{
		log:     log.With(logger.Fields{"module": "hotplug"}),
		handler: handler,
	}
}

// Start connects to the udev netlink socket. A failed connect is logged and
// not returned: the device watchdog still retries on its own interval.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handle != nil && !w.handle.Finished() {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.log.Warnf("netlink connect failed, hotplug disabled: %v", err)
		return nil
	}

	w.conn = conn
	w.handle = task.Go(ctx, "hotplug", func(ctx context.Context) { w.loop(ctx, conn) })
	w.log.Info("hotplug watcher started")
	return nil
}

// Stop ends the loop, waits up to timeout for it and closes the socket.
// Safe on a stopped watcher.
func (w *Watcher) Stop(timeout time.Duration) error {
	w.mu.Lock()
	h, conn := w.handle, w.conn
	w.handle, w.conn = nil, nil
	w.mu.Unlock()

	if h == nil {
		return nil
	}
	err := h.Stop(timeout)
	_ = conn.Close()
	w.log.Info("hotplug watcher stopped")
	return err
}

// Running reports whether the loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle != nil && !w.handle.Finished()
}

func (w *Watcher) loop(ctx context.Context, conn *netlink.UEventConn) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, matcher())
	defer close(monitorQuit)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			w.notify(ev)
		case err := <-errs:
			w.log.Warnf("netlink monitor: %v", err)
		}
	}
}

// matcher accepts SUBSYSTEM=tty with ACTION=add.
func matcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}

func (w *Watcher) notify(ev netlink.UEvent) {
	dev := deviceName(ev)
	if dev == "" {
		w.log.Debugf("ignoring %s event without device name: %s", ev.Action, ev.KObj)
		return
	}
	w.log.Infof("serial device %s added", dev)
	if w.handler != nil {
		w.handler(dev)
	}
}

// deviceName returns the /dev path of the event, from DEVNAME or the last
// element of DEVPATH.
func deviceName(ev netlink.UEvent) string {
	name := ev.Env["DEVNAME"]
	if name == "" {
		devpath := ev.Env["DEVPATH"]
		if devpath == "" {
			return ""
		}
		parts := strings.Split(devpath, "/")
		name = parts[len(parts)-1]
	}
	if name == "" {
		return ""
	}
	if !strings.HasPrefix(name, "/") {
		name = "/dev/" + name
	}
	return name
}
