package dmx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dmxcore/internal/dmxerr"
	"dmxcore/internal/logger"
	"dmxcore/internal/task"
)

// Options configures an Engine.
type Options struct {
	DeviceID       string        // DeviceID - adapter used when Open gets an empty id.
	RefreshRate    int           // RefreshRate - frames per second.
	BreakBaudRate  int           // BreakBaudRate - baud for the break byte.
	StopTimeout    time.Duration // StopTimeout - join bound used by Close.
	BlackoutOnStop bool          // BlackoutOnStop - send a zero frame when the loop ends normally.
}

// Engine is the transmitter for one DMX512 universe. It owns the universe
// buffer and the serial port; everything else only asks it to adopt values.
type Engine struct {
	log    *logger.Log
	opener Opener
	opts   Options

	mu       sync.Mutex // guards universe
	universe Universe

	devMu   sync.Mutex // guards the fields below
	port    Port
	device  string
	loop    *task.Handle
	status  Status
	lastErr error

	frames atomic.Uint64
}

// NewEngine returns a closed engine.
func NewEngine(log logger.Logger, opener Opener, opts Options) *Engine {
	if opts.RefreshRate <= 0 {
		opts.RefreshRate = DefaultRefreshRate
	}
	if opts.BreakBaudRate <= 0 {
		opts.BreakBaudRate = DefaultBreakBaudRate
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second / time.Duration(opts.RefreshRate)
	}
	return &Engine{
		log:    log.With(logger.Fields{"module": "dmx"}),
		opener: opener,
		opts:   opts,
		status: StatusClosed,
	}
}

// Open claims an adapter. An empty deviceID falls back to the configured
// one. Opening an open engine does nothing.
func (e *Engine) Open(deviceID string) error {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.port != nil {
		return nil
	}
	if deviceID == "" {
		deviceID = e.opts.DeviceID
	}

	switch a := e.opener.Open(deviceID).(type) {
	case Present:
		if err := a.Port.Configure(DataLine()); err != nil {
			_ = a.Port.Close()
			return &dmxerr.DeviceError{Device: a.Device, Op: "configure", Err: err}
		}
		e.port = a.Port
		e.device = a.Device
		e.status = StatusOpen
		e.lastErr = nil
		e.log.Infof("device %s opened", a.Device)
		return nil
	case Absent:
		e.log.Debugf("device %q unavailable: %v", a.Device, a.Reason)
		return &dmxerr.DeviceError{Device: a.Device, Op: "open", Err: a.Reason}
	default:
		return &dmxerr.DeviceError{Device: deviceID, Op: "open", Err: fmt.Errorf("unexpected availability %T", a)}
	}
}

// Start launches the send loop. It is a no-op when the loop already runs.
// A loop still winding down after a timed out Stop is waited for first, then
// replaced.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.awaitStopping(ctx); err != nil {
		return err
	}

	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.loop != nil && !e.loop.Finished() {
		return nil
	}
	if e.port == nil {
		return &dmxerr.DeviceError{Device: e.device, Op: "start", Err: ErrNotOpen}
	}

	port := e.port
	e.status = StatusRunning
	e.loop = task.Go(ctx, "dmx-send", func(ctx context.Context) {
		e.run(ctx, port)
	})
	e.log.Infof("send loop started at %d Hz", e.opts.RefreshRate)
	return nil
}

func (e *Engine) awaitStopping(ctx context.Context) error {
	e.devMu.Lock()
	h := e.loop
	e.devMu.Unlock()

	if h == nil || !h.Cancelled() {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the loop to end and waits up to timeout. A timeout returns
// task.ErrJoinTimeout as a warning; the loop exits on its next tick.
func (e *Engine) Stop(timeout time.Duration) error {
	e.devMu.Lock()
	h := e.loop
	e.devMu.Unlock()

	if h == nil {
		return nil
	}

	if err := h.Stop(timeout); err != nil {
		e.log.Warnf("send loop did not stop within %v", timeout)
		return err
	}

	e.devMu.Lock()
	if e.loop == h {
		e.loop = nil
	}
	if e.status == StatusRunning {
		e.status = StatusOpen
	}
	e.devMu.Unlock()
	return nil
}

// Close stops the loop and releases the device. Safe to call repeatedly.
func (e *Engine) Close() error {
	_ = e.Stop(e.opts.StopTimeout)

	e.devMu.Lock()
	defer e.devMu.Unlock()

	e.status = StatusClosed
	if e.port == nil {
		return nil
	}
	port := e.port
	e.port = nil
	if err := port.Close(); err != nil {
		return &dmxerr.DeviceError{Device: e.device, Op: "close", Err: err}
	}
	e.log.Infof("device %s closed", e.device)
	return nil
}

// State reports the lifecycle status, device, frame count and the last
// device error.
func (e *Engine) State() State {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	return State{
		Status: e.status,
		Device: e.device,
		Frames: e.frames.Load(),
		Err:    e.lastErr,
	}
}

// Running reports whether the send loop is active.
func (e *Engine) Running() bool {
	return e.State().Status == StatusRunning
}

func (e *Engine) run(ctx context.Context, port Port) {
	framer := NewFramer(e.opts.BreakBaudRate)
	interval := time.Second / time.Duration(e.opts.RefreshRate)

	for {
		tick := time.Now()
		frame := e.Snapshot()
		if err := framer.Send(port, &frame); err != nil {
			e.fail(port, framer, err)
			return
		}
		e.frames.Add(1)

		if !task.Sleep(ctx, interval-time.Since(tick)) {
			break
		}
	}

	if e.opts.BlackoutOnStop {
		var zero Universe
		if err := framer.Send(port, &zero); err != nil {
			e.log.Warnf("final blackout frame: %v", err)
		}
	}

	e.devMu.Lock()
	if e.port == port && e.status == StatusRunning {
		e.status = StatusOpen
	}
	e.devMu.Unlock()
	e.log.Info("send loop stopped")
}

// fail takes the engine out of service after an I/O error: one best-effort
// zero frame, then the port is released so it can be reopened.
func (e *Engine) fail(port Port, framer *Framer, err error) {
	var zero Universe
	if ferr := framer.Send(port, &zero); ferr != nil {
		e.log.Debugf("failsafe frame: %v", ferr)
	}

	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.port != port {
		// closed underneath us
		return
	}
	e.lastErr = &dmxerr.DeviceError{Device: e.device, Op: "write", Err: err}
	e.status = StatusFailed
	e.port = nil
	_ = port.Close()
	e.log.Errorf("output stopped: %v", e.lastErr)
}

func checkAddress(what string, addr int) error {
	return dmxerr.CheckRange(what, addr, 1, Channels)
}

func checkValue(v int) error {
	return dmxerr.CheckRange("value", v, 0, 255)
}

// SetChannel sets one channel.
func (e *Engine) SetChannel(addr, value int) error {
	if err := checkAddress("channel", addr); err != nil {
		return err
	}
	if err := checkValue(value); err != nil {
		return err
	}
	e.mu.Lock()
	e.universe[addr-1] = byte(value)
	e.mu.Unlock()
	return nil
}

// SetChannels writes values starting at start. The call is rejected as a
// whole when any address or value is out of range.
func (e *Engine) SetChannels(start int, values []int) error {
	if err := checkAddress("start channel", start); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if err := checkAddress("end channel", start+len(values)-1); err != nil {
		return err
	}
	for _, v := range values {
		if err := checkValue(v); err != nil {
			return err
		}
	}

	e.mu.Lock()
	for i, v := range values {
		e.universe[start-1+i] = byte(v)
	}
	e.mu.Unlock()
	return nil
}

// SetChannelValues applies sparse channel writes, all or nothing.
func (e *Engine) SetChannelValues(values []ChannelValue) error {
	for _, v := range values {
		if err := checkAddress("channel", int(v.Channel)); err != nil {
			return err
		}
	}
	e.mu.Lock()
	for _, v := range values {
		e.universe[v.Channel-1] = v.Value
	}
	e.mu.Unlock()
	return nil
}

// SetUniverse adopts a complete universe in one step.
func (e *Engine) SetUniverse(u Universe) {
	e.mu.Lock()
	e.universe = u
	e.mu.Unlock()
}

// GetChannel reads one channel.
func (e *Engine) GetChannel(addr int) (byte, error) {
	if err := checkAddress("channel", addr); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.universe[addr-1], nil
}

// Snapshot returns a copy of the universe.
func (e *Engine) Snapshot() Universe {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.universe
}

// Blackout sets every channel to zero.
func (e *Engine) Blackout() {
	e.mu.Lock()
	e.universe = Universe{}
	e.mu.Unlock()
}

// Clear is Blackout.
func (e *Engine) Clear() { e.Blackout() }
