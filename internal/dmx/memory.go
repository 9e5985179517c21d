package dmx

import (
	"sort"
	"sync"
	"time"
)

// Write is one recorded write on a MemoryPort.
type Write struct {
	Line LineConfig
	Data []byte
}

// MemoryPort is an in-memory Port. It backs the "null" driver and the tests:
// every write is recorded with the line configuration active at the time.
type MemoryPort struct {
	mu       sync.Mutex
	line     LineConfig
	writes   []Write
	keep     int
	writeErr error
	failNext int
	delay    time.Duration
	closed   bool
	release  func()
}

// NewMemoryPort returns a port that remembers its last keep writes. A
// non-positive keep remembers everything.
func NewMemoryPort(keep int) *MemoryPort {
	return &MemoryPort{line: DataLine(), keep: keep}
}

func (p *MemoryPort) Configure(l LineConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrNotOpen
	}
	p.line = l
	return nil
}

func (p *MemoryPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrNotOpen
	}
	if p.writeErr != nil {
		if p.failNext > 0 {
			p.failNext--
			if p.failNext == 0 {
				err := p.writeErr
				p.writeErr = nil
				return 0, err
			}
		}
		return 0, p.writeErr
	}
	p.writes = append(p.writes, Write{Line: p.line, Data: append([]byte(nil), b...)})
	if p.keep > 0 && len(p.writes) > p.keep {
		p.writes = append(p.writes[:0], p.writes[len(p.writes)-p.keep:]...)
	}
	return len(b), nil
}

func (p *MemoryPort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrNotOpen
	}
	return nil
}

func (p *MemoryPort) Close() error {
	p.mu.Lock()
	release := p.release
	p.release = nil
	p.closed = true
	p.mu.Unlock()
	if release != nil {
		release()
	}
	return nil
}

// FailWrites makes every following write return err. nil heals the port.
func (p *MemoryPort) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.failNext = 0
	p.mu.Unlock()
}

// FailNextWrites makes the next n writes return err, then heals the port.
func (p *MemoryPort) FailNextWrites(n int, err error) {
	p.mu.Lock()
	p.writeErr = err
	p.failNext = n
	if n <= 0 {
		p.writeErr = nil
	}
	p.mu.Unlock()
}

// DelayWrites makes every write block for d before it is recorded.
func (p *MemoryPort) DelayWrites(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// Closed reports whether Close was called since the last open.
func (p *MemoryPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Writes returns a copy of the recorded writes.
func (p *MemoryPort) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Write(nil), p.writes...)
}

// Frames returns the universes of every recorded level-data frame.
func (p *MemoryPort) Frames() []Universe {
	p.mu.Lock()
	defer p.mu.Unlock()
	var frames []Universe
	for _, w := range p.writes {
		if u, ok := decodeFrame(w); ok {
			frames = append(frames, u)
		}
	}
	return frames
}

// LastFrame returns the most recent level-data frame.
func (p *MemoryPort) LastFrame() (Universe, bool) {
	frames := p.Frames()
	if len(frames) == 0 {
		return Universe{}, false
	}
	return frames[len(frames)-1], true
}

func decodeFrame(w Write) (Universe, bool) {
	var u Universe
	if w.Line.BaudRate != DataBaudRate || len(w.Data) != 1+Channels || w.Data[0] != StartCode {
		return u, false
	}
	copy(u[:], w.Data[1:])
	return u, true
}

// MemoryOpener hands out MemoryPorts by name with the same exclusivity rules
// as a real adapter.
type MemoryOpener struct {
	mu      sync.Mutex
	keep    int
	ports   map[string]*MemoryPort
	claimed map[string]bool
}

// NewMemoryOpener registers the given device names.
func NewMemoryOpener(keep int, devices ...string) *MemoryOpener {
	o := &MemoryOpener{
		keep:    keep,
		ports:   map[string]*MemoryPort{},
		claimed: map[string]bool{},
	}
	for _, d := range devices {
		o.ports[d] = NewMemoryPort(keep)
	}
	return o
}

// Plug adds a device, as if an adapter had been connected.
func (o *MemoryOpener) Plug(device string) *MemoryPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.ports[device]; ok {
		return p
	}
	p := NewMemoryPort(o.keep)
	o.ports[device] = p
	return p
}

// Unplug removes a device. A claimed port starts failing its writes.
func (o *MemoryOpener) Unplug(device string) {
	o.mu.Lock()
	p := o.ports[device]
	delete(o.ports, device)
	o.mu.Unlock()
	if p != nil {
		p.FailWrites(ErrNoAdapter)
	}
}

// Port returns the named port or nil.
func (o *MemoryOpener) Port(device string) *MemoryPort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[device]
}

func (o *MemoryOpener) Open(deviceID string) Availability {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := deviceID
	if name == "" {
		names := make([]string, 0, len(o.ports))
		for n := range o.ports {
			names = append(names, n)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return Absent{Reason: ErrNoAdapter}
		}
		name = names[0]
	}

	p, ok := o.ports[name]
	if !ok {
		return Absent{Device: name, Reason: ErrNoAdapter}
	}
	if o.claimed[name] {
		return Absent{Device: name, Reason: ErrClaimed}
	}
	o.claimed[name] = true

	p.mu.Lock()
	p.closed = false
	p.release = func() {
		o.mu.Lock()
		delete(o.claimed, name)
		o.mu.Unlock()
	}
	p.mu.Unlock()

	return Present{Device: name, Port: p}
}
