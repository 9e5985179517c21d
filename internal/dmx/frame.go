package dmx

import (
	"fmt"
	"io"
	"time"
)

// Framer writes DMX512 frames: break, mark after break, start code and
// channel data. The slot buffer is reused, so a Framer belongs to a single
// goroutine.
type Framer struct {
	breakLine LineConfig
	dataLine  LineConfig
	mab       time.Duration
	slots     [1 + Channels]byte
}

// NewFramer returns a framer generating the break at breakBaud.
func NewFramer(breakBaud int) *Framer {
	if breakBaud <= 0 {
		breakBaud = DefaultBreakBaudRate
	}
	return &Framer{
		breakLine: BreakLine(breakBaud),
		dataLine:  DataLine(),
		mab:       MinMAB,
	}
}

// BreakDuration is how long the line is held low by the break byte: the
// start bit and eight zero data bits.
func (f *Framer) BreakDuration() time.Duration {
	return 9 * time.Second / time.Duration(f.breakLine.BaudRate)
}

// Encode fills the slot buffer and returns it. The slice is only valid until
// the next call.
func (f *Framer) Encode(u *Universe) []byte {
	f.slots[0] = StartCode
	copy(f.slots[1:], u[:])
	return f.slots[:]
}

// Send transmits one frame of u on p.
func (f *Framer) Send(p Port, u *Universe) error {
	if err := p.Configure(f.breakLine); err != nil {
		return fmt.Errorf("break line: %w", err)
	}
	if err := writeAll(p, []byte{0x00}); err != nil {
		return fmt.Errorf("break: %w", err)
	}
	if err := p.Drain(); err != nil {
		return fmt.Errorf("break drain: %w", err)
	}
	if err := p.Configure(f.dataLine); err != nil {
		return fmt.Errorf("data line: %w", err)
	}
	time.Sleep(f.mab)
	if err := writeAll(p, f.Encode(u)); err != nil {
		return fmt.Errorf("slots: %w", err)
	}
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}
