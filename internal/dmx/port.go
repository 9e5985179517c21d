package dmx

import (
	"errors"
	"io"
)

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// LineConfig holds the serial line parameters.
type LineConfig struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// DataLine is 250k 8N2, the DMX512 data framing.
func DataLine() LineConfig {
	return LineConfig{
		BaudRate: DataBaudRate,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: TwoStopBits,
	}
}

// BreakLine is the data framing at the reduced break rate.
func BreakLine(baud int) LineConfig {
	l := DataLine()
	l.BaudRate = baud
	return l
}

// Port is the minimal serial adapter the engine needs. Configure may be
// called mid-session to switch baud for break generation.
type Port interface {
	io.Writer
	io.Closer
	Configure(cfg LineConfig) error
	// Drain blocks until written bytes have left the adapter.
	Drain() error
}

// Availability is the result of probing for an adapter: Present or Absent.
type Availability interface {
	availability()
}

// Present carries an exclusively claimed port.
type Present struct {
	Device string
	Port   Port
}

// Absent explains why no port could be claimed.
type Absent struct {
	Device string
	Reason error
}

func (Present) availability() {}
func (Absent) availability()  {}

// Opener claims adapters by optional identifier. An empty id selects the
// first adapter found.
type Opener interface {
	Open(deviceID string) Availability
}

var (
	// ErrNoAdapter means nothing matched the requested id.
	ErrNoAdapter = errors.New("no matching adapter")
	// ErrClaimed means the adapter is held by someone else.
	ErrClaimed = errors.New("adapter already claimed")
	// ErrNotOpen means an operation needed an open device.
	ErrNotOpen = errors.New("device not open")
)
