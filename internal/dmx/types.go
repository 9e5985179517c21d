package dmx

import "time"

const (
	// Channels is the size of one universe.
	Channels = 512
	// StartCode precedes level data in every frame.
	StartCode byte = 0x00
	// DataBaudRate is the DMX512 line rate.
	DataBaudRate = 250000
	// DefaultBreakBaudRate sends 0x00 slow enough that the low period covers the break.
	DefaultBreakBaudRate = 90000
	// MinBreak is the shortest legal break.
	MinBreak = 88 * time.Microsecond
	// MinMAB is the shortest legal mark after break.
	MinMAB = 12 * time.Microsecond
	// DefaultRefreshRate is the frame rate used when none is configured.
	DefaultRefreshRate = 40
)

// Universe wraps the 512 byte array for convenience. Index 0 is channel 1.
type Universe [Channels]byte

// Channel returns the value at a 1-based address. Out of range reads 0.
func (u *Universe) Channel(addr int) byte {
	if addr < 1 || addr > Channels {
		return 0
	}
	return u[addr-1]
}

// ChannelValue sets one channel to a value.
type ChannelValue struct {
	Channel uint16 // Channel: 1-based address.
	Value   uint8  // Value: level for the channel.
}

// Status is the lifecycle state of the engine.
type Status string

const (
	StatusClosed  Status = "closed"
	StatusOpen    Status = "open"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// State is a point-in-time report of the engine.
type State struct {
	Status Status
	Device string
	Frames uint64
	Err    error
}
