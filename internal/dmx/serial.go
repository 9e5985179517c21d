package dmx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes an adapter seen by the enumerator.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial adapters.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// SerialOpener claims real adapters through go.bug.st/serial. A device is
// held exclusively both inside the process (claim table) and across
// processes (a flock lock file in LockDir).
type SerialOpener struct {
	lockDir string
	list    func() ([]PortInfo, error)

	mu      sync.Mutex
	claimed map[string]bool
}

// NewSerialOpener returns an opener keeping lock files in lockDir.
func NewSerialOpener(lockDir string) *SerialOpener {
	return &SerialOpener{
		lockDir: lockDir,
		list:    ListPorts,
		claimed: map[string]bool{},
	}
}

// Open resolves deviceID to a port path and claims it. deviceID may be a
// port path or the USB serial number of the adapter.
func (o *SerialOpener) Open(deviceID string) Availability {
	path, err := o.resolve(deviceID)
	if err != nil {
		return Absent{Device: deviceID, Reason: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.claimed[path] {
		return Absent{Device: path, Reason: ErrClaimed}
	}

	lock, err := o.lock(path)
	if err != nil {
		return Absent{Device: path, Reason: err}
	}

	p, err := serial.Open(path, serialMode(DataLine()))
	if err != nil {
		_ = lock.Unlock()
		return Absent{Device: path, Reason: classify(err)}
	}

	o.claimed[path] = true
	return Present{Device: path, Port: &serialPort{
		port: p,
		line: DataLine(),
		release: func() {
			_ = lock.Unlock()
			o.mu.Lock()
			delete(o.claimed, path)
			o.mu.Unlock()
		},
	}}
}

func (o *SerialOpener) resolve(deviceID string) (string, error) {
	ports, err := o.list()
	if err != nil && deviceID == "" {
		return "", err
	}

	if deviceID == "" {
		for _, p := range ports {
			if p.IsUSB {
				return p.Name, nil
			}
		}
		return "", ErrNoAdapter
	}

	for _, p := range ports {
		if p.Name == deviceID {
			return p.Name, nil
		}
		if p.IsUSB && p.SerialNumber != "" && strings.EqualFold(p.SerialNumber, deviceID) {
			return p.Name, nil
		}
	}

	// Paths the enumerator does not report (pty, udev symlinks) are tried as is.
	if strings.HasPrefix(deviceID, "/") || strings.HasPrefix(strings.ToUpper(deviceID), "COM") {
		return deviceID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoAdapter, deviceID)
}

// lock takes the cross-process lock file for path, creating the lock
// directory when it is missing.
func (o *SerialOpener) lock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(o.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir %s: %w", o.lockDir, err)
	}
	lock := flock.New(o.lockPath(path))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w by another process", ErrClaimed)
	}
	return lock, nil
}

func (o *SerialOpener) lockPath(path string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(strings.TrimLeft(path, "/"))
	return filepath.Join(o.lockDir, "dmxcore-"+name+".lock")
}

func classify(err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortBusy:
			return fmt.Errorf("%w: %v", ErrClaimed, err)
		case serial.PortNotFound:
			return fmt.Errorf("%w: %v", ErrNoAdapter, err)
		}
	}
	return err
}

func serialMode(l LineConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: l.BaudRate,
		DataBits: l.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch l.Parity {
	case OddParity:
		mode.Parity = serial.OddParity
	case EvenParity:
		mode.Parity = serial.EvenParity
	}
	if l.StopBits == TwoStopBits {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}

// serialPort adapts serial.Port to Port and releases the claim on Close.
type serialPort struct {
	port    serial.Port
	line    LineConfig
	once    sync.Once
	release func()
}

func (s *serialPort) Configure(l LineConfig) error {
	if l == s.line {
		return nil
	}
	if err := s.port.SetMode(serialMode(l)); err != nil {
		return err
	}
	s.line = l
	return nil
}

func (s *serialPort) Write(b []byte) (int, error) { return s.port.Write(b) }

func (s *serialPort) Drain() error { return s.port.Drain() }

func (s *serialPort) Close() error {
	err := s.port.Close()
	s.once.Do(s.release)
	return err
}
