package dmxerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchSentinels(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{Invalid("a.json", "name", "missing"), ErrValidation},
		{&RangeError{What: "channel", Value: 513, Min: 1, Max: 512}, ErrRange},
		{&AddressConflictError{Start: 4, End: 5, ConflictName: "A"}, ErrAddressConflict},
		{&DeviceError{Device: "/dev/ttyUSB0", Op: "open", Err: io.EOF}, ErrDevice},
		{NotFound("scene", "Warm Wash"), ErrNotFound},
	}

	all := []error{ErrValidation, ErrRange, ErrAddressConflict, ErrDevice, ErrNotFound}
	for _, tt := range tests {
		wrapped := fmt.Errorf("context: %w", tt.err)
		for _, k := range all {
			assert.Equal(t, k == tt.kind, errors.Is(wrapped, k), "%v vs %v", tt.err, k)
		}
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	err := &DeviceError{Device: "x", Op: "write", Err: io.ErrShortWrite}
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, "device x: write: short write", err.Error())
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, CheckRange("value", 255, 0, 255))
	err := CheckRange("value", 256, 0, 255)
	var re *RangeError
	assert.ErrorAs(t, err, &re)
	assert.Equal(t, 256, re.Value)
	assert.Equal(t, "value 256 out of range [0, 255]", err.Error())
}
