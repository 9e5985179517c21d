package dmx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dmxcore/internal/dmxerr"
	"dmxcore/internal/logger"
	"dmxcore/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opener Opener) *Engine {
	t.Helper()
	e := NewEngine(logger.Discard(), opener, Options{
		RefreshRate:   40,
		StopTimeout:   time.Second,
		BreakBaudRate: DefaultBreakBaudRate,
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenAbsentDevice(t *testing.T) {
	e := newTestEngine(t, NewMemoryOpener(0))

	err := e.Open("")
	assert.ErrorIs(t, err, dmxerr.ErrDevice)
	assert.ErrorIs(t, err, ErrNoAdapter)
	assert.Equal(t, StatusClosed, e.State().Status)

	err = e.Open("/dev/ttyUSB9")
	assert.ErrorIs(t, err, dmxerr.ErrDevice)
}

func TestOpenIsExclusive(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	a := newTestEngine(t, opener)
	b := newTestEngine(t, opener)

	require.NoError(t, a.Open("usb0"))
	require.NoError(t, a.Open("usb0"), "second open is a no-op")
	assert.Equal(t, StatusOpen, a.State().Status)
	assert.Equal(t, "usb0", a.State().Device)

	err := b.Open("usb0")
	assert.ErrorIs(t, err, dmxerr.ErrDevice)
	assert.ErrorIs(t, err, ErrClaimed)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")
	require.NoError(t, b.Open("usb0"), "released on close")
}

func TestSetChannelRange(t *testing.T) {
	e := newTestEngine(t, NewMemoryOpener(0))
	require.NoError(t, e.SetChannel(1, 10))
	require.NoError(t, e.SetChannel(512, 255))

	for _, tc := range []struct{ addr, value int }{{0, 1}, {513, 1}, {5, -1}, {5, 256}} {
		err := e.SetChannel(tc.addr, tc.value)
		assert.ErrorIs(t, err, dmxerr.ErrRange, "%+v", tc)
	}

	v, err := e.GetChannel(1)
	require.NoError(t, err)
	assert.Equal(t, byte(10), v)
	_, err = e.GetChannel(513)
	assert.ErrorIs(t, err, dmxerr.ErrRange)
}

func TestSetChannelsAllOrNothing(t *testing.T) {
	e := newTestEngine(t, NewMemoryOpener(0))
	require.NoError(t, e.SetChannels(10, []int{50, 100, 150}))
	before := e.Snapshot()

	assert.ErrorIs(t, e.SetChannels(510, []int{1, 2, 3, 4}), dmxerr.ErrRange)
	assert.ErrorIs(t, e.SetChannels(10, []int{1, 300, 2}), dmxerr.ErrRange)
	assert.ErrorIs(t, e.SetChannelValues([]ChannelValue{{Channel: 1, Value: 9}, {Channel: 600, Value: 1}}), dmxerr.ErrRange)
	assert.Equal(t, before, e.Snapshot())

	assert.Equal(t, byte(50), before.Channel(10))
	assert.Equal(t, byte(150), before.Channel(12))
	require.NoError(t, e.SetChannels(10, nil))
}

func TestSendLoopFrames(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := newTestEngine(t, opener)
	require.NoError(t, e.Open(""))
	require.NoError(t, e.SetChannels(1, []int{128, 255}))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()), "second start is a no-op")
	assert.True(t, e.Running())

	port := opener.Port("usb0")
	require.Eventually(t, func() bool { return len(port.Frames()) >= 3 }, time.Second, 5*time.Millisecond)

	frame, ok := port.LastFrame()
	require.True(t, ok)
	assert.Equal(t, byte(128), frame.Channel(1))
	assert.Equal(t, byte(255), frame.Channel(2))
	assert.Equal(t, byte(0), frame.Channel(3))

	writes := port.Writes()
	require.GreaterOrEqual(t, len(writes), 2)
	assert.Equal(t, DefaultBreakBaudRate, writes[0].Line.BaudRate)
	assert.Equal(t, []byte{0x00}, writes[0].Data)
	assert.Equal(t, DataLine(), writes[1].Line)
	assert.Len(t, writes[1].Data, 513)
	assert.Equal(t, StartCode, writes[1].Data[0])

	require.NoError(t, e.Stop(time.Second))
	assert.Equal(t, StatusOpen, e.State().Status)
	assert.Greater(t, e.State().Frames, uint64(0))
}

func TestBlackoutReachesWire(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := newTestEngine(t, opener)
	require.NoError(t, e.Open("usb0"))
	require.NoError(t, e.SetChannels(1, []int{255, 255, 255}))
	require.NoError(t, e.Start(context.Background()))

	port := opener.Port("usb0")
	require.Eventually(t, func() bool {
		f, ok := port.LastFrame()
		return ok && f.Channel(1) == 255
	}, time.Second, 5*time.Millisecond)

	e.Blackout()
	assert.Equal(t, Universe{}, e.Snapshot())
	require.Eventually(t, func() bool {
		f, ok := port.LastFrame()
		return ok && f == Universe{}
	}, time.Second, 5*time.Millisecond)
}

func TestBlackoutOnStop(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := NewEngine(logger.Discard(), opener, Options{RefreshRate: 40, BlackoutOnStop: true})
	require.NoError(t, e.Open(""))
	require.NoError(t, e.SetChannel(7, 99))
	require.NoError(t, e.Start(context.Background()))

	port := opener.Port("usb0")
	require.Eventually(t, func() bool { return len(port.Frames()) > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Close())

	last, ok := port.LastFrame()
	require.True(t, ok)
	assert.Equal(t, Universe{}, last)
	assert.True(t, port.Closed())
	v, _ := e.GetChannel(7)
	assert.Equal(t, byte(99), v, "buffer is untouched by the final frame")
}

func TestWriteFailureStopsLoop(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := newTestEngine(t, opener)
	require.NoError(t, e.Open(""))
	require.NoError(t, e.Start(context.Background()))

	port := opener.Port("usb0")
	require.Eventually(t, func() bool { return len(port.Frames()) > 0 }, time.Second, 5*time.Millisecond)

	boom := errors.New("usb disconnected")
	port.FailWrites(boom)

	require.Eventually(t, func() bool { return e.State().Status == StatusFailed }, time.Second, 5*time.Millisecond)
	st := e.State()
	assert.ErrorIs(t, st.Err, dmxerr.ErrDevice)
	assert.ErrorIs(t, st.Err, boom)
	assert.True(t, port.Closed(), "device released after failure")

	// control logic keeps working in degraded mode
	require.NoError(t, e.SetChannel(1, 1))
	assert.ErrorIs(t, e.Start(context.Background()), dmxerr.ErrDevice)

	port.FailWrites(nil)
	require.NoError(t, e.Open(""))
	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool {
		f, ok := port.LastFrame()
		return ok && f.Channel(1) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, e.State().Err)
}

func TestFailsafeFrameAfterWriteError(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := newTestEngine(t, opener)
	require.NoError(t, e.Open(""))
	require.NoError(t, e.SetChannels(1, []int{255, 128}))
	require.NoError(t, e.Start(context.Background()))

	port := opener.Port("usb0")
	require.Eventually(t, func() bool {
		f, ok := port.LastFrame()
		return ok && f.Channel(1) == 255
	}, time.Second, 5*time.Millisecond)

	boom := errors.New("framing error")
	port.FailNextWrites(1, boom)

	require.Eventually(t, func() bool { return e.State().Status == StatusFailed }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.State().Err, boom)
	assert.True(t, port.Closed(), "device released after failure")

	frames := port.Frames()
	require.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, byte(255), frames[len(frames)-2].Channel(1))
	assert.Equal(t, Universe{}, frames[len(frames)-1], "one all-zero frame follows the failed write")

	v, _ := e.GetChannel(1)
	assert.Equal(t, byte(255), v, "buffer is kept")
}

func TestStartAfterTimedOutStop(t *testing.T) {
	opener := NewMemoryOpener(0, "usb0")
	e := newTestEngine(t, opener)
	require.NoError(t, e.Open(""))

	port := opener.Port("usb0")
	port.DelayWrites(20 * time.Millisecond)
	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool { return len(port.Frames()) > 0 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, e.Stop(time.Millisecond), task.ErrJoinTimeout)

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Running())
	n := len(port.Frames())
	require.Eventually(t, func() bool { return len(port.Frames()) >= n+2 }, 2*time.Second, 10*time.Millisecond,
		"a restarted loop keeps transmitting")
}

func TestConcurrentSetChannel(t *testing.T) {
	e := newTestEngine(t, NewMemoryOpener(0))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = e.SetChannel(w+1, i%256)
				_ = e.SetChannel(100, w)
				_ = e.Snapshot()
			}
			_ = e.SetChannel(w+1, 200+w)
		}(w)
	}
	wg.Wait()

	snap := e.Snapshot()
	for w := 0; w < 8; w++ {
		assert.Equal(t, byte(200+w), snap.Channel(w+1))
	}
	assert.Less(t, int(snap.Channel(100)), 8)
}

func TestStopWithoutStart(t *testing.T) {
	e := newTestEngine(t, NewMemoryOpener(0, "usb0"))
	require.NoError(t, e.Stop(time.Millisecond))
	assert.ErrorIs(t, e.Start(context.Background()), ErrNotOpen)
}
