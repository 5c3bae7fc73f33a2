package ddcci

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a client whose probe finds the given fakes:
// monitors[i] answers /dev/i2c-i, a nil entry means the node exists but
// fails to open, and the node after the last entry does not exist.
func newTestClient(monitors []*fakeMonitor) *Client {
	c := NewClient(VerboseNone)
	c.moduleLoaded = func() bool { return true }
	c.statPath = func(path string) error {
		for i := range monitors {
			if path == fmt.Sprintf("/dev/i2c-%d", i) {
				return nil
			}
		}
		return errors.New("no such file")
	}
	c.openDevice = func(path string, verbosity Verbosity) (*Device, error) {
		var m *fakeMonitor
		for i := range monitors {
			if path == fmt.Sprintf("/dev/i2c-%d", i) {
				m = monitors[i]
			}
		}
		if m == nil {
			return nil, errors.New("open failed")
		}
		d := newFakeDevice(m)
		d.path = path
		return newDeviceFromTransport(d)
	}
	return c
}

func goodMonitor(letters string) *fakeMonitor {
	return &fakeMonitor{
		edid:    edidBlock(letters, 0x01, 0x02),
		replies: capsReplies("(type(lcd)model(probe)vcp(10))", 61),
	}
}

func TestGetDevicesSkipsBadEDID(t *testing.T) {
	// i2c-0 answers with a valid EDID, i2c-1 opens but returns a corrupt
	// EDID, i2c-2 does not exist and stops the probe
	bad := goodMonitor("DEL")
	bad.edid[0] = 0xAA
	c := newTestClient([]*fakeMonitor{goodMonitor("DEL"), bad})

	devices, err := c.GetDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-0", devices[0].Path())

	// coldplug is one-shot
	again, err := c.GetDevices()
	require.NoError(t, err)
	assert.Equal(t, devices, again)
}

func TestGetDevicesNoDevices(t *testing.T) {
	c := newTestClient(nil)

	_, err := c.GetDevices()
	var cerr *ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ClientErrNoDevices, cerr.Kind)
}

func TestGetDevicesKernelModuleAbsent(t *testing.T) {
	c := newTestClient([]*fakeMonitor{goodMonitor("DEL")})
	c.moduleLoaded = func() bool { return false }

	_, err := c.GetDevices()
	var cerr *ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ClientErrKernelModuleAbsent, cerr.Kind)
	assert.Contains(t, cerr.Error(), "modprobe i2c-dev")
}

func TestGetDeviceByEDID(t *testing.T) {
	c := newTestClient([]*fakeMonitor{goodMonitor("DEL"), goodMonitor("NEC")})

	devices, err := c.GetDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)

	device, err := c.GetDeviceByEDID(devices[1].EDIDFingerprint())
	require.NoError(t, err)
	assert.Same(t, devices[1], device)

	_, err = c.GetDeviceByEDID("ffffffffffffffffffffffffffffffff")
	var cerr *ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ClientErrNotFound, cerr.Kind)
	assert.Contains(t, cerr.Error(), "ffffffff")
}

func TestClientCloseFailFast(t *testing.T) {
	first := goodMonitor("DEL")
	first.closeErr = errors.New("busy")
	second := goodMonitor("NEC")
	c := newTestClient([]*fakeMonitor{first, second})

	_, err := c.GetDevices()
	require.NoError(t, err)

	assert.Error(t, c.Close())
	assert.True(t, first.closed)
	assert.False(t, second.closed, "close is fail-fast across devices")
}
