package ddcci

import (
	"fmt"
	"os"
)

// Client enumerates the system's I2C character devices, keeps the ones
// that answer with a valid EDID, and offers lookup by EDID fingerprint.
type Client struct {
	devices     []*Device
	hasColdplug bool
	verbosity   Verbosity
	logger      *logger

	// probe seams, swapped for fakes in client_test.go
	moduleLoaded func() bool
	statPath     func(path string) error
	openDevice   func(path string, verbosity Verbosity) (*Device, error)
}

// NewClient returns an empty client; no probing happens until GetDevices
// or GetDeviceByEDID is called.
func NewClient(verbosity Verbosity) *Client {
	return &Client{
		verbosity:    verbosity,
		logger:       newComponentLogger(verbosity, "client", ""),
		moduleLoaded: kernelModuleLoaded,
		statPath: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
		openDevice: Open,
	}
}

// ensureColdplug is the one-shot probe: try /dev/i2c-0 upwards, stop at
// the first node that does not exist, and keep every device that opens
// with a valid EDID.
func (c *Client) ensureColdplug() error {
	if c.hasColdplug {
		return nil
	}

	if !c.moduleLoaded() {
		return &ClientError{Kind: ClientErrKernelModuleAbsent}
	}

	for i := 0; i < 16; i++ {
		path := fmt.Sprintf("/dev/i2c-%d", i)
		if c.statPath(path) != nil {
			break
		}
		device, err := c.openDevice(path, c.verbosity)
		if err != nil {
			c.logger.Warn(fmt.Sprintf("failed to open %s: %v", path, err))
			continue
		}
		c.logger.Debug(fmt.Sprintf("success, adding %s", path))
		c.devices = append(c.devices, device)
	}

	if len(c.devices) == 0 {
		return &ClientError{Kind: ClientErrNoDevices}
	}
	c.hasColdplug = true
	return nil
}

// GetDevices triggers the cold-plug probe once and returns every device
// that survived it.
func (c *Client) GetDevices() ([]*Device, error) {
	if err := c.ensureColdplug(); err != nil {
		return nil, err
	}
	return c.devices, nil
}

// GetDeviceByEDID returns the device whose EDID MD5 matches the supplied
// lowercase hex fingerprint.
func (c *Client) GetDeviceByEDID(md5 string) (*Device, error) {
	if err := c.ensureColdplug(); err != nil {
		return nil, err
	}
	for _, d := range c.devices {
		if d.EDIDFingerprint() == md5 {
			return d, nil
		}
	}
	return nil, &ClientError{Kind: ClientErrNotFound, Fingerprint: md5}
}

// Close closes every owned device in insertion order, stopping at the
// first failure.
func (c *Client) Close() error {
	for _, d := range c.devices {
		if err := d.Close(); err != nil {
			return err
		}
	}
	return nil
}
