package ddcci

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
)

// DeviceKind is the monitor kind advertised by the "type" capability field.
type DeviceKind int

const (
	KindUnknown DeviceKind = iota
	KindLCD
	KindCRT
)

func (k DeviceKind) String() string {
	switch k {
	case KindLCD:
		return "lcd"
	case KindCRT:
		return "crt"
	default:
		return "unknown"
	}
}

// DDC/CI and EDID wire constants.
const (
	defaultDDCCIAddr = 0x37
	defaultEDIDAddr  = 0x50

	maxMessageBytes = 127

	writeQuietPeriod = 50 * time.Millisecond
	readQuietPeriod  = 40 * time.Millisecond
	saveSettleDelay  = 200 * time.Millisecond
	controlSetDelay  = 50 * time.Millisecond

	magicHostAddr = 0x51 // LIBDDC_MAGIC_BYTE1, the host's own address byte
	magicLenFlag  = 0x80 // LIBDDC_MAGIC_BYTE2, ORed with payload length
	magicReadSeed = 0x50 // LIBDDC_MAGIC_XOR, initial XOR for a received frame

	opCapabilitiesRequest     = 0xF3
	opCapabilitiesReply       = 0xE3
	opCommandPresence         = 0xF7
	opEnableApplicationReport = 0xF5
	ctrlValueEnable           = uint16(0x0001)
	ctrlValueDisable          = uint16(0x0000)
	opSaveCurrentSettings     = 0x0C
	opVCPRequest              = 0x01
	opVCPReply                = 0x02
	opVCPSet                  = 0x03
	opVCPReset                = 0x09

	capabilityChunkSize = 64
)

const kernelModuleMarker = "/sys/module/i2c_dev/srcversion"

func kernelModuleLoaded() bool {
	_, err := os.Stat(kernelModuleMarker)
	return err == nil
}

// Device owns one I2C character-device file descriptor, performs raw I2C
// I/O through it, layers DDC/CI framing on top, and caches the EDID and
// capability data the protocol exposes.
type Device struct {
	path      string
	transport transport

	ddcciAddr uint16
	edidAddr  uint16

	edid    [128]byte
	edidMD5 string
	pnpID   string

	model string
	kind  DeviceKind

	controls    []*Control
	hasEDID     bool
	hasControls bool

	lastTxn      time.Time
	haveLastTxn  bool
	requiredWait time.Duration

	verbosity Verbosity
	logger    *logger

	closed bool
}

// Open acquires the I2C file descriptor at path, validates that the
// i2c-dev kernel module is loaded, reads and validates the EDID, and runs
// the vendor-specific startup handshake. It is the only way to obtain a
// live Device; a Device that fails to open has released any fd it
// acquired.
func Open(path string, verbosity Verbosity) (*Device, error) {
	if !kernelModuleLoaded() {
		return nil, newDeviceErr(DeviceErrIO, "unable to use I2C, you need to 'modprobe i2c-dev'", nil)
	}
	t, err := openFdTransport(path)
	if err != nil {
		return nil, newDeviceErr(DeviceErrIO, "failed to open "+path, err)
	}
	d := &Device{
		path:         path,
		transport:    t,
		ddcciAddr:    defaultDDCCIAddr,
		edidAddr:     defaultEDIDAddr,
		lastTxn:      time.Now(),
		haveLastTxn:  true,
		requiredWait: writeQuietPeriod, // assume the hardware is busy until proven otherwise
		verbosity:    verbosity,
		logger:       newComponentLogger(verbosity, "device", path),
	}
	return newDeviceFromTransport(d)
}

// newDeviceFromTransport runs EDID retrieval and the startup handshake
// against an already-open transport. Split out from Open so tests can
// substitute a fake transport (see device_test.go).
func newDeviceFromTransport(d *Device) (*Device, error) {
	if err := d.ensureEDID(); err != nil {
		d.transport.close()
		return nil, err
	}
	if err := d.startup(); err != nil {
		d.transport.close()
		return nil, err
	}
	return d, nil
}

// Close runs the vendor-specific shutdown handshake (a no-op for
// non-Samsung devices) and releases the file descriptor.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	err := d.shutdown()
	if cerr := d.transport.close(); err == nil {
		err = cerr
	}
	d.closed = true
	return err
}

// Path returns the character-device path the Device was opened from.
func (d *Device) Path() string { return d.path }

// EDID returns the raw 128-byte EDID block.
func (d *Device) EDID() [128]byte { return d.edid }

// EDIDFingerprint returns the lowercase hex MD5 of the raw EDID bytes.
func (d *Device) EDIDFingerprint() string { return d.edidMD5 }

// PNPID returns the three-letter-plus-two-hex-byte manufacturer code
// decoded from the EDID.
func (d *Device) PNPID() string { return d.pnpID }

// Model returns the capability string's model field. Requires the
// capability string to have been retrieved; triggers that retrieval if
// it has not been already.
func (d *Device) Model() (string, error) {
	if err := d.ensureControls(); err != nil {
		return "", err
	}
	return d.model, nil
}

// Kind returns the monitor kind advertised by the capability string.
func (d *Device) Kind() (DeviceKind, error) {
	if err := d.ensureControls(); err != nil {
		return KindUnknown, err
	}
	return d.kind, nil
}

// Controls returns every Control the capability string enumerated.
func (d *Device) Controls() ([]*Control, error) {
	if err := d.ensureControls(); err != nil {
		return nil, err
	}
	return d.controls, nil
}

// ControlByOpcode looks up a single control by its VCP opcode.
func (d *Device) ControlByOpcode(opcode byte) (*Control, error) {
	if err := d.ensureControls(); err != nil {
		return nil, err
	}
	for _, c := range d.controls {
		if c.opcode == opcode {
			return c, nil
		}
	}
	return nil, newDeviceErr(DeviceErrProtocol, fmt.Sprintf("no control with opcode 0x%02x", opcode), nil)
}

// Save runs the "save current settings" control and sleeps long enough
// for the monitor to commit the change to its EEPROM.
func (d *Device) Save() error {
	ctrl, err := d.ControlByOpcode(opSaveCurrentSettings)
	if err != nil {
		return err
	}
	if err := ctrl.Run(); err != nil {
		return err
	}
	time.Sleep(saveSettleDelay)
	return nil
}

// --- raw I2C + DDC/CI framing -------------------------------------------

func (d *Device) waitForHardware() {
	if !d.haveLastTxn {
		d.haveLastTxn = true
		d.lastTxn = time.Now()
		return
	}
	elapsed := time.Since(d.lastTxn)
	if elapsed < d.requiredWait {
		time.Sleep(d.requiredWait - elapsed)
	}
	d.lastTxn = time.Now()
}

// writeFrame builds and submits a DDC/CI write frame: host address,
// length with the high bit set, payload, then a checksum making the XOR
// of the whole buffer seeded with the slave address shifted left by one
// come out zero.
func (d *Device) writeFrame(payload []byte) error {
	if len(payload) < 1 || len(payload) > maxMessageBytes {
		return newDeviceErr(DeviceErrProtocol, fmt.Sprintf("payload length %d out of range", len(payload)), nil)
	}
	buf := make([]byte, 0, len(payload)+3)
	xor := byte(d.ddcciAddr << 1)

	b := byte(magicHostAddr)
	xor ^= b
	buf = append(buf, b)

	b = byte(magicLenFlag | len(payload))
	xor ^= b
	buf = append(buf, b)

	for _, p := range payload {
		xor ^= p
		buf = append(buf, p)
	}
	buf = append(buf, xor)

	d.waitForHardware()
	if d.verbosity >= VerboseProtocol {
		dumpHex(d.logger, "send", buf)
	}
	if err := d.transport.i2cWrite(d.ddcciAddr, buf); err != nil {
		return newDeviceErr(DeviceErrIO, "i2c write failed", err)
	}
	d.requiredWait = writeQuietPeriod
	return nil
}

// readFrame reads up to len(out) DDC/CI payload bytes and returns the
// number actually delivered. The reply must carry the device's source
// address and XOR to zero when seeded with 0x50.
func (d *Device) readFrame(out []byte) (int, error) {
	n := len(out)
	if n > maxMessageBytes {
		return 0, newDeviceErr(DeviceErrProtocol, fmt.Sprintf("requested read length %d out of range", n), nil)
	}
	buf := make([]byte, n+3)

	d.waitForHardware()
	_, err := d.transport.i2cRead(d.ddcciAddr, buf)
	if err != nil {
		return 0, newDeviceErr(DeviceErrIO, "i2c read failed", err)
	}
	if d.verbosity >= VerboseProtocol {
		dumpHex(d.logger, "recv", buf)
	}

	want := byte(d.ddcciAddr << 1)
	if buf[0] != want {
		return 0, newDeviceErr(DeviceErrProtocol, fmt.Sprintf("bad source address: got 0x%02x, want 0x%02x", buf[0], want), nil)
	}

	if buf[1]&magicLenFlag == 0 {
		// Some monitors (Fujitsu Siemens P19-2, NEC LCD 1970NX) send a
		// clear high bit here; tolerate it and keep decoding the low 7
		// bits as the length.
		d.logger.Debug(fmt.Sprintf("reply length byte 0x%02x has high bit clear, proceeding anyway", buf[1]))
	}
	length := int(buf[1] &^ magicLenFlag)
	if length > n || length > maxMessageBytes {
		return 0, newDeviceErr(DeviceErrProtocol, fmt.Sprintf("bad length: %d", length), nil)
	}

	xor := byte(magicReadSeed)
	for i := 0; i < length+3; i++ {
		xor ^= buf[i]
	}
	if xor != 0 {
		d.requiredWait = readQuietPeriod
		return 0, newDeviceErr(DeviceErrProtocol, "bad checksum", nil)
	}

	copy(out, buf[2:2+length])
	d.requiredWait = readQuietPeriod
	return length, nil
}

// --- EDID ----------------------------------------------------------------

func edidValid(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	header := [8]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}
	for i, b := range header {
		if data[i] != b {
			return false
		}
	}
	return true
}

func decodePNPID(edid [128]byte) string {
	c0 := byte((edid[8]>>2)&31) + 'A' - 1
	c1 := byte(((edid[8]&3)<<3)+(edid[9]>>5)) + 'A' - 1
	c2 := byte(edid[9]&31) + 'A' - 1
	return fmt.Sprintf("%c%c%c%02X%02X", c0, c1, c2, edid[11], edid[10])
}

// ensureEDID reads and validates the EDID block once; later calls are
// no-ops.
func (d *Device) ensureEDID() error {
	if d.hasEDID {
		return nil
	}
	// EDID retrieval is a raw I2C transaction, not a DDC/CI-framed one:
	// write the offset byte directly to 0x50, then read 128 raw bytes.
	if err := d.transport.i2cWrite(d.edidAddr, []byte{0x00}); err != nil {
		return newDeviceErr(DeviceErrIO, "failed to request EDID", err)
	}
	buf := make([]byte, 128)
	if _, err := d.transport.i2cRead(d.edidAddr, buf); err != nil {
		return newDeviceErr(DeviceErrIO, "failed to receive EDID", err)
	}
	if !edidValid(buf) {
		return newDeviceErr(DeviceErrBadEDID, fmt.Sprintf("corrupted EDID at 0x%02x", d.edidAddr), nil)
	}
	copy(d.edid[:], buf)
	sum := md5.Sum(buf)
	d.edidMD5 = hex.EncodeToString(sum[:])
	d.pnpID = decodePNPID(d.edid)
	d.hasEDID = true
	d.logger.Info(fmt.Sprintf("edid ok: pnpid=%s md5=%s", d.pnpID, d.edidMD5))
	return nil
}

// --- capability retrieval and parse --------------------------------------

func (d *Device) rawCaps(offset int) ([]byte, int, error) {
	req := []byte{opCapabilitiesRequest, byte(offset >> 8), byte(offset & 0xFF)}
	if err := d.writeFrame(req); err != nil {
		return nil, 0, err
	}
	buf := make([]byte, capabilityChunkSize)
	n, err := d.readFrame(buf)
	if err != nil {
		return nil, 0, err
	}
	return buf, n, nil
}

// ensureControls retrieves and parses the capability string once; later
// calls are no-ops. Chunks are fetched with a retry budget of 5, and any
// successful chunk replenishes the remaining budget to 3.
func (d *Device) ensureControls() error {
	if d.hasControls {
		return nil
	}

	var accum []byte
	offset := 0
	retries := 5
	for {
		if retries == 0 {
			return newDeviceErr(DeviceErrCapabilityReadFailed, "failed to read controls after retries", nil)
		}
		buf, n, err := d.rawCaps(offset)
		if err != nil {
			d.logger.Warn(fmt.Sprintf("failed to read capability offset %d: %v", offset, err))
			retries--
			continue
		}
		if n < 3 || buf[0] != opCapabilitiesReply || int(buf[1])*256+int(buf[2]) != offset {
			d.logger.Warn(fmt.Sprintf("invalid sequence in caps at offset %d", offset))
			retries--
			continue
		}
		accum = append(accum, buf[3:n]...)
		offset += n - 3
		retries = 3
		if n == 3 {
			break
		}
	}

	d.logger.Debug(fmt.Sprintf("raw caps: %s", string(accum)))
	if err := d.parseCapabilities(string(accum)); err != nil {
		return newDeviceErr(DeviceErrCapabilityParseFailed, "failed to parse capability string", err)
	}
	d.hasControls = true
	d.logger.Info(fmt.Sprintf("capabilities ok: kind=%s model=%q controls=%d", d.kind, d.model, len(d.controls)))
	return nil
}

// --- startup / shutdown handshake ----------------------------------------

func (d *Device) startup() error {
	if strings.HasPrefix(d.pnpID, "SAM") {
		// Samsung magictune mode starts by writing 1 to this register.
		ctrl, err := d.ControlByOpcode(opEnableApplicationReport)
		if err != nil {
			return err
		}
		return ctrl.Set(ctrlValueEnable)
	}
	ctrl, err := d.ControlByOpcode(opCommandPresence)
	if err != nil {
		// Absence of the presence control is never fatal.
		return nil
	}
	return ctrl.Run()
}

func (d *Device) shutdown() error {
	if !strings.HasPrefix(d.pnpID, "SAM") {
		return nil
	}
	ctrl, err := d.ControlByOpcode(opEnableApplicationReport)
	if err != nil {
		return err
	}
	return ctrl.Set(ctrlValueDisable)
}
