package ddcci

import (
	"errors"
	"time"
)

// fakeMonitor scripts a monitor on the other end of the bus: it records
// every raw buffer the device writes and answers reads from a FIFO of
// pre-framed reply buffers. The device issues strict write-then-read
// pairs, so FIFO scripting is enough.
type fakeMonitor struct {
	edid [128]byte

	writes     [][]byte    // buffers written to the DDC/CI address
	writeTimes []time.Time // wall-clock stamp of every bus transaction
	replies    [][]byte    // queued read buffers for the DDC/CI address
	closeErr   error
	closed     bool
}

func (m *fakeMonitor) i2cWrite(addr uint16, data []byte) error {
	m.writeTimes = append(m.writeTimes, time.Now())
	if addr == defaultEDIDAddr {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.writes = append(m.writes, buf)
	return nil
}

func (m *fakeMonitor) i2cRead(addr uint16, buf []byte) (int, error) {
	m.writeTimes = append(m.writeTimes, time.Now())
	if addr == defaultEDIDAddr {
		return copy(buf, m.edid[:]), nil
	}
	if len(m.replies) == 0 {
		return 0, errors.New("no reply scripted")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return copy(buf, reply), nil
}

func (m *fakeMonitor) close() error {
	m.closed = true
	return m.closeErr
}

// frameReply builds the raw bus buffer a monitor sends for a DDC/CI reply
// payload: source address 0x6e, length with the high bit set, payload,
// then a checksum making the XOR seeded with 0x50 come out zero.
func frameReply(payload []byte) []byte {
	buf := []byte{defaultDDCCIAddr << 1, byte(magicLenFlag | len(payload))}
	buf = append(buf, payload...)
	xor := byte(magicReadSeed)
	for _, b := range buf {
		xor ^= b
	}
	return append(buf, xor)
}

// capsReplies scripts the chunked capability exchange for caps, chunk data
// bytes at a time, ending with the header-only reply that terminates the
// stream.
func capsReplies(caps string, chunk int) [][]byte {
	var replies [][]byte
	off := 0
	for {
		n := len(caps) - off
		if n > chunk {
			n = chunk
		}
		payload := []byte{opCapabilitiesReply, byte(off >> 8), byte(off & 0xff)}
		payload = append(payload, caps[off:off+n]...)
		replies = append(replies, frameReply(payload))
		off += n
		if n == 0 {
			return replies
		}
	}
}

// edidBlock builds a valid 128-byte EDID whose bytes 8-11 encode the given
// three-letter manufacturer and product code pair.
func edidBlock(letters string, prodLo, prodHi byte) [128]byte {
	var e [128]byte
	copy(e[:], []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00})
	l0 := letters[0] - 'A' + 1
	l1 := letters[1] - 'A' + 1
	l2 := letters[2] - 'A' + 1
	e[8] = l0<<2 | l1>>3
	e[9] = (l1&7)<<5 | l2
	e[10] = prodLo
	e[11] = prodHi
	return e
}

// newFakeDevice wires a Device over m without running EDID retrieval or
// the startup handshake, for exercising the framing layer directly.
func newFakeDevice(m *fakeMonitor) *Device {
	return &Device{
		path:      "/dev/i2c-fake",
		transport: m,
		ddcciAddr: defaultDDCCIAddr,
		edidAddr:  defaultEDIDAddr,
		verbosity: VerboseNone,
		logger:    newComponentLogger(VerboseNone, "device", "fake"),
	}
}

// openFakeDevice runs the full open path (EDID, startup handshake) over m.
func openFakeDevice(m *fakeMonitor) (*Device, error) {
	return newDeviceFromTransport(newFakeDevice(m))
}
