package ddcci

import (
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Linux I2C character-device ioctl request (linux/i2c-dev.h). I2C_RDWR is
// a plain numeric request, not built from IOR/IOW, matching how the
// kernel headers define it.
var i2cRDWR = uintptr(0x0707)

// i2cMsgReadFlag marks a message as a read (I2C_M_RD).
const i2cMsgReadFlag = uint16(0x0001)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	_     uint16 // padding ahead of the pointer field, matches the C layout
	buf   *byte
}

// i2cRdwrIoctlData mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type i2cRdwrIoctlData struct {
	msgs  *i2cMsg
	nmsgs uint32
}

// transport is the seam between Device's DDC/CI framing and the kernel.
// Production code talks to a real file descriptor via ioctl(I2C_RDWR);
// tests substitute a fake in-memory I2C responder so the framing and
// timing logic can be exercised without real hardware.
type transport interface {
	// i2cWrite submits a single outgoing I2C message at addr.
	i2cWrite(addr uint16, data []byte) error
	// i2cRead submits a single incoming I2C message at addr, reading up
	// to len(buf) bytes, and returns the number of bytes the kernel
	// actually placed in buf.
	i2cRead(addr uint16, buf []byte) (int, error)
	// close releases any OS resource backing the transport.
	close() error
}

// fdTransport is the real transport: one I2C_RDWR ioctl per call, each
// carrying a single message.
type fdTransport struct {
	fd int
}

func openFdTransport(path string) (*fdTransport, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fdTransport{fd: fd}, nil
}

func (t *fdTransport) i2cWrite(addr uint16, data []byte) error {
	msg := i2cMsg{
		addr: addr,
		len:  uint16(len(data)),
	}
	if len(data) > 0 {
		msg.buf = &data[0]
	}
	rdwr := i2cRdwrIoctlData{msgs: &msg, nmsgs: 1}
	return ioctl.Ioctl(uintptr(t.fd), i2cRDWR, uintptr(unsafe.Pointer(&rdwr)))
}

func (t *fdTransport) i2cRead(addr uint16, buf []byte) (int, error) {
	msg := i2cMsg{
		addr:  addr,
		flags: i2cMsgReadFlag,
		len:   uint16(len(buf)),
	}
	if len(buf) > 0 {
		msg.buf = &buf[0]
	}
	rdwr := i2cRdwrIoctlData{msgs: &msg, nmsgs: 1}
	if err := ioctl.Ioctl(uintptr(t.fd), i2cRDWR, uintptr(unsafe.Pointer(&rdwr))); err != nil {
		return 0, err
	}
	return int(msg.len), nil
}

func (t *fdTransport) close() error {
	return syscall.Close(t.fd)
}
