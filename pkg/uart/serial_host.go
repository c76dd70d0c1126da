//go:build linux

package uart

import (
	serial "github.com/daedaluz/goserial"
)

// HostLink bridges a UART to a real host serial device (e.g. a USB-serial
// adapter wired to an actual VDP board), using goserial the way
// _examples/Daedaluz-goserial wraps termios underneath it.
type HostLink struct {
	port *serial.Port
}

// OpenHostLink opens path at baud and returns a SerialLink backed by it.
func OpenHostLink(path string, baud uint32) (*HostLink, error) {
	port, err := serial.Open(path, serial.NewOptions())
	if err != nil {
		return nil, err
	}

	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(baud)
	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}

	port.SetReadTimeout(0)
	return &HostLink{port: port}, nil
}

func (h *HostLink) Send(b byte) {
	_, _ = h.port.Write([]byte{b})
}

func (h *HostLink) Recv() (byte, bool) {
	buf := make([]byte, 1)
	n, err := h.port.Read(buf)
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

func (h *HostLink) ReadClearToSend() bool {
	lines, err := h.port.GetModemLines()
	if err != nil {
		return true
	}
	return lines&serial.TIOCM_CTS != 0
}

// Close releases the underlying host serial device.
func (h *HostLink) Close() error {
	return h.port.Close()
}
