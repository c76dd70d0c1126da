// Package uart models one of the eZ80F92's two on-chip UARTs, per spec.md
// §3/§4.4: a transmit FIFO driven by a baud-derived cooldown counter and a
// lazily-fetched single-slot receive register, bridged to the outside world
// through the SerialLink interface (spec.md §9 "dynamic dispatch of serial
// links").
package uart

// SerialLink is the three-operation contract a UART is bridged through.
// Concrete variants are interchangeable at machine construction time: a
// channel bridging the UART to a VDP, a real host serial device, or a dummy
// that drops everything.
type SerialLink interface {
	Send(b byte)
	Recv() (byte, bool)
	ReadClearToSend() bool
}

// LSR (line status register) bits.
const (
	LSRDataReady        = 1 << 0
	LSRTransmitHoldEmpty = 1 << 5
	LSRTransmitEmpty    = 1 << 6
)

// IIR codes.
const (
	iirNone     = 0x01
	iirThrEmpty = 0x02
)

const fifoCapacity = 16

// UART models RBR/THR, IER, FCTL, LCTL, LSR, MSR, SPR and the baud-rate
// divisor register, selected by LCTL bit 7 the way the real part multiplexes
// RBR/THR and IER with the divisor latch.
type UART struct {
	link SerialLink

	rxBuf   byte
	rxValid bool
	txFIFO  []byte

	transmitCooldown int32

	ier  byte
	fctl byte
	lctl byte
	spr  byte

	brgDiv uint16

	thrEmptyPending bool
}

// New returns a UART bridged through link (must not be nil; use a DummyLink
// if nothing is attached).
func New(link SerialLink) *UART {
	return &UART{link: link}
}

// DivisorLatchSelected reports whether LCTL bit 7 currently routes port 0/1
// accesses to the baud-rate divisor registers instead of RBR/THR/IER.
func (u *UART) DivisorLatchSelected() bool {
	return u.lctl&0x80 != 0
}

// WriteTHR (THR when not in divisor-latch mode) enqueues a byte to transmit.
func (u *UART) WriteTHR(b byte) {
	cap := 1
	if u.fctl&0x01 != 0 { // FIFO enable bit
		cap = fifoCapacity
	}
	if len(u.txFIFO) >= cap {
		return // dropped: FIFO full
	}
	u.txFIFO = append(u.txFIFO, b)
}

// WriteDivisorLow/High set the 16-bit baud-rate generator divisor.
func (u *UART) WriteDivisorLow(b byte)  { u.brgDiv = (u.brgDiv &^ 0x00FF) | uint16(b) }
func (u *UART) WriteDivisorHigh(b byte) { u.brgDiv = (u.brgDiv &^ 0xFF00) | uint16(b)<<8 }
func (u *UART) ReadDivisorLow() byte    { return byte(u.brgDiv) }
func (u *UART) ReadDivisorHigh() byte   { return byte(u.brgDiv >> 8) }

// WriteIER sets the interrupt-enable register.
func (u *UART) WriteIER(b byte) { u.ier = b }
func (u *UART) ReadIER() byte   { return u.ier }

// WriteFCTL sets the FIFO control register (written through the same port
// that reads as IIR).
func (u *UART) WriteFCTL(b byte) { u.fctl = b }

// WriteLCTL sets the line control register (bit 7 selects divisor latch).
func (u *UART) WriteLCTL(b byte) { u.lctl = b }
func (u *UART) ReadLCTL() byte   { return u.lctl }

func (u *UART) WriteSPR(b byte) { u.spr = b }
func (u *UART) ReadSPR() byte   { return u.spr }

// ReadIIR reports the THR-empty interrupt once (clearing it from IER-side
// bookkeeping) or the no-interrupt code otherwise.
func (u *UART) ReadIIR() byte {
	if u.thrEmptyPending {
		u.thrEmptyPending = false
		return iirThrEmpty
	}
	return iirNone
}

// ReadRBR returns the received byte (THR alias read path), consuming it.
func (u *UART) ReadRBR() byte {
	u.receiveByte()
	if !u.rxValid {
		return 0
	}
	u.rxValid = false
	return u.rxBuf
}

// receiveByte lazily pulls from the link into the single-slot rx_buf.
func (u *UART) receiveByte() {
	if u.rxValid {
		return
	}
	if b, ok := u.link.Recv(); ok {
		u.rxBuf = b
		u.rxValid = true
	}
}

// ReadLSR reports DR/THRE/TEMT per spec.md §4.4.
func (u *UART) ReadLSR() byte {
	u.receiveByte()
	var v byte
	if u.rxValid {
		v |= LSRDataReady
	}
	if len(u.txFIFO) == 0 {
		v |= LSRTransmitHoldEmpty
		if u.transmitCooldown == 0 {
			v |= LSRTransmitEmpty
		}
	}
	return v
}

// ReadMSR reports the modem status register; bit 4 mirrors !CTS from the
// link (active low, matching the port-map note in spec.md §4.1 that reads
// of the GPIO DR registers OR in bit 3 when !CTS is asserted).
func (u *UART) ReadMSR() byte {
	if u.link.ReadClearToSend() {
		return 0x00
	}
	return 0x10
}

// ClearToSend exposes the link's CTS state directly, for the GPIO port-read
// OR-in behavior specified in spec.md §4.1.
func (u *UART) ClearToSend() bool { return u.link.ReadClearToSend() }

// ApplyTicks subtracts c from the transmit cooldown (floored at 0); when it
// reaches 0 and the FIFO is non-empty, pops one byte, sends it on the link,
// and reloads the cooldown to model one start + 8 data + 1 stop bit at the
// selected baud.
func (u *UART) ApplyTicks(c int) {
	if u.transmitCooldown > 0 {
		u.transmitCooldown -= int32(c)
		if u.transmitCooldown < 0 {
			u.transmitCooldown = 0
		}
	}

	if u.transmitCooldown == 0 && len(u.txFIFO) > 0 {
		b := u.txFIFO[0]
		u.txFIFO = u.txFIFO[1:]
		u.link.Send(b)
		u.transmitCooldown = int32(u.brgDiv) * 16 * 9
		if len(u.txFIFO) == 0 {
			u.thrEmptyPending = true
		}
	}
}

// InterruptDue reports whether UART0's combined interrupt condition holds:
// an Rx interrupt is enabled and a byte is now available, or the Tx-empty
// interrupt bit is set in IER and pending.
func (u *UART) InterruptDue() bool {
	u.receiveByte()
	rxDue := u.ier&0x01 != 0 && u.rxValid
	txDue := u.ier&0x02 != 0 && u.thrEmptyPending
	return rxDue || txDue
}
