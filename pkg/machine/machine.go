// Package machine implements the eZ80F92 machine driver of spec.md §4.1: it
// owns the memory map and every peripheral, provides the CPU library with
// the four-operation peek/poke/port_in/port_out contract, arbitrates
// interrupts in strict priority order, and runs the 1 ms-slice main
// execution/throttle loop.
package machine

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agonite/agonite/internal/logging"
	"github.com/agonite/agonite/pkg/cpu"
	"github.com/agonite/agonite/pkg/gpio"
	"github.com/agonite/agonite/pkg/hostfs"
	"github.com/agonite/agonite/pkg/i2c"
	"github.com/agonite/agonite/pkg/memmap"
	"github.com/agonite/agonite/pkg/mos"
	"github.com/agonite/agonite/pkg/prt"
	"github.com/agonite/agonite/pkg/sdcard"
	"github.com/agonite/agonite/pkg/uart"
)

// UnlimitedClockSpeed disables the 1 ms sleep throttle.
const UnlimitedClockSpeed = 0

const numPRT = 6

// gpioPort identifies one of the three GPIO ports the port map exposes.
type gpioPort int

const (
	gpioB gpioPort = iota
	gpioC
	gpioD
)

// Debugger is the subset of the debugger server the machine drives each
// instruction, per spec.md §4.1 step (1)/(2) and §4.7.
type Debugger interface {
	Tick(pc uint32) (pause bool)
	Paused() bool
	WaitResume()
}

// Machine owns every peripheral and the memory backing, and satisfies
// cpu.Bus.
type Machine struct {
	mem memmap.AddressSpace

	prts [numPRT]*prt.Timer

	gpioPorts [3]*gpio.Port
	gpioMu    sync.Mutex

	uart0, uart1 *uart.UART
	i2cCtl       *i2c.Controller
	sd           *sdcard.Card

	mosMap      *mos.Map
	hostfs      *hostfs.FS
	hostfsOn    bool

	cpu *cpu.CPU
	dbg Debugger

	clockSpeedHz int64

	softReset        atomic.Bool
	emulatorShutdown atomic.Bool
	paused           atomic.Bool

	log *logging.Logger
}

// New returns a machine with every peripheral freshly constructed.
func New() *Machine {
	m := &Machine{
		uart0:  uart.New(uart.DummyLink{}),
		uart1:  uart.New(uart.DummyLink{}),
		i2cCtl: i2c.New(),
		log:    logging.New("machine"),
	}
	for i := range m.prts {
		m.prts[i] = prt.New()
	}
	for i := range m.gpioPorts {
		m.gpioPorts[i] = gpio.New()
	}
	m.cpu = cpu.New(m)
	return m
}

// LoadROM loads the MOS firmware image at address 0.
func (m *Machine) LoadROM(data []byte) { m.mem.LoadROM(data) }

// RandomizeRAM fills RAM with noise from src, per the default (non -z)
// startup behavior spec.md §6 describes.
func (m *Machine) RandomizeRAM(src *rand.Rand) { m.mem.RandomizeRAM(src) }

// AttachMosMap installs a parsed symbol map and enables the hostfs trap
// layer rooted at hostRoot.
func (m *Machine) AttachMosMap(mm *mos.Map, hostRoot string) {
	m.mosMap = mm
	m.hostfs = hostfs.New(hostRoot)
	m.hostfsOn = true
}

// AttachSDCard installs a backing image for the SPI SD-card model.
func (m *Machine) AttachSDCard(card *sdcard.Card) { m.sd = card }

// AttachUARTLinks installs SerialLinks for UART0/UART1.
func (m *Machine) AttachUARTLinks(link0, link1 uart.SerialLink) {
	m.uart0 = uart.New(link0)
	m.uart1 = uart.New(link1)
}

// AttachDebugger installs the debugger server the main loop ticks.
func (m *Machine) AttachDebugger(d Debugger) { m.dbg = d }

// CPU exposes the wrapped CPU for a debugger server to observe.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Memory exposes the address space for a debugger server to read and to
// watch for latched out-of-bounds accesses.
func (m *Machine) Memory() *memmap.AddressSpace { return &m.mem }

// SetClockSpeed sets the target clock in Hz (UnlimitedClockSpeed skips the
// 1 ms sleep).
func (m *Machine) SetClockSpeed(hz int64) { m.clockSpeedHz = hz }

// RequestSoftReset sets the soft-reset flag, observed at the next coarse
// interrupt-check cadence.
func (m *Machine) RequestSoftReset() { m.softReset.Store(true) }

// RequestShutdown sets the cooperative shutdown flag.
func (m *Machine) RequestShutdown() { m.emulatorShutdown.Store(true) }

// ShuttingDown reports the shutdown flag.
func (m *Machine) ShuttingDown() bool { return m.emulatorShutdown.Load() }

// SetInputPin forwards a host-originated GPIO pin-level change (VSync,
// joystick) to the named port; safe to call from any thread.
func (m *Machine) SetInputPin(port gpioPort, pin uint, level bool) {
	m.gpioMu.Lock()
	defer m.gpioMu.Unlock()
	m.gpioPorts[port].SetInputPin(pin, level)
}

// GpioB/GpioC/GpioD expose the three GPIO ports for host-thread pokes. The
// VSync pulse lands on GpioB pin 1 per spec.md §2/§4.3.
func (m *Machine) GpioB() gpioPort { return gpioB }
func (m *Machine) GpioC() gpioPort { return gpioC }
func (m *Machine) GpioD() gpioPort { return gpioD }

// PulseVSync drives one vertical-retrace edge onto GPIO-B pin 1, per
// spec.md §2: "host vertical retrace -> GPIO-B pin 1 edge -> eZ80
// interrupt". The VDP frontend calls this once per frame; it does not need
// to know gpioPort is unexported.
func (m *Machine) PulseVSync() {
	const vsyncPin = 1
	m.SetInputPin(gpioB, vsyncPin, true)
	m.SetInputPin(gpioB, vsyncPin, false)
}

// --- cpu.Bus ---

// Peek implements cpu.Bus.
func (m *Machine) Peek(addr uint32) byte { return m.mem.Peek(addr) }

// Poke implements cpu.Bus.
func (m *Machine) Poke(addr uint32, v byte) { m.mem.Poke(addr, v) }

// PortIn implements cpu.Bus, dispatching the bit-exact port map of
// spec.md §4.1.
func (m *Machine) PortIn(port uint16) byte {
	p := byte(port)

	switch {
	case p >= 0x80 && p <= 0x91:
		return m.prtPortIn(p)
	case p >= 0x9A && p <= 0xA5:
		return m.gpioPortIn(p)
	case p >= 0xA8 && p <= 0xB3:
		return m.csPortIn(p)
	case p == 0xB4:
		return boolByte(m.mem.Regs.OnchipMemEnable, 0x80)
	case p == 0xB5:
		return m.mem.Regs.OnchipMemSegment
	case p >= 0xBA && p <= 0xBC:
		return m.spiPortIn(p)
	case p >= 0xC0 && p <= 0xC7:
		return uartPortIn(m.uart0, p-0xC0)
	case p >= 0xCB && p <= 0xCD:
		return m.i2cPortIn(p)
	case p >= 0xD0 && p <= 0xD7:
		return uartPortIn(m.uart1, p-0xD0)
	case p == 0xF7:
		return m.mem.Regs.FlashAddrU
	}
	return 0
}

// PortOut implements cpu.Bus, dispatching the bit-exact port map of
// spec.md §4.1.
func (m *Machine) PortOut(port uint16, v byte) {
	p := byte(port)

	switch {
	case p >= 0x80 && p <= 0x91:
		m.prtPortOut(p, v)
	case p >= 0x9A && p <= 0xA5:
		m.gpioPortOut(p, v)
	case p >= 0xA8 && p <= 0xB3:
		m.csPortOut(p, v)
	case p == 0xB4:
		m.mem.Regs.OnchipMemEnable = v&0x80 != 0
	case p == 0xB5:
		m.mem.Regs.OnchipMemSegment = v
	case p >= 0xBA && p <= 0xBC:
		m.spiPortOut(p, v)
	case p >= 0xC0 && p <= 0xC7:
		uartPortOut(m.uart0, p-0xC0, v)
	case p >= 0xCB && p <= 0xCD:
		m.i2cPortOut(p, v)
	case p >= 0xD0 && p <= 0xD7:
		uartPortOut(m.uart1, p-0xD0, v)
	case p == 0xF7:
		m.mem.Regs.FlashAddrU = v
	}
}

func boolByte(b bool, bit byte) byte {
	if b {
		return bit
	}
	return 0
}

func (m *Machine) prtPortIn(p byte) byte {
	idx := int(p-0x80) / 3
	reg := int(p-0x80) % 3
	t := m.prts[idx]
	switch reg {
	case 0:
		return t.ReadCtl()
	case 1:
		return t.ReadCounterLow()
	default:
		return t.ReadCounterHigh()
	}
}

func (m *Machine) prtPortOut(p, v byte) {
	idx := int(p-0x80) / 3
	reg := int(p-0x80) % 3
	t := m.prts[idx]
	switch reg {
	case 0:
		t.WriteCtl(v)
	case 1:
		t.WriteReloadLow(v)
	default:
		t.WriteReloadHigh(v)
	}
}

func (m *Machine) gpioPortIn(p byte) byte {
	m.gpioMu.Lock()
	defer m.gpioMu.Unlock()

	idx := int(p-0x9A) / 4
	reg := int(p-0x9A) % 4
	port := m.gpioPorts[idx]

	var v byte
	switch reg {
	case 0:
		v = port.ReadDR()
		if idx == int(gpioC) && !m.uart1.ClearToSend() {
			v |= 0x08
		}
		if idx == int(gpioD) && !m.uart0.ClearToSend() {
			v |= 0x08
		}
	case 1:
		v = port.ReadDDR()
	case 2:
		v = port.ReadALT1()
	default:
		v = port.ReadALT2()
	}
	return v
}

func (m *Machine) gpioPortOut(p, v byte) {
	m.gpioMu.Lock()
	defer m.gpioMu.Unlock()

	idx := int(p-0x9A) / 4
	reg := int(p-0x9A) % 4
	port := m.gpioPorts[idx]

	switch reg {
	case 0:
		port.WriteDR(v)
	case 1:
		port.WriteDDR(v)
	case 2:
		port.WriteALT1(v)
	default:
		port.WriteALT2(v)
	}
}

// Only CS0 LBR/UBR are observably used, at the first two offsets of the
// range; the rest of the chip-select register block reads zero and
// swallows writes (spec.md §4.1 "only CS0 LBR/UBR observably used").
func (m *Machine) csPortIn(p byte) byte {
	switch p - 0xA8 {
	case 0:
		return m.mem.Regs.Cs0Lbr
	case 1:
		return m.mem.Regs.Cs0Ubr
	}
	return 0
}

func (m *Machine) csPortOut(p, v byte) {
	switch p - 0xA8 {
	case 0:
		m.mem.Regs.Cs0Lbr = v
	case 1:
		m.mem.Regs.Cs0Ubr = v
	}
}

func (m *Machine) spiPortIn(p byte) byte {
	switch p - 0xBA {
	case 1:
		if m.sd == nil {
			return 0
		}
		return m.sd.ReadStatus()
	case 2:
		if m.sd == nil {
			return 0xFF
		}
		return m.sd.ReadData()
	}
	return 0
}

func (m *Machine) spiPortOut(p, v byte) {
	switch p - 0xBA {
	case 2:
		if m.sd != nil {
			m.sd.WriteData(v)
		}
	}
}

func (m *Machine) i2cPortIn(p byte) byte {
	switch p - 0xCB {
	case 0:
		return m.i2cCtl.ReadCtl()
	case 1:
		return m.i2cCtl.ReadSR()
	}
	return 0
}

func (m *Machine) i2cPortOut(p, v byte) {
	switch p - 0xCB {
	case 0:
		m.i2cCtl.WriteCtl(v)
	case 2:
		m.i2cCtl.WriteCtl(0) // reset
	}
}

// uartPortIn/uartPortOut implement the shared UART0/UART1 register layout
// at offsets 0-7 from the peripheral's port-map base.
func uartPortIn(u *uart.UART, off byte) byte {
	switch off {
	case 0:
		if u.DivisorLatchSelected() {
			return u.ReadDivisorLow()
		}
		return u.ReadRBR()
	case 1:
		if u.DivisorLatchSelected() {
			return u.ReadDivisorHigh()
		}
		return u.ReadIER()
	case 2:
		return u.ReadIIR()
	case 3:
		return u.ReadLCTL()
	case 5:
		return u.ReadLSR()
	case 6:
		return u.ReadMSR()
	case 7:
		return u.ReadSPR()
	}
	return 0
}

func uartPortOut(u *uart.UART, off, v byte) {
	switch off {
	case 0:
		if u.DivisorLatchSelected() {
			u.WriteDivisorLow(v)
		} else {
			u.WriteTHR(v)
		}
	case 1:
		if u.DivisorLatchSelected() {
			u.WriteDivisorHigh(v)
		} else {
			u.WriteIER(v)
		}
	case 2:
		u.WriteFCTL(v)
	case 3:
		u.WriteLCTL(v)
	case 7:
		u.WriteSPR(v)
	}
}

// --- Interrupt arbitration ---

// Interrupt vectors, strict priority order per spec.md §4.1.
const (
	vecPRTBase  = 0x0A
	vecUART0    = 0x18
	vecI2C      = 0x1C
	vecGpioBBase = 0x30
	vecGpioCBase = 0x40
	vecGpioDBase = 0x50
)

// serviceInterrupts checks every interrupt source in strict priority order
// and injects at most one per call.
func (m *Machine) serviceInterrupts() {
	for i, t := range m.prts {
		if t.IRQDue() {
			m.cpu.Interrupt(uint16(vecPRTBase + 2*i))
			return
		}
	}
	if m.uart0.InterruptDue() {
		m.cpu.Interrupt(vecUART0)
		return
	}
	if m.i2cCtl.InterruptDue() {
		m.cpu.Interrupt(vecI2C)
		return
	}
	if vec, ok := m.gpioInterruptVector(gpioB, vecGpioBBase); ok {
		m.cpu.Interrupt(vec)
		return
	}
	if vec, ok := m.gpioInterruptVector(gpioC, vecGpioCBase); ok {
		m.cpu.Interrupt(vec)
		return
	}
	if vec, ok := m.gpioInterruptVector(gpioD, vecGpioDBase); ok {
		m.cpu.Interrupt(vec)
	}
}

func (m *Machine) gpioInterruptVector(port gpioPort, base uint16) (uint16, bool) {
	m.gpioMu.Lock()
	due := m.gpioPorts[port].GetInterruptDue()
	m.gpioMu.Unlock()

	for p := uint(0); p < 8; p++ {
		if due&(1<<p) != 0 {
			return base + 2*uint16(p), true
		}
	}
	return 0, false
}

// --- Main loop ---

// Run drives the 1 ms-slice main execution/throttle loop of spec.md §4.1
// until shutdown is requested.
func (m *Machine) Run() {
	const interruptCheckCadence = 64 // "coarse cadence", not every cycle

	var instrSinceCheck int
	var cyclesThisSlice int64
	sliceStart := time.Now()

	for !m.ShuttingDown() {
		if m.dbg != nil {
			if pause := m.dbg.Tick(m.cpu.FullAddr(m.cpu.PC())); pause {
				m.paused.Store(true)
			}
		}
		if m.paused.Load() {
			if m.dbg != nil {
				m.dbg.WaitResume()
			}
			m.paused.Store(false)
		}

		if m.hostfsOn && m.mosMap != nil {
			full := m.cpu.FullAddr(m.cpu.PC())
			if m.mem.Regs.FlashAddrU == 0 && full < memmap.RomSize {
				if entry, ok := m.mosMap.Lookup(full); ok {
					m.hostfs.Dispatch(entry, cpuRegisters{m.cpu}, &m.mem)
				}
			}
		}

		cycles := m.cpu.Step()
		cyclesThisSlice += int64(cycles)

		for _, t := range m.prts {
			t.ApplyTicks(cycles)
		}
		m.uart0.ApplyTicks(cycles)
		m.uart1.ApplyTicks(cycles)

		instrSinceCheck++
		if instrSinceCheck >= interruptCheckCadence {
			instrSinceCheck = 0
			if m.softReset.Load() {
				m.cpu.SoftReset()
				m.softReset.Store(false)
			}
			m.serviceInterrupts()
		}

		if m.clockSpeedHz != UnlimitedClockSpeed {
			budget := m.clockSpeedHz / 1000
			if cyclesThisSlice >= budget {
				elapsed := time.Since(sliceStart)
				if elapsed < time.Millisecond {
					time.Sleep(time.Millisecond - elapsed)
				}
				cyclesThisSlice = 0
				sliceStart = time.Now()
			}
		}
	}
}

// cpuRegisters adapts *cpu.CPU to hostfs.Registers.
type cpuRegisters struct {
	c *cpu.CPU
}

func (r cpuRegisters) SP() uint16               { return r.c.SP() }
func (r cpuRegisters) SetSP(v uint16)           { r.c.SetSP(v) }
func (r cpuRegisters) SetPC(v uint16)           { r.c.SetPC(v) }
func (r cpuRegisters) SetHL(v uint16)           { r.c.SetHL(v) }
func (r cpuRegisters) FullAddr(addr uint16) uint32 { return r.c.FullAddr(addr) }
