// Package cpu wraps remogatto/z80 behind the four-operation CPU-library
// contract spec.md §4.1/§9 describes: peek/poke/port_in/port_out plus a
// cycle-charging callback, with everything else (instruction decode, flag
// behavior, undocumented opcodes) left to the library.
//
// remogatto/z80 is a 16-bit-address Z80 core, not a native eZ80 ADL
// implementation; no such decoder exists anywhere in this project's
// reference corpus. CPU extends the core with an MBASE page register so a
// 16-bit program address still lands on the right 24-bit cell of the
// machine's AddressSpace, matching the non-ADL addressing mode described in
// spec.md's glossary ("when clear, the CPU uses 16-bit addresses with a
// memory base byte"). Native ADL 24-bit program counters are out of reach
// with a 16-bit stand-in and are a known, documented gap rather than a
// silent one.
package cpu

import (
	"github.com/remogatto/z80"
)

// Bus is the surface a machine driver exposes to the CPU: 24-bit memory and
// 16-bit port access, each expected to charge its own cycles and record any
// out-of-bounds access.
type Bus interface {
	Peek(addr uint32) byte
	Poke(addr uint32, v byte)
	PortIn(port uint16) byte
	PortOut(port uint16, v byte)
}

// Registers is a snapshot of CPU-visible state for the debugger and tests.
type Registers struct {
	A, F           byte
	BC, DE, HL     uint16
	IX, IY, SP, PC uint16
	MBase          byte
	ADL            bool
}

// CPU adapts remogatto/z80's 16-bit core to Bus via an MBASE page register.
type CPU struct {
	core  *z80.Z80
	mem   *memAdapter
	ports *portAdapter
}

// New returns a CPU driven by bus.
func New(bus Bus) *CPU {
	mem := &memAdapter{bus: bus}
	ports := &portAdapter{bus: bus}
	core := z80.NewZ80(mem, ports)
	return &CPU{core: core, mem: mem, ports: ports}
}

// Reset resets the wrapped core and clears MBASE/ADL.
func (c *CPU) Reset() {
	c.core.Reset()
	c.mem.mbase = 0
	c.mem.adl = false
}

// SoftReset implements spec.md §4.1's soft-reset semantics: force 24-bit-mode
// bits, PC <- 0.
func (c *CPU) SoftReset() {
	c.mem.adl = true
	c.core.SetPC(0)
}

// SetMBase sets the memory-base page byte used to extend 16-bit addresses to
// 24 bits while not in ADL mode.
func (c *CPU) SetMBase(mbase byte) { c.mem.mbase = mbase }

// MBase returns the current memory-base page byte.
func (c *CPU) MBase() byte { return c.mem.mbase }

// SetADL sets the ADL-mode flag recorded alongside the core.
func (c *CPU) SetADL(adl bool) { c.mem.adl = adl }

// ADL reports the current ADL-mode flag.
func (c *CPU) ADL() bool { return c.mem.adl }

// Step executes a single instruction and returns the cycles it charged.
func (c *CPU) Step() int {
	before := c.core.Tstates
	c.core.DoOpcode()
	return int(c.core.Tstates - before)
}

// Halted reports whether the core has executed HALT.
func (c *CPU) Halted() bool { return c.core.Halted }

// IFF1 reports the maskable-interrupt enable flip-flop.
func (c *CPU) IFF1() bool { return c.core.IFF1 != 0 }

// Interrupt requests a maskable interrupt at vector addr, the way a
// eZ80-in-IM2 jumps through the vector table: PC is pushed and execution
// continues at addr. remogatto/z80 does not implement IM2 vectoring itself,
// so the vector jump is driven here rather than inside the library.
func (c *CPU) Interrupt(addr uint16) {
	if !c.IFF1() {
		return
	}
	c.core.IFF1, c.core.IFF2 = 0, 0
	sp := c.core.SP()
	pc := c.core.PC()
	c.mem.WriteByte(sp-1, byte(pc>>8))
	c.mem.WriteByte(sp-2, byte(pc))
	c.core.SetSP(sp - 2)
	c.core.SetPC(addr)
	if c.core.Halted {
		c.core.Halted = false
	}
}

// GetRegisters returns a snapshot of CPU state.
func (c *CPU) GetRegisters() Registers {
	return Registers{
		A: c.core.A, F: c.core.F,
		BC: c.core.BC(), DE: c.core.DE(), HL: c.core.HL(),
		IX: c.core.IX(), IY: c.core.IY(),
		SP: c.core.SP(), PC: c.core.PC(),
		MBase: c.mem.mbase, ADL: c.mem.adl,
	}
}

func (c *CPU) SetPC(pc uint16) { c.core.SetPC(pc) }
func (c *CPU) SetSP(sp uint16) { c.core.SetSP(sp) }
func (c *CPU) PC() uint16      { return c.core.PC() }
func (c *CPU) SP() uint16      { return c.core.SP() }
func (c *CPU) HL() uint16      { return c.core.HL() }
func (c *CPU) SetHL(v uint16)  { c.core.SetHL(v) }

// FullAddr extends a 16-bit program address to 24 bits via MBASE/ADL, the
// same way the wrapped core's own memory accesses are translated.
func (c *CPU) FullAddr(addr uint16) uint32 { return c.mem.full(addr) }

// PeekRange reads n bytes starting at the 16-bit address addr, extended
// through MBASE/ADL, without moving PC.
func (c *CPU) PeekRange(addr uint16, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = c.mem.bus.Peek(c.mem.full(addr + uint16(i)))
	}
	return out
}

// memAdapter implements z80.MemoryAccessor over a Bus, folding 16-bit
// addresses through MBASE.
type memAdapter struct {
	bus   Bus
	mbase byte
	adl   bool
}

func (m *memAdapter) full(addr uint16) uint32 {
	if m.adl {
		return uint32(addr)
	}
	return uint32(m.mbase)<<16 | uint32(addr)
}

func (m *memAdapter) ReadByte(address uint16) byte { return m.bus.Peek(m.full(address)) }
func (m *memAdapter) WriteByte(address uint16, value byte) {
	m.bus.Poke(m.full(address), value)
}
func (m *memAdapter) ReadByteInternal(address uint16) byte { return m.ReadByte(address) }
func (m *memAdapter) WriteByteInternal(address uint16, value byte) {
	m.WriteByte(address, value)
}
func (m *memAdapter) Read(address uint16) byte  { return m.ReadByte(address) }
func (m *memAdapter) Write(address uint16, value byte, protectROM bool) {
	m.WriteByte(address, value)
}
func (m *memAdapter) Data() []byte { return nil }

func (m *memAdapter) ContendRead(address uint16, time int)                    {}
func (m *memAdapter) ContendReadNoMreq(address uint16, time int)              {}
func (m *memAdapter) ContendReadNoMreq_loop(address uint16, time int, count uint) {}
func (m *memAdapter) ContendWriteNoMreq(address uint16, time int)             {}
func (m *memAdapter) ContendWriteNoMreq_loop(address uint16, time int, count uint) {}

// portAdapter implements z80.PortAccessor over a Bus.
type portAdapter struct {
	bus Bus
}

func (p *portAdapter) ReadPort(address uint16) byte         { return p.bus.PortIn(address) }
func (p *portAdapter) WritePort(address uint16, b byte)     { p.bus.PortOut(address, b) }
func (p *portAdapter) ReadPortInternal(address uint16, contend bool) byte {
	return p.ReadPort(address)
}
func (p *portAdapter) WritePortInternal(address uint16, b byte, contend bool) {
	p.WritePort(address, b)
}
func (p *portAdapter) ContendPortPreio(address uint16)  {}
func (p *portAdapter) ContendPortPostio(address uint16) {}
