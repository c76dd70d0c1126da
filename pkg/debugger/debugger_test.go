package debugger

import (
	"testing"

	"github.com/agonite/agonite/pkg/cpu"
)

// fakeBus is a flat 24-bit memory with no ports, enough to drive cpu.CPU
// through a handful of hand-placed instructions.
type fakeBus struct {
	mem [1 << 17]byte
}

func (b *fakeBus) Peek(addr uint32) byte    { return b.mem[addr&0x1FFFF] }
func (b *fakeBus) Poke(addr uint32, v byte) { b.mem[addr&0x1FFFF] = v }
func (b *fakeBus) PortIn(uint16) byte       { return 0 }
func (b *fakeBus) PortOut(uint16, byte)     {}

// fakeMem adapts fakeBus to debugger.MemoryPeeker with a settable OOB latch.
type fakeMem struct {
	bus        *fakeBus
	oobLatched bool
	oobAddr    uint32
}

func (m *fakeMem) Peek(addr uint32) byte       { return m.bus.Peek(addr) }
func (m *fakeMem) OutOfBounds() (uint32, bool) { return m.oobAddr, m.oobLatched }
func (m *fakeMem) ClearOutOfBounds()           { m.oobLatched = false }

func newHarness() (*Server, *cpu.CPU, *fakeMem) {
	bus := &fakeBus{}
	c := cpu.New(bus)
	mem := &fakeMem{bus: bus}
	s := New(c, mem)
	return s, c, mem
}

// TestStepAdvancesExactlyOneInstruction mirrors invariant 8: a step on an
// address with no triggers advances PC by exactly the instruction length.
func TestStepAdvancesExactlyOneInstruction(t *testing.T) {
	s, c, mem := newHarness()
	c.SetADL(true)
	c.SetPC(0x1000)
	mem.bus.mem[0x1000] = 0x00 // NOP
	mem.bus.mem[0x1001] = 0x00 // NOP

	done := make(chan struct{})
	go func() {
		s.WaitResume()
		close(done)
	}()
	s.Requests() <- Request{Kind: ReqStep}
	<-done

	c.Step() // the instruction the step released

	if pause := s.Tick(c.FullAddr(c.PC())); !pause {
		t.Fatalf("expected re-pause immediately after a single step")
	}
	<-s.Events() // drain the paused event emitted by Tick above

	if got := c.PC(); got != 0x1001 {
		t.Fatalf("PC after one step = %#x, want 0x1001", got)
	}
}

// TestBreakpointDoesNotRefireWithoutProgress mirrors invariant 8's second
// half: continuing off a breakpoint executes that instruction before the
// trigger can fire again.
func TestBreakpointDoesNotRefireWithoutProgress(t *testing.T) {
	s, c, mem := newHarness()
	c.SetADL(true)
	c.SetPC(0x2000)
	mem.bus.mem[0x2000] = 0x00 // NOP
	mem.bus.mem[0x2001] = 0x00 // NOP

	s.AddBreakpoint(0x2000)

	if pause := s.Tick(c.FullAddr(c.PC())); !pause {
		t.Fatalf("expected the breakpoint to pause on first hit")
	}
	<-s.Events() // get-state sugar response
	<-s.Events() // paused event

	done := make(chan struct{})
	go func() {
		s.WaitResume()
		close(done)
	}()
	s.Requests() <- Request{Kind: ReqContinue}
	<-done

	c.Step() // executes the NOP at 0x2000

	if pause := s.Tick(c.FullAddr(c.PC())); pause {
		t.Fatalf("breakpoint re-fired at 0x2001 without progress back to 0x2000")
	}
}

// TestStepOverCallInstallsTriggerAtReturnAddress mirrors concrete scenario 6.
func TestStepOverCallInstallsTriggerAtReturnAddress(t *testing.T) {
	s, c, mem := newHarness()
	c.SetADL(true)
	c.SetPC(0x1000)
	mem.bus.mem[0x1000] = 0xCD // CALL
	mem.bus.mem[0x1001] = 0x00
	mem.bus.mem[0x1002] = 0x30

	done := make(chan struct{})
	go func() {
		s.WaitResume()
		close(done)
	}()
	s.Requests() <- Request{Kind: ReqStepOver}
	<-done

	s.mu.Lock()
	gotTriggers := len(s.triggers) == 1 && s.triggers[0].Address == 0x1003
	s.mu.Unlock()
	if !gotTriggers {
		t.Fatalf("step-over should install a one-shot trigger at 0x1003")
	}

	if pause := s.Tick(0x1003); !pause {
		t.Fatalf("expected pause at the installed return-address trigger")
	}
}
