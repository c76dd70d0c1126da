package hostfs

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeMem is a flat, generously sized guest address space for trap tests.
type fakeMem struct {
	data [1 << 20]byte
}

func (m *fakeMem) Peek(addr uint32) byte     { return m.data[addr] }
func (m *fakeMem) Poke(addr uint32, v byte)  { m.data[addr] = v }

// fakeRegs models SP/PC/HL for a trap call without a real CPU.
type fakeRegs struct {
	sp, pc, hl uint16
}

func (r *fakeRegs) SP() uint16             { return r.sp }
func (r *fakeRegs) SetSP(v uint16)         { r.sp = v }
func (r *fakeRegs) SetPC(v uint16)         { r.pc = v }
func (r *fakeRegs) SetHL(v uint16)         { r.hl = v }
func (r *fakeRegs) FullAddr(a uint16) uint32 { return uint32(a) }

// pushCall sets up the guest stack the way a CALL f_xxx would leave it: a
// 3-byte return address at sp, then each argument as a 3-byte little-endian
// pointer/value at sp+3, sp+6, ...
func pushCall(mem *fakeMem, sp uint16, retAddr uint16, args ...uint32) {
	mem.Poke(uint32(sp), byte(retAddr))
	mem.Poke(uint32(sp)+1, byte(retAddr>>8))
	mem.Poke(uint32(sp)+2, 0)
	for i, a := range args {
		base := uint32(sp) + 3 + uint32(3*i)
		mem.Poke(base, byte(a))
		mem.Poke(base+1, byte(a>>8))
		mem.Poke(base+2, byte(a>>16))
	}
}

func TestFMountAlwaysSucceeds(t *testing.T) {
	fs := New(t.TempDir())
	mem := &fakeMem{}
	regs := &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1234)

	if !fs.Dispatch("f_mount", regs, mem) {
		t.Fatalf("f_mount not recognized")
	}
	if regs.hl != uint16(FROK) {
		t.Fatalf("HL = %d, want FR_OK", regs.hl)
	}
	if regs.pc != 0x1234 || regs.sp != 0x8000+3 {
		t.Fatalf("subroutine return not performed: pc=%#x sp=%#x", regs.pc, regs.sp)
	}
}

func TestFOpenWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	mem := &fakeMem{}

	pathPtr := uint32(0x2000)
	writeGuestString(mem, pathPtr, "greeting.txt")

	filPtr := uint32(0x3000)
	regs := &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, filPtr, pathPtr, uint32(FAWrite|FACreateAlways))
	if !fs.Dispatch("f_open", regs, mem) {
		t.Fatalf("f_open not recognized")
	}
	if regs.hl != uint16(FROK) {
		t.Fatalf("f_open HL = %d, want FR_OK", regs.hl)
	}

	bufPtr := uint32(0x4000)
	nWrittenPtr := uint32(0x4100)
	writeGuestString(mem, bufPtr, "hello")
	regs = &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, filPtr, bufPtr, 5, nWrittenPtr)
	if !fs.Dispatch("f_write", regs, mem) {
		t.Fatalf("f_write not recognized")
	}
	if regs.hl != uint16(FROK) {
		t.Fatalf("f_write HL = %d, want FR_OK", regs.hl)
	}

	regs = &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, filPtr)
	fs.Dispatch("f_close", regs, mem)

	if content, err := os.ReadFile(filepath.Join(root, "greeting.txt")); err != nil || string(content) != "hello" {
		t.Fatalf("file content = %q, err=%v, want \"hello\"", content, err)
	}
}

func TestFStatReportsSize(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("abcdef"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fs := New(root)
	mem := &fakeMem{}
	pathPtr := uint32(0x2000)
	writeGuestString(mem, pathPtr, "a.txt")
	filinfoPtr := uint32(0x5000)

	regs := &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, pathPtr, filinfoPtr)
	if !fs.Dispatch("f_stat", regs, mem) {
		t.Fatalf("f_stat not recognized")
	}
	if regs.hl != uint16(FROK) {
		t.Fatalf("f_stat HL = %d, want FR_OK", regs.hl)
	}

	size := uint32(mem.Peek(filinfoPtr)) | uint32(mem.Peek(filinfoPtr+1))<<8 |
		uint32(mem.Peek(filinfoPtr+2))<<16 | uint32(mem.Peek(filinfoPtr+3))<<24
	if size != 6 {
		t.Fatalf("FILINFO size = %d, want 6", size)
	}
}

func TestFStatMissingFileReturnsNoFile(t *testing.T) {
	fs := New(t.TempDir())
	mem := &fakeMem{}
	pathPtr := uint32(0x2000)
	writeGuestString(mem, pathPtr, "missing.txt")

	regs := &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, pathPtr, uint32(0x5000))
	fs.Dispatch("f_stat", regs, mem)
	if regs.hl != uint16(FRNoFile) {
		t.Fatalf("HL = %d, want FR_NO_FILE", regs.hl)
	}
}

func TestFReaddirEndOfStream(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	mem := &fakeMem{}
	pathPtr := uint32(0x2000)
	writeGuestString(mem, pathPtr, "")
	dirPtr := uint32(0x6000)

	regs := &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, dirPtr, pathPtr)
	if !fs.Dispatch("f_opendir", regs, mem) {
		t.Fatalf("f_opendir not recognized")
	}

	filinfoPtr := uint32(0x7000)
	regs = &fakeRegs{sp: 0x8000}
	pushCall(mem, regs.sp, 0x1000, dirPtr, filinfoPtr)
	fs.Dispatch("f_readdir", regs, mem)
	if regs.hl != uint16(FROK) {
		t.Fatalf("f_readdir HL = %d, want FR_OK", regs.hl)
	}
	if mem.Peek(filinfoPtr+filinfoOffName) != 0 {
		t.Fatalf("expected fname[0]=0 for end-of-stream")
	}
}

func writeGuestString(mem *fakeMem, ptr uint32, s string) {
	for i := 0; i < len(s); i++ {
		mem.Poke(ptr+uint32(i), s[i])
	}
	mem.Poke(ptr+uint32(len(s)), 0)
}
