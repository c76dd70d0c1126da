// Package hostfs implements the trap-and-emulate layer of spec.md §4.6: it
// intercepts calls into MOS's FatFS entry points and redirects them to the
// host filesystem without modifying the guest binary, the same shape as
// _examples/oisee-minz's io_interceptor.go traps ZX tape/TR-DOS/CP-M BDOS
// calls, retargeted at FatFS's f_* contract instead.
package hostfs

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agonite/agonite/pkg/mos"
)

// FatFS error codes observed by guest code (spec.md §4.6).
const (
	FROK      byte = 0
	FRDiskErr byte = 1
	FRNoFile  byte = 4
)

// FatFS file-open mode bits, as seen in MOS's f_open calls.
const (
	FACreateNew    = 1 << 4
	FACreateAlways = 1 << 3
	FAWrite        = 1 << 1
)

// The FatFS FIL struct's exact byte layout is not part of this contract;
// spec.md names only two guest-visible fields, objsize and fptr. These
// offsets place them inside an otherwise-zeroed, generously sized struct.
const (
	filOffsetObjSize = 0x10
	filOffsetFptr    = 0x14
	filSize          = 0x40

	filinfoSize      = 278
	filinfoOffSize   = 0
	filinfoOffDate   = 4
	filinfoOffTime   = 6
	filinfoOffAttrib = 8
	filinfoOffName   = 22

	attribDirectory = 1 << 4

	maxFileSize = 512 * 1024
)

// Registers is the subset of CPU state a trap needs: the stack pointer to
// read arguments from, HL to report a status/return value in, and enough
// control over PC/SP to perform the synthetic subroutine return.
type Registers interface {
	SP() uint16
	SetSP(uint16)
	SetPC(uint16)
	SetHL(uint16)
	FullAddr(addr uint16) uint32
}

// Memory is the guest memory surface traps read arguments and write results
// through.
type Memory interface {
	Peek(addr uint32) byte
	Poke(addr uint32, v byte)
}

// FS is the host-backed implementation of the FatFS entry points.
type FS struct {
	path  *mos.Path
	files map[uint32]*fileHandle
	dirs  map[uint32]*dirHandle

	logger func(format string, args ...interface{})
}

type fileHandle struct {
	f    *os.File
	size int64
}

type dirHandle struct {
	entries []os.DirEntry
	idx     int
}

// New returns an FS rooted at hostRoot on the host filesystem.
func New(hostRoot string) *FS {
	return &FS{
		path:  mos.NewPath(hostRoot),
		files: make(map[uint32]*fileHandle),
		dirs:  make(map[uint32]*dirHandle),
	}
}

// SetLogger installs an optional trace callback, invoked once per trap.
func (fs *FS) SetLogger(logf func(format string, args ...interface{})) {
	fs.logger = logf
}

func (fs *FS) logf(format string, args ...interface{}) {
	if fs.logger != nil {
		fs.logger(format, args...)
	}
}

// Dispatch runs the trap named by entry (one of mos.Entries), reads its
// arguments from the guest stack, performs the host operation, writes
// results back into guest memory, and performs the synthetic subroutine
// return spec.md §4.6 describes. It reports whether entry was recognized.
func (fs *FS) Dispatch(entry string, regs Registers, mem Memory) bool {
	fs.logf("hostfs: %s", entry)

	var status byte
	switch entry {
	case "f_mount":
		status = fs.fMount()
	case "f_getlabel":
		status = fs.fGetlabel(regs, mem, fs.arg(regs, mem, 0))
	case "f_getcwd":
		status = fs.fGetcwd(regs, mem, fs.arg(regs, mem, 0))
	case "f_chdir":
		status = fs.fChdir(fs.argString(regs, mem, 0))
	case "f_mkdir":
		status = fs.fMkdir(fs.argString(regs, mem, 0))
	case "f_unlink":
		status = fs.fUnlink(fs.argString(regs, mem, 0))
	case "f_rename":
		status = fs.fRename(fs.argString(regs, mem, 0), fs.argString(regs, mem, 1))
	case "f_stat":
		status = fs.fStat(fs.argString(regs, mem, 0), regs, mem, fs.arg(regs, mem, 1))
	case "f_open":
		status = fs.fOpen(fs.arg(regs, mem, 0), fs.argString(regs, mem, 1), byte(fs.arg(regs, mem, 2)), regs, mem)
	case "f_close":
		status = fs.fClose(fs.arg(regs, mem, 0))
	case "f_read":
		status = fs.fRead(fs.arg(regs, mem, 0), fs.arg(regs, mem, 1), uint16(fs.arg(regs, mem, 2)), fs.arg(regs, mem, 3), regs, mem)
	case "f_write":
		status = fs.fWrite(fs.arg(regs, mem, 0), fs.arg(regs, mem, 1), uint16(fs.arg(regs, mem, 2)), fs.arg(regs, mem, 3), regs, mem)
	case "f_putc":
		status = fs.fPutc(byte(fs.arg(regs, mem, 0)), fs.arg(regs, mem, 1), regs, mem)
	case "f_gets":
		// f_gets reports through HL itself (buf on success, else 0).
		fs.fGets(fs.arg(regs, mem, 0), uint16(fs.arg(regs, mem, 1)), fs.arg(regs, mem, 2), regs, mem)
		fs.subroutineReturn(regs, mem)
		return true
	case "f_lseek":
		status = fs.fLseek(fs.arg(regs, mem, 0), fs.arg(regs, mem, 1), regs, mem)
	case "f_truncate":
		status = fs.fTruncate(fs.arg(regs, mem, 0), regs, mem)
	case "f_opendir":
		status = fs.fOpendir(fs.arg(regs, mem, 0), fs.argString(regs, mem, 1))
	case "f_closedir":
		status = fs.fClosedir(fs.arg(regs, mem, 0))
	case "f_readdir":
		status = fs.fReaddir(fs.arg(regs, mem, 0), regs, mem, fs.arg(regs, mem, 1))
	default:
		return false
	}

	regs.SetHL(uint16(status))
	fs.subroutineReturn(regs, mem)
	return true
}

// arg reads the nth 24-bit little-endian argument, at sp+3+3n per spec.md
// §4.6.
func (fs *FS) arg(regs Registers, mem Memory, n int) uint32 {
	addr := regs.SP() + 3 + uint16(3*n)
	b0 := mem.Peek(regs.FullAddr(addr))
	b1 := mem.Peek(regs.FullAddr(addr + 1))
	b2 := mem.Peek(regs.FullAddr(addr + 2))
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
}

// argString reads the nth argument as a pointer and follows it to a
// NUL-terminated guest string.
func (fs *FS) argString(regs Registers, mem Memory, n int) string {
	ptr := fs.arg(regs, mem, n)
	return fs.readCString(mem, ptr)
}

func (fs *FS) readCString(mem Memory, ptr uint32) string {
	var sb strings.Builder
	for i := uint32(0); i < 512; i++ {
		b := mem.Peek(ptr + i)
		if b == 0 {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func (fs *FS) writeCString(mem Memory, ptr uint32, s string) {
	for i := 0; i < len(s); i++ {
		mem.Poke(ptr+uint32(i), s[i])
	}
	mem.Poke(ptr+uint32(len(s)), 0)
}

// subroutineReturn pops the 3-byte return address pushed by the guest CALL
// and resumes execution there, per spec.md §4.6/§4.1.
func (fs *FS) subroutineReturn(regs Registers, mem Memory) {
	sp := regs.SP()
	b0 := mem.Peek(regs.FullAddr(sp))
	b1 := mem.Peek(regs.FullAddr(sp + 1))
	_ = mem.Peek(regs.FullAddr(sp + 2)) // top byte of a 24-bit return address; the wrapped 16-bit core has no use for it
	ret := uint16(b0) | uint16(b1)<<8
	regs.SetSP(sp + 3)
	regs.SetPC(ret)
}

func (fs *FS) fMount() byte { return FROK }

func (fs *FS) fGetlabel(regs Registers, mem Memory, bufPtr uint32) byte {
	fs.writeCString(mem, bufPtr, "hostfs")
	return FROK
}

func (fs *FS) fGetcwd(regs Registers, mem Memory, bufPtr uint32) byte {
	fs.writeCString(mem, bufPtr, fs.path.Cwd())
	return FROK
}

func (fs *FS) fChdir(guestPath string) byte {
	_, ok := fs.path.Chdir(guestPath)
	if ok {
		return FROK
	}
	if _, err := os.Stat(fs.path.Resolve(guestPath)); os.IsNotExist(err) {
		return FRNoFile
	}
	return FRDiskErr
}

func (fs *FS) fMkdir(guestPath string) byte {
	hostPath := fs.path.Resolve(guestPath)
	if err := os.Mkdir(hostPath, 0755); err != nil {
		if os.IsNotExist(err) {
			return FRNoFile
		}
		return FRDiskErr
	}
	return FROK
}

func (fs *FS) fUnlink(guestPath string) byte {
	hostPath := fs.path.Resolve(guestPath)
	if err := os.Remove(hostPath); err != nil {
		if os.IsNotExist(err) {
			return FRNoFile
		}
		return FRDiskErr
	}
	return FROK
}

func (fs *FS) fRename(oldPath, newPath string) byte {
	oldHost := fs.path.Resolve(oldPath)
	newHost := fs.path.Resolve(newPath)
	if _, err := os.Stat(oldHost); os.IsNotExist(err) {
		return FRNoFile
	}
	if err := os.Rename(oldHost, newHost); err != nil {
		return FRDiskErr
	}
	return FROK
}

func (fs *FS) fStat(guestPath string, regs Registers, mem Memory, filinfoPtr uint32) byte {
	hostPath := fs.path.Resolve(guestPath)
	info, err := os.Stat(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FRNoFile
		}
		return FRDiskErr
	}
	writeFilinfo(mem, filinfoPtr, info)
	return FROK
}

func (fs *FS) fOpen(filPtr uint32, guestPath string, mode byte, regs Registers, mem Memory) byte {
	hostPath := fs.path.Resolve(guestPath)

	if info, err := os.Stat(hostPath); err == nil && info.IsDir() {
		return FRNoFile
	}

	flags := os.O_RDONLY
	if mode&FAWrite != 0 {
		flags = os.O_RDWR
	}
	if mode&(FACreateNew|FACreateAlways) != 0 {
		flags |= os.O_CREATE
	}
	if mode&FACreateAlways != 0 {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(hostPath, flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return FRNoFile
		}
		return FRDiskErr
	}

	info, err := f.Stat()
	size := int64(0)
	if err == nil {
		size = info.Size()
		if size > maxFileSize {
			size = maxFileSize
		}
	}

	zeroStruct(mem, filPtr, filSize)
	writeU32LE(mem, filPtr+filOffsetObjSize, uint32(size))

	fs.files[filPtr] = &fileHandle{f: f, size: size}
	return FROK
}

func (fs *FS) fClose(filPtr uint32) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}
	h.f.Close()
	delete(fs.files, filPtr)
	return FROK
}

func (fs *FS) fRead(filPtr, bufPtr uint32, length uint16, nReadPtr uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}

	buf := make([]byte, length)
	n, err := h.f.Read(buf)
	if err != nil && err != io.EOF {
		return FRDiskErr
	}
	for i := 0; i < n; i++ {
		mem.Poke(bufPtr+uint32(i), buf[i])
	}

	pos, _ := h.f.Seek(0, io.SeekCurrent)
	writeU32LE(mem, filPtr+filOffsetFptr, uint32(pos))
	writeU32LE(mem, nReadPtr, uint32(n))
	return FROK
}

func (fs *FS) fWrite(filPtr, bufPtr uint32, length uint16, nWrittenPtr uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}

	buf := make([]byte, length)
	for i := range buf {
		buf[i] = mem.Peek(bufPtr + uint32(i))
	}

	if _, err := h.f.Write(buf); err != nil {
		return FRDiskErr
	}

	pos, _ := h.f.Seek(0, io.SeekCurrent)
	writeU32LE(mem, filPtr+filOffsetFptr, uint32(pos))
	writeU32LE(mem, nWrittenPtr, uint32(length))
	return FROK
}

func (fs *FS) fPutc(ch byte, filPtr uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}
	if _, err := h.f.Write([]byte{ch}); err != nil {
		return FRDiskErr
	}
	pos, _ := h.f.Seek(0, io.SeekCurrent)
	writeU32LE(mem, filPtr+filOffsetFptr, uint32(pos))
	return FROK
}

func (fs *FS) fGets(bufPtr uint32, max uint16, filPtr uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}

	var written uint16
	one := make([]byte, 1)
	for written < max-1 {
		n, err := h.f.Read(one)
		if n == 0 || err != nil {
			break
		}
		mem.Poke(bufPtr+uint32(written), one[0])
		written++
		if one[0] == '\n' || one[0] == 0 {
			break
		}
	}
	mem.Poke(bufPtr+uint32(written), 0)

	pos, _ := h.f.Seek(0, io.SeekCurrent)
	writeU32LE(mem, filPtr+filOffsetFptr, uint32(pos))

	if written == 0 {
		regs.SetHL(0)
	} else {
		regs.SetHL(uint16(bufPtr))
	}
	return FROK
}

func (fs *FS) fLseek(filPtr, offset uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}
	if _, err := h.f.Seek(int64(offset), io.SeekStart); err != nil {
		return FRDiskErr
	}
	writeU32LE(mem, filPtr+filOffsetFptr, offset)
	return FROK
}

func (fs *FS) fTruncate(filPtr uint32, regs Registers, mem Memory) byte {
	h, ok := fs.files[filPtr]
	if !ok {
		return FRDiskErr
	}
	pos, err := h.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return FRDiskErr
	}
	if err := h.f.Truncate(pos); err != nil {
		return FRDiskErr
	}
	writeU32LE(mem, filPtr+filOffsetObjSize, uint32(pos))
	return FROK
}

func (fs *FS) fOpendir(dirPtr uint32, guestPath string) byte {
	hostPath := fs.path.Resolve(guestPath)
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FRNoFile
		}
		return FRDiskErr
	}
	fs.dirs[dirPtr] = &dirHandle{entries: entries}
	return FROK
}

func (fs *FS) fClosedir(dirPtr uint32) byte {
	if _, ok := fs.dirs[dirPtr]; !ok {
		return FRDiskErr
	}
	delete(fs.dirs, dirPtr)
	return FROK
}

func (fs *FS) fReaddir(dirPtr uint32, regs Registers, mem Memory, filinfoPtr uint32) byte {
	d, ok := fs.dirs[dirPtr]
	if !ok {
		return FRDiskErr
	}

	zeroStruct(mem, filinfoPtr, filinfoSize)

	if d.idx >= len(d.entries) {
		return FROK // fname[0] = 0 already, via the zero-init
	}

	entry := d.entries[d.idx]
	d.idx++

	info, err := entry.Info()
	if err != nil {
		return FRDiskErr
	}
	writeFilinfo(mem, filinfoPtr, info)
	return FROK
}

// writeFilinfo encodes a FILINFO struct exactly as spec.md §4.6 specifies.
func writeFilinfo(mem Memory, ptr uint32, info os.FileInfo) {
	writeU32LE(mem, ptr+filinfoOffSize, uint32(info.Size()))

	t := info.ModTime()
	date := uint16((t.Year()-1980)<<9) | uint16(t.Month())<<5 | uint16(t.Day())
	writeU16LE(mem, ptr+filinfoOffDate, date)

	timeVal := uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	writeU16LE(mem, ptr+filinfoOffTime, timeVal)

	var attrib byte
	if info.IsDir() {
		attrib = attribDirectory
	}
	mem.Poke(ptr+filinfoOffAttrib, attrib)

	name := info.Name()
	for i := 0; i < len(name); i++ {
		mem.Poke(ptr+filinfoOffName+uint32(i), name[i])
	}
	mem.Poke(ptr+filinfoOffName+uint32(len(name)), 0)
}

func zeroStruct(mem Memory, ptr uint32, n int) {
	for i := 0; i < n; i++ {
		mem.Poke(ptr+uint32(i), 0)
	}
}

func writeU32LE(mem Memory, ptr uint32, v uint32) {
	mem.Poke(ptr, byte(v))
	mem.Poke(ptr+1, byte(v>>8))
	mem.Poke(ptr+2, byte(v>>16))
	mem.Poke(ptr+3, byte(v>>24))
}

func writeU16LE(mem Memory, ptr uint32, v uint16) {
	mem.Poke(ptr, byte(v))
	mem.Poke(ptr+1, byte(v>>8))
}

// Errorf wraps a host error with the entry point that produced it, for
// callers that want to log beyond the byte status code.
func Errorf(entry string, err error) error {
	return fmt.Errorf("hostfs: %s: %w", entry, err)
}
