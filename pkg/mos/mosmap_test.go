package mos

import (
	"strings"
	"testing"
)

const sampleMap = `
Linker listing for MOS.bin

EXTERNAL DEFINITIONS:
f_mount                        T:000120   DEFINED IN fatfs.obj
f_getlabel                     T:000140   DEFINED IN fatfs.obj
f_getcwd                       T:000160   DEFINED IN fatfs.obj
f_chdir                        T:000180   DEFINED IN fatfs.obj
f_mkdir                        T:0001A0   DEFINED IN fatfs.obj
f_unlink                       T:0001C0   DEFINED IN fatfs.obj
f_rename                       T:0001E0   DEFINED IN fatfs.obj
f_stat                         T:000200   DEFINED IN fatfs.obj
f_open                         T:000220   DEFINED IN fatfs.obj
f_close                        T:000240   DEFINED IN fatfs.obj
f_read                         T:000260   DEFINED IN fatfs.obj
f_write                        T:000280   DEFINED IN fatfs.obj
f_putc                         T:0002A0   DEFINED IN fatfs.obj
f_gets                         T:0002C0   DEFINED IN fatfs.obj
f_lseek                        T:0002E0   DEFINED IN fatfs.obj
f_truncate                     T:000300   DEFINED IN fatfs.obj
f_opendir                      T:000320   DEFINED IN fatfs.obj
f_closedir                     T:000340   DEFINED IN fatfs.obj
f_readdir                      T:000360   DEFINED IN fatfs.obj
other_symbol                   T:000400   DEFINED IN main.obj

END OF DEFINITIONS
`

func TestLoadResolvesAllEntries(t *testing.T) {
	m, err := Load(strings.NewReader(sampleMap))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	addr, ok := m.Address("f_open")
	if !ok || addr != 0x220 {
		t.Fatalf("f_open address = %#x, ok=%v, want 0x220", addr, ok)
	}
	name, ok := m.Lookup(0x220)
	if !ok || name != "f_open" {
		t.Fatalf("Lookup(0x220) = %q, %v, want f_open", name, ok)
	}
}

func TestLoadMissingEntryFails(t *testing.T) {
	incomplete := `EXTERNAL DEFINITIONS:
f_mount   T:000120   DEFINED IN fatfs.obj
`
	if _, err := Load(strings.NewReader(incomplete)); err == nil {
		t.Fatalf("expected error for incomplete symbol map")
	}
}

func TestLookupIgnoresNonEntrySymbols(t *testing.T) {
	m, err := Load(strings.NewReader(sampleMap))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := m.Lookup(0x400); ok {
		t.Fatalf("Lookup should not resolve non-FatFS symbols")
	}
}
