// Package mos recovers firmware entry-point addresses from a linker symbol
// map (spec.md §3 "symbol map reader") and resolves MOS-style guest paths
// against a host directory the way the firmware's FatFS layer would.
package mos

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Entries lists the FatFS entry points a MosMap must resolve (spec.md §4.6).
var Entries = []string{
	"f_mount", "f_getlabel", "f_getcwd", "f_chdir", "f_mkdir", "f_unlink",
	"f_rename", "f_stat", "f_open", "f_close", "f_read", "f_write",
	"f_putc", "f_gets", "f_lseek", "f_truncate", "f_opendir", "f_closedir",
	"f_readdir",
}

// Map holds the addresses of named firmware routines, keyed by symbol name.
type Map struct {
	addrs       map[string]uint32
	entryByAddr map[uint32]string
}

// Load parses the `EXTERNAL DEFINITIONS:` section of a textual linker map,
// whose lines look like `symbol_name   T:ADDRESS   ...`, populating every
// symbol found regardless of whether it is one of Entries.
func Load(r io.Reader) (*Map, error) {
	m := &Map{addrs: make(map[string]uint32)}

	scanner := bufio.NewScanner(r)
	inSection := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "EXTERNAL DEFINITIONS:") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if trimmed == "" {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		addrField := fields[1]
		idx := strings.Index(addrField, "T:")
		if idx == -1 {
			continue
		}
		hexPart := addrField[idx+2:]
		addr, err := strconv.ParseUint(hexPart, 16, 32)
		if err != nil {
			continue
		}
		m.addrs[name] = uint32(addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	m.entryByAddr = make(map[uint32]string, len(Entries))
	for _, required := range Entries {
		addr, ok := m.addrs[required]
		if !ok {
			return nil, fmt.Errorf("mos: symbol map missing required entry %q", required)
		}
		m.entryByAddr[addr] = required
	}

	return m, nil
}

// Address returns the address of a named symbol and whether it was found.
func (m *Map) Address(name string) (uint32, bool) {
	a, ok := m.addrs[name]
	return a, ok
}

// Lookup returns the FatFS entry-point name bound to addr, if any, for trap
// dispatch in the machine's main loop.
func (m *Map) Lookup(addr uint32) (string, bool) {
	name, ok := m.entryByAddr[addr]
	return name, ok
}
