package mos

import (
	"os"
	"path/filepath"
	"strings"
)

// Path resolves MOS-style `/`- or `\`-separated guest paths against a host
// root directory, per spec.md §4.6: absolute input resets the working path,
// `.` is skipped, `..` pops a fragment, and every other fragment matches
// case-insensitively against the host directory's actual entries (the
// host-case name is used when found, the literal fragment otherwise).
type Path struct {
	root   string
	frags  []string
}

// NewPath returns a resolver rooted at root, with CWD at the root.
func NewPath(root string) *Path {
	return &Path{root: root}
}

// Cwd returns the current MOS working path as `/frag/frag`.
func (p *Path) Cwd() string {
	return "/" + strings.Join(p.frags, "/")
}

// Resolve maps a guest path to a host filesystem path without changing CWD.
func (p *Path) Resolve(guest string) string {
	frags := p.resolveFragments(guest)
	return filepath.Join(append([]string{p.root}, frags...)...)
}

// Chdir resolves guest and, if it names a directory, updates CWD to match.
// Returns the resolved host path and whether the directory exists.
func (p *Path) Chdir(guest string) (hostPath string, isDir bool) {
	frags := p.resolveFragments(guest)
	hostPath = filepath.Join(append([]string{p.root}, frags...)...)
	info, err := os.Stat(hostPath)
	if err != nil || !info.IsDir() {
		return hostPath, false
	}
	p.frags = frags
	return hostPath, true
}

// resolveFragments walks guest relative to the current fragments, matching
// each non-trivial fragment case-insensitively against the host directory.
func (p *Path) resolveFragments(guest string) []string {
	frags := append([]string(nil), p.frags...)

	guest = strings.ReplaceAll(guest, "\\", "/")
	if strings.HasPrefix(guest, "/") {
		frags = nil
	}

	for _, part := range strings.Split(guest, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(frags) > 0 {
				frags = frags[:len(frags)-1]
			}
		default:
			frags = append(frags, p.matchFragment(frags, part))
		}
	}
	return frags
}

// matchFragment looks for an entry in the host directory named by frags
// that matches part case-insensitively, returning the host-case name if
// found, else part unchanged.
func (p *Path) matchFragment(frags []string, part string) string {
	dir := filepath.Join(append([]string{p.root}, frags...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return part
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), part) {
			return e.Name()
		}
	}
	return part
}
