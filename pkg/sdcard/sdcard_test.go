package sdcard

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// TestCMD0Sequence mirrors spec.md §8 concrete scenario 3.
func TestCMD0Sequence(t *testing.T) {
	c := New(nil, &bytes.Buffer{})
	for _, b := range []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95} {
		c.WriteData(b)
	}
	if got := c.ReadData(); got != 0x01 {
		t.Fatalf("CMD0 reply = %#x, want 0x01", got)
	}
}

func TestCMD8ReportsCheckPattern(t *testing.T) {
	c := New(nil, &bytes.Buffer{})
	for _, b := range []byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87} {
		c.WriteData(b)
	}
	want := []byte{0x01, 0x00, 0x00, 0x01, 0xAA}
	for _, w := range want {
		if got := c.ReadData(); got != w {
			t.Fatalf("CMD8 reply byte = %#x, want %#x", got, w)
		}
	}
}

func openImage(t *testing.T, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sd.img")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReadSingleBlock(t *testing.T) {
	img := make([]byte, blockSize*2)
	for i := range img[blockSize:] {
		img[blockSize+i] = byte(i)
	}
	f := openImage(t, img)

	c := New(f, &bytes.Buffer{})
	// CMD17, sector 1.
	for _, b := range []byte{0x51, 0x00, 0x00, 0x00, 0x01, 0xFF} {
		c.WriteData(b)
	}

	if got := c.ReadData(); got != 0x00 {
		t.Fatalf("CMD17 R1 = %#x, want 0x00", got)
	}
	if got := c.ReadData(); got != 0xFE {
		t.Fatalf("CMD17 data token = %#x, want 0xFE", got)
	}
	for i := 0; i < blockSize; i++ {
		if got := c.ReadData(); got != byte(i) {
			t.Fatalf("CMD17 data[%d] = %#x, want %#x", i, got, byte(i))
		}
	}
}

func TestWriteSingleBlock(t *testing.T) {
	f := openImage(t, make([]byte, blockSize*2))
	c := New(f, &bytes.Buffer{})

	// CMD24, sector 0.
	for _, b := range []byte{0x58, 0x00, 0x00, 0x00, 0x00, 0xFF} {
		c.WriteData(b)
	}
	if got := c.ReadData(); got != 0x00 {
		t.Fatalf("CMD24 R1 = %#x, want 0x00", got)
	}

	c.WriteData(0xFE) // data token
	data := bytes.Repeat([]byte{0x7A}, blockSize)
	for _, b := range data {
		c.WriteData(b)
	}

	if got := c.ReadData(); got != 0x05 {
		t.Fatalf("write ack byte 1 = %#x, want 0x05", got)
	}
	if got := c.ReadData(); got != 0x01 {
		t.Fatalf("write ack byte 2 = %#x, want 0x01", got)
	}

	readBack := make([]byte, blockSize)
	if _, err := f.ReadAt(readBack, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(readBack, data) {
		t.Fatalf("written sector does not match")
	}
}

func TestStatusLatchedUntilRead(t *testing.T) {
	c := New(nil, &bytes.Buffer{})
	c.WriteData(0xFF)
	if got := c.ReadStatus(); got != 0x80 {
		t.Fatalf("status = %#x, want 0x80", got)
	}
	if got := c.ReadStatus(); got != 0x00 {
		t.Fatalf("status should clear after read, got %#x", got)
	}
}
