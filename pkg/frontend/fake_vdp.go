package frontend

// FakeVDP is a VDP test double: it records the bytes sent to it, never has
// a byte to receive, and has no real video, audio, or input device behind
// it, for headless runs and tests per
// spec.md §1's "fake stdout VDP used by the headless CLI variant".
type FakeVDP struct {
	VBlanks int
	toZ80   []byte
	cts     bool
	debug   bool
	mode    uint32
}

// NewFakeVDP returns a FakeVDP that reports clear-to-send by default.
func NewFakeVDP() *FakeVDP { return &FakeVDP{cts: true} }

func (f *FakeVDP) Setup() error { return nil }
func (f *FakeVDP) Loop()        {}

func (f *FakeVDP) SignalVBlank() { f.VBlanks++ }

func (f *FakeVDP) CopyVgaFramebuffer() (int, int, []byte, int) {
	return 0, 0, nil, 0
}

func (f *FakeVDP) SendToZ80(b byte) { f.toZ80 = append(f.toZ80, b) }

func (f *FakeVDP) RecvFromZ80() (byte, bool) { return 0, false }

func (f *FakeVDP) UART0ClearToSend() bool { return f.cts }

// SetClearToSend lets a test flip the modeled CTS line.
func (f *FakeVDP) SetClearToSend(v bool) { f.cts = v }

// SentToZ80 returns every byte sent via SendToZ80, for test assertions.
func (f *FakeVDP) SentToZ80() []byte { return f.toZ80 }

func (f *FakeVDP) SendPS2KeyEvent(scancode byte, isDown bool)  {}
func (f *FakeVDP) SendVirtualKeyEvent(vk int, isDown bool)     {}
func (f *FakeVDP) SendMouseEvent(packet [4]byte)               {}

func (f *FakeVDP) AudioSamples(n int) []byte { return make([]byte, n) }

func (f *FakeVDP) SetDebugLogging(enabled bool) { f.debug = enabled }

func (f *FakeVDP) DumpMemStats() string { return "fake vdp: no memory stats" }

func (f *FakeVDP) SetStartupScreenMode(mode uint32) { f.mode = mode }

func (f *FakeVDP) Shutdown() {}
