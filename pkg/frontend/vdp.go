// Package frontend defines the Go-side boundary of the VDP coprocessor,
// per spec.md §6: a C-ABI dynamic library the real product loads with
// dlopen, specified here only at its interface (spec.md §1 places the
// host-side VDP implementation itself deliberately out of scope). Machine
// wiring talks to this interface, never to a concrete library loader, so a
// FakeVDP can stand in for headless runs and tests.
package frontend

// VDP is the Go mirror of the exported C-ABI surface spec.md §6 lists.
// Every method corresponds to one dlopen'd symbol; argument/return shapes
// follow the C signatures as closely as idiomatic Go allows (pointer-out
// parameters become return values).
type VDP interface {
	// Setup performs one-time initialization equivalent to vdp_setup.
	Setup() error
	// Loop blocks forever running the VDP's own event loop (vdp_loop); the
	// host calls it on a dedicated goroutine.
	Loop()
	// SignalVBlank corresponds to signal_vblank: notifies the VDP that a
	// vertical retrace has occurred.
	SignalVBlank()
	// CopyVgaFramebuffer corresponds to copyVgaFramebuffer(*w,*h,*buf,*hz):
	// returns the current frame dimensions, refresh rate, and a freshly
	// copied RGB24 framebuffer.
	CopyVgaFramebuffer() (width, height int, rgb24 []byte, hz int)
	// SendToZ80 corresponds to z80_send_to_vdp: hands the VDP one byte the
	// eZ80 transmitted on UART0.
	SendToZ80(b byte)
	// RecvFromZ80 corresponds to z80_recv_from_vdp: pulls one byte the VDP
	// has queued for the eZ80's UART0 Rx, if any.
	RecvFromZ80() (b byte, ok bool)
	// UART0ClearToSend corresponds to z80_uart0_is_cts.
	UART0ClearToSend() bool
	// SendPS2KeyEvent corresponds to sendPS2KbEventToFabgl.
	SendPS2KeyEvent(scancode byte, isDown bool)
	// SendVirtualKeyEvent corresponds to sendVKeyEventToFabgl.
	SendVirtualKeyEvent(virtualKey int, isDown bool)
	// SendMouseEvent corresponds to sendHostMouseEventToFabgl(*4-byte
	// packet).
	SendMouseEvent(packet [4]byte)
	// AudioSamples corresponds to getAudioSamples(*buf,len): unsigned
	// 8-bit PCM, mono, 16384 Hz.
	AudioSamples(n int) []byte
	// SetDebugLogging corresponds to setVdpDebugLogging.
	SetDebugLogging(enabled bool)
	// DumpMemStats corresponds to dump_vdp_mem_stats.
	DumpMemStats() string
	// SetStartupScreenMode corresponds to set_startup_screen_mode.
	SetStartupScreenMode(mode uint32)
	// Shutdown corresponds to vdp_shutdown.
	Shutdown()
}

// UART0Link adapts a VDP to uart.SerialLink for the eZ80's UART0, the
// channel the host keyboard/mouse/video path rides on (spec.md §2 data
// flow: host input -> VDP -> UART0 Rx; eZ80 UART0 Tx -> VDP -> host A/V).
type UART0Link struct {
	VDP VDP
}

func (l UART0Link) Send(b byte)              { l.VDP.SendToZ80(b) }
func (l UART0Link) Recv() (byte, bool)       { return l.VDP.RecvFromZ80() }
func (l UART0Link) ReadClearToSend() bool    { return l.VDP.UART0ClearToSend() }
