package uart

// DummyLink drops every byte sent to it and never has anything to receive.
// Used when no VDP/serial peer is attached.
type DummyLink struct{}

func (DummyLink) Send(byte)              {}
func (DummyLink) Recv() (byte, bool)     { return 0, false }
func (DummyLink) ReadClearToSend() bool  { return true }

// ChannelLink bridges a UART to a byte channel shared with an in-process
// peer (the VDP bridge in pkg/frontend), per spec.md §3/§5: a lossless,
// FIFO, multi-producer-single-consumer pair of byte queues.
type ChannelLink struct {
	tx  chan<- byte
	rx  <-chan byte
	cts func() bool
}

// NewChannelLink wires tx/rx channels and an optional CTS poller (nil means
// always clear-to-send).
func NewChannelLink(tx chan<- byte, rx <-chan byte, cts func() bool) *ChannelLink {
	return &ChannelLink{tx: tx, rx: rx, cts: cts}
}

// Send is lossless: it blocks if the channel's buffer is full. The bridge
// is expected to size that buffer generously so this only ever stalls the
// CPU thread behind a genuinely wedged peer, never as routine backpressure.
func (c *ChannelLink) Send(b byte) {
	c.tx <- b
}

func (c *ChannelLink) Recv() (byte, bool) {
	select {
	case b := <-c.rx:
		return b, true
	default:
		return 0, false
	}
}

func (c *ChannelLink) ReadClearToSend() bool {
	if c.cts == nil {
		return true
	}
	return c.cts()
}
