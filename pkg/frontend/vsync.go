package frontend

// VSyncTarget is the subset of pkg/machine.Machine the VBlank pump drives.
type VSyncTarget interface {
	PulseVSync()
}

// PumpVBlank calls SignalVBlank on vdp and then pulses the machine's VSync
// GPIO edge, modeling one vertical-retrace tick. The caller drives this
// once per frame from the VDP's own timing (spec.md §2: "host vertical
// retrace -> GPIO-B pin 1 edge -> eZ80 interrupt").
func PumpVBlank(vdp VDP, m VSyncTarget) {
	vdp.SignalVBlank()
	m.PulseVSync()
}
