//go:build linux

package main

import "github.com/agonite/agonite/pkg/uart"

// uart0Baud matches the VDP link's nominal rate; real hardware runs UART0
// at 1,152,000 baud between the eZ80 and the VDP.
const uart0Baud = 1_152_000

func openSerialDevice(path string) (uart.SerialLink, error) {
	return uart.OpenHostLink(path, uart0Baud)
}
