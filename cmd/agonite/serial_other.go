//go:build !linux

package main

import (
	"fmt"

	"github.com/agonite/agonite/pkg/uart"
)

func openSerialDevice(path string) (uart.SerialLink, error) {
	return nil, fmt.Errorf("--serial-device is only supported on linux")
}
