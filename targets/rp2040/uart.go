//go:build rp2040 && uartlink

package main

import (
	"context"
	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"escpwm/core"
)

// Command link on UART0 for boards wired to a companion computer
const (
	linkBaud = 460800
	linkTX   = machine.GPIO16
	linkRX   = machine.GPIO17
)

var linkUART = uartx.UART0

func initLink() {
	_ = linkUART.Configure(uartx.UARTConfig{
		BaudRate: linkBaud,
		TX:       linkTX,
		RX:       linkRX,
	})
}

// linkRead blocks until at least one byte arrives
func linkRead(buf []byte) int {
	n, err := linkUART.RecvSomeContext(context.Background(), buf)
	if err != nil {
		return 0
	}
	return n
}

func linkWrite(data []byte) (int, error) {
	return linkUART.Write(data)
}

// initDebug sends debug text to the USB CDC port, which is free in this build
func initDebug() core.DebugWriter {
	_ = machine.Serial.Configure(machine.UARTConfig{})
	return func(s string) {
		machine.Serial.Write([]byte(s + "\r\n"))
	}
}
