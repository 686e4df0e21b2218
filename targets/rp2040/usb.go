//go:build rp2040 && !uartlink

package main

import (
	"machine"

	"escpwm/core"
)

// initLink configures the USB CDC port (machine.Serial on RP2040)
func initLink() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// linkRead drains whatever the CDC port has buffered into buf
func linkRead(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

func linkWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}

// initDebug sends debug text out of UART0 (GPIO0) while USB carries the link
func initDebug() core.DebugWriter {
	uart := machine.UART0
	_ = uart.Configure(machine.UARTConfig{BaudRate: 115200, TX: machine.GPIO0, RX: machine.GPIO1})
	return func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	}
}
