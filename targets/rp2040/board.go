//go:build rp2040

package main

import (
	"escpwm/config"
	"escpwm/core"
)

// boardOutputs lists the PWM-capable outputs in header order.
// Slice = (gpio >> 1) & 7, channel A on even pins, B on odd pins.
var boardOutputs = []core.TimerHardware{
	{Timer: 0, Channel: core.TimerChannel1, Pin: 0, OutputEnable: true},
	{Timer: 0, Channel: core.TimerChannel2, Pin: 1, OutputEnable: true},
	{Timer: 1, Channel: core.TimerChannel1, Pin: 2, OutputEnable: true},
	{Timer: 1, Channel: core.TimerChannel2, Pin: 3, OutputEnable: true},
	{Timer: 2, Channel: core.TimerChannel1, Pin: 4, OutputEnable: true},
	{Timer: 2, Channel: core.TimerChannel2, Pin: 5, OutputEnable: true},
	{Timer: 4, Channel: core.TimerChannel1, Pin: 8, OutputEnable: true},
	{Timer: 4, Channel: core.TimerChannel2, Pin: 9, OutputEnable: true},
	{Timer: 5, Channel: core.TimerChannel1, Pin: 10, OutputEnable: true},
	{Timer: 5, Channel: core.TimerChannel2, Pin: 11, OutputEnable: true},
}

// bootConfig is applied once at power-on: four motors and two servos
func bootConfig() *config.OutputConfig {
	cfg := config.DefaultQuadConfig()
	cfg.Servos = []int{6, 7}
	return cfg
}
