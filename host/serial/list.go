//go:build !wasm

package serial

import (
	"errors"
	"strings"

	bugst "go.bug.st/serial"
)

// ErrNoPort is returned when no candidate serial port is present
var ErrNoPort = errors.New("no serial port found")

// ListPorts returns the serial ports present on the host
func ListPorts() ([]string, error) {
	return bugst.GetPortsList()
}

// Detect returns the first port that looks like a USB CDC device
func Detect() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	return pickCDC(ports)
}

func pickCDC(ports []string) (string, error) {
	for _, p := range ports {
		if strings.Contains(p, "ttyACM") || strings.Contains(p, "usbmodem") {
			return p, nil
		}
	}
	if len(ports) > 0 {
		return ports[0], nil
	}
	return "", ErrNoPort
}
