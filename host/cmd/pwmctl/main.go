// pwmctl drives the PWM outputs of a flight controller over USB, or of a
// simulated board with -sim.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/shlex"

	"escpwm/config"
	"escpwm/core"
	"escpwm/host/mcu"
	"escpwm/host/serial"
	"escpwm/protocol"
	"escpwm/sim"
)

// EnvConfig holds settings that can come from the environment; flags override them
type EnvConfig struct {
	Device  string        `env:"ESCPWM_DEVICE"`
	Timeout time.Duration `env:"ESCPWM_TIMEOUT" envDefault:"2s"`
	Config  string        `env:"ESCPWM_CONFIG"`
	Debug   bool          `env:"ESCPWM_DEBUG" envDefault:"false"`
}

func main() {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: environment: %v\n", err)
		os.Exit(1)
	}

	device := flag.String("device", cfg.Device, "Serial device path (auto-detected if empty)")
	timeout := flag.Duration("timeout", cfg.Timeout, "ACK/response timeout")
	simulate := flag.Bool("sim", false, "Run against a simulated board")
	configFile := flag.String("config", cfg.Config, "Output configuration for -sim (JSON or YAML)")
	script := flag.String("script", "", "Run commands from a file instead of the interactive shell")
	list := flag.Bool("list", false, "List serial ports and exit")
	debug := flag.Bool("debug", cfg.Debug, "Print firmware debug output (-sim only)")
	flag.Parse()

	if *list {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	conn := mcu.NewMCU()
	conn.SetTimeout(*timeout)

	var fw *sim.Firmware
	if *simulate {
		var err error
		fw, err = startSim(*configFile, *debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer fw.Stop()
		defer func() {
			if core.IsDebugEnabled() {
				core.DumpEventRing()
			}
		}()
		conn.ConnectPort(fw.Start())
	} else {
		if *device == "" {
			d, err := serial.Detect()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v (use -device)\n", err)
				os.Exit(1)
			}
			*device = d
		}
		fmt.Printf("Connecting to %s...\n", *device)
		if err := conn.Connect(*device); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
			os.Exit(1)
		}
	}
	defer conn.Close()

	ctl := newController(conn, fw)

	if *script != "" {
		if err := runScript(ctl, *script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	shell := ctl.shell()
	shell.Println("escpwm " + protocol.Version + " control shell (type 'help' for commands)")
	shell.Run()
}

// startSim builds a simulated board and applies the output configuration to it
func startSim(path string, debug bool) (*sim.Firmware, error) {
	cfg := config.DefaultQuadConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if debug {
		core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		core.SetDebugEnabled(true)
	}

	fw := sim.NewFirmware()
	if err := cfg.Apply(fw.Outputs, simBoard()); err != nil {
		return nil, err
	}
	return fw, nil
}

// simBoard has three four-channel timers
func simBoard() []core.TimerHardware {
	board := make([]core.TimerHardware, core.MaxOutputPorts)
	for i := range board {
		board[i] = core.TimerHardware{
			Timer:        core.TimerID(i/4 + 1),
			Channel:      core.TimerChannel(i%4 + 1),
			Pin:          core.GPIOPin(i),
			OutputEnable: true,
		}
	}
	return board
}

// runScript runs one command per line. Blank lines and # comments are skipped.
func runScript(ctl *controller, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if len(args) > 0 && (args[0] == "quit" || args[0] == "exit") {
			return nil
		}
		out, err := ctl.execute(args)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if out != "" {
			fmt.Print(strings.TrimRight(out, "\n") + "\n")
		}
	}
	return scanner.Err()
}
