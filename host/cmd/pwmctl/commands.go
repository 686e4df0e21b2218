package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"

	"escpwm/core"
	"escpwm/host/mcu"
	"escpwm/sim"
)

var (
	errUsage        = errors.New("usage")
	errNotConnected = errors.New("not connected")
)

type command struct {
	usage string
	help  string
	argc  int
	run   func(args []string) (string, error)
}

// controller maps shell commands onto an MCU connection.
// When fw is set, compare registers are printed after every command.
type controller struct {
	conn  *mcu.MCU
	fw    *sim.Firmware
	cmds  map[string]command
	order []string
}

func newController(conn *mcu.MCU, fw *sim.Firmware) *controller {
	c := &controller{conn: conn, fw: fw, cmds: make(map[string]command)}

	c.add("enable", "enable", "enable motor outputs", 0, func([]string) (string, error) {
		return "", conn.EnableMotors()
	})
	c.add("disable", "disable", "disable motor outputs", 0, func([]string) (string, error) {
		return "", conn.DisableMotors()
	})
	c.add("motor", "motor <index> <value>", "write a motor output", 2, func(args []string) (string, error) {
		idx, val, err := indexValue(args)
		if err != nil {
			return "", err
		}
		return "", conn.WriteMotor(idx, val)
	})
	c.add("servo", "servo <index> <value>", "write a servo output", 2, func(args []string) (string, error) {
		idx, val, err := indexValue(args)
		if err != nil {
			return "", err
		}
		return "", conn.WriteServo(idx, val)
	})
	c.add("shutdown", "shutdown <count>", "zero the first <count> motor outputs", 1, func(args []string) (string, error) {
		n, err := parseUint(args[0], 8)
		if err != nil {
			return "", err
		}
		return "", conn.ShutdownMotors(uint8(n))
	})
	c.add("oneshot", "oneshot <count>", "complete a Oneshot125 update on the first <count> motors", 1, func(args []string) (string, error) {
		n, err := parseUint(args[0], 8)
		if err != nil {
			return "", err
		}
		return "", conn.CompleteOneshot(uint8(n))
	})
	c.add("brushed", "brushed <rate>", "report whether a motor PWM rate means brushed motors", 1, func(args []string) (string, error) {
		rate, err := parseUint(args[0], 16)
		if err != nil {
			return "", err
		}
		b, err := conn.IsMotorBrushed(uint16(rate))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rate %d Hz: brushed=%v", rate, b), nil
	})
	c.add("status", "status", "show allocated ports and the motor enable state", 0, func([]string) (string, error) {
		st, err := conn.Status()
		if err != nil {
			return "", err
		}
		return formatStatus(st), nil
	})
	c.add("port", "port <slot>", "show one port slot", 1, func(args []string) (string, error) {
		n, err := parseUint(args[0], 8)
		if err != nil {
			return "", err
		}
		p, err := conn.Port(uint8(n))
		if err != nil {
			return "", err
		}
		return formatPort(p), nil
	})

	return c
}

func (c *controller) add(name, usage, help string, argc int, run func(args []string) (string, error)) {
	c.cmds[name] = command{usage: usage, help: help, argc: argc, run: run}
	c.order = append(c.order, name)
}

// execute runs one command line already split into words
func (c *controller) execute(args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	cmd, ok := c.cmds[args[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q (type 'help')", args[0])
	}
	if len(args)-1 != cmd.argc {
		return "", fmt.Errorf("%w: %s", errUsage, cmd.usage)
	}
	if !c.conn.IsConnected() {
		return "", errNotConnected
	}
	out, err := cmd.run(args[1:])
	if err != nil {
		return "", err
	}
	if c.fw != nil {
		if out != "" {
			out += "\n"
		}
		out += registers(c.fw)
	}
	return out, nil
}

// shell builds the interactive shell. ishell provides help and exit.
func (c *controller) shell() *ishell.Shell {
	shell := ishell.New()
	for _, name := range c.order {
		name, cmd := name, c.cmds[name]
		shell.AddCmd(&ishell.Cmd{
			Name:     name,
			Help:     cmd.help,
			LongHelp: "usage: " + cmd.usage,
			Func: func(ctx *ishell.Context) {
				out, err := c.execute(append([]string{name}, ctx.Args...))
				if err != nil {
					ctx.Println("Error:", err)
					return
				}
				if out = strings.TrimRight(out, "\n"); out != "" {
					ctx.Println(out)
				}
			},
		})
	}
	shell.AddCmd(&ishell.Cmd{
		Name: "quit",
		Help: "exit the shell",
		Func: func(*ishell.Context) { shell.Stop() },
	})
	return shell
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return v, nil
}

func indexValue(args []string) (uint8, uint16, error) {
	idx, err := parseUint(args[0], 8)
	if err != nil {
		return 0, 0, err
	}
	val, err := parseUint(args[1], 16)
	if err != nil {
		return 0, 0, err
	}
	return uint8(idx), uint16(val), nil
}

func formatStatus(st mcu.Status) string {
	s := fmt.Sprintf("allocated=%d enabled=%v configured=", st.Allocated, st.Enabled)
	for i := 0; i < st.Allocated; i++ {
		if st.Configured&(1<<uint(i)) != 0 {
			s += "+"
		} else {
			s += "-"
		}
	}
	return s
}

func formatPort(p mcu.PortInfo) string {
	if !p.Configured {
		return fmt.Sprintf("port %d: not configured", p.Index)
	}
	return fmt.Sprintf("port %d: timer=%d channel=%d period=%d strategy=%s",
		p.Index, p.Timer, p.Channel, p.Period, core.WriteStrategy(p.Strategy))
}

// registers prints the simulated compare register of every allocated port
func registers(fw *sim.Firmware) string {
	o := fw.Outputs
	s := ""
	for i := 0; i < o.AllocatedPorts(); i++ {
		p := o.PortAt(i)
		if !p.Configured() {
			s += fmt.Sprintf("  [%d] --\n", i)
			continue
		}
		s += fmt.Sprintf("  [%d] T%d.%d ccr=%d\n", i, p.Timer(), p.Channel(), fw.Driver.Compare(p.Register()))
	}
	return s
}
