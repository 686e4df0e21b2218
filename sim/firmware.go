package sim

import (
	"io"
	"sync"

	"escpwm/core"
	"escpwm/protocol"
)

// Firmware runs the PWM command loop in-process against a TimerDriver.
// Configure Outputs before calling Start.
type Firmware struct {
	Driver  *TimerDriver
	Outputs *core.Outputs

	in   *io.PipeReader // host -> firmware
	out  *io.PipeWriter // firmware -> host
	done chan struct{}
	once sync.Once
}

// NewFirmware creates a firmware instance with an empty output set
func NewFirmware() *Firmware {
	d := NewTimerDriver()
	return &Firmware{
		Driver:  d,
		Outputs: core.NewOutputs(d),
		done:    make(chan struct{}),
	}
}

// Start registers the PWM commands and serves them on a new link.
// It returns the host end of the link.
func (f *Firmware) Start() io.ReadWriteCloser {
	core.ResetGlobalRegistry()
	core.InitPWMOutputCommands(f.Outputs)

	hostToFW, hostW := io.Pipe()
	hostR, fwToHost := io.Pipe()
	f.in, f.out = hostToFW, fwToHost

	output := protocol.NewScratchOutput()
	tr := protocol.NewTransport(output, func(cmdID uint16, data *[]byte) error {
		return core.DispatchCommand(cmdID, data)
	})
	tr.SetResetCallback(func() {
		f.Outputs.DisableMotors()
		f.Outputs.ShutdownPulsesForAllMotors(core.MaxMotors)
	})
	core.SetGlobalTransport(tr)

	go f.serve(tr, output)

	return &pipeLink{r: hostR, w: hostW}
}

func (f *Firmware) serve(tr *protocol.Transport, output *protocol.ScratchOutput) {
	defer close(f.done)
	defer f.out.Close()

	fifo := protocol.NewFifoBuffer(256)
	buf := make([]byte, 64)
	for {
		n, err := f.in.Read(buf)
		if err != nil {
			return
		}
		fifo.Write(buf[:n])
		tr.Receive(fifo)
		if res := output.Result(); len(res) > 0 {
			if _, err := f.out.Write(append([]byte(nil), res...)); err != nil {
				return
			}
			output.Reset()
		}
	}
}

// Stop ends the command loop and detaches the global transport
func (f *Firmware) Stop() {
	f.once.Do(func() {
		if f.in == nil {
			close(f.done)
			return
		}
		f.in.Close()
		<-f.done
		core.SetGlobalTransport(nil)
	})
}

// pipeLink joins the host ends of two pipes
type pipeLink struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeLink) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeLink) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeLink) Close() error {
	p.w.Close()
	return p.r.Close()
}
