//go:build rp2040

package main

import (
	"machine"
	"time"

	"escpwm/core"
	"escpwm/protocol"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	outputs      *core.Outputs

	// Debug counters
	msgerrors                uint32
	consecutiveWriteFailures uint32
	linkWasDisconnected      bool
)

func main() {
	// Clear any watchdog state left from a previous run
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	initLink()
	core.SetDebugWriter(initDebug())
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	// Allocate outputs before the host can talk to us
	outputs = core.NewOutputs(NewSliceTimerDriver())
	if err := bootConfig().Apply(outputs, boardOutputs); err != nil {
		core.DebugPrintln("[PWM] boot config: " + err.Error())
	}
	core.InitPWMOutputCommands(outputs)

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.DebugAsync("[PWM] host reset")
		stopMotors()
	})
	// ACKs go out before anything else is processed
	transport.SetFlushCallback(flushOutput)
	transport.SetErrorCallback(func(cmdID uint16, err error) {
		msgerrors++
		core.RecordEvent(core.EvtCommandError, uint8(cmdID), msgerrors, 0)
	})
	core.SetGlobalTransport(transport)

	go linkReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
					core.DebugPrintln("[PWM] main loop panic, motors stopped")
					stopMotors()
				}
			}()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			if len(outputBuffer.Result()) > 0 {
				flushOutput()
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// stopMotors gates and zeroes every motor output, then dumps the event ring
func stopMotors() {
	outputs.DisableMotors()
	outputs.ShutdownPulsesForAllMotors(core.MaxMotors)
	core.DumpEventRing()
}

// linkReaderLoop moves bytes from the command link into the input FIFO
func linkReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			core.DebugAsync("[PWM] link reader restarted")
			time.Sleep(100 * time.Millisecond)
			go linkReaderLoop()
		}
	}()

	buf := make([]byte, 64)
	for {
		n := linkRead(buf)
		if n > 0 {
			if linkWasDisconnected {
				// Fresh connection: drop stale state
				linkWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				consecutiveWriteFailures = 0
			}
			if inputBuffer.Write(buf[:n]) < n {
				msgerrors++
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// flushOutput sends the output buffer, treating repeated failures as a disconnect
func flushOutput() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := linkWrite(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				// Host gone: outputs must not keep the last command
				linkWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
				core.DebugAsync("[PWM] link lost, motors stopped")
				stopMotors()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
