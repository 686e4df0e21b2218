package sim

import (
	"testing"

	"escpwm/core"
)

func TestTimerDriverChannels(t *testing.T) {
	d := NewTimerDriver()
	hw := core.TimerHardware{Timer: 3, Channel: core.TimerChannel2, Pin: 17, AlternateFunction: 2}

	if err := d.ConfigureTimeBase(3, 2500, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.ConfigurePin(hw); err != nil {
		t.Fatal(err)
	}
	if err := d.ConfigureOutputCompare(3, core.TimerChannel2, 1000); err != nil {
		t.Fatal(err)
	}
	if err := d.StartChannel(3, core.TimerChannel2); err != nil {
		t.Fatal(err)
	}

	ch := d.Timer(3).Channels[1]
	if ch.Pin != 17 || ch.AltFunc != 2 || !ch.PWMMode || !ch.Running || ch.Compare != 1000 {
		t.Errorf("channel state %+v", ch)
	}

	reg := d.CompareRegister(3, core.TimerChannel2)
	if reg == 0 {
		t.Fatal("zero register handle")
	}
	d.WriteCompare(reg, 1234)
	if d.Compare(reg) != 1234 || d.Writes() != 1 {
		t.Errorf("compare = %d, writes = %d", d.Compare(reg), d.Writes())
	}
	if other := d.CompareRegister(3, core.TimerChannel1); d.Compare(other) != 0 {
		t.Error("write leaked into another channel")
	}
}

func TestTimerDriverRejectsBadInput(t *testing.T) {
	d := NewTimerDriver()
	if d.ResolveTimer(MaxTimers) {
		t.Error("resolved a timer past MaxTimers")
	}
	if err := d.ConfigureOutputCompare(1, 5, 0); err != ErrBadChannel {
		t.Errorf("channel 5: %v", err)
	}

	d.SetUnresolved(2)
	if d.ResolveTimer(2) {
		t.Error("unresolved timer resolved")
	}
	d.FailConfiguration(4)
	if err := d.ConfigureTimeBase(4, 100, 1); err != ErrInjectedFailed {
		t.Errorf("injected failure: %v", err)
	}

	// Writes to the zero handle are dropped
	d.WriteCompare(0, 99)
	if d.Writes() != 0 {
		t.Error("zero handle write counted")
	}
}

func TestTimerDriverOverflowLog(t *testing.T) {
	d := NewTimerDriver()
	d.ForceOverflow(1)
	d.ForceOverflow(2)
	d.ForceOverflow(1)

	log := d.OverflowLog()
	if len(log) != 3 || log[0] != 1 || log[1] != 2 || log[2] != 1 {
		t.Errorf("log = %v", log)
	}
	if d.Timer(1).Overflows != 2 {
		t.Errorf("timer 1 overflows = %d", d.Timer(1).Overflows)
	}
	if ids := d.Timers(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("timers = %v", ids)
	}

	d.ResetCounters()
	if len(d.OverflowLog()) != 0 || d.Timer(1).Overflows != 0 {
		t.Error("counters not reset")
	}
}
