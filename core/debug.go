package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a PWM output event for post-mortem analysis
type Event struct {
	EventType uint8  // Event type code
	Index     uint8  // Port slot or motor index
	Seq       uint32 // Monotonic event counter
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtPortAllocated  = 1 // port configured (v1=timer, v2=period)
	EvtPortDegraded   = 2 // port slot consumed, hardware not configured (v1=timer, v2=channel)
	EvtForceOverflow  = 3 // forced overflow (index=motor, v1=timer)
	EvtMotorsShutdown = 4 // compare registers zeroed (index=count)
	EvtMotorsEnabled  = 5
	EvtMotorsDisabled = 6
	EvtCommandError   = 7 // handler failed (index=command ID, v1=error count)
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8
	eventSeq      uint32

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Drops the message if the channel is full
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent captures an event in the ring buffer. Never blocks.
func RecordEvent(eventType, index uint8, value1, value2 uint32) {
	eventSeq++
	idx := eventRingHead
	eventRing[idx] = Event{
		EventType: eventType,
		Index:     index,
		Seq:       eventSeq,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the captured events, oldest first
func Events() []Event {
	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// eventName returns the printable name of an event type
func eventName(t uint8) string {
	switch t {
	case EvtPortAllocated:
		return "PORT_ALLOC"
	case EvtPortDegraded:
		return "PORT_DEGRADED!"
	case EvtForceOverflow:
		return "FORCE_OVF"
	case EvtMotorsShutdown:
		return "SHUTDOWN"
	case EvtMotorsEnabled:
		return "ENABLE"
	case EvtMotorsDisabled:
		return "DISABLE"
	case EvtCommandError:
		return "CMD_ERROR!"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing outputs the event ring buffer (call on shutdown/error)
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[PWM] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[PWM] " + eventName(evt.EventType) +
			" seq=" + utoa(evt.Seq) +
			" idx=" + itoa(int(evt.Index)) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[PWM] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
	eventSeq = 0
}
