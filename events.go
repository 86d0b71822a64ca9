package sensorscan

// Event is published by a Session whenever its visible state changes.
type Event interface {
	event()
}

type StateChangedEvent struct {
	State AdapterState
}

type ScanStartedEvent struct{}

type ScanStoppedEvent struct {
	Peripherals int
}

type PeripheralDiscoveredEvent struct {
	Peripheral Peripheral
}

type ConnectedEvent struct {
	PeripheralID string
}

// ReadingEvent carries a decoded sensor reading. Numbers is only set for
// readings that are parsed as a list of numbers.
type ReadingEvent struct {
	PeripheralID string
	Label        string
	Value        string
	Numbers      []float64
}

// FailureEvent reports an operation that failed and was swallowed.
type FailureEvent struct {
	Op           string
	PeripheralID string
	Err          error
}

func (StateChangedEvent) event()         {}
func (ScanStartedEvent) event()          {}
func (ScanStoppedEvent) event()          {}
func (PeripheralDiscoveredEvent) event() {}
func (ConnectedEvent) event()            {}
func (ReadingEvent) event()              {}
func (FailureEvent) event()              {}
