package core

// EventType discriminates Event payloads. Consumers switch on the tag and
// read only the fields that tag defines.
type EventType uint8

const (
	EventConnected EventType = iota
	EventDisconnected
	EventError
	EventKillSwitch
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventError:
		return "ERROR"
	case EventKillSwitch:
		return "KILL_SWITCH"
	}
	return "UNKNOWN"
}

// Event is an out-of-band engine notification carried on the event ring.
// Msg is only set for EventError and EventKillSwitch; it references an
// already-allocated string, so pushing an Event allocates nothing.
type Event struct {
	Type      EventType
	Exchange  ExchangeID
	Timestamp Timestamp
	Msg       string
}
