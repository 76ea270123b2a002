package voice

// Status is the state of a voice session.
type Status int

// Session states.
const (
	StatusIdle Status = iota
	StatusConnecting
	StatusListening
	StatusSpeaking
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusListening:
		return "listening"
	case StatusSpeaking:
		return "speaking"
	}
	return "unknown"
}

// Active reports whether the session holds a connection attempt or a live
// connection.
func (s Status) Active() bool {
	return s != StatusIdle
}
