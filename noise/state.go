package noise

// State is the position of a handshake in its state machine.
type State uint8

const (
	// StateInit is the state before any message has been processed.
	StateInit State = iota
	// StateAwaitingPeerMessage means the next step is reading message n
	// from the peer (see Handshake.MessageIndex).
	StateAwaitingPeerMessage
	// StateWritePending means a peer message was read and our reply is due.
	StateWritePending
	// StateEstablished is terminal: the session keys are available.
	StateEstablished
	// StateFailed is terminal: the handshake was aborted and its key
	// material wiped.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingPeerMessage:
		return "awaiting-peer-message"
	case StateWritePending:
		return "write-pending"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further messages can be processed.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed
}
