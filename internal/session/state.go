package session

// State is a step of the dialogue state machine.
type State int

const (
	// StateAwaitIdentity waits for a face and identifies the user.
	StateAwaitIdentity State = iota

	// StateAsk generates and speaks the next question.
	StateAsk

	// StateRecord records the answer while sampling facial emotion.
	StateRecord

	// StateScore transcribes, segments, annotates, aligns and selects
	// memories.
	StateScore

	// StatePersist stores the turn and decides whether to continue.
	StatePersist

	// StateFarewell says goodbye.
	StateFarewell

	// StateDone is terminal.
	StateDone
)

// String returns the lower-case state name used in logs and events.
func (s State) String() string {
	switch s {
	case StateAwaitIdentity:
		return "await_identity"
	case StateAsk:
		return "ask"
	case StateRecord:
		return "record"
	case StateScore:
		return "score"
	case StatePersist:
		return "persist"
	case StateFarewell:
		return "farewell"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
