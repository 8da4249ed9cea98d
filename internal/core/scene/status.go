package scene

// Status is the result of dispatching one action to an entity.
//
// Zero means handled. Negative means the action was recognized but its
// parameters were rejected and the entity is unchanged. Positive means no
// handler in the chain knows the action.
type Status int

const (
	Handled       Status = 0
	BadParameters Status = -1
	Unrecognized  Status = 1
)

func (s Status) String() string {
	switch {
	case s == Handled:
		return "handled"
	case s < 0:
		return "bad parameters"
	default:
		return "unrecognized"
	}
}

// Err converts a dispatcher status to the orchestrator error taxonomy.
func (s Status) Err() error {
	switch {
	case s == Handled:
		return nil
	case s < 0:
		return ErrBadParameters
	default:
		return ErrUnknownAction
	}
}
