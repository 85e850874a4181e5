package model

// Kind distinguishes the two transfer directions. A few lifecycle rules
// differ between them, see Status.IsFinalState.
type Kind string

const (
	KindIngest   Kind = "ingest"
	KindDownload Kind = "download"
)

// Status is the lifecycle state of a transfer. Values are powers of two so
// that several states can be combined into a single query code, matching the
// wire representation used by staging clients.
type Status int

const (
	StatusUnknown             Status = 0
	StatusScheduled           Status = 1
	StatusPreparing           Status = 2
	StatusPreparationFailed   Status = 4
	StatusPreTransferFinished Status = 8
	StatusTransferring        Status = 16
	StatusTransferFailed      Status = 32
	StatusTransferFinished    Status = 64
	StatusRemoved             Status = 128
)

var statusNames = map[Status]string{
	StatusUnknown:             "UNKNOWN",
	StatusScheduled:           "SCHEDULED",
	StatusPreparing:           "PREPARING",
	StatusPreparationFailed:   "PREPARATION_FAILED",
	StatusPreTransferFinished: "PRE_TRANSFER_FINISHED",
	StatusTransferring:        "TRANSFERRING",
	StatusTransferFailed:      "TRANSFER_FAILED",
	StatusTransferFinished:    "TRANSFER_FINISHED",
	StatusRemoved:             "REMOVED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IDToStatus converts a status code back to its enum value. Unknown codes
// map to StatusUnknown.
func IDToStatus(code int) Status {
	s := Status(code)
	if _, ok := statusNames[s]; ok {
		return s
	}
	return StatusUnknown
}

// CombineStatus folds several states into one query code.
func CombineStatus(states ...Status) int {
	var combined int
	for _, s := range states {
		combined |= int(s)
	}
	return combined
}

// HasStatus checks whether s is contained in a combined query code.
func HasStatus(combined int, s Status) bool {
	if s == StatusUnknown {
		return combined == 0
	}
	return combined&int(s) != 0
}

// IsErrorState reports whether the state marks a failed step.
func (s Status) IsErrorState() bool {
	return s == StatusPreparationFailed || s == StatusTransferFailed
}

// IsFinalState reports whether the lifecycle for the given transfer kind has
// ended in this state. Failed ingests are final and need administrator
// interaction; failed downloads stay retryable indefinitely and end only by
// expiry or removal.
func (s Status) IsFinalState(kind Kind) bool {
	switch s {
	case StatusTransferFinished, StatusRemoved:
		return true
	case StatusPreparationFailed, StatusTransferFailed:
		return kind == KindIngest
	default:
		return false
	}
}

// IsFinalizationPossible reports whether the staged data is complete enough
// for the final transfer step to begin.
func (s Status) IsFinalizationPossible() bool {
	return s == StatusPreTransferFinished || s == StatusTransferring
}

// IsUserInteractionPossible reports whether a client may still act on the
// transfer, e.g. upload data or fetch the prepared result.
func (s Status) IsUserInteractionPossible() bool {
	return s == StatusScheduled || s == StatusPreTransferFinished
}

// CanTransitionTo validates a status change. The machine only moves forward;
// the single backward path is the retry of a failed non-final transfer,
// which resets it to SCHEDULED. REMOVED is reachable from every non-final
// state to mark a cancellation pending cleanup.
func (s Status) CanTransitionTo(next Status, kind Kind) bool {
	if next == s {
		return false
	}
	if next == StatusRemoved {
		return !s.IsFinalState(kind)
	}
	if s.IsErrorState() && next == StatusScheduled {
		return !s.IsFinalState(kind)
	}

	switch s {
	case StatusScheduled:
		return next == StatusPreparing
	case StatusPreparing:
		return next == StatusPreparationFailed || next == StatusPreTransferFinished
	case StatusPreTransferFinished:
		return next == StatusTransferring
	case StatusTransferring:
		return next == StatusTransferFailed || next == StatusTransferFinished
	default:
		return false
	}
}
