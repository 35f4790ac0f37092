package entity

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusProcessing    Status = "PROCESSING"
	StatusSent          Status = "SENT"
	StatusDelivered     Status = "DELIVERED"
	StatusFailed        Status = "FAILED"
	StatusRetrying      Status = "RETRYING"
	StatusBounced       Status = "BOUNCED"
	StatusSpamComplaint Status = "SPAM_COMPLAINT"
	StatusCancelled     Status = "CANCELLED"
	StatusExpired       Status = "EXPIRED"
)

// transitions lists the states reachable from each state. Anything missing is terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusExpired, StatusFailed},
	StatusProcessing: {StatusSent, StatusFailed, StatusRetrying},
	StatusRetrying:   {StatusProcessing},
	StatusFailed:     {StatusRetrying},
	StatusSent:       {StatusDelivered, StatusBounced, StatusSpamComplaint},
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle moving forward.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the core pipeline will never move a notification out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed, StatusBounced,
		StatusSpamComplaint, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusDelivered, StatusFailed,
		StatusRetrying, StatusBounced, StatusSpamComplaint, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
