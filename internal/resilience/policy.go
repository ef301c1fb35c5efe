package resilience

// FailurePolicy states what a component does when its own supporting check
// fails: permit the request (fail open) or block it (fail closed). Keeping the
// choice as an explicit constructor argument makes the safety posture of each
// failure path auditable in one place instead of buried in error handlers.
type FailurePolicy int

const (
	// FailClosed blocks the guarded operation when the check itself errors.
	FailClosed FailurePolicy = iota
	// FailOpen permits the guarded operation when the check itself errors.
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}
