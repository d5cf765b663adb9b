package domain

// SessionState is the lifecycle state of a sender or listener session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
	SessionStopped  SessionState = "stopped"
	SessionFailed   SessionState = "failed"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionIdle:     {SessionStarting},
	SessionStarting: {SessionRunning, SessionFailed},
	SessionRunning:  {SessionStopping, SessionFailed},
	SessionStopping: {SessionStopped, SessionFailed},
	SessionStopped:  {SessionStarting},
	SessionFailed:   {SessionStarting},
}

// CanTransition reports whether a session may move from s to next.
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the session is no longer running and may be restarted.
func (s SessionState) Terminal() bool {
	return s == SessionStopped || s == SessionFailed
}
