package domain

import "time"

// EventType classifies entries of the event stream.
type EventType string

const (
	EventOperation      EventType = "operation"
	EventLateCompletion EventType = "late_completion"
	EventSessionState   EventType = "session_state"
	EventStaleData      EventType = "stale_data"
	EventMessage        EventType = "message"
	EventSendResult     EventType = "send_result"
	EventTopicState     EventType = "topic_state"
)

// Event is one observable outcome. Key and Args select and fill the
// localized description rendered by presentation layers.
type Event struct {
	Seq         uint64         `json:"seq"`
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	OperationID string         `json:"operation_id,omitempty"`
	Kind        OperationKind  `json:"kind,omitempty"`
	Broker      string         `json:"broker,omitempty"`
	Session     string         `json:"session,omitempty"`
	Topic       string         `json:"topic,omitempty"`
	Outcome     Outcome        `json:"outcome,omitempty"`
	State       string         `json:"state,omitempty"`
	Error       string         `json:"error,omitempty"`
	ElapsedMs   int64          `json:"elapsed_ms,omitempty"`
	Late        bool           `json:"late,omitempty"`
	Message     *Message       `json:"message,omitempty"`
	Result      *SendResult    `json:"result,omitempty"`
	Key         string         `json:"key"`
	Args        map[string]any `json:"args,omitempty"`
}

// EventPublisher receives events. Publish must not block.
type EventPublisher interface {
	Publish(ev Event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SessionStateEvent builds the event published on every session transition.
func SessionStateEvent(session, broker, topic string, state SessionState, cause error) Event {
	ev := Event{
		Type:    EventSessionState,
		Session: session,
		Broker:  broker,
		Topic:   topic,
		State:   string(state),
		Error:   errString(cause),
		Key:     "events.session_state",
		Args:    map[string]any{"session": session, "state": string(state)},
	}
	if state == SessionFailed && cause != nil {
		ev.Key = "events.session_failed"
		ev.Args["error"] = cause.Error()
	}
	return ev
}
