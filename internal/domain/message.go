package domain

import "time"

// Header is a single record header. Order and duplicates are preserved.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Message is a record received by a listener.
type Message struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Headers   []Header  `json:"headers,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Simulated bool      `json:"simulated,omitempty"`
}

// OutgoingMessage is what a sender produces.
type OutgoingMessage struct {
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Headers []Header `json:"headers,omitempty"`
}

// SendResult is the broker acknowledgment of a produced record.
type SendResult struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
	Simulated bool      `json:"simulated,omitempty"`
}
