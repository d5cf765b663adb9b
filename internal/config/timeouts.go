package config

import (
	"fmt"
	"time"
)

// TimeoutKind names a class of remote operation with its own budget.
type TimeoutKind string

const (
	HostnameReachable     TimeoutKind = "hostname_reachable"
	FutureGet             TimeoutKind = "future_get"
	DescribeConsumerGroup TimeoutKind = "describe_consumer_group"
	CloseConnection       TimeoutKind = "close_connection"
	DeleteTopic           TimeoutKind = "delete_topic"
)

const (
	defaultHostnameReachableMs     = 2000
	defaultFutureGetMs             = 5000
	defaultDescribeConsumerGroupMs = 2000
	defaultCloseConnectionMs       = 2000
	defaultDeleteTopicMs           = 2000
)

// Timeouts holds the budgets in milliseconds. Zero fields fall back to defaults.
type Timeouts struct {
	HostnameReachableMs     int `yaml:"hostname_reachable_ms,omitempty" json:"hostname_reachable_ms"`
	FutureGetMs             int `yaml:"future_get_ms,omitempty" json:"future_get_ms"`
	DescribeConsumerGroupMs int `yaml:"describe_consumer_group_ms,omitempty" json:"describe_consumer_group_ms"`
	CloseConnectionMs       int `yaml:"close_connection_ms,omitempty" json:"close_connection_ms"`
	DeleteTopicMs           int `yaml:"delete_topic_ms,omitempty" json:"delete_topic_ms"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		HostnameReachableMs:     defaultHostnameReachableMs,
		FutureGetMs:             defaultFutureGetMs,
		DescribeConsumerGroupMs: defaultDescribeConsumerGroupMs,
		CloseConnectionMs:       defaultCloseConnectionMs,
		DeleteTopicMs:           defaultDeleteTopicMs,
	}
}

func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.HostnameReachableMs <= 0 {
		t.HostnameReachableMs = d.HostnameReachableMs
	}
	if t.FutureGetMs <= 0 {
		t.FutureGetMs = d.FutureGetMs
	}
	if t.DescribeConsumerGroupMs <= 0 {
		t.DescribeConsumerGroupMs = d.DescribeConsumerGroupMs
	}
	if t.CloseConnectionMs <= 0 {
		t.CloseConnectionMs = d.CloseConnectionMs
	}
	if t.DeleteTopicMs <= 0 {
		t.DeleteTopicMs = d.DeleteTopicMs
	}
	return t
}

// Lookup returns the budget for kind. An unknown kind is a programming error and panics.
func (t Timeouts) Lookup(kind TimeoutKind) time.Duration {
	t = t.WithDefaults()
	var ms int
	switch kind {
	case HostnameReachable:
		ms = t.HostnameReachableMs
	case FutureGet:
		ms = t.FutureGetMs
	case DescribeConsumerGroup:
		ms = t.DescribeConsumerGroupMs
	case CloseConnection:
		ms = t.CloseConnectionMs
	case DeleteTopic:
		ms = t.DeleteTopicMs
	default:
		panic(fmt.Sprintf("config: unknown timeout kind %q", kind))
	}
	return time.Duration(ms) * time.Millisecond
}
