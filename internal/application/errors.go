package application

import "errors"

var (
	// ErrBrokerNotFound is returned when no broker config has the given name
	ErrBrokerNotFound = errors.New("broker not found")

	// ErrInvalidBrokerConfig is returned when a broker config cannot be used to connect
	ErrInvalidBrokerConfig = errors.New("invalid broker configuration")

	// ErrTopicConfigNotFound is returned when no topic config has the given name
	ErrTopicConfigNotFound = errors.New("topic config not found")

	// ErrSenderNotFound is returned when no sender config has the given name
	ErrSenderNotFound = errors.New("sender not found")

	// ErrListenerNotFound is returned when no listener config has the given name
	ErrListenerNotFound = errors.New("listener not found")

	// ErrSessionNotFound is returned when no session has the given id
	ErrSessionNotFound = errors.New("session not found")

	// ErrWrongSessionKind is returned when a sender operation targets a listener or the reverse
	ErrWrongSessionKind = errors.New("wrong session kind")

	// ErrInvalidTopicName is returned when topic name is invalid
	ErrInvalidTopicName = errors.New("invalid topic name")

	// ErrInvalidPartitionCount is returned when partition count is invalid
	ErrInvalidPartitionCount = errors.New("invalid partition count")

	// ErrInvalidReplicationFactor is returned when replication factor is invalid
	ErrInvalidReplicationFactor = errors.New("invalid replication factor")

	// ErrTopicDeletionDisabled is returned when every node runs with delete.topic.enable=false
	ErrTopicDeletionDisabled = errors.New("topic deletion is disabled on the cluster")

	// ErrCoordinatorClosed is returned by operations issued after Close
	ErrCoordinatorClosed = errors.New("coordinator closed")
)
