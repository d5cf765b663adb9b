package domain

import (
	"fmt"

	"github.com/OliveiraNt/kmt/internal/config"
)

// OperationKind identifies a class of remote call run by the executor.
type OperationKind string

const (
	OpConnect       OperationKind = "connect"
	OpClusterInfo   OperationKind = "cluster_info"
	OpBrokerConfigs OperationKind = "broker_configs"
	OpListTopics    OperationKind = "list_topics"
	OpDescribeTopic OperationKind = "describe_topic"
	OpCreateTopic   OperationKind = "create_topic"
	OpDeleteTopic   OperationKind = "delete_topic"
	OpDescribeGroup OperationKind = "describe_group"
	OpProduce       OperationKind = "produce"
	OpClose         OperationKind = "close"
	OpStopSession   OperationKind = "stop_session"
)

// TimeoutKind maps the operation to its budget class. Unknown kinds panic.
func (k OperationKind) TimeoutKind() config.TimeoutKind {
	switch k {
	case OpConnect:
		return config.HostnameReachable
	case OpClusterInfo, OpBrokerConfigs, OpListTopics, OpDescribeTopic, OpCreateTopic, OpProduce:
		return config.FutureGet
	case OpDeleteTopic:
		return config.DeleteTopic
	case OpDescribeGroup:
		return config.DescribeConsumerGroup
	case OpClose, OpStopSession:
		return config.CloseConnection
	default:
		panic(fmt.Sprintf("domain: unknown operation kind %q", k))
	}
}

// Outcome is how an operation resolved.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailure   Outcome = "failure"
)
