// Package domain defines the core entities and interfaces of kmt: operation
// kinds and outcomes, session states, consumer-group snapshots, the event
// record published to presentation layers, and the abstractions over the
// broker client and configuration store.
package domain

import "github.com/OliveiraNt/kmt/internal/config"

// Cluster represents a Kafka cluster as seen through one broker config.
type Cluster struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Address    string                  `json:"address"`
	Controller int32                   `json:"controller"`
	Brokers    []string                `json:"brokers"`
	Advertised []string                `json:"advertised,omitempty"`
	IsOnline   bool                    `json:"is_online"`
	AuthType   string                  `json:"auth_type"`
	CertInfo   *config.CertificateInfo `json:"cert_info,omitempty"`
	Settings   *ClusterSettings        `json:"settings,omitempty"`
}

// BrokerDetail holds detailed information about a broker
type BrokerDetail struct {
	ID           int32  `json:"id"`
	Host         string `json:"host"`
	Port         int32  `json:"port"`
	Rack         string `json:"rack"`
	IsController bool   `json:"is_controller"`
}

// CreateTopicRequest represents a request to create a new topic
type CreateTopicRequest struct {
	Name              string             `json:"name"`
	NumPartitions     int32              `json:"num_partitions"`
	ReplicationFactor int16              `json:"replication_factor"`
	Configs           map[string]*string `json:"configs,omitempty"`
}

// TopicState is the locally known existence of a topic on a broker.
type TopicState string

const (
	TopicPresent TopicState = "present"
	TopicAbsent  TopicState = "absent"
	TopicUnknown TopicState = "unknown"
)

// SettingState is the value of a boolean broker setting across all nodes.
type SettingState string

const (
	SettingEnabled      SettingState = "enabled"
	SettingDisabled     SettingState = "disabled"
	SettingInconsistent SettingState = "inconsistent"
)

// ClusterSettings summarizes the broker configs of every node.
// Inconsistent lists the cluster-wide properties whose values differ between nodes.
type ClusterSettings struct {
	TopicDeletion     SettingState `json:"topic_deletion"`
	TopicAutoCreation SettingState `json:"topic_auto_creation"`
	Inconsistent      []string     `json:"inconsistent,omitempty"`
}

// NodeConfigs maps a broker node id to its non-sensitive config entries.
type NodeConfigs map[int32]map[string]string

// TopicConsumer is one group member assigned a partition of a topic.
type TopicConsumer struct {
	Group      string `json:"group"`
	MemberID   string `json:"member_id"`
	ClientID   string `json:"client_id"`
	ClientHost string `json:"client_host"`
	Partition  int32  `json:"partition"`
	Committed  int64  `json:"committed"`
}

// TopicDetails is one topic as described by the broker.
type TopicDetails struct {
	Name       string            `json:"name"`
	Partitions int               `json:"partitions"`
	State      TopicState        `json:"state"`
	Config     map[string]string `json:"config"`
	Consumers  []TopicConsumer   `json:"consumers"`
}
