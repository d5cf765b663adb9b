package domain

import "time"

// NoOffset is reported for partitions without a committed offset.
const NoOffset int64 = -1

// GroupMember is one member of a consumer group.
type GroupMember struct {
	MemberID   string `json:"member_id"`
	ClientID   string `json:"client_id"`
	ClientHost string `json:"client_host"`
}

// PartitionOffset is the commit and lag of one partition consumed by a group.
type PartitionOffset struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	MemberID  string `json:"member_id,omitempty"`
	Committed int64  `json:"committed"`
	End       int64  `json:"end"`
	Lag       int64  `json:"lag"`
}

// GroupMetadata is a partition-assignment and offset snapshot of a consumer group.
// Stale is set when the snapshot is served from cache after a describe timeout.
type GroupMetadata struct {
	Broker       string            `json:"broker"`
	GroupID      string            `json:"group_id"`
	State        string            `json:"state"`
	Protocol     string            `json:"protocol"`
	ProtocolType string            `json:"protocol_type"`
	Members      []GroupMember     `json:"members"`
	Unassigned   []GroupMember     `json:"unassigned"`
	Offsets      []PartitionOffset `json:"offsets"`
	TotalLag     int64             `json:"total_lag"`
	FetchedAt    time.Time         `json:"fetched_at"`
	Stale        bool              `json:"stale"`
}
