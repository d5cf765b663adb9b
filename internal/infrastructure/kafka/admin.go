package kafka

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/twmb/franz-go/pkg/kadm"
)

// Admin wraps the kadm client. It applies no deadlines of its own: the
// executor bounds every call through ctx.
type Admin struct {
	client *kadm.Client
	config config.BrokerConfig
}

func NewAdmin(client *kadm.Client, cfg config.BrokerConfig) *Admin {
	return &Admin{client: client, config: cfg}
}

// BrokerMetadata returns broker metadata (used for cluster info)
func (a *Admin) BrokerMetadata(ctx context.Context) (kadm.Metadata, error) {
	meta, err := a.client.BrokerMetadata(ctx)
	return meta, classify("metadata", a.config, err)
}

// ListTopics returns topics as a simplified map name->partitions
func (a *Admin) ListTopics(ctx context.Context, showInternal bool) (map[string]int, error) {
	var (
		m   kadm.TopicDetails
		err error
	)
	if showInternal {
		m, err = a.client.ListTopicsWithInternal(ctx)
	} else {
		m, err = a.client.ListTopics(ctx)
	}
	if err != nil {
		return nil, classify("list topics", a.config, err)
	}

	out := make(map[string]int, len(m))
	for name, info := range m {
		if info.Err != nil {
			continue
		}
		out[name] = len(info.Partitions)
	}
	return out, nil
}

// TopicExists reports whether the broker knows the topic.
func (a *Admin) TopicExists(ctx context.Context, topic string) (bool, error) {
	m, err := a.client.ListTopics(ctx, topic)
	if err != nil {
		return false, classify("describe topic", a.config, err)
	}
	d, ok := m[topic]
	if !ok || isUnknownTopic(d.Err) {
		return false, nil
	}
	if d.Err != nil {
		return false, classify("describe topic", a.config, d.Err)
	}
	return true, nil
}

// BrokerConfigs describes the config of every broker in the cluster.
// Sensitive entries are left out.
func (a *Admin) BrokerConfigs(ctx context.Context) (domain.NodeConfigs, error) {
	meta, err := a.BrokerMetadata(ctx)
	if err != nil {
		return nil, err
	}
	ids := meta.Brokers.NodeIDs()
	if len(ids) == 0 {
		return domain.NodeConfigs{}, nil
	}

	rcs, err := a.client.DescribeBrokerConfigs(ctx, ids...)
	if err != nil {
		return nil, classify("describe broker configs", a.config, err)
	}
	out := make(domain.NodeConfigs, len(rcs))
	for _, rc := range rcs {
		if rc.Err != nil {
			return nil, classify("describe broker configs", a.config, rc.Err)
		}
		id, err := strconv.ParseInt(rc.Name, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("describe broker configs: bad broker id %q: %w", rc.Name, err)
		}
		out[int32(id)] = configEntries(rc.Configs)
	}
	return out, nil
}

// DescribeTopic returns the layout, config entries and assigned consumers of
// one topic. A topic the broker does not know yields domain.ErrUnknownTopic.
func (a *Admin) DescribeTopic(ctx context.Context, topic string) (domain.TopicDetails, error) {
	m, err := a.client.ListTopics(ctx, topic)
	if err != nil {
		return domain.TopicDetails{}, classify("describe topic", a.config, err)
	}
	d, ok := m[topic]
	if !ok || isUnknownTopic(d.Err) {
		return domain.TopicDetails{}, fmt.Errorf("describe topic %q: %w", topic, domain.ErrUnknownTopic)
	}
	if d.Err != nil {
		return domain.TopicDetails{}, classify("describe topic", a.config, d.Err)
	}

	details := domain.TopicDetails{
		Name:       topic,
		Partitions: len(d.Partitions),
		State:      domain.TopicPresent,
		Config:     map[string]string{},
	}
	rcs, err := a.client.DescribeTopicConfigs(ctx, topic)
	if err != nil {
		return domain.TopicDetails{}, classify("describe topic configs", a.config, err)
	}
	for _, rc := range rcs {
		if rc.Err != nil {
			return domain.TopicDetails{}, classify("describe topic configs", a.config, rc.Err)
		}
		details.Config = configEntries(rc.Configs)
	}

	groups, err := a.client.ListGroups(ctx)
	if err != nil {
		return domain.TopicDetails{}, classify("list groups", a.config, err)
	}
	details.Consumers = []domain.TopicConsumer{}
	if names := groups.Groups(); len(names) > 0 {
		lags, err := a.client.Lag(ctx, names...)
		if err != nil {
			return domain.TopicDetails{}, classify("describe groups", a.config, err)
		}
		details.Consumers = topicConsumersFromLag(topic, lags)
	}
	return details, nil
}

func configEntries(cfgs []kadm.Config) map[string]string {
	out := make(map[string]string, len(cfgs))
	for _, c := range cfgs {
		if c.Sensitive || c.Value == nil {
			continue
		}
		out[c.Key] = *c.Value
	}
	return out
}

// topicConsumersFromLag lists the group members owning a partition of topic.
// Groups that failed to describe are skipped.
func topicConsumersFromLag(topic string, lags kadm.DescribedGroupLags) []domain.TopicConsumer {
	out := []domain.TopicConsumer{}
	for group, l := range lags {
		if l.DescribeErr != nil || l.FetchErr != nil {
			continue
		}
		for partition, ml := range l.Lag[topic] {
			if ml.Member == nil {
				continue
			}
			committed := ml.Commit.At
			if committed < 0 {
				committed = domain.NoOffset
			}
			out = append(out, domain.TopicConsumer{
				Group:      group,
				MemberID:   ml.Member.MemberID,
				ClientID:   ml.Member.ClientID,
				ClientHost: ml.Member.ClientHost,
				Partition:  partition,
				Committed:  committed,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}

// CreateTopic creates a topic with the requested layout and config entries.
func (a *Admin) CreateTopic(ctx context.Context, req domain.CreateTopicRequest) error {
	resp, err := a.client.CreateTopics(ctx, req.NumPartitions, req.ReplicationFactor, req.Configs, req.Name)
	if err != nil {
		return classify("create topic", a.config, err)
	}
	for _, r := range resp {
		if r.Err != nil {
			return classify("create topic", a.config, r.Err)
		}
	}
	return nil
}

// DeleteTopic deletes a topic
func (a *Admin) DeleteTopic(ctx context.Context, topic string) error {
	resp, err := a.client.DeleteTopics(ctx, topic)
	if err != nil {
		return classify("delete topic", a.config, err)
	}
	for _, r := range resp {
		if r.Err != nil {
			return classify("delete topic", a.config, r.Err)
		}
	}
	return nil
}

// DescribeGroup returns the membership and per-partition lag of one group.
func (a *Admin) DescribeGroup(ctx context.Context, group string) (domain.GroupMetadata, error) {
	lags, err := a.client.Lag(ctx, group)
	if err != nil {
		return domain.GroupMetadata{}, classify("describe group", a.config, err)
	}
	l, ok := lags[group]
	if !ok {
		return domain.GroupMetadata{Broker: a.config.Name, GroupID: group, FetchedAt: time.Now()}, nil
	}
	if l.DescribeErr != nil {
		return domain.GroupMetadata{}, classify("describe group", a.config, l.DescribeErr)
	}
	if l.FetchErr != nil {
		return domain.GroupMetadata{}, classify("fetch group offsets", a.config, l.FetchErr)
	}
	return groupMetadataFromLag(a.config.Name, l, time.Now()), nil
}

// groupMetadataFromLag flattens a kadm lag description. Members owning no
// partition are reported as unassigned; partitions without a commit carry
// domain.NoOffset.
func groupMetadataFromLag(broker string, l kadm.DescribedGroupLag, now time.Time) domain.GroupMetadata {
	md := domain.GroupMetadata{
		Broker:       broker,
		GroupID:      l.Group,
		State:        l.State,
		Protocol:     l.Protocol,
		ProtocolType: l.ProtocolType,
		Members:      []domain.GroupMember{},
		Unassigned:   []domain.GroupMember{},
		Offsets:      []domain.PartitionOffset{},
		FetchedAt:    now,
	}

	assigned := make(map[string]bool)
	for topic, partitions := range l.Lag {
		for partition, ml := range partitions {
			po := domain.PartitionOffset{
				Topic:     topic,
				Partition: partition,
				Committed: ml.Commit.At,
				End:       ml.End.Offset,
				Lag:       ml.Lag,
			}
			if po.Committed < 0 {
				po.Committed = domain.NoOffset
			}
			if ml.Member != nil {
				po.MemberID = ml.Member.MemberID
				assigned[ml.Member.MemberID] = true
			}
			if po.Lag > 0 {
				md.TotalLag += po.Lag
			}
			md.Offsets = append(md.Offsets, po)
		}
	}
	sort.Slice(md.Offsets, func(i, j int) bool {
		if md.Offsets[i].Topic != md.Offsets[j].Topic {
			return md.Offsets[i].Topic < md.Offsets[j].Topic
		}
		return md.Offsets[i].Partition < md.Offsets[j].Partition
	})

	for _, m := range l.Members {
		gm := domain.GroupMember{MemberID: m.MemberID, ClientID: m.ClientID, ClientHost: m.ClientHost}
		md.Members = append(md.Members, gm)
		if !assigned[m.MemberID] {
			md.Unassigned = append(md.Unassigned, gm)
		}
	}
	return md
}
