package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestOperationKind_TimeoutKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, config.HostnameReachable, domain.OpConnect.TimeoutKind())
	require.Equal(t, config.FutureGet, domain.OpCreateTopic.TimeoutKind())
	require.Equal(t, config.FutureGet, domain.OpProduce.TimeoutKind())
	require.Equal(t, config.FutureGet, domain.OpBrokerConfigs.TimeoutKind())
	require.Equal(t, config.FutureGet, domain.OpDescribeTopic.TimeoutKind())
	require.Equal(t, config.DeleteTopic, domain.OpDeleteTopic.TimeoutKind())
	require.Equal(t, config.DescribeConsumerGroup, domain.OpDescribeGroup.TimeoutKind())
	require.Equal(t, config.CloseConnection, domain.OpClose.TimeoutKind())
	require.Panics(t, func() { domain.OperationKind("nope").TimeoutKind() })
}

func TestSessionState_Transitions(t *testing.T) {
	t.Parallel()

	require.True(t, domain.SessionIdle.CanTransition(domain.SessionStarting))
	require.True(t, domain.SessionStarting.CanTransition(domain.SessionFailed))
	require.True(t, domain.SessionRunning.CanTransition(domain.SessionStopping))
	require.True(t, domain.SessionStopping.CanTransition(domain.SessionFailed))
	require.True(t, domain.SessionFailed.CanTransition(domain.SessionStarting))

	require.False(t, domain.SessionIdle.CanTransition(domain.SessionRunning))
	require.False(t, domain.SessionStopped.CanTransition(domain.SessionRunning))
	require.False(t, domain.SessionRunning.CanTransition(domain.SessionStarting))

	require.True(t, domain.SessionStopped.Terminal())
	require.False(t, domain.SessionStopping.Terminal())
}

func TestErrors_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	ce := &domain.ConnectivityError{Broker: "local", Address: "localhost:9092", Elapsed: 2 * time.Second, Cause: cause}
	wrapped := fmt.Errorf("start: %w", ce)
	require.True(t, domain.IsConnectivity(wrapped))
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, ce.Error(), "2s")

	oe := &domain.OperationError{Kind: domain.OpDescribeGroup, Broker: "local", Outcome: domain.OutcomeTimeout, Cause: domain.ErrTimeout}
	require.ErrorIs(t, oe, domain.ErrTimeout)
	require.False(t, domain.IsConnectivity(oe))

	pe := &domain.ProtocolError{Op: "create_topic", Code: 36, Cause: errors.New("TOPIC_ALREADY_EXISTS")}
	require.True(t, domain.IsProtocol(fmt.Errorf("x: %w", pe)))
}

func TestSessionStateEvent(t *testing.T) {
	t.Parallel()

	ev := domain.SessionStateEvent("s1", "local", "orders", domain.SessionFailed, domain.ErrTopicRemoved)
	require.Equal(t, domain.EventSessionState, ev.Type)
	require.Equal(t, "events.session_failed", ev.Key)
	require.Equal(t, "topic removed", ev.Error)

	ev = domain.SessionStateEvent("s1", "local", "orders", domain.SessionRunning, nil)
	require.Equal(t, "events.session_state", ev.Key)
	require.Empty(t, ev.Error)
}
