package registry

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/testutil"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

func testBroker(name string) config.BrokerConfig {
	return config.BrokerConfig{Name: name, Hostname: "localhost", Port: 9092}
}

func newTestRegistry(t *testing.T, timeouts config.Timeouts, factory domain.ClientFactory, prober domain.Prober, idle time.Duration) (*Registry, *testutil.RecordingSink) {
	t.Helper()
	sink := &testutil.RecordingSink{}
	exec := executor.New(timeouts, 8, sink)
	r := New(exec, factory, prober, idle)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, sink
}

func TestBrokerConfigEqual(t *testing.T) {
	a := config.BrokerConfig{
		Name:     "b1",
		Hostname: "kafka-1",
		Port:     9092,
		ClientID: "cid",
		TLS:      &config.TLSConfig{Enabled: true, CAFile: "ca.pem"},
		SASL:     &config.SASLConfig{Mechanism: "PLAIN", Username: "u", Password: "p"},
		AWS:      &config.AWSConfig{IAM: false},
		Options:  map[string]string{"k": "v"},
	}
	b := a
	if !brokerConfigEqual(a, b) {
		t.Fatalf("expected equal configs")
	}
	b.Port = 9093
	if brokerConfigEqual(a, b) {
		t.Fatalf("expected different configs when port differs")
	}
	b = a
	b.SASL = &config.SASLConfig{Mechanism: "PLAIN", Username: "u", Password: "other"}
	if brokerConfigEqual(a, b) {
		t.Fatalf("expected different configs when credentials differ")
	}
	b = a
	b.Options = map[string]string{"k": "w"}
	if brokerConfigEqual(a, b) {
		t.Fatalf("expected different configs when options differ")
	}
	b = a
	b.TLS = nil
	if brokerConfigEqual(a, b) {
		t.Fatalf("expected different configs when tls removed")
	}
}

func TestRegistry_ConcurrentAcquireSharesOneConnect(t *testing.T) {
	t.Parallel()
	client := testutil.NewFakeKafkaClient()
	factory := testutil.NewFakeFactory(client)
	prober := &testutil.FakeProber{Delay: 30 * time.Millisecond}
	r, _ := newTestRegistry(t, config.Timeouts{}, factory, prober, time.Minute)

	const n = 10
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Acquire(context.Background(), testBroker("b1"))
			require.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	require.Equal(t, 1, prober.Calls())
	require.Equal(t, 1, factory.Calls())
	for _, h := range handles {
		require.Same(t, handles[0], h)
	}
	info := r.Handles()
	require.Len(t, info, 1)
	require.Equal(t, n, info[0].Refs)
	require.True(t, info[0].Healthy)
	require.Equal(t, []string{"localhost:9092"}, info[0].Advertised)
}

func TestRegistry_AcquireBurstNeverConnectsTwice(t *testing.T) {
	t.Parallel()

	for iter := range 200 {
		factory := testutil.NewFakeFactory(testutil.NewFakeKafkaClient())
		r, _ := newTestRegistry(t, config.Timeouts{}, factory, &testutil.FakeProber{}, time.Minute)

		const n = 64
		gate := make(chan struct{})
		handles := make([]*Handle, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				h, err := r.Acquire(context.Background(), testBroker("b1"))
				require.NoError(t, err)
				handles[i] = h
			}()
		}
		close(gate)
		wg.Wait()

		require.Equal(t, 1, factory.Calls(), "iteration %d", iter)
		for _, h := range handles {
			require.Same(t, handles[0], h)
		}
		info := r.Handles()
		require.Len(t, info, 1)
		require.Equal(t, n, info[0].Refs)
	}
}

func TestRegistry_DistinctNamesSameAddress(t *testing.T) {
	t.Parallel()
	factory := testutil.NewFakeFactory(testutil.NewFakeKafkaClient())
	r, _ := newTestRegistry(t, config.Timeouts{}, factory, &testutil.FakeProber{}, time.Minute)

	a, err := r.Acquire(context.Background(), testBroker("a"))
	require.NoError(t, err)
	b, err := r.Acquire(context.Background(), testBroker("b"))
	require.NoError(t, err)

	require.NotSame(t, a, b)
	require.Equal(t, 2, factory.Calls())
}

func TestRegistry_UnreachableBrokerFailsWithinBudget(t *testing.T) {
	t.Parallel()
	factory := testutil.NewFakeFactory(testutil.NewFakeKafkaClient())
	prober := &testutil.FakeProber{Delay: time.Hour}
	r, _ := newTestRegistry(t, config.Timeouts{HostnameReachableMs: 100}, factory, prober, time.Minute)

	start := time.Now()
	_, err := r.Acquire(context.Background(), testBroker("down"))
	elapsed := time.Since(start)

	var ce *domain.ConnectivityError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "down", ce.Broker)
	require.Equal(t, "localhost:9092", ce.Address)
	require.GreaterOrEqual(t, ce.Elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 300*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Equal(t, 0, factory.Calls())
	require.Empty(t, r.Handles())
}

func TestRegistry_PingFailureClosesClient(t *testing.T) {
	t.Parallel()
	client := testutil.NewFakeKafkaClient()
	client.PingErr = errors.New("refused")
	r, _ := newTestRegistry(t, config.Timeouts{}, testutil.NewFakeFactory(client), &testutil.FakeProber{}, time.Minute)

	_, err := r.Acquire(context.Background(), testBroker("b1"))
	require.True(t, domain.IsConnectivity(err))
	require.Equal(t, 1, client.Closed())
}

func TestRegistry_ReleaseArmsIdleClose(t *testing.T) {
	t.Parallel()
	client := testutil.NewFakeKafkaClient()
	r, _ := newTestRegistry(t, config.Timeouts{}, testutil.NewFakeFactory(client), &testutil.FakeProber{}, 50*time.Millisecond)

	h, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)
	h2, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)

	r.Release(h)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, r.Handles(), 1, "still referenced")

	r.Release(h2)
	require.Eventually(t, func() bool { return len(r.Handles()) == 0 }, time.Second, 10*time.Millisecond)
	require.True(t, h.Closed())
	require.Eventually(t, func() bool { return client.Closed() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRegistry_ForceCloseTimeoutMarksUnhealthy(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	client := testutil.NewFakeKafkaClient()
	client.CloseFn = func() { <-block }
	r, _ := newTestRegistry(t, config.Timeouts{CloseConnectionMs: 50}, testutil.NewFakeFactory(client), &testutil.FakeProber{}, time.Minute)

	h, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)

	start := time.Now()
	err = r.ForceClose(context.Background(), "b1")
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Less(t, time.Since(start), 200*time.Millisecond)
	require.False(t, h.Healthy())
	require.True(t, h.Closed())
	require.Empty(t, r.Handles())

	require.ErrorIs(t, r.ForceClose(context.Background(), "b1"), ErrNotConnected)
}

func TestRegistry_ForceCloseCancelsPendingWork(t *testing.T) {
	t.Parallel()
	sink := &testutil.RecordingSink{}
	exec := executor.New(config.Timeouts{FutureGetMs: 2000}, 4, sink)
	r := New(exec, testutil.NewFakeFactory(testutil.NewFakeKafkaClient()), &testutil.FakeProber{}, time.Minute)

	h, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)

	op := exec.Submit(context.Background(), domain.OpCreateTopic, h, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, r.ForceClose(context.Background(), "b1"))

	_, err = op.Wait()
	require.ErrorIs(t, err, domain.ErrCancelled)
	require.ErrorIs(t, err, domain.ErrHandleClosed)
}

func TestRegistry_UnhealthyHandleIsReplaced(t *testing.T) {
	t.Parallel()
	factory := &testutil.FakeFactory{ClientFn: func(config.BrokerConfig) (domain.KafkaClient, error) {
		return testutil.NewFakeKafkaClient(), nil
	}}
	r, _ := newTestRegistry(t, config.Timeouts{}, factory, &testutil.FakeProber{}, time.Minute)

	h, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)
	h.ReportError(errors.New("not a connectivity error"))
	require.True(t, h.Healthy())

	h.ReportError(&domain.ConnectivityError{Broker: "b1", Cause: errors.New("reset")})
	require.False(t, h.Healthy())
	r.Release(h)

	h2, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)
	require.NotSame(t, h, h2)
	require.True(t, h2.Healthy())
	require.Equal(t, 2, factory.Calls())
	require.Eventually(t, h.Closed, time.Second, 10*time.Millisecond)
}

func TestRegistry_ReconcileClosesChangedAndRemoved(t *testing.T) {
	t.Parallel()
	factory := &testutil.FakeFactory{ClientFn: func(config.BrokerConfig) (domain.KafkaClient, error) {
		return testutil.NewFakeKafkaClient(), nil
	}}
	r, _ := newTestRegistry(t, config.Timeouts{}, factory, &testutil.FakeProber{}, time.Minute)

	for _, name := range []string{"keep", "change", "drop"} {
		_, err := r.Acquire(context.Background(), testBroker(name))
		require.NoError(t, err)
	}

	changed := testBroker("change")
	changed.Port = 19092
	r.Reconcile(context.Background(), []config.BrokerConfig{testBroker("keep"), changed})

	info := r.Handles()
	require.Len(t, info, 1)
	require.Equal(t, "keep", info[0].Broker)
}

func TestRegistry_AcquireHonoursCallerContext(t *testing.T) {
	t.Parallel()
	prober := &testutil.FakeProber{Delay: 200 * time.Millisecond}
	r, _ := newTestRegistry(t, config.Timeouts{}, testutil.NewFakeFactory(testutil.NewFakeKafkaClient()), prober, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Acquire(ctx, testBroker("b1"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the shared attempt keeps going and later callers reuse it
	h, err := r.Acquire(context.Background(), testBroker("b1"))
	require.NoError(t, err)
	require.Equal(t, 1, prober.Calls())
	r.Release(h)
}
