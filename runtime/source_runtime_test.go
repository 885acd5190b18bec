package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/plugin"
	"github.com/danube-messaging/danube-connect/record"
)

// TestSourceRuntime_PublishesAndCommitsInOrder covers spec §8 scenario 5:
// poll() returns records targeted at /a and /b (two each); producer_configs
// declares both; expect four producer sends in returned order per topic and
// a single commit call with offsets [(/a,0),(/b,1),(/a,2),(/b,3)].
func TestSourceRuntime_PublishesAndCommitsInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Processing.PollIntervalMs = 5

	client := broker.NewFakeClient()
	sourcePlugin := &stubSourcePlugin{
		producerCfgs: []plugin.ProducerConfig{{Topic: "/a"}, {Topic: "/b"}},
		pollResults: [][]*record.SourceRecord{
			{
				record.NewSourceRecord("/a", []byte("a1")),
				record.NewSourceRecord("/b", []byte("b1")),
				record.NewSourceRecord("/a", []byte("a2")),
				record.NewSourceRecord("/b", []byte("b2")),
			},
		},
	}

	rt, err := NewSourceRuntime(cfg, client, sourcePlugin)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sourcePlugin.Commits()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)

	producerA := client.Producer("/a")
	producerB := client.Producer("/b")
	require.NotNil(t, producerA)
	require.NotNil(t, producerB)
	require.Equal(t, 2, len(producerA.Sent()))
	require.Equal(t, 2, len(producerB.Sent()))
	require.Equal(t, "a1", string(producerA.Sent()[0].Payload))
	require.Equal(t, "a2", string(producerA.Sent()[1].Payload))
	require.Equal(t, "b1", string(producerB.Sent()[0].Payload))
	require.Equal(t, "b2", string(producerB.Sent()[1].Payload))

	commits := sourcePlugin.Commits()
	require.Equal(t, 1, len(commits))
	require.Equal(t, []record.Offset{
		{Topic: "/a", Position: 0},
		{Topic: "/b", Position: 1},
		{Topic: "/a", Position: 2},
		{Topic: "/b", Position: 3},
	}, commits[0])
}

// TestSourceRuntime_PartialBatchFailureSkipsCommit asserts the preserved
// Open Question decision from spec §9/SPEC_FULL §9: a terminal publish
// failure anywhere in a poll batch drops commit() for the whole batch, even
// though records published before the failure were already sent.
func TestSourceRuntime_PartialBatchFailureSkipsCommit(t *testing.T) {
	cfg := testConfig()
	cfg.Processing.PollIntervalMs = 5
	cfg.Retry.MaxRetries = 0

	client := broker.NewFakeClient()
	client.OnProducerCreated = func(p *broker.FakeProducer) {
		if p.Topic() != "/b" {
			return
		}
		p.SendFunc = func(context.Context, []byte, map[string]string, *string) (string, error) {
			return "", errBoom
		}
	}
	sourcePlugin := &stubSourcePlugin{
		producerCfgs: []plugin.ProducerConfig{{Topic: "/a"}, {Topic: "/b"}},
		pollResults: [][]*record.SourceRecord{
			{
				record.NewSourceRecord("/a", []byte("a1")),
				record.NewSourceRecord("/b", []byte("b1")),
			},
		},
	}

	rt, err := NewSourceRuntime(cfg, client, sourcePlugin)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.Producer("/a") != nil && len(client.Producer("/a").Sent()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Give the failed publish time to exhaust its (zero) retries and return.
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)

	producerB := client.Producer("/b")
	require.NotNil(t, producerB)
	require.Equal(t, 0, len(sourcePlugin.Commits()), "commit must be skipped when any record in the batch terminally fails")
	require.Equal(t, 0, len(producerB.Sent()), "the failing record must not be recorded as sent")
}
