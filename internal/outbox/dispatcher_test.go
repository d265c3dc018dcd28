package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/go-shop-orders/internal/testdb"
)

type fakePublisher struct {
	messages []kafkago.Message
	failOn   string
}

func (f *fakePublisher) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	for _, m := range msgs {
		if f.failOn != "" && m.Topic == f.failOn {
			return errors.New("broker unavailable")
		}
		f.messages = append(f.messages, m)
	}
	return nil
}

func TestDispatchPending(t *testing.T) {
	pool := testdb.Start(t)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, pool, TopicOrderCreated, "1", map[string]any{"order_id": 1}))
	require.NoError(t, Insert(ctx, pool, TopicOrderPaid, "1", map[string]any{"order_id": 1}))

	pub := &fakePublisher{}
	d := &Dispatcher{DB: pool, Writer: pub, Interval: time.Second}
	d.dispatchPending(ctx)

	require.Len(t, pub.messages, 2)
	assert.Equal(t, TopicOrderCreated, pub.messages[0].Topic)
	assert.Equal(t, TopicOrderPaid, pub.messages[1].Topic)
	assert.Equal(t, []byte("1"), pub.messages[0].Key)
	require.Len(t, pub.messages[0].Headers, 1)
	assert.Equal(t, "x-event-id", pub.messages[0].Headers[0].Key)
	assert.NotEmpty(t, pub.messages[0].Headers[0].Value)

	pending, err := FetchPending(ctx, pool, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Nothing left to publish on the next tick.
	d.dispatchPending(ctx)
	assert.Len(t, pub.messages, 2)
}

func TestDispatchPendingKeepsFailedRecords(t *testing.T) {
	pool := testdb.Start(t)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, pool, TopicOrderCreated, "1", map[string]any{"order_id": 1}))
	require.NoError(t, Insert(ctx, pool, TopicOrderCancelled, "2", map[string]any{"order_id": 2}))

	pub := &fakePublisher{failOn: TopicOrderCreated}
	d := &Dispatcher{DB: pool, Writer: pub, Interval: time.Second}
	d.dispatchPending(ctx)

	// The failed record stays pending; the other got through.
	pending, err := FetchPending(ctx, pool, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TopicOrderCreated, pending[0].Topic)

	// Once the broker recovers the record is delivered.
	pub.failOn = ""
	d.dispatchPending(ctx)
	pending, err = FetchPending(ctx, pool, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
