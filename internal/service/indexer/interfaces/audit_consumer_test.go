package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chowfast/internal/service/indexer/application"
	"chowfast/internal/service/indexer/domain"
	"chowfast/internal/service/indexer/infrastructure"
	ledger "chowfast/internal/service/ledger/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const buyer ledger.Address = "0x2222222222222222222222222222222222222222"

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// flakyStore 前 failures 次 Apply 返回错误
type flakyStore struct {
	*infrastructure.MemoryViewStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Apply(ctx context.Context, seq uint64, v *domain.OrderView) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("redis down")
	}
	s.mu.Unlock()
	return s.MemoryViewStore.Apply(ctx, seq, v)
}

func message(t *testing.T, offset int64, seq uint64, rec ledger.Record) kafka.Message {
	t.Helper()
	env, err := ledger.NewEnvelope(rec, "evt", 1000)
	require.NoError(t, err)
	env.Seq = seq
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte("ledger"), Value: data}
}

func runConsumer(t *testing.T, c *AuditConsumer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestAuditConsumer_AppliesAndCommits(t *testing.T) {
	reader := newFakeReader(
		message(t, 10, 1, &ledger.OrderCreated{OrderID: 1, Buyer: buyer, Total: 1100, Timestamp: 1000, DeliveryInfo: "Room 302",
			ProductIDs: []string{"p1"}, ProductNames: []string{"Noodles"}, Prices: []ledger.Amount{1000}, Quantities: []uint64{1}}),
		kafka.Message{Offset: 11, Value: []byte("not json")},
		message(t, 12, 2, &ledger.OrderStatusUpdated{OrderID: 1, NewStatus: ledger.StatusConfirmed, Timestamp: 1050}),
	)
	projector := application.NewProjector(infrastructure.NewMemoryViewStore(), 300, noop.NewTracerProvider().Tracer("test"), nil)
	stop := runConsumer(t, NewAuditConsumer(reader, projector, "ledger-audit"))

	require.Eventually(t, func() bool { return len(reader.offsets()) == 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{10, 11, 12}, reader.offsets(), "malformed message is skipped and committed")
	assert.True(t, reader.closed)

	v, err := projector.Order(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Confirmed", v.Status)
}

func TestAuditConsumer_RetriesFailedMessageInPlace(t *testing.T) {
	store := &flakyStore{MemoryViewStore: infrastructure.NewMemoryViewStore(), failures: 2}
	reader := newFakeReader(
		message(t, 0, 1, &ledger.OrderCreated{OrderID: 1, Buyer: buyer, Total: 1100, Timestamp: 1000, ProductIDs: []string{"p1"}}),
		message(t, 1, 2, &ledger.OrderStatusUpdated{OrderID: 1, NewStatus: ledger.StatusCompleted, Timestamp: 1200}),
	)
	projector := application.NewProjector(store, 300, noop.NewTracerProvider().Tracer("test"), nil)
	c := NewAuditConsumer(reader, projector, "ledger-audit")
	c.retryDelay = time.Millisecond
	stop := runConsumer(t, c)

	require.Eventually(t, func() bool { return len(reader.offsets()) == 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{0, 1}, reader.offsets())
	v, err := projector.Order(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Completed", v.Status)
	cp, err := projector.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cp)
}
