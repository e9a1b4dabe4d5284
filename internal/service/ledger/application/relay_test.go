package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu       sync.Mutex
	failNext int
	got      []uint64
}

func (s *recordingSink) Publish(_ context.Context, envelopes ...*domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("broker unavailable")
	}
	for _, e := range envelopes {
		s.got = append(s.got, e.Seq)
	}
	return nil
}

func (s *recordingSink) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.got...)
}

type flakyLeadership struct {
	mu       sync.Mutex
	failures int
	locked   bool
}

func (l *flakyLeadership) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return errors.New("timeout waiting for lock")
	}
	l.locked = true
	return nil
}

func (l *flakyLeadership) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = false
	return nil
}

func (l *flakyLeadership) isLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

func appendRecords(t *testing.T, store *infrastructure.MemoryStore, n int) {
	t.Helper()
	require.NoError(t, store.Atomic(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for i := 0; i < n; i++ {
			if err := tx.Append(ctx, &domain.Envelope{Kind: domain.KindFundsWithdrawn, Payload: []byte(`{}`)}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestAuditRelay_FlushInBatches(t *testing.T) {
	store := infrastructure.NewMemoryStore()
	sink := &recordingSink{}
	relay := NewAuditRelay(store, sink, infrastructure.LocalLeadership{}, time.Second, 2)
	appendRecords(t, store, 5)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sink.seqs())

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAuditRelay_FailedPublishIsRetried(t *testing.T) {
	store := infrastructure.NewMemoryStore()
	sink := &recordingSink{failNext: 1}
	relay := NewAuditRelay(store, sink, infrastructure.LocalLeadership{}, time.Second, 10)
	appendRecords(t, store, 3)

	_, err := relay.Flush(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sink.seqs())

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint64{1, 2, 3}, sink.seqs())
}

func TestAuditRelay_RunDeliversAndStops(t *testing.T) {
	store := infrastructure.NewMemoryStore()
	sink := &recordingSink{}
	leader := &flakyLeadership{failures: 2}
	relay := NewAuditRelay(store, sink, leader, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	appendRecords(t, store, 2)
	relay.Notify()
	require.Eventually(t, func() bool { return len(sink.seqs()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, leader.isLocked())

	appendRecords(t, store, 1)
	relay.Notify()
	require.Eventually(t, func() bool { return len(sink.seqs()) == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.False(t, leader.isLocked())
	assert.Equal(t, []uint64{1, 2, 3}, sink.seqs())
}

func TestAuditRelay_WakesOnServiceCommit(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	relay := NewAuditRelay(f.store, sink, infrastructure.LocalLeadership{}, time.Hour, 10)
	f.svc.onCommit = relay.Notify

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	_, err := f.svc.CreateOrder(context.Background(), Call{Caller: alice, Value: 1100}, orderRequest(1000))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sink.seqs()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
