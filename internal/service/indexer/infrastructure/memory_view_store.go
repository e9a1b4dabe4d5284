// internal/service/indexer/infrastructure/memory_view_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"chowfast/internal/service/indexer/domain"
)

// MemoryViewStore 是进程内的 ViewStore，未配置 Redis 时使用。
// 视图以 JSON 保存，读写都是深拷贝。
type MemoryViewStore struct {
	mu         sync.RWMutex
	checkpoint uint64
	views      map[uint64][]byte
	byBuyer    map[string]map[uint64]struct{}
}

func NewMemoryViewStore() *MemoryViewStore {
	return &MemoryViewStore{
		views:   make(map[uint64][]byte),
		byBuyer: make(map[string]map[uint64]struct{}),
	}
}

func (s *MemoryViewStore) Checkpoint(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint, nil
}

func (s *MemoryViewStore) Get(ctx context.Context, orderID uint64) (*domain.OrderView, error) {
	s.mu.RLock()
	data, ok := s.views[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrViewNotFound
	}
	var v domain.OrderView
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *MemoryViewStore) Apply(ctx context.Context, seq uint64, view *domain.OrderView) error {
	var data []byte
	if view != nil {
		var err error
		if data, err = json.Marshal(view); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if view != nil {
		s.views[view.OrderID] = data
		ids, ok := s.byBuyer[view.Buyer]
		if !ok {
			ids = make(map[uint64]struct{})
			s.byBuyer[view.Buyer] = ids
		}
		ids[view.OrderID] = struct{}{}
	}
	if seq > s.checkpoint {
		s.checkpoint = seq
	}
	return nil
}

func (s *MemoryViewStore) ListByBuyer(ctx context.Context, buyer string, limit int) ([]*domain.OrderView, error) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.byBuyer[buyer]))
	for id := range s.byBuyer[buyer] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*domain.OrderView, 0, len(ids))
	for _, id := range ids {
		v, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
