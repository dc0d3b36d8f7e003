package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
)

// MemoryStore keeps the encoded records so it goes through the same
// persisted layout as the durable stores.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*cartRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*cartRecord)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) *domain.Cart {
	s.mu.RLock()
	rec, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.NewCart(sessionID, "")
	}

	cart, err := decodeCart(sessionID, rec)
	if err != nil {
		return domain.NewCart(sessionID, "")
	}
	return cart
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, cart *domain.Cart) error {
	rec, err := encodeCart(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[sessionID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.records, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sessions(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

