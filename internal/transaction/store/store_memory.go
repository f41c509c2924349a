package store

import (
	"context"
	"fmt"
	"sync"

	"pushgate/internal/transaction/models"
	"pushgate/pkg/domain"
	"pushgate/pkg/platform/sentinel"
)

// InMemoryStore keeps transactions in a map for tests and single-node dev.
type InMemoryStore struct {
	mu           sync.RWMutex
	transactions map[domain.TransactionID]*models.Transaction
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		transactions: make(map[domain.TransactionID]*models.Transaction),
	}
}

func (s *InMemoryStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction already exists: %w", sentinel.ErrConflict)
	}
	s.transactions[tx.ID] = clone(tx)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
	}
	return clone(tx), nil
}

func (s *InMemoryStore) Execute(_ context.Context, id domain.TransactionID, validate func(*models.Transaction) error, mutate func(*models.Transaction)) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
	}
	working := clone(stored)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.transactions[id] = working
	return clone(working), nil
}
