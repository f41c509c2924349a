package store

import (
	"context"
	"fmt"
	"sync"

	"pushgate/internal/enrollment/models"
	"pushgate/pkg/platform/sentinel"
)

// InMemoryStore indexes accounts by normalized email.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]*models.Account)}
}

func (s *InMemoryStore) Save(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.Email]; exists {
		return fmt.Errorf("account already enrolled: %w", sentinel.ErrConflict)
	}
	c := *account
	s.accounts[account.Email] = &c
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[email]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	c := *account
	return &c, nil
}
