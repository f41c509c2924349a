package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pushgate/internal/transaction/models"
	"pushgate/pkg/domain"
	"pushgate/pkg/platform/sentinel"
)

const (
	transactionKeyPrefix = "txn:"
	maxExecuteAttempts   = 3
)

// RedisStore keeps each transaction as a JSON value that expires after ttl.
// Execute uses WATCH/MULTI optimistic locking and retries a conflicting
// commit a bounded number of times.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func transactionKey(id domain.TransactionID) string {
	return transactionKeyPrefix + id.String()
}

func (s *RedisStore) Create(ctx context.Context, tx *models.Transaction) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	ok, err := s.client.SetNX(ctx, transactionKey(tx.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store transaction: %w: %w", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("transaction already exists: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisStore) Execute(ctx context.Context, id domain.TransactionID, validate func(*models.Transaction) error, mutate func(*models.Transaction)) (*models.Transaction, error) {
	key := transactionKey(id)
	var (
		result *models.Transaction
		// ran is false when WATCH itself failed before txf was called.
		ran bool
	)

	txf := func(rtx *redis.Tx) error {
		ran = true
		tx, err := s.load(ctx, rtx, id)
		if err != nil {
			return err
		}
		if err := validate(tx); err != nil {
			return err
		}
		mutate(tx)
		payload, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("encode transaction: %w", err)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return fmt.Errorf("update transaction: %w: %w", sentinel.ErrUnavailable, err)
		}
		result = tx
		return nil
	}

	for attempt := 0; attempt < maxExecuteAttempts; attempt++ {
		ran = false
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case !ran:
			return nil, fmt.Errorf("watch transaction: %w: %w", sentinel.ErrUnavailable, err)
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("update transaction after %d attempts: %w", maxExecuteAttempts, redis.TxFailedErr)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, id domain.TransactionID) (*models.Transaction, error) {
	raw, err := c.Get(ctx, transactionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w: %w", sentinel.ErrUnavailable, err)
	}
	var tx models.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}
