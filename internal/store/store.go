package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Store defines the contract for quote and transaction persistence.
type Store interface {
	PutQuotes(ctx context.Context, quotes []model.Quote) error
	GetQuote(ctx context.Context, quoteID string) (*model.Quote, error)
	CreateTransaction(ctx context.Context, tx model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	MutateTransaction(ctx context.Context, id string, fn func(*model.Transaction) error) (*model.Transaction, error)
	ListTransactions(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error)
	RecordTransitionEvent(ctx context.Context, tx model.Transaction, from, to string) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RetentionConfig struct {
	// Window is how long terminal transactions are kept.
	Window time.Duration
	// MaxPerAccount caps the number of retained transactions per account;
	// the oldest terminal ones are evicted first.
	MaxPerAccount int
	SweepInterval time.Duration
}

// HybridStore keeps the working set in memory, writes through to Redis so
// state survives restarts, and appends transition history to Postgres when a
// pool is configured. Transaction mutations are serialized per id.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger

	mu     sync.RWMutex
	quotes map[string]model.Quote
	txs    map[string]*model.Transaction

	lockMu  sync.Mutex
	txLocks map[string]*sync.Mutex

	quoteTTL  time.Duration
	retention RetentionConfig
}

// NewHybrid creates a Redis-backed store with optional Postgres history.
func NewHybrid(redisAddr, redisPass string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, quoteTTL time.Duration, retention RetentionConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPass,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	if quoteTTL <= 0 {
		quoteTTL = 30 * time.Second
	}
	return &HybridStore{
		redis:     rdb,
		PG:        pgPool,
		logger:    logger,
		quotes:    make(map[string]model.Quote),
		txs:       make(map[string]*model.Transaction),
		txLocks:   make(map[string]*sync.Mutex),
		quoteTTL:  quoteTTL,
		retention: retention,
	}, nil
}

func quoteKey(id string) string { return "quote:" + id }
func txKey(id string) string    { return "tx:" + id }

// PutQuotes registers ranked quotes so they can be accepted by id until they
// expire.
func (s *HybridStore) PutQuotes(ctx context.Context, quotes []model.Quote) error {
	s.mu.Lock()
	for _, q := range quotes {
		s.quotes[q.ID] = q
	}
	s.mu.Unlock()

	for _, q := range quotes {
		if err := s.SetJSON(ctx, quoteKey(q.ID), q, s.quoteTTL); err != nil {
			s.logger.Warn("store.redis.put_quote_failed",
				zap.String("quote_id", q.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *HybridStore) GetQuote(ctx context.Context, quoteID string) (*model.Quote, error) {
	s.mu.RLock()
	q, ok := s.quotes[quoteID]
	s.mu.RUnlock()
	if ok {
		return &q, nil
	}

	var fromRedis model.Quote
	err := s.GetJSON(ctx, quoteKey(quoteID), &fromRedis)
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.quotes[quoteID] = fromRedis
	s.mu.Unlock()
	return &fromRedis, nil
}

func (s *HybridStore) CreateTransaction(ctx context.Context, tx model.Transaction) error {
	s.mu.Lock()
	if _, exists := s.txs[tx.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	stored := tx.Snapshot()
	s.txs[tx.ID] = &stored
	s.mu.Unlock()

	if err := s.SetJSON(ctx, txKey(tx.ID), tx, 0); err != nil {
		s.logger.Warn("store.redis.put_tx_failed",
			zap.String("tx_id", tx.ID),
			zap.Error(err))
	}
	return nil
}

func (s *HybridStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	tx, ok := s.txs[id]
	s.mu.RUnlock()
	if ok {
		snap := tx.Snapshot()
		return &snap, nil
	}

	var fromRedis model.Transaction
	err := s.GetJSON(ctx, txKey(id), &fromRedis)
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	rehydrated := fromRedis.Snapshot()
	s.txs[id] = &rehydrated
	s.mu.Unlock()
	return &fromRedis, nil
}

func (s *HybridStore) lockFor(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.txLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.txLocks[id] = l
	}
	return l
}

// MutateTransaction applies fn to the transaction under its per-id lock and
// writes the result through to Redis. fn sees the live record; returning an
// error leaves it untouched.
func (s *HybridStore) MutateTransaction(ctx context.Context, id string, fn func(*model.Transaction) error) (*model.Transaction, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	tx, ok := s.txs[id]
	s.mu.RUnlock()
	if !ok {
		if _, err := s.GetTransaction(ctx, id); err != nil {
			return nil, err
		}
		s.mu.RLock()
		tx, ok = s.txs[id]
		s.mu.RUnlock()
		if !ok {
			return nil, model.ErrTransactionNotFound
		}
	}

	working := tx.Snapshot()
	if err := fn(&working); err != nil {
		return nil, err
	}

	s.mu.Lock()
	updated := working.Snapshot()
	s.txs[id] = &updated
	s.mu.Unlock()

	if err := s.SetJSON(ctx, txKey(id), working, 0); err != nil {
		s.logger.Warn("store.redis.update_tx_failed",
			zap.String("tx_id", id),
			zap.Error(err))
	}
	snap := working.Snapshot()
	return &snap, nil
}

// ListTransactions returns the account's transactions most recent first. The
// bool reports whether more pages exist. Page numbers start at 1.
func (s *HybridStore) ListTransactions(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	s.mu.RLock()
	var all []model.Transaction
	for _, tx := range s.txs {
		if account == "" || tx.Account == account {
			all = append(all, tx.Snapshot())
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start >= len(all) {
		return []model.Transaction{}, false, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], end < len(all), nil
}

// RecordTransitionEvent appends an immutable row to bridge.transaction_event.
func (s *HybridStore) RecordTransitionEvent(ctx context.Context, tx model.Transaction, from, to string) error {
	if s.PG == nil {
		return nil
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.PG.Exec(ctx, `
		INSERT INTO bridge.transaction_event (
			tx_id, account, provider, from_status, to_status, snapshot, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, tx.ID, tx.Account, tx.Quote.Provider, from, to, payload)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed", zap.Error(err))
	}
	return err
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// StartRetentionSweep evicts expired quotes and aged-out terminal
// transactions on an interval until ctx is cancelled.
func (s *HybridStore) StartRetentionSweep(ctx context.Context) {
	interval := s.retention.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *HybridStore) sweep(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	for id, q := range s.quotes {
		if q.Expired(now) {
			delete(s.quotes, id)
		}
	}

	var evicted []string
	perAccount := make(map[string][]*model.Transaction)
	for id, tx := range s.txs {
		if !tx.Status.Terminal() {
			continue
		}
		if s.retention.Window > 0 && now.Sub(tx.UpdatedAt) > s.retention.Window {
			delete(s.txs, id)
			evicted = append(evicted, id)
			continue
		}
		perAccount[tx.Account] = append(perAccount[tx.Account], tx)
	}
	if s.retention.MaxPerAccount > 0 {
		for _, txs := range perAccount {
			if len(txs) <= s.retention.MaxPerAccount {
				continue
			}
			sort.Slice(txs, func(i, j int) bool {
				return txs[i].UpdatedAt.After(txs[j].UpdatedAt)
			})
			for _, tx := range txs[s.retention.MaxPerAccount:] {
				delete(s.txs, tx.ID)
				evicted = append(evicted, tx.ID)
			}
		}
	}
	s.mu.Unlock()

	s.lockMu.Lock()
	for _, id := range evicted {
		delete(s.txLocks, id)
	}
	s.lockMu.Unlock()

	for _, id := range evicted {
		if err := s.redis.Del(ctx, txKey(id)).Err(); err != nil {
			s.logger.Warn("store.redis.evict_failed", zap.String("tx_id", id), zap.Error(err))
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("store.retention_sweep", zap.Int("evicted", len(evicted)))
	}
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
