package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// Store defines the contract for persisting orders and execution reports.
type Store interface {
	CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	ClaimPending(ctx context.Context) ([]model.Order, error)
	AppendReport(ctx context.Context, payload json.RawMessage) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	EnsureSchema(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps orders in Postgres and caches recent order snapshots
// in Redis for cheap by-id lookups.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

const orderCacheTTL = 24 * time.Hour

// NewHybrid creates a Postgres-backed store with a Redis snapshot cache.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
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

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// EnsureSchema creates the orders and reports tables if they do not exist.
func (s *HybridStore) EnsureSchema(ctx context.Context) error {
	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}
	_, err := s.PG.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price NUMERIC,
			size NUMERIC NOT NULL,
			sl NUMERIC,
			tp NUMERIC,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create orders table: %w", err)
	}
	_, err = s.PG.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reports (
			id BIGSERIAL PRIMARY KEY,
			payload JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}

// CreateOrder inserts a new pending order and returns the persisted row.
func (s *HybridStore) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	row := s.PG.QueryRow(ctx, `
		INSERT INTO orders (symbol, side, price, size, sl, tp, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id, symbol, side, price, size, sl, tp, status, created_at;
	`, req.Symbol, req.Side, req.Price, req.Size, req.StopLoss, req.TakeProfit)

	var o model.Order
	if err := row.Scan(&o.ID, &o.Symbol, &o.Side, &o.Price, &o.Size,
		&o.StopLoss, &o.TakeProfit, &o.Status, &o.CreatedAt); err != nil {
		s.logger.Error("store.pg.insert_order_failed", zap.Error(err))
		return nil, err
	}

	s.cacheOrder(ctx, &o)
	return &o, nil
}

// ClaimPending selects every pending order oldest-first and flips it to
// sent inside one transaction. Row locks on the SELECT linearize
// concurrent claims: a second caller blocks, then re-reads the committed
// rows as sent and gets nothing. The returned snapshot is pre-update.
func (s *HybridStore) ClaimPending(ctx context.Context) ([]model.Order, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	tx, err := s.PG.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, symbol, side, price, size, sl, tp, status, created_at
		FROM orders
		WHERE status = 'pending'
		ORDER BY id ASC
		FOR UPDATE;
	`)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Side, &o.Price, &o.Size,
			&o.StopLoss, &o.TakeProfit, &o.Status, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	if len(orders) > 0 {
		ids := make([]int64, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'sent' WHERE id = ANY($1);
		`, ids); err != nil {
			return nil, fmt.Errorf("mark sent: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	// Cached snapshots are stale once claimed; refresh them.
	for i := range orders {
		claimed := orders[i]
		claimed.Status = model.StatusSent
		s.cacheOrder(ctx, &claimed)
	}

	return orders, nil
}

// AppendReport inserts an immutable execution report row.
func (s *HybridStore) AppendReport(ctx context.Context, payload json.RawMessage) (int64, error) {
	if s.PG == nil {
		return 0, fmt.Errorf("postgres unavailable")
	}
	var id int64
	err := s.PG.QueryRow(ctx, `
		INSERT INTO reports (payload) VALUES ($1) RETURNING id;
	`, payload).Scan(&id)
	if err != nil {
		s.logger.Error("store.pg.insert_report_failed", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// GetOrder returns a single order, Redis cache first, Postgres on miss.
func (s *HybridStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	data, err := s.redis.Get(ctx, orderCacheKey(id)).Bytes()
	if err == nil {
		var o model.Order
		if err := json.Unmarshal(data, &o); err == nil {
			return &o, nil
		}
		// fall through to Postgres on a corrupt cache entry
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("store.redis.get_failed", zap.Int64("id", id), zap.Error(err))
	}

	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	row := s.PG.QueryRow(ctx, `
		SELECT id, symbol, side, price, size, sl, tp, status, created_at
		FROM orders WHERE id = $1;
	`, id)

	var o model.Order
	if err := row.Scan(&o.ID, &o.Symbol, &o.Side, &o.Price, &o.Size,
		&o.StopLoss, &o.TakeProfit, &o.Status, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	s.cacheOrder(ctx, &o)
	return &o, nil
}

func (s *HybridStore) cacheOrder(ctx context.Context, o *model.Order) {
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, orderCacheKey(o.ID), data, orderCacheTTL).Err(); err != nil {
		s.logger.Warn("store.redis.set_failed", zap.Int64("id", o.ID), zap.Error(err))
	}
}

func orderCacheKey(id int64) string {
	return fmt.Sprintf("order:%d", id)
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
