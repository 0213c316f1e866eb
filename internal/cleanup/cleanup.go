// Package cleanup removes abandoned anonymous carts. Owned carts are kept
// forever; only carts nobody can ever find again are swept.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/commercekit/cart-service/internal/repository"
)

const gateKey = "cart:cleanup:last_run"

var sweptCartsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cart_cleanup_swept_total",
	Help: "Total number of stale anonymous carts removed by the sweeper",
})

// Config controls the sweeper cadence and retention window.
type Config struct {
	// CheckInterval is how often a replica wakes up to try a sweep.
	CheckInterval time.Duration
	// RunInterval is the minimum time between actual sweeps across all
	// replicas, enforced through the redis gate.
	RunInterval time.Duration
	// RetentionDays is how long an untouched anonymous cart survives.
	RetentionDays int
}

// DefaultConfig sweeps at most once a day, keeping carts for 30 days.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		RunInterval:   24 * time.Hour,
		RetentionDays: 30,
	}
}

// Sweeper periodically deletes stale anonymous carts. Multiple replicas can
// run one; the redis gate makes sure only one of them sweeps per interval.
type Sweeper struct {
	store  repository.CartStore
	redis  *redis.Client
	logger *slog.Logger
	config Config
}

// NewSweeper creates a stale-cart sweeper.
func NewSweeper(store repository.CartStore, rdb *redis.Client, logger *slog.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		store:  store,
		redis:  rdb,
		logger: logger,
		config: cfg,
	}
}

// Run blocks until ctx is cancelled, attempting a sweep every CheckInterval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.logger.Info("cart sweeper started",
		slog.Duration("check_interval", s.config.CheckInterval),
		slog.Int("retention_days", s.config.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cart sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("cart sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sweep deletes stale anonymous carts if the interval gate can be acquired.
// Returns nil without sweeping when another replica ran recently.
func (s *Sweeper) Sweep(ctx context.Context) error {
	acquired, err := s.redis.SetNX(ctx, gateKey, time.Now().UTC().Format(time.RFC3339), s.config.RunInterval).Result()
	if err != nil {
		return fmt.Errorf("acquire cleanup gate: %w", err)
	}
	if !acquired {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)

	deleted, err := s.store.DeleteStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale carts: %w", err)
	}

	sweptCartsTotal.Add(float64(deleted))

	s.logger.Info("stale carts swept",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)

	return nil
}
