package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/usersvc/usersvc/internal/users"
)

// Checker defines the interface for health checking components
type Checker interface {
	HealthCheck(ctx context.Context) error
	IsCritical() bool // Critical services mark the whole service unhealthy
	Name() string
}

// Manager runs health checks for all registered components
type Manager struct {
	checkers []Checker
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make([]Checker, 0),
		logger:   logger,
	}
}

// AddChecker adds a health checker to the manager
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Status runs every checker once. It returns each result keyed by checker
// name, and a non-nil error when any critical checker failed.
func (m *Manager) Status(ctx context.Context) (map[string]error, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]error, len(m.checkers))
	var criticalFailures []error

	for _, checker := range m.checkers {
		err := checker.HealthCheck(ctx)
		results[checker.Name()] = err
		if err != nil && checker.IsCritical() {
			criticalFailures = append(criticalFailures, fmt.Errorf("%s: %w", checker.Name(), err))
		}
	}

	if len(criticalFailures) > 0 {
		return results, fmt.Errorf("critical services failed health check: %v", criticalFailures)
	}
	return results, nil
}

// StartupHealthCheck fails when any critical checker fails. Non-critical
// failures are logged as warnings only.
func (m *Manager) StartupHealthCheck(ctx context.Context) error {
	results, err := m.Status(ctx)

	for name, checkErr := range results {
		if checkErr == nil {
			m.logger.Debug("Service health check passed", zap.String("service", name))
			continue
		}
		m.logger.Warn("Service health check failed",
			zap.String("service", name),
			zap.Error(checkErr))
	}

	if err != nil {
		m.logger.Error("Startup health check failed", zap.Error(err))
		return err
	}

	m.logger.Info("All critical services healthy", zap.Int("total_checks", len(results)))
	return nil
}

// DatabaseChecker checks database connectivity
type DatabaseChecker struct {
	db *bun.DB
}

// NewDatabaseChecker creates a database health checker
func NewDatabaseChecker(db *bun.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (d *DatabaseChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseChecker) IsCritical() bool {
	return true
}

func (d *DatabaseChecker) Name() string {
	return "database"
}

// RedisChecker checks the user cache. The service keeps working without it.
type RedisChecker struct {
	rdb *redis.Client
}

// NewRedisChecker creates a redis health checker
func NewRedisChecker(rdb *redis.Client) *RedisChecker {
	return &RedisChecker{rdb: rdb}
}

func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisChecker) IsCritical() bool {
	return false
}

func (r *RedisChecker) Name() string {
	return "redis"
}

// StoreChecker checks that the user store answers a list query
type StoreChecker struct {
	store users.UserStore
}

// NewStoreChecker creates a user store health checker
func NewStoreChecker(store users.UserStore) *StoreChecker {
	return &StoreChecker{store: store}
}

func (s *StoreChecker) HealthCheck(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("user store is nil")
	}
	_, err := s.store.ListUsers(ctx)
	return err
}

func (s *StoreChecker) IsCritical() bool {
	return true
}

func (s *StoreChecker) Name() string {
	return "user_store"
}
