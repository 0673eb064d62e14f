package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

type Store struct {
	db *gorm.DB
	repositories
}

var _ ledger.Store = (*Store)(nil)

// NewStore connects with exponential backoff, up to cfg.ConnectRetries retries.
func NewStore(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	connect := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err != nil {
			log.Warn("database not reachable, retrying", zap.String("host", cfg.Host), zap.Error(err))
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return NewStoreFromDB(db), nil
}

func NewStoreFromDB(db *gorm.DB) *Store {
	return &Store{db: db, repositories: newRepositories(db)}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.QueueEntry{},
		&model.OutboxEntry{},
		&model.Attempt{},
	)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := newRepositories(tx)
		return fn(&repos)
	})
}

type repositories struct {
	queue    *LedgerRepository[*model.QueueEntry]
	outbox   *LedgerRepository[*model.OutboxEntry]
	attempts *AttemptRepository
}

func newRepositories(db *gorm.DB) repositories {
	return repositories{
		queue:    NewQueueRepository(db),
		outbox:   NewOutboxRepository(db),
		attempts: NewAttemptRepository(db),
	}
}

func (r *repositories) Queue() ledger.Ledger[*model.QueueEntry] {
	return r.queue
}

func (r *repositories) Outbox() ledger.Ledger[*model.OutboxEntry] {
	return r.outbox
}

func (r *repositories) Attempts() ledger.AttemptLog {
	return r.attempts
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ledger.ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
