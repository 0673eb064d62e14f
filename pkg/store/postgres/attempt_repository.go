package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Append(ctx context.Context, attempt *model.Attempt) error {
	return translateError(r.db.WithContext(ctx).Create(attempt).Error)
}

func (r *AttemptRepository) Window(ctx context.Context, from, to time.Time) (ledger.AttemptStats, error) {
	var stats ledger.AttemptStats
	err := r.db.WithContext(ctx).
		Model(&model.Attempt{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE success) AS successful").
		Where("source = ? AND attempted_at BETWEEN ? AND ?", string(model.SourceTransport), from, to).
		Scan(&stats).Error
	return stats, err
}

func (r *AttemptRepository) ForEntry(ctx context.Context, ref model.EntryRef) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("ledger = ? AND entry_id = ?", string(ref.Ledger), ref.ID).
		Order("attempted_at ASC, id ASC").
		Find(&attempts).Error
	return attempts, err
}
