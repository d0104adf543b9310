package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/callrelay/internal/models"
	"github.com/yoockh/callrelay/internal/utils"
	"gorm.io/gorm"
)

type SummaryRepo interface {
	Insert(ctx context.Context, s *models.CallSummary) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.CallSummary, error)
}

type summaryRepo struct {
	db *gorm.DB
}

func NewSummaryRepo(db *gorm.DB) SummaryRepo {
	return &summaryRepo{db: db}
}

func (r *summaryRepo) Insert(ctx context.Context, s *models.CallSummary) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *summaryRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.CallSummary, error) {
	var row models.CallSummary
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
