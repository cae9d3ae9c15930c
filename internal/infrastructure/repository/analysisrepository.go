package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/infrastructure/persistence/mappers"
	"chainalyzer/internal/infrastructure/persistence/models"
	"chainalyzer/internal/shared/errors"
)

type AnalysisRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.AnalysisResultMapper
}

func NewAnalysisRepository(db *gorm.DB) (analysis.Repository, error) {
	// The analysis store is owned by this process; a single append-only table
	// managed through AutoMigrate.
	if err := db.AutoMigrate(&models.AnalysisResultModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate analysis store: %w", err)
	}
	return &AnalysisRepositoryImpl{
		db:     db,
		mapper: mappers.NewAnalysisResultMapper(),
	}, nil
}

func (r *AnalysisRepositoryImpl) Save(ctx context.Context, result *analysis.AnalysisResult) error {
	model := r.mapper.ToModel(result)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save analysis result: %w", err)
	}

	result.ID = model.ID
	result.CreatedAt = model.CreatedAt
	return nil
}

func (r *AnalysisRepositoryImpl) GetByTicket(ctx context.Context, ticketID string) (*analysis.AnalysisResult, error) {
	var model models.AnalysisResultModel

	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("no analysis stored for ticket", ticketID)
		}
		return nil, fmt.Errorf("failed to get analysis by ticket: %w", err)
	}

	return r.mapper.ToEntity(&model), nil
}

func (r *AnalysisRepositoryImpl) GetByChain(ctx context.Context, chainHash string) ([]*analysis.AnalysisResult, error) {
	var modelList []*models.AnalysisResultModel

	err := r.db.WithContext(ctx).
		Where("chain_hash = ?", chainHash).
		Order("created_at DESC").
		Find(&modelList).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get analyses by chain: %w", err)
	}

	return r.mapper.ToEntities(modelList), nil
}

func (r *AnalysisRepositoryImpl) List(ctx context.Context, skip, limit int) ([]*analysis.AnalysisResult, error) {
	var modelList []*models.AnalysisResultModel

	query := r.db.WithContext(ctx).Order("created_at DESC")
	if skip > 0 {
		query = query.Offset(skip)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&modelList).Error; err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	return r.mapper.ToEntities(modelList), nil
}
