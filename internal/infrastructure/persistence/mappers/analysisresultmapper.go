package mappers

import (
	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/infrastructure/persistence/models"
)

type AnalysisResultMapper interface {
	ToEntity(model *models.AnalysisResultModel) *analysis.AnalysisResult
	ToModel(entity *analysis.AnalysisResult) *models.AnalysisResultModel
	ToEntities(models []*models.AnalysisResultModel) []*analysis.AnalysisResult
}

type AnalysisResultMapperImpl struct{}

func NewAnalysisResultMapper() AnalysisResultMapper {
	return &AnalysisResultMapperImpl{}
}

func (m *AnalysisResultMapperImpl) ToEntity(model *models.AnalysisResultModel) *analysis.AnalysisResult {
	if model == nil {
		return nil
	}
	return &analysis.AnalysisResult{
		ID:              model.ID,
		TicketID:        model.TicketID,
		ChainHash:       model.ChainHash,
		TicketCount:     model.TicketCount,
		TimelineEvents:  model.TimelineEvents,
		RelationshipMap: model.RelationshipMap,
		AnomaliesIssues: model.AnomaliesIssues,
		ServiceSummary:  model.ServiceSummary,
		FullAnalysis:    model.FullAnalysis,
		CreatedAt:       model.CreatedAt,
	}
}

func (m *AnalysisResultMapperImpl) ToModel(entity *analysis.AnalysisResult) *models.AnalysisResultModel {
	if entity == nil {
		return nil
	}
	return &models.AnalysisResultModel{
		ID:              entity.ID,
		TicketID:        entity.TicketID,
		ChainHash:       entity.ChainHash,
		TicketCount:     entity.TicketCount,
		TimelineEvents:  entity.TimelineEvents,
		RelationshipMap: entity.RelationshipMap,
		AnomaliesIssues: entity.AnomaliesIssues,
		ServiceSummary:  entity.ServiceSummary,
		FullAnalysis:    entity.FullAnalysis,
		CreatedAt:       entity.CreatedAt,
	}
}

func (m *AnalysisResultMapperImpl) ToEntities(modelList []*models.AnalysisResultModel) []*analysis.AnalysisResult {
	entities := make([]*analysis.AnalysisResult, 0, len(modelList))
	for _, model := range modelList {
		entities = append(entities, m.ToEntity(model))
	}
	return entities
}
