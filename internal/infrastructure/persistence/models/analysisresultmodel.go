package models

import "time"

type AnalysisResultModel struct {
	ID              uint   `gorm:"primaryKey"`
	TicketID        string `gorm:"size:32;not null;index"`
	ChainHash       string `gorm:"size:64;not null;index"`
	TicketCount     int    `gorm:"not null"`
	TimelineEvents  string `gorm:"type:text"`
	RelationshipMap string `gorm:"type:text"`
	AnomaliesIssues string `gorm:"type:text"`
	ServiceSummary  string `gorm:"type:text"`
	FullAnalysis    string `gorm:"type:text;not null"`
	CreatedAt       time.Time
}

func (AnalysisResultModel) TableName() string {
	return "analysis_results"
}
