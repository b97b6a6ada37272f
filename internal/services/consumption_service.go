package services

import (
	"context"
	"time"

	"conso-platform/internal/models"
	"conso-platform/internal/repository"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// ConsumptionService handles consumption data queries
type ConsumptionService struct {
	repo    repository.ConsumptionRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewConsumptionService creates a new consumption service
func NewConsumptionService(repo repository.ConsumptionRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ConsumptionService {
	return &ConsumptionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetRecords retrieves consumption records with filtering
func (s *ConsumptionService) GetRecords(ctx context.Context, filter repository.RecordFilter) ([]*models.ConsumptionRecord, int, error) {
	return s.repo.GetRecords(ctx, filter)
}

// GetRecord retrieves a single record by date and time label
func (s *ConsumptionService) GetRecord(ctx context.Context, date time.Time, timeLabel string) (*models.ConsumptionRecord, error) {
	return s.repo.GetRecordByDateTime(ctx, date, timeLabel)
}
