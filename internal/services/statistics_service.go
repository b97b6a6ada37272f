package services

import (
	"context"
	"fmt"
	"time"

	"conso-platform/internal/models"
	"conso-platform/internal/repository"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// StatisticsService handles daily consumption statistics
type StatisticsService struct {
	repo    repository.ConsumptionRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.ConsumptionRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CalculateAllStatistics recalculates daily statistics for every stored date
func (s *StatisticsService) CalculateAllStatistics(ctx context.Context) error {
	startTime := time.Now()

	s.logger.Info(ctx, "[STATS_CALC_START] Starting statistics calculation", logging.Fields{
		"stage": "INITIALIZATION",
	})

	dates, err := s.repo.ListDates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list observation dates: %w", err)
	}

	totalStats := 0
	for _, date := range dates {
		stats, err := s.repo.CalculateDailyStatistics(ctx, date)
		if err != nil {
			s.logger.Error(ctx, "[STATS_CALC_ERROR] Failed to calculate statistics", logging.Fields{
				"date": date.Format(models.DateFormat),
			}, err)
			continue
		}

		if stats.ObservationCount == 0 {
			continue
		}

		if err := s.repo.UpsertDailyStatistics(ctx, stats); err != nil {
			s.logger.Error(ctx, "[STATS_SAVE_ERROR] Failed to save statistics", logging.Fields{
				"date": date.Format(models.DateFormat),
			}, err)
			continue
		}
		totalStats++
	}

	s.logger.Info(ctx, "[STATS_CALC_COMPLETE] Statistics calculation completed", logging.Fields{
		"total_dates":      len(dates),
		"total_statistics": totalStats,
		"duration_seconds": time.Since(startTime).Seconds(),
		"stage":            "COMPLETE",
	})

	return nil
}

// GetStatistics retrieves daily statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.DailyStatistics, int, error) {
	return s.repo.GetDailyStatistics(ctx, filter)
}
