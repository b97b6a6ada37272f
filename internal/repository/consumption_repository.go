package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"conso-platform/internal/models"
	"conso-platform/pkg/database"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// ConsumptionRepository provides data access for consolidated consumption data
type ConsumptionRepository interface {
	// Record operations
	CreateRecordsBatch(ctx context.Context, records []*models.ConsumptionRecord) error
	GetRecords(ctx context.Context, filter RecordFilter) ([]*models.ConsumptionRecord, int, error)
	GetRecordByDateTime(ctx context.Context, date time.Time, timeLabel string) (*models.ConsumptionRecord, error)
	ListDates(ctx context.Context) ([]time.Time, error)

	// Statistics operations
	UpsertDailyStatistics(ctx context.Context, stats *models.DailyStatistics) error
	GetDailyStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.DailyStatistics, int, error)
	CalculateDailyStatistics(ctx context.Context, date time.Time) (*models.DailyStatistics, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// RecordFilter defines filters for querying consumption records
type RecordFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// StatisticsFilter defines filters for querying daily statistics
type StatisticsFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// consumptionRepository implements ConsumptionRepository
type consumptionRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewConsumptionRepository creates a new consumption repository
func NewConsumptionRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ConsumptionRepository {
	return &consumptionRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// CreateRecordsBatch inserts consumption records in a single transaction.
// Re-ingesting the same export is an upsert on (observation_date, time_label).
func (r *consumptionRepository) CreateRecordsBatch(ctx context.Context, records []*models.ConsumptionRecord) error {
	if len(records) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(records),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO consumption_observations (
			observation_date, time_label,
			prevision_j1_mw, prevision_j_mw, consommation_mw,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (observation_date, time_label) DO UPDATE SET
			prevision_j1_mw = EXCLUDED.prevision_j1_mw,
			prevision_j_mw = EXCLUDED.prevision_j_mw,
			consommation_mw = EXCLUDED.consommation_mw
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, record := range records {
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := stmt.ExecContext(ctx,
			record.Date,
			record.Heures,
			record.PrevisionJ1,
			record.PrevisionJ,
			record.Consommation,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(records)))

	return nil
}

// GetRecords retrieves consumption records with filtering and pagination
func (r *consumptionRepository) GetRecords(ctx context.Context, filter RecordFilter) ([]*models.ConsumptionRecord, int, error) {
	query := `
		SELECT id, observation_date, time_label,
		       prevision_j1_mw, prevision_j_mw, consommation_mw,
		       created_at
		FROM consumption_observations
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND observation_date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND observation_date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query += " ORDER BY observation_date, time_label"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var records []*models.ConsumptionRecord
	err = r.db.SelectContext(ctx, "get_observations", &records, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get records: %w", err)
	}

	return records, totalCount, nil
}

// GetRecordByDateTime retrieves a specific record by date and time label
func (r *consumptionRepository) GetRecordByDateTime(ctx context.Context, date time.Time, timeLabel string) (*models.ConsumptionRecord, error) {
	query := `
		SELECT id, observation_date, time_label,
		       prevision_j1_mw, prevision_j_mw, consommation_mw,
		       created_at
		FROM consumption_observations
		WHERE observation_date = $1 AND time_label = $2
	`

	var record models.ConsumptionRecord
	err := r.db.GetContext(ctx, "get_observation_by_datetime", &record, query, date, timeLabel)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "consumption_observation",
			ID:       fmt.Sprintf("%s:%s", date.Format(models.DateFormat), timeLabel),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return &record, nil
}

// ListDates returns the distinct observation dates present in the store
func (r *consumptionRepository) ListDates(ctx context.Context) ([]time.Time, error) {
	query := `
		SELECT DISTINCT observation_date
		FROM consumption_observations
		ORDER BY observation_date
	`

	var dates []time.Time
	err := r.db.SelectContext(ctx, "list_dates", &dates, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dates: %w", err)
	}

	return dates, nil
}

// UpsertDailyStatistics creates or updates daily statistics
func (r *consumptionRepository) UpsertDailyStatistics(ctx context.Context, stats *models.DailyStatistics) error {
	query := `
		INSERT INTO consumption_statistics (
			observation_date,
			avg_consommation_mw, peak_consommation_mw,
			avg_forecast_err_j1_mw, avg_forecast_err_j_mw,
			observation_count,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (observation_date) DO UPDATE SET
			avg_consommation_mw = EXCLUDED.avg_consommation_mw,
			peak_consommation_mw = EXCLUDED.peak_consommation_mw,
			avg_forecast_err_j1_mw = EXCLUDED.avg_forecast_err_j1_mw,
			avg_forecast_err_j_mw = EXCLUDED.avg_forecast_err_j_mw,
			observation_count = EXCLUDED.observation_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		stats.Date,
		stats.AvgConsommationMW,
		stats.PeakConsommationMW,
		stats.AvgForecastErrJ1MW,
		stats.AvgForecastErrJMW,
		stats.ObservationCount,
		stats.CreatedAt,
		stats.UpdatedAt,
	).Scan(&stats.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert statistics: %w", err)
	}

	return nil
}

// GetDailyStatistics retrieves daily statistics with filtering and pagination
func (r *consumptionRepository) GetDailyStatistics(ctx context.Context, filter StatisticsFilter) ([]*models.DailyStatistics, int, error) {
	query := `
		SELECT id, observation_date,
		       avg_consommation_mw, peak_consommation_mw,
		       avg_forecast_err_j1_mw, avg_forecast_err_j_mw,
		       observation_count,
		       created_at, updated_at
		FROM consumption_statistics
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND observation_date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND observation_date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_statistics", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	query += " ORDER BY observation_date"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var statistics []*models.DailyStatistics
	err = r.db.SelectContext(ctx, "get_statistics", &statistics, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	return statistics, totalCount, nil
}

// CalculateDailyStatistics aggregates the stored observations for one date
func (r *consumptionRepository) CalculateDailyStatistics(ctx context.Context, date time.Time) (*models.DailyStatistics, error) {
	timer := time.Now()
	defer func() {
		r.metrics.StatsCalculationDuration.Observe(time.Since(timer).Seconds())
		r.logger.Debug(ctx, "[REPO_CALC_STATS] Statistics calculated", logging.Fields{
			"date":        date.Format(models.DateFormat),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	query := `
		SELECT
			COUNT(*) as observation_count,
			AVG(consommation_mw) as avg_consommation_mw,
			MAX(consommation_mw) as peak_consommation_mw,
			AVG(ABS(consommation_mw - prevision_j1_mw)) as avg_forecast_err_j1_mw,
			AVG(ABS(consommation_mw - prevision_j_mw)) as avg_forecast_err_j_mw
		FROM consumption_observations
		WHERE observation_date = $1
	`

	var result struct {
		ObservationCount   int      `db:"observation_count"`
		AvgConsommationMW  *float64 `db:"avg_consommation_mw"`
		PeakConsommationMW *float64 `db:"peak_consommation_mw"`
		AvgForecastErrJ1MW *float64 `db:"avg_forecast_err_j1_mw"`
		AvgForecastErrJMW  *float64 `db:"avg_forecast_err_j_mw"`
	}

	err := r.db.GetContext(ctx, "calculate_statistics", &result, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate statistics: %w", err)
	}

	now := time.Now().UTC()
	stats := &models.DailyStatistics{
		Date:               date,
		ObservationCount:   result.ObservationCount,
		AvgConsommationMW:  result.AvgConsommationMW,
		PeakConsommationMW: result.PeakConsommationMW,
		AvgForecastErrJ1MW: result.AvgForecastErrJ1MW,
		AvgForecastErrJMW:  result.AvgForecastErrJMW,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return stats, nil
}

// HealthCheck performs a repository health check
func (r *consumptionRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
