package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"conso-platform/internal/datagouv"
	"conso-platform/internal/models"
	"conso-platform/internal/parser"
	"conso-platform/internal/repository"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// IngestionService runs the consumption pipeline: download dataset resources,
// consolidate the block exports, export CSV, optionally load PostgreSQL
type IngestionService struct {
	client  *datagouv.Client
	parser  *parser.Parser
	repo    repository.ConsumptionRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestOptions configures one ingestion run
type IngestOptions struct {
	// SkipDownload consolidates already-downloaded files without touching the
	// portal
	SkipDownload bool

	// Force re-fetches dataset metadata, bypassing the session cache
	Force bool

	// DownloadDir is where resource files are stored and read from
	DownloadDir string

	// SourceGlob selects the files to consolidate, relative to DownloadDir
	SourceGlob string

	// URLFilter optionally restricts which resources are downloaded
	URLFilter datagouv.URLFilter

	// OutputCSV, when non-empty, is where the consolidated table is written
	OutputCSV string

	// BatchSize is the number of records per database batch
	BatchSize int
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	ResourcesDownloaded int
	ResourcesSkipped    int
	ResourcesFiltered   int
	ResourcesFailed     int
	FilesParsed         int
	RowsConsolidated    int
	RecordsIngested     int
	Duration            time.Duration
	Errors              []string
}

// NewIngestionService creates a new ingestion service. repo may be nil, in
// which case the run stops after CSV export.
func NewIngestionService(
	client *datagouv.Client,
	blockParser *parser.Parser,
	repo repository.ConsumptionRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IngestionService {
	return &IngestionService{
		client:  client,
		parser:  blockParser,
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Run executes the pipeline according to opts
func (s *IngestionService) Run(ctx context.Context, opts IngestOptions) (*IngestionResult, error) {
	startTime := time.Now()

	if opts.SourceGlob == "" {
		opts.SourceGlob = "*.xls"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	s.logger.Info(ctx, "[INGEST_START] Starting consumption data ingestion", logging.Fields{
		"download_dir":  opts.DownloadDir,
		"source_glob":   opts.SourceGlob,
		"skip_download": opts.SkipDownload,
		"batch_size":    opts.BatchSize,
		"stage":         "INITIALIZATION",
	})

	result := &IngestionResult{
		Errors: make([]string, 0),
	}

	if !opts.SkipDownload {
		dl, err := s.client.DownloadResources(ctx, opts.DownloadDir, opts.Force, opts.URLFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to download resources: %w", err)
		}

		result.ResourcesDownloaded = dl.Downloaded
		result.ResourcesSkipped = dl.Skipped
		result.ResourcesFiltered = dl.Filtered
		result.ResourcesFailed = len(dl.Failed)
		for _, f := range dl.Failed {
			result.Errors = append(result.Errors, fmt.Sprintf("download %s: %v", f.URL, f.Err))
		}

		s.logger.Info(ctx, "[INGEST_DOWNLOAD] Resource download completed", logging.Fields{
			"downloaded": dl.Downloaded,
			"skipped":    dl.Skipped,
			"filtered":   dl.Filtered,
			"failed":     len(dl.Failed),
			"stage":      "DOWNLOAD",
		})
	}

	table, err := s.Consolidate(ctx, opts.DownloadDir, opts.SourceGlob, result)
	if err != nil {
		return nil, err
	}

	result.RowsConsolidated = table.Len()

	if opts.OutputCSV != "" {
		if err := table.SaveCSV(opts.OutputCSV); err != nil {
			return nil, fmt.Errorf("failed to export CSV: %w", err)
		}

		s.logger.Info(ctx, "[INGEST_CSV] Consolidated table exported", logging.Fields{
			"output": opts.OutputCSV,
			"rows":   table.Len(),
			"stage":  "EXPORT",
		})
	}

	if s.repo != nil {
		ingested, err := s.IngestTable(ctx, table, opts.BatchSize)
		if err != nil {
			return nil, err
		}
		result.RecordsIngested = ingested
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Ingestion completed", logging.Fields{
		"files_parsed":     result.FilesParsed,
		"rows":             result.RowsConsolidated,
		"records_ingested": result.RecordsIngested,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
		"stage":            "COMPLETE",
	})

	return result, nil
}

// Consolidate parses every file matching glob under dir and concatenates the
// resulting tables in filename order. Per-file failures are logged, recorded
// in result, and do not abort the remaining files.
func (s *IngestionService) Consolidate(ctx context.Context, dir, glob string, result *IngestionResult) (*models.ConsolidatedTable, error) {
	files, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no source files matching %q in %s", glob, dir)
	}

	table := &models.ConsolidatedTable{}

	for _, filePath := range files {
		fileTable, err := s.parser.ParseFile(filePath)
		if err != nil {
			errMsg := fmt.Sprintf("failed to parse %s: %v", filePath, err)
			result.Errors = append(result.Errors, errMsg)
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File parsing failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			continue
		}

		table.Append(fileTable.Records)
		result.FilesParsed++

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File consolidated", logging.Fields{
			"file_path": filePath,
			"rows":      fileTable.Len(),
			"stage":     "FILE_COMPLETE",
		})
	}

	return table, nil
}

// IngestTable loads the consolidated table into the repository in batches
func (s *IngestionService) IngestTable(ctx context.Context, table *models.ConsolidatedTable, batchSize int) (int, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("no repository configured")
	}

	ingested := 0
	batch := make([]*models.ConsumptionRecord, 0, batchSize)

	for i := range table.Records {
		batch = append(batch, &table.Records[i])

		if len(batch) >= batchSize {
			if err := s.repo.CreateRecordsBatch(ctx, batch); err != nil {
				return ingested, fmt.Errorf("failed to insert batch: %w", err)
			}
			ingested += len(batch)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := s.repo.CreateRecordsBatch(ctx, batch); err != nil {
			return ingested, fmt.Errorf("failed to insert final batch: %w", err)
		}
		ingested += len(batch)
	}

	return ingested, nil
}
