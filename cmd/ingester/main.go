package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"conso-platform/internal/config"
	"conso-platform/internal/datagouv"
	"conso-platform/internal/parser"
	"conso-platform/internal/repository"
	"conso-platform/internal/services"
	"conso-platform/pkg/database"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

func main() {
	datasetID := flag.String("dataset-id", "", "data.gouv.fr dataset identifier (overrides config)")
	downloadDir := flag.String("download-dir", "", "Directory for downloaded resource files (overrides config)")
	sourceGlob := flag.String("source-glob", "*.xls", "Glob selecting the export files to consolidate")
	output := flag.String("output", "", "Path of the consolidated CSV output (empty: no CSV export)")
	urlContains := flag.String("filter", "", "Only download resource URLs containing this substring (overrides config)")
	skipDownload := flag.Bool("skip-download", false, "Skip the download step and consolidate existing files")
	force := flag.Bool("force", false, "Re-fetch dataset metadata, bypassing the session cache")
	withDB := flag.Bool("with-db", false, "Ingest the consolidated table into PostgreSQL")
	batchSize := flag.Int("batch-size", 1000, "Number of records per database batch")
	calculateStats := flag.Bool("calculate-stats", false, "Recalculate daily statistics after ingestion (implies -with-db)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *datasetID != "" {
		cfg.Dataset.ID = *datasetID
	}
	if *downloadDir != "" {
		cfg.Dataset.DownloadDir = *downloadDir
	}
	if *urlContains != "" {
		cfg.Dataset.URLContains = *urlContains
	}
	if *calculateStats {
		*withDB = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("conso-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting consumption data ingestion", logging.Fields{
		"version":       "1.0.0",
		"dataset_id":    cfg.Dataset.ID,
		"download_dir":  cfg.Dataset.DownloadDir,
		"skip_download": *skipDownload,
		"with_db":       *withDB,
	})

	metricsCollector := metrics.NewCollector("conso_ingester")

	client := datagouv.NewClient(datagouv.Options{
		BaseURL:             cfg.Dataset.BaseURL,
		DatasetID:           cfg.Dataset.ID,
		Timeout:             cfg.Dataset.Timeout,
		MaxRetries:          cfg.Dataset.MaxRetries,
		SleepBetweenRetries: cfg.Dataset.SleepBetweenRetries,
	}, logger, metricsCollector)

	blockParser := parser.New(logger, metricsCollector)

	var repo repository.ConsumptionRepository
	var statsService *services.StatisticsService

	if *withDB {
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}

		db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		repo = repository.NewConsumptionRepository(db, logger, metricsCollector)
		statsService = services.NewStatisticsService(repo, logger, metricsCollector)
	}

	ingestionService := services.NewIngestionService(client, blockParser, repo, logger, metricsCollector)

	var urlFilter datagouv.URLFilter
	if cfg.Dataset.URLContains != "" {
		substr := cfg.Dataset.URLContains
		urlFilter = func(url string) bool {
			return strings.Contains(url, substr)
		}
	}

	result, err := ingestionService.Run(ctx, services.IngestOptions{
		SkipDownload: *skipDownload,
		Force:        *force,
		DownloadDir:  cfg.Dataset.DownloadDir,
		SourceGlob:   *sourceGlob,
		URLFilter:    urlFilter,
		OutputCSV:    *output,
		BatchSize:    *batchSize,
	})
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Resources Downloaded: %d\n", result.ResourcesDownloaded)
	fmt.Printf("Resources Skipped:    %d\n", result.ResourcesSkipped)
	fmt.Printf("Resources Filtered:   %d\n", result.ResourcesFiltered)
	fmt.Printf("Resources Failed:     %d\n", result.ResourcesFailed)
	fmt.Printf("Files Consolidated:   %d\n", result.FilesParsed)
	fmt.Printf("Rows Consolidated:    %d\n", result.RowsConsolidated)
	if *withDB {
		fmt.Printf("Records Ingested:     %d\n", result.RecordsIngested)
	}
	fmt.Printf("Duration:             %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	if *calculateStats {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("CALCULATING STATISTICS")
		fmt.Println(strings.Repeat("=", 80))

		if err := statsService.CalculateAllStatistics(ctx); err != nil {
			logger.Error(ctx, "[STATS_ERROR] Statistics calculation failed", logging.Fields{}, err)
			fmt.Printf("Statistics calculation failed: %v\n", err)
		} else {
			fmt.Println("Statistics calculation completed successfully")
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"rows_consolidated": result.RowsConsolidated,
		"records_ingested":  result.RecordsIngested,
		"duration_seconds":  result.Duration.Seconds(),
	})
}
