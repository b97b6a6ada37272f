package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"conso-platform/internal/models"
	"conso-platform/internal/parser"
	"conso-platform/internal/repository"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// fakeRepository records batch inserts in memory
type fakeRepository struct {
	batches [][]*models.ConsumptionRecord
	dates   []time.Time
	stats   []*models.DailyStatistics
}

func (f *fakeRepository) CreateRecordsBatch(ctx context.Context, records []*models.ConsumptionRecord) error {
	batch := make([]*models.ConsumptionRecord, len(records))
	copy(batch, records)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeRepository) GetRecords(ctx context.Context, filter repository.RecordFilter) ([]*models.ConsumptionRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeRepository) GetRecordByDateTime(ctx context.Context, date time.Time, timeLabel string) (*models.ConsumptionRecord, error) {
	return nil, &repository.NotFoundError{Resource: "consumption_observation", ID: timeLabel}
}

func (f *fakeRepository) ListDates(ctx context.Context) ([]time.Time, error) {
	return f.dates, nil
}

func (f *fakeRepository) UpsertDailyStatistics(ctx context.Context, stats *models.DailyStatistics) error {
	f.stats = append(f.stats, stats)
	return nil
}

func (f *fakeRepository) GetDailyStatistics(ctx context.Context, filter repository.StatisticsFilter) ([]*models.DailyStatistics, int, error) {
	return f.stats, len(f.stats), nil
}

func (f *fakeRepository) CalculateDailyStatistics(ctx context.Context, date time.Time) (*models.DailyStatistics, error) {
	count := 0
	for _, batch := range f.batches {
		for _, r := range batch {
			if r.Date.Equal(date) {
				count++
			}
		}
	}
	return &models.DailyStatistics{Date: date, ObservationCount: count}, nil
}

func (f *fakeRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func (f *fakeRepository) totalRecords() int {
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func newTestService(repo repository.ConsumptionRepository) *IngestionService {
	logger := logging.NewStructuredLogger("services-test", "test", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollectorWith(prometheus.NewRegistry(), "test")

	return NewIngestionService(nil, parser.New(logger, collector), repo, logger, collector)
}

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_SkipDownload(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "conso_2024.xls",
		"Journée du 31/12/2024\nHeures\n23:30\t1\t2\t3\n")
	writeSourceFile(t, dir, "conso_2025.xls",
		"Journée du 01/01/2025\nHeures\n00:00\t4\t5\t6\n00:30\t7\t8\t9\n")
	writeSourceFile(t, dir, "notes.txt", "not a source file")

	outputCSV := filepath.Join(dir, "consolidated.csv")

	svc := newTestService(nil)
	result, err := svc.Run(context.Background(), IngestOptions{
		SkipDownload: true,
		DownloadDir:  dir,
		OutputCSV:    outputCSV,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.FilesParsed != 2 {
		t.Errorf("FilesParsed = %d, want 2 (glob must ignore notes.txt)", result.FilesParsed)
	}
	if result.RowsConsolidated != 3 {
		t.Errorf("RowsConsolidated = %d, want 3", result.RowsConsolidated)
	}
	if result.RecordsIngested != 0 {
		t.Errorf("RecordsIngested = %d, want 0 without a repository", result.RecordsIngested)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	if _, err := os.Stat(outputCSV); err != nil {
		t.Errorf("consolidated CSV missing: %v", err)
	}
}

func TestRun_SkipDownload_WithRepository(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "conso.xls",
		"Journée du 05/01/2025\nHeures\n"+
			"00:00\t1\t2\t3\n"+
			"00:30\t4\t5\t6\n"+
			"01:00\t7\t8\t9\n")

	repo := &fakeRepository{}
	svc := newTestService(repo)

	result, err := svc.Run(context.Background(), IngestOptions{
		SkipDownload: true,
		DownloadDir:  dir,
		BatchSize:    2,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.RecordsIngested != 3 {
		t.Errorf("RecordsIngested = %d, want 3", result.RecordsIngested)
	}
	if repo.totalRecords() != 3 {
		t.Errorf("repository records = %d, want 3", repo.totalRecords())
	}
	if len(repo.batches) != 2 {
		t.Errorf("batches = %d, want 2 (batch size 2 over 3 records)", len(repo.batches))
	}
}

func TestConsolidate_NoMatchingFiles(t *testing.T) {
	svc := newTestService(nil)

	result := &IngestionResult{}
	_, err := svc.Consolidate(context.Background(), t.TempDir(), "*.xls", result)
	if err == nil {
		t.Fatal("Consolidate() expected error when no files match")
	}
}

func TestConsolidate_KeepsFilenameOrder(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "a_2024.xls",
		"Journée du 01/06/2024\nHeures\n00:00\t1\t2\t3\n")
	writeSourceFile(t, dir, "b_2025.xls",
		"Journée du 01/06/2025\nHeures\n00:00\t4\t5\t6\n")

	svc := newTestService(nil)

	result := &IngestionResult{}
	table, err := svc.Consolidate(context.Background(), dir, "*.xls", result)
	if err != nil {
		t.Fatalf("Consolidate() error = %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
	if table.Records[0].Date.Year() != 2024 || table.Records[1].Date.Year() != 2025 {
		t.Errorf("rows out of filename order: %v, %v", table.Records[0].Date, table.Records[1].Date)
	}
}

func TestIngestTable_FlushesFinalPartialBatch(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(repo)

	table := &models.ConsolidatedTable{}
	for i := 0; i < 5; i++ {
		table.Append([]models.ConsumptionRecord{
			{Date: time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC), Heures: "00:00"},
		})
	}

	ingested, err := svc.IngestTable(context.Background(), table, 2)
	if err != nil {
		t.Fatalf("IngestTable() error = %v", err)
	}

	if ingested != 5 {
		t.Errorf("ingested = %d, want 5", ingested)
	}
	if len(repo.batches) != 3 {
		t.Errorf("batches = %d, want 3 (2+2+1)", len(repo.batches))
	}
	if len(repo.batches[2]) != 1 {
		t.Errorf("final batch size = %d, want 1", len(repo.batches[2]))
	}
}

func TestIngestTable_NoRepository(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.IngestTable(context.Background(), &models.ConsolidatedTable{}, 10)
	if err == nil {
		t.Fatal("IngestTable() expected error without repository")
	}
}
