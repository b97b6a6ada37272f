package parser

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

func newTestParser() *Parser {
	logger := logging.NewStructuredLogger("parser-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return New(logger, metrics.NewCollectorWith(prometheus.NewRegistry(), "test"))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParse_SingleBlock(t *testing.T) {
	input := "Journée du 05/01/2025\n" +
		"Heures\tPrévisionJ-1\tPrévisionJ\tConsommation\n" +
		"00:00\t1000.5\t1020.0\t990.2\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}

	r := table.Records[0]
	if !r.Date.Equal(date(2025, time.January, 5)) {
		t.Errorf("Date = %v, want 2025-01-05", r.Date)
	}
	if r.Heures != "00:00" {
		t.Errorf("Heures = %q, want %q", r.Heures, "00:00")
	}
	if !almostEqual(r.PrevisionJ1, 1000.5) {
		t.Errorf("PrevisionJ1 = %v, want 1000.5", r.PrevisionJ1)
	}
	if !almostEqual(r.PrevisionJ, 1020.0) {
		t.Errorf("PrevisionJ = %v, want 1020.0", r.PrevisionJ)
	}
	if !almostEqual(r.Consommation, 990.2) {
		t.Errorf("Consommation = %v, want 990.2", r.Consommation)
	}
}

func TestParse_RowValidation(t *testing.T) {
	tests := []struct {
		name     string
		row      string
		wantRows int
	}{
		{
			name:     "valid row with four fields",
			row:      "01:00\t100\t200\t300",
			wantRows: 1,
		},
		{
			name:     "valid row with extra fields",
			row:      "01:00\t100\t200\t300\textra",
			wantRows: 1,
		},
		{
			name:     "too few fields",
			row:      "01:00\t100\t200",
			wantRows: 0,
		},
		{
			name:     "non-numeric second field",
			row:      "01:00\tND\t200\t300",
			wantRows: 0,
		},
		{
			name:     "non-numeric fourth field",
			row:      "01:00\t100\t200\t-",
			wantRows: 0,
		},
		{
			name:     "negative and decimal values",
			row:      "01:00\t-12.5\t0\t44000.75",
			wantRows: 1,
		},
		{
			name:     "fields padded with spaces",
			row:      "01:00\t 100 \t 200 \t 300 ",
			wantRows: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "Journée du 05/01/2025\nHeures\n" + tt.row + "\n"

			table, err := newTestParser().Parse(strings.NewReader(input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			if table.Len() != tt.wantRows {
				t.Errorf("Len() = %d, want %d", table.Len(), tt.wantRows)
			}
		})
	}
}

func TestParse_TimeLabelKeptVerbatim(t *testing.T) {
	input := "Journée du 05/01/2025\nHeures\n23h45\t1\t2\t3\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 || table.Records[0].Heures != "23h45" {
		t.Errorf("Heures = %q, want %q", table.Records[0].Heures, "23h45")
	}
}

func TestParse_EmptyBlockDropped(t *testing.T) {
	input := "Journée du 05/01/2025\n" +
		"Heures\n" +
		"garbage line without tabs\n" +
		"Journée du 06/01/2025\n" +
		"Heures\n" +
		"00:00\t1\t2\t3\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if !table.Records[0].Date.Equal(date(2025, time.January, 6)) {
		t.Errorf("Date = %v, want 2025-01-06", table.Records[0].Date)
	}
}

func TestParse_TwoBlocksKeepOrderAndDates(t *testing.T) {
	input := "Journée du 05/01/2025\n" +
		"Heures\n" +
		"00:00\t1\t2\t3\n" +
		"00:30\t4\t5\t6\n" +
		"\n" +
		"Journée du 06/01/2025\n" +
		"Heures\n" +
		"00:00\t7\t8\t9\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}

	wantDates := []time.Time{
		date(2025, time.January, 5),
		date(2025, time.January, 5),
		date(2025, time.January, 6),
	}
	wantHeures := []string{"00:00", "00:30", "00:00"}

	distinct := map[time.Time]bool{}
	for i, r := range table.Records {
		if !r.Date.Equal(wantDates[i]) {
			t.Errorf("Records[%d].Date = %v, want %v", i, r.Date, wantDates[i])
		}
		if r.Heures != wantHeures[i] {
			t.Errorf("Records[%d].Heures = %q, want %q", i, r.Heures, wantHeures[i])
		}
		distinct[r.Date] = true
	}

	if len(distinct) != 2 {
		t.Errorf("distinct dates = %d, want 2", len(distinct))
	}
}

func TestParse_StrayColumnHeaderClearsAccumulator(t *testing.T) {
	input := "Journée du 05/01/2025\n" +
		"Heures\n" +
		"00:00\t1\t2\t3\n" +
		"Heures\n" +
		"00:30\t4\t5\t6\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if table.Records[0].Heures != "00:30" {
		t.Errorf("Heures = %q, want %q", table.Records[0].Heures, "00:30")
	}
}

func TestParse_DataIgnoredBeforeColumnHeader(t *testing.T) {
	input := "Journée du 05/01/2025\n" +
		"00:00\t1\t2\t3\n" +
		"Heures\n" +
		"00:30\t4\t5\t6\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if table.Records[0].Heures != "00:30" {
		t.Errorf("Heures = %q, want %q", table.Records[0].Heures, "00:30")
	}
}

func TestParse_DateHeaderResetsIncompleteBlock(t *testing.T) {
	// First header never reaches its column header; its state must not leak
	// into the second block
	input := "Journée du 05/01/2025\n" +
		"Journée du 06/01/2025\n" +
		"Heures\n" +
		"00:00\t1\t2\t3\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	if !table.Records[0].Date.Equal(date(2025, time.January, 6)) {
		t.Errorf("Date = %v, want 2025-01-06", table.Records[0].Date)
	}
}

func TestParse_MalformedFileYieldsEmptyTable(t *testing.T) {
	inputs := map[string]string{
		"no headers at all": "00:00\t1\t2\t3\nsome text\n",
		"empty input":       "",
		"only blank lines":  "\n\n   \n",
		"header no data":    "Journée du 05/01/2025\nHeures\n",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			table, err := newTestParser().Parse(strings.NewReader(input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if table.Len() != 0 {
				t.Errorf("Len() = %d, want 0", table.Len())
			}
		})
	}
}

func TestParse_RowCountIsSumOfValidRows(t *testing.T) {
	input := "Journée du 01/02/2025\n" +
		"Heures\n" +
		"00:00\t1\t2\t3\n" +
		"bad\trow\n" +
		"00:30\t4\t5\t6\n" +
		"Journée du 02/02/2025\n" +
		"Heures\n" +
		"00:00\t7\tx\t9\n" +
		"00:30\t10\t11\t12\n"

	table, err := newTestParser().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (2 valid in block 1 + 1 valid in block 2)", table.Len())
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.xls")

	content := "Journée du 05/01/2025\nHeures\n00:00\t1000.5\t1020.0\t990.2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := newTestParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestParseFile_MissingFile(t *testing.T) {
	_, err := newTestParser().ParseFile(filepath.Join(t.TempDir(), "missing.xls"))
	if err == nil {
		t.Fatal("ParseFile() expected error for missing file")
	}
}
