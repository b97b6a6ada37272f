package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestConsolidatedTable_WriteCSV(t *testing.T) {
	table := &ConsolidatedTable{}
	table.Append([]ConsumptionRecord{
		{Date: day(2025, time.January, 5), Heures: "00:00", PrevisionJ1: 1000.5, PrevisionJ: 1020, Consommation: 990.2},
		{Date: day(2025, time.January, 6), Heures: "00:30", PrevisionJ1: -12.5, PrevisionJ: 0, Consommation: 44000.75},
	})

	var sb strings.Builder
	if err := table.WriteCSV(&sb); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	want := "date,Heures,PrévisionJ-1,PrévisionJ,Consommation\n" +
		"2025-01-05,00:00,1000.5,1020,990.2\n" +
		"2025-01-06,00:30,-12.5,0,44000.75\n"

	if sb.String() != want {
		t.Errorf("WriteCSV() output:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestConsolidatedTable_WriteCSV_EmptyTable(t *testing.T) {
	table := &ConsolidatedTable{}

	var sb strings.Builder
	if err := table.WriteCSV(&sb); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	if sb.String() != "date,Heures,PrévisionJ-1,PrévisionJ,Consommation\n" {
		t.Errorf("WriteCSV() output = %q, want header only", sb.String())
	}
}

func TestConsolidatedTable_SaveCSV(t *testing.T) {
	table := &ConsolidatedTable{
		Records: []ConsumptionRecord{
			{Date: day(2025, time.March, 1), Heures: "12:00", PrevisionJ1: 1, PrevisionJ: 2, Consommation: 3},
		},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := table.SaveCSV(path); err != nil {
		t.Fatalf("SaveCSV() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "2025-03-01,12:00,1,2,3") {
		t.Errorf("file content = %q", data)
	}
}

func TestConsolidatedTable_DateRange(t *testing.T) {
	table := &ConsolidatedTable{
		Records: []ConsumptionRecord{
			{Date: day(2025, time.January, 7)},
			{Date: day(2025, time.January, 3)},
			{Date: day(2025, time.January, 5)},
		},
	}

	min, max, ok := table.DateRange()
	if !ok {
		t.Fatal("DateRange() ok = false, want true")
	}
	if !min.Equal(day(2025, time.January, 3)) {
		t.Errorf("min = %v, want 2025-01-03", min)
	}
	if !max.Equal(day(2025, time.January, 7)) {
		t.Errorf("max = %v, want 2025-01-07", max)
	}
}

func TestConsolidatedTable_DateRange_Empty(t *testing.T) {
	table := &ConsolidatedTable{}

	if _, _, ok := table.DateRange(); ok {
		t.Error("DateRange() ok = true for empty table, want false")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "consommation", Value: "ND", Message: "not a number"}

	if err.Error() != "not a number" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.IsTransient() {
		t.Error("IsTransient() = true, want false")
	}
}
