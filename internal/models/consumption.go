package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// DateFormat is the wire format for block dates in API responses and CSV output
const DateFormat = "2006-01-02"

// ConsumptionRecord represents a single row of the consolidated table: one
// time slot of one date block from an RTE consumption export
type ConsumptionRecord struct {
	ID           int64     `json:"id,omitempty" db:"id"`
	Date         time.Time `json:"date" db:"observation_date"`
	Heures       string    `json:"heures" db:"time_label"`
	PrevisionJ1  float64   `json:"prevision_j1" db:"prevision_j1_mw"`
	PrevisionJ   float64   `json:"prevision_j" db:"prevision_j_mw"`
	Consommation float64   `json:"consommation" db:"consommation_mw"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
}

// DailyStatistics represents pre-calculated per-date aggregates
type DailyStatistics struct {
	ID                 int64     `json:"id" db:"id"`
	Date               time.Time `json:"date" db:"observation_date"`
	AvgConsommationMW  *float64  `json:"avg_consommation_mw,omitempty" db:"avg_consommation_mw"`
	PeakConsommationMW *float64  `json:"peak_consommation_mw,omitempty" db:"peak_consommation_mw"`
	AvgForecastErrJ1MW *float64  `json:"avg_forecast_err_j1_mw,omitempty" db:"avg_forecast_err_j1_mw"`
	AvgForecastErrJMW  *float64  `json:"avg_forecast_err_j_mw,omitempty" db:"avg_forecast_err_j_mw"`
	ObservationCount   int       `json:"observation_count" db:"observation_count"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// ConsolidatedTable is the ordered concatenation of all date blocks found in a
// source file. Records keep block appearance order, then row order within a
// block.
type ConsolidatedTable struct {
	Records []ConsumptionRecord
}

// Len returns the number of rows in the table
func (t *ConsolidatedTable) Len() int {
	return len(t.Records)
}

// Append adds the rows of one finalized block to the table
func (t *ConsolidatedTable) Append(records []ConsumptionRecord) {
	t.Records = append(t.Records, records...)
}

// DateRange returns the earliest and latest block dates in the table.
// ok is false for an empty table.
func (t *ConsolidatedTable) DateRange() (min, max time.Time, ok bool) {
	if len(t.Records) == 0 {
		return time.Time{}, time.Time{}, false
	}

	min, max = t.Records[0].Date, t.Records[0].Date
	for _, r := range t.Records[1:] {
		if r.Date.Before(min) {
			min = r.Date
		}
		if r.Date.After(max) {
			max = r.Date
		}
	}

	return min, max, true
}

// csvHeader matches the column layout of the source exports, date first
var csvHeader = []string{"date", "Heures", "PrévisionJ-1", "PrévisionJ", "Consommation"}

// WriteCSV writes the consolidated table to w with a header row.
// Dates are formatted as YYYY-MM-DD.
func (t *ConsolidatedTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range t.Records {
		row := []string{
			r.Date.Format(DateFormat),
			r.Heures,
			strconv.FormatFloat(r.PrevisionJ1, 'f', -1, 64),
			strconv.FormatFloat(r.PrevisionJ, 'f', -1, 64),
			strconv.FormatFloat(r.Consommation, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the consolidated table to a file at path
func (t *ConsolidatedTable) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
