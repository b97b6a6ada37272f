// Package parser reads RTE consumption exports: text files containing
// repeated date-stamped blocks of tab-separated rows, which it consolidates
// into a single table.
//
// A block looks like:
//
//	Journée du 05/01/2025
//	Heures	PrévisionJ-1	PrévisionJ	Consommation
//	00:00	1000.5	1020.0	990.2
//	...
//
// The scan is permissive: rows that do not parse are dropped, blocks with no
// valid rows emit nothing, and a structurally malformed file yields an empty
// table rather than an error.
package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"conso-platform/internal/models"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

const (
	// dateMarker identifies block date-header lines ("Journée du DD/MM/YYYY").
	// Exports in the wild carry encoding damage on the accented characters, so
	// only the stable prefix is matched.
	dateMarker = "Journ"

	// columnHeader starts the column-header line preceding data rows
	columnHeader = "Heures"

	// minFields is the number of tab-separated fields a data row must have
	minFields = 4
)

// blockDatePattern extracts the DD/MM/YYYY date from a block header line
var blockDatePattern = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

// state tracks where the scanner is relative to block structure
type state int

const (
	// stateSeeking: before any column header of the current block; lines are
	// not data
	stateSeeking state = iota

	// stateInBlock: a column header was seen for the current block date;
	// subsequent lines are candidate data rows
	stateInBlock
)

// Parser consolidates multi-block consumption exports
type Parser struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// New creates a new Parser
func New(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Parser {
	return &Parser{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ParseFile reads and consolidates the export at path.
// Open failures are propagated; structural problems inside the file are not.
func (p *Parser) ParseFile(path string) (*models.ConsolidatedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	table, err := p.Parse(f)
	if err != nil {
		return nil, err
	}

	p.logger.Debug(context.Background(), "[PARSE_FILE] Source file consolidated", logging.Fields{
		"path": path,
		"rows": table.Len(),
	})

	return table, nil
}

// Parse scans r line by line and consolidates all date blocks into one table
func (p *Parser) Parse(r io.Reader) (*models.ConsolidatedTable, error) {
	table := &models.ConsolidatedTable{}

	var (
		current state
		date    time.Time
		hasDate bool
		pending []string
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		switch {
		case isDateHeader(line):
			// A new block starts; finalize whatever was accumulated, even if
			// the previous block never reached its column header
			if hasDate {
				p.finalizeBlock(table, date, pending)
			}

			d, ok := extractDate(line)
			if !ok {
				// Marker without a parseable date: drop parsing state until
				// the next complete header
				hasDate = false
				pending = nil
				current = stateSeeking
				continue
			}

			date = d
			hasDate = true
			pending = nil
			current = stateSeeking

		case strings.HasPrefix(line, columnHeader):
			// Stray header repetitions restart the accumulator
			current = stateInBlock
			pending = nil

		case current == stateInBlock && hasDate:
			pending = append(pending, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	if hasDate {
		p.finalizeBlock(table, date, pending)
	}

	return table, nil
}

// finalizeBlock validates accumulated lines and appends surviving rows to the
// table. A block with zero valid rows contributes nothing.
func (p *Parser) finalizeBlock(table *models.ConsolidatedTable, date time.Time, lines []string) {
	var records []models.ConsumptionRecord

	for _, line := range lines {
		record, ok := p.parseRow(line, date)
		if !ok {
			continue
		}
		records = append(records, *record)
	}

	if len(records) == 0 {
		p.metrics.BlocksDroppedTotal.Inc()
		return
	}

	p.metrics.BlocksParsedTotal.Inc()
	p.metrics.RowsParsedTotal.Add(float64(len(records)))
	table.Append(records)
}

// parseRow splits a candidate line on tabs and validates it.
// Field 1 is kept verbatim as time label; fields 2-4 must parse as decimals.
func (p *Parser) parseRow(line string, date time.Time) (*models.ConsumptionRecord, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < minFields {
		p.metrics.RecordRowDropped("field_count")
		return nil, false
	}

	values := make([]float64, 0, 3)
	for _, raw := range parts[1:minFields] {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			p.metrics.RecordRowDropped("numeric_parse")
			return nil, false
		}
		values = append(values, v)
	}

	return &models.ConsumptionRecord{
		Date:         date,
		Heures:       strings.TrimSpace(parts[0]),
		PrevisionJ1:  values[0],
		PrevisionJ:   values[1],
		Consommation: values[2],
	}, true
}

// isDateHeader reports whether line is a block date-header line
func isDateHeader(line string) bool {
	return strings.Contains(line, dateMarker) && strings.Contains(line, "/")
}

// extractDate pulls the DD/MM/YYYY date out of a header line
func extractDate(line string) (time.Time, bool) {
	m := blockDatePattern.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}

	d, err := time.Parse("02/01/2006", m[0])
	if err != nil {
		return time.Time{}, false
	}

	return d, true
}
