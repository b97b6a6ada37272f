package main

import (
	"context"
	"fmt"
	"os"

	"conso-platform/internal/models"
	"conso-platform/internal/parser"
	"conso-platform/pkg/logging"
	"conso-platform/pkg/metrics"
)

// Demonstrates block consolidation without a database: parse one RTE export
// and write the consolidated CSV next to it.
func main() {
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println("CONSUMPTION PLATFORM - BLOCK CONSOLIDATION DEMONSTRATION")
	fmt.Println("════════════════════════════════════════════════════════════════")
	fmt.Println()

	logger := logging.NewStructuredLogger("demo", "1.0.0", logging.InfoLevel)
	metricsCollector := metrics.NewCollector("conso_demo")
	ctx := context.Background()

	filePath := "./data/rte/conso_mix_RTE_2025.xls"
	outputPath := "./data/rte/conso_mix_consolidated.csv"

	fmt.Printf("Reading RTE consumption data from %s\n\n", filePath)

	blockParser := parser.New(logger, metricsCollector)
	table, err := blockParser.ParseFile(filePath)
	if err != nil {
		logger.Error(ctx, "Failed to parse source file", logging.Fields{
			"file": filePath,
		}, err)
		os.Exit(1)
	}

	fmt.Printf("Rows consolidated: %d\n", table.Len())

	if min, max, ok := table.DateRange(); ok {
		fmt.Printf("Date range: %s to %s\n", min.Format(models.DateFormat), max.Format(models.DateFormat))
	}

	if table.Len() > 0 {
		fmt.Println("\nFirst rows:")
		for i, r := range table.Records {
			if i >= 5 {
				break
			}
			fmt.Printf("  %s  %s  %.1f  %.1f  %.1f\n",
				r.Date.Format(models.DateFormat), r.Heures, r.PrevisionJ1, r.PrevisionJ, r.Consommation)
		}
	}

	if err := table.SaveCSV(outputPath); err != nil {
		logger.Error(ctx, "Failed to save consolidated CSV", logging.Fields{
			"output": outputPath,
		}, err)
		os.Exit(1)
	}

	fmt.Printf("\nData saved to %s\n", outputPath)
}
