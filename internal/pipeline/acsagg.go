package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/errors"
	"github.com/censusflow/censusflow/pkg/frame"
)

// Aggregator reduces raw ACS place-level files to bucketed columns,
// one output parquet per year with a fixed row count equal to the input.
type Aggregator struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAggregator creates the ACS aggregation pipeline
func NewAggregator(cfg *config.Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		logger: logger.With(zap.String("pipeline", "acs_agg")),
	}
}

// yearResult records one processed year for the availability report
type yearResult struct {
	rows    int
	columns []string
}

// filterEstimateColumns keeps the identifier columns plus every column
// containing "_estimate_", excluding margin-of-error and annotation
// columns.
func filterEstimateColumns(f *frame.Frame) *frame.Frame {
	kept := append([]string{}, idColumns...)
	for _, name := range f.Names() {
		lower := strings.ToLower(name)
		if strings.Contains(name, "_estimate_") &&
			!strings.Contains(lower, "margin") &&
			!strings.Contains(lower, "annotation") {
			kept = append(kept, name)
		}
	}
	return f.Select(kept...)
}

// excludeRaceColumns drops every column with "race" in the name
func excludeRaceColumns(f *frame.Frame) {
	for _, name := range f.Names() {
		if strings.Contains(strings.ToLower(name), "race") {
			f.Drop(name)
		}
	}
}

// AggregateYear loads one raw year, applies the bucket aggregations,
// and returns the identifier columns followed by the bucketed columns.
// The output has exactly as many rows as the input.
func (a *Aggregator) AggregateYear(year int) (*frame.Frame, error) {
	log := a.logger.With(zap.Int("year", year))

	path := filepath.Join(a.cfg.RawDir, fmt.Sprintf("acs_%d.parquet", year))
	raw, err := frame.ReadParquet(path)
	if err != nil {
		return nil, err
	}
	originalCols := raw.NumCols()

	df := filterEstimateColumns(raw)
	excludeRaceColumns(df)

	r := newResolver(df)
	parts := []*frame.Frame{
		aggregateSexByAge(r),
		aggregateSchoolEnrollment(r),
		aggregateMonthlyHousingCosts(r),
		aggregateGrossRentPctIncome(r),
		aggregatePovertyRatio(r),
		aggregateTravelTime(r),
		filterTransportation(r),
		renameGeoMobility(r),
		extractOtherVariables(r),
	}

	result := df.Select(idColumns...)
	for _, part := range parts {
		for _, name := range part.Names() {
			if err := result.AddColumn(part.Col(name)); err != nil {
				return nil, err
			}
		}
	}

	if len(r.missing) > 0 {
		// Zero-match buckets show up as all-zero columns downstream,
		// so make the misses visible here
		log.Warn("source patterns with no matching column",
			zap.Int("count", len(r.missing)),
			zap.Strings("sample", sample(r.missing, 5)))
	}

	log.Info("aggregated year",
		zap.Int("original_columns", originalCols),
		zap.Int("aggregated_columns", result.NumCols()),
		zap.Int("rows", result.NumRows()))
	return result, nil
}

// ProcessAllYears aggregates every configured year, writes the output
// files, and produces the column availability report. A failed year is
// logged and the batch continues.
func (a *Aggregator) ProcessAllYears(ctx context.Context) (map[int]yearResult, error) {
	if err := os.MkdirAll(a.cfg.AggDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("dir", a.cfg.AggDir)
	}

	years := a.cfg.AggYears()
	results := make(map[int]yearResult, len(years))

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		df, err := a.AggregateYear(year)
		if err != nil {
			a.logger.Error("year failed, continuing",
				zap.Int("year", year),
				zap.Error(err))
			continue
		}

		outPath := filepath.Join(a.cfg.AggDir, fmt.Sprintf("acs_%d.parquet", year))
		if err := df.WriteParquet(outPath); err != nil {
			a.logger.Error("failed to write aggregated file",
				zap.Int("year", year),
				zap.Error(err))
			continue
		}
		a.logger.Info("saved aggregated year", zap.String("path", outPath))

		results[year] = yearResult{rows: df.NumRows(), columns: df.Names()}
	}

	if err := a.writeAvailabilityReport(years, results); err != nil {
		a.logger.Warn("failed to write availability report", zap.Error(err))
	}
	return results, nil
}

// writeAvailabilityReport lists, per column across all processed years,
// the years where the column is absent. Schema drift between ACS
// vintages makes this the first place to look when a downstream model
// loses a feature.
func (a *Aggregator) writeAvailabilityReport(years []int, results map[int]yearResult) error {
	union := map[string]bool{}
	for _, res := range results {
		for _, col := range res.columns {
			union[col] = true
		}
	}
	allCols := make([]string, 0, len(union))
	for col := range union {
		allCols = append(allCols, col)
	}
	sort.Strings(allCols)

	var b strings.Builder
	fmt.Fprintln(&b, "column availability report")
	fmt.Fprintf(&b, "years processed: %d\n", len(results))
	fmt.Fprintf(&b, "unique columns: %d\n\n", len(allCols))

	gaps := 0
	for _, col := range allCols {
		var missing []int
		for _, year := range years {
			res, ok := results[year]
			if !ok {
				continue
			}
			if !containsString(res.columns, col) {
				missing = append(missing, year)
			}
		}
		if len(missing) > 0 {
			gaps++
			fmt.Fprintf(&b, "%s: missing in %v\n", col, missing)
		}
	}
	if gaps == 0 {
		fmt.Fprintln(&b, "all columns present in all processed years")
	}

	path := filepath.Join(a.cfg.AggDir, "column_availability.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report").
			WithDetail("path", path)
	}

	a.logger.Info("column availability report",
		zap.Int("unique_columns", len(allCols)),
		zap.Int("columns_with_gaps", gaps),
		zap.String("path", path))
	return nil
}

// ValidateOutput checks every aggregated file against its raw input:
// the file must exist and carry the same row count. Failures are
// logged per year; validation never halts the pipeline.
func (a *Aggregator) ValidateOutput() bool {
	valid := true
	for _, year := range a.cfg.AggYears() {
		log := a.logger.With(zap.Int("year", year))

		aggPath := filepath.Join(a.cfg.AggDir, fmt.Sprintf("acs_%d.parquet", year))
		aggRows, err := frame.ParquetRowCount(aggPath)
		if err != nil {
			log.Warn("missing or unreadable aggregated file", zap.Error(err))
			valid = false
			continue
		}

		rawPath := filepath.Join(a.cfg.RawDir, fmt.Sprintf("acs_%d.parquet", year))
		rawRows, err := frame.ParquetRowCount(rawPath)
		if err != nil {
			log.Warn("missing or unreadable raw file", zap.Error(err))
			valid = false
			continue
		}

		if rawRows != aggRows {
			log.Warn("row count mismatch",
				zap.Int64("raw_rows", rawRows),
				zap.Int64("agg_rows", aggRows))
			valid = false
		} else {
			log.Info("validation ok", zap.Int64("rows", aggRows))
		}
	}
	return valid
}

func sample(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func containsString(items []string, target string) bool {
	for _, s := range items {
		if s == target {
			return true
		}
	}
	return false
}
