package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/census"
	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/errors"
	"github.com/censusflow/censusflow/pkg/frame"
	"github.com/censusflow/censusflow/pkg/geo"
)

// ACSGroups lists the requested ACS table groups
var ACSGroups = []string{
	"B01001", "B01003", "B02003", "B00001", "B08101", "B07409", "B08303", "B14007",
	"B15012", "B17026", "B19081", "B19083", "B23020", "B25070", "B25104",
}

// idColumns are the fixed identifier columns, always first in output
var idColumns = []string{"place_fips", "place_name", "state_fips", "year"}

// missingMarkers are the Census sentinel codes for unavailable data
var missingMarkers = map[string]bool{
	"-666666666": true,
	"-999999999": true,
	"-888888888": true,
}

var (
	colPunct      = regexp.MustCompile(`[!\s:;,\-\(\)'"]+`)
	colUnderscore = regexp.MustCompile(`_+`)
)

// CleanColumnName normalizes a column name to lowercase with single
// underscores: punctuation and whitespace collapse to underscores,
// runs of underscores collapse, and leading/trailing underscores are
// trimmed. Identifier columns pass through unchanged. The function is
// idempotent.
func CleanColumnName(col string) string {
	switch col {
	case "place_fips", "place_name", "state_fips", "year":
		return col
	}
	col = strings.ToLower(col)
	col = colPunct.ReplaceAllString(col, "_")
	col = colUnderscore.ReplaceAllString(col, "_")
	return strings.Trim(col, "_")
}

// Puller collects ACS place-level data for a year across all states
// and table groups and writes one parquet file (plus a CSV mirror).
type Puller struct {
	cfg    *config.Config
	client *census.Client
	logger *zap.Logger
}

// NewPuller creates the ACS pull pipeline. A missing API key is a
// fatal startup condition.
func NewPuller(cfg *config.Config, logger *zap.Logger) (*Puller, error) {
	if err := cfg.ValidateAPIKey(); err != nil {
		return nil, err
	}

	client := census.NewClient(census.Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		RequestPause:   cfg.RequestPause,
		MaxAttempts:    cfg.MaxAttempts,
	}, logger)

	return &Puller{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("pipeline", "acs_pull")),
	}, nil
}

// Close releases the API client
func (p *Puller) Close() {
	p.client.Close()
}

// CollectYear fetches all (state, group) combinations for one year,
// merges per-state results on place identifiers, stacks states, and
// post-processes the combined frame. A nil frame means no data was
// collected at all.
func (p *Puller) CollectYear(ctx context.Context, year int) (*frame.Frame, error) {
	log := p.logger.With(zap.Int("year", year))

	log.Info("fetching group descriptions")
	descriptions, err := p.client.GroupDescriptions(ctx, year)
	if err != nil {
		// Descriptive labels degrade to bare group codes
		log.Warn("failed to fetch group descriptions", zap.Error(err))
		descriptions = map[string]string{}
	}

	states := geo.SortedFIPS()
	totalTasks := len(states) * len(ACSGroups)
	log.Info("collecting ACS data",
		zap.Int("states", len(states)),
		zap.Int("groups", len(ACSGroups)),
		zap.Int("total_requests", totalTasks))

	codeToLabel := make(map[string]string)
	stateData := make(map[string]*frame.Frame, len(states))
	done := 0

	for _, state := range states {
		for _, group := range ACSGroups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			done++

			table, err := p.client.GroupData(ctx, year, state, group)
			if err != nil {
				if errors.IsNotFound(err) {
					// Group not offered for this year/state
					log.Debug("group not available",
						zap.String("state", geo.StateFIPS[state]),
						zap.String("group", group))
				} else {
					// Give up on this pair; its columns stay absent
					log.Warn("giving up on group after retries",
						zap.String("state", geo.StateFIPS[state]),
						zap.String("group", group),
						zap.Error(err))
				}
				continue
			}
			if table.Empty() {
				continue
			}

			recordLabels(codeToLabel, table, descriptions, group)

			df := tableToFrame(table)
			if existing := stateData[state]; existing == nil {
				stateData[state] = df
			} else {
				var mergeCols []string
				for _, c := range []string{"state", "place", "NAME"} {
					if existing.Has(c) && df.Has(c) {
						mergeCols = append(mergeCols, c)
					}
				}
				if len(mergeCols) == 0 {
					log.Warn("no shared identifier columns, skipping group",
						zap.String("state", geo.StateFIPS[state]),
						zap.String("group", group))
					continue
				}
				merged, err := frame.OuterJoin(existing, df, mergeCols)
				if err != nil {
					log.Warn("failed to merge group into state frame",
						zap.String("state", geo.StateFIPS[state]),
						zap.String("group", group),
						zap.Error(err))
					continue
				}
				stateData[state] = merged
			}

			if done%100 == 0 {
				log.Info("pull progress",
					zap.Int("completed", done),
					zap.Int("total", totalTasks))
			}
		}
	}

	var combined *frame.Frame
	for _, state := range states {
		df := stateData[state]
		if df == nil || df.NumRows() == 0 {
			continue
		}
		if combined == nil {
			combined = df
		} else {
			combined = frame.Append(combined, df)
		}
	}
	if combined == nil {
		return nil, nil
	}

	postProcess(combined, year, codeToLabel)
	return combined, nil
}

// recordLabels builds the code to descriptive-label mapping from a
// response's header rows. Non-identifier codes are prefixed with the
// group description; the first sighting of a code wins.
func recordLabels(codeToLabel map[string]string, table *census.GroupTable, descriptions map[string]string, group string) {
	desc, ok := descriptions[group]
	if !ok {
		desc = group
	}
	for i, code := range table.Codes {
		if _, seen := codeToLabel[code]; seen {
			continue
		}
		label := code
		if i < len(table.Labels) && table.Labels[i] != "" {
			label = table.Labels[i]
		}
		switch code {
		case "GEO_ID", "NAME", "state", "place":
			codeToLabel[code] = label
		default:
			codeToLabel[code] = desc + "__" + label
		}
	}
}

// tableToFrame converts a raw group response into a string frame with
// variable codes as column names.
func tableToFrame(table *census.GroupTable) *frame.Frame {
	f := frame.New()
	cols := make([]*frame.Column, 0, len(table.Codes))
	for _, code := range table.Codes {
		if f.Has(code) {
			cols = append(cols, nil)
			continue
		}
		c := frame.NewColumn(code, frame.TypeString)
		f.MustAddColumn(c)
		cols = append(cols, c)
	}
	for _, row := range table.Rows {
		for i, c := range cols {
			if c == nil {
				continue
			}
			if i < len(row) && row[i] != "" {
				c.AppendString(row[i])
			} else {
				c.AppendNull()
			}
		}
	}
	return f
}

// postProcess applies the shared cleanup: year column, identifier
// renames, sentinel null conversion, numeric coercion, descriptive
// labels, normalized names, and identifier-first column order.
func postProcess(f *frame.Frame, year int, codeToLabel map[string]string) {
	yearCol := frame.NewColumn("year", frame.TypeInt)
	for row := 0; row < f.NumRows(); row++ {
		yearCol.AppendInt(int64(year))
	}
	f.MustAddColumn(yearCol)

	f.Rename("NAME", "place_name")
	f.Rename("state", "state_fips")

	if place := f.Col("place"); place != nil {
		stateFips := f.Col("state_fips")
		placeFips := frame.NewColumn("place_fips", frame.TypeString)
		for row := 0; row < f.NumRows(); row++ {
			placeFips.AppendString(stateFips.StringAt(row) + place.StringAt(row))
		}
		f.MustAddColumn(placeFips)
		f.Drop("place")
	}
	f.Drop("GEO_ID")

	idSet := map[string]bool{}
	for _, c := range idColumns {
		idSet[c] = true
	}
	for _, name := range f.Names() {
		if idSet[name] {
			continue
		}
		col := f.Col(name)
		for row := 0; row < col.Len(); row++ {
			if missingMarkers[strings.TrimSpace(col.StringAt(row))] {
				col.SetNull(row)
			}
		}
		f.ToFloat(name)
	}

	for code, label := range codeToLabel {
		f.Rename(code, label)
	}
	for _, name := range f.Names() {
		f.Rename(name, CleanColumnName(name))
	}

	others := make([]string, 0, f.NumCols())
	for _, name := range f.Names() {
		if !idSet[name] {
			others = append(others, name)
		}
	}
	ordered := append(append([]string{}, idColumns...), others...)
	*f = *f.Select(ordered...)
}

// RunSingleYear pulls one year and writes parquet plus a CSV mirror
func (p *Puller) RunSingleYear(ctx context.Context, year int) error {
	log := p.logger.With(zap.Int("year", year))

	df, err := p.CollectYear(ctx, year)
	if err != nil {
		return err
	}
	if df == nil || df.NumRows() == 0 {
		log.Warn("no data collected")
		return nil
	}

	if err := os.MkdirAll(p.cfg.RawDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("dir", p.cfg.RawDir)
	}

	parquetPath := filepath.Join(p.cfg.RawDir, fmt.Sprintf("acs_%d.parquet", year))
	if err := df.WriteParquet(parquetPath); err != nil {
		return err
	}
	csvPath := filepath.Join(p.cfg.RawDir, fmt.Sprintf("acs_%d.csv", year))
	if err := df.WriteCSV(csvPath); err != nil {
		return err
	}

	log.Info("year complete",
		zap.Int("total_places", df.NumRows()),
		zap.Int("total_columns", df.NumCols()),
		zap.Int("states", distinctCount(df.Col("state_fips"))),
		zap.String("parquet", parquetPath),
		zap.String("csv", csvPath))

	// Sanity check that the largest cities made it through
	for _, city := range []string{"Los Angeles", "New York", "Chicago", "Houston", "Phoenix"} {
		log.Info("major city check",
			zap.String("city", city),
			zap.Bool("found", containsPlace(df.Col("place_name"), city)))
	}
	return nil
}

// RunAllYears pulls a range of years; a failed year is logged and the
// batch continues.
func (p *Puller) RunAllYears(ctx context.Context, start, end int) error {
	p.logger.Info("collecting ACS data for year range",
		zap.Int("start", start),
		zap.Int("end", end))

	for year := start; year <= end; year++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.RunSingleYear(ctx, year); err != nil {
			p.logger.Error("year failed, continuing",
				zap.Int("year", year),
				zap.Error(err))
		}
	}

	p.logger.Info("all years complete")
	return nil
}

func distinctCount(c *frame.Column) int {
	if c == nil {
		return 0
	}
	seen := map[string]bool{}
	for row := 0; row < c.Len(); row++ {
		if !c.IsNull(row) {
			seen[c.StringAt(row)] = true
		}
	}
	return len(seen)
}

func containsPlace(c *frame.Column, name string) bool {
	if c == nil {
		return false
	}
	needle := strings.ToLower(name)
	for row := 0; row < c.Len(); row++ {
		if strings.Contains(strings.ToLower(c.StringAt(row)), needle) {
			return true
		}
	}
	return false
}
