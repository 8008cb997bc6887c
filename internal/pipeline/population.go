// Package pipeline implements the three censusflow data pipelines: the
// city population cleaner, the ACS puller, and the ACS aggregator. They
// are independent batch jobs sharing only the frame abstraction; each
// reads files (or the API), transforms in memory, and writes its output.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/errors"
	"github.com/censusflow/censusflow/pkg/frame"
	"github.com/censusflow/censusflow/pkg/geo"
)

// sumlevIncorporatedPlace is the summary level for incorporated places.
// Filtering on it avoids duplicate county-subdivision rows (SUMLEV 157)
// for the same city.
const sumlevIncorporatedPlace = "162"

// citySuffix is the literal, case-sensitive display-name suffix that
// marks a Census "city" place. "Franklin town" and CDP rows share the
// summary level but not the suffix.
const citySuffix = " city"

// popSource describes one Census subcounty estimates file and the year
// window it contributes. Overlap years are taken from the later file:
// 2010 comes from the 2020 intercensal file, 2020 from the 2024 vintage.
type popSource struct {
	file      string
	startYear int
	endYear   int
}

var popSources = []popSource{
	{"sub-est00int.csv", 2000, 2009},
	{"sub-est2020int.csv", 2010, 2019},
	{"sub-est2024.csv", 2020, 2024},
}

// PopulationCleaner combines the three Census subcounty estimate files
// into one row per (city, state) with a column per year plus
// year-over-year fractional changes.
type PopulationCleaner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPopulationCleaner creates the population cleaner pipeline
func NewPopulationCleaner(cfg *config.Config, logger *zap.Logger) *PopulationCleaner {
	return &PopulationCleaner{
		cfg:    cfg,
		logger: logger.With(zap.String("pipeline", "population")),
	}
}

// ExtractCityName strips the " city" suffix from a place display name.
// Names without the suffix pass through unchanged.
func ExtractCityName(name string) string {
	return strings.TrimSuffix(name, citySuffix)
}

// Run executes the cleaner and writes city_population.csv
func (p *PopulationCleaner) Run(ctx context.Context) error {
	p.logger.Info("loading data files", zap.String("dir", p.cfg.PopulationDir))

	var merged *frame.Frame
	for i, src := range popSources {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(p.cfg.PopulationDir, src.file)
		cities, err := loadAndFilterCities(path)
		if err != nil {
			return err
		}
		p.logger.Info("loaded source file",
			zap.String("file", src.file),
			zap.Int("cities", cities.NumRows()))

		yearly := extractYearColumns(cities, src, i == 0)

		if merged == nil {
			merged = yearly
			continue
		}
		merged, err = frame.OuterJoin(merged, yearly, []string{"key"})
		if err != nil {
			return err
		}
	}

	backfillFromKey(merged)

	yearCols := sortedYearColumns(merged)
	if len(yearCols) == 0 {
		return errors.New(errors.ErrorTypeData, "no year columns found after merge")
	}
	p.logger.Info("merged datasets",
		zap.String("first_year", yearCols[0]),
		zap.String("last_year", yearCols[len(yearCols)-1]))

	yoyCols := addYoYColumns(merged, yearCols)

	finalCols := append([]string{"City", "State"}, yearCols...)
	finalCols = append(finalCols, yoyCols...)
	result := merged.Select(finalCols...)
	result.SortBy("City", "State")

	outPath := filepath.Join(p.cfg.PopulationDir, "city_population.csv")
	if err := result.WriteCSV(outPath); err != nil {
		return err
	}

	p.logger.Info("saved combined population data",
		zap.String("path", outPath),
		zap.Int("total_cities", result.NumRows()))
	return nil
}

// loadAndFilterCities loads a subcounty file and keeps rows where
// SUMLEV is the incorporated-place code and NAME ends with " city".
func loadAndFilterCities(path string) (*frame.Frame, error) {
	f, err := frame.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	sumlev := f.Col("SUMLEV")
	name := f.Col("NAME")
	if sumlev == nil || name == nil {
		return nil, errors.New(errors.ErrorTypeData, "missing SUMLEV or NAME column").
			WithDetail("path", path)
	}

	return f.Filter(func(row int) bool {
		return strings.TrimSpace(sumlev.StringAt(row)) == sumlevIncorporatedPlace &&
			strings.HasSuffix(name.StringAt(row), citySuffix)
	}), nil
}

// extractYearColumns builds a per-file frame keyed by City_State with
// one numeric column per year inside the source's window. The first
// file additionally carries the City and State columns for the output.
func extractYearColumns(cities *frame.Frame, src popSource, first bool) *frame.Frame {
	n := cities.NumRows()
	nameCol := cities.Col("NAME")
	stateCol := cities.Col("STNAME")

	city := frame.NewColumn("City", frame.TypeString)
	state := frame.NewColumn("State", frame.TypeString)
	key := frame.NewColumn("key", frame.TypeString)
	for row := 0; row < n; row++ {
		c := ExtractCityName(nameCol.StringAt(row))
		abbr, ok := geo.StateAbbr[stateCol.StringAt(row)]
		city.AppendString(c)
		if ok {
			state.AppendString(abbr)
		} else {
			state.AppendNull()
		}
		key.AppendString(c + "_" + abbr)
	}

	out := frame.New()
	out.MustAddColumn(key)
	if first {
		out.MustAddColumn(city)
		out.MustAddColumn(state)
	}

	for year := src.startYear; year <= src.endYear; year++ {
		name := fmt.Sprintf("POPESTIMATE%d", year)
		est := cities.Col(name)
		if est == nil {
			continue
		}
		col := frame.NewColumn(strconv.Itoa(year), frame.TypeFloat)
		for row := 0; row < n; row++ {
			if v, err := strconv.ParseFloat(strings.TrimSpace(est.StringAt(row)), 64); err == nil {
				col.AppendFloat(v)
			} else {
				col.AppendNull()
			}
		}
		out.MustAddColumn(col)
	}
	return out
}

// backfillFromKey fills City/State for rows that only existed in later
// files, by splitting the join key at the last underscore. State
// abbreviations never contain underscores; city names are assumed not
// to either.
func backfillFromKey(f *frame.Frame) {
	key := f.Col("key")
	city := f.Col("City")
	state := f.Col("State")
	for row := 0; row < f.NumRows(); row++ {
		k := key.StringAt(row)
		cut := strings.LastIndex(k, "_")
		if cut < 0 {
			continue
		}
		if city.IsNull(row) {
			city.SetString(row, k[:cut])
		}
		if state.IsNull(row) {
			state.SetString(row, k[cut+1:])
		}
	}
}

// sortedYearColumns returns the all-digit column names ascending
func sortedYearColumns(f *frame.Frame) []string {
	var years []string
	for _, name := range f.Names() {
		if name == "" {
			continue
		}
		if _, err := strconv.Atoi(name); err == nil {
			years = append(years, name)
		}
	}
	sort.Slice(years, func(i, j int) bool {
		a, _ := strconv.Atoi(years[i])
		b, _ := strconv.Atoi(years[j])
		return a < b
	})
	return years
}

// addYoYColumns appends a fractional year-over-year change column for
// each adjacent year pair. A null or zero previous value yields null
// rather than an error.
func addYoYColumns(f *frame.Frame, yearCols []string) []string {
	yoyCols := make([]string, 0, len(yearCols)-1)
	for i := 1; i < len(yearCols); i++ {
		prev := f.Col(yearCols[i-1])
		curr := f.Col(yearCols[i])
		name := yearCols[i] + "_yoy"

		col := frame.NewColumn(name, frame.TypeFloat)
		for row := 0; row < f.NumRows(); row++ {
			pv, pok := prev.FloatAt(row)
			cv, cok := curr.FloatAt(row)
			if !pok || !cok || pv == 0 {
				col.AppendNull()
				continue
			}
			col.AppendFloat((cv - pv) / pv)
		}
		f.MustAddColumn(col)
		yoyCols = append(yoyCols, name)
	}
	return yoyCols
}
