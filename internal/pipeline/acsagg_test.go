package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/frame"
)

type fcol struct {
	name   string
	values []float64
}

// estimateFrame builds a frame with the identifier columns followed by
// the given float columns, in order. Column order matters: the bucket
// lookups take the first substring match.
func estimateFrame(cols []fcol, rows int) *frame.Frame {
	f := frame.New()
	for _, id := range idColumns {
		c := frame.NewColumn(id, frame.TypeString)
		for i := 0; i < rows; i++ {
			c.AppendString(fmt.Sprintf("%s_%d", id, i))
		}
		f.MustAddColumn(c)
	}
	for _, fc := range cols {
		c := frame.NewColumn(fc.name, frame.TypeFloat)
		for i := 0; i < rows; i++ {
			c.AppendFloat(fc.values[i])
		}
		f.MustAddColumn(c)
	}
	return f
}

func TestResolverAbsentPatternIsZero(t *testing.T) {
	f := estimateFrame(nil, 3)
	r := newResolver(f)

	got := r.col("no_such_column")
	assert.Equal(t, []float64{0, 0, 0}, got)
	assert.Equal(t, []string{"no_such_column"}, r.missing)
}

func TestResolverNullAsZero(t *testing.T) {
	f := frame.New()
	c := frame.NewColumn("foo_estimate_total", frame.TypeFloat)
	c.AppendFloat(5)
	c.AppendNull()
	f.MustAddColumn(c)

	r := newResolver(f)
	assert.Equal(t, []float64{5, 0}, r.col("foo_estimate_total"))
	assert.Empty(t, r.missing)
}

func TestResolverSum(t *testing.T) {
	f := estimateFrame([]fcol{
		{"x_estimate_total_a", []float64{1, 2}},
		{"x_estimate_total_b", []float64{10, 20}},
	}, 2)
	r := newResolver(f)

	got := r.sum("x_estimate_total_a", "x_estimate_total_b", "x_estimate_total_missing")
	assert.Equal(t, []float64{11, 22}, got)
	assert.Equal(t, []string{"x_estimate_total_missing"}, r.missing,
		"absent patterns contribute zero")
}

func TestFilterEstimateColumns(t *testing.T) {
	f := estimateFrame([]fcol{
		{"sex_by_age_estimate_total", []float64{1}},
		{"sex_by_age_margin_of_error_total", []float64{2}},
		{"sex_by_age_estimate_Annotation_total", []float64{3}},
		{"unrelated_column", []float64{4}},
	}, 1)

	got := filterEstimateColumns(f)
	names := got.Names()
	assert.Contains(t, names, "sex_by_age_estimate_total")
	assert.Contains(t, names, "place_fips")
	assert.NotContains(t, names, "sex_by_age_margin_of_error_total")
	assert.NotContains(t, names, "sex_by_age_estimate_Annotation_total")
	assert.NotContains(t, names, "unrelated_column")
}

func TestExcludeRaceColumns(t *testing.T) {
	f := estimateFrame([]fcol{
		{"detailed_Race_estimate_total", []float64{1}},
		{"sex_by_age_estimate_total", []float64{2}},
		{"gross_rent_race_neutral_thing", []float64{3}},
	}, 1)

	excludeRaceColumns(f)
	assert.False(t, f.Has("detailed_Race_estimate_total"))
	assert.False(t, f.Has("gross_rent_race_neutral_thing"))
	assert.True(t, f.Has("sex_by_age_estimate_total"))
}

func TestAggregateSexByAge(t *testing.T) {
	f := estimateFrame([]fcol{
		{"sex_by_age_estimate_total", []float64{100}},
		{"sex_by_age_estimate_total_male_under_5_years", []float64{2}},
		{"sex_by_age_estimate_total_male_5_to_9_years", []float64{3}},
		{"sex_by_age_estimate_total_male_10_to_14_years", []float64{4}},
		{"sex_by_age_estimate_total_male_15_to_17_years", []float64{5}},
		{"sex_by_age_estimate_total_female_80_to_84_years", []float64{6}},
		{"sex_by_age_estimate_total_female_85_years_and_over", []float64{7}},
	}, 1)
	r := newResolver(f)

	out := aggregateSexByAge(r)
	assert.Equal(t, 21, out.NumCols())

	total, _ := out.Col("sex_by_age_total").FloatAt(0)
	assert.Equal(t, 100.0, total)

	male18, _ := out.Col("sex_by_age_male_age_18_and_under").FloatAt(0)
	assert.Equal(t, 14.0, male18)

	female80, _ := out.Col("sex_by_age_female_age_80_plus").FloatAt(0)
	assert.Equal(t, 13.0, female80)

	// No male 80+ data in this frame: bucket is zero, not missing
	male80, _ := out.Col("sex_by_age_male_age_80_plus").FloatAt(0)
	assert.Equal(t, 0.0, male80)
}

func TestAggregateTravelTime(t *testing.T) {
	f := estimateFrame([]fcol{
		{"travel_time_to_work_estimate_total", []float64{50}},
		{"travel_time_to_work_estimate_total_less_than_5_minutes", []float64{1}},
		{"travel_time_to_work_estimate_total_5_to_9_minutes", []float64{2}},
		{"travel_time_to_work_estimate_total_90_or_more_minutes", []float64{9}},
	}, 1)
	r := newResolver(f)

	out := aggregateTravelTime(r)
	assert.Equal(t, 7, out.NumCols())

	under10, _ := out.Col("travel_time_under_10").FloatAt(0)
	assert.Equal(t, 3.0, under10)
	over60, _ := out.Col("travel_time_60_plus").FloatAt(0)
	assert.Equal(t, 9.0, over60)
}

func TestRenameGeoMobility(t *testing.T) {
	f := estimateFrame([]fcol{
		{geoMobilityPrefix, []float64{10}},
		{geoMobilityPrefix + "_same_house_1_year_ago", []float64{7}},
	}, 1)
	r := newResolver(f)

	out := renameGeoMobility(r)
	assert.True(t, out.Has("geo_mobility_total"))
	assert.True(t, out.Has("geo_mobility_same_house_1_year_ago"))

	v, _ := out.Col("geo_mobility_same_house_1_year_ago").FloatAt(0)
	assert.Equal(t, 7.0, v)
}

func TestAggregateYear(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		RawDir:    filepath.Join(dir, "raw"),
		AggDir:    filepath.Join(dir, "agg"),
		StartYear: 2023,
		EndYear:   2023,
	}

	raw := estimateFrame([]fcol{
		{"sex_by_age_estimate_total", []float64{100, 200, 300}},
		{"travel_time_to_work_estimate_total", []float64{10, 20, 30}},
		{"detailed_race_estimate_total", []float64{1, 2, 3}},
	}, 3)
	require.NoError(t, writeRawYear(cfg, raw, 2023))

	a := NewAggregator(cfg, zap.NewNop())
	out, err := a.AggregateYear(2023)
	require.NoError(t, err)

	assert.Equal(t, 3, out.NumRows(), "row count is preserved")
	assert.Equal(t, idColumns, out.Names()[:4])
	assert.True(t, out.Has("sex_by_age_total"))
	assert.False(t, out.Has("detailed_race_estimate_total"))

	v, _ := out.Col("travel_time_total").FloatAt(2)
	assert.Equal(t, 30.0, v)
}

func TestProcessAllYearsAndValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		RawDir:    filepath.Join(dir, "raw"),
		AggDir:    filepath.Join(dir, "agg"),
		StartYear: 2022,
		EndYear:   2023,
	}

	for year, rows := range map[int]int{2022: 2, 2023: 4} {
		raw := estimateFrame([]fcol{
			{"sex_by_age_estimate_total", make([]float64, rows)},
		}, rows)
		require.NoError(t, writeRawYear(cfg, raw, year))
	}

	a := NewAggregator(cfg, zap.NewNop())
	results, err := a.ProcessAllYears(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[2022].rows)
	assert.Equal(t, 4, results[2023].rows)

	assert.FileExists(t, filepath.Join(cfg.AggDir, "acs_2022.parquet"))

	report, err := os.ReadFile(filepath.Join(cfg.AggDir, "column_availability.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "years processed: 2")
	assert.Contains(t, string(report), "all columns present in all processed years",
		"identical schemas leave no gaps to report")

	assert.True(t, a.ValidateOutput())
}

func TestValidateOutputMissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		RawDir:    filepath.Join(dir, "raw"),
		AggDir:    filepath.Join(dir, "agg"),
		StartYear: 2023,
		EndYear:   2023,
	}

	a := NewAggregator(cfg, zap.NewNop())
	assert.False(t, a.ValidateOutput())
}

func writeRawYear(cfg *config.Config, f *frame.Frame, year int) error {
	if err := os.MkdirAll(cfg.RawDir, 0o755); err != nil {
		return err
	}
	return f.WriteParquet(filepath.Join(cfg.RawDir, fmt.Sprintf("acs_%d.parquet", year)))
}
