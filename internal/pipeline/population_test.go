package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/frame"
)

func TestExtractCityName(t *testing.T) {
	assert.Equal(t, "Springfield", ExtractCityName("Springfield city"))
	assert.Equal(t, "Franklin town", ExtractCityName("Franklin town"))
	assert.Equal(t, "City of Industry", ExtractCityName("City of Industry"))
	// Only a trailing suffix is stripped
	assert.Equal(t, "Carson City", ExtractCityName("Carson City city"))
}

func TestLoadAndFilterCities(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub-est.csv")
	data := "SUMLEV,NAME,STNAME,POPESTIMATE2020\n" +
		"162,Springfield city,Illinois,1000\n" +
		"162,Franklin town,Illinois,500\n" +
		"157,Springfield city,Illinois,1000\n" +
		"040,Illinois,Illinois,12000000\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	f, err := loadAndFilterCities(path)
	require.NoError(t, err)
	require.Equal(t, 1, f.NumRows(), "only SUMLEV 162 rows ending in ' city' survive")
	assert.Equal(t, "Springfield city", f.Col("NAME").StringAt(0))
}

func TestLoadAndFilterCitiesMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,B\n1,2\n"), 0o644))

	_, err := loadAndFilterCities(path)
	assert.Error(t, err)
}

func TestBackfillFromKey(t *testing.T) {
	f := frame.New()
	key := frame.NewColumn("key", frame.TypeString)
	key.AppendString("Springfield_IL")
	key.AppendString("San Jose_CA")
	f.MustAddColumn(key)

	city := frame.NewColumn("City", frame.TypeString)
	city.AppendString("Springfield")
	city.AppendNull()
	f.MustAddColumn(city)

	state := frame.NewColumn("State", frame.TypeString)
	state.AppendString("IL")
	state.AppendNull()
	f.MustAddColumn(state)

	backfillFromKey(f)
	assert.Equal(t, "San Jose", f.Col("City").StringAt(1))
	assert.Equal(t, "CA", f.Col("State").StringAt(1))
	// Populated rows are untouched
	assert.Equal(t, "Springfield", f.Col("City").StringAt(0))
}

func TestSortedYearColumns(t *testing.T) {
	f := frame.New()
	for _, name := range []string{"City", "2010", "State", "2001", "2009_yoy", "2000"} {
		f.MustAddColumn(frame.NewColumn(name, frame.TypeString))
	}
	assert.Equal(t, []string{"2000", "2001", "2010"}, sortedYearColumns(f))
}

func TestAddYoYColumns(t *testing.T) {
	f := frame.New()
	prev := frame.NewColumn("2000", frame.TypeFloat)
	prev.AppendFloat(100)
	prev.AppendFloat(0)
	prev.AppendNull()
	f.MustAddColumn(prev)

	curr := frame.NewColumn("2001", frame.TypeFloat)
	curr.AppendFloat(110)
	curr.AppendFloat(50)
	curr.AppendFloat(50)
	f.MustAddColumn(curr)

	yoyCols := addYoYColumns(f, []string{"2000", "2001"})
	require.Equal(t, []string{"2001_yoy"}, yoyCols)

	yoy := f.Col("2001_yoy")
	v, ok := yoy.FloatAt(0)
	require.True(t, ok)
	assert.InDelta(t, 0.10, v, 1e-9)

	_, ok = yoy.FloatAt(1)
	assert.False(t, ok, "zero previous year yields null")
	_, ok = yoy.FloatAt(2)
	assert.False(t, ok, "null previous year yields null")
}

func TestPopulationCleanerRun(t *testing.T) {
	dir := t.TempDir()

	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	write("sub-est00int.csv",
		"SUMLEV,NAME,STNAME,POPESTIMATE2000,POPESTIMATE2001\n"+
			"162,Springfield city,Illinois,100,110\n"+
			"162,Shelbyville city,Illinois,50,55\n")
	write("sub-est2020int.csv",
		"SUMLEV,NAME,STNAME,POPESTIMATE2010,POPESTIMATE2011\n"+
			"162,Springfield city,Illinois,120,132\n")
	write("sub-est2024.csv",
		"SUMLEV,NAME,STNAME,POPESTIMATE2020,POPESTIMATE2021\n"+
			"162,Springfield city,Illinois,140,154\n"+
			"162,Gotham city,New York,900,990\n")

	cfg := &config.Config{PopulationDir: dir}
	p := NewPopulationCleaner(cfg, zap.NewNop())
	require.NoError(t, p.Run(context.Background()))

	out, err := frame.ReadCSV(filepath.Join(dir, "city_population.csv"))
	require.NoError(t, err)
	require.Equal(t, 3, out.NumRows())

	// Sorted by city, state
	assert.Equal(t, "Gotham", out.Col("City").StringAt(0))
	assert.Equal(t, "NY", out.Col("State").StringAt(0))
	assert.Equal(t, "Shelbyville", out.Col("City").StringAt(1))

	names := out.Names()
	assert.Equal(t, "City", names[0])
	assert.Equal(t, "State", names[1])
	assert.Contains(t, names, "2000")
	assert.Contains(t, names, "2021")
	assert.Contains(t, names, "2001_yoy")
	assert.Contains(t, names, "2010_yoy")

	// Springfield spans all three files
	row := 2
	assert.Equal(t, "Springfield", out.Col("City").StringAt(row))
	assert.Equal(t, "100", out.Col("2000").StringAt(row))
	assert.Equal(t, "120", out.Col("2010").StringAt(row))
	assert.Equal(t, "140", out.Col("2020").StringAt(row))

	// Gotham only exists from 2020 on; City/State come from the key
	assert.Equal(t, "", out.Col("2000").StringAt(0))
	assert.Equal(t, "900", out.Col("2020").StringAt(0))
}
