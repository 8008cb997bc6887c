package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "regression_data", cfg.PopulationDir)
	assert.Equal(t, "data/acs_raw", cfg.RawDir)
	assert.Equal(t, "data/acs_agg", cfg.AggDir)
	assert.Equal(t, "https://api.census.gov/data/%d/acs/acs1", cfg.BaseURL)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2009, cfg.StartYear)
	assert.Equal(t, 2024, cfg.EndYear)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CENSUSFLOW_RAW_DIR", "/tmp/other_raw")
	t.Setenv("CENSUS_API_KEY", "abc123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other_raw", cfg.RawDir)
	assert.Equal(t, "abc123", cfg.APIKey)
	require.NoError(t, cfg.ValidateAPIKey())
}

func TestValidate(t *testing.T) {
	cfg := &Config{StartYear: 2024, EndYear: 2009, MaxAttempts: 3}
	assert.Error(t, cfg.Validate())

	cfg = &Config{StartYear: 2009, EndYear: 2024, MaxAttempts: 0}
	assert.Error(t, cfg.Validate())
}

func TestValidateAPIKey(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateAPIKey())

	cfg.APIKey = "k"
	assert.NoError(t, cfg.ValidateAPIKey())
}

func TestAggYearsSkips2020(t *testing.T) {
	cfg := &Config{StartYear: 2009, EndYear: 2024}
	years := cfg.AggYears()

	assert.Len(t, years, 15)
	assert.NotContains(t, years, 2020)
	assert.Equal(t, 2009, years[0])
	assert.Equal(t, 2024, years[len(years)-1])
}
