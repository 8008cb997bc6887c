// Package config provides the unified configuration for the censusflow
// pipelines. Settings resolve in order: built-in defaults, an optional
// censusflow.yaml file, then environment variables. A .env file in the
// working directory is folded into the environment before resolution.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/censusflow/censusflow/pkg/errors"
)

// Config holds every setting the three pipelines read
type Config struct {
	// DataDir is the root directory for pipeline inputs and outputs
	DataDir string `mapstructure:"data_dir"`
	// PopulationDir holds the Census subcounty estimate files and the
	// cleaned city_population.csv output
	PopulationDir string `mapstructure:"population_dir"`
	// RawDir receives the per-year ACS pull outputs
	RawDir string `mapstructure:"raw_dir"`
	// AggDir receives the per-year aggregated outputs
	AggDir string `mapstructure:"agg_dir"`

	// APIKey is the Census Bureau API key (CENSUS_API_KEY)
	APIKey string `mapstructure:"api_key"`
	// BaseURL is the ACS 1-year estimates endpoint, with a %d year slot
	BaseURL string `mapstructure:"base_url"`

	// RequestTimeout is the per-request timeout for API calls
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RequestPause is the courtesy delay inserted after every API call
	RequestPause time.Duration `mapstructure:"request_pause"`
	// MaxAttempts bounds retries for transient API failures
	MaxAttempts int `mapstructure:"max_attempts"`

	// StartYear and EndYear bound the default multi-year pull range
	StartYear int `mapstructure:"start_year"`
	EndYear   int `mapstructure:"end_year"`

	// LogLevel sets the zap level (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level"`
}

// Load builds a Config from defaults, the optional YAML file at path
// (or ./censusflow.yaml when path is empty), and the environment.
func Load(path string) (*Config, error) {
	// Fold .env into the process environment; a missing file is fine
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("data_dir", "data")
	v.SetDefault("population_dir", "regression_data")
	v.SetDefault("raw_dir", "data/acs_raw")
	v.SetDefault("agg_dir", "data/acs_agg")
	v.SetDefault("base_url", "https://api.census.gov/data/%d/acs/acs1")
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("request_pause", 300*time.Millisecond)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("start_year", 2009)
	v.SetDefault("end_year", 2024)
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	} else {
		v.SetConfigName("censusflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// The file is optional; only a malformed file is an error
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read censusflow.yaml")
			}
		}
	}

	v.SetEnvPrefix("CENSUSFLOW")
	v.AutomaticEnv()
	// The Census API key keeps its conventional unprefixed name
	_ = v.BindEnv("api_key", "CENSUS_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}

	return &cfg, nil
}

// Validate checks settings every pipeline depends on
func (c *Config) Validate() error {
	if c.StartYear > c.EndYear {
		return errors.New(errors.ErrorTypeConfig, "start_year is after end_year").
			WithDetail("start_year", c.StartYear).
			WithDetail("end_year", c.EndYear)
	}
	if c.MaxAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "max_attempts must be at least 1")
	}
	return nil
}

// ValidateAPIKey enforces the puller's fatal startup condition
func (c *Config) ValidateAPIKey() error {
	if c.APIKey == "" {
		return errors.New(errors.ErrorTypeConfig, "CENSUS_API_KEY not found in environment")
	}
	return nil
}

// AggYears returns the aggregation year list: StartYear through EndYear
// excluding 2020, when the 1-year ACS was not released.
func (c *Config) AggYears() []int {
	years := make([]int, 0, c.EndYear-c.StartYear+1)
	for y := c.StartYear; y <= c.EndYear; y++ {
		if y == 2020 {
			continue
		}
		years = append(years, y)
	}
	return years
}
