// Package censusflow collects and shapes US Census data for city-level
// analysis. It bundles three batch pipelines behind one CLI:
//
// 1. Population cleaner: combines the Census subcounty population
// estimate files (2000-2024) into a single CSV with one row per
// incorporated city, a column per year, and year-over-year fractional
// change columns.
//
// 2. ACS puller: downloads ACS 1-year place-level estimates from the
// Census Bureau API for a fixed set of table groups, across every state,
// and writes one parquet file per year with descriptive column names.
//
// 3. ACS aggregator: reduces each raw ACS file to a few hundred bucketed
// columns (age ranges, housing cost increments, commute time ranges)
// while preserving the row count.
//
// # Quick Start
//
// Clean the population files:
//
//	censusflow clean-population
//
// Pull a single ACS year, then the full range:
//
//	export CENSUS_API_KEY=...
//	censusflow pull-acs 2023
//	censusflow pull-acs --all
//
// Aggregate everything that was pulled:
//
//	censusflow aggregate-acs
//
// Configuration resolves from built-in defaults, an optional
// censusflow.yaml, and CENSUSFLOW_* environment variables; a .env file
// in the working directory is honored. See pkg/config.
package censusflow
