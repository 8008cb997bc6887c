package pipeline

import (
	"fmt"
	"strings"

	"github.com/censusflow/censusflow/pkg/frame"
)

// resolver looks up source columns by substring containment against the
// live column list. Source naming drifts year to year, so a pattern
// with no match resolves to an all-zero column instead of failing; the
// misses are recorded so the run can surface them.
type resolver struct {
	f       *frame.Frame
	rows    int
	names   []string
	missing []string
}

func newResolver(f *frame.Frame) *resolver {
	return &resolver{f: f, rows: f.NumRows(), names: f.Names()}
}

// col returns the first column whose name contains pattern, with null
// cells as zero. An absent pattern yields zeros and is recorded.
func (r *resolver) col(pattern string) []float64 {
	out := make([]float64, r.rows)
	for _, name := range r.names {
		if strings.Contains(name, pattern) {
			c := r.f.Col(name)
			for row := 0; row < r.rows; row++ {
				if v, ok := c.FloatAt(row); ok {
					out[row] = v
				}
			}
			return out
		}
	}
	r.missing = append(r.missing, pattern)
	return out
}

// sum adds the columns matching each pattern, treating absent columns
// as zero rather than as missing data.
func (r *resolver) sum(patterns ...string) []float64 {
	out := make([]float64, r.rows)
	for _, pattern := range patterns {
		for row, v := range r.col(pattern) {
			out[row] += v
		}
	}
	return out
}

func addFloatColumn(f *frame.Frame, name string, values []float64) {
	c := frame.NewColumn(name, frame.TypeFloat)
	for _, v := range values {
		c.AppendFloat(v)
	}
	f.MustAddColumn(c)
}

// aggregateSexByAge buckets the sex_by_age columns into ten age ranges
// per sex plus the overall total: 21 output columns.
func aggregateSexByAge(r *resolver) *frame.Frame {
	out := frame.New()
	addFloatColumn(out, "sex_by_age_total", r.col("sex_by_age_estimate_total"))

	ageBuckets := []struct {
		name string
		ages []string
	}{
		{"age_18_and_under", []string{"under_5_years", "5_to_9_years", "10_to_14_years", "15_to_17_years"}},
		{"age_19_to_21", []string{"18_and_19_years", "20_years", "21_years"}},
		{"age_22_to_24", []string{"22_to_24_years"}},
		{"age_25_to_29", []string{"25_to_29_years"}},
		{"age_30_to_39", []string{"30_to_34_years", "35_to_39_years"}},
		{"age_40_to_49", []string{"40_to_44_years", "45_to_49_years"}},
		{"age_50_to_59", []string{"50_to_54_years", "55_to_59_years"}},
		{"age_60_to_69", []string{"60_and_61_years", "62_to_64_years", "65_and_66_years", "67_to_69_years"}},
		{"age_70_to_79", []string{"70_to_74_years", "75_to_79_years"}},
		{"age_80_plus", []string{"80_to_84_years", "85_years_and_over"}},
	}

	for _, sex := range []string{"male", "female"} {
		for _, bucket := range ageBuckets {
			patterns := make([]string, len(bucket.ages))
			for i, age := range bucket.ages {
				patterns[i] = fmt.Sprintf("sex_by_age_estimate_total_%s_%s", sex, age)
			}
			addFloatColumn(out, fmt.Sprintf("sex_by_age_%s_%s", sex, bucket.name), r.sum(patterns...))
		}
	}
	return out
}

// aggregateSchoolEnrollment buckets detailed school enrollment into
// education levels: 7 output columns.
func aggregateSchoolEnrollment(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "school_enrollment_by_detailed_level_of_school_for_the_population_3_years_and_over_estimate_total"

	addFloatColumn(out, "school_enrollment_total", r.col(prefix))
	addFloatColumn(out, "school_enrollment_enrolled", r.col(prefix+"_enrolled_in_school"))
	addFloatColumn(out, "school_enrollment_not_enrolled", r.col(prefix+"_not_enrolled_in_school"))

	belowHS := []string{
		prefix + "_enrolled_in_school_enrolled_in_nursery_school_preschool",
		prefix + "_enrolled_in_school_enrolled_in_kindergarten",
	}
	for grade := 1; grade <= 8; grade++ {
		belowHS = append(belowHS, fmt.Sprintf("%s_enrolled_in_school_enrolled_in_grade_%d", prefix, grade))
	}
	addFloatColumn(out, "school_enrollment_below_high_school", r.sum(belowHS...))

	var hs []string
	for grade := 9; grade <= 12; grade++ {
		hs = append(hs, fmt.Sprintf("%s_enrolled_in_school_enrolled_in_grade_%d", prefix, grade))
	}
	addFloatColumn(out, "school_enrollment_high_school", r.sum(hs...))

	addFloatColumn(out, "school_enrollment_undergraduate",
		r.col(prefix+"_enrolled_in_school_enrolled_in_college_undergraduate_years"))
	addFloatColumn(out, "school_enrollment_graduate",
		r.col(prefix+"_enrolled_in_school_graduate_or_professional_school"))
	return out
}

// aggregateMonthlyHousingCosts buckets monthly housing costs into $500
// increments: 9 output columns.
func aggregateMonthlyHousingCosts(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "monthly_housing_costs_estimate_total"

	addFloatColumn(out, "monthly_housing_costs_total", r.col(prefix))
	addFloatColumn(out, "monthly_housing_costs_no_cash_rent", r.col(prefix+"_no_cash_rent"))

	addFloatColumn(out, "monthly_housing_costs_under_500", r.sum(
		prefix+"_less_than_$100",
		prefix+"_$100_to_$199",
		prefix+"_$200_to_$299",
		prefix+"_$300_to_$399",
		prefix+"_$400_to_$499",
	))
	addFloatColumn(out, "monthly_housing_costs_500_to_999", r.sum(
		prefix+"_$500_to_$599",
		prefix+"_$600_to_$699",
		prefix+"_$700_to_$799",
		prefix+"_$800_to_$899",
		prefix+"_$900_to_$999",
	))

	// Higher ranges are already aggregated in the source
	addFloatColumn(out, "monthly_housing_costs_1000_to_1499", r.col(prefix+"_$1_000_to_$1_499"))
	addFloatColumn(out, "monthly_housing_costs_1500_to_1999", r.col(prefix+"_$1_500_to_$1_999"))
	addFloatColumn(out, "monthly_housing_costs_2000_to_2499", r.col(prefix+"_$2_000_to_$2_499"))
	addFloatColumn(out, "monthly_housing_costs_2500_to_2999", r.col(prefix+"_$2_500_to_$2_999"))
	addFloatColumn(out, "monthly_housing_costs_3000_plus", r.col(prefix+"_$3_000_or_more"))
	return out
}

// aggregateGrossRentPctIncome buckets gross rent as a share of
// household income into roughly 10-point increments: 6 output columns.
func aggregateGrossRentPctIncome(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "gross_rent_as_a_percentage_of_household_income_in_the_past_12_months_estimate_total"

	addFloatColumn(out, "gross_rent_pct_income_total", r.col(prefix))
	addFloatColumn(out, "gross_rent_pct_income_not_computed", r.col(prefix+"_not_computed"))

	addFloatColumn(out, "gross_rent_pct_income_under_20", r.sum(
		prefix+"_less_than_10.0_percent",
		prefix+"_10.0_to_14.9_percent",
		prefix+"_15.0_to_19.9_percent",
	))
	addFloatColumn(out, "gross_rent_pct_income_20_to_29", r.sum(
		prefix+"_20.0_to_24.9_percent",
		prefix+"_25.0_to_29.9_percent",
	))
	addFloatColumn(out, "gross_rent_pct_income_30_to_39", r.sum(
		prefix+"_30.0_to_34.9_percent",
		prefix+"_35.0_to_39.9_percent",
	))
	addFloatColumn(out, "gross_rent_pct_income_40_plus", r.sum(
		prefix+"_40.0_to_49.9_percent",
		prefix+"_50.0_percent_or_more",
	))
	return out
}

// aggregatePovertyRatio splits the income-to-poverty ratio at the
// poverty line: 3 output columns.
func aggregatePovertyRatio(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "ratio_of_income_to_poverty_level_of_families_in_the_past_12_months_estimate_total"

	addFloatColumn(out, "poverty_ratio_total", r.col(prefix))
	addFloatColumn(out, "poverty_ratio_at_or_below", r.sum(
		prefix+"_under_.50",
		prefix+"_.50_to_.74",
		prefix+"_.75_to_.99",
	))
	addFloatColumn(out, "poverty_ratio_above", r.sum(
		prefix+"_1.00_to_1.24",
		prefix+"_1.25_to_1.49",
		prefix+"_1.50_to_1.74",
		prefix+"_1.75_to_1.84",
		prefix+"_1.85_to_1.99",
		prefix+"_2.00_to_2.99",
		prefix+"_3.00_to_3.99",
		prefix+"_4.00_to_4.99",
		prefix+"_5.00_and_over",
	))
	return out
}

// aggregateTravelTime buckets commute times into 10-minute increments:
// 7 output columns.
func aggregateTravelTime(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "travel_time_to_work_estimate_total"

	addFloatColumn(out, "travel_time_total", r.col(prefix))
	addFloatColumn(out, "travel_time_under_10", r.sum(
		prefix+"_less_than_5_minutes", prefix+"_5_to_9_minutes"))
	addFloatColumn(out, "travel_time_10_to_19", r.sum(
		prefix+"_10_to_14_minutes", prefix+"_15_to_19_minutes"))
	addFloatColumn(out, "travel_time_20_to_29", r.sum(
		prefix+"_20_to_24_minutes", prefix+"_25_to_29_minutes"))
	addFloatColumn(out, "travel_time_30_to_39", r.sum(
		prefix+"_30_to_34_minutes", prefix+"_35_to_39_minutes"))
	addFloatColumn(out, "travel_time_40_to_59", r.sum(
		prefix+"_40_to_44_minutes", prefix+"_45_to_59_minutes"))
	addFloatColumn(out, "travel_time_60_plus", r.sum(
		prefix+"_60_to_89_minutes", prefix+"_90_or_more_minutes"))
	return out
}

// filterTransportation keeps commute mode totals and drops the per-age
// breakdowns: 7 output columns.
func filterTransportation(r *resolver) *frame.Frame {
	out := frame.New()
	prefix := "means_of_transportation_to_work_by_age_estimate_total"

	addFloatColumn(out, "transportation_total", r.col(prefix))
	addFloatColumn(out, "transportation_drove_alone", r.col(prefix+"_car_truck_or_van_drove_alone"))
	addFloatColumn(out, "transportation_carpooled", r.col(prefix+"_car_truck_or_van_carpooled"))
	addFloatColumn(out, "transportation_public_transit", r.col(prefix+"_public_transportation_excluding_taxicab"))
	addFloatColumn(out, "transportation_walked", r.col(prefix+"_walked"))
	addFloatColumn(out, "transportation_taxi_bike_other", r.col(prefix+"_taxicab_motorcycle_bicycle_or_other_means"))
	addFloatColumn(out, "transportation_worked_from_home", r.col(prefix+"_worked_from_home"))
	return out
}

// geoMobilityPrefix is the shared stem of the geographical mobility
// columns; output names shorten it to geo_mobility_*.
const geoMobilityPrefix = "geographical_mobility_in_the_past_year_by_educational_attainment_for_residence_1_year_ago_in_the_united_states_estimate_total_living_in_area_1_year_ago"

// renameGeoMobility keeps the geographical mobility columns under
// shortened names, nulls as zero: around 30 output columns depending on
// the year.
func renameGeoMobility(r *resolver) *frame.Frame {
	out := frame.New()
	for _, name := range r.names {
		if !strings.Contains(name, geoMobilityPrefix) {
			continue
		}
		suffix := strings.Trim(strings.ReplaceAll(name, geoMobilityPrefix, ""), "_")
		short := "geo_mobility_total"
		if suffix != "" {
			short = "geo_mobility_" + suffix
		}
		if out.Has(short) {
			continue
		}
		c := r.f.Col(name)
		values := make([]float64, r.rows)
		for row := 0; row < r.rows; row++ {
			if v, ok := c.FloatAt(row); ok {
				values[row] = v
			}
		}
		addFloatColumn(out, short, values)
	}
	return out
}

// extractOtherVariables keeps single-column variables under simplified
// names: total population, Gini index, income quintiles, usual hours
// worked, and bachelor's degree fields. ~26 output columns.
func extractOtherVariables(r *resolver) *frame.Frame {
	out := frame.New()

	addFloatColumn(out, "total_population", r.col("total_population_estimate_total"))
	addFloatColumn(out, "gini_index", r.col("gini_index_of_income_inequality_estimate_gini_index"))

	quintiles := []struct{ name, pattern string }{
		{"income_quintile_lowest", "mean_household_income_of_quintiles_estimate_quintile_means_lowest_quintile"},
		{"income_quintile_second", "mean_household_income_of_quintiles_estimate_quintile_means_second_quintile"},
		{"income_quintile_third", "mean_household_income_of_quintiles_estimate_quintile_means_third_quintile"},
		{"income_quintile_fourth", "mean_household_income_of_quintiles_estimate_quintile_means_fourth_quintile"},
		{"income_quintile_highest", "mean_household_income_of_quintiles_estimate_quintile_means_highest_quintile"},
		{"income_quintile_top_5_pct", "mean_household_income_of_quintiles_estimate_top_5_percent"},
	}
	for _, q := range quintiles {
		addFloatColumn(out, q.name, r.col(q.pattern))
	}

	hoursPrefix := "mean_usual_hours_worked_in_the_past_12_months_for_workers_16_to_64_years_estimate_mean_usual_hours_total"
	hours := []struct{ name, pattern string }{
		{"hours_worked_total", hoursPrefix},
		{"hours_worked_male", hoursPrefix + "_male"},
		{"hours_worked_female", hoursPrefix + "_female"},
	}
	for _, h := range hours {
		addFloatColumn(out, h.name, r.col(h.pattern))
	}

	bachelorsPrefix := "total_fields_of_bachelor_s_degrees_reported_estimate_total"
	bachelors := []struct{ name, pattern string }{
		{"bachelors_degree_total", bachelorsPrefix},
		{"bachelors_degree_computers_math_stats", bachelorsPrefix + "_science_and_engineering_computers_mathematics_and_statistics"},
		{"bachelors_degree_bio_ag_env", bachelorsPrefix + "_science_and_engineering_biological_agricultural_and_environmental_sciences"},
		{"bachelors_degree_physical_sciences", bachelorsPrefix + "_science_and_engineering_physical_and_related_sciences"},
		{"bachelors_degree_psychology", bachelorsPrefix + "_science_and_engineering_psychology"},
		{"bachelors_degree_social_sciences", bachelorsPrefix + "_science_and_engineering_social_sciences"},
		{"bachelors_degree_engineering", bachelorsPrefix + "_science_and_engineering_engineering"},
		{"bachelors_degree_multidisciplinary", bachelorsPrefix + "_science_and_engineering_multidisciplinary_studies"},
		{"bachelors_degree_stem_related", bachelorsPrefix + "_science_and_engineering_related_fields"},
		{"bachelors_degree_business", bachelorsPrefix + "_business"},
		{"bachelors_degree_education", bachelorsPrefix + "_education"},
		{"bachelors_degree_literature_languages", bachelorsPrefix + "_arts_humanities_and_other_literature_and_languages"},
		{"bachelors_degree_liberal_arts_history", bachelorsPrefix + "_arts_humanities_and_other_liberal_arts_and_history"},
		{"bachelors_degree_visual_performing_arts", bachelorsPrefix + "_arts_humanities_and_other_visual_and_performing_arts"},
		{"bachelors_degree_communications", bachelorsPrefix + "_arts_humanities_and_other_communications"},
		{"bachelors_degree_other", bachelorsPrefix + "_arts_humanities_and_other_other"},
	}
	for _, b := range bachelors {
		addFloatColumn(out, b.name, r.col(b.pattern))
	}
	return out
}
