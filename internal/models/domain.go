// ABOUTME: Domain catalogue for raw event streams and their daily rollups.
// ABOUTME: Lists each domain's numeric fields and the primary field used for summary stats.
package models

// Domain identifies one raw event stream.
type Domain string

const (
	DomainWeight          Domain = "weight"
	DomainBodyComposition Domain = "body_composition"
	DomainActivity        Domain = "activity"
	DomainSleep           Domain = "sleep"
	DomainCardio          Domain = "cardio"
	DomainNutrition       Domain = "nutrition"
	DomainGlucose         Domain = "glucose"

	// Behavior factors and subjective surveys are never rolled up into snapshots.
	DomainBehaviorFactor Domain = "behavior_factor"
	DomainSurvey         Domain = "survey"
)

// Feature field names. These double as snapshot column names.
const (
	FieldWeightKg        = "weight_kg"
	FieldBodyFatPct      = "body_fat_pct"
	FieldLeanMassKg      = "lean_mass_kg"
	FieldSteps           = "steps"
	FieldActiveKcal      = "active_kcal"
	FieldExerciseMinutes = "exercise_minutes"
	FieldSleepMinutes    = "sleep_minutes"
	FieldSleepEfficiency = "sleep_efficiency"
	FieldRestingHR       = "resting_hr"
	FieldHRVMs           = "hrv_ms"
	FieldCaloriesKcal    = "calories_kcal"
	FieldProteinG        = "protein_g"
	FieldCarbsG          = "carbs_g"
	FieldFatG            = "fat_g"
	FieldGlucoseMean     = "glucose_mean"
	FieldGlucoseMin      = "glucose_min"
	FieldGlucoseMax      = "glucose_max"
	FieldTimeInRangePct  = "time_in_range_pct"
)

// DomainSpec describes the fields a domain contributes to the daily snapshot.
type DomainSpec struct {
	Domain       Domain
	Fields       []string
	PrimaryField string
}

// RollupDomains are the domains assembled into the daily feature snapshot, in column order.
var RollupDomains = []DomainSpec{
	{Domain: DomainWeight, Fields: []string{FieldWeightKg}, PrimaryField: FieldWeightKg},
	{Domain: DomainBodyComposition, Fields: []string{FieldBodyFatPct, FieldLeanMassKg}, PrimaryField: FieldBodyFatPct},
	{Domain: DomainActivity, Fields: []string{FieldSteps, FieldActiveKcal, FieldExerciseMinutes}, PrimaryField: FieldSteps},
	{Domain: DomainSleep, Fields: []string{FieldSleepMinutes, FieldSleepEfficiency}, PrimaryField: FieldSleepMinutes},
	{Domain: DomainCardio, Fields: []string{FieldRestingHR, FieldHRVMs}, PrimaryField: FieldRestingHR},
	{Domain: DomainNutrition, Fields: []string{FieldCaloriesKcal, FieldProteinG, FieldCarbsG, FieldFatG}, PrimaryField: FieldCaloriesKcal},
	{Domain: DomainGlucose, Fields: []string{FieldGlucoseMean, FieldGlucoseMin, FieldGlucoseMax, FieldTimeInRangePct}, PrimaryField: FieldGlucoseMean},
}

// RawDomains are all domains with a raw event table.
var RawDomains = []Domain{
	DomainWeight, DomainBodyComposition, DomainActivity, DomainSleep,
	DomainCardio, DomainNutrition, DomainGlucose,
	DomainBehaviorFactor, DomainSurvey,
}

// FeatureFields returns every snapshot feature field in column order.
func FeatureFields() []string {
	var fields []string
	for _, d := range RollupDomains {
		fields = append(fields, d.Fields...)
	}
	return fields
}

// LookupDomain returns the rollup spec for a domain.
func LookupDomain(d Domain) (DomainSpec, bool) {
	for _, spec := range RollupDomains {
		if spec.Domain == d {
			return spec, true
		}
	}
	return DomainSpec{}, false
}

// IsValidDomain checks if a string names a domain with a raw table.
func IsValidDomain(s string) bool {
	for _, d := range RawDomains {
		if string(d) == s {
			return true
		}
	}
	return false
}

// DomainOfField reports which rollup domain owns a feature field.
func DomainOfField(field string) (Domain, bool) {
	for _, spec := range RollupDomains {
		for _, f := range spec.Fields {
			if f == field {
				return spec.Domain, true
			}
		}
	}
	return "", false
}
