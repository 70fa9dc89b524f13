package core

import (
	"sort"
	"strings"

	"healthfeed/pkg"
)

// maxSeeds caps each seed list handed to the prompt.
const maxSeeds = 2

// Seed suggestions, in the order the rules fire.
const (
	SeedDiabetesExercise     = "10–20 min brisk walk + 5 min cool-down"
	SeedDiabetesDiet         = "Carb-aware meals: whole grains, dal, veg; steady portions"
	SeedHypertensionExercise = "4–6 cycles slow diaphragmatic breathing"
	SeedHypertensionDiet     = "Lower added salt; use spices, herbs, lemon for flavour"
	SeedSeniorExercise       = "Joint-friendly mobility: ankle circles, shoulder rolls"
	SeedHighRiskExercise     = "Keep intensity light; pause if dizzy or breathless"
	SeedVegetarianDiet       = "Vegetarian proteins: legumes, paneer/tofu, curd; focus on fiber"
	SeedFallbackExercise     = "5–10 min light mobility + 10 min easy walk at talkable pace"
	SeedFallbackDiet         = "Whole foods focus: lean protein, fibre, water; limit ultra-processed"
)

// SeedRules derives the seed bundle from a profile and its vitals.  It never
// calls out and never fails.
func SeedRules(profile *pkg.Profile, vitals pkg.Vitals, lang string) pkg.SeedBundle {
	if profile == nil {
		profile = &pkg.Profile{}
	}
	conds := make(map[string]bool, len(profile.Conditions))
	for _, c := range profile.Conditions {
		conds[strings.ToLower(strings.TrimSpace(c))] = true
	}
	risk := strings.ToLower(strings.TrimSpace(profile.RiskLevel))
	if risk == "" {
		risk = pkg.DefaultRiskLevel
	}
	if lang == "" {
		lang = pkg.DefaultLanguage
	}
	mealPref := ""
	if profile.MealPreference != nil {
		mealPref = strings.ToLower(strings.TrimSpace(*profile.MealPreference))
	}

	var exercise, diet []string
	tags := map[string]bool{}

	if conds["diabetes"] {
		exercise = append(exercise, SeedDiabetesExercise)
		diet = append(diet, SeedDiabetesDiet)
		tags["diabetes"], tags["glycemic"] = true, true
	}
	if conds["hypertension"] {
		exercise = append(exercise, SeedHypertensionExercise)
		diet = append(diet, SeedHypertensionDiet)
		tags["hypertension"], tags["low_sodium"] = true, true
	}
	if profile.Age != nil && *profile.Age >= 60 {
		exercise = append(exercise, SeedSeniorExercise)
		tags["senior_friendly"] = true
	}
	if risk == "high" {
		exercise = append(exercise, SeedHighRiskExercise)
		tags["high_risk"] = true
	}
	for _, t := range pkg.VitalTypes {
		if vitals.Has(t) {
			tags[t+"_aware"] = true
		}
	}
	if mealPref != "" {
		tags["meal_"+mealPref] = true
		if strings.Contains(mealPref, "veg") {
			diet = append(diet, SeedVegetarianDiet)
		}
	}

	if len(exercise) == 0 {
		exercise = append(exercise, SeedFallbackExercise)
	}
	if len(diet) == 0 {
		diet = append(diet, SeedFallbackDiet)
	}

	return pkg.SeedBundle{
		Lang:          lang,
		ExerciseSeeds: capSeeds(exercise),
		DietSeeds:     capSeeds(diet),
		Tags:          sortedKeys(tags),
	}
}

func capSeeds(s []string) []string {
	if len(s) > maxSeeds {
		return s[:maxSeeds]
	}
	return s
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
