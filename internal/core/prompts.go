package core

// prompts.go holds the fixed instructions sent to the LLM for feed
// generation.  Keeping them apart from the generator makes them easy to tweak
// without touching the pipeline.

import (
	"encoding/json"
	"fmt"
	"strings"

	"healthfeed/pkg"
)

// SystemSafety is the system instruction for every feed generation call.
const SystemSafety = "You are a health-support content helper. " +
	"You MUST avoid diagnosis, medication changes, or emergency guidance. " +
	"Provide only general wellness tips, light exercise suggestions, diet patterns, " +
	"and motivational/educational content. Keep content practical and safe. " +
	"Use brief safety caveats (e.g., stop if pain or dizziness). " +
	"Avoid contraindications (e.g., no high impact for joint pain)."

// DefaultHeadline is used when the model omits the headline.
const DefaultHeadline = "Your plan for today"

// AllergenTags is the closed set a recipe must pick exactly one tag from.
var AllergenTags = []string{"allergen_free", "contains_nuts", "contains_dairy", "contains_gluten", "contains_soy", "contains_egg"}

// CholesterolTags is the closed set a recipe must pick exactly one tag from.
var CholesterolTags = []string{"low_cholesterol", "not_low_cholesterol"}

// FeedJSONSchema describes the object the model has to return.
const FeedJSONSchema = `{"type":"object","properties":{"headline":{"type":"string"},` +
	`"items":{"type":"array","minItems":6,"maxItems":6,"items":{"type":"object","properties":{` +
	`"item_type":{"type":"string","enum":["exercise","diet","habit","education","reminder","recipe"]},` +
	`"title":{"type":"string"},"body":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}},` +
	`"diet_alignment":{"type":"string"},"ingredients":{"type":"array","items":{"type":"string"}},` +
	`"instructions":{"type":"array","items":{"type":"string"}},"suitable_for":{"type":"array","items":{"type":"string"}}},` +
	`"required":["item_type","title","body"]}}},"required":["items"]}`

const promptTemplate = `Create a short *but substantial* personalized feed for today.

User profile snapshot (do not repeat PII):
- Age: %s
- Gender: %s
- Language: %s
- Risk level: %s
- Conditions: %s
- Meal preference: %s
- State: %s, District: %s

Recent vitals snapshot (if any; keep only for tailoring, do not diagnose):
- BP: %s
- Glucose: %s
- Weight: %s

Seed suggestions to respect (merge/improve, keep light & safe):
- Exercise seeds: %s
- Diet seeds: %s

OUTPUT RULES (very important):
- Return STRICT JSON matching this schema (no extra keys, no prose): %s.
- Exactly 6 items total:
  1) one "diet"
  2) one "education"
  3) one "habit"
  4) one "reminder"
  5) one "exercise"
  6) one "recipe" that aligns with the "diet" item.
- Titles: more expressive, 6–12 words.
- Body length: ~400–500 characters each (aim 450±50), concise sentences, practical steps, Indian context when relevant (foods, walking), plus micro-safety guidance (e.g., stop if pain/dizzy).
- Language: %s for all text.
- Tags: add 2–5 informative tags for every item (e.g., 'low_sodium', 'high_fiber', 'senior_friendly', 'diabetic_friendly').
- For the recipe item: ALSO include these fields:
  - diet_alignment: short string describing how it fits today's diet advice
  - ingredients: 5–10 strings (simple quantities, common Indian ingredients when possible)
  - instructions: 3–6 short imperative steps
  - suitable_for: array of conditions it fits (e.g., ['diabetes','hypertension']); may be empty
  - tags MUST include:
      * exactly one allergen tag from: %s
      * exactly one cholesterol suitability tag from: %s
      * add 2–3 more helpful tags (e.g., 'high_fiber','vegetarian','budget_friendly').

SAFETY:
- No diagnosis, no medication changes, no emergencies.
- Avoid contraindications relative to conditions; keep intensities light to moderate unless clearly safe.
`

// RenderPrompt fills the feed prompt for one profile.
func RenderPrompt(profile *pkg.Profile, vitals pkg.Vitals, seeds pkg.SeedBundle) string {
	mealPref := "unspecified"
	if profile.MealPreference != nil && strings.TrimSpace(*profile.MealPreference) != "" {
		mealPref = *profile.MealPreference
	}
	return fmt.Sprintf(promptTemplate,
		optInt(profile.Age),
		optString(profile.Gender),
		seeds.Lang,
		profile.RiskLevel,
		strings.Join(profile.Conditions, ", "),
		mealPref,
		profile.State, profile.District,
		vitals.Snapshot(pkg.VitalBP),
		vitals.Snapshot(pkg.VitalGlucose),
		vitals.Snapshot(pkg.VitalWeight),
		jsonList(seeds.ExerciseSeeds),
		jsonList(seeds.DietSeeds),
		FeedJSONSchema,
		seeds.Lang,
		strings.Join(quoteAll(AllergenTags), ", "),
		strings.Join(quoteAll(CholesterolTags), ", "),
	)
}

func optInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return "unknown"
	}
	return *v
}

func jsonList(s []string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func quoteAll(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = "'" + v + "'"
	}
	return out
}
