package pkg

import (
	"strings"
	"time"
)

// Profile is the patient profile row the feed pipeline, chat relay and
// reminders read from.  Conditions is never nil once loaded by the repository.
type Profile struct {
	ID               string   `json:"id"`
	Age              *int     `json:"age,omitempty"`
	Gender           *string  `json:"gender,omitempty"`
	Language         string   `json:"language"`
	RiskLevel        string   `json:"risk_level"`
	Conditions       []string `json:"conditions"`
	MealPreference   *string  `json:"meal_preference,omitempty"`
	State            string   `json:"state"`
	District         string   `json:"district"`
	PatientID        *string  `json:"patient_id,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Name             *string  `json:"name,omitempty"`
	FullName         *string  `json:"full_name,omitempty"`
	FirstName        *string  `json:"first_name,omitempty"`
	AssignedWorkerID *string  `json:"assigned_worker_id,omitempty"`
}

const (
	DefaultLanguage  = "en"
	DefaultRiskLevel = "low"
)

// Vital types recorded in the vitals log.
const (
	VitalBP      = "bp"
	VitalGlucose = "glucose"
	VitalWeight  = "weight"
)

// VitalTypes lists the vital types relevant to feed generation, in prompt order.
var VitalTypes = []string{VitalBP, VitalGlucose, VitalWeight}

// VitalReading is a single measurement event in the append-only vitals log.
type VitalReading struct {
	Type       string    `json:"type"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	MeasuredAt time.Time `json:"measured_at"`
}

// Vitals maps a vital type to its formatted latest value ("120/80 mmHg").
// A missing key means no reading is known for that type.
type Vitals map[string]string

// Has reports whether a non-empty value is known for the vital type.
func (v Vitals) Has(vitalType string) bool {
	return v[vitalType] != ""
}

// Snapshot returns the value for the type or "unknown" when none exists.
func (v Vitals) Snapshot(vitalType string) string {
	if s := v[vitalType]; s != "" {
		return s
	}
	return "unknown"
}

// FormatVital renders a value with its unit.  An empty value yields "".
func FormatVital(value, unit string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if unit == "" {
		return value
	}
	return strings.TrimSpace(value + " " + unit)
}

// LatestByType reduces readings ordered by measured_at descending to the
// first reading seen for each type.  Types are compared lower-cased and
// trimmed; readings with an empty type are ignored.
func LatestByType(readings []VitalReading) Vitals {
	out := Vitals{}
	for _, r := range readings {
		t := strings.ToLower(strings.TrimSpace(r.Type))
		if t == "" {
			continue
		}
		if _, seen := out[t]; seen {
			continue
		}
		out[t] = FormatVital(r.Value, r.Unit)
	}
	return out
}

// SeedBundle carries the deterministic suggestions and mandatory tags used to
// steer the LLM prompt and post-process its output.
type SeedBundle struct {
	Lang          string   `json:"lang"`
	ExerciseSeeds []string `json:"seed_exercise"`
	DietSeeds     []string `json:"seed_diet"`
	Tags          []string `json:"tags"`
}

// ItemType is one of the six feed item kinds.
type ItemType string

const (
	ItemExercise  ItemType = "exercise"
	ItemDiet      ItemType = "diet"
	ItemHabit     ItemType = "habit"
	ItemEducation ItemType = "education"
	ItemReminder  ItemType = "reminder"
	ItemRecipe    ItemType = "recipe"
)

// RequiredItemTypes is the exact set of item types a feed must contain.
var RequiredItemTypes = []ItemType{ItemDiet, ItemEducation, ItemHabit, ItemReminder, ItemExercise, ItemRecipe}

// FeedItem is one generated item.  The recipe fields are only set on the
// recipe item.
type FeedItem struct {
	ItemType      ItemType `json:"item_type"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	Tags          []string `json:"tags"`
	DietAlignment string   `json:"diet_alignment,omitempty"`
	Ingredients   []string `json:"ingredients,omitempty"`
	Instructions  []string `json:"instructions,omitempty"`
	SuitableFor   []string `json:"suitable_for,omitempty"`
}

// RecipeDetails are the recipe-only fields, stored alongside the item row.
type RecipeDetails struct {
	DietAlignment string   `json:"diet_alignment"`
	Ingredients   []string `json:"ingredients"`
	Instructions  []string `json:"instructions"`
	SuitableFor   []string `json:"suitable_for"`
}

// Recipe returns the recipe fields of a recipe item, or nil for any other type.
func (it FeedItem) Recipe() *RecipeDetails {
	if it.ItemType != ItemRecipe {
		return nil
	}
	suitable := it.SuitableFor
	if suitable == nil {
		suitable = []string{}
	}
	return &RecipeDetails{
		DietAlignment: it.DietAlignment,
		Ingredients:   it.Ingredients,
		Instructions:  it.Instructions,
		SuitableFor:   suitable,
	}
}

// Feed is the generator output: a headline plus the six items.
type Feed struct {
	Headline string     `json:"headline"`
	Items    []FeedItem `json:"items"`
}

// Constants recorded on every persisted feed item.
const (
	FeedSource   = "ai+rules"
	FeedValidFor = 1
	FeedDayIndex = 0
)

// StoredFeedItem is a persisted user_feed_items row.
type StoredFeedItem struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	FeedDate   string         `json:"feed_date"`
	ItemType   ItemType       `json:"item_type"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Lang       string         `json:"lang"`
	Tags       []string       `json:"tags"`
	RiskLevel  string         `json:"risk_level"`
	Conditions []string       `json:"conditions"`
	ValidFor   int            `json:"valid_for"`
	DayIndex   int            `json:"day_index"`
	Source     string         `json:"source"`
	Recipe     *RecipeDetails `json:"recipe,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DailyFeed is the one-per-user-per-day headline record.
type DailyFeed struct {
	UserID   string `json:"user_id"`
	FeedDate string `json:"feed_date"`
	Lang     string `json:"lang"`
	Headline string `json:"headline"`
}

// BatchSummary is returned by a paged refresh over many users.
type BatchSummary struct {
	Requested int      `json:"requested"`
	Refreshed int      `json:"refreshed"`
	Errors    []string `json:"errors"`
	Message   string   `json:"message,omitempty"`
}

// ChatMessage is a relayed message between a patient and a care worker.
type ChatMessage struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	PatientID string    `json:"patient_id"`
	HelperID  string    `json:"helper_id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is an upcoming visit; ScheduledTime is stored in UTC.
type Appointment struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// Reminder delivery statuses.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ReminderDetail describes the outcome for one patient or number.
type ReminderDetail struct {
	AppointmentID string `json:"appt_id,omitempty"`
	PatientID     string `json:"patient_id"`
	To            string `json:"to,omitempty"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ReminderReport summarises a reminder dispatch run.
type ReminderReport struct {
	Sent    int              `json:"sent"`
	Skipped int              `json:"skipped"`
	Failed  int              `json:"failed"`
	Details []ReminderDetail `json:"details"`
}
