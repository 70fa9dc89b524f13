package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"healthfeed/pkg"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository wraps database operations for profiles, vitals, feeds, chat
// messages and reminders.  A single postgres database backs all of them.
type Repository struct {
	DB       *sql.DB
	Notifier *Notifier
	Logger   *zap.Logger
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.  A nil
// notifier disables feed refresh notifications.
func NewRepository(db *sql.DB, notifier *Notifier, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{DB: db, Notifier: notifier, Logger: logger}
}

const profileColumns = `id, age, gender, language, risk_level, conditions, state, district,
       meal_preference, patient_id, phone, name, full_name, first_name, assigned_worker_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*pkg.Profile, error) {
	var p pkg.Profile
	var age sql.NullInt64
	var gender, lang, risk, state, district sql.NullString
	var meal, patientID, phone sql.NullString
	var name, fullName, firstName, assignedTo sql.NullString
	var conditions []string
	err := row.Scan(&p.ID, &age, &gender, &lang, &risk, pq.Array(&conditions), &state, &district,
		&meal, &patientID, &phone, &name, &fullName, &firstName, &assignedTo)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	p.Gender = nullableString(gender)
	p.Language = lang.String
	if p.Language == "" {
		p.Language = pkg.DefaultLanguage
	}
	p.RiskLevel = risk.String
	if p.RiskLevel == "" {
		p.RiskLevel = pkg.DefaultRiskLevel
	}
	if conditions == nil {
		conditions = []string{}
	}
	p.Conditions = conditions
	p.State = state.String
	p.District = district.String
	p.MealPreference = nullableString(meal)
	p.PatientID = nullableString(patientID)
	p.Phone = phone.String
	p.Name = nullableString(name)
	p.FullName = nullableString(fullName)
	p.FirstName = nullableString(firstName)
	p.AssignedWorkerID = nullableString(assignedTo)
	return &p, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}

// GetProfile loads one profile.  A missing row is reported as pkg.ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*pkg.Profile, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+profileColumns+`
         FROM profiles
         WHERE id = $1`, userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, pkg.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

// GetProfilesByIDs loads the given profiles keyed by id.  Unknown ids are
// simply absent from the result.
func (r *Repository) GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*pkg.Profile, error) {
	out := make(map[string]*pkg.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+profileColumns+`
         FROM profiles
         WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// ListProfiles returns every profile ordered by id.
func (r *Repository) ListProfiles(ctx context.Context) ([]*pkg.Profile, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+profileColumns+`
         FROM profiles
         ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*pkg.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProfileIDs pages through profile ids in a stable order.
func (r *Repository) ListProfileIDs(ctx context.Context, offset, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM profiles
         ORDER BY id
         OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestVitals returns the most recent reading of each known vital type for
// a patient.  DISTINCT ON picks the true latest row per type from the
// idx_vitals_latest index instead of scanning a recent window.  A nil or
// empty patient id yields no vitals.
func (r *Repository) LatestVitals(ctx context.Context, patientID *string) (pkg.Vitals, error) {
	if patientID == nil || strings.TrimSpace(*patientID) == "" {
		return pkg.Vitals{}, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT ON (lower(btrim(type))) lower(btrim(type)), value, COALESCE(unit, ''), measured_at
         FROM vitals
         WHERE patient_id = $1
           AND lower(btrim(type)) = ANY($2)
         ORDER BY lower(btrim(type)), measured_at DESC`,
		*patientID, pq.Array(pkg.VitalTypes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var readings []pkg.VitalReading
	for rows.Next() {
		var v pkg.VitalReading
		if err := rows.Scan(&v.Type, &v.Value, &v.Unit, &v.MeasuredAt); err != nil {
			return nil, err
		}
		readings = append(readings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pkg.LatestByType(readings), nil
}
