package db

import (
	"context"
	"time"

	"healthfeed/pkg"
)

// ListAppointmentsBetween returns appointments scheduled in [from, to).
func (r *Repository) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]pkg.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, scheduled_time
         FROM appointments
         WHERE scheduled_time >= $1 AND scheduled_time < $2
         ORDER BY scheduled_time, id`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Appointment
	for rows.Next() {
		var a pkg.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.ScheduledTime); err != nil {
			return nil, err
		}
		a.ScheduledTime = a.ScheduledTime.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertReminder logs a delivered reminder.
func (r *Repository) InsertReminder(ctx context.Context, patientID, message string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO reminders (patient_id, message) VALUES ($1, $2)`, patientID, message)
	return err
}
