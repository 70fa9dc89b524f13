// Package reminder sends SMS reminders to patients: a daily nudge to log
// vitals and a heads-up before upcoming appointments.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthfeed/internal/kv"
	"healthfeed/internal/sms"
	"healthfeed/pkg"

	"go.uber.org/zap"
)

// Appointment window bounds, in minutes.
const (
	DefaultWindow = 90
	MinWindow     = 1
	MaxWindow     = 180
)

// ErrInvalidWindow is returned for a window outside [MinWindow, MaxWindow].
var ErrInvalidWindow = errors.New("window_minutes must be between 1 and 180")

const vitalsDedupTTL = 24 * time.Hour

// Store is the data the dispatcher reads and the log it writes.
type Store interface {
	ListProfiles(ctx context.Context) ([]*pkg.Profile, error)
	GetProfilesByIDs(ctx context.Context, ids []string) (map[string]*pkg.Profile, error)
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]pkg.Appointment, error)
	InsertReminder(ctx context.Context, patientID, message string) error
}

// Service dispatches reminders.  KV holds the send time of each claimed
// reminder; a nil KV means every run sends again.
type Service struct {
	Store    Store
	Sender   sms.Sender
	From     string
	KV       kv.Store
	Logger   *zap.Logger
	Location *time.Location
	Now      func() time.Time
}

// NewService builds a dispatcher.  A nil location means IST.
func NewService(store Store, sender sms.Sender, from string, dedup kv.Store, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = ist
	}
	return &Service{
		Store:    store,
		Sender:   sender,
		From:     from,
		KV:       dedup,
		Logger:   logger,
		Location: loc,
		Now:      time.Now,
	}
}

// SendDailyVitals texts every profile with a phone number.
func (s *Service) SendDailyVitals(ctx context.Context) (*pkg.ReminderReport, error) {
	profiles, err := s.Store.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	today := s.Now().In(s.Location).Format("2006-01-02")

	report := newReport()
	for _, p := range profiles {
		numbers := SplitAndCleanNumbers(p.Phone)
		if len(numbers) == 0 {
			skip(report, pkg.ReminderDetail{PatientID: p.ID, Reason: "no valid phone"})
			continue
		}
		name := displayName(p)
		body := vitalsMessage(BestName(p))
		for _, to := range numbers {
			d := pkg.ReminderDetail{PatientID: p.ID, To: to, Name: name}
			key := fmt.Sprintf("reminder:vitals:%s:%s:%s", p.ID, today, to)
			s.deliver(ctx, report, d, key, vitalsDedupTTL, p.ID, body)
		}
	}
	s.Logger.Info("daily vitals reminders dispatched",
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// SendAppointments texts patients whose appointment starts within the next
// windowMinutes.
func (s *Service) SendAppointments(ctx context.Context, windowMinutes int) (*pkg.ReminderReport, error) {
	if windowMinutes < MinWindow || windowMinutes > MaxWindow {
		return nil, ErrInvalidWindow
	}
	window := time.Duration(windowMinutes) * time.Minute
	now := s.Now().UTC()
	appts, err := s.Store.ListAppointmentsBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch appointments: %w", err)
	}
	report := newReport()
	if len(appts) == 0 {
		return report, nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, a := range appts {
		if a.PatientID != "" && !seen[a.PatientID] {
			seen[a.PatientID] = true
			ids = append(ids, a.PatientID)
		}
	}
	profiles, err := s.Store.GetProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profiles: %w", err)
	}

	for _, a := range appts {
		p := profiles[a.PatientID]
		if p == nil {
			skip(report, pkg.ReminderDetail{AppointmentID: a.ID, PatientID: a.PatientID, Reason: "no profile"})
			continue
		}
		numbers := SplitAndCleanNumbers(p.Phone)
		if len(numbers) == 0 {
			skip(report, pkg.ReminderDetail{AppointmentID: a.ID, PatientID: a.PatientID, Reason: "no valid phone"})
			continue
		}
		body := appointmentMessage(BestName(p), FormatIST(a.ScheduledTime), a.ID)
		for _, to := range numbers {
			d := pkg.ReminderDetail{AppointmentID: a.ID, PatientID: a.PatientID, To: to}
			key := fmt.Sprintf("reminder:appt:%s:%s", a.ID, to)
			s.deliver(ctx, report, d, key, window, a.PatientID, body)
		}
	}
	s.Logger.Info("appointment reminders dispatched",
		zap.Int("window_minutes", windowMinutes),
		zap.Int("appointments", len(appts)),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// deliver claims the dedup key, sends, and logs the reminder.  A failed send
// releases the key so the next run retries.
func (s *Service) deliver(ctx context.Context, report *pkg.ReminderReport, d pkg.ReminderDetail, key string, ttl time.Duration, patientID, body string) {
	if s.KV != nil {
		claimed, err := s.KV.SetNX(ctx, key, s.Now().UTC().Format(time.RFC3339), ttl)
		if err != nil {
			s.Logger.Warn("reminder dedup unavailable, sending anyway", zap.String("key", key), zap.Error(err))
		} else if !claimed {
			if sentAt, err := s.KV.Get(ctx, key); err == nil {
				s.Logger.Debug("reminder already sent", zap.String("key", key), zap.String("sent_at", sentAt))
			}
			d.Reason = "already reminded today"
			skip(report, d)
			return
		}
	}

	if err := s.Sender.Send(ctx, body, s.From, d.To); err != nil {
		if s.KV != nil {
			_ = s.KV.Delete(ctx, key)
		}
		s.Logger.Warn("reminder send failed",
			zap.String("patient_id", patientID),
			zap.String("to", d.To),
			zap.Error(err),
		)
		d.Status = pkg.StatusFailed
		d.Error = err.Error()
		report.Failed++
		report.Details = append(report.Details, d)
		return
	}

	if err := s.Store.InsertReminder(ctx, patientID, body); err != nil {
		s.Logger.Warn("failed to log reminder", zap.String("patient_id", patientID), zap.Error(err))
	}
	d.Status = pkg.StatusSent
	report.Sent++
	report.Details = append(report.Details, d)
}

func skip(report *pkg.ReminderReport, d pkg.ReminderDetail) {
	d.Status = pkg.StatusSkipped
	report.Skipped++
	report.Details = append(report.Details, d)
}

func newReport() *pkg.ReminderReport {
	return &pkg.ReminderReport{Details: []pkg.ReminderDetail{}}
}
