package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"healthfeed/internal/kv"
	"healthfeed/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	profiles  []*pkg.Profile
	appts     []pkg.Appointment
	listErr   error
	apptErr   error
	logged    []string
	from, to  time.Time
	byIDsArgs []string
}

func (f *fakeStore) ListProfiles(context.Context) ([]*pkg.Profile, error) {
	return f.profiles, f.listErr
}

func (f *fakeStore) GetProfilesByIDs(_ context.Context, ids []string) (map[string]*pkg.Profile, error) {
	f.byIDsArgs = ids
	out := map[string]*pkg.Profile{}
	for _, p := range f.profiles {
		for _, id := range ids {
			if p.ID == id {
				out[id] = p
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListAppointmentsBetween(_ context.Context, from, to time.Time) ([]pkg.Appointment, error) {
	f.from, f.to = from, to
	return f.appts, f.apptErr
}

func (f *fakeStore) InsertReminder(_ context.Context, patientID, message string) error {
	f.logged = append(f.logged, patientID+": "+message)
	return nil
}

type sent struct{ body, from, to string }

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failTo map[string]error
}

func (f *fakeSender) Send(_ context.Context, body, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTo[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{body, from, to})
	return nil
}

var fixedNow = time.Date(2026, 10, 14, 4, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore, sender *fakeSender, dedup kv.Store) *Service {
	svc := NewService(store, sender, "+15550001111", dedup, nil, zap.NewNop())
	svc.Now = func() time.Time { return fixedNow }
	return svc
}

func TestSendDailyVitals(t *testing.T) {
	store := &fakeStore{profiles: []*pkg.Profile{
		{ID: "u1", Phone: "9876543210, +15550002222", Name: strPtr("Asha")},
		{ID: "u2", Phone: ""},
		{ID: "u3", Phone: "9000000000"},
	}}
	sender := &fakeSender{failTo: map[string]error{"+15550002222": errors.New("unreachable")}}
	svc := newTestService(store, sender, nil)

	report, err := svc.SendDailyVitals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Details, 4)

	assert.Equal(t, pkg.ReminderDetail{PatientID: "u1", To: "+919876543210", Name: "Asha", Status: pkg.StatusSent}, report.Details[0])
	assert.Equal(t, pkg.StatusFailed, report.Details[1].Status)
	assert.Equal(t, "unreachable", report.Details[1].Error)
	assert.Equal(t, pkg.ReminderDetail{PatientID: "u2", Status: pkg.StatusSkipped, Reason: "no valid phone"}, report.Details[2])
	assert.Equal(t, "", report.Details[3].Name)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Hi Asha, don’t forget to add today’s vitals.", sender.sent[0].body)
	assert.Equal(t, "+15550001111", sender.sent[0].from)
	assert.Equal(t, "Hi there, don’t forget to add today’s vitals.", sender.sent[1].body)
	assert.Len(t, store.logged, 2)
}

func TestSendDailyVitals_Dedup(t *testing.T) {
	store := &fakeStore{profiles: []*pkg.Profile{{ID: "u1", Phone: "9876543210"}}}
	sender := &fakeSender{}
	dedup := kv.NewMemoryStore()
	svc := newTestService(store, sender, dedup)

	first, err := svc.SendDailyVitals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := svc.SendDailyVitals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, "already reminded today", second.Details[0].Reason)
	assert.Len(t, sender.sent, 1)

	v, err := dedup.Get(context.Background(), "reminder:vitals:u1:2026-10-14:+919876543210")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14T04:00:00Z", v, "the key records when the reminder went out")
}

func TestSendDailyVitals_FailedSendReleasesKey(t *testing.T) {
	store := &fakeStore{profiles: []*pkg.Profile{{ID: "u1", Phone: "9876543210"}}}
	sender := &fakeSender{failTo: map[string]error{"+919876543210": errors.New("gateway down")}}
	dedup := kv.NewMemoryStore()
	svc := newTestService(store, sender, dedup)

	report, err := svc.SendDailyVitals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	sender.failTo = nil
	report, err = svc.SendDailyVitals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestSendDailyVitals_ListError(t *testing.T) {
	svc := newTestService(&fakeStore{listErr: errors.New("db down")}, &fakeSender{}, nil)
	_, err := svc.SendDailyVitals(context.Background())
	assert.ErrorContains(t, err, "failed to fetch profiles")
}

func TestSendAppointments(t *testing.T) {
	store := &fakeStore{
		profiles: []*pkg.Profile{
			{ID: "u1", Phone: "9876543210", FullName: strPtr("Asha Rao")},
			{ID: "u3"},
		},
		appts: []pkg.Appointment{
			{ID: "a1", PatientID: "u1", ScheduledTime: time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC)},
			{ID: "a2", PatientID: "u2", ScheduledTime: time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC)},
			{ID: "a3", PatientID: "u3", ScheduledTime: time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC)},
		},
	}
	sender := &fakeSender{}
	svc := newTestService(store, sender, nil)

	report, err := svc.SendAppointments(context.Background(), DefaultWindow)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, store.from)
	assert.Equal(t, fixedNow.Add(90*time.Minute), store.to)
	assert.Equal(t, []string{"u1", "u2", "u3"}, store.byIDsArgs)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, pkg.ReminderDetail{AppointmentID: "a1", PatientID: "u1", To: "+919876543210", Status: pkg.StatusSent}, report.Details[0])
	assert.Equal(t, "no profile", report.Details[1].Reason)
	assert.Equal(t, "no valid phone", report.Details[2].Reason)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hi Asha Rao, reminder: your appointment is at 14 Oct, 10:30 AM IST. (APPT:a1)", sender.sent[0].body)
}

func TestSendAppointments_Dedup(t *testing.T) {
	store := &fakeStore{
		profiles: []*pkg.Profile{{ID: "u1", Phone: "9876543210"}},
		appts:    []pkg.Appointment{{ID: "a1", PatientID: "u1", ScheduledTime: fixedNow.Add(time.Hour)}},
	}
	sender := &fakeSender{}
	svc := newTestService(store, sender, kv.NewMemoryStore())

	_, err := svc.SendAppointments(context.Background(), 120)
	require.NoError(t, err)
	report, err := svc.SendAppointments(context.Background(), 120)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, sender.sent, 1)
}

func TestSendAppointments_NoneInWindow(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSender{}, nil)
	report, err := svc.SendAppointments(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, &pkg.ReminderReport{Details: []pkg.ReminderDetail{}}, report)
}

func TestSendAppointments_WindowBounds(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeSender{}, nil)
	for _, w := range []int{0, -5, 181} {
		_, err := svc.SendAppointments(context.Background(), w)
		assert.ErrorIs(t, err, ErrInvalidWindow, "window %d", w)
	}
	for _, w := range []int{1, 180} {
		_, err := svc.SendAppointments(context.Background(), w)
		assert.NoError(t, err, "window %d", w)
	}
}
