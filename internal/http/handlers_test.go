package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"healthfeed/internal/chat"
	"healthfeed/internal/reminder"
	"healthfeed/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFeeds struct {
	refreshErr   error
	lastUser     string
	lastLang     string
	lastOffset   int
	lastLimit    int
	batchSummary pkg.BatchSummary
}

func (f *fakeFeeds) RefreshUser(_ context.Context, userID, lang string) (int, error) {
	f.lastUser, f.lastLang = userID, lang
	if f.refreshErr != nil {
		return 0, f.refreshErr
	}
	return 6, nil
}

func (f *fakeFeeds) RefreshAll(_ context.Context, offset, limit int) pkg.BatchSummary {
	f.lastOffset, f.lastLimit = offset, limit
	return f.batchSummary
}

func (f *fakeFeeds) FeedDate() string { return "2026-10-14" }

type fakeFeedStore struct {
	daily map[string]*pkg.DailyFeed
	items []pkg.StoredFeedItem
}

func (f *fakeFeedStore) GetDailyFeed(_ context.Context, userID, date string) (*pkg.DailyFeed, error) {
	if d, ok := f.daily[userID+"|"+date]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("daily feed: %w", pkg.ErrNotFound)
}

func (f *fakeFeedStore) ListFeedItems(context.Context, string, string) ([]pkg.StoredFeedItem, error) {
	return f.items, nil
}

type fakeChat struct {
	rooms     map[string]string
	lastLimit int
}

func (f *fakeChat) RoomFor(_ context.Context, patientID string) (string, string, error) {
	helper, ok := f.rooms[patientID]
	if !ok {
		return "", "", chat.ErrNoHelper
	}
	return patientID + "_" + helper, helper, nil
}

func (f *fakeChat) History(_ context.Context, roomID string, limit int) ([]pkg.ChatMessage, error) {
	f.lastLimit = limit
	return []pkg.ChatMessage{{ID: 1, RoomID: roomID, Sender: "patient", Message: "hello"}}, nil
}

func (f *fakeChat) Handle(w http.ResponseWriter, _ *http.Request, roomID string) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(roomID))
}

type fakeReminders struct {
	lastWindow int
	err        error
}

func (f *fakeReminders) SendDailyVitals(context.Context) (*pkg.ReminderReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pkg.ReminderReport{Sent: 2, Details: []pkg.ReminderDetail{}}, nil
}

func (f *fakeReminders) SendAppointments(_ context.Context, window int) (*pkg.ReminderReport, error) {
	f.lastWindow = window
	return &pkg.ReminderReport{Skipped: 1, Details: []pkg.ReminderDetail{{AppointmentID: "a1", PatientID: "u2", Status: pkg.StatusSkipped, Reason: "no profile"}}}, nil
}

type fixture struct {
	srv       *Server
	feeds     *fakeFeeds
	store     *fakeFeedStore
	chat      *fakeChat
	reminders *fakeReminders
}

func newFixture() *fixture {
	f := &fixture{
		feeds:     &fakeFeeds{},
		store:     &fakeFeedStore{daily: map[string]*pkg.DailyFeed{}},
		chat:      &fakeChat{rooms: map[string]string{"p1": "w9"}},
		reminders: &fakeReminders{},
	}
	f.srv = NewServer(f.feeds, f.store, f.chat, f.reminders, []string{"http://localhost:5173"}, zap.NewNop())
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestRoot(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", body["message"])

	rec, _ = f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodPost, "/feed/generate/u1/hi")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, float64(6), body["count"])
	assert.Equal(t, "refreshed", body["message"])
	assert.Equal(t, "hi", f.feeds.lastLang)

	f.feeds.refreshErr = errors.New("u1: 404 Profile not found")
	rec, body = f.do(t, http.MethodPost, "/feed/generate/u1/hi")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "u1: 404 Profile not found", body["detail"])

	rec, _ = f.do(t, http.MethodGet, "/feed/generate/u1/hi")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshAll_QueryValidation(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantOffset int
		wantLimit  int
	}{
		{"", http.StatusOK, 0, 100},
		{"?limit=1&offset=20", http.StatusOK, 20, 1},
		{"?limit=1000", http.StatusOK, 0, 1000},
		{"?limit=0", http.StatusUnprocessableEntity, 0, 0},
		{"?limit=1001", http.StatusUnprocessableEntity, 0, 0},
		{"?limit=abc", http.StatusUnprocessableEntity, 0, 0},
		{"?offset=-1", http.StatusUnprocessableEntity, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f := newFixture()
			f.feeds.batchSummary = pkg.BatchSummary{Requested: 0, Errors: []string{}, Message: "No users in range"}
			rec, body := f.do(t, http.MethodPost, "/feed/refresh_all"+tt.query)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantOffset, f.feeds.lastOffset)
				assert.Equal(t, tt.wantLimit, f.feeds.lastLimit)
				assert.Equal(t, "No users in range", body["message"])
				assert.Equal(t, []any{}, body["errors"])
			} else {
				assert.Equal(t, 0, f.feeds.lastLimit, "batch must not run on invalid input")
			}
		})
	}
}

func TestGetFeed(t *testing.T) {
	f := newFixture()
	f.store.daily["u1|2026-10-14"] = &pkg.DailyFeed{UserID: "u1", FeedDate: "2026-10-14", Lang: "en", Headline: "Your plan for today"}
	f.store.items = []pkg.StoredFeedItem{{ID: "i1", ItemType: pkg.ItemHabit, Title: "Sleep"}}

	rec, body := f.do(t, http.MethodGet, "/feed/u1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your plan for today", body["headline"])
	assert.Len(t, body["items"], 1)

	rec, _ = f.do(t, http.MethodGet, "/feed/u1?date=2026-10-13")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/feed/u1?date=yesterday")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetFeed_ReservedSegments(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"refresh_all", "generate"} {
		f.store.daily[id+"|2026-10-14"] = &pkg.DailyFeed{UserID: id, FeedDate: "2026-10-14"}
	}

	for _, target := range []string{"/feed/refresh_all", "/feed/generate", "/feed/generate/u1"} {
		rec, body := f.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"), target)
		assert.Equal(t, "Method Not Allowed", body["detail"], target)
	}
	assert.Zero(t, f.feeds.lastLimit, "refresh_all must not run on GET")
}

func TestChatRoom(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/chat/room/p1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1_w9", body["room_id"])
	assert.Equal(t, "w9", body["helper_id"])

	rec, body = f.do(t, http.MethodGet, "/chat/room/p2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No helper assigned to this patient.", body["error"])

	rec, body = f.do(t, http.MethodGet, "/chat/room/p1_w9/messages?limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, f.chat.lastLimit)
	assert.Len(t, body["messages"], 1)

	rec, _ = f.do(t, http.MethodGet, "/ws/p1_w9")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "p1_w9", rec.Body.String())
}

func TestReminders(t *testing.T) {
	f := newFixture()
	rec, body := f.do(t, http.MethodGet, "/send-daily-vitals-reminders")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["sent"])

	rec, _ = f.do(t, http.MethodGet, "/send-appointment-reminders-now")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reminder.DefaultWindow, f.reminders.lastWindow)

	rec, body = f.do(t, http.MethodGet, "/send-appointment-reminders-now?window_minutes=30")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, f.reminders.lastWindow)
	details := body["details"].([]any)
	assert.Equal(t, "a1", details[0].(map[string]any)["appt_id"])

	for _, bad := range []string{"0", "181", "x"} {
		rec, _ = f.do(t, http.MethodGet, "/send-appointment-reminders-now?window_minutes="+bad)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, bad)
	}

	f.reminders.err = errors.New("failed to fetch profiles: db down")
	rec, body = f.do(t, http.MethodGet, "/send-daily-vitals-reminders")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["detail"], "db down")
}

func TestCORS(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodOptions, "/feed/refresh_all", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
