package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthfeed/internal/chat"
	"healthfeed/internal/core"
	"healthfeed/internal/reminder"
	"healthfeed/pkg"

	"go.uber.org/zap"
)

// FeedService runs the feed pipeline.
type FeedService interface {
	RefreshUser(ctx context.Context, userID, lang string) (int, error)
	RefreshAll(ctx context.Context, offset, limit int) pkg.BatchSummary
	FeedDate() string
}

// FeedReader reads stored feeds back.
type FeedReader interface {
	GetDailyFeed(ctx context.Context, userID, feedDate string) (*pkg.DailyFeed, error)
	ListFeedItems(ctx context.Context, userID, feedDate string) ([]pkg.StoredFeedItem, error)
}

// ChatService resolves rooms and serves the relay socket.
type ChatService interface {
	RoomFor(ctx context.Context, patientID string) (roomID, helperID string, err error)
	History(ctx context.Context, roomID string, limit int) ([]pkg.ChatMessage, error)
	Handle(w http.ResponseWriter, r *http.Request, roomID string)
}

// ReminderService dispatches SMS reminders.
type ReminderService interface {
	SendDailyVitals(ctx context.Context) (*pkg.ReminderReport, error)
	SendAppointments(ctx context.Context, windowMinutes int) (*pkg.ReminderReport, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server.
type Server struct {
	Feeds     FeedService
	FeedStore FeedReader
	Chat      ChatService
	Reminders ReminderService
	Logger    *zap.Logger

	allowedOrigins map[string]bool
}

// NewServer constructs a Server.  Requests from allowedOrigins get CORS
// headers.
func NewServer(feeds FeedService, store FeedReader, chatSvc ChatService, reminders ReminderService, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Server{
		Feeds:          feeds,
		FeedStore:      store,
		Chat:           chatSvc,
		Reminders:      reminders,
		Logger:         logger,
		allowedOrigins: origins,
	}
}

// ServeHTTP dispatches incoming requests based on the URL path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cors(w, r) {
		return
	}
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(rec, r)
	// the websocket handler hijacks the connection and logs on its own
	if !strings.HasPrefix(r.URL.Path, "/ws/") {
		s.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	parts := strings.Split(path, "/")
	switch {
	case path == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
	case path == "/healthz" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	// POST /feed/generate/{user_id}/{lang}
	case strings.HasPrefix(path, "/feed/generate/") && r.Method == http.MethodPost:
		if len(parts) != 5 || parts[3] == "" || parts[4] == "" {
			http.NotFound(w, r)
			return
		}
		s.handleGenerate(w, r, parts[3], parts[4])
	// POST /feed/refresh_all?limit=&offset=
	case path == "/feed/refresh_all" && r.Method == http.MethodPost:
		s.handleRefreshAll(w, r)
	// reserved segments, never user ids
	case path == "/feed/refresh_all" || path == "/feed/generate" || strings.HasPrefix(path, "/feed/generate/"):
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
	// GET /feed/{user_id}?date=YYYY-MM-DD
	case strings.HasPrefix(path, "/feed/") && len(parts) == 3 && r.Method == http.MethodGet:
		s.handleGetFeed(w, r, parts[2])

	// GET /chat/room/{room_id}/messages
	case strings.HasPrefix(path, "/chat/room/") && strings.HasSuffix(path, "/messages") && r.Method == http.MethodGet:
		if len(parts) != 5 {
			http.NotFound(w, r)
			return
		}
		s.handleChatHistory(w, r, parts[3])
	// GET /chat/room/{patient_id}
	case strings.HasPrefix(path, "/chat/room/") && len(parts) == 4 && r.Method == http.MethodGet:
		s.handleChatRoom(w, r, parts[3])
	// GET /ws/{room_id}
	case strings.HasPrefix(path, "/ws/") && len(parts) == 3 && r.Method == http.MethodGet:
		s.Chat.Handle(w, r, parts[2])

	case path == "/send-daily-vitals-reminders" && r.Method == http.MethodGet:
		s.handleVitalsReminders(w, r)
	case path == "/send-appointment-reminders-now" && r.Method == http.MethodGet:
		s.handleAppointmentReminders(w, r)
	default:
		http.NotFound(w, r)
	}
}

// cors sets CORS headers for allowed origins and answers preflight requests.
// It reports whether the request was fully handled.
func (s *Server) cors(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.allowedOrigins[origin] {
		return false
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		}
		h.Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, userID, lang string) {
	count, err := s.Feeds.RefreshUser(r.Context(), userID, lang)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"count":   count,
		"message": "refreshed",
	})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(q.Get("limit"), core.DefaultBatchLimit, 1, core.MaxBatchLimit)
	if !ok {
		writeValidation(w, "limit", "limit must be an integer between 1 and 1000")
		return
	}
	offset, ok := queryInt(q.Get("offset"), 0, 0, -1)
	if !ok {
		writeValidation(w, "offset", "offset must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, s.Feeds.RefreshAll(r.Context(), offset, limit))
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.Feeds.FeedDate()
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeValidation(w, "date", "date must be YYYY-MM-DD")
		return
	}
	daily, err := s.FeedStore.GetDailyFeed(ctx, userID, date)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Feed not found"})
			return
		}
		s.serverError(w, "failed to load daily feed", err)
		return
	}
	items, err := s.FeedStore.ListFeedItems(ctx, userID, date)
	if err != nil {
		s.serverError(w, "failed to load feed items", err)
		return
	}
	if items == nil {
		items = []pkg.StoredFeedItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   daily.UserID,
		"feed_date": daily.FeedDate,
		"lang":      daily.Lang,
		"headline":  daily.Headline,
		"items":     items,
	})
}

func (s *Server) handleChatRoom(w http.ResponseWriter, r *http.Request, patientID string) {
	roomID, helperID, err := s.Chat.RoomFor(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, chat.ErrNoHelper) {
			writeJSON(w, http.StatusOK, map[string]string{"error": "No helper assigned to this patient."})
			return
		}
		s.serverError(w, "failed to resolve chat room", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room_id": roomID, "helper_id": helperID})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, roomID string) {
	limit, ok := queryInt(r.URL.Query().Get("limit"), chat.DefaultHistoryLimit, 1, 500)
	if !ok {
		writeValidation(w, "limit", "limit must be an integer between 1 and 500")
		return
	}
	msgs, err := s.Chat.History(r.Context(), roomID, limit)
	if err != nil {
		s.serverError(w, "failed to load chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "messages": msgs})
}

func (s *Server) handleVitalsReminders(w http.ResponseWriter, r *http.Request) {
	report, err := s.Reminders.SendDailyVitals(r.Context())
	if err != nil {
		s.serverError(w, "vitals reminders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAppointmentReminders(w http.ResponseWriter, r *http.Request) {
	window, ok := queryInt(r.URL.Query().Get("window_minutes"), reminder.DefaultWindow, reminder.MinWindow, reminder.MaxWindow)
	if !ok {
		writeValidation(w, "window_minutes", reminder.ErrInvalidWindow.Error())
		return
	}
	report, err := s.Reminders.SendAppointments(r.Context(), window)
	if err != nil {
		if errors.Is(err, reminder.ErrInvalidWindow) {
			writeValidation(w, "window_minutes", err.Error())
			return
		}
		s.serverError(w, "appointment reminders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.Logger.Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
}

// queryInt parses an optional integer parameter.  hi < 0 means unbounded.
func queryInt(raw string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		return 0, false
	}
	return v, true
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"query", field}, "msg": msg}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
