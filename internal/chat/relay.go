// Package chat relays messages between a patient and their assigned care
// worker.  Each pair shares a room; every frame sent into a room is fanned
// out to all of its connections and stored.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"healthfeed/pkg"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNoHelper means the patient has no assigned care worker yet.
	ErrNoHelper = errors.New("no helper assigned to this patient")
	// ErrBadRoom is returned for room ids not shaped "{patient}_{helper}".
	ErrBadRoom = errors.New("invalid room id")
)

// DefaultHistoryLimit caps message history responses when no limit is given.
const DefaultHistoryLimit = 50

const (
	defaultPingInterval = 25 * time.Second
	defaultWriteWait    = 10 * time.Second
	maxFrameSize        = 64 << 10
)

// Store is what the relay reads and writes.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*pkg.Profile, error)
	InsertMessage(ctx context.Context, m *pkg.ChatMessage) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]pkg.ChatMessage, error)
}

// Frame is the JSON payload exchanged over the socket.
type Frame struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Relay serves room WebSockets on top of a Hub.
type Relay struct {
	Hub          *Hub
	Store        Store
	Logger       *zap.Logger
	Upgrader     websocket.Upgrader
	PingInterval time.Duration
}

// NewRelay builds a relay whose upgrader accepts the given origins.  An empty
// list accepts any origin.
func NewRelay(store Store, allowedOrigins []string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		Hub:    NewHub(defaultWriteWait),
		Store:  store,
		Logger: logger,
		Upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		PingInterval: defaultPingInterval,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || set[origin]
	}
}

// RoomID joins a patient and helper into a room id.
func RoomID(patientID, helperID string) string {
	return patientID + "_" + helperID
}

// ParseRoomID splits a room id back into patient and helper ids.  The id must
// contain exactly one underscore.
func ParseRoomID(roomID string) (patientID, helperID string, err error) {
	if strings.Count(roomID, "_") != 1 {
		return "", "", fmt.Errorf("%w: %q", ErrBadRoom, roomID)
	}
	patientID, helperID, _ = strings.Cut(roomID, "_")
	if patientID == "" || helperID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRoom, roomID)
	}
	return patientID, helperID, nil
}

// RoomFor resolves the room of a patient and their assigned worker.
func (r *Relay) RoomFor(ctx context.Context, patientID string) (roomID, helperID string, err error) {
	p, err := r.Store.GetProfile(ctx, patientID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return "", "", ErrNoHelper
		}
		return "", "", err
	}
	if p.AssignedWorkerID == nil || *p.AssignedWorkerID == "" {
		return "", "", ErrNoHelper
	}
	return RoomID(patientID, *p.AssignedWorkerID), *p.AssignedWorkerID, nil
}

// History returns the latest messages of a room, oldest first.
func (r *Relay) History(ctx context.Context, roomID string, limit int) ([]pkg.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.Store.ListMessages(ctx, roomID, limit)
}

// Handle upgrades the request and serves the room until the peer leaves.
func (r *Relay) Handle(w http.ResponseWriter, req *http.Request, roomID string) {
	conn, err := r.Upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.Logger.Warn("websocket upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	r.Serve(req.Context(), roomID, conn)
}

// Serve runs the read loop for one connection.  Every well-formed frame is
// broadcast to the room and persisted; malformed frames are logged and
// dropped.  A storage failure never ends the session.
func (r *Relay) Serve(ctx context.Context, roomID string, conn *websocket.Conn) {
	c := NewClient(roomID, conn)
	r.Hub.Join(c)
	defer r.Hub.Leave(c)

	log := r.Logger.With(zap.String("room_id", roomID))
	log.Debug("websocket joined", zap.Int("room_size", r.Hub.Size(roomID)))

	patientID, helperID, roomErr := ParseRoomID(roomID)
	if roomErr != nil {
		log.Warn("room id cannot be stored, relaying only", zap.Error(roomErr))
	}

	interval := r.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	pongWait := 2 * interval
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := c.write(websocket.PingMessage, nil, defaultWriteWait); err != nil {
					r.Hub.Leave(c)
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Sender == "" || f.Text == "" {
			log.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}

		r.Hub.Broadcast(roomID, data)

		if roomErr != nil {
			continue
		}
		msg := &pkg.ChatMessage{
			RoomID:    roomID,
			PatientID: patientID,
			HelperID:  helperID,
			Sender:    f.Sender,
			Message:   f.Text,
		}
		if err := r.Store.InsertMessage(ctx, msg); err != nil {
			log.Error("failed to store chat message", zap.Error(err))
		}
	}
}
