package db

import (
	"context"

	"healthfeed/pkg"
)

// InsertMessage stores one relayed chat message and fills in its id and
// creation time.
func (r *Repository) InsertMessage(ctx context.Context, m *pkg.ChatMessage) error {
	return r.DB.QueryRowContext(ctx,
		`INSERT INTO messages (room_id, patient_id, helper_id, sender, message)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, created_at`,
		m.RoomID, m.PatientID, m.HelperID, m.Sender, m.Message,
	).Scan(&m.ID, &m.CreatedAt)
}

// ListMessages returns the newest limit messages of a room in chronological
// order.
func (r *Repository) ListMessages(ctx context.Context, roomID string, limit int) ([]pkg.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, room_id, patient_id, helper_id, sender, message, created_at
         FROM (
             SELECT id, room_id, patient_id, helper_id, sender, message, created_at
             FROM messages
             WHERE room_id = $1
             ORDER BY created_at DESC, id DESC
             LIMIT $2
         ) recent
         ORDER BY created_at ASC, id ASC`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []pkg.ChatMessage{}
	for rows.Next() {
		var m pkg.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.PatientID, &m.HelperID, &m.Sender, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
