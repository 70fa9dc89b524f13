package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Notifier publishes feed refresh events over PostgreSQL NOTIFY so other
// consumers of the database can pick up fresh feeds without polling.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier.  An empty channel disables it.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	if channel == "" {
		return nil
	}
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends the user id on the configured channel.  NOTIFY does not accept
// bind parameters, so the payload goes through pg_notify.
func (n *Notifier) Notify(ctx context.Context, userID string) error {
	if n == nil {
		return nil
	}
	_, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, userID)
	if err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}
