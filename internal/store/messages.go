package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

const sqlTimeLayout = "2006-01-02 15:04:05"

// clockTime renders a stored timestamp the way the clients display it.
func clockTime(ts time.Time) string {
	return ts.Format("3:04 PM")
}

// MessageFormat is the handler-level shape of a new message. MessageRef and
// Link are optional and independent; a message can carry neither, either or
// both.
type MessageFormat struct {
	ServerID   string
	Content    string
	MessageRef *int64
	Link       *string
}

// MessageRecord is the store's acknowledgment of a created message: the
// assigned id is monotonically increasing per the AUTOINCREMENT rowid, and
// the timestamp is the canonical display form.
type MessageRecord struct {
	ID        int64
	Timestamp string
}

// Message is one resolved history entry, with the author's display fields
// joined in.
type Message struct {
	ID          int64   `json:"id"`
	ServerID    string  `json:"server_id"`
	DisplayName string  `json:"displayName"`
	Picture     string  `json:"picture"`
	Content     string  `json:"content"`
	Timestamp   string  `json:"timestamp"`
	MessageRef  *int64  `json:"messageRef"`
	Link        *string `json:"link"`
}

// CreateMessage persists one message and returns the assigned id and
// timestamp. The gateway broadcasts only after this acknowledgment.
func (s *Store) CreateMessage(ctx context.Context, authorID string, msg MessageFormat) (MessageRecord, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (server_id, user_id, content, timestamp, message_ref, link) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ServerID, authorID, msg.Content, now.Format(sqlTimeLayout), msg.MessageRef, msg.Link,
	)
	if err != nil {
		return MessageRecord{}, errors.Wrap(err, "store: create message")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return MessageRecord{}, errors.Wrap(err, "store: message id")
	}
	return MessageRecord{ID: id, Timestamp: clockTime(now)}, nil
}

// EditMessage replaces the content of an existing message.
func (s *Store) EditMessage(ctx context.Context, messageID int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE id = ?`, content, messageID)
	if err != nil {
		return errors.Wrap(err, "store: edit message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage removes a message. Deleting an absent id yields ErrNotFound.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return errors.Wrap(err, "store: delete message")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the full history of one server in arrival order with
// author display fields resolved.
func (s *Store) ListMessages(ctx context.Context, serverID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.server_id, u.displayname, u.profile_picture, m.content, m.timestamp, m.message_ref, m.link
		 FROM messages m JOIN users u ON m.user_id = u.user_id
		 WHERE m.server_id = ? ORDER BY m.id ASC`,
		serverID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store: list messages")
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		var ref sql.NullInt64
		var link sql.NullString
		if err := rows.Scan(&m.ID, &m.ServerID, &m.DisplayName, &m.Picture, &m.Content, &ts, &ref, &link); err != nil {
			return nil, errors.Wrap(err, "store: scan message")
		}
		if parsed, perr := time.Parse(sqlTimeLayout, ts); perr == nil {
			m.Timestamp = clockTime(parsed)
		} else {
			m.Timestamp = ts
		}
		if ref.Valid {
			m.MessageRef = &ref.Int64
		}
		if link.Valid {
			m.Link = &link.String
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "store: list messages")
}
