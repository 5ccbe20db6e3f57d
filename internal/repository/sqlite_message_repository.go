package repository

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"hotel-relay/internal/domain"
	"hotel-relay/internal/models"

	"github.com/rs/zerolog"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		roomId TEXT NOT NULL,
		senderId TEXT NOT NULL,
		senderName TEXT NOT NULL,
		isStaff BOOLEAN NOT NULL DEFAULT 0,
		message TEXT NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		read BOOLEAN NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(roomId);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_room_ts ON chat_messages(roomId, timestamp DESC);
	`

// SQLiteMessagesRepo backs the chat log with a local SQLite file.
type SQLiteMessagesRepo struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewSQLiteMessagesRepo(db *sql.DB, logger zerolog.Logger) *SQLiteMessagesRepo {
	return &SQLiteMessagesRepo{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *SQLiteMessagesRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return &domain.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Append stamps the row with the store clock; CURRENT_TIMESTAMP only has
// second precision, which would tie messages sent within the same second.
func (r *SQLiteMessagesRepo) Append(ctx context.Context, m *models.Message) error {
	defer observe("append", time.Now())

	ts := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (roomId, senderId, senderName, isStaff, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.RoomID, m.Sender.ID, m.Sender.Name, m.Sender.IsStaff, m.Body, ts,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", m.RoomID).Str("sender_id", m.Sender.ID).Msg("failed to append message")
		return &domain.StorageError{Op: "append", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return &domain.StorageError{Op: "append", Err: err}
	}

	m.ID = id
	m.Timestamp = ts
	m.Read = false
	return nil
}

func (r *SQLiteMessagesRepo) RecentHistory(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	defer observe("history", time.Now())

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, roomId, senderId, senderName, isStaff, message, timestamp, read
		FROM chat_messages
		WHERE roomId = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, roomID, limit)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("history query failed")
		return nil, &domain.StorageError{Op: "history", Err: err}
	}
	return r.collect(rows, "history")
}

func (r *SQLiteMessagesRepo) RecentAcrossRooms(ctx context.Context, limit int) ([]*models.Message, error) {
	defer observe("history_all", time.Now())

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, roomId, senderId, senderName, isStaff, message, timestamp, read
		FROM chat_messages
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("history query failed")
		return nil, &domain.StorageError{Op: "history_all", Err: err}
	}
	return r.collect(rows, "history_all")
}

func (r *SQLiteMessagesRepo) collect(rows *sql.Rows, op string) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.Sender.ID,
			&m.Sender.Name,
			&m.Sender.IsStaff,
			&m.Body,
			&m.Timestamp,
			&m.Read,
		); err != nil {
			r.logger.Error().Err(err).Msg("scan failed")
			return nil, &domain.StorageError{Op: op, Err: err}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: op, Err: err}
	}

	slices.Reverse(messages)
	return messages, nil
}

func (r *SQLiteMessagesRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (r *SQLiteMessagesRepo) Stats() PoolStats {
	s := r.db.Stats()
	return PoolStats{
		Acquired: s.InUse,
		Idle:     s.Idle,
		Total:    s.OpenConnections,
		Max:      s.MaxOpenConnections,
	}
}

func (r *SQLiteMessagesRepo) Close() {
	r.db.Close()
}
