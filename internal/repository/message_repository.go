package repository

import (
	"context"
	"slices"
	"time"

	"hotel-relay/internal/domain"
	"hotel-relay/internal/metrics"
	"hotel-relay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// MessageRepo is the append-only chat log, queryable by room.
type MessageRepo interface {
	EnsureSchema(ctx context.Context) error
	// Append inserts m and fills in its store-assigned ID and Timestamp.
	Append(ctx context.Context, m *models.Message) error
	// RecentHistory returns at most limit of the newest messages of a room, oldest first.
	RecentHistory(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	// RecentAcrossRooms is RecentHistory over every room.
	RecentAcrossRooms(ctx context.Context, limit int) ([]*models.Message, error)
	Ping(ctx context.Context) error
	Stats() PoolStats
	Close()
}

type PoolStats struct {
	Acquired int
	Idle     int
	Total    int
	Max      int
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		"roomId" TEXT NOT NULL,
		"senderId" TEXT NOT NULL,
		"senderName" TEXT NOT NULL,
		"isStaff" BOOLEAN NOT NULL DEFAULT FALSE,
		message TEXT NOT NULL,
		"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		"read" BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages ("roomId")`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_ts ON chat_messages ("roomId", "timestamp" DESC)`,
}

type PostgresMessagesRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewMessagesRepo(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool:   pool,
		logger: logger,
	}
}

func (r *PostgresMessagesRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return &domain.StorageError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}

func (r *PostgresMessagesRepo) Append(ctx context.Context, m *models.Message) error {
	defer observe("append", time.Now())

	const query = `
		INSERT INTO chat_messages ("roomId", "senderId", "senderName", "isStaff", message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, "timestamp", "read"`

	err := r.pool.QueryRow(ctx, query,
		m.RoomID,
		m.Sender.ID,
		m.Sender.Name,
		m.Sender.IsStaff,
		m.Body,
	).Scan(&m.ID, &m.Timestamp, &m.Read)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", m.RoomID).Str("sender_id", m.Sender.ID).Msg("failed to append message")
		return &domain.StorageError{Op: "append", Err: err}
	}

	return nil
}

func (r *PostgresMessagesRepo) RecentHistory(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	defer observe("history", time.Now())

	const query = `
		SELECT id, "roomId", "senderId", "senderName", "isStaff", message, "timestamp", "read"
		FROM chat_messages
		WHERE "roomId" = $1
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("history query failed")
		return nil, &domain.StorageError{Op: "history", Err: err}
	}
	return r.collect(rows, "history")
}

func (r *PostgresMessagesRepo) RecentAcrossRooms(ctx context.Context, limit int) ([]*models.Message, error) {
	defer observe("history_all", time.Now())

	const query = `
		SELECT id, "roomId", "senderId", "senderName", "isStaff", message, "timestamp", "read"
		FROM chat_messages
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("history query failed")
		return nil, &domain.StorageError{Op: "history_all", Err: err}
	}
	return r.collect(rows, "history_all")
}

func (r *PostgresMessagesRepo) collect(rows pgx.Rows, op string) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.Sender.ID,
			&m.Sender.Name,
			&m.Sender.IsStaff,
			&m.Body,
			&m.Timestamp,
			&m.Read,
		)
		if err != nil {
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

func (r *PostgresMessagesRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return &domain.StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (r *PostgresMessagesRepo) Stats() PoolStats {
	s := r.pool.Stat()
	return PoolStats{
		Acquired: int(s.AcquiredConns()),
		Idle:     int(s.IdleConns()),
		Total:    int(s.TotalConns()),
		Max:      int(s.MaxConns()),
	}
}

func (r *PostgresMessagesRepo) Close() {
	r.pool.Close()
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// compile-time checks
var (
	_ MessageRepo = (*PostgresMessagesRepo)(nil)
	_ MessageRepo = (*SQLiteMessagesRepo)(nil)
)
