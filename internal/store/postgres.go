package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Awatech12/kishiface/internal/models"
)

// PostgresStore is the sqlx-backed Store implementation.
type PostgresStore struct {
	db *sqlx.DB
}

// Connect opens the database and runs migrations.
func Connect(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS room_seq (
            room TEXT PRIMARY KEY,
            seq BIGINT NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room TEXT NOT NULL,
            sequence BIGINT NOT NULL,
            sender_id INT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            attachment_url TEXT NOT NULL DEFAULT '',
            attachment_kind TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE(room, sequence)
        );`,
		`CREATE TABLE IF NOT EXISTS read_watermarks (
            room TEXT NOT NULL,
            user_id INT NOT NULL,
            sequence BIGINT NOT NULL,
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY(room, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS room_members (
            room TEXT NOT NULL,
            user_id INT NOT NULL,
            PRIMARY KEY(room, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            emoji TEXT NOT NULL,
            PRIMARY KEY(message_id, user_id, emoji)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}

// PersistMessage assigns the next room sequence and stores the message in
// one transaction. The counter row is updated under its row lock, which
// serializes sequence assignment per room while leaving other rooms fully
// parallel.
func (s *PostgresStore) PersistMessage(ctx context.Context, room string, senderID int, body, attachmentURL, attachmentKind string) (models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowxContext(ctx, `INSERT INTO room_seq (room, seq) VALUES ($1, 1)
        ON CONFLICT (room) DO UPDATE SET seq = room_seq.seq + 1
        RETURNING seq`, room).Scan(&seq)
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (room, sequence, sender_id, body, attachment_url, attachment_kind)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, room, sequence, sender_id, body, attachment_url, attachment_kind, created_at`,
		room, seq, senderID, body, attachmentURL, attachmentKind).
		Scan(&msg.ID, &msg.Room, &msg.Sequence, &msg.SenderID, &msg.Body, &msg.AttachmentURL, &msg.AttachmentKind, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// LatestSequence reads the room's sequence counter.
func (s *PostgresStore) LatestSequence(ctx context.Context, room string) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, `SELECT seq FROM room_seq WHERE room=$1`, room)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// MessagesAfter returns messages past the given sequence in order.
func (s *PostgresStore) MessagesAfter(ctx context.Context, room string, after int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	var msgs []models.Message
	err := s.db.SelectContext(ctx, &msgs, `SELECT id, room, sequence, sender_id, body, attachment_url, attachment_kind, created_at
        FROM messages WHERE room=$1 AND sequence > $2
        ORDER BY sequence ASC LIMIT $3`, room, after, limit)
	return msgs, err
}

// GetMessage fetches one message.
func (s *PostgresStore) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, `SELECT id, room, sequence, sender_id, body, attachment_url, attachment_kind, created_at
        FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// PersistWatermark upserts the watermark, never letting it move backwards.
func (s *PostgresStore) PersistWatermark(ctx context.Context, room string, userID int, sequence int64) (int64, error) {
	var stored int64
	err := s.db.QueryRowxContext(ctx, `INSERT INTO read_watermarks (room, user_id, sequence) VALUES ($1, $2, $3)
        ON CONFLICT (room, user_id) DO UPDATE
        SET sequence = GREATEST(read_watermarks.sequence, EXCLUDED.sequence), updated_at = NOW()
        RETURNING sequence`, room, userID, sequence).Scan(&stored)
	return stored, err
}

// Watermark returns the user's stored watermark, zero if none.
func (s *PostgresStore) Watermark(ctx context.Context, room string, userID int) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, `SELECT sequence FROM read_watermarks WHERE room=$1 AND user_id=$2`, room, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// EnsureMembership records room membership idempotently.
func (s *PostgresStore) EnsureMembership(ctx context.Context, room string, userID int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO room_members (room, user_id) VALUES ($1, $2)
        ON CONFLICT (room, user_id) DO NOTHING`, room, userID)
	return err
}

// IsMember checks room membership.
func (s *PostgresStore) IsMember(ctx context.Context, room string, userID int) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room=$1 AND user_id=$2)`, room, userID)
	return exists, err
}

// ListRoomsForUser returns the rooms the user belongs to.
func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID int) ([]string, error) {
	var roomIDs []string
	err := s.db.SelectContext(ctx, &roomIDs, `SELECT room FROM room_members WHERE user_id=$1 ORDER BY room`, userID)
	return roomIDs, err
}

// RoomMembers returns the user ids in the room.
func (s *PostgresStore) RoomMembers(ctx context.Context, room string) ([]int, error) {
	var userIDs []int
	err := s.db.SelectContext(ctx, &userIDs, `SELECT user_id FROM room_members WHERE room=$1 ORDER BY user_id`, room)
	return userIDs, err
}

// ToggleReaction removes the reaction if present, inserts it otherwise.
func (s *PostgresStore) ToggleReaction(ctx context.Context, messageID int64, userID int, emoji string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed > 0 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id, emoji) DO NOTHING`, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ Store = (*PostgresStore)(nil)
