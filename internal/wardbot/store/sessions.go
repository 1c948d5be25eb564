package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState is one of the three states of the verification state machine.
type SessionState string

const (
	StateJoinedLocked      SessionState = "JOINED_LOCKED"
	StateWaitingDMConfirm  SessionState = "WAITING_DM_CONFIRM"
	StateConfirmedUnlocked SessionState = "CONFIRMED_UNLOCKED"
)

// ErrNotFound is returned by lookup methods across this package when the
// requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// VerificationSession tracks one user's verification attempt in one group.
type VerificationSession struct {
	ID                uuid.UUID
	GroupID           int64
	UserID            int64
	State             SessionState
	MagicWord         string
	WelcomeMessageID  sql.NullInt64
	ReminderCount     int
	RemindAt          time.Time
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func scanSession(row interface{ Scan(...any) error }) (*VerificationSession, error) {
	var sess VerificationSession
	var idRaw []byte
	var state string
	var remindAt, expiresAt, createdAt, updatedAt string

	err := row.Scan(
		&idRaw, &sess.GroupID, &sess.UserID, &state, &sess.MagicWord,
		&sess.WelcomeMessageID, &sess.ReminderCount,
		&remindAt, &expiresAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	id, err := uuid.FromBytes(idRaw)
	if err != nil {
		return nil, fmt.Errorf("scan session id: %w", err)
	}
	sess.ID = id
	sess.State = SessionState(state)
	sess.RemindAt, _ = time.Parse(time.RFC3339, remindAt)
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

const sessionColumns = `id, group_id, user_id, state, magic_word, welcome_message_id, reminder_count, remind_at, expires_at, created_at, updated_at`

// GetSessionByGroupUser returns the session for (groupID, userID), or
// ErrNotFound.
func (s *Store) GetSessionByGroupUser(ctx context.Context, groupID, userID int64) (*VerificationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM verification_sessions WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	return scanSession(row)
}

// GetSessionByID returns the session with the given id, or ErrNotFound.
func (s *Store) GetSessionByID(ctx context.Context, id uuid.UUID) (*VerificationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM verification_sessions WHERE id = ?`,
		id[:],
	)
	return scanSession(row)
}

// UpsertSession inserts sess, or — if a session already exists for
// (group_id,user_id) — overwrites every field except created_at, including
// id, so the row takes the new session's id. The
// (group_id,user_id) uniqueness constraint makes this the single write path
// for both "first join" and "rejoin resets the session" (§4.6).
func (s *Store) UpsertSession(ctx context.Context, sess *VerificationSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			id                 = excluded.id,
			state              = excluded.state,
			magic_word         = excluded.magic_word,
			welcome_message_id = excluded.welcome_message_id,
			reminder_count     = excluded.reminder_count,
			remind_at          = excluded.remind_at,
			expires_at         = excluded.expires_at,
			updated_at         = excluded.updated_at
	`,
		sess.ID[:], sess.GroupID, sess.UserID, string(sess.State), sess.MagicWord,
		sess.WelcomeMessageID, sess.ReminderCount,
		sess.RemindAt.UTC().Format(time.RFC3339),
		sess.ExpiresAt.UTC().Format(time.RFC3339),
		sess.CreatedAt.UTC().Format(time.RFC3339),
		sess.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	return nil
}

// UpdateSession persists every mutable field of an existing session row,
// looked up by id. Used by handlers that already hold a loaded session
// (state transitions, reminder ticks) to commit their changes in one
// statement.
func (s *Store) UpdateSession(ctx context.Context, sess *VerificationSession) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_sessions SET
			state              = ?,
			magic_word         = ?,
			welcome_message_id = ?,
			reminder_count     = ?,
			remind_at          = ?,
			expires_at         = ?,
			updated_at         = ?
		WHERE id = ?
	`,
		string(sess.State), sess.MagicWord, sess.WelcomeMessageID, sess.ReminderCount,
		sess.RemindAt.UTC().Format(time.RFC3339),
		sess.ExpiresAt.UTC().Format(time.RFC3339),
		sess.UpdatedAt.UTC().Format(time.RFC3339),
		sess.ID[:],
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueReminders returns every session eligible for a reminder tick at
// `now`: state ≠ CONFIRMED_UNLOCKED ∧ remind_at ≤ now ∧ reminder_count <
// maxReminders ∧ expires_at > now.
func (s *Store) ListDueReminders(ctx context.Context, now time.Time, maxReminders int) ([]*VerificationSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM verification_sessions
		 WHERE state != ? AND remind_at <= ? AND reminder_count < ? AND expires_at > ?`,
		string(StateConfirmedUnlocked),
		now.UTC().Format(time.RFC3339),
		maxReminders,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list due reminders: %w", err)
	}
	defer rows.Close()

	var result []*VerificationSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}
