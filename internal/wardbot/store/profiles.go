package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserProfile is touched on every seen interaction from a user; phone_number
// is only overwritten when a verified contact is supplied.
type UserProfile struct {
	UserID           int64
	FirstName        string
	LastName         sql.NullString
	Username         sql.NullString
	PhoneNumber      sql.NullString
	LastAICheckAt    sql.NullTime
	LastModerationAt sql.NullTime
	UpdatedAt        time.Time
}

// GetProfile returns the profile for userID, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	var p UserProfile
	var updatedAt string
	var lastAI, lastMod sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, username, phone_number, last_ai_check_at, last_moderation_at, updated_at
		FROM user_profiles WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Username, &p.PhoneNumber, &lastAI, &lastMod, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastAI.Valid {
		if t, err := time.Parse(time.RFC3339, lastAI.String); err == nil {
			p.LastAICheckAt = sql.NullTime{Time: t, Valid: true}
		}
	}
	if lastMod.Valid {
		if t, err := time.Parse(time.RFC3339, lastMod.String); err == nil {
			p.LastModerationAt = sql.NullTime{Time: t, Valid: true}
		}
	}
	return &p, nil
}

// TouchSeen upserts the identity fields observed on this interaction
// (first/last name, username), leaving phone_number and the AI/moderation
// stamps untouched.
func (s *Store) TouchSeen(ctx context.Context, userID int64, firstName string, lastName, username *string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, username, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name  = excluded.last_name,
			username   = excluded.username,
			updated_at = excluded.updated_at
	`, userID, firstName, nullableString(lastName), nullableString(username), now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: touch seen: %w", err)
	}
	return nil
}

// SetPhoneNumber persists a verified contact's phone number. Called
// regardless of verification outcome (§4.6 contact messages), so it never
// touches reminder/session state.
func (s *Store) SetPhoneNumber(ctx context.Context, userID int64, phone string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, phone_number, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_number = excluded.phone_number,
			updated_at   = excluded.updated_at
	`, userID, phone, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: set phone number: %w", err)
	}
	return nil
}

// StampAICheck sets last_ai_check_at = at. Stamped before the classifier
// call per §4.7 step 5, so the cooldown holds even if the call fails.
func (s *Store) StampAICheck(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_ai_check_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			last_ai_check_at = excluded.last_ai_check_at,
			updated_at       = excluded.updated_at
	`, userID, at.UTC().Format(time.RFC3339), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: stamp ai check: %w", err)
	}
	return nil
}

// StampModeration sets last_moderation_at = at.
func (s *Store) StampModeration(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_moderation_at, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			last_moderation_at = excluded.last_moderation_at,
			updated_at         = excluded.updated_at
	`, userID, at.UTC().Format(time.RFC3339), at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: stamp moderation: %w", err)
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
