package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ApprovedMember records a user permanently whitelisted for posting in a
// group. Created once on successful verification; never mutated, never
// deleted by the core.
type ApprovedMember struct {
	GroupID    int64
	UserID     int64
	ApprovedAt time.Time
}

// IsApproved reports whether (groupID, userID) has an ApprovedMember row.
func (s *Store) IsApproved(ctx context.Context, groupID, userID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM approved_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is approved: %w", err)
	}
	return true, nil
}

// InsertApprovedMember inserts the row, satisfying P5 ("at most once per
// group") via the table's (group_id,user_id) primary key: a duplicate
// insert is a silent no-op rather than an error, since on_private_text may
// be invoked more than once for the same confirmed session.
func (s *Store) InsertApprovedMember(ctx context.Context, groupID, userID int64, approvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approved_members (group_id, user_id, approved_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID, approvedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: insert approved member: %w", err)
	}
	return nil
}
