package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Action is the outcome recorded for a moderated message.
type Action string

const (
	ActionNone  Action = "NONE"
	ActionMuted Action = "MUTED"
)

// ReasonType identifies which filter produced the decision.
type ReasonType string

const (
	ReasonKeyword ReasonType = "KEYWORD"
	ReasonAI      ReasonType = "AI"
)

// ModerationEvent is an append-only audit record of a moderation decision.
// No UPDATE or DELETE statement against moderation_events exists anywhere in
// this package.
type ModerationEvent struct {
	ID           int64
	GroupID      int64
	UserID       int64
	MessageID    int64
	Action       Action
	ReasonType   ReasonType
	MatchedWord  sql.NullString
	AILabel      sql.NullString
	AIConfidence sql.NullFloat64
	AISummary    sql.NullString
	CreatedAt    time.Time
}

// InsertEvent appends a ModerationEvent and returns its assigned id.
func (s *Store) InsertEvent(ctx context.Context, evt *ModerationEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_events
			(group_id, user_id, message_id, action, reason_type, matched_word, ai_label, ai_confidence, ai_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.GroupID, evt.UserID, evt.MessageID, string(evt.Action), string(evt.ReasonType),
		evt.MatchedWord, evt.AILabel, evt.AIConfidence, evt.AISummary,
		evt.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert moderation event: %w", err)
	}
	return res.LastInsertId()
}

// ListEventsForUser returns the most recent moderation events for a user in
// a group, newest first, used by the admin audit surface.
func (s *Store) ListEventsForUser(ctx context.Context, groupID, userID int64, limit int) ([]*ModerationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, user_id, message_id, action, reason_type, matched_word, ai_label, ai_confidence, ai_summary, created_at
		FROM moderation_events
		WHERE group_id = ? AND user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, groupID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list events for user: %w", err)
	}
	defer rows.Close()

	var result []*ModerationEvent
	for rows.Next() {
		var e ModerationEvent
		var action, reasonType, createdAt string
		if err := rows.Scan(&e.ID, &e.GroupID, &e.UserID, &e.MessageID, &action, &reasonType,
			&e.MatchedWord, &e.AILabel, &e.AIConfidence, &e.AISummary, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan moderation event: %w", err)
		}
		e.Action = Action(action)
		e.ReasonType = ReasonType(reasonType)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, &e)
	}
	return result, rows.Err()
}
