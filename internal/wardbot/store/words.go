package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MatchType distinguishes single-token entries from multi-word phrases.
type MatchType string

const (
	MatchToken  MatchType = "TOKEN"
	MatchPhrase MatchType = "PHRASE"
)

// ProhibitedWord is one entry in the prohibited lexicon. word is always
// canonical under normalize.Text; match_type is derived at write time from
// whether word contains inner whitespace, never trusted from caller input.
type ProhibitedWord struct {
	ID        int64
	Word      string
	Original  string
	Enabled   bool
	MatchType MatchType
	CreatedAt time.Time
	CreatedBy sql.NullInt64
}

// InsertWord adds a new lexicon entry. match_type is computed here from
// whether norm contains a space, so callers can never mis-tag a TOKEN as a
// PHRASE or vice versa.
func (s *Store) InsertWord(ctx context.Context, norm, original string, createdBy *int64, now time.Time) (*ProhibitedWord, error) {
	matchType := MatchToken
	if strings.Contains(norm, " ") {
		matchType = MatchPhrase
	}

	var createdByVal any
	if createdBy != nil {
		createdByVal = *createdBy
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prohibited_words (word, original, enabled, match_type, created_at, created_by)
		VALUES (?, ?, 1, ?, ?, ?)
	`, norm, original, string(matchType), now.UTC().Format(time.RFC3339), createdByVal)
	if err != nil {
		return nil, fmt.Errorf("store: insert word: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: insert word id: %w", err)
	}

	return s.GetWord(ctx, id)
}

// GetWord returns the entry with the given id, or ErrNotFound.
func (s *Store) GetWord(ctx context.Context, id int64) (*ProhibitedWord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, word, original, enabled, match_type, created_at, created_by
		FROM prohibited_words WHERE id = ?
	`, id)
	return scanWord(row)
}

// FindWordByNorm returns the entry whose word equals norm, or ErrNotFound.
func (s *Store) FindWordByNorm(ctx context.Context, norm string) (*ProhibitedWord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, word, original, enabled, match_type, created_at, created_by
		FROM prohibited_words WHERE word = ?
	`, norm)
	return scanWord(row)
}

// ListEnabledWords returns every entry with enabled = 1, used by the lexicon
// cache's refresh().
func (s *Store) ListEnabledWords(ctx context.Context) ([]*ProhibitedWord, error) {
	return s.listWords(ctx, `SELECT id, word, original, enabled, match_type, created_at, created_by FROM prohibited_words WHERE enabled = 1`)
}

// ListAllWords returns every entry, enabled or not, for admin listing.
func (s *Store) ListAllWords(ctx context.Context) ([]*ProhibitedWord, error) {
	return s.listWords(ctx, `SELECT id, word, original, enabled, match_type, created_at, created_by FROM prohibited_words ORDER BY word`)
}

func (s *Store) listWords(ctx context.Context, query string) ([]*ProhibitedWord, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list words: %w", err)
	}
	defer rows.Close()

	var result []*ProhibitedWord
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func scanWord(row interface{ Scan(...any) error }) (*ProhibitedWord, error) {
	var w ProhibitedWord
	var enabledInt int
	var matchType, createdAt string

	err := row.Scan(&w.ID, &w.Word, &w.Original, &enabledInt, &matchType, &createdAt, &w.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan word: %w", err)
	}
	w.Enabled = enabledInt != 0
	w.MatchType = MatchType(matchType)
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &w, nil
}

// SetWordEnabled toggles an entry's enabled flag.
func (s *Store) SetWordEnabled(ctx context.Context, id int64, enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE prohibited_words SET enabled = ? WHERE id = ?`, enabledInt, id)
	if err != nil {
		return fmt.Errorf("store: set word enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWord removes an entry.
func (s *Store) DeleteWord(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prohibited_words WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete word: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
