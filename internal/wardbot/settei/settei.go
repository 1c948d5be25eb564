// Package settei is the runtime-override accessor for the subset of
// configuration keys spec.md marks overridable (the "*" keys in §6): it
// replaces dynamic attribute mutation of a global settings object with an
// immutable startup snapshot plus this small accessor, so every reader pulls
// overrides through the same place rather than writing a shared global.
package settei

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// ErrNotFound is returned by Get when the key has never been overridden.
var ErrNotFound = errors.New("settei: key not found")

// Keys recognized as runtime-overridable (spec.md §6, "*" column).
const (
	KeyRemindAfterMin        = "REMIND_AFTER_MIN"
	KeyExpireAfterMin        = "EXPIRE_AFTER_MIN"
	KeyMaxReminders          = "MAX_REMINDERS"
	KeyMuteMinutes           = "MUTE_MINUTES"
	KeyAdminIDs              = "ADMIN_IDS"
	KeyAIModerationEnabled   = "AI_MODERATION_ENABLED"
)

// Store is the read/write interface over the AppSetting table. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, updatedBy int64) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}

type sqliteStore struct {
	db *store.Store
}

// New creates a Store backed by the shared application database. The
// migration that creates app_settings must already have run (guaranteed by
// store.New).
func New(db *store.Store) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("settei: get %q: %w", key, err)
	}
	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string, updatedBy int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at, updated_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`, key, value, now, updatedBy)
	if err != nil {
		return fmt.Errorf("settei: set %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("settei: delete %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT key, value FROM app_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("settei: list: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("settei: list scan: %w", err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

// coercible is the struct validator.v10 checks a candidate setting value
// against before it is persisted, satisfying spec.md §7's "Configuration"
// error kind: a value that fails coercion is rejected with a user-visible
// error and never written.
type coercible struct {
	RemindAfterMin int     `validate:"omitempty,min=1,max=1440"`
	ExpireAfterMin int     `validate:"omitempty,min=1,max=10080"`
	MaxReminders   int     `validate:"omitempty,min=0,max=20"`
	MuteMinutes    int     `validate:"omitempty,min=1,max=10080"`
	SampleRate     float64 `validate:"omitempty,min=0,max=1"`
	Confidence     float64 `validate:"omitempty,min=0,max=1"`
}

var validate = validator.New()

// ValidateInt validates an integer override candidate for key using bounds
// appropriate to that key. Returns a user-facing error on failure; the
// caller must not persist the value in that case.
func ValidateInt(key string, value int) error {
	c := coercible{}
	switch key {
	case KeyRemindAfterMin:
		c.RemindAfterMin = value
	case KeyExpireAfterMin:
		c.ExpireAfterMin = value
	case KeyMaxReminders:
		c.MaxReminders = value
	case KeyMuteMinutes:
		c.MuteMinutes = value
	default:
		return fmt.Errorf("settei: %q is not a known integer setting", key)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("settei: invalid value %d for %s: %w", value, key, err)
	}
	return nil
}

// ValidateFloat validates a float override candidate (sample rate or
// confidence threshold, both constrained to [0,1]).
func ValidateFloat(key string, value float64) error {
	c := coercible{}
	switch key {
	case "AI_MODERATION_SAMPLE_RATE":
		c.SampleRate = value
	case "AI_CONFIDENCE_THRESHOLD":
		c.Confidence = value
	default:
		return fmt.Errorf("settei: %q is not a known float setting", key)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("settei: invalid value %f for %s: %w", value, key, err)
	}
	return nil
}
