// Package config loads the process-start configuration snapshot (spec.md
// §6) from the environment and exposes an accessor that layers the
// runtime-overridable subset on top of it via settei, replacing the source's
// dynamic attribute mutation of a global settings object with an immutable
// snapshot plus a small override lookup.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/wardbot/common/environment"
	"github.com/bdobrica/wardbot/internal/wardbot/settei"
)

// Config is the immutable snapshot of every spec.md §6 key, loaded once at
// startup. Keys marked overridable there are still read through Runtime, not
// directly off this struct, once the daemon is up.
type Config struct {
	BotToken    string
	GroupID     int64
	SecretKey   string
	DatabaseURL string

	RemindAfterMin int
	ExpireAfterMin int
	MaxReminders   int
	MuteMinutes    int

	AdminIDs          []int64
	AdminPanelEnabled bool

	Timezone        string
	CaseInsensitive bool

	ProhibitedWordsPath string

	AIModerationEnabled     bool
	AIModerationSampleRate  float64
	AIModerationMinChars    int
	AIModerationCooldownSec int
	AIProhibitedLabels      []string
	AIConfidenceThreshold   float64

	OpenRouterBaseURL    string
	OpenRouterModel      string
	OpenRouterAPIKey     string
	OpenRouterTimeoutSec int

	LogLevel string
}

// Load reads Config from the process environment. BOT_TOKEN, GROUP_ID, and
// SECRET_KEY are required; everything else has a spec-mandated default.
func Load() (*Config, error) {
	botToken, err := environment.RequiredString("BOT_TOKEN")
	if err != nil {
		return nil, err
	}
	secretKey, err := environment.RequiredString("SECRET_KEY")
	if err != nil {
		return nil, err
	}
	groupIDStr, err := environment.RequiredString("GROUP_ID")
	if err != nil {
		return nil, err
	}
	groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config: GROUP_ID must be an integer: %w", err)
	}

	adminIDs := parseAdminIDs()

	return &Config{
		BotToken:    botToken,
		GroupID:     groupID,
		SecretKey:   secretKey,
		DatabaseURL: environment.StringOr("DATABASE_URL", "wardbot.db"),

		RemindAfterMin: environment.IntOr("REMIND_AFTER_MIN", 10),
		ExpireAfterMin: environment.IntOr("EXPIRE_AFTER_MIN", 60),
		MaxReminders:   environment.IntOr("MAX_REMINDERS", 2),
		MuteMinutes:    environment.IntOr("MUTE_MINUTES", 10),

		AdminIDs:          adminIDs,
		AdminPanelEnabled: environment.BoolOr("ADMIN_PANEL_ENABLED", true),

		Timezone:        environment.StringOr("TIMEZONE", "Asia/Tashkent"),
		CaseInsensitive: environment.BoolOr("CASE_INSENSITIVE", true),

		ProhibitedWordsPath: environment.StringOr("PROHIBITED_WORDS_PATH", ""),

		AIModerationEnabled:     environment.BoolOr("AI_MODERATION_ENABLED", true),
		AIModerationSampleRate:  parseFloatOr("AI_MODERATION_SAMPLE_RATE", 1.0),
		AIModerationMinChars:    environment.IntOr("AI_MODERATION_MIN_CHARS", 12),
		AIModerationCooldownSec: environment.IntOr("AI_MODERATION_COOLDOWN_SEC", 30),
		AIProhibitedLabels:      environment.StringSliceOr("AI_PROHIBITED_LABELS", []string{"gambling", "fraud"}),
		AIConfidenceThreshold:   parseFloatOr("AI_CONFIDENCE_THRESHOLD", 0.7),

		OpenRouterBaseURL:    environment.StringOr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:      environment.StringOr("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		OpenRouterAPIKey:     environment.StringOr("OPENROUTER_API_KEY", ""),
		OpenRouterTimeoutSec: environment.IntOr("OPENROUTER_TIMEOUT_SEC", 10),

		LogLevel: environment.StringOr("LOG_LEVEL", "INFO"),
	}, nil
}

func parseFloatOr(name string, defaultValue float64) float64 {
	v := environment.StringOr(name, "")
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// parseAdminIDs resolves ADMIN_ID and ADMIN_IDS, taking the union as spec.md
// §6 requires. The first id, by insertion order, is the "primary admin".
func parseAdminIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64

	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if v := environment.StringOr("ADMIN_ID", ""); v != "" {
		add(v)
	}
	if v := environment.StringOr("ADMIN_IDS", ""); v != "" {
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	}
	return ids
}

// PrimaryAdmin returns the first id in the resolved admin roster, or 0 if
// none is configured.
func (c *Config) PrimaryAdmin() int64 {
	if len(c.AdminIDs) == 0 {
		return 0
	}
	return c.AdminIDs[0]
}

// IsAdmin reports whether userID is in the resolved admin roster.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Runtime layers settei's persisted overrides on top of the immutable
// startup Config. Every caller that needs an overridable value reads it
// through Runtime, never through Config directly, so an admin edit takes
// effect without a restart.
type Runtime struct {
	base     *Config
	settings settei.Store
}

// NewRuntime returns a Runtime combining the static snapshot with settei.
func NewRuntime(base *Config, settings settei.Store) *Runtime {
	return &Runtime{base: base, settings: settings}
}

// RemindAfterMin returns the overridden value, falling back to the startup
// default when no override is set.
func (r *Runtime) RemindAfterMin(ctx context.Context) int {
	return r.overrideInt(ctx, settei.KeyRemindAfterMin, r.base.RemindAfterMin)
}

// ExpireAfterMin returns the overridden value, falling back to the startup default.
func (r *Runtime) ExpireAfterMin(ctx context.Context) int {
	return r.overrideInt(ctx, settei.KeyExpireAfterMin, r.base.ExpireAfterMin)
}

// MaxReminders returns the overridden value, falling back to the startup default.
func (r *Runtime) MaxReminders(ctx context.Context) int {
	return r.overrideInt(ctx, settei.KeyMaxReminders, r.base.MaxReminders)
}

// MuteMinutes returns the overridden value, falling back to the startup default.
func (r *Runtime) MuteMinutes(ctx context.Context) int {
	return r.overrideInt(ctx, settei.KeyMuteMinutes, r.base.MuteMinutes)
}

// AIModerationEnabled returns the overridden value, falling back to the
// startup default.
func (r *Runtime) AIModerationEnabled(ctx context.Context) bool {
	v, err := r.settings.Get(ctx, settei.KeyAIModerationEnabled)
	if err != nil {
		return r.base.AIModerationEnabled
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return r.base.AIModerationEnabled
	}
	return b
}

// AdminIDs returns the overridden roster, falling back to the startup default.
func (r *Runtime) AdminIDs(ctx context.Context) []int64 {
	v, err := r.settings.Get(ctx, settei.KeyAdminIDs)
	if err != nil || v == "" {
		return r.base.AdminIDs
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return r.base.AdminIDs
	}
	return ids
}

// PrimaryAdmin returns the first id, by insertion order, in the
// overridden admin roster (or the startup roster, if no override is set),
// or 0 if no admin is configured. Unlike Config.PrimaryAdmin, this reflects
// a runtime `/admin settings set admin_ids ...` edit without a restart.
func (r *Runtime) PrimaryAdmin(ctx context.Context) int64 {
	ids := r.AdminIDs(ctx)
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

func (r *Runtime) overrideInt(ctx context.Context, key string, fallback int) int {
	v, err := r.settings.Get(ctx, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Base returns the immutable startup snapshot, for read-only, non-overridable
// keys (BOT_TOKEN, SECRET_KEY, etc).
func (r *Runtime) Base() *Config {
	return r.base
}
