// Package app is the composition root: it wires C1-C9, the admin command
// surface, and the reminder worker into one running process, the way the
// teacher's internal/ruriko/app.App wires store/secrets/matrix/commands/
// reconciler together.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/wardbot/common/clock"
	"github.com/bdobrica/wardbot/internal/wardbot/adminui"
	"github.com/bdobrica/wardbot/internal/wardbot/audit"
	"github.com/bdobrica/wardbot/internal/wardbot/classifier"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/dispatch"
	"github.com/bdobrica/wardbot/internal/wardbot/lexicon"
	"github.com/bdobrica/wardbot/internal/wardbot/moderation"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/reminder"
	"github.com/bdobrica/wardbot/internal/wardbot/settei"
	"github.com/bdobrica/wardbot/internal/wardbot/signing"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
	"github.com/bdobrica/wardbot/internal/wardbot/verify"
)

// defaultMagicWords is the built-in pool on_join chooses from (spec.md
// §4.6 "random magic_word chosen uniformly from the configured word list").
// The list's contents are not a spec-mandated value; any short, easily
// typed word pool satisfies the invariant.
var defaultMagicWords = []string{
	"apricot", "banana", "cranberry", "damson", "elderberry",
	"fig", "guava", "hazelnut", "jackfruit", "kiwi",
}

// MatrixConfig configures the concrete mautrix-backed platform.Client. It is
// held separately from config.Config because spec.md treats the concrete
// bot-API client as an out-of-scope collaborator (§1) — these values have no
// entry in the spec's configuration table.
type MatrixConfig struct {
	Homeserver  string
	BotUserID   string
	AccessToken string
	GroupRoomID string
	BotUsername string
}

// Config is everything app.New needs to build a running App.
type Config struct {
	Base   *config.Config
	Matrix MatrixConfig
}

// App is the assembled daemon: one platform.Client consumer loop plus the
// reminder worker, both driven from the same store.
type App struct {
	cfg      *Config
	store    *store.Store
	runtime  *config.Runtime
	lexicon  *lexicon.Cache
	platform platform.Client
	dispatch *dispatch.Dispatcher
	reminder *reminder.Worker
}

// New builds every component and wires them together, but does not start
// consuming events — call Run for that.
func New(cfg *Config) (*App, error) {
	ctx := context.Background()

	log.Info().Str("path", cfg.Base.DatabaseURL).Msg("app: opening database")
	db, err := store.New(cfg.Base.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}

	settings := settei.New(db)
	runtime := config.NewRuntime(cfg.Base, settings)

	lex := lexicon.New(db, cfg.Base.CaseInsensitive)
	if err := lex.Refresh(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("app: initial lexicon refresh: %w", err)
	}
	if err := lex.SeedIfEmpty(ctx, cfg.Base.ProhibitedWordsPath); err != nil {
		log.Warn().Err(err).Msg("app: lexicon seed failed; continuing with an empty lexicon")
	}

	plat, err := platform.New(platform.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		BotUserID:   cfg.Matrix.BotUserID,
		AccessToken: cfg.Matrix.AccessToken,
		GroupID:     cfg.Base.GroupID,
		GroupRoomID: id.RoomID(cfg.Matrix.GroupRoomID),
		DB:          db,
		BotUsername: cfg.Matrix.BotUsername,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: build platform adapter: %w", err)
	}

	cls, err := classifier.New(
		cfg.Base.OpenRouterAPIKey,
		cfg.Base.OpenRouterBaseURL,
		cfg.Base.OpenRouterModel,
		time.Duration(cfg.Base.OpenRouterTimeoutSec)*time.Second,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: build classifier client: %w", err)
	}

	signer := signing.New(cfg.Base.SecretKey)
	sysClock := clock.System{}

	// ChatNotifier resolves its destination from runtime on every call, so an
	// admin added later via /admin settings set admin_ids takes effect
	// without a restart even if ADMIN_IDS started out empty.
	var notifier audit.Notifier = audit.NewChatNotifier(plat, runtime.PrimaryAdmin)

	verifier := verify.New(db, signer, plat, sysClock, runtime, defaultMagicWords)
	throttle := moderation.NewThrottle(30 * time.Second)
	pipeline := moderation.New(db, lex, cls, plat, sysClock, runtime, throttle, notifier)
	admin := adminui.New(db, lex, settings, runtime, plat, sysClock)
	dispatcher := dispatch.New(verifier, pipeline, db, admin, plat, runtime)
	remindWorker := reminder.New(db, plat, verifier, sysClock, runtime, reminder.Config{})

	return &App{
		cfg:      cfg,
		store:    db,
		runtime:  runtime,
		lexicon:  lex,
		platform: plat,
		dispatch: dispatcher,
		reminder: remindWorker,
	}, nil
}

// Run starts the platform consumer and reminder worker, then blocks until an
// interrupt or SIGTERM is received.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().Msg("app: starting platform event consumer")
	if err := a.platform.Start(ctx, a.dispatch); err != nil {
		return fmt.Errorf("app: start platform: %w", err)
	}

	go a.reminder.Run(ctx)

	log.Info().Msg("app: wardbot is running; press Ctrl+C to stop")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("app: shutting down")
	return nil
}

// Stop releases resources. Safe to call after Run returns.
func (a *App) Stop() {
	log.Info().Msg("app: stopping platform event consumer")
	a.platform.Stop()

	log.Info().Msg("app: closing database")
	a.store.Close()
}
