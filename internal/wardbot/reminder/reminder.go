// Package reminder implements the Reminder Worker (C8): a ticker-driven
// loop that re-prompts users stuck mid-verification and deschedules users
// who left or were kicked before confirming, per spec.md §4.8.
//
// Grounded on internal/ruriko/runtime/reconciler.go's shape: a
// ReconcilerConfig-style options struct, a ticker-driven Run(ctx) loop that
// logs and continues past a failed tick, and a per-item try/log/continue
// body so one user's failure never aborts the rest of the tick.
package reminder

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/common/clock"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// defaultInterval is the tick period spec.md §4.8 calls "~20s".
const defaultInterval = 20 * time.Second

// Verifier is the subset of verify.Machine the worker needs, kept narrow so
// the worker can be tested without a full Machine.
type Verifier interface {
	SendReminder(ctx context.Context, sess *store.VerificationSession) error
}

// Config configures the Worker.
type Config struct {
	// Interval is how often to run a tick. Defaults to 20s.
	Interval time.Duration
}

// Worker periodically scans due VerificationSessions and either sends a
// reminder or deschedules a user who has left the group.
type Worker struct {
	store    *store.Store
	platform platform.Client
	verifier Verifier
	clock    clock.Clock
	runtime  *config.Runtime
	cfg      Config
}

// New constructs a Worker.
func New(db *store.Store, plat platform.Client, verifier Verifier, clk clock.Clock, rt *config.Runtime, cfg Config) *Worker {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	return &Worker{store: db, platform: plat, verifier: verifier, clock: clk, runtime: rt, cfg: cfg}
}

// Run starts the tick loop. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.cfg.Interval).Msg("reminder: worker starting")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder: worker stopping")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				log.Warn().Err(err).Msg("reminder: tick failed")
			}
		}
	}
}

// Tick runs a single pass: select every due session and, for each, either
// deschedule a departed user or send a reminder. A failure handling one
// session is logged and does not abort the rest of the tick (spec.md §4.8).
func (w *Worker) Tick(ctx context.Context) error {
	now := w.clock.Now()
	maxReminders := w.runtime.MaxReminders(ctx)

	sessions, err := w.store.ListDueReminders(ctx, now, maxReminders)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		if err := w.handleSession(ctx, sess, now); err != nil {
			log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("reminder: session handling failed")
		}
	}
	return nil
}

func (w *Worker) handleSession(ctx context.Context, sess *store.VerificationSession, now time.Time) error {
	member, err := w.platform.GetChatMember(ctx, sess.GroupID, sess.UserID)
	if err == nil && (member.Status == platform.StatusLeft || member.Status == platform.StatusKicked) {
		sess.ReminderCount = w.runtime.MaxReminders(ctx)
		sess.RemindAt = sess.ExpiresAt
		sess.UpdatedAt = now
		return w.store.UpdateSession(ctx, sess)
	}

	if err := w.verifier.SendReminder(ctx, sess); err != nil {
		log.Warn().Err(err).Int64("user_id", sess.UserID).Msg("reminder: send reminder failed")
	}

	sess.ReminderCount++
	sess.RemindAt = now.Add(time.Duration(w.runtime.RemindAfterMin(ctx)) * time.Minute)
	sess.UpdatedAt = now
	return w.store.UpdateSession(ctx, sess)
}
