// Package dispatch implements the Event Dispatcher (C9): it routes the
// three platform.EventHandler callbacks to the Verification State Machine
// and Moderation Pipeline, enforcing the group-id-match and
// private-vs-group guards spec.md §4.9 requires. The adapter that drives
// platform.EventHandler never inspects event content itself — all routing
// decisions live here.
package dispatch

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
)

const startCommandPrefix = "/start "

// Verifier is the subset of verify.Machine the dispatcher drives.
type Verifier interface {
	OnJoin(ctx context.Context, userID int64) error
	OnAgreeCallback(ctx context.Context, query platform.CallbackQuery) error
	OnStart(ctx context.Context, userID int64, payload string) error
	OnPrivateText(ctx context.Context, userID int64, text string, contact *platform.Contact) error
}

// Moderator is the subset of moderation.Pipeline the dispatcher drives.
type Moderator interface {
	HandleMessage(ctx context.Context, msg platform.MessageEnvelope) error
}

// ApprovalChecker is the subset of store.Store the dispatcher's edge policy
// needs to decide whether an unapproved poster's message must be deleted
// before the moderation pipeline ever sees it (spec.md §4.6, §4.7 step 2).
type ApprovalChecker interface {
	IsApproved(ctx context.Context, groupID, userID int64) (bool, error)
}

// AdminUI is the subset of adminui.Handler the dispatcher drives. It gets
// first refusal on every private message: an /admin command, a /cancel, or a
// reply to one of its own outstanding prompts is claimed (handled=true) and
// never reaches the verification machine.
type AdminUI interface {
	HandleCommand(ctx context.Context, userID int64, text string) (handled bool, err error)
}

// Dispatcher implements platform.EventHandler, routing each event to the
// verification machine or moderation pipeline as spec.md §4.9 describes.
type Dispatcher struct {
	verifier  Verifier
	moderator Moderator
	approvals ApprovalChecker
	admin     AdminUI
	platform  platform.Client
	runtime   *config.Runtime
}

// New constructs a Dispatcher bound to the single configured group.
func New(verifier Verifier, moderator Moderator, approvals ApprovalChecker, admin AdminUI, plat platform.Client, rt *config.Runtime) *Dispatcher {
	return &Dispatcher{verifier: verifier, moderator: moderator, approvals: approvals, admin: admin, platform: plat, runtime: rt}
}

var _ platform.EventHandler = (*Dispatcher)(nil)

func (d *Dispatcher) groupID() int64 {
	return d.runtime.Base().GroupID
}

// OnChatMemberUpdated handles a membership transition. Only transitions in
// the configured group are acted on; a new join starts verification, a
// departure is left for the reminder worker to notice and deschedule.
func (d *Dispatcher) OnChatMemberUpdated(ctx context.Context, update platform.ChatMemberUpdate) {
	if update.GroupID != d.groupID() {
		return
	}
	if !update.Joined() {
		return
	}
	if err := d.verifier.OnJoin(ctx, update.UserID); err != nil {
		log.Warn().Err(err).Int64("user_id", update.UserID).Msg("dispatch: on_join failed")
	}
}

// OnMessage handles a message event. Private messages are routed to the
// verification machine's DM surface; group messages are routed to the
// moderation pipeline, after the edge policy deletes platform service
// messages and unapproved-user posts without notification (spec.md §4.6).
func (d *Dispatcher) OnMessage(ctx context.Context, envelope platform.MessageEnvelope) {
	if envelope.IsPrivate {
		d.handlePrivateMessage(ctx, envelope)
		return
	}

	if envelope.ChatID != d.groupID() {
		return
	}

	if envelope.IsService {
		if err := d.platform.DeleteMessage(ctx, envelope.ChatID, envelope.MessageID); err != nil {
			log.Warn().Err(err).Msg("dispatch: delete service message failed")
		}
		return
	}

	member, err := d.platform.GetChatMember(ctx, envelope.ChatID, envelope.UserID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: get chat member failed")
		return
	}
	if !member.IsPrivileged() {
		approved, err := d.isApprovedOrBypass(ctx, envelope.UserID)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: approval check failed")
			return
		}
		if !approved {
			if err := d.platform.DeleteMessage(ctx, envelope.ChatID, envelope.MessageID); err != nil {
				log.Warn().Err(err).Msg("dispatch: delete unapproved message failed")
			}
			return
		}
	}

	if err := d.moderator.HandleMessage(ctx, envelope); err != nil {
		log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: moderation pipeline failed")
	}
}

// handlePrivateMessage routes a DM to the admin command surface, /start
// parsing, or the magic-word challenge, in that order.
func (d *Dispatcher) handlePrivateMessage(ctx context.Context, envelope platform.MessageEnvelope) {
	if d.admin != nil {
		handled, err := d.admin.HandleCommand(ctx, envelope.UserID, envelope.Text)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: admin command failed")
			return
		}
		if handled {
			return
		}
	}

	if payload, ok := strings.CutPrefix(envelope.Text, startCommandPrefix); ok {
		if err := d.verifier.OnStart(ctx, envelope.UserID, payload); err != nil {
			log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: on_start failed")
		}
		return
	}
	if err := d.verifier.OnPrivateText(ctx, envelope.UserID, envelope.Text, envelope.Contact); err != nil {
		log.Warn().Err(err).Int64("user_id", envelope.UserID).Msg("dispatch: on_private_text failed")
	}
}

// isApprovedOrBypass lets a configured admin (startup roster) through;
// anyone else needs the same approved-membership check moderation.Pipeline
// makes, since unapproved posts never reach HandleMessage at all.
func (d *Dispatcher) isApprovedOrBypass(ctx context.Context, userID int64) (bool, error) {
	if d.runtime.Base().IsAdmin(userID) {
		return true, nil
	}
	return d.approvals.IsApproved(ctx, d.groupID(), userID)
}

// OnCallback handles an inline-button press; only the agree-button flow
// exists in this pipeline, so every callback routes to the verifier.
func (d *Dispatcher) OnCallback(ctx context.Context, query platform.CallbackQuery) {
	if err := d.verifier.OnAgreeCallback(ctx, query); err != nil {
		log.Warn().Err(err).Int64("user_id", query.FromUserID).Msg("dispatch: on_agree_callback failed")
	}
}
