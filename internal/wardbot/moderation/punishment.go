package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/internal/wardbot/audit"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

const maxExcerptLen = 200

// punish runs the §4.7.2 sequence for an accepted decision. Each step fails
// independently and is logged rather than aborting the remaining steps
// (spec.md §7): a failed forward must not prevent the delete, a failed
// delete must not prevent the restrict, and so on.
func (p *Pipeline) punish(ctx context.Context, msg platform.MessageEnvelope, d *decision) error {
	base := p.runtime.Base()
	now := p.clock.Now()
	muteUntil := now.Add(time.Duration(p.runtime.MuteMinutes(ctx)) * time.Minute)

	if admin := p.runtime.PrimaryAdmin(ctx); admin != 0 {
		if err := p.platform.ForwardMessage(ctx, admin, msg.ChatID, msg.MessageID); err != nil {
			log.Warn().Err(err).Int64("user_id", msg.UserID).Msg("moderation: forward to admin failed")
		}
	}

	if err := p.platform.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		log.Warn().Err(err).Int64("user_id", msg.UserID).Msg("moderation: delete message failed")
	}

	if err := p.platform.RestrictUser(ctx, msg.ChatID, msg.UserID, muteUntil); err != nil {
		log.Warn().Err(err).Int64("user_id", msg.UserID).Msg("moderation: restrict user failed")
	}

	if p.throttle.Allow(msg.UserID, now) {
		text := fmt.Sprintf("User %d has been muted until %s.", msg.UserID, formatMuteUntil(muteUntil, base.Timezone))
		if _, err := p.platform.SendMessage(ctx, msg.ChatID, text); err != nil {
			log.Warn().Err(err).Int64("user_id", msg.UserID).Msg("moderation: group notification failed")
		}
	}

	p.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindMessageMuted,
		UserID:  msg.UserID,
		Target:  decisionTarget(d),
		Message: decisionMessage(d, muteUntil, base.Timezone, msg.Text),
	})

	evt := &store.ModerationEvent{
		GroupID:    msg.ChatID,
		UserID:     msg.UserID,
		MessageID:  msg.MessageID,
		Action:     store.ActionMuted,
		ReasonType: d.reasonType,
		CreatedAt:  now,
	}
	if d.reasonType == store.ReasonKeyword {
		evt.MatchedWord = sql.NullString{String: d.matchedWord, Valid: true}
	} else {
		evt.AILabel = sql.NullString{String: d.aiLabel, Valid: true}
		evt.AIConfidence = sql.NullFloat64{Float64: d.aiConf, Valid: true}
		evt.AISummary = sql.NullString{String: excerpt(d.aiReason), Valid: d.aiReason != ""}
	}
	if _, err := p.store.InsertEvent(ctx, evt); err != nil {
		return fmt.Errorf("moderation: insert event: %w", err)
	}
	return nil
}

func decisionTarget(d *decision) string {
	if d.reasonType == store.ReasonKeyword {
		return d.matchedWord
	}
	return d.aiLabel
}

// decisionMessage builds the admin card body (spec.md §4.7.2 step 5: "user
// identity, matched word or AI label/confidence/reason, and the mute-until
// timestamp"). The AI confidence/reason only apply to an AI-reasoned
// decision; a keyword match carries no such detail.
func decisionMessage(d *decision, muteUntil time.Time, tz string, text string) string {
	muteLine := fmt.Sprintf("muted until %s (%s)", formatMuteUntil(muteUntil, tz), excerpt(text))
	if d.reasonType != store.ReasonAI {
		return muteLine
	}
	reason := d.aiReason
	if reason == "" {
		reason = "no reason given"
	}
	return fmt.Sprintf("%s\n  confidence: %.2f\n  reason: %s", muteLine, d.aiConf, excerpt(reason))
}

func excerpt(s string) string {
	if len(s) <= maxExcerptLen {
		return s
	}
	return s[:maxExcerptLen]
}

func formatMuteUntil(at time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return at.In(loc).Format("2006-01-02 15:04 MST")
}
