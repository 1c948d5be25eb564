// Package verify implements C6, the join-verification state machine:
// group-button → deep-link → private-chat challenge, per spec.md §4.6.
package verify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/common/clock"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/normalize"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/signing"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// AgreeButtonText is the label shown on the group-message inline button.
const AgreeButtonText = "I agree, verify me"

// Templates renders the user-facing strings the machine sends. The exact
// wording and localization are out of scope (spec.md §1); callers supply a
// concrete implementation, and Default below is a plain-English stand-in.
type Templates interface {
	Welcome() string
	Reminder() string
	Rules(magicWord string) string
	Success() string
	Confirmation() string
}

// Default is a minimal, unlocalized Templates implementation.
type Default struct{}

func (Default) Welcome() string {
	return "Welcome! Tap the button below, then follow the private-chat instructions to unlock posting."
}

func (Default) Reminder() string {
	return "Reminder: you still need to verify to post in this group. Tap the button below."
}

func (Default) Rules(magicWord string) string {
	return fmt.Sprintf("To finish verifying, reply here with this word: <b>%s</b>", html.EscapeString(magicWord))
}

func (Default) Success() string {
	return "Verified — welcome aboard!"
}

func (Default) Confirmation() string {
	return "You're verified. You can now post in the group."
}

// Machine is C6. One Machine serves the single configured group (multi-group
// operation is a Non-goal per spec.md §1).
type Machine struct {
	store     *store.Store
	signer    *signing.Signer
	platform  platform.Client
	clock     clock.Clock
	runtime   *config.Runtime
	words     []string
	templates Templates
	pickIndex func(n int) int
}

// Option customizes a Machine at construction.
type Option func(*Machine)

// WithTemplates overrides the default message templates.
func WithTemplates(t Templates) Option {
	return func(m *Machine) { m.templates = t }
}

// WithWordPicker overrides the magic-word index chooser — tests supply a
// deterministic one instead of the default math/rand-backed picker.
func WithWordPicker(f func(n int) int) Option {
	return func(m *Machine) { m.pickIndex = f }
}

// New constructs a Machine. words is the magic-word pool; it must be non-empty.
func New(db *store.Store, signer *signing.Signer, plat platform.Client, clk clock.Clock, rt *config.Runtime, words []string, opts ...Option) *Machine {
	m := &Machine{
		store:     db,
		signer:    signer,
		platform:  plat,
		clock:     clk,
		runtime:   rt,
		words:     words,
		templates: Default{},
		pickIndex: rand.New(rand.NewSource(time.Now().UnixNano())).Intn,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) groupID() int64 {
	return m.runtime.Base().GroupID
}

func (m *Machine) pickMagicWord() string {
	if len(m.words) == 0 {
		return "verify"
	}
	return m.words[m.pickIndex(len(m.words))]
}

// OnJoin handles a new-member join event. No-op if the user is already
// approved; otherwise (re)creates a locked session, restricts the user, and
// sends the welcome message with the agree button.
func (m *Machine) OnJoin(ctx context.Context, userID int64) error {
	groupID := m.groupID()

	approved, err := m.store.IsApproved(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("verify: on_join: check approved: %w", err)
	}
	if approved {
		return nil
	}

	now := m.clock.Now()
	sess := &store.VerificationSession{
		ID:            uuid.New(),
		GroupID:       groupID,
		UserID:        userID,
		State:         store.StateJoinedLocked,
		MagicWord:     m.pickMagicWord(),
		ReminderCount: 0,
		RemindAt:      now.Add(time.Duration(m.runtime.RemindAfterMin(ctx)) * time.Minute),
		ExpiresAt:     now.Add(time.Duration(m.runtime.ExpireAfterMin(ctx)) * time.Minute),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.UpsertSession(ctx, sess); err != nil {
		return fmt.Errorf("verify: on_join: upsert session: %w", err)
	}

	if err := m.platform.RestrictUser(ctx, groupID, userID, sess.ExpiresAt); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_join: restrict failed, continuing")
	}

	payload := m.signer.CallbackPayload(groupID, userID, sess.ID)
	messageID, err := m.platform.SendMessageWithButton(ctx, groupID, m.templates.Welcome(), platform.InlineButton{
		Text:         AgreeButtonText,
		CallbackData: payload,
	})
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_join: send welcome failed")
		return nil
	}

	sess.WelcomeMessageID.Int64 = messageID
	sess.WelcomeMessageID.Valid = true
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_join: record welcome message id failed")
	}
	return nil
}

// OnAgreeCallback handles the inline-button press. All failure modes are
// silent (scenario 2/3): a wrong-user press gets an alert, anything else
// (bad signature, unknown session) gets no text at all.
func (m *Machine) OnAgreeCallback(ctx context.Context, query platform.CallbackQuery) error {
	groupID := m.groupID()

	parsed, err := m.signer.VerifyCallback(groupID, query.Data)
	if err != nil {
		return m.platform.AnswerCallback(ctx, query.ID, "", false)
	}
	if parsed.UserID != query.FromUserID {
		return m.platform.AnswerCallback(ctx, query.ID, "This button isn't for you.", true)
	}

	sess, err := m.store.GetSessionByID(ctx, parsed.ID)
	if err != nil {
		return m.platform.AnswerCallback(ctx, query.ID, "", false)
	}
	if sess.GroupID != groupID || sess.UserID != query.FromUserID {
		return m.platform.AnswerCallback(ctx, query.ID, "", false)
	}

	deepLinkPayload := m.signer.DeepLinkPayload(groupID, query.FromUserID, sess.ID)
	return m.platform.AnswerCallbackWithURL(ctx, query.ID, m.platform.DeepLinkURL(deepLinkPayload))
}

// OnStart handles `/start agree_<token><sig>` in the user's private chat.
func (m *Machine) OnStart(ctx context.Context, userID int64, payload string) error {
	id, err := signing.ParseStartPayload(payload)
	if err != nil {
		return nil // silent rejection
	}

	sess, err := m.store.GetSessionByID(ctx, id)
	if err != nil {
		return nil
	}
	if sess.UserID != userID {
		return nil // payload belongs to a different user's session
	}
	if _, err := m.signer.VerifyStart(sess.GroupID, sess.UserID, payload); err != nil {
		return nil
	}
	if sess.State == store.StateConfirmedUnlocked {
		return nil
	}

	now := m.clock.Now()
	if now.After(sess.ExpiresAt) {
		return nil
	}

	sess.State = store.StateWaitingDMConfirm
	sess.UpdatedAt = now
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("verify: on_start: update session: %w", err)
	}

	if _, err := m.platform.SendMessage(ctx, userID, m.templates.Rules(sess.MagicWord)); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_start: send rules failed")
	}
	return nil
}

// SendReminder re-sends the agree-button message for an in-progress session,
// using the same callback payload shape as the original welcome message
// (spec.md §4.8: "same agree-button payload as the welcome"). Called by the
// reminder worker; it does not touch session state itself.
func (m *Machine) SendReminder(ctx context.Context, sess *store.VerificationSession) error {
	payload := m.signer.CallbackPayload(sess.GroupID, sess.UserID, sess.ID)
	_, err := m.platform.SendMessageWithButton(ctx, sess.GroupID, m.templates.Reminder(), platform.InlineButton{
		Text:         AgreeButtonText,
		CallbackData: payload,
	})
	return err
}

// OnPrivateText handles a private-chat message, optionally carrying a shared
// contact card. Contact phone numbers are persisted regardless of whether
// the text matches the magic word.
func (m *Machine) OnPrivateText(ctx context.Context, userID int64, text string, contact *platform.Contact) error {
	now := m.clock.Now()

	if contact != nil && contact.UserID == userID {
		if err := m.store.SetPhoneNumber(ctx, userID, contact.PhoneNumber, now); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_private_text: set phone number failed")
		}
	}

	sess, err := m.store.GetSessionByGroupUser(ctx, m.groupID(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify: on_private_text: get session: %w", err)
	}

	if sess.State != store.StateJoinedLocked && sess.State != store.StateWaitingDMConfirm {
		return nil
	}
	if now.After(sess.ExpiresAt) {
		return nil
	}
	if normalize.Word(text, true) != normalize.Word(sess.MagicWord, true) {
		return nil
	}

	if err := m.platform.UnrestrictUser(ctx, sess.GroupID, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_private_text: unrestrict failed, continuing")
	}
	if err := m.store.InsertApprovedMember(ctx, sess.GroupID, userID, now); err != nil {
		return fmt.Errorf("verify: on_private_text: insert approved member: %w", err)
	}

	sess.State = store.StateConfirmedUnlocked
	sess.ReminderCount = m.runtime.MaxReminders(ctx)
	sess.RemindAt = sess.ExpiresAt
	sess.UpdatedAt = now
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("verify: on_private_text: update session: %w", err)
	}

	if sess.WelcomeMessageID.Valid {
		if err := m.platform.EditMessage(ctx, sess.GroupID, sess.WelcomeMessageID.Int64, m.templates.Success()); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_private_text: edit welcome message failed")
		}
	}
	if _, err := m.platform.SendMessage(ctx, userID, m.templates.Confirmation()); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("verify: on_private_text: send confirmation failed")
	}
	return nil
}
