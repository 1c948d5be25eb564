// Package platform defines the bot-API port that C6/C7/C8/C9 depend on,
// and ships one concrete adapter built on maunium.net/go/mautrix — the
// teacher's own transport, generalized from an admin-command bot onto
// wardbot's membership/moderation surface (restrict, inline callback
// buttons, deep links) per spec.md §6.
package platform

import (
	"context"
	"time"
)

// MemberStatus mirrors the bot API's getChatMember status enum (§6).
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// ChatMember is the result of a getChatMember call.
type ChatMember struct {
	UserID int64
	Status MemberStatus
}

// IsPrivileged reports whether the member can bypass moderation (§4.7.1).
func (m ChatMember) IsPrivileged() bool {
	return m.Status == StatusCreator || m.Status == StatusAdministrator
}

// ChatMemberUpdate is the onChatMemberUpdated event (§4.9): a transition in
// a user's membership status within the configured group.
type ChatMemberUpdate struct {
	GroupID   int64
	UserID    int64
	OldStatus MemberStatus
	NewStatus MemberStatus
}

// Joined reports whether this transition represents a new join.
func (u ChatMemberUpdate) Joined() bool {
	return u.NewStatus == StatusMember &&
		(u.OldStatus == StatusLeft || u.OldStatus == StatusKicked || u.OldStatus == "")
}

// Left reports whether this transition represents the user leaving or being removed.
func (u ChatMemberUpdate) Left() bool {
	return u.NewStatus == StatusLeft || u.NewStatus == StatusKicked
}

// Contact is a shared contact card, attached to a private message.
type Contact struct {
	UserID      int64
	PhoneNumber string
}

// MessageEnvelope is the onMessage event (§4.9). IsService marks a
// platform-generated membership notice (join/leave) rather than user text;
// the dispatcher's edge policy deletes these unconditionally (spec.md §4.6
// "Edge policy").
type MessageEnvelope struct {
	ChatID    int64
	MessageID int64
	UserID    int64
	IsPrivate bool
	IsService bool
	Text      string
	Contact   *Contact
}

// CallbackQuery is the onCallback event (§4.9): an inline-button press.
type CallbackQuery struct {
	ID         string
	FromUserID int64
	ChatID     int64
	MessageID  int64
	Data       string
}

// EventHandler receives dispatched platform events. C9 (dispatch) is the
// only implementer in this repo; the adapter never inspects event content
// itself.
type EventHandler interface {
	OnChatMemberUpdated(ctx context.Context, update ChatMemberUpdate)
	OnMessage(ctx context.Context, envelope MessageEnvelope)
	OnCallback(ctx context.Context, query CallbackQuery)
}

// InlineButton is a single inline-keyboard button carrying opaque callback data.
type InlineButton struct {
	Text         string
	CallbackData string
}

// Client is the bot-API port. Exactly the capabilities spec.md §6 requires;
// nothing about the wire format of a concrete platform leaks past it.
type Client interface {
	// Start begins consuming platform events and dispatching them to
	// handler until Stop is called; cancelling ctx does not end it.
	Start(ctx context.Context, handler EventHandler) error
	// Stop ends the consume loop, draining in-flight handlers first.
	Stop()

	// RestrictUser revokes every posting permission for (groupID, userID)
	// until `until`.
	RestrictUser(ctx context.Context, groupID, userID int64, until time.Time) error
	// UnrestrictUser restores default posting permissions.
	UnrestrictUser(ctx context.Context, groupID, userID int64) error
	// GetChatMember returns the member's current status.
	GetChatMember(ctx context.Context, groupID, userID int64) (ChatMember, error)

	// SendMessage posts text to chatID and returns the new message id.
	SendMessage(ctx context.Context, chatID int64, text string) (messageID int64, err error)
	// SendMessageWithButton posts text with a single inline button and
	// returns the new message id.
	SendMessageWithButton(ctx context.Context, chatID int64, text string, button InlineButton) (messageID int64, err error)
	// EditMessage replaces the text of an existing message.
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	// ForwardMessage forwards a message from one chat to another.
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error

	// AnswerCallback acknowledges a callback query, optionally showing an
	// alert. A silent rejection (§4.6, §7) answers with no text.
	AnswerCallback(ctx context.Context, callbackID string, text string, showAlert bool) error
	// AnswerCallbackWithURL acknowledges a callback query by redirecting the
	// client to url (used to trigger the deep-link `/start`).
	AnswerCallbackWithURL(ctx context.Context, callbackID string, url string) error

	// DeepLinkURL returns the `/start <payload>` deep link for this bot.
	DeepLinkURL(payload string) string
}
