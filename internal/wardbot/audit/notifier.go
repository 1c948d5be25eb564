// Package audit posts concise human-readable summaries of moderation and
// verification events to an admin chat, generalized from the teacher's
// internal/ruriko/audit (control-plane event notices) onto wardbot's
// membership/moderation domain.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindMemberJoined    Kind = "member.joined"
	KindMemberVerified  Kind = "member.verified"
	KindMemberExpired   Kind = "member.expired"
	KindMessageMuted    Kind = "message.muted"
	KindClassifierError Kind = "classifier.error"
)

// Event carries the data the notifier formats and sends.
type Event struct {
	Kind      Kind
	UserID    int64
	Target    string // matched word or AI label, when relevant
	Message   string
	TraceID   string
	Timestamp time.Time
}

// Notifier posts audit events. Implementations MUST NOT block the caller for
// longer than a short timeout; send failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of platform.Client a Notifier needs — kept narrow so
// the notifier can be unit-tested without a full Client fake.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
}

// ChatNotifier posts formatted notices to the admin chat. The destination is
// resolved fresh on every call rather than fixed at construction, so a
// runtime `/admin settings set admin_ids ...` edit (spec.md §6's
// `ADMIN_ID, ADMIN_IDS*` override) takes effect on the very next event —
// including turning notifications on when the roster started out empty.
type ChatNotifier struct {
	sender Sender
	chatID func(ctx context.Context) int64
}

// NewChatNotifier creates a ChatNotifier posting to whatever chatID resolves
// to at call time via sender.
func NewChatNotifier(sender Sender, chatID func(ctx context.Context) int64) *ChatNotifier {
	return &ChatNotifier{sender: sender, chatID: chatID}
}

// Notify formats evt as a human-readable message and posts it to the admin
// chat. Errors are logged at WARN; the caller is never blocked.
func (n *ChatNotifier) Notify(ctx context.Context, evt Event) {
	chatID := n.chatID(ctx)
	if chatID == 0 {
		return
	}

	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if evt.UserID != 0 {
		msg = fmt.Sprintf("%s\n  user: %d", msg, evt.UserID)
	}
	if tid != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, tid)
	}

	if _, err := n.sender.SendMessage(ctx, chatID, msg); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Str("kind", string(evt.Kind)).Msg("audit: failed to send notice")
	} else {
		log.Debug().Int64("chat_id", chatID).Str("kind", string(evt.Kind)).Msg("audit: sent notice")
	}
}

// Noop is a no-op Notifier used when audit notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

func kindIcon(k Kind) string {
	switch k {
	case KindMemberJoined:
		return "👋"
	case KindMemberVerified:
		return "✅"
	case KindMemberExpired:
		return "⌛"
	case KindMessageMuted:
		return "🔇"
	case KindClassifierError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
