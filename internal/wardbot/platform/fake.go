package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Client for tests. It records every call so a test
// can assert on the sequence of side effects the port was asked to perform,
// mirroring spec.md's description of the bot-API port as the out-of-scope
// collaborator (§1): production wiring uses Adapter, tests use Fake.
type Fake struct {
	mu sync.Mutex

	nextMessageID int64
	Members       map[int64]ChatMember // userID -> member, default StatusMember if absent
	Restricted    map[int64]time.Time  // userID -> restricted-until
	Messages      map[int64]string     // messageID -> text
	Deleted       map[int64]bool       // messageID -> deleted

	Sent      []SentMessage
	Edited    []EditedMessage
	Forwarded []ForwardedMessage
	Answers   []AnsweredCallback
}

type SentMessage struct {
	ChatID    int64
	Text      string
	Button    *InlineButton
	MessageID int64
}

type EditedMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
}

type ForwardedMessage struct {
	ToChatID, FromChatID, MessageID int64
}

type AnsweredCallback struct {
	CallbackID string
	Text       string
	ShowAlert  bool
	URL        string
}

// NewFake returns a ready-to-use Fake.
func NewFake() *Fake {
	return &Fake{
		Members:    make(map[int64]ChatMember),
		Restricted: make(map[int64]time.Time),
		Messages:   make(map[int64]string),
		Deleted:    make(map[int64]bool),
	}
}

func (f *Fake) Start(ctx context.Context, handler EventHandler) error { return nil }
func (f *Fake) Stop()                                                {}

func (f *Fake) RestrictUser(ctx context.Context, groupID, userID int64, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restricted[userID] = until
	return nil
}

func (f *Fake) UnrestrictUser(ctx context.Context, groupID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Restricted, userID)
	return nil
}

// IsRestricted reports whether userID is currently restricted per the Fake's
// bookkeeping (test helper, not part of the Client port).
func (f *Fake) IsRestricted(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Restricted[userID]
	return ok
}

func (f *Fake) GetChatMember(ctx context.Context, groupID, userID int64) (ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.Members[userID]; ok {
		return m, nil
	}
	return ChatMember{UserID: userID, Status: StatusMember}, nil
}

func (f *Fake) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	id := f.nextMessageID
	f.Messages[id] = text
	f.Sent = append(f.Sent, SentMessage{ChatID: chatID, Text: text, MessageID: id})
	return id, nil
}

func (f *Fake) SendMessageWithButton(ctx context.Context, chatID int64, text string, button InlineButton) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	id := f.nextMessageID
	f.Messages[id] = text
	btn := button
	f.Sent = append(f.Sent, SentMessage{ChatID: chatID, Text: text, Button: &btn, MessageID: id})
	return id, nil
}

func (f *Fake) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Messages[messageID]; !ok {
		return fmt.Errorf("platform/fake: unknown message id %d", messageID)
	}
	f.Messages[messageID] = text
	f.Edited = append(f.Edited, EditedMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted[messageID] = true
	return nil
}

func (f *Fake) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Forwarded = append(f.Forwarded, ForwardedMessage{ToChatID: toChatID, FromChatID: fromChatID, MessageID: messageID})
	return nil
}

func (f *Fake) AnswerCallback(ctx context.Context, callbackID string, text string, showAlert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answers = append(f.Answers, AnsweredCallback{CallbackID: callbackID, Text: text, ShowAlert: showAlert})
	return nil
}

func (f *Fake) AnswerCallbackWithURL(ctx context.Context, callbackID string, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answers = append(f.Answers, AnsweredCallback{CallbackID: callbackID, URL: url})
	return nil
}

func (f *Fake) DeepLinkURL(payload string) string {
	return "https://t.me/wardbot?start=" + payload
}
