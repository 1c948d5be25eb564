package platform

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// Config configures the mautrix-backed adapter. GroupRoomID is the single
// Matrix room standing in for spec.md's single configured group — multi-
// group operation is an explicit Non-goal (spec.md §1).
type Config struct {
	Homeserver  string
	BotUserID   string
	AccessToken string
	GroupID     int64
	GroupRoomID id.RoomID
	DB          *store.Store
	BotUsername string // used to render deep-link URLs
}

// Adapter is the concrete platform.Client built on maunium.net/go/mautrix,
// generalized from the teacher's internal/ruriko/matrix/client.go: same
// exponential-backoff Sync reconnect loop and persistent SQLite sync store,
// extended with the restrict/callback/deep-link primitives the teacher's
// admin-bot use case never needed.
type Adapter struct {
	client *mautrix.Client
	cfg    Config
	stopCh chan struct{}

	ids     *idDirectory
	dmMu    sync.Mutex
	dmRooms map[int64]id.RoomID
}

var _ Client = (*Adapter)(nil)

// New constructs an Adapter. It does not start consuming events; call Start
// for that.
func New(cfg Config) (*Adapter, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.BotUserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("platform: create mautrix client: %w", err)
	}
	if cfg.DB != nil {
		client.Store = newDBSyncStore(cfg.DB)
	} else {
		log.Warn().Msg("platform: no DB configured for sync store, history will replay on restart")
	}

	a := &Adapter{
		client:  client,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		ids:     newIDDirectory(),
		dmRooms: make(map[int64]id.RoomID),
	}
	a.ids.internRoom(cfg.GroupID, cfg.GroupRoomID)
	return a, nil
}

// Start joins the group room and begins syncing, dispatching every
// recognized event to handler.
func (a *Adapter) Start(ctx context.Context, handler EventHandler) error {
	syncer := a.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		a.handleMessage(ctx, handler, evt)
	})
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		a.handleMembership(ctx, handler, evt)
	})

	if _, err := a.client.JoinRoomByID(ctx, a.cfg.GroupRoomID); err != nil && !errors.Is(err, mautrix.MForbidden) {
		return fmt.Errorf("platform: join group room: %w", err)
	}

	go a.syncLoop()
	return nil
}

// syncLoop mirrors the teacher's reconnect-with-backoff loop verbatim in
// shape: a transient homeserver error must not silently kill event delivery.
func (a *Adapter) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		if err := a.client.Sync(); err != nil {
			select {
			case <-a.stopCh:
				return
			default:
			}
			log.Error().Err(err).Dur("backoff", backoff).Msg("platform: sync stopped, reconnecting")
			select {
			case <-a.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		return
	}
}

// Stop ends the sync loop.
func (a *Adapter) Stop() {
	close(a.stopCh)
	a.client.StopSync()
}

func (a *Adapter) handleMessage(ctx context.Context, handler EventHandler, evt *event.Event) {
	if evt.Sender == id.UserID(a.cfg.BotUserID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil {
		return
	}

	userID := a.ids.internUser(evt.Sender)
	chatID := a.ids.internRoomFromID(evt.RoomID)
	messageID := a.ids.internMessage(evt.ID)
	isPrivate := evt.RoomID != a.cfg.GroupRoomID

	handler.OnMessage(ctx, MessageEnvelope{
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    userID,
		IsPrivate: isPrivate,
		Text:      msg.Body,
	})
}

func (a *Adapter) handleMembership(ctx context.Context, handler EventHandler, evt *event.Event) {
	if evt.RoomID != a.cfg.GroupRoomID {
		return
	}
	content := evt.Content.AsMember()
	if content == nil {
		return
	}
	prevStatus := StatusLeft
	if evt.Unsigned.PrevContent != nil {
		if prev := evt.Unsigned.PrevContent.AsMember(); prev != nil {
			prevStatus = membershipToStatus(prev.Membership)
		}
	}

	userID := a.ids.internUser(id.UserID(evt.GetStateKey()))
	handler.OnChatMemberUpdated(ctx, ChatMemberUpdate{
		GroupID:   a.cfg.GroupID,
		UserID:    userID,
		OldStatus: prevStatus,
		NewStatus: membershipToStatus(content.Membership),
	})
}

func membershipToStatus(m event.Membership) MemberStatus {
	switch m {
	case event.MembershipJoin:
		return StatusMember
	case event.MembershipLeave:
		return StatusLeft
	case event.MembershipBan:
		return StatusKicked
	default:
		return StatusLeft
	}
}

// RestrictUser sets the user's room power level below the posting threshold.
// Matrix has no native until_date on a power-level change; the caller
// (Moderation Pipeline, Verification State Machine) is responsible for
// scheduling the corresponding UnrestrictUser call — exact restrict wire
// semantics are out of scope per spec.md §1.
func (a *Adapter) RestrictUser(ctx context.Context, groupID, userID int64, until time.Time) error {
	return a.setPowerLevel(ctx, userID, -1)
}

// UnrestrictUser restores the default (member) power level.
func (a *Adapter) UnrestrictUser(ctx context.Context, groupID, userID int64) error {
	return a.setPowerLevel(ctx, userID, 0)
}

func (a *Adapter) setPowerLevel(ctx context.Context, userID int64, level int) error {
	muID, ok := a.ids.resolveUser(userID)
	if !ok {
		return fmt.Errorf("platform: unknown user id %d", userID)
	}
	var levels event.PowerLevelsEventContent
	if err := a.client.StateEvent(ctx, a.cfg.GroupRoomID, event.StatePowerLevels, "", &levels); err != nil {
		return fmt.Errorf("platform: fetch power levels: %w", err)
	}
	levels.EnsureUserLevel(muID, level)
	if _, err := a.client.SendStateEvent(ctx, a.cfg.GroupRoomID, event.StatePowerLevels, "", &levels); err != nil {
		return fmt.Errorf("platform: set power level: %w", err)
	}
	return nil
}

// GetChatMember returns the user's current membership/power status.
func (a *Adapter) GetChatMember(ctx context.Context, groupID, userID int64) (ChatMember, error) {
	muID, ok := a.ids.resolveUser(userID)
	if !ok {
		return ChatMember{}, fmt.Errorf("platform: unknown user id %d", userID)
	}
	var member event.MemberEventContent
	if err := a.client.StateEvent(ctx, a.cfg.GroupRoomID, event.StateMember, muID.String(), &member); err != nil {
		return ChatMember{UserID: userID, Status: StatusLeft}, nil
	}

	status := membershipToStatus(member.Membership)
	var levels event.PowerLevelsEventContent
	if err := a.client.StateEvent(ctx, a.cfg.GroupRoomID, event.StatePowerLevels, "", &levels); err == nil {
		if levels.GetUserLevel(muID) >= levels.StateDefault() && levels.GetUserLevel(muID) > 0 {
			status = StatusAdministrator
		}
	}
	return ChatMember{UserID: userID, Status: status}, nil
}

// SendMessage posts plain text to chatID.
func (a *Adapter) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	roomID, ok := a.ids.resolveRoom(chatID)
	if !ok {
		return 0, fmt.Errorf("platform: unknown chat id %d", chatID)
	}
	resp, err := a.client.SendText(ctx, roomID, text)
	if err != nil {
		return 0, fmt.Errorf("platform: send message: %w", err)
	}
	return a.ids.internMessage(resp.EventID), nil
}

// SendMessageWithButton posts text with a single inline button, rendered as
// an HTML link carrying the callback data in its query string — the closest
// analogue Matrix's formatted-message model offers to an inline keyboard.
func (a *Adapter) SendMessageWithButton(ctx context.Context, chatID int64, text string, button InlineButton) (int64, error) {
	roomID, ok := a.ids.resolveRoom(chatID)
	if !ok {
		return 0, fmt.Errorf("platform: unknown chat id %d", chatID)
	}
	link := fmt.Sprintf("https://matrix.to/#/%s?action=callback&data=%s", a.cfg.BotUserID, url.QueryEscape(button.CallbackData))
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          fmt.Sprintf("%s\n\n[%s](%s)", text, button.Text, link),
		Format:        event.FormatHTML,
		FormattedBody: fmt.Sprintf(`%s<br/><a href="%s">%s</a>`, text, link, button.Text),
	}
	resp, err := a.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err != nil {
		return 0, fmt.Errorf("platform: send message with button: %w", err)
	}
	return a.ids.internMessage(resp.EventID), nil
}

// EditMessage replaces the body of an existing message via m.replace.
func (a *Adapter) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	roomID, ok := a.ids.resolveRoom(chatID)
	if !ok {
		return fmt.Errorf("platform: unknown chat id %d", chatID)
	}
	evtID, ok := a.ids.resolveMessage(messageID)
	if !ok {
		return fmt.Errorf("platform: unknown message id %d", messageID)
	}
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "* " + text,
		NewContent: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    text,
		},
		RelatesTo: &event.RelatesTo{
			Type:    event.RelReplace,
			EventID: evtID,
		},
	}
	_, err := a.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("platform: edit message: %w", err)
	}
	return nil
}

// DeleteMessage redacts a message.
func (a *Adapter) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	roomID, ok := a.ids.resolveRoom(chatID)
	if !ok {
		return fmt.Errorf("platform: unknown chat id %d", chatID)
	}
	evtID, ok := a.ids.resolveMessage(messageID)
	if !ok {
		return fmt.Errorf("platform: unknown message id %d", messageID)
	}
	if _, err := a.client.RedactEvent(ctx, roomID, evtID); err != nil {
		return fmt.Errorf("platform: delete message: %w", err)
	}
	return nil
}

// ForwardMessage re-sends the original message's content into another room.
func (a *Adapter) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	fromRoom, ok := a.ids.resolveRoom(fromChatID)
	if !ok {
		return fmt.Errorf("platform: unknown chat id %d", fromChatID)
	}
	toRoom, ok := a.ids.resolveRoom(toChatID)
	if !ok {
		return fmt.Errorf("platform: unknown chat id %d", toChatID)
	}
	evtID, ok := a.ids.resolveMessage(messageID)
	if !ok {
		return fmt.Errorf("platform: unknown message id %d", messageID)
	}
	evt, err := a.client.GetEvent(ctx, fromRoom, evtID)
	if err != nil {
		return fmt.Errorf("platform: forward: fetch original: %w", err)
	}
	msg := evt.Content.AsMessage()
	if msg == nil {
		return fmt.Errorf("platform: forward: original event is not a message")
	}
	if _, err := a.client.SendText(ctx, toRoom, msg.Body); err != nil {
		return fmt.Errorf("platform: forward message: %w", err)
	}
	return nil
}

// AnswerCallback has no native Matrix analogue; it is a no-op here beyond
// logging, since the callback itself arrives to us as a plain message (see
// SendMessageWithButton) rather than a dedicated callback-query event.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, showAlert bool) error {
	log.Debug().Str("callback_id", callbackID).Bool("alert", showAlert).Msg("platform: answer callback")
	return nil
}

// AnswerCallbackWithURL is likewise a logging no-op; the deep-link URL is
// delivered to the user directly as part of the button's formatted body.
func (a *Adapter) AnswerCallbackWithURL(ctx context.Context, callbackID string, redirectURL string) error {
	log.Debug().Str("callback_id", callbackID).Str("url", redirectURL).Msg("platform: answer callback with redirect")
	return nil
}

// DeepLinkURL renders a matrix.to deep link carrying payload as a query
// parameter, the closest analogue to a bot `/start <payload>` deep link.
func (a *Adapter) DeepLinkURL(payload string) string {
	return fmt.Sprintf("https://matrix.to/#/%s?start=%s", a.cfg.BotUsername, url.QueryEscape(payload))
}

// idDirectory bridges wardbot's int64 user/room/message identifiers onto
// mautrix's string-typed ids. wardbot's domain model (inherited from
// spec.md's bot-API port) is expressed in Telegram-shaped int64 ids; the
// directory interns every Matrix id the adapter observes so handlers can
// round-trip through the numeric surface the rest of the system expects.
type idDirectory struct {
	mu        sync.Mutex
	userToInt map[id.UserID]int64
	intToUser map[int64]id.UserID
	roomToInt map[id.RoomID]int64
	intToRoom map[int64]id.RoomID
	msgToInt  map[id.EventID]int64
	intToMsg  map[int64]id.EventID
}

func newIDDirectory() *idDirectory {
	return &idDirectory{
		userToInt: make(map[id.UserID]int64),
		intToUser: make(map[int64]id.UserID),
		roomToInt: make(map[id.RoomID]int64),
		intToRoom: make(map[int64]id.RoomID),
		msgToInt:  make(map[id.EventID]int64),
		intToMsg:  make(map[int64]id.EventID),
	}
}

func fnvHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

func (d *idDirectory) internUser(u id.UserID) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.userToInt[u]; ok {
		return n
	}
	n := fnvHash("user:" + u.String())
	d.userToInt[u] = n
	d.intToUser[n] = u
	return n
}

func (d *idDirectory) resolveUser(n int64) (id.UserID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.intToUser[n]
	return u, ok
}

func (d *idDirectory) internRoom(n int64, r id.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roomToInt[r] = n
	d.intToRoom[n] = r
}

func (d *idDirectory) internRoomFromID(r id.RoomID) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.roomToInt[r]; ok {
		return n
	}
	n := fnvHash("room:" + r.String())
	d.roomToInt[r] = n
	d.intToRoom[n] = r
	return n
}

func (d *idDirectory) resolveRoom(n int64) (id.RoomID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.intToRoom[n]
	return r, ok
}

func (d *idDirectory) internMessage(e id.EventID) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.msgToInt[e]; ok {
		return n
	}
	n := fnvHash("event:" + e.String())
	d.msgToInt[e] = n
	d.intToMsg[n] = e
	return n
}

func (d *idDirectory) resolveMessage(n int64) (id.EventID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.intToMsg[n]
	return e, ok
}
