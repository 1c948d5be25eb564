package dispatch_test

import (
	"context"
	"testing"

	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/dispatch"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
)

const testGroupID = int64(-1001)

type fakeVerifier struct {
	joinedUser    int64
	startUser     int64
	startPayload  string
	privateUser   int64
	privateText   string
	privateErr    error
	callbackQuery *platform.CallbackQuery
}

func (f *fakeVerifier) OnJoin(ctx context.Context, userID int64) error {
	f.joinedUser = userID
	return nil
}

func (f *fakeVerifier) OnAgreeCallback(ctx context.Context, query platform.CallbackQuery) error {
	f.callbackQuery = &query
	return nil
}

func (f *fakeVerifier) OnStart(ctx context.Context, userID int64, payload string) error {
	f.startUser = userID
	f.startPayload = payload
	return nil
}

func (f *fakeVerifier) OnPrivateText(ctx context.Context, userID int64, text string, contact *platform.Contact) error {
	f.privateUser = userID
	f.privateText = text
	return f.privateErr
}

type fakeModerator struct {
	handled []platform.MessageEnvelope
}

func (f *fakeModerator) HandleMessage(ctx context.Context, msg platform.MessageEnvelope) error {
	f.handled = append(f.handled, msg)
	return nil
}

type fakeApprovals struct {
	approved map[int64]bool
}

func (f *fakeApprovals) IsApproved(ctx context.Context, groupID, userID int64) (bool, error) {
	return f.approved[userID], nil
}

type fakeAdminUI struct {
	handle func(ctx context.Context, userID int64, text string) (bool, error)
}

func (f *fakeAdminUI) HandleCommand(ctx context.Context, userID int64, text string) (bool, error) {
	if f.handle == nil {
		return false, nil
	}
	return f.handle(ctx, userID, text)
}

func newDispatcher(fake *platform.Fake, verifier *fakeVerifier, moderator *fakeModerator, approvals *fakeApprovals) *dispatch.Dispatcher {
	cfg := &config.Config{GroupID: testGroupID}
	rt := config.NewRuntime(cfg, nil)
	return dispatch.New(verifier, moderator, approvals, &fakeAdminUI{}, fake, rt)
}

func TestOnChatMemberUpdatedJoinTriggersOnJoin(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	d := newDispatcher(fake, verifier, &fakeModerator{}, &fakeApprovals{})

	d.OnChatMemberUpdated(context.Background(), platform.ChatMemberUpdate{
		GroupID: testGroupID, UserID: 100, OldStatus: platform.StatusLeft, NewStatus: platform.StatusMember,
	})
	if verifier.joinedUser != 100 {
		t.Fatalf("expected OnJoin called with 100, got %d", verifier.joinedUser)
	}
}

func TestOnChatMemberUpdatedIgnoresOtherGroups(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	d := newDispatcher(fake, verifier, &fakeModerator{}, &fakeApprovals{})

	d.OnChatMemberUpdated(context.Background(), platform.ChatMemberUpdate{
		GroupID: -9999, UserID: 100, OldStatus: platform.StatusLeft, NewStatus: platform.StatusMember,
	})
	if verifier.joinedUser != 0 {
		t.Fatalf("expected no OnJoin call for a foreign group, got %d", verifier.joinedUser)
	}
}

func TestOnMessagePrivateStartRoutesToOnStart(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	d := newDispatcher(fake, verifier, &fakeModerator{}, &fakeApprovals{})

	d.OnMessage(context.Background(), platform.MessageEnvelope{
		IsPrivate: true, UserID: 100, Text: "/start agree_abc123",
	})
	if verifier.startUser != 100 || verifier.startPayload != "agree_abc123" {
		t.Fatalf("expected OnStart(100, agree_abc123), got (%d, %q)", verifier.startUser, verifier.startPayload)
	}
}

func TestOnMessagePrivateTextRoutesToOnPrivateText(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	d := newDispatcher(fake, verifier, &fakeModerator{}, &fakeApprovals{})

	d.OnMessage(context.Background(), platform.MessageEnvelope{
		IsPrivate: true, UserID: 100, Text: "Apricot",
	})
	if verifier.privateUser != 100 || verifier.privateText != "Apricot" {
		t.Fatalf("expected OnPrivateText(100, Apricot), got (%d, %q)", verifier.privateUser, verifier.privateText)
	}
}

func TestOnMessageIgnoresForeignGroup(t *testing.T) {
	fake := platform.NewFake()
	moderator := &fakeModerator{}
	d := newDispatcher(fake, &fakeVerifier{}, moderator, &fakeApprovals{})

	d.OnMessage(context.Background(), platform.MessageEnvelope{ChatID: -9999, UserID: 100, Text: "hi"})
	if len(moderator.handled) != 0 {
		t.Fatalf("expected no pipeline call for a foreign group, got %+v", moderator.handled)
	}
}

func TestOnMessageDeletesServiceMessage(t *testing.T) {
	fake := platform.NewFake()
	d := newDispatcher(fake, &fakeVerifier{}, &fakeModerator{}, &fakeApprovals{})

	d.OnMessage(context.Background(), platform.MessageEnvelope{ChatID: testGroupID, MessageID: 5, IsService: true})
	if !fake.Deleted[5] {
		t.Fatal("expected service message 5 to be deleted")
	}
}

func TestOnMessageDeletesUnapprovedNonAdminPostWithoutModeration(t *testing.T) {
	fake := platform.NewFake()
	moderator := &fakeModerator{}
	approvals := &fakeApprovals{approved: map[int64]bool{}}
	d := newDispatcher(fake, &fakeVerifier{}, moderator, approvals)

	d.OnMessage(context.Background(), platform.MessageEnvelope{ChatID: testGroupID, MessageID: 7, UserID: 100, Text: "spam"})
	if !fake.Deleted[7] {
		t.Fatal("expected unapproved user's message to be deleted")
	}
	if len(moderator.handled) != 0 {
		t.Fatalf("expected the moderation pipeline to never see an unapproved post, got %+v", moderator.handled)
	}
}

func TestOnMessageRoutesApprovedUserToModerationPipeline(t *testing.T) {
	fake := platform.NewFake()
	moderator := &fakeModerator{}
	approvals := &fakeApprovals{approved: map[int64]bool{100: true}}
	d := newDispatcher(fake, &fakeVerifier{}, moderator, approvals)

	d.OnMessage(context.Background(), platform.MessageEnvelope{ChatID: testGroupID, MessageID: 8, UserID: 100, Text: "hello"})
	if fake.Deleted[8] {
		t.Fatal("approved user's message must not be deleted by the dispatcher")
	}
	if len(moderator.handled) != 1 {
		t.Fatalf("expected one pipeline call, got %+v", moderator.handled)
	}
}

func TestOnMessageAdminBypassesApprovalCheck(t *testing.T) {
	fake := platform.NewFake()
	fake.Members[100] = platform.ChatMember{UserID: 100, Status: platform.StatusAdministrator}
	moderator := &fakeModerator{}
	d := newDispatcher(fake, &fakeVerifier{}, moderator, &fakeApprovals{})

	d.OnMessage(context.Background(), platform.MessageEnvelope{ChatID: testGroupID, MessageID: 9, UserID: 100, Text: "hello"})
	if fake.Deleted[9] {
		t.Fatal("admin's message must not be deleted")
	}
	if len(moderator.handled) != 1 {
		t.Fatalf("expected the pipeline to still run for an admin (it performs its own bypass), got %+v", moderator.handled)
	}
}

func TestOnMessagePrivateAdminCommandBypassesVerifier(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	cfg := &config.Config{GroupID: testGroupID}
	rt := config.NewRuntime(cfg, nil)
	admin := &fakeAdminUI{handle: func(ctx context.Context, userID int64, text string) (bool, error) {
		return true, nil
	}}
	d := dispatch.New(verifier, &fakeModerator{}, &fakeApprovals{}, admin, fake, rt)

	d.OnMessage(context.Background(), platform.MessageEnvelope{
		IsPrivate: true, UserID: 100, Text: "/admin lexicon list",
	})
	if verifier.startUser != 0 || verifier.privateUser != 0 {
		t.Fatalf("expected the admin surface to claim the message, got verifier state %+v", verifier)
	}
}

func TestOnMessagePrivateFallsThroughWhenAdminDeclines(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	cfg := &config.Config{GroupID: testGroupID}
	rt := config.NewRuntime(cfg, nil)
	admin := &fakeAdminUI{handle: func(ctx context.Context, userID int64, text string) (bool, error) {
		return false, nil
	}}
	d := dispatch.New(verifier, &fakeModerator{}, &fakeApprovals{}, admin, fake, rt)

	d.OnMessage(context.Background(), platform.MessageEnvelope{
		IsPrivate: true, UserID: 100, Text: "Apricot",
	})
	if verifier.privateUser != 100 || verifier.privateText != "Apricot" {
		t.Fatalf("expected fallthrough to OnPrivateText, got (%d, %q)", verifier.privateUser, verifier.privateText)
	}
}

func TestOnCallbackRoutesToOnAgreeCallback(t *testing.T) {
	fake := platform.NewFake()
	verifier := &fakeVerifier{}
	d := newDispatcher(fake, verifier, &fakeModerator{}, &fakeApprovals{})

	q := platform.CallbackQuery{ID: "cb1", FromUserID: 100}
	d.OnCallback(context.Background(), q)
	if verifier.callbackQuery == nil || verifier.callbackQuery.ID != "cb1" {
		t.Fatalf("expected OnAgreeCallback called with cb1, got %+v", verifier.callbackQuery)
	}
}
