package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "wardbot-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestApprovedMemberInsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertApprovedMember(ctx, 1, 100, now); err != nil {
		t.Fatalf("InsertApprovedMember: %v", err)
	}
	if err := s.InsertApprovedMember(ctx, 1, 100, now); err != nil {
		t.Fatalf("InsertApprovedMember (duplicate): %v", err)
	}

	ok, err := s.IsApproved(ctx, 1, 100)
	if err != nil {
		t.Fatalf("IsApproved: %v", err)
	}
	if !ok {
		t.Fatal("expected user to be approved")
	}

	ok, err = s.IsApproved(ctx, 1, 999)
	if err != nil {
		t.Fatalf("IsApproved: %v", err)
	}
	if ok {
		t.Fatal("expected unrelated user to not be approved")
	}
}

func TestSessionUpsertAndRejoinReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &store.VerificationSession{
		ID:        uuid.New(),
		GroupID:   1,
		UserID:    100,
		State:     store.StateJoinedLocked,
		MagicWord: "apricot",
		RemindAt:  now.Add(10 * time.Minute),
		ExpiresAt: now.Add(60 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.GetSessionByGroupUser(ctx, 1, 100)
	if err != nil {
		t.Fatalf("GetSessionByGroupUser: %v", err)
	}
	if got.State != store.StateJoinedLocked || got.MagicWord != "apricot" {
		t.Fatalf("unexpected session: %+v", got)
	}

	// Simulate progressing to WAITING_DM_CONFIRM then a rejoin reset.
	got.State = store.StateWaitingDMConfirm
	if err := s.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	reset := &store.VerificationSession{
		ID:        uuid.New(),
		GroupID:   1,
		UserID:    100,
		State:     store.StateJoinedLocked,
		MagicWord: "banana",
		RemindAt:  now.Add(10 * time.Minute),
		ExpiresAt: now.Add(60 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.UpsertSession(ctx, reset); err != nil {
		t.Fatalf("UpsertSession (rejoin reset): %v", err)
	}

	final, err := s.GetSessionByGroupUser(ctx, 1, 100)
	if err != nil {
		t.Fatalf("GetSessionByGroupUser: %v", err)
	}
	if final.State != store.StateJoinedLocked {
		t.Errorf("State = %q, want JOINED_LOCKED after rejoin reset", final.State)
	}
	if final.MagicWord != "banana" {
		t.Errorf("MagicWord = %q, want fresh word %q", final.MagicWord, "banana")
	}
	if final.ID != reset.ID {
		t.Errorf("ID = %v, want the rejoin's new id %v", final.ID, reset.ID)
	}
}

func TestListDueReminders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &store.VerificationSession{
		ID: uuid.New(), GroupID: 1, UserID: 100, State: store.StateJoinedLocked,
		MagicWord: "apricot", RemindAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	notDueYet := &store.VerificationSession{
		ID: uuid.New(), GroupID: 1, UserID: 101, State: store.StateJoinedLocked,
		MagicWord: "banana", RemindAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	confirmed := &store.VerificationSession{
		ID: uuid.New(), GroupID: 1, UserID: 102, State: store.StateConfirmedUnlocked,
		MagicWord: "cherry", RemindAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	expired := &store.VerificationSession{
		ID: uuid.New(), GroupID: 1, UserID: 103, State: store.StateJoinedLocked,
		MagicWord: "date", RemindAt: now.Add(-time.Minute), ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now, UpdatedAt: now,
	}
	for _, sess := range []*store.VerificationSession{due, notDueYet, confirmed, expired} {
		if err := s.UpsertSession(ctx, sess); err != nil {
			t.Fatalf("UpsertSession: %v", err)
		}
	}

	sessions, err := s.ListDueReminders(ctx, now, 2)
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(sessions) != 1 || sessions[0].UserID != 100 {
		t.Fatalf("ListDueReminders = %+v, want only user 100", sessions)
	}
}

func TestWordEnableDisableFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	w, err := s.InsertWord(ctx, "casino", "Casino", nil, now)
	if err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if w.MatchType != store.MatchToken {
		t.Errorf("MatchType = %q, want TOKEN for single-word entry", w.MatchType)
	}

	phrase, err := s.InsertWord(ctx, "free money", "Free Money", nil, now)
	if err != nil {
		t.Fatalf("InsertWord (phrase): %v", err)
	}
	if phrase.MatchType != store.MatchPhrase {
		t.Errorf("MatchType = %q, want PHRASE for multi-word entry", phrase.MatchType)
	}

	enabled, err := s.ListEnabledWords(ctx)
	if err != nil {
		t.Fatalf("ListEnabledWords: %v", err)
	}
	if len(enabled) != 2 {
		t.Fatalf("ListEnabledWords = %d entries, want 2", len(enabled))
	}

	if err := s.SetWordEnabled(ctx, w.ID, false); err != nil {
		t.Fatalf("SetWordEnabled: %v", err)
	}
	enabled, err = s.ListEnabledWords(ctx)
	if err != nil {
		t.Fatalf("ListEnabledWords: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != phrase.ID {
		t.Fatalf("ListEnabledWords after disable = %+v, want only phrase entry", enabled)
	}
}

func TestModerationEventsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.InsertEvent(ctx, &store.ModerationEvent{
		GroupID: 1, UserID: 100, MessageID: 555,
		Action: store.ActionMuted, ReasonType: store.ReasonKeyword,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero event id")
	}

	events, err := s.ListEventsForUser(ctx, 1, 100, 10)
	if err != nil {
		t.Fatalf("ListEventsForUser: %v", err)
	}
	if len(events) != 1 || events[0].Action != store.ActionMuted {
		t.Fatalf("ListEventsForUser = %+v", events)
	}
}
