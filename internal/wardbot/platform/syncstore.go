package platform

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// dbSyncStore implements mautrix.SyncStore on top of wardbot's own Store,
// generalized from the teacher's matrix/syncstore.go (which used a
// dedicated matrix_sync_state table) onto the shared platform_sync_state
// key/value table. Persisting next_batch across restarts prevents the bot
// from replaying old room history and re-running already-handled
// verification/moderation events.
type dbSyncStore struct {
	db *store.Store
}

var _ mautrix.SyncStore = (*dbSyncStore)(nil)

func newDBSyncStore(db *store.Store) *dbSyncStore {
	return &dbSyncStore{db: db}
}

func (s *dbSyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.db.SavePlatformSyncState(ctx, "filter_id:"+userID.String(), []byte(filterID))
}

func (s *dbSyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	v, err := s.db.LoadPlatformSyncState(ctx, "filter_id:"+userID.String())
	return string(v), err
}

func (s *dbSyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.db.SavePlatformSyncState(ctx, "next_batch:"+userID.String(), []byte(nextBatchToken))
}

func (s *dbSyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	v, err := s.db.LoadPlatformSyncState(ctx, "next_batch:"+userID.String())
	return string(v), err
}
