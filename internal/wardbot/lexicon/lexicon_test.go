package lexicon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/wardbot/internal/wardbot/lexicon"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "wardbot-test-*.db")
	if err != nil {
		t.Fatalf("create temp db: %v", err)
	}
	f.Close()
	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMatchTokenAndPhrase(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if _, err := db.InsertWord(ctx, "casino", "Casino", nil, fixedNow()); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if _, err := db.InsertWord(ctx, "free money", "Free Money", nil, fixedNow()); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}

	c := lexicon.New(db, true)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	entry, ok := c.Match("Come to CASINO!")
	if !ok || entry.Word != "casino" {
		t.Fatalf("Match(casino text) = %+v, %v; want hit on casino", entry, ok)
	}

	entry, ok = c.Match("this is free money for you")
	if !ok || entry.Word != "free money" {
		t.Fatalf("Match(phrase text) = %+v, %v; want hit on free money", entry, ok)
	}

	if _, ok := c.Match("nothing prohibited here"); ok {
		t.Fatal("expected no match for clean text")
	}
}

func TestDisabledEntryNeverMatches(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	w, err := db.InsertWord(ctx, "casino", "Casino", nil, fixedNow())
	if err != nil {
		t.Fatalf("InsertWord: %v", err)
	}
	if err := db.SetWordEnabled(ctx, w.ID, false); err != nil {
		t.Fatalf("SetWordEnabled: %v", err)
	}

	c := lexicon.New(db, true)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, ok := c.Match("visit the CASINO today"); ok {
		t.Fatal("disabled entry should never be returned (P3)")
	}
}

func TestSeedIfEmptyFromJSON(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(path, []byte(`{"words": ["casino", "hi", "free money"]}`), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	c := lexicon.New(db, true)
	if err := c.SeedIfEmpty(ctx, path); err != nil {
		t.Fatalf("SeedIfEmpty: %v", err)
	}

	words, err := db.ListAllWords(ctx)
	if err != nil {
		t.Fatalf("ListAllWords: %v", err)
	}
	// "hi" has normalized length 2 < minWordLen and should be dropped.
	if len(words) != 2 {
		t.Fatalf("ListAllWords = %d entries, want 2 (short word dropped)", len(words))
	}
}

func TestExportImportYAMLRoundTrip(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)
	ctx := context.Background()

	if _, err := src.InsertWord(ctx, "casino", "Casino", nil, fixedNow()); err != nil {
		t.Fatalf("InsertWord: %v", err)
	}

	srcCache := lexicon.New(src, true)
	data, err := srcCache.ExportYAML(ctx)
	if err != nil {
		t.Fatalf("ExportYAML: %v", err)
	}

	dstCache := lexicon.New(dst, true)
	n, err := dstCache.ImportYAML(ctx, data, nil)
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if n != 1 {
		t.Fatalf("ImportYAML imported %d, want 1", n)
	}

	if _, ok := dstCache.Match("CASINO"); !ok {
		t.Fatal("expected imported word to be matchable after import")
	}
}
