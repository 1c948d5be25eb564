// Package lexicon holds the in-memory, atomically refreshable index of
// enabled prohibited-lexicon entries (C4). It derives its two lookup
// structures from a SQL snapshot and republishes them as a single atomic
// pointer swap, so readers always observe either the old pair or the new
// pair, never a half-built index.
package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/wardbot/internal/wardbot/normalize"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// Entry is one enabled lexicon row, as held in the cache.
type Entry struct {
	ID        int64
	Word      string
	Original  string
	MatchType store.MatchType
}

// snapshot is the atomically-swapped pair the cache publishes.
type snapshot struct {
	tokens  map[string]*Entry
	phrases []*Entry
}

// Cache is C4: derives tokens/phrases from ProhibitedWord WHERE enabled and
// serves match(text) lookups against the latest published snapshot.
type Cache struct {
	db       *store.Store
	caseFold bool
	snap     atomic.Pointer[snapshot]
}

// New returns an empty Cache; call Refresh before serving traffic.
func New(db *store.Store, caseFold bool) *Cache {
	c := &Cache{db: db, caseFold: caseFold}
	c.snap.Store(&snapshot{tokens: map[string]*Entry{}})
	return c
}

// Refresh rebuilds the (tokens, phrases) pair from a consistent DB read and
// publishes it with a single atomic swap.
func (c *Cache) Refresh(ctx context.Context) error {
	words, err := c.db.ListEnabledWords(ctx)
	if err != nil {
		return fmt.Errorf("lexicon: refresh: %w", err)
	}

	next := &snapshot{tokens: make(map[string]*Entry, len(words))}
	for _, w := range words {
		entry := &Entry{ID: w.ID, Word: w.Word, Original: w.Original, MatchType: w.MatchType}
		if w.MatchType == store.MatchPhrase {
			next.phrases = append(next.phrases, entry)
		} else {
			next.tokens[w.Word] = entry
		}
	}

	c.snap.Store(next)
	return nil
}

// Match implements the §4.4 algorithm: tokenize(norm(text)), then a
// deduplicated O(|T|) map lookup for a token hit, falling back to an
// ordered substring scan of phrases. Returns (entry, true) on a hit.
func (c *Cache) Match(text string) (*Entry, bool) {
	snap := c.snap.Load()

	tokens := normalize.Tokenize(text, c.caseFold)
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		if entry, ok := snap.tokens[t]; ok {
			return entry, true
		}
	}

	if len(snap.phrases) == 0 {
		return nil, false
	}
	normText := normalize.Text(text, c.caseFold, normalize.Phrase)
	for _, entry := range snap.phrases {
		if strings.Contains(normText, entry.Word) {
			return entry, true
		}
	}
	return nil, false
}

// minWordLen is the minimum normalized length a seed entry must have to be
// accepted, filtering noise like single letters.
const minWordLen = 3

// seedFile is the on-disk seed format: {"words": ["casino", "free money"]}.
type seedFile struct {
	Words []string `json:"words"`
}

// SeedIfEmpty seeds the lexicon table from path when it is currently empty.
// path may hold a JSON {words:[...]} document or a newline-delimited list
// with "#"-prefixed comment lines. Entries whose normalized length is below
// minWordLen are dropped.
func (c *Cache) SeedIfEmpty(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	existing, err := c.db.ListAllWords(ctx)
	if err != nil {
		return fmt.Errorf("lexicon: seed: list existing: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("lexicon: seed: read %s: %w", path, err)
	}

	words, err := parseSeedWords(raw)
	if err != nil {
		return fmt.Errorf("lexicon: seed: parse %s: %w", path, err)
	}

	for _, w := range words {
		norm := normalize.Word(w, c.caseFold)
		if len(norm) < minWordLen {
			continue
		}
		if strings.Contains(strings.TrimSpace(w), " ") {
			norm = normalize.Text(w, c.caseFold, normalize.Phrase)
		}
		if _, err := c.db.InsertWord(ctx, norm, w, nil, time.Now().UTC()); err != nil {
			return fmt.Errorf("lexicon: seed: insert %q: %w", w, err)
		}
	}

	return c.Refresh(ctx)
}

func parseSeedWords(raw []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var sf seedFile
		if err := json.Unmarshal(raw, &sf); err != nil {
			return nil, fmt.Errorf("parse json seed: %w", err)
		}
		return sf.Words, nil
	}

	var words []string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, nil
}

// exportDoc is the YAML document shape for ExportYAML/ImportYAML.
type exportDoc struct {
	Words []exportWord `yaml:"words"`
}

type exportWord struct {
	Word     string `yaml:"word"`
	Original string `yaml:"original"`
	Enabled  bool   `yaml:"enabled"`
}

// ExportYAML renders every lexicon entry (enabled or not) as a single YAML
// document, for /admin lexicon export and wardenctl lexicon export.
func (c *Cache) ExportYAML(ctx context.Context) ([]byte, error) {
	words, err := c.db.ListAllWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("lexicon: export: %w", err)
	}
	doc := exportDoc{Words: make([]exportWord, 0, len(words))}
	for _, w := range words {
		doc.Words = append(doc.Words, exportWord{Word: w.Word, Original: w.Original, Enabled: w.Enabled})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("lexicon: export marshal: %w", err)
	}
	return out, nil
}

// ImportYAML bulk-inserts every word in data (as produced by ExportYAML),
// skipping words that already exist, then refreshes the cache.
func (c *Cache) ImportYAML(ctx context.Context, data []byte, createdBy *int64) (imported int, err error) {
	var doc exportDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("lexicon: import unmarshal: %w", err)
	}

	for _, w := range doc.Words {
		if _, err := c.db.FindWordByNorm(ctx, w.Word); err == nil {
			continue // already present
		} else if err != store.ErrNotFound {
			return imported, fmt.Errorf("lexicon: import lookup %q: %w", w.Word, err)
		}

		inserted, err := c.db.InsertWord(ctx, w.Word, w.Original, createdBy, time.Now().UTC())
		if err != nil {
			return imported, fmt.Errorf("lexicon: import insert %q: %w", w.Word, err)
		}
		if !w.Enabled {
			if err := c.db.SetWordEnabled(ctx, inserted.ID, false); err != nil {
				return imported, fmt.Errorf("lexicon: import disable %q: %w", w.Word, err)
			}
		}
		imported++
	}

	return imported, c.Refresh(ctx)
}
