// Package adminui implements the in-chat `/admin` command surface (spec.md
// §6, "Admin UI surface"): private-chat commands for lexicon CRUD and
// runtime-setting edits, gated by ADMIN_PANEL_ENABLED and the admin roster.
//
// The source's admin_panel.py drives this flow with a tree of inline-keyboard
// menus (list/detail/confirm views) over a module-level ADMIN_STATE dict
// keyed by chat id. platform.Client only exposes a single inline button per
// message, with no per-button callback routing beyond the agree flow (C6
// already owns the one callback this bot answers) — too narrow to carry a
// multi-button menu tree. This package keeps the source's other shape
// instead: plain `/admin <noun> <verb> [args]` commands, falling back to a
// one-shot prompt (stored in the same per-chat, last-write-wins pending map
// the source uses) when an argument is omitted.
package adminui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/common/clock"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
	"github.com/bdobrica/wardbot/internal/wardbot/lexicon"
	"github.com/bdobrica/wardbot/internal/wardbot/normalize"
	"github.com/bdobrica/wardbot/internal/wardbot/platform"
	"github.com/bdobrica/wardbot/internal/wardbot/settei"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

// pendingKind identifies which multi-step flow a chat is mid-way through.
type pendingKind int

const (
	pendingLexiconAdd pendingKind = iota
	pendingLexiconRemove
	pendingLexiconToggle
	pendingLexiconSearch
	pendingLexiconImport
	pendingSettingValue
)

// pendingState is the one outstanding prompt for a chat. Setting a new one
// silently replaces any prior prompt (last-write-wins, spec.md §5).
type pendingState struct {
	kind       pendingKind
	settingKey string
}

// Handler implements the /admin command surface. One Handler instance is
// shared by every admin chat; pending is guarded by mu because handlers may
// be invoked concurrently (spec.md §5).
type Handler struct {
	store    *store.Store
	lex      *lexicon.Cache
	settings settei.Store
	runtime  *config.Runtime
	platform platform.Client
	clock    clock.Clock
	caseFold bool

	mu      sync.Mutex
	pending map[int64]*pendingState
}

// New returns a Handler. settings is the same Store backing runtime's
// overrides; it is threaded separately because Runtime exposes typed
// readers but no writer.
func New(db *store.Store, lex *lexicon.Cache, settings settei.Store, rt *config.Runtime, plat platform.Client, clk clock.Clock) *Handler {
	return &Handler{
		store:    db,
		lex:      lex,
		settings: settings,
		runtime:  rt,
		platform: plat,
		clock:    clk,
		caseFold: rt.Base().CaseInsensitive,
		pending:  make(map[int64]*pendingState),
	}
}

// settingKeys maps the lowercase names this UI accepts to the settei key
// constants, restricted to the keys spec.md §6 marks overridable ("*").
var settingKeys = map[string]string{
	"remind_after_min":      settei.KeyRemindAfterMin,
	"expire_after_min":      settei.KeyExpireAfterMin,
	"max_reminders":         settei.KeyMaxReminders,
	"mute_minutes":          settei.KeyMuteMinutes,
	"admin_ids":             settei.KeyAdminIDs,
	"ai_moderation_enabled": settei.KeyAIModerationEnabled,
}

// HandleCommand inspects a private-chat message and, if it is part of the
// admin surface (an /admin or /cancel command, or a reply to an outstanding
// prompt), handles it and returns handled=true. Any other message returns
// handled=false so the caller can fall through to the verification flow.
func (h *Handler) HandleCommand(ctx context.Context, userID int64, text string) (handled bool, err error) {
	h.mu.Lock()
	pending, hasPending := h.pending[userID]
	h.mu.Unlock()

	looksLikeAdminCommand := strings.HasPrefix(text, "/admin") || text == "/cancel"
	if !looksLikeAdminCommand && !hasPending {
		return false, nil
	}

	if !h.runtime.Base().AdminPanelEnabled || !h.isAdmin(ctx, userID) {
		if looksLikeAdminCommand {
			h.reply(ctx, userID, "You are not authorized to use the admin panel.")
			return true, nil
		}
		return false, nil
	}

	if text == "/cancel" {
		h.clearPending(userID)
		h.reply(ctx, userID, "Cancelled.")
		return true, nil
	}

	if hasPending && !looksLikeAdminCommand {
		h.clearPending(userID)
		h.continuePending(ctx, userID, pending, text)
		return true, nil
	}

	h.clearPending(userID)
	h.dispatchCommand(ctx, userID, text)
	return true, nil
}

func (h *Handler) isAdmin(ctx context.Context, userID int64) bool {
	for _, id := range h.runtime.AdminIDs(ctx) {
		if id == userID {
			return true
		}
	}
	return false
}

func (h *Handler) setPending(userID int64, p *pendingState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[userID] = p
}

func (h *Handler) clearPending(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, userID)
}

const menuText = `/admin commands:
  /admin lexicon list
  /admin lexicon add [word or phrase]
  /admin lexicon remove [id]
  /admin lexicon toggle [id]
  /admin lexicon search [term]
  /admin lexicon export
  /admin lexicon import
  /admin settings show
  /admin settings set [key] [value]
/cancel aborts an in-progress prompt.`

func (h *Handler) dispatchCommand(ctx context.Context, userID int64, text string) {
	fields := strings.Fields(text)
	if len(fields) <= 1 || fields[1] == "help" {
		h.reply(ctx, userID, menuText)
		return
	}

	switch fields[1] {
	case "lexicon":
		h.handleLexicon(ctx, userID, fields[2:])
	case "settings":
		h.handleSettings(ctx, userID, fields[2:])
	default:
		h.reply(ctx, userID, "Unknown /admin command. Send /admin for help.")
	}
}

func (h *Handler) handleLexicon(ctx context.Context, userID int64, args []string) {
	if len(args) == 0 {
		h.reply(ctx, userID, "Usage: /admin lexicon list|add|remove|toggle|search|export|import")
		return
	}

	switch args[0] {
	case "list":
		h.lexiconList(ctx, userID)
	case "add":
		if len(args) >= 2 {
			h.lexiconAdd(ctx, userID, strings.Join(args[1:], " "))
			return
		}
		h.setPending(userID, &pendingState{kind: pendingLexiconAdd})
		h.reply(ctx, userID, "Send the word or phrase to add. /cancel to abort.")
	case "remove":
		if len(args) >= 2 {
			h.lexiconRemove(ctx, userID, args[1])
			return
		}
		h.setPending(userID, &pendingState{kind: pendingLexiconRemove})
		h.reply(ctx, userID, "Send the id to remove. /cancel to abort.")
	case "toggle":
		if len(args) >= 2 {
			h.lexiconToggle(ctx, userID, args[1])
			return
		}
		h.setPending(userID, &pendingState{kind: pendingLexiconToggle})
		h.reply(ctx, userID, "Send the id to toggle. /cancel to abort.")
	case "search":
		if len(args) >= 2 {
			h.lexiconSearch(ctx, userID, strings.Join(args[1:], " "))
			return
		}
		h.setPending(userID, &pendingState{kind: pendingLexiconSearch})
		h.reply(ctx, userID, "Send the search term. /cancel to abort.")
	case "export":
		h.lexiconExport(ctx, userID)
	case "import":
		h.setPending(userID, &pendingState{kind: pendingLexiconImport})
		h.reply(ctx, userID, "Send the YAML document to import. /cancel to abort.")
	default:
		h.reply(ctx, userID, "Usage: /admin lexicon list|add|remove|toggle|search|export|import")
	}
}

func (h *Handler) lexiconList(ctx context.Context, userID int64) {
	words, err := h.store.ListAllWords(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("adminui: list words failed")
		h.reply(ctx, userID, "Could not list the lexicon.")
		return
	}
	if len(words) == 0 {
		h.reply(ctx, userID, "The lexicon is empty.")
		return
	}
	var b strings.Builder
	for _, w := range words {
		mark := "off"
		if w.Enabled {
			mark = "on"
		}
		fmt.Fprintf(&b, "#%d [%s] %s (%s)\n", w.ID, mark, w.Original, w.MatchType)
	}
	h.reply(ctx, userID, b.String())
}

func (h *Handler) lexiconAdd(ctx context.Context, userID int64, word string) {
	word = strings.TrimSpace(word)
	if word == "" {
		h.reply(ctx, userID, "The word or phrase cannot be empty.")
		return
	}
	norm := normalize.Word(word, h.caseFold)
	if strings.Contains(word, " ") {
		norm = normalize.Text(word, h.caseFold, normalize.Phrase)
	}
	uid := userID
	if _, err := h.store.InsertWord(ctx, norm, word, &uid, h.clock.Now()); err != nil {
		log.Warn().Err(err).Str("word", word).Msg("adminui: insert word failed")
		h.reply(ctx, userID, "Could not add that entry.")
		return
	}
	if err := h.lex.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("adminui: lexicon refresh failed after add")
	}
	h.reply(ctx, userID, fmt.Sprintf("Added %q to the lexicon.", word))
}

func (h *Handler) lexiconRemove(ctx context.Context, userID int64, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.reply(ctx, userID, "That id is not a number.")
		return
	}
	if err := h.store.DeleteWord(ctx, id); err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("adminui: delete word failed")
		h.reply(ctx, userID, "Could not remove that entry.")
		return
	}
	if err := h.lex.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("adminui: lexicon refresh failed after remove")
	}
	h.reply(ctx, userID, fmt.Sprintf("Removed entry #%d.", id))
}

func (h *Handler) lexiconToggle(ctx context.Context, userID int64, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.reply(ctx, userID, "That id is not a number.")
		return
	}
	word, err := h.store.GetWord(ctx, id)
	if err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("adminui: get word failed")
		h.reply(ctx, userID, "No entry with that id.")
		return
	}
	if err := h.store.SetWordEnabled(ctx, id, !word.Enabled); err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("adminui: toggle word failed")
		h.reply(ctx, userID, "Could not toggle that entry.")
		return
	}
	if err := h.lex.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("adminui: lexicon refresh failed after toggle")
	}
	state := "enabled"
	if word.Enabled {
		state = "disabled"
	}
	h.reply(ctx, userID, fmt.Sprintf("Entry #%d is now %s.", id, state))
}

func (h *Handler) lexiconSearch(ctx context.Context, userID int64, term string) {
	words, err := h.store.ListAllWords(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("adminui: search failed")
		h.reply(ctx, userID, "Could not search the lexicon.")
		return
	}
	needle := strings.ToLower(term)
	var b strings.Builder
	matches := 0
	for _, w := range words {
		if !strings.Contains(strings.ToLower(w.Original), needle) && !strings.Contains(strings.ToLower(w.Word), needle) {
			continue
		}
		matches++
		mark := "off"
		if w.Enabled {
			mark = "on"
		}
		fmt.Fprintf(&b, "#%d [%s] %s\n", w.ID, mark, w.Original)
	}
	if matches == 0 {
		h.reply(ctx, userID, fmt.Sprintf("No entries match %q.", term))
		return
	}
	h.reply(ctx, userID, b.String())
}

func (h *Handler) lexiconExport(ctx context.Context, userID int64) {
	data, err := h.lex.ExportYAML(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("adminui: export failed")
		h.reply(ctx, userID, "Could not export the lexicon.")
		return
	}
	h.reply(ctx, userID, string(data))
}

func (h *Handler) lexiconImport(ctx context.Context, userID int64, data string) {
	uid := userID
	imported, err := h.lex.ImportYAML(ctx, []byte(data), &uid)
	if err != nil {
		log.Warn().Err(err).Msg("adminui: import failed")
		h.reply(ctx, userID, "Import failed: the document could not be parsed.")
		return
	}
	h.reply(ctx, userID, fmt.Sprintf("Imported %d new entries.", imported))
}

func (h *Handler) handleSettings(ctx context.Context, userID int64, args []string) {
	if len(args) == 0 || args[0] == "show" {
		h.settingsShow(ctx, userID)
		return
	}
	if args[0] != "set" {
		h.reply(ctx, userID, "Usage: /admin settings show | /admin settings set <key> <value>")
		return
	}
	if len(args) < 3 {
		h.setPending(userID, &pendingState{kind: pendingSettingValue})
		h.reply(ctx, userID, "Send \"<key> <value>\" to set. /cancel to abort.")
		return
	}
	h.settingsSet(ctx, userID, args[1], strings.Join(args[2:], " "))
}

func (h *Handler) settingsShow(ctx context.Context, userID int64) {
	var b strings.Builder
	fmt.Fprintf(&b, "remind_after_min = %d\n", h.runtime.RemindAfterMin(ctx))
	fmt.Fprintf(&b, "expire_after_min = %d\n", h.runtime.ExpireAfterMin(ctx))
	fmt.Fprintf(&b, "max_reminders = %d\n", h.runtime.MaxReminders(ctx))
	fmt.Fprintf(&b, "mute_minutes = %d\n", h.runtime.MuteMinutes(ctx))
	fmt.Fprintf(&b, "admin_ids = %v\n", h.runtime.AdminIDs(ctx))
	fmt.Fprintf(&b, "ai_moderation_enabled = %t\n", h.runtime.AIModerationEnabled(ctx))
	h.reply(ctx, userID, b.String())
}

func (h *Handler) settingsSet(ctx context.Context, userID int64, key, value string) {
	settingKey, ok := settingKeys[strings.ToLower(key)]
	if !ok {
		h.reply(ctx, userID, fmt.Sprintf("Unknown or non-overridable setting %q.", key))
		return
	}

	switch settingKey {
	case settei.KeyAdminIDs:
		if err := validateCSVInts(value); err != nil {
			h.reply(ctx, userID, fmt.Sprintf("Invalid value: %v", err))
			return
		}
	case settei.KeyAIModerationEnabled:
		if _, err := strconv.ParseBool(value); err != nil {
			h.reply(ctx, userID, "Invalid value: expected true or false.")
			return
		}
	default:
		n, err := strconv.Atoi(value)
		if err != nil {
			h.reply(ctx, userID, "Invalid value: expected an integer.")
			return
		}
		if err := settei.ValidateInt(settingKey, n); err != nil {
			h.reply(ctx, userID, fmt.Sprintf("Invalid value: %v", err))
			return
		}
	}

	if err := h.settings.Set(ctx, settingKey, value, userID); err != nil {
		log.Warn().Err(err).Str("key", settingKey).Msg("adminui: set setting failed")
		h.reply(ctx, userID, "Could not save that setting.")
		return
	}
	h.reply(ctx, userID, fmt.Sprintf("%s = %s", key, value))
}

func validateCSVInts(csv string) error {
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err != nil {
			return fmt.Errorf("%q is not an integer", part)
		}
	}
	return nil
}

func (h *Handler) continuePending(ctx context.Context, userID int64, p *pendingState, text string) {
	switch p.kind {
	case pendingLexiconAdd:
		h.lexiconAdd(ctx, userID, text)
	case pendingLexiconRemove:
		h.lexiconRemove(ctx, userID, strings.TrimSpace(text))
	case pendingLexiconToggle:
		h.lexiconToggle(ctx, userID, strings.TrimSpace(text))
	case pendingLexiconSearch:
		h.lexiconSearch(ctx, userID, text)
	case pendingLexiconImport:
		h.lexiconImport(ctx, userID, text)
	case pendingSettingValue:
		fields := strings.Fields(text)
		if len(fields) < 2 {
			h.reply(ctx, userID, "Expected \"<key> <value>\".")
			return
		}
		h.settingsSet(ctx, userID, fields[0], strings.Join(fields[1:], " "))
	}
}

func (h *Handler) reply(ctx context.Context, userID int64, text string) {
	if _, err := h.platform.SendMessage(ctx, userID, text); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("adminui: reply failed")
	}
}
