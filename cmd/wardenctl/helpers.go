package main

import (
	"strings"
	"time"

	"github.com/bdobrica/wardbot/internal/wardbot/normalize"
	"github.com/bdobrica/wardbot/internal/wardbot/settei"
)

// normalizeForStore mirrors adminui's add-path: TOKEN for a single word,
// PHRASE when the entry contains a space. wardenctl always case-folds,
// since it has no running Config to read CASE_INSENSITIVE from.
func normalizeForStore(word string) string {
	if strings.Contains(word, " ") {
		return normalize.Text(word, true, normalize.Phrase)
	}
	return normalize.Word(word, true)
}

func timeNow() time.Time {
	return time.Now().UTC()
}

// settingsOrder lists every runtime-overridable key in the order settings
// show prints them (spec.md §6's "*" column).
func settingsOrder() []string {
	return []string{
		settei.KeyRemindAfterMin,
		settei.KeyExpireAfterMin,
		settei.KeyMaxReminders,
		settei.KeyMuteMinutes,
		settei.KeyAdminIDs,
		settei.KeyAIModerationEnabled,
	}
}
