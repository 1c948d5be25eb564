// Command wardenctl is the operator's offline counterpart to the in-chat
// /admin surface: it edits the lexicon and runtime settings directly against
// the daemon's SQLite file via the same store/lexicon/settei packages the
// daemon itself uses, with no HTTP hop and no duplicate business logic
// (SPEC_FULL.md §9).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/wardbot/common/version"
	"github.com/bdobrica/wardbot/internal/wardbot/lexicon"
	"github.com/bdobrica/wardbot/internal/wardbot/settei"
	"github.com/bdobrica/wardbot/internal/wardbot/store"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "wardenctl",
		Short: "Offline lexicon/settings maintenance for a wardbot database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "wardbot.db", "path to the wardbot SQLite database")

	root.AddCommand(
		versionCmd(),
		lexiconCmd(),
		settingsCmd(),
		applyCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Info())
		},
	}
}

func openStore() (*store.Store, error) {
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("wardenctl: open %s: %w", dbPath, err)
	}
	return db, nil
}

// ── lexicon ──

func lexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Manage the prohibited-word lexicon",
	}
	cmd.AddCommand(lexiconExportCmd(), lexiconImportCmd(), lexiconAddCmd(), lexiconRemoveCmd())
	return cmd
}

func lexiconExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every lexicon entry (enabled or not) as a YAML document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			lex := lexicon.New(db, true)
			data, err := lex.ExportYAML(context.Background())
			if err != nil {
				return fmt.Errorf("wardenctl: export: %w", err)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func lexiconImportCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML lexicon document, adding any new entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, in)
			if err != nil {
				return err
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			lex := lexicon.New(db, true)
			imported, err := lex.ImportYAML(context.Background(), data, nil)
			if err != nil {
				return fmt.Errorf("wardenctl: import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d new entries\n", imported)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "input", "i", "", "read from this file instead of stdin")
	return cmd
}

func lexiconAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <word or phrase>",
		Short: "Add a single entry to the lexicon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			word := strings.Join(args, " ")
			norm := normalizeForStore(word)
			if _, err := db.InsertWord(context.Background(), norm, word, nil, timeNow()); err != nil {
				return fmt.Errorf("wardenctl: add %q: %w", word, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %q\n", word)
			return nil
		},
	}
}

func lexiconRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a lexicon entry by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("wardenctl: %q is not a valid id", args[0])
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteWord(context.Background(), id); err != nil {
				return fmt.Errorf("wardenctl: remove #%d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed #%d\n", id)
			return nil
		},
	}
}

// ── settings ──

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View or edit runtime-overridable settings",
	}
	cmd.AddCommand(settingsShowCmd(), settingsSetCmd())
	return cmd
}

func settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List every currently overridden setting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			values, err := settei.New(db).List(context.Background())
			if err != nil {
				return fmt.Errorf("wardenctl: list settings: %w", err)
			}
			if len(values) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no overrides set; every setting is at its process-start default")
				return nil
			}
			for _, key := range settingsOrder() {
				if v, ok := values[key]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, v)
				}
			}
			return nil
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a runtime-overridable setting (validated before it is persisted)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := strings.ToUpper(args[0]), args[1]
			if err := validateSetting(key, value); err != nil {
				return fmt.Errorf("wardenctl: %w", err)
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := settei.New(db).Set(context.Background(), key, value, 0); err != nil {
				return fmt.Errorf("wardenctl: set %s: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

// validateSetting rejects a bad value before it ever reaches settei.Set,
// mirroring adminui's "reply with an error, do not persist" rule
// (SPEC_FULL.md §7).
func validateSetting(key, value string) error {
	switch key {
	case settei.KeyAdminIDs:
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, err := strconv.ParseInt(part, 10, 64); err != nil {
				return fmt.Errorf("%q is not an integer", part)
			}
		}
		return nil
	case settei.KeyAIModerationEnabled:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s expects true or false", key)
		}
		return nil
	case settei.KeyRemindAfterMin, settei.KeyExpireAfterMin, settei.KeyMaxReminders, settei.KeyMuteMinutes:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer", key)
		}
		return settei.ValidateInt(key, n)
	default:
		return fmt.Errorf("%q is not a known runtime-overridable setting", key)
	}
}

// ── apply (batch, from a TOML config file) ──

func applyCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch of lexicon/setting edits from a TOML config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				return fmt.Errorf("wardenctl: --config is required")
			}
			if !fileExists(configPath) {
				return fmt.Errorf("wardenctl: config %s does not exist", configPath)
			}
			cfg, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}

			db, err := store.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("wardenctl: open %s: %w", cfg.DatabaseURL, err)
			}
			defer db.Close()

			ctx := context.Background()
			for _, word := range cfg.Lexicon.Add {
				norm := normalizeForStore(word)
				if _, err := db.InsertWord(ctx, norm, word, nil, timeNow()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "wardenctl: add %q: %v\n", word, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %q\n", word)
			}
			for _, id := range cfg.Lexicon.Remove {
				if err := db.DeleteWord(ctx, id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "wardenctl: remove #%d: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed #%d\n", id)
			}

			settings := settei.New(db)
			for key, value := range cfg.Settings {
				key = strings.ToUpper(key)
				if err := validateSetting(key, value); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "wardenctl: %s: %v\n", key, err)
					continue
				}
				if err := settings.Set(ctx, key, value, 0); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "wardenctl: set %s: %v\n", key, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file (see lexicon.add, lexicon.remove, settings)")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(cmd.InOrStdin())
}
