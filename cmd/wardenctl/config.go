package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig is wardenctl's optional batch-edit input (SPEC_FULL.md §6,
// "Static config file"): a TOML document naming the database to operate on
// plus lexicon/setting edits to apply in one pass, for scripted maintenance
// without touching the running daemon's environment.
type fileConfig struct {
	DatabaseURL string            `toml:"database_url"`
	Lexicon     lexiconFileConfig `toml:"lexicon"`
	Settings    map[string]string `toml:"settings"`
}

type lexiconFileConfig struct {
	Add    []string `toml:"add"`
	Remove []int64  `toml:"remove"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("wardenctl: read config %s: %w", path, err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("wardenctl: config %s is missing database_url", path)
	}
	return &cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
