/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/catalog"
	"github.com/friendsincode/grimnir_player/internal/db"
	"github.com/friendsincode/grimnir_player/internal/resolver"
	"github.com/friendsincode/grimnir_player/internal/storage"
)

var resolveTimeout time.Duration

var resolveCmd = &cobra.Command{
	Use:   "resolve <id|slug|title|url>",
	Short: "Resolve a track reference to a playable item",
	Long: `Resolve a track reference the same way the player does and print the
resulting playable item as JSON. The lookup runs as an anonymous viewer.

Examples:
  grimnirplayer resolve 3f1c8a52-7d7e-4c1a-9b1e-6f0a5d3c2b10
  grimnirplayer resolve night-drive
  grimnirplayer resolve https://cdn.example.com/audio/intro.mp3
`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 10*time.Second, "Lookup timeout")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), resolveTimeout)
	defer cancel()

	database, err := db.Connect(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	urls, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	res := resolver.New(catalog.NewStore(database), urls, cfg.PlaceholderArtworkURL, logger, resolver.WithPolicy(access.Policy{}))
	item, err := res.ResolveString(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(item)
}
