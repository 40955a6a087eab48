package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List the characters the catalog can supply",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := buildCatalog(cfg.Client, zap.NewNop())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.ConnectTimeout)
		defer cancel()
		slugs, err := cat.Available(ctx)
		if err != nil {
			return fmt.Errorf("listing characters: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, slug := range slugs {
			c, err := cat.Character(ctx, slug)
			if err != nil {
				return fmt.Errorf("loading %q: %w", slug, err)
			}
			fmt.Fprintf(out, "%-12s %-24s health=%d moves=%d\n", slug, c.Name, c.Health, len(c.Moves))
		}
		return nil
	},
}
