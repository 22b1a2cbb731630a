package commands

import (
	"fmt"
	"log/slog"
	"time"

	"notion-helper/lib/igdb"
	"notion-helper/lib/tokencache"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchGameCmd.Flags().IntVar(&searchLimit, "limit", 10, "How many candidates to show.")
	rootCmd.AddCommand(searchGameCmd)
}

var searchGameCmd = &cobra.Command{
	Use:   "search-game <name>",
	Short: "Searches igdb for a game and ranks the results by name similarity.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cachePath := state.cfg.IGDB.TokenCache
		if cachePath == "" {
			cachePath = "notion-helper-tokens.db"
		}
		tokens, err := tokencache.OpenSQLite(ctx, cachePath)
		if err != nil {
			return fmt.Errorf("open token cache: %w", err)
		}
		defer tokens.Close()

		purged, err := tokens.PurgeExpired(ctx, time.Now())
		if err != nil {
			slog.Warn("failed to purge expired tokens", "err", err)
		} else if purged > 0 {
			slog.Debug("purged expired tokens", "count", purged)
		}

		client, err := igdb.NewClient(igdb.Options{
			ClientID:     state.cfg.IGDB.ClientID,
			ClientSecret: state.cfg.IGDB.ClientSecret,
			Tokens:       tokens,
		})
		if err != nil {
			return err
		}

		ranked, err := client.Rank(ctx, args[0])
		if err != nil {
			return err
		}
		if len(ranked) == 0 {
			return igdb.ErrNoMatch
		}
		if searchLimit > 0 && len(ranked) > searchLimit {
			ranked = ranked[:searchLimit]
		}

		t := newTable()
		t.AppendHeader(table.Row{"#", "Score", "Name", "Matched on", "IGDB ID"})
		for i, r := range ranked {
			t.AppendRow(table.Row{
				i + 1,
				fmt.Sprintf("%.3f", r.Score),
				r.Candidate.Name,
				r.MatchedOn,
				r.Candidate.Key,
			})
		}
		t.Render()
		return nil
	},
}
