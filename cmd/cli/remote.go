package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/and161185/hacking-zone/internal/client"
)

func newLeaderboardCmd(c *cli) *cobra.Command {
	var q client.LeaderboardQuery
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			entries, err := c.api.Leaderboard(ctx, q)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "#\tAGENT\tRANK\tXP\tLEVELS\tBADGES\tSTREAK")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
					e.Position, e.Username, e.Rank, e.XP, e.LevelsCompleted, e.Badges, e.Streak)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&q.Sort, "sort", "s", "", "xp, levels, badges or streak")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "max entries")
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the account service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			h, err := c.api.Health(ctx)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d agents)\n", h.Status, h.Message, h.UsersCount)
			return nil
		},
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
