package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/progression"
)

var (
	statusDone   = color.New(color.FgGreen).SprintFunc()
	statusOpen   = color.New(color.FgCyan).SprintFunc()
	statusLocked = color.New(color.FgHiBlack).SprintFunc()
	accent       = color.New(color.FgYellow, color.Bold).SprintFunc()
)

func newProgressCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show the current game state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, true); err != nil {
				return err
			}
			st := c.sess.Engine().State()
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			p := st.Profile
			fmt.Fprintf(out, "%s  %s  %d XP\n", accent(p.Username), p.Rank, p.XP)
			fmt.Fprintf(out, "current level: %d  completed: %v  score: %d\n", st.CurrentLevel, st.CompletedLevels, st.Score)
			for _, b := range p.Badges {
				fmt.Fprintf(out, "  %s %s (%s)\n", b.Icon, b.Name, b.EarnedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show completion statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, true); err != nil {
				return err
			}
			s := c.sess.Engine().Stats()
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"levels: %d/%d (%d%%)\nrank: %s\nxp: %d/%d\nbadges: %d\nstreak: %d\n",
				s.CompletedCount, s.TotalLevels, s.CompletionPercentage,
				s.CurrentRank, s.TotalXP, s.AvailableXP, s.BadgesCount, s.LoginStreak)
			return nil
		},
	}
}

type levelRow struct {
	catalog.Level
	progression.LevelProgress
}

func newLevelsCmd(c *cli) *cobra.Command {
	var difficulty, sortKey string
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List levels with their unlock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			levels := c.cat.Levels()
			if difficulty != "" && difficulty != "all" {
				d, ok := catalog.ParseDifficulty(difficulty)
				if !ok {
					return fmt.Errorf("unknown difficulty %q", difficulty)
				}
				levels = c.cat.Filter(d)
			}
			switch k := catalog.SortKey(sortKey); k {
			case catalog.SortByID, catalog.SortByDifficulty, catalog.SortByXP:
				catalog.Sort(levels, k)
			default:
				return fmt.Errorf("unknown sort %q", sortKey)
			}

			if err := c.open(cmd, true); err != nil {
				return err
			}
			eng := c.sess.Engine()
			rows := make([]levelRow, len(levels))
			for i, l := range levels {
				rows[i] = levelRow{Level: l, LevelProgress: eng.LevelProgress(l.ID)}
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tDIFFICULTY\tXP\tSTATUS")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.Name, r.Difficulty, r.XP, levelStatus(r.LevelProgress))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", "", "Easy, Medium, Hard, Expert or all")
	cmd.Flags().StringVarP(&sortKey, "sort", "s", string(catalog.SortByID), "id, difficulty or xp")
	return cmd
}

func levelStatus(p progression.LevelProgress) string {
	switch {
	case p.IsCompleted:
		return statusDone("completed")
	case p.CanPlay:
		return statusOpen("available")
	default:
		return statusLocked("locked")
	}
}

func newCompleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <level> [points]",
		Short: "Record a completed level",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("level: %w", err)
			}
			points := 0
			if len(args) == 2 {
				if points, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("points: %w", err)
				}
			}
			if err := c.open(cmd, true); err != nil {
				return err
			}
			res, err := c.sess.CompleteLevel(id, points)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			out := cmd.OutOrStdout()
			if !res.Applied {
				fmt.Fprintf(out, "level %d already completed\n", id)
				return nil
			}
			st := c.sess.Engine().State()
			fmt.Fprintf(out, "level %d complete: +%d XP (total %d, %s)\n", id, res.XPGained, st.Profile.XP, st.Profile.Rank)
			if res.Badge != nil {
				fmt.Fprintf(out, "badge earned: %s %s\n", res.Badge.Icon, accent(res.Badge.Name))
			}
			return nil
		},
	}
}

func newUnlockNextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock-next",
		Short: "Advance the current level pointer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, true); err != nil {
				return err
			}
			lvl, err := c.sess.UnlockNextLevel()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current level: %d\n", lvl)
			return nil
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start local progress over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			if err := c.sess.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "progress reset")
			return nil
		},
	}
}
