package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/hacking-zone/internal/client"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/session"
)

const requestTimeout = 30 * time.Second

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), requestTimeout)
}

// readSecret returns flagVal, or the next stdin line when the flag is empty.
func readSecret(cmd *cobra.Command, flagVal, prompt string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt+": ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newSignupCmd(c *cli) *cobra.Command {
	var in client.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an agent profile and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			pwd, err := readSecret(cmd, in.Password, "Password")
			if err != nil {
				return err
			}
			in.Password = pwd
			if !cmd.Flags().Changed("confirm") {
				in.ConfirmPassword = pwd
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			u, err := c.sess.Signup(ctx, in)
			if err != nil {
				return err
			}
			return c.printUser(cmd, "Agent profile created. Welcome to Hacking-Zone.", u)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.Username, "username", "u", "", "username")
	f.StringVarP(&in.Email, "email", "e", "", "email")
	f.StringVarP(&in.Password, "password", "p", "", "password (read from stdin when empty)")
	f.StringVar(&in.ConfirmPassword, "confirm", "", "password confirmation (defaults to --password)")
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var identifier, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in by username or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			pwd, err := readSecret(cmd, password, "Password")
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			u, err := c.sess.Login(ctx, identifier, pwd)
			if err != nil {
				return err
			}
			return c.printUser(cmd, "Access granted. Welcome back, agent.", u)
		},
	}
	cmd.Flags().StringVarP(&identifier, "username", "u", "", "username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, false); err != nil {
				return err
			}
			if err := c.sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newMeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, true); err != nil {
				return err
			}
			u, ok := c.sess.User()
			if !ok {
				return session.ErrNotAuthenticated
			}
			return c.printUser(cmd, "", u)
		},
	}
}

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local progress to the account service now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.open(cmd, true); err != nil {
				return err
			}
			if err := c.sess.LastSyncError(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := c.sess.Sync(ctx); err != nil {
				if errors.Is(err, session.ErrNotAuthenticated) {
					return fmt.Errorf("%w: run hz login first", err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "progress synced")
			return nil
		},
	}
}

func (c *cli) printUser(cmd *cobra.Command, headline string, u model.PublicUser) error {
	if c.jsonOut {
		return printJSON(cmd.OutOrStdout(), u)
	}
	out := cmd.OutOrStdout()
	if headline != "" {
		fmt.Fprintln(out, headline)
	}
	fmt.Fprintf(out, "%s <%s>\nrank: %s  xp: %d  level: %d  streak: %d\n",
		u.Username, u.Email, u.Rank, u.XP, u.Level, u.LoginStreak)
	return nil
}
