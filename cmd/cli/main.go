// Command hz is a terminal client for Hacking-Zone. Progress is kept in a
// local cache and synced with the account service when signed in.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/client"
	"github.com/and161185/hacking-zone/internal/localstore"
	"github.com/and161185/hacking-zone/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	root := newRootCmd(afero.NewOsFs())
	if err := root.Execute(); err != nil {
		fail(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "hacking-zone")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hacking-zone")
}

// cli carries flags and the per-invocation session.
type cli struct {
	fs      afero.Fs
	server  string
	dir     string
	jsonOut bool
	verbose bool

	log  *zap.Logger
	cat  *catalog.Catalog
	api  *client.Client
	sess *session.Session
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	c := &cli{fs: fs, cat: catalog.Default()}

	root := &cobra.Command{
		Use:           "hz",
		Short:         "Hacking-Zone terminal client",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.server, "server", envOr("HZ_SERVER", "http://localhost:5000"), "account service base URL")
	pf.StringVar(&c.dir, "dir", cfgDir(), "local state directory")
	pf.BoolVar(&c.jsonOut, "json", false, "print JSON")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newSignupCmd(c), newLoginCmd(c), newLogoutCmd(c), newMeCmd(c),
		newProgressCmd(c), newStatsCmd(c), newLevelsCmd(c),
		newCompleteCmd(c), newUnlockNextCmd(c), newResetCmd(c), newSyncCmd(c),
		newLeaderboardCmd(c), newHealthCmd(c),
	)
	// post-run hooks are skipped on error; the pending push must still flush
	for _, sub := range root.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			defer c.close()
			return run(cmd, args)
		}
	}
	return root
}

// open prepares the session for cmd. With restore set a cached sign-in is
// refreshed from the server; an unreachable server leaves the cache in use.
func (c *cli) open(cmd *cobra.Command, restore bool) error {
	lvl := zapcore.WarnLevel
	if c.verbose {
		lvl = zapcore.DebugLevel
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	log, err := zc.Build()
	if err != nil {
		return err
	}
	c.log = log

	store, err := localstore.New(c.fs, c.dir)
	if err != nil {
		return err
	}
	c.api = client.New(c.server)
	c.sess = session.New(c.api, store, c.cat, log)
	if !restore {
		return nil
	}
	if err := c.sess.Start(cmd.Context()); err != nil {
		if !isOffline(err) {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "offline: using cached progress")
	}
	return nil
}

func (c *cli) close() {
	if c.sess != nil {
		c.sess.Close()
		if err := c.sess.LastSyncError(); err != nil {
			c.log.Warn("progress not synced", zap.Error(err))
		}
		c.sess = nil
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
}

func isOffline(err error) bool {
	var apiErr *client.APIError
	return !errors.As(err, &apiErr) || apiErr.Status >= 500
}

func fail(w io.Writer, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "error: %s (%s)\n", apiErr.Message, apiErr.Code)
		return
	}
	fmt.Fprintln(w, "error:", err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
