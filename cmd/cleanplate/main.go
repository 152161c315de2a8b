// Command cleanplate looks up NYC restaurant inspection grades from the
// terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cleanplate/internal/platform/config"
	"cleanplate/internal/platform/logger"
	"cleanplate/internal/session"
)

// cli carries flags and the wired app between cobra hooks.
type cli struct {
	configPath string
	envFile    string

	out    io.Writer
	errOut io.Writer
	// secrets replaces the secure store; tests use it to keep credentials.
	secrets session.SecureStore

	app *app
}

func main() {
	c := &cli{out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errorText(err))
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "cleanplate",
		Short:         "Look up NYC restaurant inspection grades",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.teardown()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newSearchCmd(c),
		newShowCmd(c),
		newRecentCmd(c),
		newReportCmd(c),
		newFavoritesCmd(c),
		newSignInCmd(c),
		newSignOutCmd(c),
		newDeleteAccountCmd(c),
		newRecentSearchesCmd(c),
		newWatchCmd(c),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, c.errOut)

	c.app, err = newApp(ctx, cfg, log, c.secrets)
	return err
}

func (c *cli) teardown() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
