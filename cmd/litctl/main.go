// Command litctl manages a shared literature collection from the terminal,
// against either the GitHub repository or a running literature server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"literature-manager/internal/config"
	"literature-manager/internal/logging"
	"literature-manager/internal/syncer"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// cli carries the global flags and the state PersistentPreRunE builds from them.
type cli struct {
	configPath string
	target     string
	serverURL  string
	human      bool

	cfg    *config.Config
	remote syncer.Syncer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "litctl",
		Short: "Manage a shared PDF literature collection",
		Long: `litctl reads and edits a literature collection stored either in a GitHub
repository (papers.json plus pdfs/ and thumbnails/) or behind a running
literature server.

All commands print JSON unless --human is given.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.Version = Version

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "TOML config file (default $CONFIG_FILE or configs/config.toml)")
	flags.StringVar(&c.target, "target", "", "storage backend: github or server")
	flags.StringVar(&c.serverURL, "server", "", "literature server base URL")
	flags.BoolVar(&c.human, "human", false, "human-readable output instead of JSON")

	root.AddCommand(
		c.statusCmd(),
		c.pingCmd(),
		c.pullCmd(),
		c.pushCmd(),
		c.uploadCmd(),
		c.searchCmd(),
		c.updateCmd(),
		c.deleteCmd(),
		c.cleanupCmd(),
		c.initRepoCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = "configs/config.toml"
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if c.target != "" {
		cfg.Sync.Target = c.target
	}
	if c.serverURL != "" {
		cfg.Sync.ServerURL = c.serverURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	cfg.Log.File = ""
	logging.Setup(cfg.Log)

	remote, err := syncer.New(cfg)
	if err != nil {
		return err
	}
	c.cfg, c.remote = cfg, remote
	return nil
}

// github returns the GitHub backend for commands that only make sense there.
func (c *cli) github() (*syncer.GitHubSyncer, error) {
	gh, ok := c.remote.(*syncer.GitHubSyncer)
	if !ok {
		return nil, fmt.Errorf("this command needs --target github (current target %q)", c.remote.Name())
	}
	if !gh.IsConfigured() {
		return nil, syncer.ErrNotConfigured
	}
	return gh, nil
}
