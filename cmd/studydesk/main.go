package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
	"git.sr.ht/~jakintosh/studydesk/internal/config"
	"git.sr.ht/~jakintosh/studydesk/internal/domain"
	"git.sr.ht/~jakintosh/studydesk/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "studydesk",
	Short: "Track study subjects, their resources and a daily task list",
	Long: `studydesk keeps study subjects, the resources attached to them and a
flat task list in a document store, and serves a small web UI over them.

Settings come from an optional TOML file, then STUDYDESK_* environment
variables, then flags.`,
	SilenceUsage: true,
}

// Global flags.
var (
	configPath  string
	storeDriver string
	storePath   string
	storeDSN    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a TOML config file (env: STUDYDESK_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "",
		"Store driver: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&storePath, "db", "",
		"SQLite database path")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "dsn", "",
		"PostgreSQL connection string")
}

// loadConfig resolves file, then env, then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := config.Value(configPath, "STUDYDESK_CONFIG")
	cfg, err := config.Load(path, configPath != "")
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Driver = storeDriver
	}
	if flags.Changed("db") {
		cfg.Store.Path = storePath
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN = storeDSN
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Lookup("dev") != nil && flags.Changed("dev") {
		cfg.Dev, _ = flags.GetBool("dev")
	}
	if cfg.Dev {
		cfg.Store.Driver = config.DriverMemory
	}
	return cfg, cfg.Validate()
}

// openCatalog opens the configured store and wraps it in a Manager. The
// caller closes the returned store.
func openCatalog(cmd *cobra.Command) (*catalog.Manager, domain.DocumentStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return catalog.NewManager(s), s, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
