package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/store"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "wterm",
		Short:         "Tabbed terminal sessions over websocket",
		Long:          "Multiplexes terminal tabs onto a session host, reconnecting dropped sessions and restoring tabs across restarts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.wingterm/config.yaml)")

	load := func() (*config.Config, error) {
		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return config.Load(path)
	}

	root.AddCommand(
		attachCmd(load),
		hostCmd(load),
		tabsCmd(load),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type loadFunc func() (*config.Config, error)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wterm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wterm %s\n", version)
		},
	}
}

// openStore builds the configured persistence backend. path is empty for
// the memory backend, which has nothing to watch.
func openStore(cfg *config.Config) (st store.Store, path string, closeFn func(), err error) {
	closeFn = func() {}
	if cfg.Store.Kind == config.StoreMemory {
		return store.NewMemory(), "", closeFn, nil
	}
	path, err = cfg.StorePath()
	if err != nil {
		return nil, "", nil, fmt.Errorf("store path: %w", err)
	}
	if cfg.Store.Path == "" {
		if err := config.EnsureDir(); err != nil {
			return nil, "", nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	switch cfg.Store.Kind {
	case config.StoreSQLite:
		db, err := store.OpenSQLite(path)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open store: %w", err)
		}
		return db, path, func() { db.Close() }, nil
	default:
		return store.NewFile(path), path, closeFn, nil
	}
}
