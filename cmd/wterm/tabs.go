package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/store"
	"github.com/ehrlich-b/wingterm/internal/tabs"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

// parked never completes a dial, so offline edits leave every session in
// connecting and open no channels.
var parked = ws.DialerFunc(func(context.Context, *ws.Attempt) {})

// withRegistry opens the saved layout headless, runs fn against it, and
// writes the result back.
func withRegistry(load loadFunc, fn func(reg *tabs.Registry) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	if cfg.Store.Kind == config.StoreMemory {
		return errors.New("tabs: store.kind is memory, nothing is saved between runs")
	}
	closer, err := logger.Init(cfg.Logging.Level, cfg.Logging.File, nil)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()

	st, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	return editLayout(st, fn)
}

func editLayout(st store.Store, fn func(reg *tabs.Registry) error) error {
	reg := tabs.Open(tabs.Options{Store: st, Dialer: parked, Logger: logger.Log})
	defer reg.Close()
	return fn(reg)
}

// resolveTab accepts a 1-based position or a session id.
func resolveTab(reg *tabs.Registry, ref string) (string, error) {
	ids := reg.IDs()
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(ids) {
		return ids[n-1], nil
	}
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", tabs.ErrUnknownSession, ref)
}

func printTabs(w io.Writer, reg *tabs.Registry) {
	for i, t := range reg.Tabs() {
		mark := " "
		if t.Active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %d  %-20s  %s\n", mark, i+1, t.Title, t.ID)
	}
	state := "visible"
	if !reg.Visible() {
		state = "hidden"
	}
	fmt.Fprintf(w, "panel %s, height %s\n", state, reg.Height())
}

func tabsCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Inspect and edit the saved tab layout",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				printTabs(cmd.OutOrStdout(), reg)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new [title]",
		Short: "Add a tab and make it active",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			return withRegistry(load, func(reg *tabs.Registry) error {
				id := reg.CreateSession(title)
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "close <tab>",
		Short: "Close a tab by position or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				id, err := resolveTab(reg, args[0])
				if err != nil {
					return err
				}
				return reg.CloseSession(id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <tab> <title>",
		Short: "Rename a tab; a running attach picks the title up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				id, err := resolveTab(reg, args[0])
				if err != nil {
					return err
				}
				return reg.RenameSession(id, args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "switch <tab>",
		Short: "Make a tab the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				id, err := resolveTab(reg, args[0])
				if err != nil {
					return err
				}
				reg.SwitchTo(id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Mark the panel visible",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				reg.Show()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "hide",
		Short: "Mark the panel hidden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(load, func(reg *tabs.Registry) error {
				reg.Hide()
				return nil
			})
		},
	})

	return cmd
}
