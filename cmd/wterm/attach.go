package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/console"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/sim"
	"github.com/ehrlich-b/wingterm/internal/store"
	"github.com/ehrlich-b/wingterm/internal/tabs"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

func attachCmd(load loadFunc) *cobra.Command {
	var simulated bool
	var hostURL string

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Open the tabbed terminal in this TTY",
		Long:  "Restores saved tabs and connects the active one to the session host. Ctrl-] is the command prefix (c new, x close, n/p next/prev, 1-9 select, h hide, d detach).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if simulated {
				cfg.Simulated = true
			}
			if hostURL != "" {
				cfg.HostURL = hostURL
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			// The console owns stdout, so logs only go to the file.
			logFile := cfg.Logging.File
			if logFile == "" {
				if err := config.EnsureDir(); err == nil {
					logFile, _ = config.InDir("wterm.log")
				}
			}
			closer, err := logger.Init(cfg.Logging.Level, logFile, nil)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer closer.Close()

			st, path, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			con := console.New(os.Stdin, os.Stdout, logger.Log)
			reg := tabs.Open(tabs.Options{
				Store:      st,
				Dialer:     newDialer(cfg),
				Conn:       connOptions(cfg),
				NewDisplay: con.NewDisplay,
				Logger:     logger.Log,
			})
			defer reg.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if path != "" {
				go func() {
					err := store.Watch(ctx, path, func() {
						rec, err := st.Load()
						if err != nil || rec == nil {
							return
						}
						if reg.SyncTitles(rec) {
							logger.Debug("titles synced from store")
						}
					})
					if err != nil {
						logger.Warn("store watch stopped", "err", err)
					}
				}()
			}

			logger.Info("attach", "host", cfg.HostURL, "simulated", cfg.Simulated, "tabs", reg.Len())
			return con.Run(ctx, reg)
		},
	}
	cmd.Flags().BoolVar(&simulated, "simulated", false, "use the built-in simulated terminal instead of a host")
	cmd.Flags().StringVar(&hostURL, "host", "", "session host URL (overrides host_url)")
	return cmd
}

func newDialer(cfg *config.Config) ws.Dialer {
	if cfg.Simulated {
		return &sim.Dialer{}
	}
	return &ws.WebSocketDialer{
		URL:       cfg.HostURL,
		ReadLimit: int64(cfg.Host.MaxMessage),
		Logger:    logger.Log,
	}
}

func connOptions(cfg *config.Config) ws.Options {
	ping := cfg.PingInterval.D()
	if ping == 0 {
		ping = -1
	}
	return ws.Options{
		BaseDelay:    cfg.Reconnect.Base.D(),
		MaxDelay:     cfg.Reconnect.Max.D(),
		PingInterval: ping,
		Logger:       logger.Log,
	}
}
