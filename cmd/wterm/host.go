package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/wingterm/internal/host"
	"github.com/ehrlich-b/wingterm/internal/logger"
)

func hostCmd(load loadFunc) *cobra.Command {
	var addrFlag string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run the session host (a PTY per session over websocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			closer, err := logger.Init(cfg.Logging.Level, cfg.Logging.File, os.Stderr)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer closer.Close()

			addr := cfg.Host.Addr
			if addrFlag != "" {
				addr = addrFlag
			}

			srv := host.NewServer(host.Options{
				Spawner:     &host.PTYSpawner{Shell: cfg.Host.Shell},
				InitTimeout: cfg.Host.InitTimeout.D(),
				OutputRate:  int(cfg.Host.OutputRate),
				MaxMessage:  int64(cfg.Host.MaxMessage),
				Logger:      logger.Log,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides host.addr)")
	return cmd
}
