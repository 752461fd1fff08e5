package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dise/partnerportal/internal/server"
	"github.com/dise/partnerportal/pkg/logging"
	"github.com/dise/partnerportal/pkg/shutdown"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Address = fmt.Sprintf(":%d", port)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			logging.SetDefault(log)

			srv, err := server.New(cfg, server.Options{Version: version, Logger: log})
			if err != nil {
				return err
			}
			if cfg.SignageOS.Enabled {
				log.Info("unlock backend enabled",
					logging.String("signageos", cfg.SignageOS.BaseURL),
					logging.String("audit_log", cfg.Audit.Path),
				)
			}

			sh := shutdown.NewHandler(shutdown.Config{Logger: log})
			sh.Register("http", shutdown.PriorityHTTP, srv.Shutdown)
			sh.Register("live-sessions", shutdown.PriorityLive, srv.ShutdownSessions)
			sh.Register("audit-log", shutdown.PriorityAudit, srv.Close)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.ListenAndServe(ctx) })
			g.Go(func() error { return sh.Wait(ctx) })
			return g.Wait()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.address)")
	return cmd
}
