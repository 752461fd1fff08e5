package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dise/partnerportal/internal/config"
	"github.com/dise/partnerportal/pkg/logging"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "portal",
		Short: "Partner portal for provisioning and unlocking signage devices",
		Long: `portal serves a single live page with the partner tools: the
signageOS ChromeOS provisioning script and the stand-alone device unlock
tool, plus the backend endpoint the unlock tool talks to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "config file path")

	root.AddCommand(
		newServeCmd(opts),
		newScriptCmd(),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []logging.LoggerOption{logging.WithLevel(level)}
	if cfg.JSON {
		opts = append(opts, logging.WithJSON())
	}
	return logging.NewSlogLogger(opts...), nil
}
