// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command dashcamd runs the dashcam capture daemon and manages its
// recording library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/dashcam/internal/config"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/version"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/dashcam/config.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dashcamd",
		Short:         "Dashcam capture daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (default "+defaultConfigPath+" when present)")

	root.AddCommand(
		newRunCmd(opts),
		newRecordsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load resolves the config file and configures logging from it.
func (o *rootOptions) load() (config.AppConfig, error) {
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return cfg, err
	}
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  os.Stderr,
		Service: "dashcamd",
		Version: version.Version,
	})
	return cfg, nil
}

func main() {
	log.Configure(log.Config{Level: "info", Output: os.Stderr, Service: "dashcamd", Version: version.Version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
