// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"

	"github.com/ManuGH/dashcam/internal/config"
	"github.com/ManuGH/dashcam/internal/daemon"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := log.WithComponent("daemon")
			logger.Info().Interface("config", config.Redacted(cfg)).Msg("configuration loaded")

			rt, err := daemon.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			runErr := daemon.NewApp(rt).Run(cmd.Context())
			return errors.Join(runErr, rt.Close())
		},
	}
}
