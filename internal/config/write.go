// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	xglog "github.com/ManuGH/dashcam/internal/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Write persists cfg as a single YAML document with atomic + durable semantics.
// An existing file is only replaced when overwrite is set.
func Write(ctx context.Context, path string, cfg AppConfig, overwrite bool) error {
	logger := xglog.FromContext(ctx)

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat config: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending config file")
		}
	}()

	enc := yaml.NewEncoder(pendingFile)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush config: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	logger.Info().Str(xglog.FieldPath, path).Msg("config written")
	return nil
}

// Redacted returns a copy of cfg safe for printing.
func Redacted(cfg AppConfig) AppConfig {
	cfg.Geocode.APIKey = maskSecret(cfg.Geocode.APIKey)
	cfg.Upload.AccessKey = maskSecret(cfg.Upload.AccessKey)
	cfg.Upload.SecretKey = maskSecret(cfg.Upload.SecretKey)
	return cfg
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
