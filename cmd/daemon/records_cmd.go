// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/ManuGH/dashcam/internal/daemon"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/store"
	"github.com/ManuGH/dashcam/internal/library"
	"github.com/ManuGH/dashcam/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"recordings"},
		Short:   "Manage persisted recordings",
	}
	cmd.AddCommand(
		newRecordsListCmd(opts),
		newRecordsRenameCmd(opts),
		newRecordsSubmitCmd(opts),
		newRecordsDeleteCmd(opts),
		newRecordsPruneCmd(opts),
		newRecordsVerifyCmd(opts),
	)
	return cmd
}

// withLibrary opens the store and runs fn against a library service.
func withLibrary(ctx context.Context, opts *rootOptions, upload bool, fn func(*library.Service) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	st, err := daemon.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	var up library.Uploader
	if upload {
		if up, err = daemon.NewUploader(ctx, cfg.Upload); err != nil {
			_ = st.Close()
			return err
		}
	}
	runErr := fn(library.NewService(st, cfg.RecordingsDir, up, nil))
	return errors.Join(runErr, st.Close())
}

func newRecordsListCmd(opts *rootOptions) *cobra.Command {
	var (
		page, size int
		submitted  bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLibrary(cmd.Context(), opts, false, func(lib *library.Service) error {
				recs, err := lib.List(cmd.Context(), page, size, submitted)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(recs)
				}
				return printRecords(cmd.OutOrStdout(), recs)
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "zero-based page")
	cmd.Flags().IntVar(&size, "size", 50, "page size")
	cmd.Flags().BoolVar(&submitted, "submitted", false, "only submitted recordings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRecordsRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a recording's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			return withLibrary(cmd.Context(), opts, false, func(lib *library.Service) error {
				return lib.Rename(cmd.Context(), ids[0], args[1])
			})
		},
	}
}

func newRecordsSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>...",
		Short: "Upload recordings and flag them as submitted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withLibrary(cmd.Context(), opts, true, func(lib *library.Service) error {
				if err := lib.Submit(cmd.Context(), ids); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "submitted %d recording(s)\n", len(ids))
				return err
			})
		},
	}
}

func newRecordsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete recordings and their files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withLibrary(cmd.Context(), opts, false, func(lib *library.Service) error {
				if err := lib.Delete(cmd.Context(), ids); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %d recording(s)\n", len(ids))
				return err
			})
		},
	}
}

func newRecordsPruneCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune-missing",
		Short: "Delete records whose files no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLibrary(cmd.Context(), opts, false, func(lib *library.Service) error {
				out := cmd.OutOrStdout()
				if dryRun {
					missing, err := lib.Missing(cmd.Context())
					if err != nil {
						return err
					}
					return printRecords(out, missing)
				}
				ids, err := lib.PruneMissing(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "pruned %d record(s)\n", len(ids))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list records with missing files")
	return cmd
}

// newRecordsVerifyCmd opens the database without the startup check so a
// damaged file can still be inspected.
func newRecordsVerifyCmd(opts *rootOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the record database for corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := store.NewSqliteStore(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			out := cmd.OutOrStdout()
			err = st.Verify(cmd.Context(), full)
			var corrupt *sqlite.CorruptionError
			if errors.As(err, &corrupt) {
				for _, p := range corrupt.Problems {
					_, _ = fmt.Fprintln(out, p)
				}
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s: ok\n", cfg.DatabasePath)
			return err
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "run integrity_check instead of quick_check")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid recording id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printRecords(w io.Writer, recs []model.VideoRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tFILE\tDURATION\tSUBMITTED\tADDRESS")
	for _, r := range recs {
		addr := "-"
		if r.Address != nil {
			addr = *r.Address
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%ds\t%t\t%s\n", r.ID, r.Title, r.FileName, r.DurationSeconds, r.Submitted, addr)
	}
	return tw.Flush()
}
