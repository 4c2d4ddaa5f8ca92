package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxpack/voxpack/internal/pack"
	"github.com/voxpack/voxpack/internal/storage"
)

func newPackCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceDir string
		outputDir string
		maxRows   int
		batch     string
		mode      string
		verify    bool
		strict    bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Convert a flat dataset into the partitioned layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if maxRows > 0 {
				cfg.MaxRows = maxRows
			}
			if mode != "" {
				cfg.Mode = mode
			}
			payloadMode, err := storage.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}

			summary, err := pack.Run(cmd.Context(), pack.Options{
				SourceDir:      sourceDir,
				OutputDir:      outputDir,
				MaxRows:        cfg.MaxRows,
				ExplicitBatch:  batch,
				Mode:           payloadMode,
				Verify:         verify || cfg.Verify,
				Strict:         strict || cfg.Strict,
				DryRun:         dryRun,
				Concurrency:    cfg.EffectiveConcurrency(),
				Columns:        cfg.Columns,
				DefaultSource:  cfg.Defaults.Source,
				DefaultSpeaker: cfg.Defaults.Speaker,
				Logger:         ctx.logger,
			})
			if err != nil {
				return err
			}

			verb := "packed"
			if summary.DryRun {
				verb = "would pack"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows into %d batches (%d already present, %d skipped)\n",
				verb, summary.RowsWritten, summary.BatchesWritten,
				summary.RowsAlreadyPresent, summary.RowsSkipped())
			for _, s := range summary.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped row %s (%s): %s\n", s.RowID, s.Key, s.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceDir, "source", "", "Flat source directory (metadata.csv + wavs/)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Partitioned dataset root")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Batch row-count ceiling (default 10000)")
	cmd.Flags().StringVar(&batch, "batch", "", "Explicit batch label instead of auto-increment")
	cmd.Flags().StringVar(&mode, "mode", "", "Payload relocation mode: copy or hardlink")
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify payload checksums after copying")
	cmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first per-row payload failure")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and report without writing anything")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
