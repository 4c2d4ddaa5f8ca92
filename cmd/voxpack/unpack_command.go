package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voxpack/voxpack/internal/plan"
	"github.com/voxpack/voxpack/internal/storage"
	"github.com/voxpack/voxpack/internal/unpack"
)

func newUnpackCommand(ctx *commandContext) *cobra.Command {
	var (
		datasetDir string
		outputDir  string
		speaker    string
		source     string
		batch      string
		mode       string
		strict     bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "unpack",
		Short: "Reconstruct a flat dataset from the partitioned layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = mode
			}
			payloadMode, err := storage.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}

			summary, err := unpack.Run(cmd.Context(), unpack.Options{
				DatasetDir:  datasetDir,
				OutputDir:   outputDir,
				Filter:      plan.Filter{Source: source, Speaker: speaker, Batch: batch},
				Mode:        payloadMode,
				Strict:      strict || cfg.Strict,
				DryRun:      dryRun,
				Concurrency: cfg.EffectiveConcurrency(),
				Columns:     cfg.Columns,
				Logger:      ctx.logger,
			})
			if err != nil {
				return err
			}

			verb := "unpacked"
			if summary.DryRun {
				verb = "would unpack"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows from %d batches (%d skipped)\n",
				verb, summary.RowsWritten, summary.Partitions, summary.RowsSkipped())
			for _, s := range summary.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped row %s (%s): %s\n", s.RowID, s.Key, s.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "Partitioned dataset root")
	cmd.Flags().StringVar(&outputDir, "output", "", "Flat output directory")
	cmd.Flags().StringVar(&speaker, "speaker", "", "Only include this speaker")
	cmd.Flags().StringVar(&source, "audio-source", "", "Only include this audio source")
	cmd.Flags().StringVar(&batch, "batch", "", "Only include this batch")
	cmd.Flags().StringVar(&mode, "mode", "", "Payload relocation mode: copy or hardlink")
	cmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first per-row payload failure")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and report without writing anything")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
