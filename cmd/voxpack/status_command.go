package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/voxpack/voxpack/internal/catalog"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/internal/plan"
	"github.com/voxpack/voxpack/internal/storage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		datasetDir   string
		rebuildIndex bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the partitions of a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			paths := layout.Paths{Root: datasetDir}
			keys, err := plan.ListPartitions(paths, plan.Filter{})
			if err != nil {
				return err
			}

			cat, err := catalog.Open(paths.IndexPath())
			if err != nil {
				return err
			}
			defer cat.Close()
			if rebuildIndex {
				if err := cat.Clear(cmd.Context()); err != nil {
					return err
				}
			}
			for _, key := range keys {
				if err := cat.SyncBatch(cmd.Context(), key, paths.TablePath(key), cfg.Columns); err != nil {
					return err
				}
			}

			records, err := cat.Batches(cmd.Context())
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"SOURCE", "SPEAKER", "BATCH", "ROWS"})
			total := 0
			for _, r := range records {
				tw.AppendRow(table.Row{r.Key.Source, r.Key.Speaker, r.Key.Batch, strconv.Itoa(r.RowCount)})
				total += r.RowCount
			}
			tw.AppendFooter(table.Row{"", "", "TOTAL", strconv.Itoa(total)})
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
			})
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

			stale, err := storage.ListStale(paths.StateDir())
			if err != nil {
				return err
			}
			for _, dir := range stale {
				fmt.Fprintf(cmd.OutOrStdout(), "leftover staging directory from an interrupted run: %s\n", dir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "Partitioned dataset root")
	cmd.Flags().BoolVar(&rebuildIndex, "rebuild-index", false, "Rebuild the state index from the batch tables")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}
