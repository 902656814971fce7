package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/ingest"
)

var (
	importFile   string
	importSource string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		res, err := ingest.ReadLeads(importFile, importSource)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.store.BulkUpsertLeads(ctx, res.Leads)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int64("upserted", n),
			zap.Int("skipped", res.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX lead file (required)")
	importCmd.Flags().StringVar(&importSource, "source", "import", "source tag for rows without a source column")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
