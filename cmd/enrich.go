package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/vendaslab/prospect-cli/internal/lookup"
)

var enrichSkipEmail bool

var enrichCmd = &cobra.Command{
	Use:   "enrich <cnpj>",
	Short: "Look up one company, serving from cache when fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if _, err := lookup.NormalizeID(args[0]); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.lookup.Lookup(ctx, args[0], enrichSkipEmail)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichSkipEmail, "skip-email", false, "skip the email provider cascade")
	rootCmd.AddCommand(enrichCmd)
}
