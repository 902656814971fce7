package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchFile      string
	batchSkipEmail bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Bulk-enrich a file of tax ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ids, err := readIDFile(batchFile)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return eris.Errorf("no tax ids in %s", batchFile)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.lookup.LookupMany(ctx, ids, batchSkipEmail)
		if err != nil {
			return err
		}

		var withEmail, failed int
		for _, rec := range out {
			if rec.Email != "" {
				withEmail++
			}
			if rec.LookupFailed {
				failed++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("requested", len(ids)),
			zap.Int("resolved", len(out)),
			zap.Int("with_email", withEmail),
			zap.Int("failed", failed),
		)
		return nil
	},
}

// readIDFile reads one tax id per line, ignoring blanks and # comments.
func readIDFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open id file %s", path)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read id file %s", path)
	}
	return ids, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to file with one tax id per line (required)")
	batchCmd.Flags().BoolVar(&batchSkipEmail, "skip-email", false, "skip the email provider cascade")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
