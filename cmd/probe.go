package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/phone"
)

var probeFile string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which phone numbers are reachable on WhatsApp",
	Long:  "Reads one phone number per line, normalizes each to canonical form, and probes the gateway in batches. Prints one line per number: the canonical form and ok/unreachable.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		lines, err := readIDFile(probeFile)
		if err != nil {
			return err
		}

		var phones []string
		for _, line := range lines {
			p := phone.Normalize(line)
			if p == "" {
				zap.L().Warn("skipping unparseable phone", zap.String("raw", line))
				continue
			}
			phones = append(phones, p)
		}
		if len(phones) == 0 {
			return eris.Errorf("no usable phone numbers in %s", probeFile)
		}

		sender, err := newWhatsAppSender()
		if err != nil {
			return err
		}

		reachable, err := sender.Reachable(ctx, phones)
		if err != nil {
			return err
		}

		var ok int
		for _, p := range phones {
			if reachable[p] {
				ok++
				fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", p)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s unreachable\n", p)
			}
		}
		zap.L().Info("probe complete",
			zap.Int("checked", len(phones)),
			zap.Int("reachable", ok),
		)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeFile, "file", "", "path to file with one phone number per line (required)")
	_ = probeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(probeCmd)
}
