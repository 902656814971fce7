package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/lookup"
	"github.com/vendaslab/prospect-cli/internal/model"
)

var optoutChannel string

var optoutCmd = &cobra.Command{
	Use:   "optout <cnpj|cpf>",
	Short: "Permanently exclude a lead from a channel",
	Long:  "Sets the lead's channel counter to the opt-out sentinel. The lead is never selected again on that channel, regardless of campaign, template, or category.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ch := model.Channel(optoutChannel)
		if ch != model.ChannelWhatsapp && ch != model.ChannelEmail {
			return eris.Errorf("unknown channel %q (want whatsapp or email)", optoutChannel)
		}
		id, err := lookup.NormalizeLeadID(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.store.GetLead(ctx, id)
		if err != nil {
			return err
		}
		if lead == nil {
			return eris.Errorf("no lead with id %s", id)
		}

		if err := env.store.SetLeadSentCount(ctx, id, ch, model.OptedOut); err != nil {
			return err
		}

		zap.L().Info("lead opted out",
			zap.String("identifier", id),
			zap.String("channel", string(ch)),
		)
		return nil
	},
}

func init() {
	optoutCmd.Flags().StringVar(&optoutChannel, "channel", "whatsapp", "channel to opt the lead out of")
	rootCmd.AddCommand(optoutCmd)
}
