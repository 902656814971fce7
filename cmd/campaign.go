package main

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendaslab/prospect-cli/internal/model"
)

var campaignChannel string

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run one governed outbound campaign pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ch := model.Channel(campaignChannel)
		if ch != model.ChannelWhatsapp && ch != model.ChannelEmail {
			return eris.Errorf("unknown channel %q (want whatsapp or email)", campaignChannel)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		gov, err := newGovernor(env.store, ch)
		if err != nil {
			return err
		}

		run := &model.JobRun{ID: uuid.NewString(), Job: "campaign-" + string(ch)}
		if err := env.store.CreateJobRun(ctx, run); err != nil {
			return err
		}

		outcome, runErr := gov.Run(ctx)
		status := model.JobStatusDone
		detail := ""
		if outcome != nil {
			if raw, err := json.Marshal(outcome); err == nil {
				detail = string(raw)
			}
		}
		if runErr != nil {
			status = model.JobStatusFailed
			if detail == "" {
				detail = runErr.Error()
			}
		}
		if err := env.store.FinishJobRun(ctx, run.ID, status, detail); err != nil {
			zap.L().Error("finish job run", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("campaign complete",
			zap.String("channel", string(ch)),
			zap.Int("sent", outcome.Sent),
			zap.Int("failed", outcome.Failed),
			zap.Int("skipped", outcome.Skipped),
		)
		return nil
	},
}

func init() {
	campaignCmd.Flags().StringVar(&campaignChannel, "channel", "whatsapp", "channel to run (whatsapp or email)")
	rootCmd.AddCommand(campaignCmd)
}
