package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/scheduler"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run the recurring enrich and campaign jobs until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var jobs []scheduler.Job

		if cfg.Jobs.EnrichFile != "" {
			jobs = append(jobs, scheduler.Job{
				ID:       "enrich",
				Interval: time.Duration(cfg.Jobs.EnrichIntervalHours) * time.Hour,
				Run: func(ctx context.Context) (string, error) {
					ids, err := readIDFile(cfg.Jobs.EnrichFile)
					if err != nil {
						return "", err
					}
					out, err := env.lookup.LookupMany(ctx, ids, false)
					if err != nil {
						return "", err
					}
					raw, _ := json.Marshal(map[string]int{"resolved": len(out)})
					return string(raw), nil
				},
			})
		}

		ch := model.Channel(cfg.Jobs.CampaignChannel)
		if ch == model.ChannelWhatsapp || ch == model.ChannelEmail {
			gov, err := newGovernor(env.store, ch)
			if err != nil {
				return err
			}
			jobs = append(jobs, scheduler.Job{
				ID:       "campaign-" + string(ch),
				Interval: time.Duration(cfg.Jobs.CampaignIntervalHours) * time.Hour,
				Run: func(ctx context.Context) (string, error) {
					outcome, err := gov.Run(ctx)
					if err != nil {
						return "", err
					}
					raw, _ := json.Marshal(outcome)
					return string(raw), nil
				},
			})
		}

		if len(jobs) == 0 {
			return eris.New("no jobs configured (set PROSPECT_JOBS_ENRICH_FILE or PROSPECT_JOBS_CAMPAIGN_CHANNEL)")
		}

		sched, err := scheduler.New(env.store, jobs)
		if err != nil {
			return err
		}

		err = sched.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
