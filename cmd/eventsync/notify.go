package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/model"
	"github.com/dukerupert/eventsync/internal/notify"
	"github.com/dukerupert/eventsync/internal/store"
)

// reminderHorizon covers the week-reminder window with a day to spare.
const reminderHorizon = 9 * 24 * time.Hour

// sentRetention is how long sent-reminder rows are kept.
const sentRetention = 30 * 24 * time.Hour

func newNotifyCmd(g *globalFlags) *cobra.Command {
	var dryRun, asJSON bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send week-ahead and day-before reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openDB(); err != nil {
				return err
			}

			res, err := a.remind(cmd.Context(), dryRun, metrics.New())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "%d due, %d already sent, %d sent in %d batches, %d errors\n",
				res.Selected, res.AlreadySent, res.Sent, res.Batches, res.Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log reminders without sending or recording them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// remind runs one reminder pass over upcoming confirmed events, then prunes
// old sent-log rows.
func (a *app) remind(ctx context.Context, dryRun bool, m *metrics.Metrics) (notify.Result, error) {
	now := time.Now()
	stored, err := store.NewEventStore(a.db).ListUpcoming(store.EventFilter{
		From: now,
		To:   now.Add(reminderHorizon),
	})
	if err != nil {
		return notify.Result{}, err
	}
	events := make([]model.CanonicalEvent, len(stored))
	for i, ev := range stored {
		events[i] = ev.CanonicalEvent
	}

	sent := store.NewNotificationStore(a.db)
	n := notify.New(a.sender(), sent,
		notify.WithBatchSize(a.cfg.Notify.BatchSize),
		notify.WithDryRun(dryRun),
		notify.WithLocation(a.cfg.Location()),
		notify.WithLogger(a.logger.With("component", "notify")))
	res, err := n.Run(ctx, events)
	if m != nil {
		m.ObserveReminders(res.Sent, res.Errors)
	}
	if err != nil {
		return res, err
	}

	if !dryRun {
		removed, err := sent.CleanupSent(now.Add(-sentRetention))
		if err != nil {
			a.logger.Warn("prune reminder log", "error", err)
		} else if removed > 0 {
			a.logger.Debug("pruned reminder log", "count", removed)
		}
	}
	return res, nil
}

// sender picks the reminder channel: the webhook when a URL is set,
// otherwise Postmark email.
func (a *app) sender() notify.Sender {
	nc := a.cfg.Notify
	if nc.WebhookURL == "" && nc.Email.ServerToken != "" {
		return notify.NewEmail(nc.Email.ServerToken, nc.Email.From, nc.Email.To)
	}
	return notify.NewWebhook(nc.WebhookURL)
}
