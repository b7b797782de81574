package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/pipeline"
)

type syncFlags struct {
	db          bool
	dryRun      bool
	cleanup     bool
	cleanupOnly bool
	source      string
	json        bool
	enhanced    bool
}

func newSyncCmd(g *globalFlags) *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch every source and reconcile the event store",
		Long: `Fetch every enabled source, merge and dedup the results, and with --db
reconcile them into the event store. Without --db the merged list is
printed and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.db, "db", false, "write results to the database")
	fl.BoolVar(&f.dryRun, "dry-run", false, "compare against the database without writing")
	fl.BoolVar(&f.cleanup, "cleanup", false, "archive ended events and cancel stale ones after syncing")
	fl.BoolVar(&f.cleanupOnly, "cleanup-only", false, "run the cleanup pass without fetching")
	fl.StringVar(&f.source, "source", "", "restrict the run to one source")
	fl.BoolVar(&f.json, "json", false, "print the run report as JSON")
	fl.BoolVar(&f.enhanced, "enhanced", false, "fill missing images and descriptions from event pages")
	return cmd
}

func runSync(cmd *cobra.Command, g *globalFlags, f syncFlags) error {
	if (f.cleanup || f.cleanupOnly) && !f.db {
		return errors.New("--cleanup and --cleanup-only require --db")
	}
	a, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	client := a.fetchClient()
	adapters, err := a.adapters(client, f.source)
	if err != nil {
		return err
	}

	if f.db {
		if err := a.openDB(); err != nil {
			return err
		}
	}
	p, err := a.newPipeline(client, metrics.New(), nil)
	if err != nil {
		return err
	}

	var report pipeline.Report
	if f.db {
		report = p.Run(cmd.Context(), adapters, pipeline.Options{
			DryRun:      f.dryRun,
			Cleanup:     f.cleanup,
			CleanupOnly: f.cleanupOnly,
			Enhanced:    f.enhanced,
			Reconcile:   a.reconcileOptions(),
		})
	} else {
		report = p.Preview(cmd.Context(), adapters, f.enhanced)
	}

	out := cmd.OutOrStdout()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(out, report, !f.db, a.cfg.Location())
	return nil
}

func printReport(w io.Writer, r pipeline.Report, listEvents bool, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(r.Sources) > 0 {
		fmt.Fprintln(tw, "SOURCE\tEVENTS\tTIME\tERROR")
		for _, s := range r.Sources {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Source, s.Events, s.Elapsed.Round(time.Millisecond), s.Error)
		}
		tw.Flush()
		fmt.Fprintf(w, "\n%d events (%d duplicates dropped)\n", len(r.Events), r.Dropped)
	}
	if r.Enrich != nil {
		fmt.Fprintf(w, "enriched %d of %d events (%d pages, %d failed)\n",
			r.Enrich.Enriched, r.Enrich.Candidates, r.Enrich.Pages, r.Enrich.Failed)
	}
	if s := r.Run.Sync; s != nil {
		prefix := "sync"
		if s.DryRun {
			prefix = "sync (dry run)"
		}
		fmt.Fprintf(w, "%s: %d fetched, %d inserted, %d updated, %d unchanged, %d errors, %d venues resolved\n",
			prefix, s.Fetched, s.Inserted, s.Updated, s.Unchanged, s.Errors, s.Resolved)
	}
	if c := r.Run.Cleanup; c != nil {
		prefix := "cleanup"
		if c.DryRun {
			prefix = "cleanup (dry run)"
		}
		fmt.Fprintf(w, "%s: %d archived, %d cancelled, %d errors\n", prefix, c.Archived, c.Cancelled, c.Errors)
	}
	if r.Publish != nil {
		fmt.Fprintf(w, "published %d events to s3://%s/%s\n", r.Publish.Count, r.Publish.Bucket, r.Publish.Key)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}

	if !listEvents || len(r.Events) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tTITLE\tVENUE\tSOURCE")
	for _, ev := range r.Events {
		venue := ""
		if ev.Venue != nil {
			venue = ev.Venue.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.StartDateTime.In(loc).Format("Mon Jan 2 3:04 PM"), ev.Title, venue, ev.Source)
	}
	tw.Flush()
}
