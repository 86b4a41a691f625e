package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/opportunity-finder/internal/config"
	"github.com/david/opportunity-finder/internal/db"
)

func main() {
	limit := flag.Int("limit", 10, "number of runs to list")
	runID := flag.String("run", "", "show per-source outcomes of one run")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)

	if *runID != "" {
		id, err := uuid.Parse(*runID)
		if err != nil {
			log.Fatalf("invalid run id: %v", err)
		}
		outcomes, err := store.RunOutcomes(ctx, id)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"#", "Source", "Outcome", "Status", "Records", "Reason"})
		for _, o := range outcomes {
			status := "-"
			if o.StatusCode != nil {
				status = fmt.Sprint(*o.StatusCode)
			}
			t.AppendRow(table.Row{o.Position, o.SourceID, o.Outcome, status, o.RecordCount, o.Reason})
		}
		t.Render()
		return
	}

	runs, err := store.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Keyword", "Type", "Region", "Results", "Placeholders", "Blocked", "Timeouts", "Errors", "Render", "Duration", "Started At"})

	for _, r := range runs {
		duration := (time.Duration(r.DurationMS) * time.Millisecond).Round(10 * time.Millisecond).String()
		t.AppendRow(table.Row{
			r.ID.String()[:8], r.Keyword, r.Type, r.Region,
			r.ResultCount, r.PlaceholderCount, r.Blocked, r.Timeouts, r.Errors,
			r.RenderUsed, duration, r.StartedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
