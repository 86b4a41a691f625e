package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"github.com/david/opportunity-finder/internal/discovery"
	"github.com/david/opportunity-finder/internal/logging"
)

func main() {
	keyword := flag.String("keyword", "", "search keyword")
	typ := flag.String("type", "", "scholarship, fellowship or accelerator")
	region := flag.String("region", "", "region filter")
	maxSources := flag.Int("max-sources", discovery.DefaultMaxSources, "source cap, 0 for all")
	ignoreRobots := flag.Bool("ignore-robots", false, "skip robots.txt checks")
	verbose := flag.Bool("v", false, "development logging")
	flag.Parse()

	logger, err := logging.New(*verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	reg, err := discovery.LoadRegistry()
	if err != nil {
		logger.Fatal("failed to load registry", zap.Error(err))
	}

	fetcher := discovery.NewCollyFetcher()
	fetcher.IgnoreRobotsTxt = *ignoreRobots

	engine := discovery.NewEngine(reg, fetcher,
		discovery.WithLogger(logger),
		discovery.WithMaxSources(*maxSources),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report := engine.Run(ctx, discovery.Query{Keyword: *keyword, Category: *typ, Region: *region})

	outcomes := table.NewWriter()
	outcomes.SetOutputMirror(os.Stdout)
	outcomes.SetTitle("Sources")
	outcomes.AppendHeader(table.Row{"Source", "Outcome", "Status", "Records", "Reason"})
	for _, so := range report.Outcomes {
		outcomes.AppendRow(table.Row{so.Source.ID, so.Outcome.Kind, so.Outcome.StatusCode, len(so.Outcome.Records), so.Outcome.Reason})
	}
	outcomes.Render()

	results := table.NewWriter()
	results.SetOutputMirror(os.Stdout)
	results.SetTitle("Results (" + report.Duration.Round(time.Millisecond).String() + ")")
	results.AppendHeader(table.Row{"#", "Title", "Organization", "Type", "Deadline", "URL"})
	results.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 50},
		{Number: 6, WidthMax: 60, Transformer: text.Transformer(func(v interface{}) string {
			return text.Faint.Sprint(v)
		})},
	})
	for i, r := range report.Results {
		title := r.Title
		if r.IsFallbackPlaceholder {
			title = text.FgYellow.Sprint(title)
		}
		results.AppendRow(table.Row{i + 1, title, r.Organization, r.Type, r.Deadline, r.URL})
	}
	results.Render()
}
