package calendar

import (
	"context"
	"time"

	"go.uber.org/zap"

	"daycard/internal/model"
	"daycard/pkg/metrics"
)

// FeedFetcher retrieves raw feed text for a URL.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, feedURL string) (string, error)
}

// SourceResult is the outcome for one calendar source.
type SourceResult struct {
	SourceID string
	Name     string
	Events   int
	Err      error
}

func (r SourceResult) OK() bool { return r.Err == nil }

// Report aggregates one ingestion cycle. Events holds only the contributions
// of sources that succeeded.
type Report struct {
	Events  []model.CalendarEvent
	Results []SourceResult
}

// Failed returns the sources that contributed nothing because of an error.
func (r Report) Failed() []SourceResult {
	var failed []SourceResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// ByDate buckets the merged events in loc.
func (r Report) ByDate(loc *time.Location) map[string][]model.CalendarEvent {
	return BucketEventsByDate(r.Events, loc)
}

type Ingestor struct {
	fetcher FeedFetcher
	parser  *Parser
	logger  *zap.Logger
}

func NewIngestor(fetcher FeedFetcher, parser *Parser, logger *zap.Logger) *Ingestor {
	return &Ingestor{fetcher: fetcher, parser: parser, logger: logger}
}

// Ingest walks enabled sources one after another. A failing source is
// recorded in the report and skipped; the others still contribute.
func (i *Ingestor) Ingest(ctx context.Context, sources []model.CalendarSource) Report {
	var report Report
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if ctx.Err() != nil {
			report.Results = append(report.Results, SourceResult{SourceID: src.ID, Name: src.Name, Err: ctx.Err()})
			continue
		}

		events, err := i.ingestOne(ctx, src)
		res := SourceResult{SourceID: src.ID, Name: src.Name, Events: len(events), Err: err}
		report.Results = append(report.Results, res)

		if err != nil {
			metrics.IncrementIngestionSource("failed")
			i.logger.Warn("Calendar source skipped",
				zap.String("source_id", src.ID),
				zap.String("name", src.Name),
				zap.Error(err),
			)
			continue
		}
		metrics.IncrementIngestionSource("ok")
		report.Events = append(report.Events, events...)
	}
	return report
}

func (i *Ingestor) ingestOne(ctx context.Context, src model.CalendarSource) ([]model.CalendarEvent, error) {
	text, err := i.fetcher.FetchFeed(ctx, src.ICSURL)
	if err != nil {
		return nil, err
	}
	parsed, err := i.parser.Parse(text)
	if err != nil {
		return nil, err
	}
	return Normalize(parsed, src.ID), nil
}
