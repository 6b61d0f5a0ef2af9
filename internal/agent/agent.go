// Package agent runs the device's periodic jobs: calendar refresh, pushing
// pending local changes, and the morning digest.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"daycard/internal/calendar"
	"daycard/internal/model"
	"daycard/internal/summary"
)

// Syncer is the replication side of the agent. *syncer.Coordinator satisfies it.
type Syncer interface {
	StartSession(ctx context.Context) (bool, error)
	PushPending(ctx context.Context) (int, error)
}

// Store is the slice of the local store the agent reads.
type Store interface {
	GetSettings(ctx context.Context) (model.Settings, error)
	EnabledCalendarSources(ctx context.Context) ([]model.CalendarSource, error)
	ListTasksByDate(ctx context.Context, date string) ([]model.Task, error)
	ListHabits(ctx context.Context) ([]model.Habit, error)
}

// Ingester is satisfied by *calendar.Ingestor.
type Ingester interface {
	Ingest(ctx context.Context, sources []model.CalendarSource) calendar.Report
}

type Options struct {
	Location   *time.Location
	PushSpec   string // cron spec, e.g. "@every 1m"
	DigestAt   string // HH:MM, empty disables the digest
	JobTimeout time.Duration
}

type Agent struct {
	syncer   Syncer
	store    Store
	ingester Ingester
	logger   *zap.Logger
	opts     Options
	cron     *cron.Cron
	now      func() time.Time

	mu     sync.Mutex
	latest calendar.Report
}

func New(s Syncer, store Store, ingester Ingester, opts Options, logger *zap.Logger) *Agent {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Minute
	}
	return &Agent{
		syncer:   s,
		store:    store,
		ingester: ingester,
		logger:   logger,
		opts:     opts,
		cron:     cron.New(cron.WithLocation(opts.Location), cron.WithSeconds()),
		now:      time.Now,
	}
}

// Start pulls once, runs a first calendar refresh and schedules the jobs.
// The refresh interval is read from the stored settings.
func (a *Agent) Start(ctx context.Context) error {
	if _, err := a.syncer.StartSession(ctx); err != nil {
		a.logger.Warn("Initial pull failed", zap.Error(err))
	}

	settings, err := a.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	refresh := RefreshSpec(settings)

	if _, err := a.cron.AddFunc(refresh, a.job("calendar_refresh", func(ctx context.Context) {
		a.RefreshCalendars(ctx)
	})); err != nil {
		return fmt.Errorf("invalid refresh spec %q: %w", refresh, err)
	}
	if a.opts.PushSpec != "" {
		if _, err := a.cron.AddFunc(a.opts.PushSpec, a.job("push_pending", a.pushPending)); err != nil {
			return fmt.Errorf("invalid push spec %q: %w", a.opts.PushSpec, err)
		}
	}
	if a.opts.DigestAt != "" {
		spec, err := DailySpec(a.opts.DigestAt)
		if err != nil {
			return err
		}
		if _, err := a.cron.AddFunc(spec, a.job("digest", a.logDigest)); err != nil {
			return fmt.Errorf("invalid digest spec %q: %w", spec, err)
		}
	}

	a.RefreshCalendars(ctx)
	a.cron.Start()
	a.logger.Info("Agent started",
		zap.String("refresh", refresh),
		zap.String("push", a.opts.PushSpec),
		zap.String("digest_at", a.opts.DigestAt),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (a *Agent) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

func (a *Agent) job(name string, fn func(context.Context)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.JobTimeout)
		defer cancel()
		start := time.Now()
		fn(ctx)
		a.logger.Debug("Job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// RefreshCalendars ingests every enabled source and keeps the report as the
// latest known events. A failed source only loses its own events.
func (a *Agent) RefreshCalendars(ctx context.Context) calendar.Report {
	sources, err := a.store.EnabledCalendarSources(ctx)
	if err != nil {
		a.logger.Error("Failed to list calendar sources", zap.Error(err))
		return a.Latest()
	}

	report := a.ingester.Ingest(ctx, sources)
	for _, f := range report.Failed() {
		a.logger.Warn("Calendar source failed",
			zap.String("source_id", f.SourceID),
			zap.String("name", f.Name),
			zap.Error(f.Err),
		)
	}

	a.mu.Lock()
	a.latest = report
	a.mu.Unlock()
	return report
}

// Latest returns the report of the last refresh.
func (a *Agent) Latest() calendar.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

func (a *Agent) pushPending(ctx context.Context) {
	n, err := a.syncer.PushPending(ctx)
	if err != nil {
		a.logger.Warn("Push of pending changes failed", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Info("Pushed pending changes", zap.Int("changes", n))
	}
}

func (a *Agent) logDigest(ctx context.Context) {
	text, err := Digest(ctx, a.store, a.Latest(), a.now().In(a.opts.Location), "")
	if err != nil {
		a.logger.Error("Failed to build digest", zap.Error(err))
		return
	}
	a.logger.Info("Daily digest", zap.String("text", text))
}

// Digest builds the day card summary for now's date from the local store and
// an ingestion report.
func Digest(ctx context.Context, store Store, report calendar.Report, now time.Time, name string) (string, error) {
	day := model.DayKey(now)
	todos, err := store.ListTasksByDate(ctx, day)
	if err != nil {
		return "", err
	}
	habits, err := store.ListHabits(ctx)
	if err != nil {
		return "", err
	}

	return summary.Build(summary.Input{
		Date:     now,
		Meetings: report.ByDate(now.Location())[day],
		Todos:    todos,
		Habits:   model.DueHabits(habits, now),
		Now:      now,
		Name:     name,
	}), nil
}

// RefreshSpec turns the calendar refresh setting into a cron spec.
func RefreshSpec(s model.Settings) string {
	minutes := s.CalendarRefreshMinutes
	if minutes <= 0 {
		minutes = model.DefaultCalendarRefreshMinutes
	}
	return fmt.Sprintf("@every %dm", minutes)
}

// DailySpec converts HH:MM into a seconds-enabled cron spec.
func DailySpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", hhmm)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", t.Minute(), t.Hour()), nil
}
