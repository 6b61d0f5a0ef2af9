package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daycard/internal/agent"
	"daycard/internal/calendar"
	"daycard/internal/model"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Fetch enabled calendar sources and list events by day",
	RunE: func(cmd *cobra.Command, args []string) error {
		past, _ := cmd.Flags().GetInt("past")
		future, _ := cmd.Flags().GetInt("future")
		if !cmd.Flags().Changed("past") {
			past = cfg.Calendar.PastDays
		}
		if !cmd.Flags().Changed("future") {
			future = cfg.Calendar.FutureDays
		}

		sources, err := store.EnabledCalendarSources(cmd.Context())
		if err != nil {
			return err
		}
		report := newIngestor().Ingest(cmd.Context(), sources)
		byDate := report.ByDate(loc)

		for _, day := range model.BuildDateRange(time.Now().In(loc), past, future) {
			events := byDate[day]
			if len(events) == 0 {
				continue
			}
			fmt.Println(day)
			for _, ev := range events {
				fmt.Printf("  %s  %s\n", eventTime(ev), ev.Title)
			}
		}
		printFailures(report)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and today's summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pending, err := store.PendingCount(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Store:    %s\n", store.Path())
		if client.Configured() {
			fmt.Printf("Remote:   %s (%s)\n", cfg.Sync.BaseURL, client.BreakerState())
		} else {
			fmt.Println("Remote:   not configured")
		}
		fmt.Printf("Pending:  %d changes\n\n", pending)

		var report calendar.Report
		if client.Configured() {
			sources, err := store.EnabledCalendarSources(ctx)
			if err != nil {
				return err
			}
			report = newIngestor().Ingest(ctx, sources)
		}
		name, _ := cmd.Flags().GetString("name")
		text, err := agent.Digest(ctx, store, report, time.Now().In(loc), name)
		if err != nil {
			return err
		}
		fmt.Println(text)
		printFailures(report)
		return nil
	},
}

func eventTime(ev model.CalendarEvent) string {
	if ev.AllDay {
		return "all day "
	}
	return ev.Start.In(loc).Format("3:04 PM")
}

func printFailures(report calendar.Report) {
	for _, f := range report.Failed() {
		fmt.Printf("! %s: %v\n", f.Name, f.Err)
	}
}

func init() {
	calendarCmd.Flags().Int("past", 1, "Days before today to show")
	calendarCmd.Flags().Int("future", 7, "Days after today to show")
	statusCmd.Flags().String("name", "", "Name used in the greeting")

	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(statusCmd)
}
