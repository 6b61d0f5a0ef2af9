package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"daycard/internal/agent"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run periodic sync and calendar refresh until interrupted",
	Long: `Run the device agent. It pulls once at start, then refreshes calendar
sources every calendarRefreshMinutes (from settings), pushes pending changes
on the configured push_period, and logs a daily digest at digest_at.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := agent.New(coord, store, newIngestor(), agent.Options{
			Location: loc,
			PushSpec: cfg.PushPeriod,
			DigestAt: cfg.DigestAt,
		}, log)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := a.Start(ctx); err != nil {
			return err
		}
		fmt.Println("Agent running. Press Ctrl+C to stop...")

		<-ctx.Done()
		fmt.Println("\nStopping agent...")
		a.Stop()

		// one last push so nothing queued is left behind
		pushCtx, pushCancel := context.WithTimeout(context.Background(), cfg.Sync.Timeout())
		defer pushCancel()
		if _, err := coord.PushPending(pushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Final push failed: %v\n", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
