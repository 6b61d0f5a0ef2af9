package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local store with the remote snapshot",
	Long: `Pull the full snapshot from the sync server and replace every local
collection with it. Pending local changes are discarded; run "daycard push"
first to keep them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !client.Configured() {
			return fmt.Errorf("no sync server configured (set sync.base_url or SYNC_BASE_URL)")
		}
		snap := coord.Pull(cmd.Context(), "")
		if snap == nil {
			fmt.Println("Remote unavailable, staying local-only")
			return nil
		}
		if err := coord.Apply(cmd.Context(), snap); err != nil {
			return err
		}
		fmt.Printf("Applied %d todos, %d habits, %d habit logs, %d calendar sources\n",
			len(snap.Todos), len(snap.Habits), len(snap.HabitLogs), len(snap.CalendarSources))
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push pending local changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := coord.PushPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pushed %d changes\n", n)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending changes, then pull",
	RunE: func(cmd *cobra.Command, args []string) error {
		pushed, applied, err := coord.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pushed %d changes\n", pushed)
		if applied {
			fmt.Println("Applied remote snapshot")
		} else {
			fmt.Println("Remote unavailable, staying local-only")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(syncCmd)
}
