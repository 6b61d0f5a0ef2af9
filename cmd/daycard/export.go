package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"daycard/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the local store as a JSON snapshot to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := store.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the local store with a JSON snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}
		if err := store.Apply(cmd.Context(), &snap); err != nil {
			return err
		}
		fmt.Printf("Imported %d todos, %d habits, %d habit logs, %d calendar sources\n",
			len(snap.Todos), len(snap.Habits), len(snap.HabitLogs), len(snap.CalendarSources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
