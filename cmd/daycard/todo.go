package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daycard/internal/model"
)

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage the day's tasks",
}

var todoAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd)
		if err != nil {
			return err
		}
		t, err := store.PutTask(cmd.Context(), model.Task{Date: date, Title: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("Added %s on %s\n", t.ID, t.Date)
		return nil
	},
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd)
		if err != nil {
			return err
		}
		tasks, err := store.ListTasksByDate(cmd.Context(), date)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			mark := " "
			if t.Done() {
				mark = "x"
			}
			fmt.Printf("[%s] %s  %s\n", mark, t.ID, t.Title)
		}
		return nil
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := store.GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("todo %s not found", args[0])
		}
		now := time.Now().UTC().Format(time.RFC3339)
		t.CompletedAt = &now
		if _, err := store.PutTask(cmd.Context(), *t); err != nil {
			return err
		}
		fmt.Printf("Completed %s\n", t.Title)
		return nil
	},
}

var todoRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.DeleteTask(cmd.Context(), args[0])
	},
}

var carryCmd = &cobra.Command{
	Use:   "carry",
	Short: "Review yesterday's open tasks",
	Long: `List yesterday's open tasks. With --move they are moved to today,
with --dismiss they are hidden from today's carry-over list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		today := model.DayKey(time.Now().In(loc))
		yesterday, err := model.AddDays(today, -1)
		if err != nil {
			return err
		}

		candidates, err := store.CarryOverCandidates(ctx, yesterday)
		if err != nil {
			return err
		}
		move, _ := cmd.Flags().GetBool("move")
		dismiss, _ := cmd.Flags().GetBool("dismiss")

		for _, t := range candidates {
			switch {
			case move:
				if _, err := store.MoveTask(ctx, t.ID, today); err != nil {
					return err
				}
				fmt.Printf("Moved    %s\n", t.Title)
			case dismiss:
				if _, err := store.DismissCarry(ctx, t.ID, today); err != nil {
					return err
				}
				fmt.Printf("Dismissed %s\n", t.Title)
			default:
				fmt.Printf("%s  %s\n", t.ID, t.Title)
			}
		}
		return nil
	},
}

var habitCmd = &cobra.Command{
	Use:   "habit",
	Short: "Track habits",
}

var habitAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a habit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schedule, _ := cmd.Flags().GetString("schedule")
		days, _ := cmd.Flags().GetIntSlice("days")
		target, _ := cmd.Flags().GetInt("target")
		h, err := store.PutHabit(cmd.Context(), model.Habit{
			Title:        args[0],
			Schedule:     model.HabitSchedule{Type: model.ScheduleType(schedule), DaysOfWeek: days},
			TargetPerDay: target,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added habit %s\n", h.ID)
		return nil
	},
}

var habitLogCmd = &cobra.Command{
	Use:   "log <habit-id>",
	Short: "Set the count for a habit on a day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		l, err := store.UpsertHabitLog(cmd.Context(), args[0], date, count)
		if err != nil {
			return err
		}
		fmt.Printf("%s on %s: %d\n", l.HabitID, l.Date, l.Count)
		return nil
	},
}

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage calendar sources",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <name> <ics-url>",
	Short: "Add an enabled calendar source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := store.PutCalendarSource(cmd.Context(), model.CalendarSource{
			Name:    args[0],
			ICSURL:  args[1],
			Enabled: true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added source %s\n", src.ID)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendar sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := store.ListCalendarSources(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range sources {
			state := "enabled"
			if !s.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %-20s %-8s %s\n", s.ID, s.Name, state, s.ICSURL)
		}
		return nil
	},
}

// dateFlag returns --date, defaulting to today in the configured timezone.
func dateFlag(cmd *cobra.Command) (string, error) {
	date, _ := cmd.Flags().GetString("date")
	if date == "" {
		return model.DayKey(time.Now().In(loc)), nil
	}
	if !model.IsDayKey(date) {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

func init() {
	for _, c := range []*cobra.Command{todoAddCmd, todoListCmd, habitLogCmd} {
		c.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")
	}
	carryCmd.Flags().Bool("move", false, "Move every candidate to today")
	carryCmd.Flags().Bool("dismiss", false, "Dismiss every candidate for today")
	habitAddCmd.Flags().String("schedule", string(model.ScheduleDaily), "daily, weekdays, weekends or custom")
	habitAddCmd.Flags().IntSlice("days", nil, "Days of week for a custom schedule (0=Sunday)")
	habitAddCmd.Flags().Int("target", 1, "Target count per day")
	habitLogCmd.Flags().Int("count", 1, "Count for the day")

	todoCmd.AddCommand(todoAddCmd, todoListCmd, todoDoneCmd, todoRmCmd)
	habitCmd.AddCommand(habitAddCmd, habitLogCmd)
	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd)
	rootCmd.AddCommand(todoCmd, carryCmd, habitCmd, sourceCmd)
}
