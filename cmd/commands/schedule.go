package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring background tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List schedule entries",
				Action: runScheduleList,
			},
			{
				Name:      "add",
				Usage:     "Add a schedule entry",
				ArgsUsage: "<task_type>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "cron",
						Usage: "Cron expression (5 fields)",
					},
					&cli.IntFlag{
						Name:  "every",
						Usage: "Interval in seconds (alternative to --cron)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Human-readable title",
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: "Task params as JSON",
					},
					&cli.IntFlag{
						Name:  "max-runs",
						Usage: "Disable the entry after this many runs (0 = unlimited)",
					},
				},
				Action: runScheduleAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove a schedule entry",
				ArgsUsage: "<schedule_id>",
				Action:    runScheduleRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func runScheduleList(_ context.Context, _ *cli.Command) error {
	store := scheduler.NewScheduleStore(config.SchedulesPath())
	entries, err := store.Load()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No schedule entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tTRIGGER\tENABLED\tRUNS\tLAST RUN")
	for _, e := range entries {
		trigger := e.CronSpec
		if trigger == "" {
			trigger = fmt.Sprintf("every %ds", e.IntervalSec)
		}
		lastRun := "-"
		if e.LastRunAt != nil {
			lastRun = e.LastRunAt.Format("2006-01-02 15:04")
		}
		runs := fmt.Sprintf("%d", e.RunCount)
		if e.MaxRuns > 0 {
			runs = fmt.Sprintf("%d/%d", e.RunCount, e.MaxRuns)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			e.ID, e.TaskType, trigger, e.Enabled, runs, lastRun)
	}
	return w.Flush()
}

func runScheduleAdd(_ context.Context, cmd *cli.Command) error {
	taskType := cmd.Args().First()
	if taskType == "" {
		return fmt.Errorf("usage: vesper schedule add <task_type> [--cron expr | --every seconds]")
	}

	cronSpec := cmd.String("cron")
	interval := cmd.Int("every")
	if cronSpec == "" && interval <= 0 {
		return fmt.Errorf("one of --cron or --every is required")
	}

	var params map[string]any
	if raw := cmd.String("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	entry := &scheduler.ScheduleEntry{
		ID:          scheduler.GenerateScheduleID(),
		Title:       cmd.String("title"),
		CronSpec:    cronSpec,
		IntervalSec: interval,
		TaskType:    taskType,
		Params:      params,
		MaxRuns:     cmd.Int("max-runs"),
		Enabled:     true,
		CreatedAt:   time.Now(),
	}

	// Validate the cron expression before persisting.
	if cronSpec != "" {
		if _, err := scheduler.ParseCron(cronSpec); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	}

	store := scheduler.NewScheduleStore(config.SchedulesPath())
	if err := store.Add(entry); err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}

	fmt.Printf("Schedule %s added. Restart the serve loop to pick it up.\n", entry.ID)
	return nil
}

func runScheduleRemove(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: vesper schedule remove <schedule_id>")
	}

	store := scheduler.NewScheduleStore(config.SchedulesPath())
	if err := store.Remove(id); err != nil {
		return fmt.Errorf("remove schedule: %w", err)
	}

	fmt.Printf("Schedule %s removed.\n", id)
	return nil
}
