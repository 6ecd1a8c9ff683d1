package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show Vesper runtime status",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Vesper: ALIVE (PID %d, uptime %s)\n", hb.PID, hb.Uptime)
				fmt.Printf("Tasks:  %d pending, %d running\n", hb.PendingTasks, hb.RunningTasks)
				fmt.Printf("Queued announcements: %d\n", hb.PendingAnnounc)
			case heartbeat.StatusStale:
				fmt.Printf("Vesper: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Vesper: NOT RUNNING")
			}

			return nil
		},
	}
}
