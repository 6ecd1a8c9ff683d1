package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/sessions"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Browse recorded voice sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show a session transcript",
				ArgsUsage: "<session_id>",
				Action:    runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func newSessionStore() *sessions.FileStore {
	return sessions.NewFileStore(filepath.Join(config.VesperPath(), "sessions"))
}

func runSessionsList(_ context.Context, _ *cli.Command) error {
	store := newSessionStore()

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMESSAGES\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			s.ID, s.Status, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: vesper sessions show <session_id>")
	}

	store := newSessionStore()

	s, err := store.Get(id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	fmt.Printf("Session %s (%s), %d messages\n\n", s.ID, s.Status, s.MessageCount)

	msgs, err := store.LoadMessages(id)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}
