package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect and create background tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent tasks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum tasks to show",
						Value: 50,
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "create",
				Usage:     "Queue a task",
				ArgsUsage: "<task_type> [params-json]",
				Action:    runTasksCreate,
			},
		},
		DefaultCommand: "list",
	}
}

func openTaskStore(cmd *cli.Command) (*store.Store, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}
	return store.Open(cfg.Store.Path)
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	st, err := openTaskStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	list, err := st.ListTasks(cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCREATED")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ID, t.Type, t.Status, t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: vesper tasks show <task_id>")
	}

	st, err := openTaskStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	t, err := st.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Type:      %s\n", t.Type)
	fmt.Printf("Status:    %s\n", t.Status)
	fmt.Printf("Created:   %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:   %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if len(t.Params) > 0 {
		fmt.Printf("\nParams:\n%s\n", string(t.Params))
	}
	if len(t.Result) > 0 {
		fmt.Printf("\nResult:\n%s\n", string(t.Result))
	}
	if t.Error != "" {
		fmt.Printf("\nError: %s\n", t.Error)
	}
	return nil
}

func runTasksCreate(_ context.Context, cmd *cli.Command) error {
	taskType := cmd.Args().First()
	if taskType == "" {
		return fmt.Errorf("usage: vesper tasks create <task_type> [params-json]")
	}

	var params json.RawMessage
	if raw := cmd.Args().Get(1); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("params must be valid JSON")
		}
		params = json.RawMessage(raw)
	}

	st, err := openTaskStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	queue := tasks.NewQueue(st, nil)
	id, err := queue.Create(taskType, params)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	fmt.Printf("Task %s queued.\n", id)
	return nil
}
