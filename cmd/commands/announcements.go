package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewAnnouncementsCommand returns the announcements subcommand.
func NewAnnouncementsCommand() *cli.Command {
	return &cli.Command{
		Name:  "announcements",
		Usage: "Inspect queued and delivered announcements",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum announcements to show",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "pending",
				Usage: "Show only undelivered announcements",
			},
		},
		Action: runAnnouncementsList,
	}
}

func runAnnouncementsList(_ context.Context, cmd *cli.Command) error {
	st, err := openTaskStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	list, err := st.ListAnnouncements(cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("list announcements: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDELIVERED\tCREATED\tMESSAGE")
	shown := 0
	for _, a := range list {
		if cmd.Bool("pending") && a.Announced {
			continue
		}
		delivered := "no"
		if a.Announced {
			delivered = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.ID, delivered, a.CreatedAt.Format("2006-01-02 15:04:05"), a.Message)
		shown++
	}
	if shown == 0 {
		fmt.Println("No announcements found.")
		return nil
	}
	return w.Flush()
}
