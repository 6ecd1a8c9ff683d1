// Package commands holds the vesper CLI command tree.
package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "vesper",
		Usage: "Voice agent runtime and background task loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewSayCommand(),
			NewStatusCommand(),
			NewTasksCommand(),
			NewContextCommand(),
			NewAnnouncementsCommand(),
			NewScheduleCommand(),
			NewSessionsCommand(),
			NewSecretCommand(),
		},
	}
}
