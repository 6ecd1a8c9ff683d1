package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/clients/ws"
	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/events"
)

// NewSayCommand returns the say subcommand.
func NewSayCommand() *cli.Command {
	return &cli.Command{
		Name:      "say",
		Usage:     "Send a message to a running Vesper instance and print the reply",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the reply",
				Value: 60 * time.Second,
			},
		},
		Action: runSay,
	}
}

func runSay(ctx context.Context, cmd *cli.Command) error {
	message := strings.Join(cmd.Args().Slice(), " ")
	if message == "" {
		return fmt.Errorf("usage: vesper say <message>")
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/api/ws", cfg.Gateway.Host, cfg.Gateway.Port)
	client, err := ws.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("connect to gateway (is `vesper serve` running?): %w", err)
	}
	defer client.Close()

	sess, err := client.OpenSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer client.CloseSession(sess.ID)

	if err := client.SendMessage(sess.ID, message); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	// Wait for the spoken reply; tool call events show progress meanwhile.
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			return fmt.Errorf("waiting for reply: %w", err)
		}
		if frame.SessionID != "" && frame.SessionID != sess.ID {
			continue
		}

		switch events.EventType(frame.Event) {
		case events.EventToolCall:
			var p events.ToolCallPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				continue
			}
			if p.Status == events.ToolStatusStarted {
				fmt.Printf("... %s\n", p.Name)
			}
		case events.EventSpeech:
			var p events.SpeechPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				continue
			}
			if p.Text != "" {
				fmt.Println(p.Text)
				return nil
			}
		}
	}
}
