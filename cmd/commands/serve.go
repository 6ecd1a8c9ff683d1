package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/agent"
	"github.com/vesper-agent/vesper/internal/callbacks"
	"github.com/vesper-agent/vesper/internal/announce"
	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/gateway"
	"github.com/vesper-agent/vesper/internal/heartbeat"
	"github.com/vesper-agent/vesper/internal/memory"
	"github.com/vesper-agent/vesper/internal/models"
	"github.com/vesper-agent/vesper/internal/scheduler"
	"github.com/vesper-agent/vesper/internal/sessions"
	"github.com/vesper-agent/vesper/internal/storage"
	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
	"github.com/vesper-agent/vesper/internal/tools"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Vesper runtime (gateway, task loop, announcer)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	if err := os.MkdirAll(config.VesperPath(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Shared-state store
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Event bus + persistent event log
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(filepath.Join(config.VesperPath(), "events"), bus)
	defer eventLog.Close()

	// Context memory + task queue over the store
	cache := memory.New(st, cfg.Store.ContextTTL.Duration())
	queue := tasks.NewQueue(st, bus)

	// Workflow proxy + the tools built on it
	workflows := tools.NewWorkflowClient(cfg.Workflows, slog.Default())
	toolset := tools.New(workflows, cache, bus, cfg.Workflows.CalendarEndpoint, slog.Default())

	// Task handlers
	registry := tasks.NewRegistry()
	toolset.RegisterHandlers(registry)
	slog.Info("task handlers registered", "types", registry.Types())

	processor := tasks.NewProcessor(tasks.ProcessorConfig{
		Queue:          queue,
		Store:          st,
		Registry:       registry,
		Bus:            bus,
		PollInterval:   cfg.Store.PollInterval.Duration(),
		HandlerTimeout: cfg.Store.HandlerTimeout.Duration(),
	})

	// Announcements surface as speech events; the live session's TTS (and
	// the recorder) consume them from the bus.
	announcer := announce.New(announce.Config{
		Store: st,
		Bus:   bus,
		Sink: announce.SinkFunc(func(_ context.Context, text string) error {
			bus.Publish(events.NewTypedEvent(events.SourceAnnouncer, events.SpeechPayload{Text: text}))
			return nil
		}),
		PollInterval: cfg.Store.AnnounceEvery.Duration(),
	})

	// Session store + transcript recorder
	sessionStore := sessions.NewFileStore(filepath.Join(config.VesperPath(), "sessions"))
	recorder := sessions.NewRecorder(sessionStore, slog.Default())
	detach := recorder.Attach(bus)
	defer detach()

	// Agent runner, when a chat model is configured
	modelRegistry := models.NewRegistry(cfg.Models)
	if chatModel, merr := modelRegistry.Default(ctx); merr != nil {
		slog.Warn("no chat model available, conversation turns disabled", "error", merr)
	} else {
		einocallbacks.AppendGlobalHandlers(callbacks.NewEventBusHandler(bus, events.SourceAgent))
		runner, aerr := agent.NewAgent(ctx, chatModel, agent.LoadPersona(), toolset.AgentTools(), agent.AgentOptions{
			Name: cfg.Agent.Name,
		})
		if aerr != nil {
			return fmt.Errorf("init agent: %w", aerr)
		}
		eventRunner := agent.NewEventRunner(agent.EventRunnerConfig{
			Runner:   runner,
			EventBus: bus,
		})
		defer eventRunner.Close()
		slog.Info("agent ready", "model", modelRegistry.DefaultName())
	}

	// Scheduler
	sched := scheduler.New(scheduler.Config{
		Queue: queue,
		Bus:   bus,
		Store: scheduler.NewScheduleStore(config.SchedulesPath()),
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Heartbeat
	hb := heartbeat.NewWriter(config.HeartbeatPath(), st)
	hb.Start()
	defer hb.Stop()

	// Background loops
	go processor.Run(ctx)
	go announcer.Run(ctx)

	// Gateway server
	server := gateway.NewServer(gateway.Config{
		Host:     cfg.Gateway.Host,
		Port:     cfg.Gateway.Port,
		Bus:      bus,
		Sessions: sessionStore,
		Cache:    cache,
		Queue:    queue,
		Store:    st,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
