package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/memory"
	"github.com/vesper-agent/vesper/internal/store"
)

// NewContextCommand returns the context subcommand.
func NewContextCommand() *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Inspect the shared context memory",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List cached context keys",
				Action: runContextList,
			},
			{
				Name:      "show",
				Usage:     "Show a cached context entry",
				ArgsUsage: "<key>",
				Action:    runContextShow,
			},
			{
				Name:      "set",
				Usage:     "Store a context entry",
				ArgsUsage: "<key> <value-json>",
				Action:    runContextSet,
			},
			{
				Name:      "clear",
				Usage:     "Remove a cached context entry (all entries when no key given)",
				ArgsUsage: "[key]",
				Action:    runContextClear,
			},
		},
		DefaultCommand: "list",
	}
}

func openCache(cmd *cli.Command) (*memory.Cache, *store.Store, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return memory.New(st, cfg.Store.ContextTTL.Duration()), st, nil
}

func runContextList(_ context.Context, cmd *cli.Command) error {
	cache, st, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := cache.Keys()
	if err != nil {
		return fmt.Errorf("list context: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No context entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tAGE")
	for _, key := range keys {
		rec, err := cache.GetWithMetadata(key)
		if err != nil || rec == nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%ds\n", key, rec.AgeSeconds())
	}
	return w.Flush()
}

func runContextShow(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("usage: vesper context show <key>")
	}

	cache, st, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := cache.GetWithMetadata(key)
	if err != nil {
		return fmt.Errorf("get context: %w", err)
	}
	if rec == nil {
		fmt.Printf("No context entry for %q (missing or expired).\n", key)
		return nil
	}

	fmt.Printf("Key: %s\n", key)
	fmt.Printf("Age: %ds\n", rec.AgeSeconds())
	if len(rec.Metadata) > 0 {
		fmt.Printf("Metadata: %s\n", string(rec.Metadata))
	}
	fmt.Printf("\n%s\n", string(rec.Value))
	return nil
}

func runContextSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	value := cmd.Args().Get(1)
	if key == "" || value == "" {
		return fmt.Errorf("usage: vesper context set <key> <value-json>")
	}
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("value must be valid JSON")
	}

	cache, st, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := cache.SaveRaw(key, json.RawMessage(value), nil); err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	fmt.Printf("Context entry %q saved.\n", key)
	return nil
}

func runContextClear(_ context.Context, cmd *cli.Command) error {
	cache, st, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	key := cmd.Args().First()
	if key == "" {
		if err := cache.ClearAll(); err != nil {
			return fmt.Errorf("clear context: %w", err)
		}
		fmt.Println("All context entries cleared.")
		return nil
	}

	if err := cache.Clear(key); err != nil {
		return fmt.Errorf("clear context: %w", err)
	}
	fmt.Printf("Context entry %q cleared.\n", key)
	return nil
}
