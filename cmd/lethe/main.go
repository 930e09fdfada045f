// Command lethe runs the rule-driven memory engine: one-shot evaluation runs
// with CSV snapshots, ranked retrieval, record ingest, and the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lethehq/lethe/internal/config"
	"github.com/lethehq/lethe/internal/export"
	"github.com/lethehq/lethe/internal/importer"
	"github.com/lethehq/lethe/internal/ruleset"
	"github.com/lethehq/lethe/internal/server"
	"github.com/lethehq/lethe/internal/services"
	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/internal/storage/postgres"
	"github.com/lethehq/lethe/internal/storage/sqlite"
	"github.com/lethehq/lethe/pkg/types"
)

const usage = `Usage: lethe <command> [flags]

Commands:
  run       Apply the ruleset to the stored records, write CSV snapshots
  retrieve  Rank stored records for a query
  ingest    Add records from a JSON file or a directory of Markdown notes
  serve     Start the HTTP server

Configuration is read from LETHE_* environment variables.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var cmdErr error
	switch os.Args[1] {
	case "run":
		cmdErr = runCmd(cfg, os.Args[2:])
	case "retrieve":
		cmdErr = retrieveCmd(cfg, os.Args[2:])
	case "ingest":
		cmdErr = ingestCmd(cfg, os.Args[2:])
	case "serve":
		cmdErr = serveCmd(cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if cmdErr != nil {
		log.Fatalf("lethe %s: %v", os.Args[1], cmdErr)
	}
}

// openStore builds the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewStore(cfg.Storage.DataPath + "/lethe.db")
	}
}

// newRunner loads the ruleset and wires the engine to storage.
func newRunner(cfg *config.Config, withExport bool) (*services.Runner, storage.Store, error) {
	set, err := ruleset.Load(cfg.Rules.RulesetPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	var exporter *export.Exporter
	if withExport {
		exporter, err = export.NewExporter(cfg.Export.ExportPath, cfg.Export.ExportKeep)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	return services.NewRunner(store, set, exporter), store, nil
}

func runCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	event := fs.String("event", cfg.Rules.Event, "Context event for reinforce rules")
	at := fs.String("at", "", "Evaluation time (RFC3339, default: now)")
	trust := fs.String("trust", "", "Trust override for forget rules (default: per-record trust)")
	fs.Parse(args)

	evalCtx := types.Context{Now: time.Now().UTC(), Event: *event}
	if *at != "" {
		parsed, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("invalid -at value: %w", err)
		}
		evalCtx.Now = parsed
	}
	if *trust != "" {
		v, err := strconv.ParseFloat(*trust, 64)
		if err != nil {
			return fmt.Errorf("invalid -trust value: %w", err)
		}
		evalCtx.Trust = &v
	}

	runner, store, err := newRunner(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := runner.Run(context.Background(), evalCtx)
	if err != nil {
		return err
	}

	if summary.Snapshots != nil {
		fmt.Printf("Done. Wrote %s, %s, %s\n",
			summary.Snapshots.Before, summary.Snapshots.After, summary.Snapshots.Audit)
	}
	return nil
}

func retrieveCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	query := fs.String("query", "", "Search query")
	topk := fs.Int("topk", 0, "Maximum results (default: ruleset setting)")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("-query is required")
	}

	runner, store, err := newRunner(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := runner.Retrieve(context.Background(), *query, *topk, time.Now().UTC())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"results": results})
}

func ingestCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "JSON file holding a record array")
	dir := fs.String("dir", "", "Directory of Markdown notes to import")
	fs.Parse(args)

	if (*file == "") == (*dir == "") {
		return fmt.Errorf("exactly one of -file or -dir is required")
	}

	var records []*types.Record
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		var decoded []types.Record
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("invalid record file: %w", err)
		}
		for i := range decoded {
			records = append(records, &decoded[i])
		}
	} else {
		var err error
		records, err = importer.LoadDir(*dir)
		if err != nil {
			return err
		}
	}

	runner, store, err := newRunner(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for i, record := range records {
		if _, err := runner.Ingest(ctx, record); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	fmt.Printf("Ingested %d records\n", len(records))
	return nil
}

func serveCmd(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Parse(args)

	runner, store, err := newRunner(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := server.Start(ctx, cfg, runner)
	if err != nil {
		return err
	}
	log.Printf("Lethe running at http://%s", addr)

	// Rule edits take effect without a restart.
	watcher, err := ruleset.WatchFile(cfg.Rules.RulesetPath, runner.Reload)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
	return nil
}
