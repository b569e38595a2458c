// Package main is the entry point for the agtrace CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lanegrid/agtrace/internal/config"
	"github.com/lanegrid/agtrace/internal/index"
	"github.com/lanegrid/agtrace/internal/logging"
	"github.com/lanegrid/agtrace/internal/project"
	"github.com/lanegrid/agtrace/internal/provider"
	"github.com/lanegrid/agtrace/internal/scan"
	"github.com/lanegrid/agtrace/internal/watch"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for any additional env vars
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agtrace"),
		kong.Description("Observe AI coding-agent sessions from their local logs."),
		kongVars(),
	)
	logging.SetVerbosity(cli.Verbose)

	cfgPath := cli.Config
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		ctx.FatalIfErrorf(err)
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	ctx.FatalIfErrorf(err)

	switch ctx.Command() {
	case "init":
		ctx.FatalIfErrorf(runInit(cfg, cfgPath))
	case "index":
		ctx.FatalIfErrorf(runIndex(cfg, &cli.Index))
	case "sessions":
		ctx.FatalIfErrorf(runSessions(cfg, &cli.Sessions))
	case "show <session>":
		ctx.FatalIfErrorf(runShow(cfg, &cli.Show))
	case "projects":
		ctx.FatalIfErrorf(runProjects(cfg))
	case "watch <provider>":
		ctx.FatalIfErrorf(runWatch(cfg, &cli.Watch))
	case "doctor":
		ctx.FatalIfErrorf(runDoctor(cfg, &cli.Doctor))
	case "version":
		fmt.Printf("agtrace %s (%s, built %s)\n", version, commit, buildTime)
	default:
		ctx.Fatalf("unknown command: %s", ctx.Command())
	}
}

func openStore(cfg *config.Config) (*index.Store, error) {
	path, err := cfg.IndexPath()
	if err != nil {
		return nil, err
	}
	return index.Open(path)
}

func runInit(cfg *config.Config, cfgPath string) error {
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}
	if _, err := cfg.IndexPath(); err != nil {
		return err
	}
	fmt.Printf("Initialized config at %s\n", cfgPath)
	return nil
}

func scanTargets(cfg *config.Config) ([]scan.Target, error) {
	roots, err := cfg.EnabledRoots()
	if err != nil {
		return nil, err
	}
	targets := make([]scan.Target, 0, len(roots))
	for _, pair := range roots {
		adapter, err := provider.Create(pair[0])
		if err != nil {
			return nil, err
		}
		targets = append(targets, scan.Target{Adapter: adapter, LogRoot: pair[1]})
	}
	return targets, nil
}

func resolveScope(root string, allProjects bool) (string, error) {
	if allProjects {
		return "", nil
	}
	discovered, err := project.DiscoverRoot(root)
	if err != nil {
		return "", err
	}
	return project.HashFromRoot(discovered), nil
}

func runIndex(cfg *config.Config, cmd *IndexCmd) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	hash, err := resolveScope(cmd.Project, cmd.AllProjects)
	if err != nil {
		return err
	}
	targets, err := scanTargets(cfg)
	if err != nil {
		return err
	}

	driver := scan.NewDriver(store)
	result, err := driver.Run(context.Background(), targets, scan.Options{
		ProjectHash: hash,
		Force:       cmd.Force,
	}, func(p scan.Progress) {
		switch v := p.(type) {
		case scan.ProviderScanning:
			fmt.Printf("Scanning %s...\n", v.Name)
		case scan.LogRootMissing:
			fmt.Printf("Skipping %s: log root %s does not exist\n", v.Name, v.Root)
		case scan.ProviderSessionCount:
			fmt.Printf("  %s: %d sessions\n", v.Name, v.Count)
		}
	})
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d sessions (%d files scanned, %d skipped, %d failures)\n",
		result.TotalSessions, result.ScannedFiles, result.SkippedFiles, result.Failures)
	return nil
}

func runSessions(cfg *config.Config, cmd *SessionsCmd) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	hash, err := resolveScope(cmd.Project, cmd.AllProjects)
	if err != nil {
		return err
	}
	page, err := store.ListSessions(hash, cmd.Limit, cmd.Cursor)
	if err != nil {
		return err
	}
	if cmd.JSON {
		return json.NewEncoder(os.Stdout).Encode(page.Sessions)
	}
	for _, rec := range page.Sessions {
		start := "-"
		if rec.StartTS != nil {
			start = rec.StartTS.Format(time.RFC3339)
		}
		valid := ""
		if !rec.IsValid {
			valid = " [invalid]"
		}
		fmt.Printf("%-8s  %-7s  %-25s  %s%s\n",
			rec.SessionID[:min(8, len(rec.SessionID))], rec.Provider, start, rec.Snippet, valid)
	}
	if page.NextCursor != "" {
		fmt.Printf("\nMore: --cursor %s\n", page.NextCursor)
	}
	return nil
}

func resolveSessionID(store *index.Store, ref string) (string, error) {
	if _, err := store.GetSession(ref); err == nil {
		return ref, nil
	}
	return store.FindSessionByPrefix(ref)
}

func runShow(cfg *config.Config, cmd *ShowCmd) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID, err := resolveSessionID(store, cmd.Session)
	if err != nil {
		return err
	}
	if cmd.Raw {
		files, err := store.RawFiles(sessionID)
		if err != nil {
			return err
		}
		for _, file := range files {
			fmt.Printf("==> %s\n%s\n", file.Path, file.Content)
		}
		return nil
	}

	session, err := scan.LoadSession(store, sessionID)
	if err != nil {
		return err
	}
	if cmd.JSON {
		return json.NewEncoder(os.Stdout).Encode(session)
	}
	printSession(session)
	return nil
}

func runProjects(cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects()
	if err != nil {
		return err
	}
	for _, p := range projects {
		count, err := store.CountSessionsForProject(p.Hash)
		if err != nil {
			return err
		}
		fmt.Printf("%-16s  %4d sessions  %s\n", p.Hash[:min(16, len(p.Hash))], count, p.RootPath)
	}
	return nil
}

func runWatch(cfg *config.Config, cmd *WatchCmd) error {
	adapter, err := provider.Create(cmd.Provider)
	if err != nil {
		return err
	}
	meta, ok := provider.Get(adapter.Name())
	if !ok {
		return fmt.Errorf("%w: %q", provider.ErrUnknownProvider, cmd.Provider)
	}
	root := meta.DefaultLogRoot
	if pc, ok := cfg.Providers[adapter.Name()]; ok && pc.LogRoot != "" {
		root = pc.LogRoot
	}
	expanded, err := provider.ExpandHome(root)
	if err != nil {
		return err
	}

	watcher := watch.New(watch.Config{
		Adapter:   adapter,
		LogRoot:   expanded,
		SessionID: cmd.Session,
		Model:     cmd.Model,
	})
	events := watcher.Subscribe()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go watcher.Run(ctx)

	for ev := range events {
		printStreamEvent(ev)
	}
	return nil
}

func runDoctor(cfg *config.Config, cmd *DoctorCmd) error {
	roots, err := cfg.EnabledRoots()
	if err != nil {
		return err
	}
	for _, pair := range roots {
		if cmd.Provider != "" && pair[0] != cmd.Provider {
			continue
		}
		if _, err := os.Stat(pair[1]); os.IsNotExist(err) {
			fmt.Printf("%s: log root %s does not exist\n", pair[0], pair[1])
			continue
		}
		adapter, err := provider.Create(pair[0])
		if err != nil {
			return err
		}
		result, err := scan.Doctor(adapter, pair[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d/%d files parse", result.ProviderName, result.Successful, result.TotalFiles)
		if result.SuppressedRecords > 0 {
			fmt.Printf(" (%d records suppressed)", result.SuppressedRecords)
		}
		fmt.Println()
		for failureType, examples := range result.Failures {
			for _, ex := range examples {
				fmt.Printf("  %s: %s (%s)\n", failureType, ex.Path, ex.Reason)
			}
		}
	}
	return nil
}
