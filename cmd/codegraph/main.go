package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codemind/codegraph/internal/config"
	"github.com/codemind/codegraph/internal/pipeline"
)

func main() {
	var (
		rootDir    = flag.String("root", ".", "repository root to index")
		configPath = flag.String("config", "", "path to YAML config file")
		output     = flag.String("output", "", "SQLite output path (overrides config)")
		logLevel   = flag.String("log-level", "", "debug, info, warn, or error (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(pipeline.Options{RootDir: *rootDir, Config: cfg})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	report, _, err := p.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	printReport(report)
	if report.Partial {
		os.Exit(2)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func printReport(r *pipeline.Report) {
	fmt.Printf("run %s\n", r.RunID)
	fmt.Printf("  files: %d (unparsed %d, fallback %d)\n", r.Files, r.UnparsedFiles, r.FallbackFiles)
	fmt.Printf("  graph: %d nodes, %d edges (orphaned %d, external %d)\n",
		r.Nodes, r.Edges, r.OrphanedEdges, r.ExternalEdges)
	fmt.Printf("  resolution: %d unresolved, %d failed queries\n", r.UnresolvedRefs, r.FailedQueries)
	if len(r.DegradedLanguages) > 0 {
		langs := make([]string, 0, len(r.DegradedLanguages))
		for _, l := range r.DegradedLanguages {
			langs = append(langs, string(l))
		}
		fmt.Printf("  degraded languages: %s\n", strings.Join(langs, ", "))
	}
	fmt.Printf("  communities: %d\n", r.Communities)
	fmt.Printf("  summaries: %d cycle-broken, %d failed generations\n", r.CycleBrokenNodes, r.FailedGenerations)
	if r.Partial {
		fmt.Println("  status: partial (cancelled)")
	}
}
