package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/community"
	"github.com/codemind/codegraph/internal/config"
	"github.com/codemind/codegraph/internal/discover"
	"github.com/codemind/codegraph/internal/graph"
	"github.com/codemind/codegraph/internal/lang"
	"github.com/codemind/codegraph/internal/llm"
	"github.com/codemind/codegraph/internal/lsp"
	"github.com/codemind/codegraph/internal/resolve"
	"github.com/codemind/codegraph/internal/store"
	"github.com/codemind/codegraph/internal/summarize"
)

// Report is the run's contract surface: what was indexed and what degraded.
type Report struct {
	RunID      string
	Root       string
	StartedAt  time.Time
	FinishedAt time.Time

	Files         int
	UnparsedFiles int
	FallbackFiles int
	Units         int
	Refs          int

	Nodes          int
	Edges          int
	OrphanedEdges  int
	ExternalEdges  int
	UnresolvedRefs int
	FailedQueries  int

	DegradedLanguages []lang.Language

	Communities       int
	CycleBrokenNodes  int
	FailedGenerations int

	// Partial is set when cancellation stopped the run with usable
	// intermediate state already produced.
	Partial bool
}

// Options wires the pipeline. Generator and Client default to the real
// implementations; tests substitute stubs.
type Options struct {
	RootDir   string
	Config    *config.Config
	Generator llm.Generator
	Client    resolve.ServerClient
}

// Pipeline runs the full construction: discover, extract, resolve,
// assemble, partition, summarize, persist.
type Pipeline struct {
	rootDir   string
	cfg       *config.Config
	generator llm.Generator
	client    resolve.ServerClient
	extractor *chunk.Extractor
}

func New(opts Options) (*Pipeline, error) {
	if opts.RootDir == "" {
		return nil, fmt.Errorf("missing root directory")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Pipeline{
		rootDir:   opts.RootDir,
		cfg:       cfg,
		generator: opts.Generator,
		client:    opts.Client,
		extractor: chunk.NewExtractor(&chunk.FallbackConfig{
			MaxUnitLines: cfg.Fallback.MaxUnitLines,
			WindowLines:  cfg.Fallback.WindowLines,
		}),
	}

	if p.client == nil {
		p.client = lsp.NewPool(&lsp.PoolConfig{
			RootDir:          opts.RootDir,
			QueryTimeout:     cfg.Resolver.QueryTimeout.Std(),
			StartTimeout:     cfg.Resolver.StartTimeout.Std(),
			IdleTimeout:      cfg.Resolver.IdleTimeout.Std(),
			BreakerThreshold: cfg.Resolver.BreakerThreshold,
		})
	}
	if p.generator == nil && cfg.Summarizer.Enabled && cfg.Summarizer.APIKey != "" {
		gen, err := llm.NewClient(&llm.Config{
			APIKey:            cfg.Summarizer.APIKey,
			BaseURL:           cfg.Summarizer.BaseURL,
			Model:             cfg.Summarizer.Model,
			RequestsPerSecond: cfg.Summarizer.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		p.generator = gen
	}
	return p, nil
}

// Run executes the pipeline. On cancellation the partial graph and report
// are returned alongside the context error.
func (p *Pipeline) Run(ctx context.Context) (*Report, *graph.Graph, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Root:      p.rootDir,
		StartedAt: time.Now(),
	}
	slog.Info("pipeline.start", "run", report.RunID, "root", p.rootDir)

	if pool, ok := p.client.(*lsp.Pool); ok {
		defer pool.CloseAll()
	}

	files, err := discover.Discover(ctx, p.rootDir, nil)
	if err != nil {
		return p.finish(report, nil, err)
	}
	report.Files = len(files)
	slog.Info("pass.discover", "files", len(files))

	units, refs, sources := p.extract(ctx, files, report)
	report.Units = len(units)
	report.Refs = len(refs)
	slog.Info("pass.extract", "units", len(units), "refs", len(refs),
		"unparsed", report.UnparsedFiles, "fallback", report.FallbackFiles)
	if ctx.Err() != nil {
		return p.finish(report, nil, ctx.Err())
	}

	resolved, err := resolve.New(p.client, p.rootDir).Resolve(ctx, units, refs, sources)
	if err != nil {
		return p.finish(report, nil, err)
	}
	report.UnresolvedRefs = resolved.Unresolved
	report.FailedQueries = resolved.Failed
	report.DegradedLanguages = resolved.Degraded

	assembled := graph.Assemble(units, resolved.Deps)
	g := assembled.Graph
	report.Nodes = len(g.Nodes)
	report.Edges = len(g.Edges)
	report.OrphanedEdges = assembled.Orphaned
	report.ExternalEdges = assembled.External
	slog.Info("pass.assemble", "nodes", report.Nodes, "edges", report.Edges,
		"orphaned", assembled.Orphaned, "external", assembled.External)
	if ctx.Err() != nil {
		return p.finish(report, g, ctx.Err())
	}

	comms := community.Detect(g, &community.Config{MinSize: p.cfg.Community.MinSize})
	report.Communities = len(comms.Communities)
	slog.Info("pass.communities", "communities", report.Communities)

	var summaries *summarize.Result
	if p.generator != nil {
		summaries, err = summarize.New(p.generator, &summarize.Config{
			MaxDepth:    p.cfg.Summarizer.MaxDepth,
			MaxRetries:  p.cfg.Summarizer.MaxRetries,
			CallTimeout: p.cfg.Summarizer.CallTimeout.Std(),
		}).Run(ctx, g, comms)
		if summaries != nil {
			report.CycleBrokenNodes = summaries.CycleBroken
			report.FailedGenerations = summaries.Failed
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return p.finish(report, g, err)
		}
	}

	if p.cfg.Output != "" {
		report.FinishedAt = time.Now()
		report.Partial = ctx.Err() != nil
		if err := p.persist(report, g, comms, summaries); err != nil {
			slog.Warn("pass.persist.err", "err", err)
		}
	}
	return p.finish(report, g, ctx.Err())
}

// extract parses files in parallel and flattens results in file order so
// downstream stages see a deterministic unit sequence.
func (p *Pipeline) extract(ctx context.Context, files []discover.FileInfo, report *Report) ([]*chunk.CodeUnit, []chunk.SymbolReference, map[string][]byte) {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*chunk.Result, len(files))
	contents := make([][]byte, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				slog.Warn("extract.read.err", "path", f.RelPath, "err", err)
				return nil
			}
			contents[i] = data
			results[i] = p.extractor.ExtractFile(f.RelPath, data, f.Language)
			return nil
		})
	}
	_ = g.Wait()

	var units []*chunk.CodeUnit
	var refs []chunk.SymbolReference
	sources := make(map[string][]byte, len(files))
	for i, res := range results {
		if res == nil {
			continue
		}
		sources[files[i].RelPath] = contents[i]
		if len(res.Units) == 0 {
			report.UnparsedFiles++
			continue
		}
		if res.Fallback {
			report.FallbackFiles++
		}
		units = append(units, res.Units...)
		refs = append(refs, res.Refs...)
	}
	return units, refs, sources
}

func (p *Pipeline) persist(report *Report, g *graph.Graph, comms *community.Result, summaries *summarize.Result) error {
	db, err := store.Open(p.cfg.Output)
	if err != nil {
		return err
	}
	defer db.Close()

	var communitySummaries map[int]string
	var global string
	if summaries != nil {
		communitySummaries = summaries.CommunitySummaries
		global = summaries.Global
	}
	return db.SaveRun(runRecord(report), g, comms, communitySummaries, global)
}

func runRecord(r *Report) *store.RunRecord {
	langs := make([]string, 0, len(r.DegradedLanguages))
	for _, l := range r.DegradedLanguages {
		langs = append(langs, string(l))
	}
	return &store.RunRecord{
		ID:                r.RunID,
		Root:              r.Root,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Files:             r.Files,
		UnparsedFiles:     r.UnparsedFiles,
		FallbackFiles:     r.FallbackFiles,
		OrphanedEdges:     r.OrphanedEdges,
		ExternalEdges:     r.ExternalEdges,
		UnresolvedRefs:    r.UnresolvedRefs,
		FailedQueries:     r.FailedQueries,
		DegradedLanguages: langs,
		CycleBrokenNodes:  r.CycleBrokenNodes,
		FailedGenerations: r.FailedGenerations,
		Partial:           r.Partial,
	}
}

func (p *Pipeline) finish(report *Report, g *graph.Graph, err error) (*Report, *graph.Graph, error) {
	report.FinishedAt = time.Now()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		report.Partial = true
		err = nil
	}
	slog.Info("pipeline.done",
		"run", report.RunID,
		"nodes", report.Nodes, "edges", report.Edges,
		"unparsed", report.UnparsedFiles, "orphaned", report.OrphanedEdges,
		"external", report.ExternalEdges,
		"unresolved", report.UnresolvedRefs, "degraded", len(report.DegradedLanguages),
		"cycle_broken", report.CycleBrokenNodes, "failed_generations", report.FailedGenerations,
		"partial", report.Partial,
		"elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report, g, err
}
