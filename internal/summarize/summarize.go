package summarize

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/codemind/codegraph/internal/community"
	"github.com/codemind/codegraph/internal/graph"
	"github.com/codemind/codegraph/internal/llm"
)

// Config controls traversal depth and retry policy.
type Config struct {
	// MaxDepth caps how deep dependency-first recursion goes; nodes at the
	// cap are summarized with whatever dependency summaries already exist.
	MaxDepth    int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration
}

func (c *Config) withDefaults() *Config {
	out := Config{
		MaxDepth:    10,
		MaxRetries:  3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		CallTimeout: 60 * time.Second,
	}
	if c != nil {
		if c.MaxDepth > 0 {
			out.MaxDepth = c.MaxDepth
		}
		if c.MaxRetries > 0 {
			out.MaxRetries = c.MaxRetries
		}
		if c.BaseBackoff > 0 {
			out.BaseBackoff = c.BaseBackoff
		}
		if c.MaxBackoff > 0 {
			out.MaxBackoff = c.MaxBackoff
		}
		if c.CallTimeout > 0 {
			out.CallTimeout = c.CallTimeout
		}
	}
	return &out
}

// Result carries the higher-level summaries and the run-report counts.
// Unit summaries land on the graph nodes themselves.
type Result struct {
	CommunitySummaries map[int]string
	Global             string

	Generated   int
	CycleBroken int
	Failed      int
}

// Summarizer writes bottom-up summaries: dependencies before dependents,
// then communities, then one global overview.
type Summarizer struct {
	gen llm.Generator
	cfg *Config
}

func New(gen llm.Generator, cfg *Config) *Summarizer {
	return &Summarizer{gen: gen, cfg: cfg.withDefaults()}
}

// Run summarizes the whole graph. Individual generation failures mark the
// node and continue; only cancellation stops the run early, leaving partial
// summaries in place.
func (s *Summarizer) Run(ctx context.Context, g *graph.Graph, comms *community.Result) (*Result, error) {
	res := &Result{CommunitySummaries: make(map[int]string)}
	start := time.Now()

	for _, id := range g.NodeIDs() {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.summarizeNode(ctx, g, id, map[string]bool{}, 0, res)
	}

	for _, c := range comms.Communities {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.summarizeCommunity(ctx, g, c, res)
	}

	s.summarizeGlobal(ctx, comms, res)

	slog.Info("summarize.done",
		"generated", res.Generated, "cycle_broken", res.CycleBroken,
		"failed", res.Failed, "elapsed", time.Since(start))
	return res, ctx.Err()
}

// summarizeNode fills a node's summary depth-first. The path set tracks the
// current traversal only; a node revisited on its own path gets a
// metadata-only summary and the cycle-broken mark, which terminates any
// cycle after one extra generation.
func (s *Summarizer) summarizeNode(ctx context.Context, g *graph.Graph, id string, path map[string]bool, depth int, res *Result) {
	n := g.Nodes[id]
	if n == nil || n.External || n.Summary != "" || n.SummaryFailed || ctx.Err() != nil {
		return
	}

	if path[id] {
		s.generateInto(ctx, n, metadataPrompt(n), res)
		if n.Summary != "" {
			n.CycleBroken = true
			res.CycleBroken++
		}
		return
	}
	path[id] = true
	defer delete(path, id)

	var deps []depSummary
	for _, e := range dependencyEdges(g, id) {
		target := g.Nodes[e.To]
		if target == nil || target.External {
			continue
		}
		if depth < s.cfg.MaxDepth {
			s.summarizeNode(ctx, g, e.To, path, depth+1, res)
		}
		deps = append(deps, depSummary{name: target.QualifiedName, summary: target.Summary})
	}

	if n.Summary != "" {
		// A cycle through this node already produced its summary.
		return
	}
	s.generateInto(ctx, n, unitPrompt(n, deps), res)
}

// dependencyEdges returns the node's behavioral out-edges in deterministic
// order, one per distinct target.
func dependencyEdges(g *graph.Graph, id string) []*graph.Edge {
	seen := make(map[string]bool)
	var out []*graph.Edge
	for _, e := range g.Out(id) {
		switch e.Kind {
		case graph.EdgeCalls, graph.EdgeUses, graph.EdgeInstantiates:
		default:
			continue
		}
		if seen[e.To] {
			continue
		}
		seen[e.To] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

func (s *Summarizer) summarizeCommunity(ctx context.Context, g *graph.Graph, c *community.Community, res *Result) {
	var central []depSummary
	for _, id := range c.Central {
		if n := g.Nodes[id]; n != nil {
			central = append(central, depSummary{name: n.QualifiedName, summary: n.Summary})
		}
	}
	var boundary []string
	for _, id := range c.Boundary {
		if n := g.Nodes[id]; n != nil {
			boundary = append(boundary, n.QualifiedName)
		}
	}

	out, ok := s.generate(ctx, communityPrompt(central, boundary, c.Misc), res)
	if ok {
		res.CommunitySummaries[c.ID] = out
	}
}

func (s *Summarizer) summarizeGlobal(ctx context.Context, comms *community.Result, res *Result) {
	var parts []string
	for _, c := range comms.Communities {
		if summ := res.CommunitySummaries[c.ID]; summ != "" {
			parts = append(parts, summ)
		}
	}
	if len(parts) == 0 {
		return
	}
	if out, ok := s.generate(ctx, globalPrompt(parts), res); ok {
		res.Global = out
	}
}

func (s *Summarizer) generateInto(ctx context.Context, n *graph.Node, prompt string, res *Result) {
	out, ok := s.generate(ctx, prompt, res)
	if ok {
		n.Summary = out
	} else {
		n.SummaryFailed = true
	}
}

// generate runs one generation with capped exponential backoff on retryable
// errors. A final failure counts toward the run report and yields ok=false;
// the caller's summary stays empty.
func (s *Summarizer) generate(ctx context.Context, prompt string, res *Result) (string, bool) {
	backoff := s.cfg.BaseBackoff
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		out, err := s.gen.Generate(callCtx, systemPrompt, prompt)
		cancel()

		if err == nil && out != "" {
			res.Generated++
			return out, true
		}
		if ctx.Err() != nil || attempt >= s.cfg.MaxRetries || (err != nil && !llm.Retryable(err)) {
			slog.Warn("summarize.generate.err", "attempt", attempt+1, "err", err)
			res.Failed++
			return "", false
		}

		select {
		case <-ctx.Done():
			res.Failed++
			return "", false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}
