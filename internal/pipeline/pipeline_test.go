package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/config"
	"github.com/codemind/codegraph/internal/graph"
	"github.com/codemind/codegraph/internal/lang"
	"github.com/codemind/codegraph/internal/lsp"
	"github.com/codemind/codegraph/internal/store"
)

// downClient simulates a machine with no analysis servers installed.
type downClient struct {
	seen map[lang.Language]bool
}

func newDownClient() *downClient { return &downClient{seen: map[lang.Language]bool{}} }

func (c *downClient) OpenFile(ctx context.Context, l lang.Language, path, text string) error {
	c.seen[l] = true
	return lsp.ErrDegraded
}

func (c *downClient) CloseFile(ctx context.Context, l lang.Language, path string) error {
	return nil
}

func (c *downClient) Definition(ctx context.Context, l lang.Language, path string, line, character int) ([]lsp.Location, error) {
	return nil, lsp.ErrDegraded
}

func (c *downClient) Degraded() []lang.Language {
	var out []lang.Language
	for l := range c.seen {
		out = append(out, l)
	}
	return out
}

type countingGenerator struct{ calls int }

func (g *countingGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.calls++
	return fmt.Sprintf("generated text %d", g.calls), nil
}

func writeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"fileA.py": "# helpers\n\ndef foo():\n    return 1\n",
		"fileB.py": "# callers\n\ndef bar():\n    return foo()\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func findNodeByName(g *graph.Graph, name string) *graph.Node {
	for _, n := range g.Nodes {
		if n.Name == name && n.Kind == chunk.KindFunction {
			return n
		}
	}
	return nil
}

func TestRunDegradedServers(t *testing.T) {
	dir := writeRepo(t)
	cfg := config.Default()
	cfg.Summarizer.Enabled = false

	p, err := New(Options{RootDir: dir, Config: cfg, Client: newDownClient()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, g, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Files != 2 {
		t.Errorf("files = %d, want 2", report.Files)
	}
	if report.UnparsedFiles != 0 {
		t.Errorf("unparsed = %d", report.UnparsedFiles)
	}
	if len(report.DegradedLanguages) != 1 || report.DegradedLanguages[0] != lang.Python {
		t.Errorf("degraded = %v", report.DegradedLanguages)
	}

	foo := findNodeByName(g, "foo")
	bar := findNodeByName(g, "bar")
	if foo == nil || bar == nil {
		t.Fatalf("missing function nodes: foo=%v bar=%v", foo, bar)
	}

	// The name heuristic still links bar to foo, unresolved.
	var linked bool
	for _, e := range g.Out(bar.ID) {
		if e.To == foo.ID && e.Kind == graph.EdgeCalls {
			linked = true
			if e.Resolved {
				t.Error("heuristic edge marked resolved")
			}
		}
	}
	if !linked {
		t.Error("missing heuristic calls edge bar -> foo")
	}

	for _, e := range g.Edges {
		if g.Nodes[e.From] == nil || g.Nodes[e.To] == nil {
			t.Errorf("dangling edge %+v", e)
		}
	}
}

func TestRunWithSummariesAndPersistence(t *testing.T) {
	dir := writeRepo(t)
	cfg := config.Default()
	cfg.Output = filepath.Join(t.TempDir(), "graph.db")

	gen := &countingGenerator{}
	p, err := New(Options{RootDir: dir, Config: cfg, Client: newDownClient(), Generator: gen})
	if err != nil {
		t.Fatal(err)
	}
	report, g, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	bar := findNodeByName(g, "bar")
	if bar == nil || bar.Summary == "" {
		t.Error("bar has no summary")
	}
	if report.FailedGenerations != 0 {
		t.Errorf("failed generations = %d", report.FailedGenerations)
	}
	if report.CycleBrokenNodes != 0 {
		t.Errorf("cycle-broken = %d, want 0 for an acyclic graph", report.CycleBrokenNodes)
	}
	if gen.calls == 0 {
		t.Error("generator never called")
	}

	db, err := store.Open(cfg.Output)
	if err != nil {
		t.Fatalf("open output db: %v", err)
	}
	defer db.Close()
	nodes, err := db.CountNodes(report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if nodes != report.Nodes {
		t.Errorf("persisted nodes = %d, report says %d", nodes, report.Nodes)
	}
}

func TestRunCountsExternalEdges(t *testing.T) {
	dir := t.TempDir()
	src := "import missingmod\n\ndef go():\n    return missingmod.run()\n"
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Summarizer.Enabled = false

	p, err := New(Options{RootDir: dir, Config: cfg, Client: newDownClient()})
	if err != nil {
		t.Fatal(err)
	}
	report, g, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The import has no in-tree target, so it lands on a synthetic node.
	if report.ExternalEdges != 1 {
		t.Errorf("external edges = %d, want 1", report.ExternalEdges)
	}
	ext := g.Nodes["ext:missingmod"]
	if ext == nil || !ext.External {
		t.Error("missing synthetic node for the unmatched import")
	}
}

func TestRunCancelledIsPartial(t *testing.T) {
	dir := writeRepo(t)
	cfg := config.Default()
	cfg.Summarizer.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(Options{RootDir: dir, Config: cfg, Client: newDownClient()})
	if err != nil {
		t.Fatal(err)
	}
	report, _, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("cancelled run must not error, got %v", err)
	}
	if !report.Partial {
		t.Error("report not marked partial")
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Summarizer.Enabled = false

	p, err := New(Options{RootDir: t.TempDir(), Config: cfg, Client: newDownClient()})
	if err != nil {
		t.Fatal(err)
	}
	report, g, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Files != 0 || report.Nodes != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	if g == nil || len(g.Edges) != 0 {
		t.Error("expected an empty graph")
	}
}
