package summarize

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/community"
	"github.com/codemind/codegraph/internal/graph"
)

// scriptedGenerator records prompts and answers them in order.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	// fail makes every call return a non-retryable error.
	fail bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", context.Canceled
	}
	g.prompts = append(g.prompts, user)
	return fmt.Sprintf("summary %d", len(g.prompts)), nil
}

func buildGraph(t *testing.T, deps []graph.Dependency, names ...string) *graph.Graph {
	t.Helper()
	var units []*chunk.CodeUnit
	for _, n := range names {
		units = append(units, &chunk.CodeUnit{
			ID:            n + ".py:1:2",
			Kind:          chunk.KindFunction,
			Name:          n,
			QualifiedName: n + "." + n,
			Path:          n + ".py",
			StartLine:     1,
			EndLine:       2,
			Fingerprint:   n,
		})
	}
	return graph.Assemble(units, deps).Graph
}

func emptyPartition() *community.Result {
	return &community.Result{Assignment: map[string]int{}}
}

func TestSummarizeDependencyBeforeDependent(t *testing.T) {
	// bar calls foo: foo's summary must exist before bar's prompt is built,
	// and bar's prompt must contain it.
	g := buildGraph(t, []graph.Dependency{
		{FromUnit: "bar.py:1:2", ToUnit: "foo.py:1:2", Kind: graph.EdgeCalls, Resolved: true},
	}, "foo", "bar")

	gen := &scriptedGenerator{}
	res, err := New(gen, nil).Run(context.Background(), g, emptyPartition())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Generated != 2 {
		t.Fatalf("generated = %d, want 2", res.Generated)
	}

	fooSummary := g.Nodes["foo"].Summary
	if fooSummary == "" {
		t.Fatal("foo has no summary")
	}
	var barPrompt string
	for _, p := range gen.prompts {
		if strings.Contains(p, "bar.bar") {
			barPrompt = p
		}
	}
	if barPrompt == "" {
		t.Fatal("no prompt generated for bar")
	}
	if !strings.Contains(barPrompt, fooSummary) {
		t.Errorf("bar's prompt does not include foo's summary:\n%s", barPrompt)
	}
}

func TestSummarizeCycleTerminates(t *testing.T) {
	g := buildGraph(t, []graph.Dependency{
		{FromUnit: "a.py:1:2", ToUnit: "b.py:1:2", Kind: graph.EdgeCalls},
		{FromUnit: "b.py:1:2", ToUnit: "a.py:1:2", Kind: graph.EdgeCalls},
	}, "a", "b")

	gen := &scriptedGenerator{}
	res, err := New(gen, nil).Run(context.Background(), g, emptyPartition())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	na, nb := g.Nodes["a"], g.Nodes["b"]
	if na.Summary == "" || nb.Summary == "" {
		t.Fatal("both cycle members need non-empty summaries")
	}
	broken := 0
	if na.CycleBroken {
		broken++
	}
	if nb.CycleBroken {
		broken++
	}
	if broken != 1 {
		t.Errorf("cycle-broken nodes = %d, want exactly 1", broken)
	}
	if res.CycleBroken != 1 {
		t.Errorf("report cycle-broken = %d, want 1", res.CycleBroken)
	}
}

func TestSummarizeSelfLoopGraphDoesNotRecurse(t *testing.T) {
	// A three-node ring exercises deeper path tracking.
	g := buildGraph(t, []graph.Dependency{
		{FromUnit: "a.py:1:2", ToUnit: "b.py:1:2", Kind: graph.EdgeCalls},
		{FromUnit: "b.py:1:2", ToUnit: "c.py:1:2", Kind: graph.EdgeCalls},
		{FromUnit: "c.py:1:2", ToUnit: "a.py:1:2", Kind: graph.EdgeCalls},
	}, "a", "b", "c")

	res, err := New(&scriptedGenerator{}, nil).Run(context.Background(), g, emptyPartition())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if g.Nodes[id].Summary == "" {
			t.Errorf("node %s missing summary", id)
		}
	}
	if res.CycleBroken != 1 {
		t.Errorf("cycle-broken = %d, want 1", res.CycleBroken)
	}
}

func TestSummarizeFailureMarksNodeAndContinues(t *testing.T) {
	g := buildGraph(t, nil, "a", "b")

	gen := &scriptedGenerator{fail: true}
	res, err := New(gen, nil).Run(context.Background(), g, emptyPartition())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 2 {
		t.Errorf("failed = %d, want 2", res.Failed)
	}
	for _, id := range []string{"a", "b"} {
		n := g.Nodes[id]
		if !n.SummaryFailed {
			t.Errorf("node %s not marked failed", id)
		}
		if n.Summary != "" {
			t.Errorf("failed node %s has summary %q, want empty", id, n.Summary)
		}
	}
}

func TestSummarizeSkipsExternalNodes(t *testing.T) {
	g := buildGraph(t, []graph.Dependency{
		{FromUnit: "a.py:1:2", ToSymbol: "requests.get", Kind: graph.EdgeCalls},
	}, "a")

	gen := &scriptedGenerator{}
	if _, err := New(gen, nil).Run(context.Background(), g, emptyPartition()); err != nil {
		t.Fatal(err)
	}
	if ext := g.Nodes["ext:requests.get"]; ext.Summary != "" {
		t.Error("external node must not be summarized")
	}
}

func TestSummarizeCommunitiesAndGlobal(t *testing.T) {
	g := buildGraph(t, []graph.Dependency{
		{FromUnit: "a.py:1:2", ToUnit: "b.py:1:2", Kind: graph.EdgeCalls},
	}, "a", "b")

	comms := &community.Result{
		Communities: []*community.Community{
			{ID: 0, Members: []string{"a", "b"}, Central: []string{"a", "b"}, Boundary: []string{"a"}},
		},
		Assignment: map[string]int{"a": 0, "b": 0},
	}

	gen := &scriptedGenerator{}
	res, err := New(gen, nil).Run(context.Background(), g, comms)
	if err != nil {
		t.Fatal(err)
	}
	if res.CommunitySummaries[0] == "" {
		t.Error("missing community summary")
	}
	if res.Global == "" {
		t.Error("missing global summary")
	}

	// The community prompt carries member summaries and boundary names;
	// the global prompt carries the community summary.
	var commPrompt, globalPrompt string
	for _, p := range gen.prompts {
		if strings.Contains(p, "group of related code units") {
			commPrompt = p
		}
		if strings.Contains(p, "overview of this codebase") {
			globalPrompt = p
		}
	}
	if commPrompt == "" || !strings.Contains(commPrompt, g.Nodes["a"].QualifiedName) {
		t.Errorf("community prompt = %q", commPrompt)
	}
	if globalPrompt == "" || !strings.Contains(globalPrompt, res.CommunitySummaries[0]) {
		t.Errorf("global prompt missing community summary")
	}
}
