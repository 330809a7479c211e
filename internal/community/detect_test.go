package community

import (
	"reflect"
	"testing"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/graph"
)

// clusteredGraph builds two dense 3-node clusters joined by one bridge edge.
func clusteredGraph() *graph.Graph {
	units := []*chunk.CodeUnit{}
	mk := func(fp string) *chunk.CodeUnit {
		return &chunk.CodeUnit{
			ID:          fp + ":1:2",
			Kind:        chunk.KindFunction,
			Name:        fp,
			Path:        fp + ".py",
			StartLine:   1,
			EndLine:     2,
			Fingerprint: fp,
		}
	}
	for _, fp := range []string{"a1", "a2", "a3", "b1", "b2", "b3"} {
		units = append(units, mk(fp))
	}

	dep := func(from, to string) graph.Dependency {
		return graph.Dependency{FromUnit: from + ":1:2", ToUnit: to + ":1:2", Kind: graph.EdgeCalls}
	}
	deps := []graph.Dependency{
		dep("a1", "a2"), dep("a2", "a3"), dep("a3", "a1"),
		dep("b1", "b2"), dep("b2", "b3"), dep("b3", "b1"),
		dep("a1", "b1"), // bridge
	}
	return graph.Assemble(units, deps).Graph
}

func TestDetectFindsClusters(t *testing.T) {
	res := Detect(clusteredGraph(), nil)

	if len(res.Communities) != 2 {
		t.Fatalf("communities = %d, want 2", len(res.Communities))
	}
	if res.Assignment["a1"] == res.Assignment["b1"] {
		t.Error("bridge endpoints landed in the same community")
	}
	if res.Assignment["a1"] != res.Assignment["a2"] || res.Assignment["a2"] != res.Assignment["a3"] {
		t.Error("cluster a split across communities")
	}
}

func TestDetectDeterministic(t *testing.T) {
	first := Detect(clusteredGraph(), nil)
	for i := 0; i < 5; i++ {
		again := Detect(clusteredGraph(), nil)
		if !reflect.DeepEqual(first.Assignment, again.Assignment) {
			t.Fatalf("run %d produced a different partition", i)
		}
		for j, c := range again.Communities {
			if !reflect.DeepEqual(c.Members, first.Communities[j].Members) {
				t.Fatalf("run %d community %d member order differs", i, j)
			}
		}
	}
}

func TestDetectEveryNodeAssignedOnce(t *testing.T) {
	g := clusteredGraph()
	res := Detect(g, nil)

	seen := make(map[string]int)
	for _, c := range res.Communities {
		for _, m := range c.Members {
			seen[m]++
		}
	}
	for _, id := range g.NodeIDs() {
		if g.Nodes[id].External {
			continue
		}
		if seen[id] != 1 {
			t.Errorf("node %s appears in %d communities", id, seen[id])
		}
	}
}

func TestDetectMiscCollectsSmallGroups(t *testing.T) {
	// One connected pair plus two isolated nodes, with MinSize 2: the
	// isolates fold into the misc community.
	units := []*chunk.CodeUnit{}
	for _, fp := range []string{"p1", "p2", "lone1", "lone2"} {
		units = append(units, &chunk.CodeUnit{
			ID: fp + ":1:2", Kind: chunk.KindFunction, Name: fp,
			Path: fp + ".py", StartLine: 1, EndLine: 2, Fingerprint: fp,
		})
	}
	deps := []graph.Dependency{
		{FromUnit: "p1:1:2", ToUnit: "p2:1:2", Kind: graph.EdgeCalls},
	}
	g := graph.Assemble(units, deps).Graph

	res := Detect(g, &Config{MinSize: 2})

	var misc *Community
	for _, c := range res.Communities {
		if c.Misc {
			misc = c
		}
	}
	if misc == nil {
		t.Fatal("no misc community")
	}
	if !reflect.DeepEqual(misc.Members, []string{"lone1", "lone2"}) {
		t.Errorf("misc members = %v", misc.Members)
	}
	if misc.ID != len(res.Communities)-1 {
		t.Errorf("misc id = %d, want last", misc.ID)
	}
}

func TestDetectCentralAndBoundary(t *testing.T) {
	res := Detect(clusteredGraph(), nil)

	for _, c := range res.Communities {
		if len(c.Central) == 0 {
			t.Errorf("community %d has no central members", c.ID)
		}
		if len(c.Central) > 5 {
			t.Errorf("community %d central cap exceeded: %d", c.ID, len(c.Central))
		}
	}

	// Only the bridge endpoints touch the other community.
	var boundary []string
	for _, c := range res.Communities {
		boundary = append(boundary, c.Boundary...)
	}
	want := map[string]bool{"a1": true, "b1": true}
	if len(boundary) != 2 || !want[boundary[0]] || !want[boundary[1]] {
		t.Errorf("boundary = %v, want exactly the bridge endpoints", boundary)
	}
}

func TestDetectClustersOverImportEdges(t *testing.T) {
	units := []*chunk.CodeUnit{
		{ID: "app.py:1:1", Kind: chunk.KindImport, Name: "util", Path: "app.py", StartLine: 1, EndLine: 1, Fingerprint: "imp"},
		{ID: "util.py:1:9", Kind: chunk.KindModule, Name: "util.py", Path: "util.py", StartLine: 1, EndLine: 9, Fingerprint: "mod"},
	}
	deps := []graph.Dependency{
		{FromUnit: "app.py:1:1", ToUnit: "util.py:1:9", Kind: graph.EdgeImports, Resolved: true},
	}
	g := graph.Assemble(units, deps).Graph

	res := Detect(g, &Config{MinSize: 2})
	if res.Assignment["imp"] != res.Assignment["mod"] {
		t.Errorf("import-connected nodes split across communities: %v", res.Assignment)
	}
	if len(res.Communities) != 1 || res.Communities[0].Misc {
		t.Errorf("communities = %+v, want one real community", res.Communities)
	}
}

func TestDetectIgnoresExternalNodes(t *testing.T) {
	units := []*chunk.CodeUnit{
		{ID: "a:1:2", Kind: chunk.KindFunction, Name: "a", Path: "a.py", StartLine: 1, EndLine: 2, Fingerprint: "a"},
		{ID: "b:1:2", Kind: chunk.KindFunction, Name: "b", Path: "b.py", StartLine: 1, EndLine: 2, Fingerprint: "b"},
	}
	deps := []graph.Dependency{
		{FromUnit: "a:1:2", ToUnit: "b:1:2", Kind: graph.EdgeCalls},
		{FromUnit: "a:1:2", ToSymbol: "json.dumps", Kind: graph.EdgeCalls},
	}
	g := graph.Assemble(units, deps).Graph

	res := Detect(g, nil)
	if _, ok := res.Assignment["ext:json.dumps"]; ok {
		t.Error("external node must not join a community")
	}
}
