package graph

import (
	"sort"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/lang"
)

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeCalls        EdgeKind = "calls"
	EdgeImports      EdgeKind = "imports"
	EdgeInherits     EdgeKind = "inherits"
	EdgeInstantiates EdgeKind = "instantiates"
	EdgeUses         EdgeKind = "uses"
)

// EdgeKindForRef maps a reference kind to its edge kind.
func EdgeKindForRef(k chunk.RefKind) EdgeKind {
	switch k {
	case chunk.RefCall:
		return EdgeCalls
	case chunk.RefImport:
		return EdgeImports
	case chunk.RefInherit:
		return EdgeInherits
	case chunk.RefInstantiate:
		return EdgeInstantiates
	default:
		return EdgeUses
	}
}

// Origin is one source location a node was extracted from. A deduplicated
// node carries every origin that produced its fingerprint.
type Origin struct {
	UnitID      string
	Path        string
	StartLine   int
	EndLine     int
	Approximate bool
}

// Node is one deduplicated graph node, keyed by content fingerprint.
// Everything except Summary, CycleBroken, and SummaryFailed is immutable
// after assembly.
type Node struct {
	ID            string // content fingerprint, or ext:<symbol> for externals
	Kind          chunk.Kind
	Name          string
	QualifiedName string
	Language      lang.Language
	Signature     string
	Docstring     string
	Origins       []Origin
	// External marks a synthetic target outside the indexed unit set.
	External bool

	Summary       string
	CycleBroken   bool
	SummaryFailed bool
}

// Edge is one directed dependency. The graph is a multigraph: parallel
// edges of different kinds (or even the same kind from distinct references)
// are all retained.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
	// Resolved is true when an analysis server confirmed the target or an
	// import matched a module path exactly. Heuristic name matches and
	// external targets carry false.
	Resolved bool
	Line     int
}

// Dependency is the resolver's output, still keyed by unit ids. The
// assembler re-homes it onto fingerprint node ids. Exactly one of ToUnit
// and ToSymbol is set.
type Dependency struct {
	FromUnit string
	ToUnit   string
	// ToSymbol names a target outside the indexed unit set.
	ToSymbol string
	Kind     EdgeKind
	Resolved bool
	Line     int
}

// Graph is the assembled dependency multigraph.
type Graph struct {
	Nodes map[string]*Node
	Edges []*Edge

	out map[string][]*Edge
	in  map[string][]*Edge
}

func New() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

func (g *Graph) addEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// Out returns the edges leaving a node.
func (g *Graph) Out(id string) []*Edge { return g.out[id] }

// In returns the edges entering a node.
func (g *Graph) In(id string) []*Edge { return g.in[id] }

// Degree counts edges touching the node in either direction.
func (g *Graph) Degree(id string) int { return len(g.out[id]) + len(g.in[id]) }

// NodeIDs returns all node ids in lexicographic order. Every traversal that
// must be deterministic starts from this ordering.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
