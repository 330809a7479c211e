package graph

import (
	"log/slog"
	"sort"

	"github.com/codemind/codegraph/internal/chunk"
)

// AssembleResult carries the graph plus the counts the run report needs.
type AssembleResult struct {
	Graph    *Graph
	Orphaned int
	External int
}

// Assemble builds the deduplicated multigraph from extracted units and
// resolved dependencies. Units sharing a fingerprint collapse into one node
// whose origin list is the union; dependencies are re-homed from unit ids to
// node ids; an edge whose endpoint has no node is dropped and counted as
// orphaned. After Assemble returns, no edge in the graph dangles.
func Assemble(units []*chunk.CodeUnit, deps []Dependency) *AssembleResult {
	g := New()
	unitNode := make(map[string]string, len(units))

	for _, u := range units {
		origin := Origin{
			UnitID:      u.ID,
			Path:        u.Path,
			StartLine:   u.StartLine,
			EndLine:     u.EndLine,
			Approximate: u.Approximate,
		}
		unitNode[u.ID] = u.Fingerprint

		if n, ok := g.Nodes[u.Fingerprint]; ok {
			n.Origins = append(n.Origins, origin)
			continue
		}
		g.Nodes[u.Fingerprint] = &Node{
			ID:            u.Fingerprint,
			Kind:          u.Kind,
			Name:          u.Name,
			QualifiedName: u.QualifiedName,
			Language:      u.Language,
			Signature:     u.Signature,
			Docstring:     u.Docstring,
			Origins:       []Origin{origin},
		}
	}

	// Stable origin order regardless of extraction scheduling.
	for _, n := range g.Nodes {
		sort.Slice(n.Origins, func(i, j int) bool { return n.Origins[i].UnitID < n.Origins[j].UnitID })
	}

	res := &AssembleResult{Graph: g}
	for _, d := range deps {
		from, ok := unitNode[d.FromUnit]
		if !ok {
			res.Orphaned++
			continue
		}

		var to string
		switch {
		case d.ToUnit != "":
			to, ok = unitNode[d.ToUnit]
			if !ok {
				res.Orphaned++
				continue
			}
		case d.ToSymbol != "":
			to = g.externalNode(d.ToSymbol)
			res.External++
		default:
			res.Orphaned++
			continue
		}

		if from == to {
			// Self edges carry no dependency information.
			continue
		}
		g.addEdge(&Edge{From: from, To: to, Kind: d.Kind, Resolved: d.Resolved, Line: d.Line})
	}

	slog.Debug("graph.assemble.done",
		"nodes", len(g.Nodes), "edges", len(g.Edges),
		"orphaned", res.Orphaned, "external", res.External)
	return res
}

// externalNode returns the synthetic node for a symbol outside the indexed
// unit set, creating it on first sight. External edges stay resolved=false.
func (g *Graph) externalNode(symbol string) string {
	id := "ext:" + symbol
	if _, ok := g.Nodes[id]; !ok {
		g.Nodes[id] = &Node{
			ID:            id,
			Kind:          chunk.KindContent,
			Name:          symbol,
			QualifiedName: symbol,
			External:      true,
		}
	}
	return id
}
