package community

import (
	"log/slog"
	"sort"

	"github.com/codemind/codegraph/internal/graph"
)

// Config controls partitioning.
type Config struct {
	// MinSize is the smallest standalone community; smaller groups fold
	// into the trailing misc community.
	MinSize       int
	MaxIterations int
}

func (c *Config) withDefaults() *Config {
	out := Config{MinSize: 2, MaxIterations: 50}
	if c != nil {
		if c.MinSize > 0 {
			out.MinSize = c.MinSize
		}
		if c.MaxIterations > 0 {
			out.MaxIterations = c.MaxIterations
		}
	}
	return &out
}

// Community is one partition cell.
type Community struct {
	ID      int
	Members []string // node ids, sorted
	// Central holds the members with the highest intra-community degree,
	// capped at 5. These feed the community summary.
	Central []string
	// Boundary holds members with at least one edge crossing the partition.
	Boundary []string
	// Misc marks the catch-all cell of below-threshold groups.
	Misc bool
}

// Result is a complete partition: every non-external node appears in
// exactly one community.
type Result struct {
	Communities []*Community
	// Assignment maps node id to community id.
	Assignment map[string]int
}

// Detect partitions the graph by greedy modularity optimization. The
// procedure is deterministic: nodes are visited in lexicographic id order
// and equal-gain moves keep the lower candidate community. Two runs over
// the same graph produce the same partition.
func Detect(g *graph.Graph, cfg *Config) *Result {
	cfg = cfg.withDefaults()

	nodeIDs := internalNodeIDs(g)
	adj := buildAdjacency(g, nodeIDs)

	nodeComm := make(map[string]int, len(nodeIDs))
	for i, id := range nodeIDs {
		nodeComm[id] = i
	}

	totalDegree := 0
	for _, neighbors := range adj {
		totalDegree += len(neighbors)
	}
	m := float64(totalDegree) / 2.0
	if m == 0 {
		m = 1
	}

	for iter, improved := 0, true; improved && iter < cfg.MaxIterations; iter++ {
		improved = iterate(nodeIDs, adj, nodeComm, m)
	}

	res := build(nodeIDs, adj, nodeComm, cfg.MinSize)
	slog.Debug("community.detect.done", "nodes", len(nodeIDs), "communities", len(res.Communities))
	return res
}

// internalNodeIDs lists non-external nodes in sorted order.
func internalNodeIDs(g *graph.Graph) []string {
	var ids []string
	for _, id := range g.NodeIDs() {
		if !g.Nodes[id].External {
			ids = append(ids, id)
		}
	}
	return ids
}

// buildAdjacency flattens the multigraph to an undirected simple graph over
// internal nodes. Edge kind and direction carry no weight in the partition.
func buildAdjacency(g *graph.Graph, nodeIDs []string) map[string]map[string]bool {
	internal := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		internal[id] = true
	}

	adj := make(map[string]map[string]bool, len(nodeIDs))
	for _, e := range g.Edges {
		if !internal[e.From] || !internal[e.To] {
			continue
		}
		if adj[e.From] == nil {
			adj[e.From] = make(map[string]bool)
		}
		if adj[e.To] == nil {
			adj[e.To] = make(map[string]bool)
		}
		adj[e.From][e.To] = true
		adj[e.To][e.From] = true
	}
	return adj
}

// iterate runs one greedy pass. Returns true if any node moved.
func iterate(nodeIDs []string, adj map[string]map[string]bool, nodeComm map[string]int, m float64) bool {
	improved := false
	for _, id := range nodeIDs {
		current := nodeComm[id]
		ki := float64(len(adj[id]))

		candidates := neighborCommunities(id, adj, nodeComm)
		bestComm, bestGain := current, 0.0
		for _, comm := range candidates {
			if comm == current {
				continue
			}
			gain := modularityGain(id, comm, adj, nodeComm, ki, m)
			if gain > bestGain {
				bestGain = gain
				bestComm = comm
			}
		}

		if bestComm != current && bestGain > 1e-10 {
			nodeComm[id] = bestComm
			improved = true
		}
	}
	return improved
}

// neighborCommunities returns the candidate communities in ascending order
// so ties resolve to the lowest id.
func neighborCommunities(id string, adj map[string]map[string]bool, nodeComm map[string]int) []int {
	seen := make(map[int]bool)
	for neighbor := range adj[id] {
		seen[nodeComm[neighbor]] = true
	}
	out := make([]int, 0, len(seen))
	for comm := range seen {
		out = append(out, comm)
	}
	sort.Ints(out)
	return out
}

func modularityGain(id string, targetComm int, adj map[string]map[string]bool, nodeComm map[string]int, ki, m float64) float64 {
	kiIn := 0.0
	sumTot := 0.0
	for otherID, otherComm := range nodeComm {
		if otherComm != targetComm {
			continue
		}
		if adj[id][otherID] {
			kiIn++
		}
		sumTot += float64(len(adj[otherID]))
	}
	return kiIn/m - ki*sumTot/(2*m*m)
}

// build groups the assignment, folds below-threshold groups into a misc
// community, renumbers by smallest member id, and computes central and
// boundary members.
func build(nodeIDs []string, adj map[string]map[string]bool, nodeComm map[string]int, minSize int) *Result {
	groups := make(map[int][]string)
	for _, id := range nodeIDs {
		groups[nodeComm[id]] = append(groups[nodeComm[id]], id)
	}

	var kept [][]string
	var misc []string
	for _, members := range groups {
		sort.Strings(members)
		if len(members) >= minSize {
			kept = append(kept, members)
		} else {
			misc = append(misc, members...)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i][0] < kept[j][0] })
	sort.Strings(misc)

	res := &Result{Assignment: make(map[string]int, len(nodeIDs))}
	for i, members := range kept {
		res.Communities = append(res.Communities, newCommunity(i, members, adj, false))
		for _, id := range members {
			res.Assignment[id] = i
		}
	}
	if len(misc) > 0 {
		id := len(kept)
		res.Communities = append(res.Communities, newCommunity(id, misc, adj, true))
		for _, m := range misc {
			res.Assignment[m] = id
		}
	}
	return res
}

func newCommunity(id int, members []string, adj map[string]map[string]bool, misc bool) *Community {
	memberSet := make(map[string]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}

	c := &Community{ID: id, Members: members, Misc: misc}

	type degEntry struct {
		id     string
		degree int
	}
	entries := make([]degEntry, 0, len(members))
	for _, m := range members {
		intra := 0
		crossing := false
		for neighbor := range adj[m] {
			if memberSet[neighbor] {
				intra++
			} else {
				crossing = true
			}
		}
		entries = append(entries, degEntry{m, intra})
		if crossing {
			c.Boundary = append(c.Boundary, m)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].degree != entries[j].degree {
			return entries[i].degree > entries[j].degree
		}
		return entries[i].id < entries[j].id
	})
	for i := 0; i < len(entries) && i < 5; i++ {
		c.Central = append(c.Central, entries[i].id)
	}
	return c
}
