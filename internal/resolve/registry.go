package resolve

import (
	"sort"
	"strings"

	"github.com/codemind/codegraph/internal/chunk"
)

// Registry indexes units by qualified and simple name for heuristic
// resolution when no analysis server answers for a language.
type Registry struct {
	// exact maps qualified name -> unit id.
	exact map[string]string
	// byName maps simple name -> qualified names, sorted for determinism.
	byName map[string][]string
}

// NewRegistry indexes every named, non-module unit.
func NewRegistry(units []*chunk.CodeUnit) *Registry {
	r := &Registry{
		exact:  make(map[string]string),
		byName: make(map[string][]string),
	}
	for _, u := range units {
		if u.Name == "" || u.Kind == chunk.KindImport || u.Kind == chunk.KindContent {
			continue
		}
		if _, taken := r.exact[u.QualifiedName]; !taken {
			r.exact[u.QualifiedName] = u.ID
			simple := simpleName(u.QualifiedName)
			r.byName[simple] = append(r.byName[simple], u.QualifiedName)
		}
	}
	for _, qns := range r.byName {
		sort.Strings(qns)
	}
	return r
}

// Resolve maps a referenced symbol to a unit id, or "" when no candidate
// matches. Strategy: same-module match, then unique project-wide simple-name
// match, then closest-by-module-prefix among ambiguous candidates.
func (r *Registry) Resolve(symbol, moduleQN string) string {
	parts := strings.SplitN(symbol, ".", 2)
	var suffix string
	if len(parts) > 1 {
		suffix = parts[1]
	}

	if id := r.sameModule(symbol, suffix, moduleQN); id != "" {
		return id
	}
	return r.byNameLookup(symbol, suffix, moduleQN)
}

// ResolveModule maps an import target to a module unit's qualified name
// lookup. Dotted python-style and slash path-style targets both normalize
// to dotted form.
func (r *Registry) ResolveModule(target string) string {
	qn := strings.ReplaceAll(strings.Trim(target, "./"), "/", ".")
	if id, ok := r.exact[qn]; ok {
		return id
	}
	// Relative import: match by suffix when unambiguous.
	var matches []string
	for registered := range r.exact {
		if strings.HasSuffix(registered, "."+qn) || registered == qn {
			matches = append(matches, registered)
		}
	}
	if len(matches) == 1 {
		return r.exact[matches[0]]
	}
	return ""
}

func (r *Registry) sameModule(symbol, suffix, moduleQN string) string {
	if id, ok := r.exact[moduleQN+"."+symbol]; ok {
		return id
	}
	if suffix != "" {
		if id, ok := r.exact[moduleQN+"."+suffix]; ok {
			return id
		}
	}
	return ""
}

func (r *Registry) byNameLookup(symbol, suffix, moduleQN string) string {
	lookup := symbol
	if suffix != "" {
		lookup = suffix
	}
	candidates := r.byName[simpleName(lookup)]
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 {
		return r.exact[candidates[0]]
	}

	if suffix != "" {
		var matches []string
		for _, qn := range candidates {
			if strings.HasSuffix(qn, "."+symbol) {
				return r.exact[qn]
			}
			if strings.HasSuffix(qn, "."+suffix) {
				matches = append(matches, qn)
			}
		}
		if len(matches) == 1 {
			return r.exact[matches[0]]
		}
		if len(matches) > 1 {
			return r.exact[bestByModulePrefix(matches, moduleQN)]
		}
	}
	return r.exact[bestByModulePrefix(candidates, moduleQN)]
}

func simpleName(qn string) string {
	if idx := strings.LastIndex(qn, "."); idx >= 0 {
		return qn[idx+1:]
	}
	return qn
}

// bestByModulePrefix picks the candidate sharing the longest dot-segment
// prefix with the caller's module. Candidates arrive sorted, so equal
// scores break ties toward the lexicographically smaller name.
func bestByModulePrefix(candidates []string, moduleQN string) string {
	best := ""
	bestLen := -1
	for _, c := range candidates {
		if l := commonPrefixLen(c, moduleQN); l > bestLen {
			bestLen = l
			best = c
		}
	}
	return best
}

func commonPrefixLen(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	count := 0
	for i := 0; i < len(aParts) && i < len(bParts); i++ {
		if aParts[i] != bParts[i] {
			break
		}
		count++
	}
	return count
}
