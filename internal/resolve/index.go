package resolve

import (
	"sort"

	"github.com/codemind/codegraph/internal/chunk"
)

// Index maps source positions back to the units that cover them. Built once
// per run from the full unit set.
type Index struct {
	byPath map[string][]*chunk.CodeUnit
	byID   map[string]*chunk.CodeUnit
}

func NewIndex(units []*chunk.CodeUnit) *Index {
	idx := &Index{
		byPath: make(map[string][]*chunk.CodeUnit),
		byID:   make(map[string]*chunk.CodeUnit, len(units)),
	}
	for _, u := range units {
		idx.byPath[u.Path] = append(idx.byPath[u.Path], u)
		idx.byID[u.ID] = u
	}
	for _, list := range idx.byPath {
		sort.Slice(list, func(i, j int) bool {
			if list[i].StartLine != list[j].StartLine {
				return list[i].StartLine < list[j].StartLine
			}
			return list[i].EndLine < list[j].EndLine
		})
	}
	return idx
}

// At returns the innermost unit covering a 1-based line of a file, skipping
// the whole-file module unit unless nothing narrower matches.
func (idx *Index) At(path string, line int) *chunk.CodeUnit {
	var best *chunk.CodeUnit
	var module *chunk.CodeUnit
	for _, u := range idx.byPath[path] {
		if line < u.StartLine || line > u.EndLine {
			continue
		}
		if u.Kind == chunk.KindModule {
			module = u
			continue
		}
		if best == nil || span(u) < span(best) {
			best = u
		}
	}
	if best != nil {
		return best
	}
	return module
}

// ByID returns the unit with the given id, or nil.
func (idx *Index) ByID(id string) *chunk.CodeUnit { return idx.byID[id] }

func span(u *chunk.CodeUnit) int { return u.EndLine - u.StartLine }
