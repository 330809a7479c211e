package resolve

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codemind/codegraph/internal/chunk"
	"github.com/codemind/codegraph/internal/graph"
	"github.com/codemind/codegraph/internal/lang"
	"github.com/codemind/codegraph/internal/lsp"
)

// ServerClient is the analysis-server surface the resolver needs.
// *lsp.Pool satisfies it; tests substitute a stub.
type ServerClient interface {
	OpenFile(ctx context.Context, l lang.Language, path, text string) error
	CloseFile(ctx context.Context, l lang.Language, path string) error
	Definition(ctx context.Context, l lang.Language, path string, line, character int) ([]lsp.Location, error)
	Degraded() []lang.Language
}

// Result is the resolver's output for one run.
type Result struct {
	Deps       []graph.Dependency
	Unresolved int
	Failed     int
	Degraded   []lang.Language
}

// Resolver turns symbol references into dependency edges: analysis servers
// where available, the name registry where not. Resolution is computed once
// per run; nothing is cached across runs.
type Resolver struct {
	client  ServerClient
	rootDir string
}

func New(client ServerClient, rootDir string) *Resolver {
	return &Resolver{client: client, rootDir: rootDir}
}

// Resolve processes all references. Languages run in parallel. Within one
// language, files are processed one at a time in path order, or with bounded
// parallelism when the language declares its server safe for concurrent
// queries; references stay in source order either way. Individual query
// failures are recorded and skipped, never fatal.
func (r *Resolver) Resolve(ctx context.Context, units []*chunk.CodeUnit, refs []chunk.SymbolReference, sources map[string][]byte) (*Result, error) {
	idx := NewIndex(units)
	reg := NewRegistry(units)
	groups := groupRefs(idx, refs)

	langs := make([]lang.Language, 0, len(groups))
	for l := range groups {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	perLang := make([]*Result, len(langs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(langs) + 1)

	start := time.Now()
	for i, l := range langs {
		i, l := i, l
		g.Go(func() error {
			perLang[i] = r.resolveLanguage(gctx, l, groups[l], idx, reg, sources)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, lr := range perLang {
		if lr == nil {
			continue
		}
		out.Deps = append(out.Deps, lr.Deps...)
		out.Unresolved += lr.Unresolved
		out.Failed += lr.Failed
	}
	out.Degraded = r.client.Degraded()

	slog.Info("resolve.done",
		"refs", len(refs), "deps", len(out.Deps),
		"unresolved", out.Unresolved, "failed", out.Failed,
		"degraded", len(out.Degraded), "elapsed", time.Since(start))
	return out, nil
}

// fileRefs is one file's references in source order.
type fileRefs struct {
	path string
	refs []chunk.SymbolReference
}

func groupRefs(idx *Index, refs []chunk.SymbolReference) map[lang.Language][]fileRefs {
	byLangFile := make(map[lang.Language]map[string][]chunk.SymbolReference)
	for _, ref := range refs {
		u := idx.ByID(ref.UnitID)
		if u == nil {
			continue
		}
		if byLangFile[u.Language] == nil {
			byLangFile[u.Language] = make(map[string][]chunk.SymbolReference)
		}
		byLangFile[u.Language][u.Path] = append(byLangFile[u.Language][u.Path], ref)
	}

	out := make(map[lang.Language][]fileRefs, len(byLangFile))
	for l, files := range byLangFile {
		paths := make([]string, 0, len(files))
		for p := range files {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			rs := files[p]
			sort.SliceStable(rs, func(i, j int) bool {
				if rs[i].Line != rs[j].Line {
					return rs[i].Line < rs[j].Line
				}
				return rs[i].Column < rs[j].Column
			})
			out[l] = append(out[l], fileRefs{path: p, refs: rs})
		}
	}
	return out
}

// concurrentFilesPerLang bounds in-flight files for servers that declare
// themselves safe for concurrent queries.
const concurrentFilesPerLang = 4

func (r *Resolver) resolveLanguage(ctx context.Context, l lang.Language, files []fileRefs, idx *Index, reg *Registry, sources map[string][]byte) *Result {
	var degraded atomic.Bool
	perFile := make([]*Result, len(files))

	if spec := lang.ForLanguage(l); spec != nil && spec.ServerConcurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrentFilesPerLang)
		for i, f := range files {
			i, f := i, f
			g.Go(func() error {
				perFile[i] = r.resolveFile(gctx, l, f, idx, reg, sources, &degraded)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, f := range files {
			perFile[i] = r.resolveFile(ctx, l, f, idx, reg, sources, &degraded)
		}
	}

	res := &Result{}
	for _, fr := range perFile {
		if fr == nil {
			continue
		}
		res.Deps = append(res.Deps, fr.Deps...)
		res.Unresolved += fr.Unresolved
		res.Failed += fr.Failed
	}
	return res
}

func (r *Resolver) resolveFile(ctx context.Context, l lang.Language, f fileRefs, idx *Index, reg *Registry, sources map[string][]byte, degraded *atomic.Bool) *Result {
	res := &Result{}
	if ctx.Err() != nil {
		return res
	}
	absPath := filepath.Join(r.rootDir, f.path)
	moduleQN := chunk.ModuleQN(f.path)

	opened := false
	if !degraded.Load() {
		if err := r.client.OpenFile(ctx, l, absPath, string(sources[f.path])); err != nil {
			if errors.Is(err, lsp.ErrDegraded) {
				degraded.Store(true)
			} else {
				res.Failed++
			}
		} else {
			opened = true
		}
	}

	for _, ref := range f.refs {
		if ctx.Err() != nil {
			break
		}
		if ref.Kind == chunk.RefImport {
			r.resolveImport(res, reg, ref)
			continue
		}
		if opened && !degraded.Load() {
			done, nowDegraded := r.resolveViaServer(ctx, res, l, absPath, f.path, idx, ref)
			if nowDegraded {
				degraded.Store(true)
			}
			if done {
				continue
			}
		}
		r.resolveHeuristic(res, reg, ref, moduleQN)
	}

	if opened {
		_ = r.client.CloseFile(ctx, l, absPath)
	}
	return res
}

// resolveViaServer queries one reference. Returns done=true when the
// reference produced an edge or an external target; false hands it to the
// heuristic path.
func (r *Resolver) resolveViaServer(ctx context.Context, res *Result, l lang.Language, absPath, relPath string, idx *Index, ref chunk.SymbolReference) (done, degraded bool) {
	locs, err := r.client.Definition(ctx, l, absPath, ref.Line, ref.Column)
	if err != nil {
		if errors.Is(err, lsp.ErrDegraded) {
			return false, true
		}
		res.Failed++
		slog.Debug("resolve.query.err", "path", relPath, "symbol", ref.Symbol, "err", err)
		return false, false
	}
	if len(locs) == 0 {
		return false, false
	}

	loc := locs[0]
	targetRel, inside := r.relativize(lsp.URIToPath(loc.URI))
	if inside {
		if target := idx.At(targetRel, loc.Range.Start.Line+1); target != nil {
			if target.ID == ref.UnitID {
				// A recursive reference defines itself; no edge to record.
				return true, false
			}
			res.Deps = append(res.Deps, graph.Dependency{
				FromUnit: ref.UnitID,
				ToUnit:   target.ID,
				Kind:     graph.EdgeKindForRef(ref.Kind),
				Resolved: true,
				Line:     ref.Line,
			})
			return true, false
		}
	}

	// Definition lands outside the indexed unit set: stdlib, vendored, or
	// generated code. Keep the dependency as a synthetic external target.
	res.Deps = append(res.Deps, graph.Dependency{
		FromUnit: ref.UnitID,
		ToSymbol: ref.Symbol,
		Kind:     graph.EdgeKindForRef(ref.Kind),
		Line:     ref.Line,
	})
	return true, false
}

func (r *Resolver) resolveImport(res *Result, reg *Registry, ref chunk.SymbolReference) {
	if id := reg.ResolveModule(ref.Symbol); id != "" {
		res.Deps = append(res.Deps, graph.Dependency{
			FromUnit: ref.UnitID,
			ToUnit:   id,
			Kind:     graph.EdgeImports,
			Resolved: true,
			Line:     ref.Line,
		})
		return
	}
	res.Deps = append(res.Deps, graph.Dependency{
		FromUnit: ref.UnitID,
		ToSymbol: ref.Symbol,
		Kind:     graph.EdgeImports,
		Line:     ref.Line,
	})
}

func (r *Resolver) resolveHeuristic(res *Result, reg *Registry, ref chunk.SymbolReference, moduleQN string) {
	id := reg.Resolve(ref.Symbol, moduleQN)
	if id == "" || id == ref.UnitID {
		res.Unresolved++
		return
	}
	res.Deps = append(res.Deps, graph.Dependency{
		FromUnit: ref.UnitID,
		ToUnit:   id,
		Kind:     graph.EdgeKindForRef(ref.Kind),
		Resolved: false,
		Line:     ref.Line,
	})
}

// relativize maps an absolute definition path into the indexed tree.
func (r *Resolver) relativize(path string) (string, bool) {
	rel, err := filepath.Rel(r.rootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
