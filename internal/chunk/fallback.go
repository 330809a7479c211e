package chunk

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codemind/codegraph/internal/lang"
)

// FallbackConfig controls the pattern-based chunker.
type FallbackConfig struct {
	// MaxUnitLines splits any longer span into windows.
	MaxUnitLines int
	// WindowLines is the window size used when no pattern matches.
	WindowLines int
}

// DefaultFallbackConfig returns the standard fallback limits.
func DefaultFallbackConfig() *FallbackConfig {
	return &FallbackConfig{MaxUnitLines: 200, WindowLines: 100}
}

type declPattern struct {
	kind Kind
	re   *regexp.Regexp
}

var fallbackPatterns = map[lang.Language][]declPattern{
	lang.Python: {
		{KindFunction, regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)`)},
		{KindClass, regexp.MustCompile(`^(\s*)class\s+(\w+)`)},
	},
	lang.JavaScript: {
		{KindFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`)},
		{KindFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function|\()`)},
		{KindClass, regexp.MustCompile(`^(\s*)(?:export\s+)?class\s+(\w+)`)},
	},
	lang.TypeScript: {
		{KindFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`)},
		{KindFunction, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function|\()`)},
		{KindClass, regexp.MustCompile(`^(\s*)(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`)},
	},
	lang.Go: {
		{KindFunction, regexp.MustCompile(`^()func\s+(?:\([^)]+\)\s+)?(\w+)`)},
		{KindClass, regexp.MustCompile(`^()type\s+(\w+)\s+(?:struct|interface)`)},
	},
	lang.Java: {
		{KindFunction, regexp.MustCompile(`^(\s*)(?:public|private|protected|static|final|\s)*[\w<>\[\],\s]+\s+(\w+)\s*\([^;]*$`)},
		{KindClass, regexp.MustCompile(`^(\s*)(?:public|private|protected|abstract|final|\s)*(?:class|interface|enum)\s+(\w+)`)},
	},
	lang.Rust: {
		{KindFunction, regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)`)},
		{KindClass, regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+(\w+)`)},
	},
}

// FallbackChunker segments a file by line patterns when no grammar parse is
// available. Every unit it emits is Approximate and carries no symbol
// references.
type FallbackChunker struct {
	cfg *FallbackConfig
}

func NewFallbackChunker(cfg *FallbackConfig) *FallbackChunker {
	if cfg == nil {
		cfg = DefaultFallbackConfig()
	}
	return &FallbackChunker{cfg: cfg}
}

// Chunk splits source into approximate units: pattern-matched declarations,
// gap-fill content between them, and sliding windows when nothing matches.
func (f *FallbackChunker) Chunk(relPath string, source []byte, language lang.Language) []*CodeUnit {
	lines := strings.Split(string(source), "\n")
	if len(strings.TrimSpace(string(source))) == 0 {
		return nil
	}

	units := []*CodeUnit{f.moduleUnit(relPath, source, language, len(lines))}

	decls := f.matchDeclarations(lines, language)
	if len(decls) == 0 {
		units = append(units, f.windows(relPath, lines, language, 1, len(lines))...)
		return units
	}

	cursor := 1
	for _, d := range decls {
		if d.start > cursor {
			units = append(units, f.gapUnits(relPath, lines, language, cursor, d.start-1)...)
		}
		units = append(units, f.declUnits(relPath, lines, language, d)...)
		if d.end >= cursor {
			cursor = d.end + 1
		}
	}
	if cursor <= len(lines) {
		units = append(units, f.gapUnits(relPath, lines, language, cursor, len(lines))...)
	}
	return units
}

type matchedDecl struct {
	kind   Kind
	name   string
	indent int
	start  int // 1-based
	end    int // 1-based, inclusive
}

func (f *FallbackChunker) matchDeclarations(lines []string, language lang.Language) []matchedDecl {
	patterns := fallbackPatterns[language]
	if len(patterns) == 0 {
		return nil
	}

	var decls []matchedDecl
	for i, line := range lines {
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			d := matchedDecl{
				kind:   p.kind,
				name:   m[2],
				indent: len(m[1]),
				start:  i + 1,
			}
			d.end = blockEnd(lines, i, d.indent, language)
			// Nested declarations inside a prior block stay part of it.
			if n := len(decls); n > 0 && d.start <= decls[n-1].end && d.indent > decls[n-1].indent {
				break
			}
			decls = append(decls, d)
			break
		}
	}
	return decls
}

// blockEnd finds the last line of a declaration starting at index start
// (0-based). Python uses indentation; brace languages count braces.
func blockEnd(lines []string, start, indent int, language lang.Language) int {
	if language == lang.Python {
		end := start + 1
		for i := start + 1; i < len(lines); i++ {
			trimmed := strings.TrimSpace(lines[i])
			if trimmed == "" {
				continue
			}
			if indentOf(lines[i]) <= indent {
				break
			}
			end = i + 1
		}
		return end
	}

	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if strings.Contains(lines[i], "{") {
			opened = true
		}
		if opened && depth <= 0 {
			return i + 1
		}
	}
	if !opened {
		// Single-line declaration (Rust trait method, TS signature).
		return start + 1
	}
	return len(lines)
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// declUnits emits a declaration's unit, window-split when it exceeds the cap.
func (f *FallbackChunker) declUnits(relPath string, lines []string, language lang.Language, d matchedDecl) []*CodeUnit {
	if d.end-d.start+1 > f.cfg.MaxUnitLines {
		return f.windows(relPath, lines, language, d.start, d.end)
	}
	u := f.spanUnit(relPath, lines, language, d.kind, d.name, d.start, d.end)
	u.Signature = firstLine(strings.Join(lines[d.start-1:min(d.start, len(lines))], "\n"))
	return []*CodeUnit{u}
}

// gapUnits covers the lines between recognized declarations so no source is
// dropped. Whitespace-only gaps are skipped.
func (f *FallbackChunker) gapUnits(relPath string, lines []string, language lang.Language, start, end int) []*CodeUnit {
	if strings.TrimSpace(strings.Join(lines[start-1:end], "\n")) == "" {
		return nil
	}
	if end-start+1 > f.cfg.MaxUnitLines {
		return f.windows(relPath, lines, language, start, end)
	}
	return []*CodeUnit{f.spanUnit(relPath, lines, language, KindContent, "", start, end)}
}

func (f *FallbackChunker) windows(relPath string, lines []string, language lang.Language, start, end int) []*CodeUnit {
	var units []*CodeUnit
	for s := start; s <= end; s += f.cfg.WindowLines {
		e := min(s+f.cfg.WindowLines-1, end)
		if strings.TrimSpace(strings.Join(lines[s-1:e], "\n")) == "" {
			continue
		}
		units = append(units, f.spanUnit(relPath, lines, language, KindContent, "", s, e))
	}
	return units
}

func (f *FallbackChunker) spanUnit(relPath string, lines []string, language lang.Language, kind Kind, name string, start, end int) *CodeUnit {
	text := strings.Join(lines[start-1:end], "\n")
	qn := QualifiedName(relPath, name)
	if name == "" {
		qn = ModuleQN(relPath) + UnitID("", start, end)
	}
	return &CodeUnit{
		ID:            UnitID(relPath, start, end),
		Kind:          kind,
		Name:          name,
		QualifiedName: qn,
		Path:          relPath,
		Language:      language,
		StartLine:     start,
		EndLine:       end,
		Fingerprint:   Fingerprint(text),
		Approximate:   true,
	}
}

func (f *FallbackChunker) moduleUnit(relPath string, source []byte, language lang.Language, lineCount int) *CodeUnit {
	return &CodeUnit{
		ID:            UnitID(relPath, 1, lineCount),
		Kind:          KindModule,
		Name:          filepath.Base(relPath),
		QualifiedName: ModuleQN(relPath),
		Path:          relPath,
		Language:      language,
		StartLine:     1,
		EndLine:       lineCount,
		Fingerprint:   Fingerprint(string(source)),
		Approximate:   true,
	}
}
