package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codemind/codegraph/internal/lang"
)

// Kind classifies a code unit.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindImport   Kind = "import"
	KindVariable Kind = "variable"
	KindModule   Kind = "module"
	// KindContent marks fallback gap-fill units: source between recognized
	// declarations that would otherwise be lost.
	KindContent Kind = "content"
)

// RefKind classifies a symbol reference.
type RefKind string

const (
	RefCall        RefKind = "call"
	RefImport      RefKind = "import"
	RefInherit     RefKind = "inherit"
	RefInstantiate RefKind = "instantiate"
	RefUse         RefKind = "use"
)

// CodeUnit is a structurally meaningful span of one source file.
// Immutable once created; a unit never spans multiple files.
type CodeUnit struct {
	ID            string // <path>:<startLine>:<endLine>
	Kind          Kind
	Name          string
	QualifiedName string
	Path          string // repo-relative, slash-separated
	Language      lang.Language
	StartLine     int // 1-based, inclusive
	EndLine       int // 1-based, inclusive
	StartByte     uint
	EndByte       uint
	Signature     string
	Docstring     string
	Fingerprint   string
	// Approximate marks fallback-derived units whose boundaries are
	// lower-confidence.
	Approximate bool
}

// SymbolReference is a candidate cross-reference discovered inside a unit.
// Consumed by the resolver and discarded.
type SymbolReference struct {
	UnitID string
	Symbol string
	Kind   RefKind
	// Line/Column are 0-based, matching the analysis-server protocol.
	Line   int
	Column int
}

// UnitID builds the canonical unit id from a path and line span.
func UnitID(relPath string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d:%d", relPath, startLine, endLine)
}

// QualifiedName returns the dotted qualified name for a symbol in a file.
// Format: <rel_path_parts_dotted>.<name>, e.g. pkg.service.ProcessOrder.
func QualifiedName(relPath, name string) string {
	trimmed := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	parts := strings.Split(filepath.ToSlash(trimmed), "/")
	if len(parts) > 0 && (parts[len(parts)-1] == "__init__" || parts[len(parts)-1] == "index") {
		parts = parts[:len(parts)-1]
	}
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, ".")
}

// ModuleQN returns the qualified name for a file's module unit.
func ModuleQN(relPath string) string {
	return QualifiedName(relPath, "")
}
