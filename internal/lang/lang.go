package lang

// Language represents a supported programming language.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Go         Language = "go"
	Rust       Language = "rust"
	Java       Language = "java"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Python, JavaScript, TypeScript, Go, Rust, Java}
}

// LanguageSpec is the per-language capability table entry: the tree-sitter
// node kinds the extractor looks for and the analysis-server command the
// resolver launches. Adding a language is a new Register call, not a new
// type hierarchy.
type LanguageSpec struct {
	Language       Language
	FileExtensions []string

	FunctionNodeTypes []string
	ClassNodeTypes    []string
	ImportNodeTypes   []string
	CallNodeTypes     []string
	// NewNodeTypes lists constructor/instantiation expression kinds.
	NewNodeTypes []string
	// InheritClauseTypes lists base-class/superclass clause kinds.
	InheritClauseTypes []string
	// VariableNodeTypes lists module-level variable declaration kinds.
	VariableNodeTypes []string

	// CommentPrefixes are line-comment markers used for docstring capture.
	CommentPrefixes []string

	// ServerCommand launches the language's analysis server (LSP over stdio).
	// Empty means no server is available; resolution for the language
	// degrades to name-based heuristics.
	ServerCommand []string
	// ServerConcurrent declares the server safe for concurrent queries.
	// When false, queries against one server instance are serialized.
	ServerConcurrent bool

	PackageIndicators []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".go").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}
