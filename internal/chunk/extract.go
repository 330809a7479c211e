package chunk

import (
	"log/slog"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codemind/codegraph/internal/lang"
	"github.com/codemind/codegraph/internal/parser"
)

// Result is the extraction output for one file.
type Result struct {
	Units []*CodeUnit
	Refs  []SymbolReference
	// Fallback is true when the pattern-based path produced the units.
	Fallback bool
}

// Extractor produces CodeUnits and SymbolReferences per file, using the
// grammar-based parser when available and the pattern-based fallback
// otherwise. A parse failure degrades to the fallback path; it never aborts.
type Extractor struct {
	fallback *FallbackChunker
}

// NewExtractor creates an Extractor with the given fallback configuration.
// A nil config uses defaults.
func NewExtractor(cfg *FallbackConfig) *Extractor {
	return &Extractor{fallback: NewFallbackChunker(cfg)}
}

// ExtractFile extracts units and references from one file. An empty Units
// slice for a non-empty file means the file is unparsed; the caller records
// that in the run report.
func (e *Extractor) ExtractFile(relPath string, source []byte, language lang.Language) *Result {
	if len(strings.TrimSpace(string(source))) == 0 {
		return &Result{}
	}

	spec := lang.ForLanguage(language)
	if spec != nil && parser.Supported(language) {
		if res := e.extractGrammar(relPath, source, language, spec); len(res.Units) > 0 {
			return res
		}
		slog.Debug("chunk.grammar.empty", "path", relPath, "lang", language)
	}

	units := e.fallback.Chunk(relPath, source, language)
	return &Result{Units: units, Fallback: true}
}

// extractGrammar runs the tree-sitter path. Returns an empty result on parse
// failure so the caller falls back.
func (e *Extractor) extractGrammar(relPath string, source []byte, language lang.Language, spec *lang.LanguageSpec) *Result {
	tree, err := parser.Parse(language, source)
	if err != nil {
		slog.Warn("chunk.parse.err", "path", relPath, "lang", language, "err", err)
		return &Result{}
	}
	defer tree.Close()

	root := tree.RootNode()

	x := &extraction{
		relPath:  relPath,
		source:   source,
		language: language,
		spec:     spec,
		funcs:    toSet(spec.FunctionNodeTypes),
		classes:  toSet(spec.ClassNodeTypes),
		imports:  toSet(spec.ImportNodeTypes),
		vars:     toSet(spec.VariableNodeTypes),
	}

	x.addModuleUnit(root)

	parser.Walk(root, func(node *tree_sitter.Node) bool {
		kind := node.Kind()
		switch {
		case x.funcs[kind]:
			x.addFunctionUnit(node)
			return false
		case x.classes[kind]:
			x.addClassUnit(node)
			// Keep walking: methods inside the class body are their own units.
			return true
		case x.imports[kind]:
			x.addImportUnit(node)
			return false
		case x.vars[kind] && isModuleLevel(node, root):
			x.addVariableUnit(node)
			return false
		}
		return true
	})

	// Malformed input or a file with no recognized declarations hands off
	// to the pattern path. The module unit alone does not count as success.
	if parser.TreeHasErrors(tree) || len(x.units) <= 1 {
		return &Result{}
	}
	return &Result{Units: x.units, Refs: x.refs}
}

// extraction accumulates units and refs during one file's AST walk.
type extraction struct {
	relPath  string
	source   []byte
	language lang.Language
	spec     *lang.LanguageSpec
	funcs    map[string]bool
	classes  map[string]bool
	imports  map[string]bool
	vars     map[string]bool

	units []*CodeUnit
	refs  []SymbolReference
}

func (x *extraction) newUnit(node *tree_sitter.Node, kind Kind, name string) *CodeUnit {
	startLine := int(node.StartPosition().Row) + 1
	endLine := int(node.EndPosition().Row) + 1
	content := parser.NodeText(node, x.source)
	return &CodeUnit{
		ID:            UnitID(x.relPath, startLine, endLine),
		Kind:          kind,
		Name:          name,
		QualifiedName: QualifiedName(x.relPath, name),
		Path:          x.relPath,
		Language:      x.language,
		StartLine:     startLine,
		EndLine:       endLine,
		StartByte:     node.StartByte(),
		EndByte:       node.EndByte(),
		Fingerprint:   Fingerprint(content),
	}
}

func (x *extraction) addModuleUnit(root *tree_sitter.Node) {
	u := x.newUnit(root, KindModule, filepath.Base(x.relPath))
	u.QualifiedName = ModuleQN(x.relPath)
	x.units = append(x.units, u)
}

func (x *extraction) addFunctionUnit(node *tree_sitter.Node) {
	nameNode := functionNameNode(node)
	if nameNode == nil {
		return
	}
	name := parser.NodeText(nameNode, x.source)
	if name == "" {
		return
	}

	u := x.newUnit(node, KindFunction, name)
	u.Signature = extractSignature(node, x.source, x.language)
	u.Docstring = extractDocstring(node, x.source, x.language, x.spec.CommentPrefixes)
	x.units = append(x.units, u)
	x.collectRefs(node, u.ID)
}

func (x *extraction) addClassUnit(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := parser.NodeText(nameNode, x.source)
	if name == "" {
		return
	}

	u := x.newUnit(node, KindClass, name)
	u.Signature = firstLine(parser.NodeText(node, x.source))
	u.Docstring = extractDocstring(node, x.source, x.language, x.spec.CommentPrefixes)
	x.units = append(x.units, u)

	for _, base := range x.baseClasses(node) {
		x.refs = append(x.refs, SymbolReference{
			UnitID: u.ID,
			Symbol: base.text,
			Kind:   RefInherit,
			Line:   base.line,
			Column: base.col,
		})
	}
}

func (x *extraction) addImportUnit(node *tree_sitter.Node) {
	target := importTarget(node, x.source)
	if target == "" {
		return
	}
	u := x.newUnit(node, KindImport, target)
	x.units = append(x.units, u)
	x.refs = append(x.refs, SymbolReference{
		UnitID: u.ID,
		Symbol: target,
		Kind:   RefImport,
		Line:   int(node.StartPosition().Row),
		Column: int(node.StartPosition().Column),
	})
}

func (x *extraction) addVariableUnit(node *tree_sitter.Node) {
	name := variableName(node, x.source)
	if name == "" {
		return
	}
	x.units = append(x.units, x.newUnit(node, KindVariable, name))
}

// collectRefs walks a function body for calls, instantiations, and member
// uses. The reference position is the identifier the analysis server is
// queried at, not the whole expression.
func (x *extraction) collectRefs(unitNode *tree_sitter.Node, unitID string) {
	calls := toSet(x.spec.CallNodeTypes)
	news := toSet(x.spec.NewNodeTypes)

	parser.Walk(unitNode, func(node *tree_sitter.Node) bool {
		if node.Id() == unitNode.Id() {
			return true
		}
		kind := node.Kind()
		switch {
		case calls[kind]:
			if sym, pos := calleeIdentifier(node, x.source); sym != "" {
				x.refs = append(x.refs, SymbolReference{
					UnitID: unitID,
					Symbol: sym,
					Kind:   RefCall,
					Line:   int(pos.StartPosition().Row),
					Column: int(pos.StartPosition().Column),
				})
			}
		case news[kind]:
			if sym, pos := instantiatedType(node, x.source); sym != "" {
				x.refs = append(x.refs, SymbolReference{
					UnitID: unitID,
					Symbol: sym,
					Kind:   RefInstantiate,
					Line:   int(pos.StartPosition().Row),
					Column: int(pos.StartPosition().Column),
				})
			}
		case isMemberAccess(kind):
			// Attribute/member access outside a call is a plain use.
			if p := node.Parent(); p != nil && calls[p.Kind()] {
				return true
			}
			if sym, pos := memberIdentifier(node, x.source); sym != "" {
				x.refs = append(x.refs, SymbolReference{
					UnitID: unitID,
					Symbol: sym,
					Kind:   RefUse,
					Line:   int(pos.StartPosition().Row),
					Column: int(pos.StartPosition().Column),
				})
			}
			return false
		}
		return true
	})
}

type baseClassRef struct {
	text string
	line int
	col  int
}

// baseClasses extracts base-class identifiers from a class node's heritage
// clause (Python argument_list, TS/JS class_heritage, Java superclass).
func (x *extraction) baseClasses(classNode *tree_sitter.Node) []baseClassRef {
	clauseKinds := toSet(x.spec.InheritClauseTypes)
	if len(clauseKinds) == 0 {
		return nil
	}

	var out []baseClassRef
	for i := uint(0); i < classNode.ChildCount(); i++ {
		child := classNode.Child(i)
		if child == nil || !clauseKinds[child.Kind()] {
			continue
		}
		parser.Walk(child, func(n *tree_sitter.Node) bool {
			k := n.Kind()
			if k == "identifier" || k == "type_identifier" {
				out = append(out, baseClassRef{
					text: parser.NodeText(n, x.source),
					line: int(n.StartPosition().Row),
					col:  int(n.StartPosition().Column),
				})
				return false
			}
			return true
		})
	}
	return out
}

// functionNameNode resolves a function's name node, handling arrow functions
// assigned to a variable (const f = () => {}).
func functionNameNode(node *tree_sitter.Node) *tree_sitter.Node {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nameNode
	}
	if node.Kind() == "arrow_function" {
		if p := node.Parent(); p != nil && p.Kind() == "variable_declarator" {
			return p.ChildByFieldName("name")
		}
	}
	return nil
}

// extractSignature captures the declaration line(s) up to the body opener.
func extractSignature(node *tree_sitter.Node, source []byte, language lang.Language) string {
	text := parser.NodeText(node, source)
	lines := strings.SplitN(text, "\n", 6)
	var sig []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		sig = append(sig, trimmed)
		if language == lang.Python && strings.HasSuffix(trimmed, ":") {
			break
		}
		if strings.Contains(trimmed, "{") {
			break
		}
	}
	s := strings.Join(sig, " ")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "{"), ":")
	return strings.TrimSpace(s)
}

// calleeIdentifier extracts the called name and the node to query at.
// For obj.method() the position is on `method`, and the symbol keeps the
// dotted form for heuristic resolution.
func calleeIdentifier(callNode *tree_sitter.Node, source []byte) (string, *tree_sitter.Node) {
	fn := callNode.ChildByFieldName("function")
	if fn == nil {
		fn = callNode.ChildByFieldName("name")
	}
	if fn == nil {
		return "", nil
	}
	switch fn.Kind() {
	case "identifier", "field_identifier":
		return parser.NodeText(fn, source), fn
	case "attribute", "member_expression", "selector_expression", "field_expression", "scoped_identifier":
		if last := lastIdentifier(fn); last != nil {
			return parser.NodeText(fn, source), last
		}
	}
	if last := lastIdentifier(fn); last != nil {
		return parser.NodeText(fn, source), last
	}
	return "", nil
}

// instantiatedType extracts the type name from a new/composite expression.
func instantiatedType(node *tree_sitter.Node, source []byte) (string, *tree_sitter.Node) {
	for _, field := range []string{"constructor", "type"} {
		if t := node.ChildByFieldName(field); t != nil {
			if last := lastIdentifier(t); last != nil {
				return parser.NodeText(t, source), last
			}
			return parser.NodeText(t, source), t
		}
	}
	if first := firstIdentifier(node); first != nil {
		return parser.NodeText(first, source), first
	}
	return "", nil
}

func memberIdentifier(node *tree_sitter.Node, source []byte) (string, *tree_sitter.Node) {
	if last := lastIdentifier(node); last != nil {
		return parser.NodeText(node, source), last
	}
	return "", nil
}

func isMemberAccess(kind string) bool {
	switch kind {
	case "attribute", "member_expression", "field_expression", "selector_expression":
		return true
	}
	return false
}

// importTarget extracts the imported module/path from an import node.
func importTarget(node *tree_sitter.Node, source []byte) string {
	var target string
	parser.Walk(node, func(n *tree_sitter.Node) bool {
		if target != "" {
			return false
		}
		switch n.Kind() {
		case "string", "string_literal", "interpreted_string_literal":
			target = strings.Trim(parser.NodeText(n, source), `"'`)
			return false
		case "dotted_name", "scoped_identifier", "import_spec", "use_wildcard", "scoped_use_list":
			target = parser.NodeText(n, source)
			return false
		}
		return true
	})
	if target == "" {
		if first := firstIdentifier(node); first != nil {
			target = parser.NodeText(first, source)
		}
	}
	return strings.Trim(target, `"'`)
}

// variableName extracts the first declared identifier from a variable node.
func variableName(node *tree_sitter.Node, source []byte) string {
	for _, field := range []string{"name", "left", "declarator"} {
		if n := node.ChildByFieldName(field); n != nil {
			if n.Kind() == "identifier" {
				return parser.NodeText(n, source)
			}
			if first := firstIdentifier(n); first != nil {
				return parser.NodeText(first, source)
			}
		}
	}
	if first := firstIdentifier(node); first != nil {
		return parser.NodeText(first, source)
	}
	return ""
}

// isModuleLevel reports whether a node sits at the top of the file (directly
// under the root, or under one statement wrapper such as Python's
// expression_statement).
func isModuleLevel(node, root *tree_sitter.Node) bool {
	p := node.Parent()
	if p == nil {
		return false
	}
	if p.Id() == root.Id() {
		return true
	}
	pp := p.Parent()
	return pp != nil && pp.Id() == root.Id()
}

func lastIdentifier(node *tree_sitter.Node) *tree_sitter.Node {
	var found *tree_sitter.Node
	parser.Walk(node, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "identifier", "property_identifier", "field_identifier", "type_identifier", "attribute":
			if n.ChildCount() == 0 {
				found = n
			}
		}
		return true
	})
	return found
}

func firstIdentifier(node *tree_sitter.Node) *tree_sitter.Node {
	var found *tree_sitter.Node
	parser.Walk(node, func(n *tree_sitter.Node) bool {
		if found != nil {
			return false
		}
		switch n.Kind() {
		case "identifier", "property_identifier", "field_identifier", "type_identifier":
			found = n
			return false
		}
		return true
	})
	return found
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
