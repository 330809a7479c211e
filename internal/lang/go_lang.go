package lang

func init() {
	Register(&LanguageSpec{
		Language:          Go,
		FileExtensions:    []string{".go"},
		FunctionNodeTypes: []string{"function_declaration", "method_declaration"},
		ClassNodeTypes:    []string{"type_spec"},
		ImportNodeTypes:   []string{"import_declaration"},
		CallNodeTypes:     []string{"call_expression"},
		NewNodeTypes:      []string{"composite_literal"},
		VariableNodeTypes: []string{"var_declaration", "const_declaration"},
		CommentPrefixes:   []string{"//"},
		ServerCommand:     []string{"gopls", "serve"},
		PackageIndicators: []string{"go.mod"},
	})
}
