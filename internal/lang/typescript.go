package lang

func init() {
	Register(&LanguageSpec{
		Language:           TypeScript,
		FileExtensions:     []string{".ts", ".tsx"},
		FunctionNodeTypes:  []string{"function_declaration", "method_definition", "arrow_function"},
		ClassNodeTypes:     []string{"class_declaration", "interface_declaration"},
		ImportNodeTypes:    []string{"import_statement"},
		CallNodeTypes:      []string{"call_expression"},
		NewNodeTypes:       []string{"new_expression"},
		InheritClauseTypes: []string{"class_heritage", "extends_clause"},
		VariableNodeTypes:  []string{"lexical_declaration", "variable_declaration"},
		CommentPrefixes:    []string{"//"},
		ServerCommand:      []string{"typescript-language-server", "--stdio"},
		PackageIndicators:  []string{"package.json", "tsconfig.json"},
	})
}
