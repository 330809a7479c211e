package lang

func init() {
	Register(&LanguageSpec{
		Language:           JavaScript,
		FileExtensions:     []string{".js", ".jsx", ".mjs"},
		FunctionNodeTypes:  []string{"function_declaration", "method_definition", "arrow_function"},
		ClassNodeTypes:     []string{"class_declaration"},
		ImportNodeTypes:    []string{"import_statement"},
		CallNodeTypes:      []string{"call_expression"},
		NewNodeTypes:       []string{"new_expression"},
		InheritClauseTypes: []string{"class_heritage"},
		VariableNodeTypes:  []string{"lexical_declaration", "variable_declaration"},
		CommentPrefixes:    []string{"//"},
		ServerCommand:      []string{"typescript-language-server", "--stdio"},
		PackageIndicators:  []string{"package.json"},
	})
}
