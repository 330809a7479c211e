package lang

func init() {
	Register(&LanguageSpec{
		Language:          Python,
		FileExtensions:    []string{".py"},
		FunctionNodeTypes: []string{"function_definition"},
		ClassNodeTypes:    []string{"class_definition"},
		ImportNodeTypes:   []string{"import_statement", "import_from_statement"},
		CallNodeTypes:     []string{"call"},
		// Python has no distinct `new` syntax; instantiation is detected by
		// the resolver when a call target is a class.
		InheritClauseTypes: []string{"argument_list"},
		VariableNodeTypes:  []string{"assignment"},
		CommentPrefixes:    []string{"#"},
		ServerCommand:      []string{"pyright-langserver", "--stdio"},
		PackageIndicators:  []string{"__init__.py", "pyproject.toml"},
	})
}
