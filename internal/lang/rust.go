package lang

func init() {
	Register(&LanguageSpec{
		Language:          Rust,
		FileExtensions:    []string{".rs"},
		FunctionNodeTypes: []string{"function_item"},
		ClassNodeTypes:    []string{"struct_item", "enum_item", "trait_item"},
		ImportNodeTypes:   []string{"use_declaration"},
		CallNodeTypes:     []string{"call_expression"},
		NewNodeTypes:      []string{"struct_expression"},
		VariableNodeTypes: []string{"const_item", "static_item"},
		CommentPrefixes:   []string{"//", "///"},
		ServerCommand:     []string{"rust-analyzer"},
		PackageIndicators: []string{"Cargo.toml"},
	})
}
