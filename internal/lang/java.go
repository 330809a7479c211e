package lang

func init() {
	Register(&LanguageSpec{
		Language:           Java,
		FileExtensions:     []string{".java"},
		FunctionNodeTypes:  []string{"method_declaration", "constructor_declaration"},
		ClassNodeTypes:     []string{"class_declaration", "interface_declaration", "enum_declaration"},
		ImportNodeTypes:    []string{"import_declaration"},
		CallNodeTypes:      []string{"method_invocation"},
		NewNodeTypes:       []string{"object_creation_expression"},
		InheritClauseTypes: []string{"superclass", "super_interfaces"},
		VariableNodeTypes:  []string{"field_declaration"},
		CommentPrefixes:    []string{"//"},
		ServerCommand:      []string{"jdtls"},
		PackageIndicators:  []string{"pom.xml", "build.gradle"},
	})
}
