package summarize

import (
	"fmt"
	"strings"

	"github.com/codemind/codegraph/internal/graph"
)

const systemPrompt = "You are a senior software engineer documenting a codebase. " +
	"Write factual, specific summaries. No filler, no speculation beyond the given material."

// depSummary is one direct dependency's name and summary text, as included
// in the owner's prompt.
type depSummary struct {
	name    string
	summary string
}

// unitPrompt builds the generation prompt for one node. Only direct
// dependencies appear; transitive context arrives through their summaries.
func unitPrompt(n *graph.Node, deps []depSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this %s in 2-3 sentences: what it does and its role in the codebase.\n\n", n.Kind)
	fmt.Fprintf(&b, "Name: %s\n", n.QualifiedName)
	if len(n.Origins) > 0 {
		fmt.Fprintf(&b, "File: %s (lines %d-%d)\n", n.Origins[0].Path, n.Origins[0].StartLine, n.Origins[0].EndLine)
	}
	if n.Signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", n.Signature)
	}
	if n.Docstring != "" {
		fmt.Fprintf(&b, "Documentation: %s\n", n.Docstring)
	}
	if len(deps) > 0 {
		b.WriteString("\nIt depends on:\n")
		for _, d := range deps {
			if d.summary != "" {
				fmt.Fprintf(&b, "- %s: %s\n", d.name, d.summary)
			} else {
				fmt.Fprintf(&b, "- %s\n", d.name)
			}
		}
	}
	return b.String()
}

// metadataPrompt is the cycle-breaking variant: name, signature, and
// docstring only, no dependency context.
func metadataPrompt(n *graph.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this %s in 1-2 sentences based on its declaration alone.\n\n", n.Kind)
	fmt.Fprintf(&b, "Name: %s\n", n.QualifiedName)
	if n.Signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", n.Signature)
	}
	if n.Docstring != "" {
		fmt.Fprintf(&b, "Documentation: %s\n", n.Docstring)
	}
	return b.String()
}

// communityPrompt builds the prompt for one community from its central
// members' summaries and the names of its boundary members.
func communityPrompt(central []depSummary, boundary []string, misc bool) string {
	var b strings.Builder
	if misc {
		b.WriteString("Summarize this group of loosely related code units in 2-3 sentences.\n\n")
	} else {
		b.WriteString("Summarize the shared responsibility of this group of related code units in 2-3 sentences.\n\n")
	}
	b.WriteString("Key members:\n")
	for _, c := range central {
		if c.summary != "" {
			fmt.Fprintf(&b, "- %s: %s\n", c.name, c.summary)
		} else {
			fmt.Fprintf(&b, "- %s\n", c.name)
		}
	}
	if len(boundary) > 0 {
		fmt.Fprintf(&b, "\nMembers interacting with other groups: %s\n", strings.Join(boundary, ", "))
	}
	return b.String()
}

// globalPrompt builds the single whole-codebase prompt from all community
// summaries in community-id order.
func globalPrompt(communitySummaries []string) string {
	var b strings.Builder
	b.WriteString("Write a 3-5 sentence overview of this codebase from the following component summaries.\n\n")
	for i, s := range communitySummaries {
		fmt.Fprintf(&b, "Component %d: %s\n", i+1, s)
	}
	return b.String()
}
