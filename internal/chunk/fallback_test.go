package chunk

import (
	"strings"
	"testing"

	"github.com/codemind/codegraph/internal/lang"
)

func TestFallbackPythonDeclarations(t *testing.T) {
	src := `import os

def first():
    a = 1
    return a

class Thing:
    def method(self):
        pass
`
	units := NewFallbackChunker(nil).Chunk("m.py", []byte(src), lang.Python)

	var fn, cls *CodeUnit
	for _, u := range units {
		if u.Kind == KindFunction && u.Name == "first" {
			fn = u
		}
		if u.Kind == KindClass && u.Name == "Thing" {
			cls = u
		}
		if !u.Approximate {
			t.Errorf("fallback unit %s not approximate", u.ID)
		}
	}
	if fn == nil {
		t.Fatal("missing function unit for first")
	}
	if fn.StartLine != 3 || fn.EndLine != 5 {
		t.Errorf("first span = %d-%d, want 3-5", fn.StartLine, fn.EndLine)
	}
	if cls == nil {
		t.Fatal("missing class unit for Thing")
	}
	// The nested method belongs to the class block, not its own unit.
	if cls.EndLine != 9 {
		t.Errorf("Thing end = %d, want 9", cls.EndLine)
	}
}

func TestFallbackBraceBlockEnd(t *testing.T) {
	src := `function outer() {
  if (x) {
    inner();
  }
}
const leftover = 1;
`
	units := NewFallbackChunker(nil).Chunk("m.js", []byte(src), lang.JavaScript)

	var fn *CodeUnit
	for _, u := range units {
		if u.Kind == KindFunction && u.Name == "outer" {
			fn = u
		}
	}
	if fn == nil {
		t.Fatal("missing function unit")
	}
	if fn.StartLine != 1 || fn.EndLine != 5 {
		t.Errorf("outer span = %d-%d, want 1-5", fn.StartLine, fn.EndLine)
	}
}

func TestFallbackGapFill(t *testing.T) {
	src := `setup_line_one = 1
setup_line_two = 2

def fn():
    pass
`
	units := NewFallbackChunker(nil).Chunk("m.py", []byte(src), lang.Python)

	var gap *CodeUnit
	for _, u := range units {
		if u.Kind == KindContent && u.StartLine == 1 {
			gap = u
		}
	}
	if gap == nil {
		t.Fatal("expected a gap-fill content unit before the declaration")
	}
	if gap.EndLine != 3 {
		t.Errorf("gap end = %d, want 3", gap.EndLine)
	}
}

func TestFallbackWindowsWhenNothingMatches(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 250; i++ {
		b.WriteString("some plain line of text without declarations\n")
	}
	cfg := &FallbackConfig{MaxUnitLines: 200, WindowLines: 100}
	units := NewFallbackChunker(cfg).Chunk("notes.py", []byte(b.String()), lang.Python)

	windows := 0
	for _, u := range units {
		if u.Kind == KindContent {
			windows++
			if u.EndLine-u.StartLine+1 > cfg.WindowLines {
				t.Errorf("window %s exceeds %d lines", u.ID, cfg.WindowLines)
			}
		}
	}
	if windows < 3 {
		t.Errorf("expected at least 3 windows for 250 lines, got %d", windows)
	}
}

func TestFallbackCoversAllContent(t *testing.T) {
	src := "x = 1\n\ndef f():\n    pass\n\ny = 2\n"
	units := NewFallbackChunker(nil).Chunk("m.py", []byte(src), lang.Python)

	covered := make(map[int]bool)
	for _, u := range units {
		if u.Kind == KindModule {
			continue
		}
		for l := u.StartLine; l <= u.EndLine; l++ {
			covered[l] = true
		}
	}
	for _, line := range []int{1, 3, 4, 6} {
		if !covered[line] {
			t.Errorf("line %d not covered by any unit", line)
		}
	}
}
