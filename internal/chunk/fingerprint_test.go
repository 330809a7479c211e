package chunk

import "testing"

func TestFingerprintIgnoresFormattingNoise(t *testing.T) {
	a := "def foo():\n    return 1\n"
	b := "def foo():   \n\n    return 1\t\n\n"
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("expected identical fingerprints for whitespace-only differences")
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	a := Fingerprint("def foo():\n    return 1\n")
	b := Fingerprint("def foo():\n    return 2\n")
	if a == b {
		t.Error("expected different fingerprints for different content")
	}
	if a == "" || b == "" {
		t.Error("expected non-empty fingerprints")
	}
}

func TestFingerprintIndentationMatters(t *testing.T) {
	a := Fingerprint("if x:\n    y()\n")
	b := Fingerprint("if x:\ny()\n")
	if a == b {
		t.Error("leading indentation is significant and must change the fingerprint")
	}
}

func TestUnitID(t *testing.T) {
	got := UnitID("pkg/svc.py", 10, 42)
	if got != "pkg/svc.py:10:42" {
		t.Errorf("UnitID = %q", got)
	}
}

func TestQualifiedName(t *testing.T) {
	cases := []struct {
		path, name, want string
	}{
		{"pkg/service.py", "ProcessOrder", "pkg.service.ProcessOrder"},
		{"pkg/__init__.py", "helper", "pkg.helper"},
		{"src/index.ts", "render", "src.render"},
		{"main.go", "", "main"},
	}
	for _, c := range cases {
		if got := QualifiedName(c.path, c.name); got != c.want {
			t.Errorf("QualifiedName(%q, %q) = %q, want %q", c.path, c.name, got, c.want)
		}
	}
}
