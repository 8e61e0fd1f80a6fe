package report

import (
	"bytes"
	"testing"

	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

func TestWrite_GroupsAndSortsByPlugin(t *testing.T) {
	findings := []sourcepolicy.Finding{
		{Plugin: "risky_rules", Text: "zzz rule"},
		{Plugin: "risky_rules", Text: "aaa rule"},
		{Plugin: "global_macros", Text: "suggestion"},
	}
	var buf bytes.Buffer
	if err := Write(&buf, findings); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := buf.String()

	globalIdx := indexOf(out, "== global_macros (1) ==")
	riskyIdx := indexOf(out, "== risky_rules (2) ==")
	if globalIdx < 0 || riskyIdx < 0 {
		t.Fatalf("expected both plugin sections, got:\n%s", out)
	}
	if globalIdx > riskyIdx {
		t.Errorf("expected global_macros section before risky_rules (alphabetical), got:\n%s", out)
	}
	if indexOf(out, "aaa rule") > indexOf(out, "zzz rule") {
		t.Errorf("expected findings within a plugin sorted, got:\n%s", out)
	}
}

func TestWrite_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if buf.String() != "no findings\n" {
		t.Errorf("Write() = %q, want %q", buf.String(), "no findings\n")
	}
}

func TestSummary(t *testing.T) {
	findings := []sourcepolicy.Finding{
		{Plugin: "a", Text: "1"},
		{Plugin: "a", Text: "2"},
		{Plugin: "b", Text: "3"},
	}
	if got, want := Summary(findings), "3 findings across 2 plugin(s)"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
