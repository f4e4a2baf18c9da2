package main

import (
	"strings"
	"testing"
)

func TestPlainTableKeepsHeaderAndFooterCase(t *testing.T) {
	spec := tableSpec{
		headers: []string{"Name", "Size"},
		aligns:  []columnAlignment{alignLeft, alignRight},
		footer:  []string{"2 entries", ""},
	}
	spec.add("alice", "73x73")
	spec.add("bob", "73x50")

	out := spec.render(false)
	for _, want := range []string{"Name", "Size", "2 entries", "alice"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in plain table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ENTRIES") || strings.Contains(out, "NAME") {
		t.Fatalf("expected plain table to keep original case:\n%s", out)
	}
	if strings.ContainsAny(out, "|+") {
		t.Fatalf("expected no borders in plain table:\n%s", out)
	}
}
