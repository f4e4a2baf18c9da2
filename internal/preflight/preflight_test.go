package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatarmap/internal/config"
	"avatarmap/internal/testsupport"
)

func TestCheckReadableDirectory_OK(t *testing.T) {
	result := CheckReadableDirectory("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckReadableDirectory_NotExist(t *testing.T) {
	result := CheckReadableDirectory("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckWritableTarget_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckWritableTarget("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckWritableTarget_MissingUnderWritableParent(t *testing.T) {
	result := CheckWritableTarget("cache", filepath.Join(t.TempDir(), "img", "avatar-local-cache"))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckSourceInputs(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteJSON(t, filepath.Join(dir, "supporters.json"), []map[string]any{
		{"name": "Alice", "role": "backer", "image": "http://x/a.png"},
		{"name": "Bob", "role": "backer", "image": nil},
	})
	src := config.Source{
		Name:       "opencollective",
		ImageField: "image",
		Inputs:     []config.Input{{Path: "supporters.json", Field: "name"}},
	}

	result := CheckSourceInputs(dir, src, nil)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "2 identifiers, 1 with image" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}

	src.Inputs[0].Path = "missing.json"
	if result := CheckSourceInputs(dir, src, nil); result.Passed {
		t.Fatal("expected failure for missing input")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSources(config.Source{
		Name:          "twitter",
		ImageTemplate: "https://unavatar.io/twitter/{id}",
		Inputs:        []config.Input{{Path: "testimonials.json", Field: "twitter"}},
	}))
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(cfg, nil)
	if len(results) != 5 {
		t.Fatalf("expected 4 directory checks and 1 source check, got %d", len(results))
	}
	if Failed(results) != 1 {
		t.Fatalf("expected only the missing input to fail, got %+v", results)
	}
	if last := results[len(results)-1]; last.Name != "Source twitter" || last.Passed {
		t.Fatalf("unexpected source result %+v", last)
	}

	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "testimonials.json"), []map[string]string{{"twitter": "zachleat"}})
	if n := Failed(RunAll(cfg, nil)); n != 0 {
		t.Fatalf("expected all checks to pass, got %d failures", n)
	}
}
