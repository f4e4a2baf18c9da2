package inputs_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/inputs"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFiltersBackersAndReadsImageField(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "supporters.json", `[
		{"name": "Alice", "role": "BACKER", "image": "http://x/a.png"},
		{"name": "Bob", "role": "backer", "image": null},
		{"name": "Carol", "role": "host", "image": "http://x/c.png"},
		{"name": 42, "role": "backer"},
		"not an object",
		{"role": "backer", "image": "http://x/anon.png"}
	]`)

	src := config.Source{
		Name:       "opencollective",
		ImageField: "image",
		Inputs:     []config.Input{{Path: "supporters.json", Field: "name", FilterField: "role", FilterValue: "backer"}},
	}
	entries, err := inputs.Load(dir, src, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected alice and bob, got %+v", entries)
	}
	if entries[0].Key != "alice" || entries[0].ImageURL != "http://x/a.png" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Key != "bob" || entries[1].ImageURL != "" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestLoadMergesInputsAndExpandsTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "testimonials.json", `[{"twitter": "ZachLeat"}, {"twitter": ""}, {"other": "x"}]`)
	writeFile(t, dir, "starters.json", `[{"author": "zachleat"}, {"author": "Eleven Ty"}]`)
	writeFile(t, dir, "sites/one.json", `{"twitter": "SiteOwner"}`)
	writeFile(t, dir, "sites/TWO.JSON", `{"twitter": "shouty"}`)
	writeFile(t, dir, "sites/three.json", `{"name": "no handle"}`)

	src := config.Source{
		Name:          "twitter",
		ImageTemplate: "https://twitter.com/{id}/profile_image?size=bigger",
		Inputs: []config.Input{
			{Path: "testimonials.json", Field: "twitter"},
			{Path: "starters.json", Field: "author"},
			{Path: "extraAvatars.json", Field: "twitter", Optional: true},
			{Path: "sites/*.json", Field: "twitter"},
		},
	}
	entries, err := inputs.Load(dir, src, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	got := map[string]string{}
	for _, e := range entries {
		got[e.Key] = e.ImageURL
	}
	want := map[string]string{
		"zachleat":  "https://twitter.com/zachleat/profile_image?size=bigger",
		"eleven ty": "https://twitter.com/eleven%20ty/profile_image?size=bigger",
		"siteowner": "https://twitter.com/siteowner/profile_image?size=bigger",
		"shouty":    "https://twitter.com/shouty/profile_image?size=bigger",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for key, url := range want {
		if got[key] != url {
			t.Fatalf("entry %q: got %q want %q", key, got[key], url)
		}
	}
}

func TestLoadMissingLiteralInputIsInvalid(t *testing.T) {
	src := config.Source{
		Name:       "opencollective",
		ImageField: "image",
		Inputs:     []config.Input{{Path: "supporters.json", Field: "name"}},
	}
	_, err := inputs.Load(t.TempDir(), src, nil)
	if !errors.Is(err, failure.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestLoadGlobWithoutMatchesContributesNothing(t *testing.T) {
	src := config.Source{
		Name:          "twitter",
		ImageTemplate: "https://x/{id}",
		Inputs:        []config.Input{{Path: "sites/*.json", Field: "twitter"}},
	}
	entries, err := inputs.Load(t.TempDir(), src, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %v", entries)
	}
}

func TestLoadMalformedJSONIsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "supporters.json", `[{"name": "Alice",`)
	src := config.Source{
		Name:       "opencollective",
		ImageField: "image",
		Inputs:     []config.Input{{Path: "supporters.json", Field: "name"}},
	}
	_, err := inputs.Load(dir, src, nil)
	if !errors.Is(err, failure.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestExpandTemplateEscapesPathSegments(t *testing.T) {
	if got := inputs.ExpandTemplate("https://x/{id}.png", "a/b"); got != "https://x/a%2Fb.png" {
		t.Fatalf("unexpected expansion %q", got)
	}
}
