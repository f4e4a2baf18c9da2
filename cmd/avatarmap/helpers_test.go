package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatarmap/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	server     *testsupport.ImageServer
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("AVATARMAP_NTFY_TOPIC", "")

	server := testsupport.NewImageServer(t, 120, 120)
	project := filepath.Join(base, "site")
	testsupport.WriteJSON(t, filepath.Join(project, "_data", "supporters.json"), []map[string]any{
		{"name": "Alice", "role": "backer", "image": server.URL("/alice.png")},
		{"name": "Bob", "role": "backer", "image": nil},
		{"name": "Host", "role": "host", "image": server.URL("/host.png")},
	})
	testsupport.WriteJSON(t, filepath.Join(project, "_data", "testimonials.json"), []map[string]any{
		{"twitter": "ZachLeat"},
		{"twitter": "zachleat"},
	})

	configPath := filepath.Join(base, "avatarmap.toml")
	content := fmt.Sprintf(`[paths]
root = %q
state_dir = %q

[fetch]
timeout_seconds = 5

[[sources]]
name = "opencollective"
image_field = "image"

  [[sources.inputs]]
  path = "supporters.json"
  field = "name"
  filter_field = "role"
  filter_value = "backer"

[[sources]]
name = "twitter"
image_template = %q

  [[sources.inputs]]
  path = "testimonials.json"
  field = "twitter"
`, filepath.ToSlash(project), filepath.ToSlash(filepath.Join(base, "state")), server.URL("/twitter/{id}.png"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{baseDir: project, configPath: configPath, server: server}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
