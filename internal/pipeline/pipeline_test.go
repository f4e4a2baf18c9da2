package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"avatarmap/internal/collector"
	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/history"
	"avatarmap/internal/mapping"
	"avatarmap/internal/pipeline"
	"avatarmap/internal/testsupport"
)

func supportersSource() config.Source {
	return config.Source{
		Name:       "opencollective",
		ImageField: "image",
		Inputs:     []config.Input{{Path: "supporters.json", Field: "name", FilterField: "role", FilterValue: "backer"}},
	}
}

func run(t *testing.T, cfg *config.Config, opts ...func(*pipeline.Options)) pipeline.Summary {
	t.Helper()
	defs, err := pipeline.DefinitionsFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("DefinitionsFromConfig: %v", err)
	}
	o := pipeline.Options{Config: cfg}
	for _, opt := range opts {
		opt(&o)
	}
	summary, err := pipeline.NewRunner(o).Run(context.Background(), defs)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return summary
}

func TestRunWritesMappingForImagesOnly(t *testing.T) {
	server := testsupport.NewImageServer(t, 100, 100)
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "supporters.json"), []map[string]any{
		{"name": "Alice", "role": "backer", "image": server.URL("/a.png")},
		{"name": "Bob", "role": "backer", "image": nil},
	})

	summary := run(t, cfg)
	if err := summary.Err(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}

	m, err := mapping.Load(mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective"))
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if keys := m.Keys(); len(keys) != 1 || keys[0] != "alice" {
		t.Fatalf("expected only alice, got %v", keys)
	}
	files := m["alice"]
	if len(files) != 2 || files[0].Path != "img/avatar-local-cache/opencollective/alice.jpg" || files[0].Width != 73 {
		t.Fatalf("unexpected files %+v", files)
	}
	if server.TotalHits() != 1 {
		t.Fatalf("expected one request, got %d", server.TotalHits())
	}
}

func TestRunEmptySourceWritesEmptyObject(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "supporters.json"), []map[string]any{
		{"name": "Host", "role": "host", "image": "http://example.invalid/h.png"},
	})

	summary := run(t, cfg)
	if err := summary.Err(); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	data := testsupport.ReadFile(t, mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective"))
	if string(data) != "{}\n" {
		t.Fatalf("expected empty object artifact, got %q", data)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	server := testsupport.NewImageServer(t, 90, 60)
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()), testsupport.WithConcurrency(3))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "supporters.json"), []map[string]any{
		{"name": "Zed", "role": "backer", "image": server.URL("/z.png")},
		{"name": "alice", "role": "backer", "image": server.URL("/a.png")},
		{"name": "ALICE", "role": "backer", "image": server.URL("/a2.png")},
		{"name": "Mia", "role": "backer", "image": server.URL("/m.png")},
	})

	path := mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective")
	run(t, cfg)
	first := testsupport.ReadFile(t, path)
	run(t, cfg)
	second := testsupport.ReadFile(t, path)

	if !bytes.Equal(first, second) {
		t.Fatalf("expected byte-identical artifacts:\n%s\n---\n%s", first, second)
	}
	if server.Hits("/a2.png") != 0 {
		t.Fatal("expected duplicate casing to be fetched once via the first image URL")
	}
	if !bytes.Contains(first, []byte(`"alice"`)) || bytes.Index(first, []byte(`"alice"`)) > bytes.Index(first, []byte(`"zed"`)) {
		t.Fatalf("expected sorted keys, got:\n%s", first)
	}
}

func TestRunContainsSourceFailures(t *testing.T) {
	server := testsupport.NewImageServer(t, 80, 80)
	twitter := config.Source{
		Name:          "twitter",
		ImageTemplate: server.URL("/{id}.png"),
		Inputs:        []config.Input{{Path: "testimonials.json", Field: "twitter"}},
	}
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource(), twitter))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "testimonials.json"), []map[string]any{
		{"twitter": "ZachLeat"},
	})

	recorder, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer recorder.Close()

	summary := run(t, cfg, func(o *pipeline.Options) { o.History = recorder })

	err = summary.Err()
	if !errors.Is(err, failure.ErrInvalidInput) {
		t.Fatalf("expected invalid input error for opencollective, got %v", err)
	}
	if summary.Written() != 1 || summary.Failed() != 1 {
		t.Fatalf("unexpected summary counts: written=%d failed=%d", summary.Written(), summary.Failed())
	}
	if _, err := os.Stat(mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective")); !os.IsNotExist(err) {
		t.Fatalf("expected no artifact for aborted source, stat err %v", err)
	}
	m, err := mapping.Load(mapping.ArtifactPath(cfg.Paths.MappingDir, "twitter"))
	if err != nil {
		t.Fatalf("load twitter artifact: %v", err)
	}
	if _, ok := m["zachleat"]; !ok {
		t.Fatalf("expected zachleat entry, got %v", m.Keys())
	}
	if server.Hits("/zachleat.png") != 1 {
		t.Fatalf("expected template URL to use the lowercase key")
	}

	entries, err := recorder.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two history rows, got %d", len(entries))
	}
	statuses := map[string]string{}
	for _, e := range entries {
		statuses[e.Source] = e.Status
		if e.RunID != summary.RunID {
			t.Fatalf("expected run id %q, got %q", summary.RunID, e.RunID)
		}
	}
	if statuses["opencollective"] != history.StatusFailed || statuses["twitter"] != history.StatusSucceeded {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestRunSkipsFailedIdentifiers(t *testing.T) {
	server := testsupport.NewImageServer(t, 80, 80)
	server.FailNext("/bad.png", 2)
	server.FailNext("/flaky.png", 1)
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.DataDir, "supporters.json"), []map[string]any{
		{"name": "Bad", "role": "backer", "image": server.URL("/bad.png")},
		{"name": "Flaky", "role": "backer", "image": server.URL("/flaky.png")},
		{"name": "Local", "role": "backer", "image": "file:///etc/passwd"},
	})

	summary := run(t, cfg)
	if err := summary.Err(); err != nil {
		t.Fatalf("identifier failures must not abort the source: %v", err)
	}
	m, err := mapping.Load(mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective"))
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if keys := m.Keys(); len(keys) != 1 || keys[0] != "flaky" {
		t.Fatalf("expected only flaky to survive, got %v", keys)
	}
	if server.Hits("/bad.png") != 2 || server.Hits("/flaky.png") != 2 {
		t.Fatalf("unexpected hit counts bad=%d flaky=%d", server.Hits("/bad.png"), server.Hits("/flaky.png"))
	}
}

func TestRunMergeKeepsPreviousEntries(t *testing.T) {
	server := testsupport.NewImageServer(t, 80, 80)
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()), testsupport.WithMerge())
	supporters := filepath.Join(cfg.Paths.DataDir, "supporters.json")

	testsupport.WriteJSON(t, supporters, []map[string]any{{"name": "Old", "role": "backer", "image": server.URL("/o.png")}})
	run(t, cfg)
	testsupport.WriteJSON(t, supporters, []map[string]any{{"name": "New", "role": "backer", "image": server.URL("/n.png")}})
	run(t, cfg)

	m, err := mapping.Load(mapping.ArtifactPath(cfg.Paths.MappingDir, "opencollective"))
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if keys := strings.Join(m.Keys(), ","); keys != "new,old" {
		t.Fatalf("expected merged keys, got %s", keys)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()))
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("acquire test lock: %v", err)
	}
	defer lock.Unlock()

	_, err = pipeline.NewRunner(pipeline.Options{Config: cfg}).Run(context.Background(), nil)
	if !errors.Is(err, pipeline.ErrRunInProgress) {
		t.Fatalf("expected run-in-progress error, got %v", err)
	}
}

func TestRunSendsNotifications(t *testing.T) {
	var hits atomic.Int32
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ntfy.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithSources(supportersSource()), testsupport.WithNtfyTopic(ntfy.URL))
	summary := run(t, cfg)
	if summary.Failed() != 1 {
		t.Fatalf("expected missing input to fail the source")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected source failure and run summary notifications, got %d", got)
	}
}

func TestDefinitionsFromConfigSelectsByName(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDefaultSources())

	defs, err := pipeline.DefinitionsFromConfig(cfg, nil, "Twitter")
	if err != nil {
		t.Fatalf("DefinitionsFromConfig: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "twitter" {
		t.Fatalf("unexpected definitions %+v", defs)
	}
	if _, err := pipeline.DefinitionsFromConfig(cfg, nil, "mastodon"); !errors.Is(err, failure.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStaticDefinitionRuns(t *testing.T) {
	server := testsupport.NewImageServer(t, 10, 10)
	cfg := testsupport.NewConfig(t, testsupport.WithoutHistory())
	defs := []pipeline.Definition{
		pipeline.StaticDefinition("extras", []collector.Entry{{Key: "eleventy", Name: "Eleventy", ImageURL: server.URL("/e.png")}}),
		pipeline.StaticDefinition("empty", nil),
	}
	summary, err := pipeline.NewRunner(pipeline.Options{Config: cfg}).Run(context.Background(), defs)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Written() != 2 {
		t.Fatalf("expected both artifacts written, got %d (%v)", summary.Written(), summary.Err())
	}
	if summary.Sources[0].Entries != 1 || summary.Sources[1].Entries != 0 {
		t.Fatalf("unexpected entry counts %+v", summary.Sources)
	}
}
