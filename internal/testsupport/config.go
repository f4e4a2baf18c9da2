package testsupport

import (
	"path/filepath"
	"testing"

	"avatarmap/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory per test.
// It defaults common fields and applies any provided options. No sources are
// configured unless WithSources is given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Root = base
	cfgVal.Paths.DataDir = filepath.Join(base, "_data")
	cfgVal.Paths.CacheDir = filepath.Join(base, "img", "avatar-local-cache")
	cfgVal.Paths.MappingDir = filepath.Join(base, "_data", "avatarmap")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Fetch.TimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSources replaces the configured sources.
func WithSources(sources ...config.Source) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources = append([]config.Source(nil), sources...)
	}
}

// WithDefaultSources configures the Open Collective and Twitter sources.
func WithDefaultSources() ConfigOption {
	return WithSources(config.DefaultSources()...)
}

// WithConcurrency overrides the per-source worker count.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.Concurrency = n
	}
}

// WithFormats overrides the output formats.
func WithFormats(formats ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.Formats = append([]string(nil), formats...)
	}
}

// WithMerge enables merging with the previous mapping artifact.
func WithMerge() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mapping.Merge = true
	}
}

// WithoutHistory disables the run history database.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// WithNtfyTopic points notifications at topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.Root
}
