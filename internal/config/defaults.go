package config

const (
	defaultRoot                 = "."
	defaultDataDir              = "_data"
	defaultCacheDir             = "img/avatar-local-cache"
	defaultMappingDir           = "_data/avatarmap"
	defaultStateDir             = "~/.local/share/avatarmap"
	defaultWidth                = 73
	defaultJPEGQuality          = 85
	defaultConcurrency          = 1
	defaultTimeoutSeconds       = 30
	defaultMaxImageBytes        = 5 << 20
	defaultMaxImagePixels       = 40_000_000
	defaultBurst                = 1
	defaultUserAgent            = "avatarmap/dev (+https://github.com/avatarmap/avatarmap)"
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// TemplatePlaceholder is replaced with the escaped identifier in image_template values.
	TemplatePlaceholder = "{id}"
)

var defaultFormats = []string{"jpeg", "png"}

// Default returns a Config populated with repository defaults. Sources are
// left empty here; normalize injects DefaultSources when none are configured.
func Default() Config {
	return Config{
		Paths: Paths{
			Root:       defaultRoot,
			DataDir:    defaultDataDir,
			CacheDir:   defaultCacheDir,
			MappingDir: defaultMappingDir,
			StateDir:   defaultStateDir,
		},
		Fetch: Fetch{
			Width:          defaultWidth,
			Formats:        append([]string(nil), defaultFormats...),
			JPEGQuality:    defaultJPEGQuality,
			Concurrency:    defaultConcurrency,
			TimeoutSeconds: defaultTimeoutSeconds,
			MaxImageBytes:  defaultMaxImageBytes,
			MaxImagePixels: defaultMaxImagePixels,
			Burst:          defaultBurst,
			UserAgent:      defaultUserAgent,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// DefaultSources returns the Open Collective and Twitter sources used when a
// configuration file declares none.
func DefaultSources() []Source {
	return []Source{
		{
			Name:       "opencollective",
			ImageField: "image",
			Inputs: []Input{
				{Path: "supporters.json", Field: "name", FilterField: "role", FilterValue: "backer"},
			},
		},
		{
			Name:          "twitter",
			ImageTemplate: "https://twitter.com/" + TemplatePlaceholder + "/profile_image?size=bigger",
			Inputs: []Input{
				{Path: "testimonials.json", Field: "twitter"},
				{Path: "starters.json", Field: "author"},
				{Path: "extraAvatars.json", Field: "twitter"},
				{Path: "sites/*.json", Field: "twitter"},
			},
		},
	}
}
