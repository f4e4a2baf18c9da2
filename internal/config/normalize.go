package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeSources()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.Root) == "" {
		c.Paths.Root = defaultRoot
	}
	if c.Paths.Root, err = expandPath(c.Paths.Root); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandUnder(c.Paths.Root, c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandUnder(c.Paths.Root, c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MappingDir) == "" {
		c.Paths.MappingDir = defaultMappingDir
	}
	if c.Paths.MappingDir, err = expandUnder(c.Paths.Root, c.Paths.MappingDir); err != nil {
		return fmt.Errorf("paths.mapping_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	formats := make([]string, 0, len(c.Fetch.Formats))
	seen := make(map[string]struct{}, len(c.Fetch.Formats))
	for _, format := range c.Fetch.Formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "jpg" {
			format = "jpeg"
		}
		if format == "" {
			continue
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		formats = append(formats, format)
	}
	if len(formats) == 0 {
		formats = append(formats, defaultFormats...)
	}
	c.Fetch.Formats = formats
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
	if c.Fetch.Burst <= 0 {
		c.Fetch.Burst = defaultBurst
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("AVATARMAP_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeSources() {
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Name = strings.ToLower(strings.TrimSpace(src.Name))
		src.ImageField = strings.TrimSpace(src.ImageField)
		src.ImageTemplate = strings.TrimSpace(src.ImageTemplate)
		for j := range src.Inputs {
			in := &src.Inputs[j]
			in.Path = strings.TrimSpace(in.Path)
			in.Field = strings.TrimSpace(in.Field)
			in.FilterField = strings.TrimSpace(in.FilterField)
			in.FilterValue = strings.TrimSpace(in.FilterValue)
		}
	}
}
