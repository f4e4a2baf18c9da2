package config

import (
	"errors"
	"fmt"
	"strings"

	"avatarmap/internal/textutil"
)

var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFetch() error {
	if err := ensurePositiveMap(map[string]int{
		"fetch.width":           c.Fetch.Width,
		"fetch.concurrency":     c.Fetch.Concurrency,
		"fetch.timeout_seconds": c.Fetch.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Fetch.JPEGQuality < 1 || c.Fetch.JPEGQuality > 100 {
		return errors.New("fetch.jpeg_quality must be between 1 and 100")
	}
	if c.Fetch.RetryDelaySeconds < 0 {
		return errors.New("fetch.retry_delay_seconds must be >= 0")
	}
	if c.Fetch.MaxImageBytes <= 0 {
		return errors.New("fetch.max_image_bytes must be positive")
	}
	if c.Fetch.MaxImagePixels <= 0 {
		return errors.New("fetch.max_image_pixels must be positive")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second must be >= 0")
	}
	for _, format := range c.Fetch.Formats {
		if !supportedFormats[format] {
			return fmt.Errorf("fetch.formats: unsupported format %q (use jpeg, png, or gif)", format)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		key := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			return fmt.Errorf("%s.name must be set", key)
		}
		if textutil.Slug(src.Name) != src.Name {
			return fmt.Errorf("%s.name %q must be a lowercase slug (try %q)", key, src.Name, textutil.Slug(src.Name))
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("%s.name %q is declared more than once", key, src.Name)
		}
		seen[src.Name] = struct{}{}

		switch {
		case src.ImageField == "" && src.ImageTemplate == "":
			return fmt.Errorf("source %q: one of image_field or image_template must be set", src.Name)
		case src.ImageField != "" && src.ImageTemplate != "":
			return fmt.Errorf("source %q: image_field and image_template are mutually exclusive", src.Name)
		case src.ImageTemplate != "" && !strings.Contains(src.ImageTemplate, TemplatePlaceholder):
			return fmt.Errorf("source %q: image_template must contain %s", src.Name, TemplatePlaceholder)
		}

		if len(src.Inputs) == 0 {
			return fmt.Errorf("source %q: at least one input is required", src.Name)
		}
		for j, in := range src.Inputs {
			if in.Path == "" {
				return fmt.Errorf("source %q: inputs[%d].path must be set", src.Name, j)
			}
			if in.Field == "" {
				return fmt.Errorf("source %q: inputs[%d].field must be set", src.Name, j)
			}
			if (in.FilterField == "") != (in.FilterValue == "") {
				return fmt.Errorf("source %q: inputs[%d] filter_field and filter_value must be set together", src.Name, j)
			}
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
