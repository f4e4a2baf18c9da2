package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"avatarmap/internal/config"
	"avatarmap/internal/failure"
	"avatarmap/internal/logging"
	"avatarmap/internal/textutil"
)

// File describes one cached image produced for an identifier.
type File struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Request identifies the avatar to materialize.
type Request struct {
	Source     string
	Identifier string
	// Slug overrides the cache file stem. When empty it is derived from
	// Identifier.
	Slug     string
	ImageURL string
}

func (r Request) slug() string {
	if r.Slug != "" {
		return r.Slug
	}
	return textutil.Slug(r.Identifier)
}

// Result is the outcome of FetchWithRetry.
type Result struct {
	Files    []File
	Attempts int
}

// Options configures a Fetcher.
type Options struct {
	// Root is the project root; file paths inside it are reported relative
	// to it.
	Root        string
	CacheDir    string
	Width       int
	Formats     []string
	JPEGQuality int
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxBytes    int64
	// MaxPixels bounds width*height of a decoded image.
	MaxPixels   int64
	UserAgent   string
	ReuseCached bool
	// Limiter throttles outbound requests. Nil means unlimited.
	Limiter *rate.Limiter
	Client  *http.Client
	Logger  *slog.Logger
}

// OptionsFromConfig derives fetch options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:        cfg.Paths.Root,
		CacheDir:    cfg.Paths.CacheDir,
		Width:       cfg.Fetch.Width,
		Formats:     append([]string(nil), cfg.Fetch.Formats...),
		JPEGQuality: cfg.Fetch.JPEGQuality,
		Timeout:     time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		RetryDelay:  time.Duration(cfg.Fetch.RetryDelaySeconds) * time.Second,
		MaxBytes:    cfg.Fetch.MaxImageBytes,
		MaxPixels:   cfg.Fetch.MaxImagePixels,
		UserAgent:   cfg.Fetch.UserAgent,
		ReuseCached: cfg.Fetch.ReuseCached,
		Limiter:     NewLimiter(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Burst),
	}
}

// NewLimiter returns a limiter allowing rps requests per second, or nil
// when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Fetcher materializes avatars into the cache.
type Fetcher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New constructs a Fetcher. Zero-valued options fall back to the same
// defaults the configuration uses.
func New(opts Options) *Fetcher {
	if opts.Width <= 0 {
		opts.Width = 73
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []string{"jpeg", "png"}
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 85
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = 40_000_000
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		opts:   opts,
		client: client,
		logger: logging.NewComponentLogger(opts.Logger, "fetch"),
	}
}

// SourceDir returns the cache directory holding a source's images.
func (f *Fetcher) SourceDir(source string) string {
	if source == "" {
		return f.opts.CacheDir
	}
	return filepath.Join(f.opts.CacheDir, source)
}

// Fetch performs a single attempt. An empty ImageURL yields no files and no
// error.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]File, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, nil
	}
	if err := ValidateURL(req.ImageURL); err != nil {
		return nil, failure.Wrap(failure.ErrUnsupportedURL, req.Source, "validate url", req.Identifier, err)
	}

	dir := f.SourceDir(req.Source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure.Wrap(failure.ErrFilesystem, req.Source, "create cache dir", dir, err)
	}

	slug := req.slug()
	if f.opts.ReuseCached {
		if files, ok := f.cached(dir, slug); ok {
			f.logger.Debug("reusing cached image",
				logging.String(logging.FieldSource, req.Source),
				logging.String(logging.FieldIdentifier, req.Identifier),
			)
			return files, nil
		}
	}

	data, err := f.download(ctx, req)
	if err != nil {
		return nil, err
	}
	src, err := decode(data, f.opts.MaxPixels)
	if errors.Is(err, errTooManyPixels) {
		return nil, failure.Wrap(failure.ErrInvalidInput, req.Source, "decode image", req.Identifier, err)
	}
	if err != nil {
		return nil, failure.Wrap(failure.ErrTransient, req.Source, "decode image", req.Identifier, err)
	}
	scaled := scaleToWidth(src, f.opts.Width)

	files := make([]File, 0, len(f.opts.Formats))
	for _, format := range f.opts.Formats {
		path := filepath.Join(dir, slug+"."+extension(format))
		if err := writeImage(path, scaled, format, f.opts.JPEGQuality); err != nil {
			return nil, failure.Wrap(failure.ErrFilesystem, req.Source, "write image", path, err)
		}
		bounds := scaled.Bounds()
		files = append(files, File{
			Name:   slug,
			Path:   f.displayPath(path),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Format: format,
		})
	}
	return files, nil
}

func (f *Fetcher) download(ctx context.Context, req Request) ([]byte, error) {
	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.ImageURL, nil)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnsupportedURL, req.Source, "build request", req.Identifier, err)
	}
	if f.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	}
	httpReq.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, failure.Wrap(failure.ErrTransient, req.Source, "download", req.Identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, failure.Wrap(failure.ErrTransient, req.Source, "download", req.Identifier,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, failure.Wrap(failure.ErrTransient, req.Source, "read body", req.Identifier, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, failure.Wrap(failure.ErrTransient, req.Source, "read body", req.Identifier,
			fmt.Errorf("image exceeds %d bytes", f.opts.MaxBytes))
	}
	return data, nil
}

// cached reports the existing files for slug when every configured format
// is present and decodable.
func (f *Fetcher) cached(dir, slug string) ([]File, bool) {
	files := make([]File, 0, len(f.opts.Formats))
	for _, format := range f.opts.Formats {
		path := filepath.Join(dir, slug+"."+extension(format))
		width, height, err := probe(path)
		if err != nil {
			return nil, false
		}
		files = append(files, File{
			Name:   slug,
			Path:   f.displayPath(path),
			Width:  width,
			Height: height,
			Format: format,
		})
	}
	return files, true
}

// displayPath reports path relative to the project root when it lies inside
// it, always with forward slashes so artifacts are identical across hosts.
func (f *Fetcher) displayPath(path string) string {
	if f.opts.Root != "" {
		if rel, err := filepath.Rel(f.opts.Root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
