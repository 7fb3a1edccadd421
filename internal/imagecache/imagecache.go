package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/metrics"
	"github.com/slok/comicsub/internal/model"
)

const (
	// DefaultPublicPrefix is the public path where the cached covers are served.
	DefaultPublicPrefix = "/cache/comic_cover"

	defaultExt = ".jpg"
)

// Cache result metric values.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultSkip  = "skip"
)

// Cacher caches remote images.
type Cacher interface {
	// Cache returns the public path of the cached image.
	Cache(ctx context.Context, rawURL string) (string, error)
}

// CacheConfig is the configuration of the image cache.
type CacheConfig struct {
	// Dir is the local directory where the images are stored.
	Dir          string
	PublicPrefix string
	HTTPClient   *http.Client
	Metrics      metrics.Recorder
	Logger       log.Logger
}

func (c *CacheConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = DefaultPublicPrefix
	}
	c.PublicPrefix = strings.TrimSuffix(c.PublicPrefix, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "imagecache.Cache"})
	return nil
}

// Cache is a content addressed image cache on the local disk, the file name
// of an image is derived from its URL.
type Cache struct {
	dir     string
	prefix  string
	cli     *http.Client
	metrics metrics.Recorder
	logger  log.Logger
	group   singleflight.Group
}

// NewCache returns a new image cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create cache dir: %w", err)
	}

	return &Cache{
		dir:     cfg.Dir,
		prefix:  cfg.PublicPrefix,
		cli:     cfg.HTTPClient,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Cache downloads the image if it's not already cached and returns its public
// path. Only http and https URLs can be cached.
func (c *Cache) Cache(ctx context.Context, rawURL string) (string, error) {
	name, err := FileName(rawURL)
	if err != nil {
		c.metrics.IncCoverCache(ResultSkip)
		return "", err
	}
	public := c.prefix + "/" + name

	res := ResultHit
	_, err, _ = c.group.Do(name, func() (any, error) {
		local := filepath.Join(c.dir, name)
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}

		res = ResultMiss
		return nil, c.download(ctx, rawURL, local)
	})
	if err != nil {
		c.metrics.IncCoverCache(ResultError)
		return "", err
	}

	c.metrics.IncCoverCache(res)
	return public, nil
}

// Resolve returns the local file of a cached image public path.
func (c *Cache) Resolve(publicPath string) (string, bool) {
	name, ok := strings.CutPrefix(publicPath, c.prefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return "", false
	}

	local := filepath.Join(c.dir, name)
	if _, err := os.Stat(local); err != nil {
		return "", false
	}
	return local, true
}

func (c *Cache) download(ctx context.Context, rawURL, local string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return fmt.Errorf("could not get image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("could not get image: unexpected status %d", resp.StatusCode)
	}

	// Write to a temp file first so a failed download never looks cached.
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("could not write image: %w", err)
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return fmt.Errorf("could not store image: %w", err)
	}
	c.logger.Debugf("Image %s cached as %s", rawURL, local)

	return nil
}

// FileName returns the cache file name of an image URL: the hex sha256 of
// the URL plus the URL path extension (.jpg if missing).
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w: %w", err, model.ErrNotValid)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("image url %q is not http: %w", rawURL, model.ErrNotValid)
	}

	sum := sha256.Sum256([]byte(rawURL))
	ext := path.Ext(u.Path)
	if ext == "" || strings.ContainsAny(ext, `\`) {
		ext = defaultExt
	}

	return hex.EncodeToString(sum[:]) + ext, nil
}
