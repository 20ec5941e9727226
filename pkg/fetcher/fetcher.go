package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davidthor/pypes/pkg/errors"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	componentFile = "component.wasm"
	manifestFile  = "manifest.toml"
	interfaceFile = "interface.wit"

	sha256Prefix = "sha256:"
)

// manifest is the registry manifest contract. Extra keys are ignored.
type manifest struct {
	Checksums struct {
		Component string `toml:"component"`
	} `toml:"checksums"`
}

// Fetcher resolves component locators. Local paths pass through; remote
// locators are downloaded into the cache and content-verified.
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	retries   uint64
	logger    *zap.Logger
}

// Options configures the fetcher.
type Options struct {
	// CacheDir overrides the cache root (default $HOME/.pypes/cache).
	CacheDir string

	// UserAgent is sent on every registry request.
	UserAgent string

	// HTTPTimeout bounds each registry request.
	HTTPTimeout time.Duration

	// Retries is the number of additional attempts per GET.
	Retries uint64

	// Logger receives download narration. Nil disables it.
	Logger *zap.Logger
}

// DefaultCacheDir returns $HOME/.pypes/cache.
func DefaultCacheDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", errors.New(errors.ErrCodeConfigIO, "HOME environment variable not set")
	}
	return filepath.Join(home, ".pypes", "cache"), nil
}

// New creates a fetcher.
func New(opts Options) (*Fetcher, error) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		cacheDir = dir
	}

	timeout := opts.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "pypes/0.1.0"
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		cacheDir:  cacheDir,
		userAgent: userAgent,
		retries:   opts.Retries,
		logger:    logger,
	}, nil
}

// Resolve returns the local path to the component named by the locator.
// Local paths are returned relative to baseDir; remote locators hit the
// cache first and the registry on a miss.
func (f *Fetcher) Resolve(baseDir, locator string) (string, error) {
	if !IsRemote(locator) {
		return filepath.Join(baseDir, locator), nil
	}
	return f.Fetch(locator)
}

// Fetch downloads a remote component, verifies its checksum against the
// manifest, and returns the cached component path. A prior cache entry is
// reused without re-downloading.
func (f *Fetcher) Fetch(uri string) (string, error) {
	loc, err := ParseLocator(uri)
	if err != nil {
		return "", err
	}

	cachePath := filepath.Join(f.cacheDir, loc.Host, loc.Name+"@"+loc.Version)
	componentPath := filepath.Join(cachePath, componentFile)

	if _, err := os.Stat(componentPath); err == nil {
		f.logger.Info("using cached component", zap.String("uri", uri), zap.String("path", componentPath))
		return componentPath, nil
	}

	f.logger.Info("downloading component", zap.String("uri", uri))
	base := loc.BaseURL()

	manifestBytes, err := f.get(base + "/" + manifestFile)
	if err != nil {
		return "", err
	}

	var m manifest
	if err := toml.Unmarshal(manifestBytes, &m); err != nil {
		return "", errors.Wrap(errors.ErrCodeManifestChecksum,
			fmt.Sprintf("failed to parse manifest for %s", uri), err)
	}
	expected := m.Checksums.Component
	if expected == "" {
		return "", errors.New(errors.ErrCodeManifestChecksum,
			fmt.Sprintf("manifest for %s missing checksums.component", uri))
	}

	componentBytes, err := f.get(base + "/" + componentFile)
	if err != nil {
		return "", err
	}

	if err := verifyChecksum(componentBytes, expected); err != nil {
		return "", err
	}

	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeFetchHTTP, "failed to create cache directory", err)
	}
	if err := writeAtomic(componentPath, componentBytes); err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(cachePath, manifestFile), manifestBytes); err != nil {
		return "", err
	}

	// interface.wit is best-effort; missing descriptors degrade wiring to
	// root-export handling downstream.
	if witBytes, err := f.get(base + "/" + interfaceFile); err == nil {
		if err := writeAtomic(filepath.Join(cachePath, interfaceFile), witBytes); err != nil {
			return "", err
		}
	} else {
		f.logger.Warn("no interface.wit found", zap.String("uri", uri), zap.Error(err))
	}

	f.logger.Info("downloaded and verified", zap.String("uri", uri), zap.String("path", componentPath))
	return componentPath, nil
}

// get issues a GET with bounded exponential-backoff retries. Any terminal
// failure maps to FetchHTTP.
func (f *Fetcher) get(url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("GET %s: %s", url, resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: %s", url, resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.retries)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetchHTTP, fmt.Sprintf("failed to fetch %s", url), err)
	}
	return body, nil
}

// verifyChecksum checks data against a declared "sha256:<hex>" digest,
// case-insensitively.
func verifyChecksum(data []byte, expected string) error {
	if !strings.HasPrefix(expected, sha256Prefix) {
		return errors.New(errors.ErrCodeUnsupportedHash,
			fmt.Sprintf("only sha256 checksums are supported, got %q", expected))
	}

	sum := sha256.Sum256(data)
	computed := hex.EncodeToString(sum[:])
	declared := strings.ToLower(strings.TrimPrefix(expected, sha256Prefix))

	if computed != declared {
		return errors.New(errors.ErrCodeChecksumMismatch,
			fmt.Sprintf("checksum mismatch: declared %s, computed %s", declared, computed))
	}
	return nil
}

// writeAtomic writes via a temp file and rename so a torn write never
// surfaces as a partially written cache entry.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFetchHTTP, "failed to stage cache write", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFetchHTTP, "failed to write cache entry", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFetchHTTP, "failed to write cache entry", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrCodeFetchHTTP, "failed to commit cache entry", err)
	}
	return nil
}
