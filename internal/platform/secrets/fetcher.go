package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const defaultFallbackPath = ".secrets.local"

// Fetcher resolves secret:// references against environment variables with a
// local fallback file for development. Resolved values are cached for the
// process lifetime until invalidated.
type Fetcher struct {
	logger       *zap.Logger
	envLookup    func(string) (string, bool)
	fallbackPath string

	mu       sync.Mutex
	cache    map[string]string
	watchers map[string][]chan struct{}

	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error
}

// Option customises fetcher construction.
type Option func(*Fetcher)

// WithLogger attaches a logger for resolution diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvLookup overrides the environment source, primarily for tests.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(f *Fetcher) {
		if lookup != nil {
			f.envLookup = lookup
		}
	}
}

// WithFallbackFile overrides the path of the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallbackPath = path
	}
}

// NewFetcher constructs a Fetcher with the provided options.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		logger:       zap.NewNop(),
		envLookup:    os.LookupEnv,
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
		watchers:     make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve returns the secret value for a secret://name reference. The
// environment variable SECRET_<NAME> wins; the fallback file covers local
// development.
func (f *Fetcher) Resolve(_ context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	if value, ok := f.cache[parsed.Canonical]; ok {
		f.mu.Unlock()
		return value, nil
	}
	f.mu.Unlock()

	if value, ok := f.envLookup(envKeyFor(parsed.Secret)); ok && value != "" {
		f.store(parsed.Canonical, value)
		return value, nil
	}

	if value, ok := f.lookupFallback(parsed); ok {
		f.store(parsed.Canonical, value)
		return value, nil
	}

	f.logger.Debug("secrets: reference unresolved", zap.String("ref", maskReference(parsed.Canonical)))
	return "", fmt.Errorf("secrets: no value found for %s", parsed.Canonical)
}

// Invalidate clears the cached value for the supplied reference and notifies
// subscribers.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}

	f.mu.Lock()
	delete(f.cache, parsed.Canonical)
	watchers := f.watchers[parsed.Canonical]
	f.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a watcher notified whenever the secret is invalidated.
func (f *Fetcher) Subscribe(ref string) (<-chan struct{}, func()) {
	parsed, err := parseReference(ref)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}

	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.watchers[parsed.Canonical] = append(f.watchers[parsed.Canonical], ch)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		watchers := f.watchers[parsed.Canonical]
		for i, existing := range watchers {
			if existing == ch {
				f.watchers[parsed.Canonical] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (f *Fetcher) store(canonical, value string) {
	f.mu.Lock()
	f.cache[canonical] = value
	f.mu.Unlock()
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, bool) {
	f.loadFallback()

	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if val, ok := f.fallbackVals[ref.Canonical]; ok {
		return val, true
	}
	if val, ok := f.fallbackVals[ref.Secret]; ok {
		return val, true
	}
	return "", false
}

func (f *Fetcher) loadFallback() {
	f.fallbackOnce.Do(func() {
		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			f.fallbackVals = map[string]string{}
			return
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		file, err := os.Open(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				f.fallbackVals = map[string]string{}
				return
			}
			f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
			f.fallbackVals = map[string]string{}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		values := make(map[string]string)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key == "" {
				continue
			}
			if parsed, err := parseReference(key); err == nil {
				values[parsed.Canonical] = value
			} else {
				values[key] = value
			}
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
		}
		f.fallbackVals = values
	})
}

type parsedReference struct {
	Raw       string
	Canonical string
	Secret    string
}

func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	return parsedReference{
		Raw:       ref,
		Canonical: canonical.String(),
		Secret:    secret,
	}, nil
}

func envKeyFor(secret string) string {
	normalized := strings.ToUpper(secret)
	normalized = strings.NewReplacer("-", "_", "/", "_", ".", "_").Replace(normalized)
	return "SECRET_" + normalized
}

func maskReference(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}
