package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultStoreDir           = "./data"
	defaultDBMaxOpenConns     = 25
	defaultDBMaxIdleConns     = 5
	defaultDBConnMaxLifetime  = 5 * time.Minute
	defaultVNPayPayURL        = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	defaultVNPayAPIURL        = "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"
	defaultVNPayExpireAfter   = 15 * time.Minute
	defaultVNPayTimeout       = 10 * time.Second
	defaultFreeShippingFloor  = 299000
	defaultFlatShippingFee    = 30000
	defaultCatalogPageSize    = 12
	defaultNewProductIDMark   = 6
	defaultCartConflictRetry  = 1
	defaultRateLimitPerMinute = 120
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	VNPay      VNPayConfig
	Checkout   CheckoutConfig
	Catalog    CatalogConfig
	RateLimits RateLimitConfig
	Features   FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig controls the file-backed session store.
type StoreConfig struct {
	Dir             string
	Watch           bool
	ConflictRetries int
}

// DatabaseConfig holds MySQL catalog connection settings.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// VNPayConfig collects merchant credentials and endpoints for the VNPay gateway.
type VNPayConfig struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	ReturnURL   string
	ExpireAfter time.Duration
	Timeout     time.Duration
}

// CheckoutConfig carries order pricing parameters in VND.
type CheckoutConfig struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// CatalogConfig controls browsing defaults.
type CatalogConfig struct {
	PageSize       int
	NewProductIDGt int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableVNPay      bool
	EnableStoreWatch bool
}

// SecretResolver resolves references to externally managed secrets.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Dir:             stringWithDefault(lookup, "API_STORE_DIR", defaultStoreDir),
			Watch:           boolWithDefault(lookup, "API_STORE_WATCH", true),
			ConflictRetries: intWithDefault(lookup, "API_STORE_CONFLICT_RETRIES", defaultCartConflictRetry),
		},
		Database: DatabaseConfig{
			DSN:             stringWithDefault(lookup, "API_DB_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns:    intWithDefault(lookup, "API_DB_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
			ConnMaxLifetime: durationWithDefault(lookup, "API_DB_CONN_MAX_LIFETIME", defaultDBConnMaxLifetime),
		},
		VNPay: VNPayConfig{
			TmnCode:     stringWithDefault(lookup, "API_VNPAY_TMN_CODE", ""),
			HashSecret:  stringWithDefault(lookup, "API_VNPAY_HASH_SECRET", ""),
			PayURL:      stringWithDefault(lookup, "API_VNPAY_PAY_URL", defaultVNPayPayURL),
			APIURL:      stringWithDefault(lookup, "API_VNPAY_API_URL", defaultVNPayAPIURL),
			ReturnURL:   stringWithDefault(lookup, "API_VNPAY_RETURN_URL", ""),
			ExpireAfter: durationWithDefault(lookup, "API_VNPAY_EXPIRE_AFTER", defaultVNPayExpireAfter),
			Timeout:     durationWithDefault(lookup, "API_VNPAY_TIMEOUT", defaultVNPayTimeout),
		},
		Checkout: CheckoutConfig{
			FreeShippingThreshold: int64WithDefault(lookup, "API_CHECKOUT_FREE_SHIPPING_THRESHOLD", defaultFreeShippingFloor),
			FlatShippingFee:       int64WithDefault(lookup, "API_CHECKOUT_FLAT_SHIPPING_FEE", defaultFlatShippingFee),
		},
		Catalog: CatalogConfig{
			PageSize:       intWithDefault(lookup, "API_CATALOG_PAGE_SIZE", defaultCatalogPageSize),
			NewProductIDGt: intWithDefault(lookup, "API_CATALOG_NEW_PRODUCT_ID_GT", defaultNewProductIDMark),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute: intWithDefault(lookup, "API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitPerMinute),
		},
		Features: FeatureFlags{
			EnableVNPay:      boolWithDefault(lookup, "API_FEATURE_VNPAY", true),
			EnableStoreWatch: boolWithDefault(lookup, "API_FEATURE_STORE_WATCH", true),
		},
	}

	// The hash secret may reference an external secret store.
	resolved, err := resolveSecret(ctx, cfg.VNPay.HashSecret, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.VNPay.HashSecret = resolved

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	ref := strings.TrimSpace(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Store.Dir) == "" {
		missing = append(missing, "Store.Dir")
	}
	if cfg.Checkout.FreeShippingThreshold < 0 {
		missing = append(missing, "Checkout.FreeShippingThreshold")
	}
	if cfg.Checkout.FlatShippingFee < 0 {
		missing = append(missing, "Checkout.FlatShippingFee")
	}
	if cfg.Catalog.PageSize <= 0 {
		missing = append(missing, "Catalog.PageSize")
	}
	if cfg.Features.EnableVNPay {
		if strings.TrimSpace(cfg.VNPay.TmnCode) == "" {
			missing = append(missing, "VNPay.TmnCode")
		}
		if strings.TrimSpace(cfg.VNPay.HashSecret) == "" {
			missing = append(missing, "VNPay.HashSecret")
		}
		if strings.TrimSpace(cfg.VNPay.ReturnURL) == "" {
			missing = append(missing, "VNPay.ReturnURL")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://")
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
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
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
