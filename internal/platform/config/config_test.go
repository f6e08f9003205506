package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_VNPAY_TMN_CODE":    "VCART01",
		"API_VNPAY_HASH_SECRET": "topsecret",
		"API_VNPAY_RETURN_URL":  "https://shop.example.com/checkout/return",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Dir != "./data" {
		t.Errorf("unexpected store dir: %s", cfg.Store.Dir)
	}
	if !cfg.Store.Watch {
		t.Error("expected store watch enabled by default")
	}
	if cfg.Store.ConflictRetries != 1 {
		t.Errorf("unexpected conflict retries: %d", cfg.Store.ConflictRetries)
	}
	if cfg.Checkout.FreeShippingThreshold != 299000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.FlatShippingFee != 30000 {
		t.Errorf("unexpected flat shipping fee: %d", cfg.Checkout.FlatShippingFee)
	}
	if cfg.Catalog.PageSize != 12 {
		t.Errorf("unexpected catalog page size: %d", cfg.Catalog.PageSize)
	}
	if cfg.Catalog.NewProductIDGt != 6 {
		t.Errorf("unexpected new product threshold: %d", cfg.Catalog.NewProductIDGt)
	}
	if cfg.VNPay.PayURL != defaultVNPayPayURL {
		t.Errorf("unexpected pay url: %s", cfg.VNPay.PayURL)
	}
	if cfg.VNPay.ExpireAfter != 15*time.Minute {
		t.Errorf("unexpected expire window: %s", cfg.VNPay.ExpireAfter)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_SERVER_IDLE_TIMEOUT"] = "2m"
	env["API_STORE_DIR"] = "/var/lib/storefront"
	env["API_DB_DSN"] = "shop:shop@tcp(localhost:3306)/shopee_db?parseTime=true"
	env["API_DB_MAX_OPEN_CONNS"] = "50"
	env["API_CHECKOUT_FREE_SHIPPING_THRESHOLD"] = "500000"
	env["API_CHECKOUT_FLAT_SHIPPING_FEE"] = "45000"
	env["API_CATALOG_PAGE_SIZE"] = "24"
	env["API_FEATURE_STORE_WATCH"] = "false"

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Store.Dir != "/var/lib/storefront" {
		t.Errorf("unexpected store dir: %s", cfg.Store.Dir)
	}
	if cfg.Database.DSN == "" || cfg.Database.MaxOpenConns != 50 {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Checkout.FreeShippingThreshold != 500000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Checkout.FreeShippingThreshold)
	}
	if cfg.Checkout.FlatShippingFee != 45000 {
		t.Errorf("unexpected flat shipping fee: %d", cfg.Checkout.FlatShippingFee)
	}
	if cfg.Catalog.PageSize != 24 {
		t.Errorf("unexpected catalog page size: %d", cfg.Catalog.PageSize)
	}
	if cfg.Features.EnableStoreWatch {
		t.Error("expected store watch feature disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_VNPAY_TMN_CODE=VCART01\nAPI_VNPAY_HASH_SECRET=topsecret\nAPI_VNPAY_RETURN_URL=https://shop.example.com/return\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.VNPay.TmnCode != "VCART01" {
		t.Errorf("expected tmn code from dotenv, got %s", cfg.VNPay.TmnCode)
	}
}

func TestLoadMissingVNPayFields(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := vErr.Fields()
	if len(fields) != 3 {
		t.Fatalf("unexpected missing fields %v", fields)
	}
}

func TestLoadVNPayDisabledSkipsGatewayValidation(t *testing.T) {
	env := map[string]string{
		"API_FEATURE_VNPAY": "false",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Features.EnableVNPay {
		t.Error("expected vnpay feature disabled")
	}
}

func TestLoadSecretResolver(t *testing.T) {
	env := baseEnv()
	env["API_VNPAY_HASH_SECRET"] = "secret://vnpay/hash"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://vnpay/hash" {
			return "resolved-secret", nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.VNPay.HashSecret != "resolved-secret" {
		t.Fatalf("expected resolved hash secret, got %s", cfg.VNPay.HashSecret)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_VNPAY_HASH_SECRET"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}
