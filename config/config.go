package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/certcheck/identity"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Portal    PortalConfig
	Verify    VerifyConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration // default: 10s

	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin; empty disables CORS headers.
	CORSOrigins []string // default: ["*"]
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless. Operators who
	// solve the CAPTCHA on the server's own screen turn it off.
	Headless bool // default: true

	// Proxy is the proxy URL for all portal traffic.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// PortalConfig describes the certificate portal and how pages are opened on it.
type PortalConfig struct {
	// URL is the verification form.
	URL string // default: INEP authenticity page

	// NavigationTimeout bounds page.Navigate alone.
	NavigationTimeout time.Duration // default: 45s

	// FillDelay lets the single-page app render its form before the code
	// is typed in.
	FillDelay time.Duration // default: 1.5s

	// Stealth injects anti-automation-detection scripts.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block. Images are never
	// blocked by default: the CAPTCHA is one.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true

	// ResultSelector narrows audit transcripts to the result container.
	ResultSelector string

	// ReferenceLayout is the layout fingerprint of a known-good result page.
	// Zero disables drift detection.
	ReferenceLayout uint64

	// LayoutTolerance is the largest fingerprint distance not reported as drift.
	LayoutTolerance int // default: 12
}

// VerifyConfig controls verification sessions.
type VerifyConfig struct {
	// ExpectedID is the 11-digit identifier results must certify. Required.
	ExpectedID string

	// SessionTTL evicts sessions older than this. Zero keeps them forever.
	SessionTTL time.Duration // default: 30m

	// PollTimeout bounds a single poll request.
	PollTimeout time.Duration // default: 20s

	// StartTimeout bounds a single start request: opening the portal and
	// filling in the code.
	StartTimeout time.Duration // default: 90s
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per client IP.
	Burst int // default: 10
}

// WebhookConfig controls decision notifications.
type WebhookConfig struct {
	// URL receives a POST for every decision. Empty disables webhooks.
	URL string

	// Secret signs webhook bodies with HMAC-SHA256.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultPortalURL is the INEP certificate authenticity page.
const DefaultPortalURL = "https://enem.inep.gov.br/participante/#!/autenticidade"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("CERTCHECK_HOST", "0.0.0.0"),
			Port: envIntOr("CERTCHECK_PORT", 8080),
			Mode: envOr("CERTCHECK_MODE", "release"),

			ReadHeaderTimeout: envDurationOr("CERTCHECK_READ_HEADER_TIMEOUT", 10*time.Second),
			CORSOrigins:       envSliceOr("CERTCHECK_CORS_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("CERTCHECK_HEADLESS", envBoolOr("HEADLESS", true)),
			Proxy:      os.Getenv("CERTCHECK_PROXY"),
			NoSandbox:  envBoolOr("CERTCHECK_NO_SANDBOX", false),
			BrowserBin: os.Getenv("CERTCHECK_BROWSER_BIN"),
		},
		Portal: PortalConfig{
			URL:                  envOr("CERTCHECK_PORTAL_URL", DefaultPortalURL),
			NavigationTimeout:    envDurationOr("CERTCHECK_NAV_TIMEOUT", envMillisOr("NAV_TIMEOUT_MS", 45*time.Second)),
			FillDelay:            envDurationOr("CERTCHECK_FILL_DELAY", 1500*time.Millisecond),
			Stealth:              envBoolOr("CERTCHECK_STEALTH", true),
			BlockedResourceTypes: envSliceOr("CERTCHECK_BLOCKED_RESOURCES", []string{"Font", "Media"}),
			BlockAds:             envBoolOr("CERTCHECK_BLOCK_ADS", true),
			ResultSelector:       os.Getenv("CERTCHECK_RESULT_SELECTOR"),
			ReferenceLayout:      envHexOr("CERTCHECK_REFERENCE_LAYOUT", 0),
			LayoutTolerance:      envIntOr("CERTCHECK_LAYOUT_TOLERANCE", 12),
		},
		Verify: VerifyConfig{
			ExpectedID:   os.Getenv("CERTCHECK_EXPECTED_ID"),
			SessionTTL:   envDurationOr("CERTCHECK_SESSION_TTL", 30*time.Minute),
			PollTimeout:  envDurationOr("CERTCHECK_POLL_TIMEOUT", 20*time.Second),
			StartTimeout: envDurationOr("CERTCHECK_START_TIMEOUT", 90*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("CERTCHECK_RATE_RPS", 5.0),
			Burst:             envIntOr("CERTCHECK_RATE_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("CERTCHECK_WEBHOOK_URL"),
			Secret: os.Getenv("CERTCHECK_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("CERTCHECK_LOG_LEVEL", "info"),
			Format: envOr("CERTCHECK_LOG_FORMAT", "json"),
		},
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	if n := len(identity.Digits(c.Verify.ExpectedID)); n != identity.Length {
		return fmt.Errorf("config: CERTCHECK_EXPECTED_ID must have %d digits, got %d", identity.Length, n)
	}
	if c.Portal.URL == "" {
		return fmt.Errorf("config: CERTCHECK_PORTAL_URL is empty")
	}
	if c.Verify.PollTimeout <= 0 {
		return fmt.Errorf("config: CERTCHECK_POLL_TIMEOUT must be positive")
	}
	if c.Verify.StartTimeout <= 0 {
		return fmt.Errorf("config: CERTCHECK_START_TIMEOUT must be positive")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envMillisOr reads a bare integer number of milliseconds.
func envMillisOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// envHexOr reads a 64-bit value written in hex, with or without 0x.
func envHexOr(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		v = strings.TrimPrefix(strings.ToLower(v), "0x")
		if u, err := strconv.ParseUint(v, 16, 64); err == nil {
			return u
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
