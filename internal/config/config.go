package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName    string
	HTTPListenAddr string
	DatabaseURL    string
	LogLevel       string

	// WorkspaceDir is the mini-app source tree that provisioning patches and
	// the toolchains build from.
	WorkspaceDir string
	// TemplateDir is relative to WorkspaceDir.
	TemplateDir string
	APIKey      string
	// WSOriginPatterns are the host patterns, besides the request's own
	// host, allowed to open task log streams from a browser.
	WSOriginPatterns []string
	// ToolchainFile optionally overrides the built-in build and publish commands.
	ToolchainFile string

	PublishGracePeriod time.Duration
	StopTimeout        time.Duration
	SubscribeTimeout   time.Duration
	UsePTY             bool

	QRArchiveBucket string
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", "miniforge"),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		WorkspaceDir:    getEnv("WORKSPACE_DIR", "."),
		TemplateDir:     getEnv("TEMPLATE_DIR", "static/template"),
		APIKey:          getEnv("API_KEY", ""),
		ToolchainFile:   getEnv("TOOLCHAIN_FILE", ""),
		QRArchiveBucket: getEnv("QR_ARCHIVE_BUCKET", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        getEnv("S3_REGION", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
	}

	var err error
	if cfg.PublishGracePeriod, err = getDuration("PUBLISH_GRACE_PERIOD", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = getDuration("STOP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SubscribeTimeout, err = getDuration("SUBSCRIBE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.UsePTY, err = getBool("USE_PTY", true); err != nil {
		return nil, err
	}

	cfg.WSOriginPatterns = getList("WS_ORIGIN_PATTERNS")

	return cfg, nil
}

// Validate checks the settings the named component cannot start without.
func (c *Config) Validate(component string) error {
	var missing []string
	switch component {
	case "forge-api":
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.WorkspaceDir == "" {
			missing = append(missing, "WORKSPACE_DIR")
		}
	}
	if c.QRArchiveBucket != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		missing = append(missing, "S3_ACCESS_KEY", "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config for %s: %s", component, strings.Join(missing, ", "))
	}
	if c.PublishGracePeriod <= 0 {
		return fmt.Errorf("PUBLISH_GRACE_PERIOD must be positive")
	}
	if c.StopTimeout < 0 || c.SubscribeTimeout < 0 {
		return fmt.Errorf("STOP_TIMEOUT and SUBSCRIBE_TIMEOUT must not be negative")
	}
	return nil
}

// ArchiveEnabled reports whether QR codes are uploaded to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.QRArchiveBucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

// getList splits a comma separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
