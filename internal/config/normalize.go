package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImmich()
	c.normalizeScan()
	c.normalizeStability()
	c.normalizeAccounts()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchRoot, err = expandPath(c.Paths.WatchRoot); err != nil {
		return fmt.Errorf("paths.watch_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeImmich() {
	if value, ok := os.LookupEnv("SNAPSYNC_IMMICH_URL"); ok && strings.TrimSpace(value) != "" {
		c.Immich.BaseURL = value
	}
	c.Immich.BaseURL = strings.TrimRight(strings.TrimSpace(c.Immich.BaseURL), "/")
	if c.Immich.UploadTimeout <= 0 {
		c.Immich.UploadTimeout = defaultUploadTimeout
	}
	c.Immich.DeviceID = strings.TrimSpace(c.Immich.DeviceID)
	if c.Immich.DeviceID == "" {
		c.Immich.DeviceID = defaultDeviceID
	}
}

func (c *Config) normalizeScan() {
	if value, ok := os.LookupEnv("SNAPSYNC_SCAN_INTERVAL"); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
			c.Scan.Interval = parsed
		}
	}
	if value, ok := os.LookupEnv("SNAPSYNC_DELETE_AFTER"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			c.Scan.DeleteAfterImport = parsed
		}
	}
	if c.Scan.Interval <= 0 {
		c.Scan.Interval = defaultScanInterval
	}
}

func (c *Config) normalizeStability() {
	if c.Stability.MinFileAge <= 0 {
		c.Stability.MinFileAge = defaultMinFileAge
	}
	if c.Stability.MinArchiveAge <= 0 {
		c.Stability.MinArchiveAge = defaultMinArchiveAge
	}
	if c.Stability.RecheckDelay <= 0 {
		c.Stability.RecheckDelay = defaultRecheckDelay
	}
}

func (c *Config) normalizeAccounts() {
	c.Accounts.EnvPrefix = strings.TrimSpace(c.Accounts.EnvPrefix)
	if c.Accounts.EnvPrefix == "" {
		c.Accounts.EnvPrefix = defaultAccountEnvPrefix
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
