package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateImmich(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchRoot) == "" {
		return errors.New("paths.watch_root must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateImmich() error {
	if strings.TrimSpace(c.Immich.BaseURL) == "" {
		return errors.New("immich.base_url must be set (or set SNAPSYNC_IMMICH_URL)")
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"scan.interval":                 c.Scan.Interval,
		"immich.upload_timeout":         c.Immich.UploadTimeout,
		"stability.min_file_age":        c.Stability.MinFileAge,
		"stability.min_archive_age":     c.Stability.MinArchiveAge,
		"stability.recheck_delay":       c.Stability.RecheckDelay,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
