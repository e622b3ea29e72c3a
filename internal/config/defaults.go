package config

const (
	defaultWatchRoot         = "~/import"
	defaultLogDir            = "~/.local/share/snapsync/logs"
	defaultImmichBaseURL     = "http://immich:2283"
	defaultUploadTimeout     = 300
	defaultDeviceID          = "snapsync"
	defaultScanInterval      = 30
	defaultDeleteAfterImport = true
	defaultMinFileAge        = 30
	defaultMinArchiveAge     = 120
	defaultRecheckDelay      = 2
	defaultAccountEnvPrefix  = "SNAPSYNC_USER_"
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchRoot: defaultWatchRoot,
			LogDir:    defaultLogDir,
		},
		Immich: Immich{
			BaseURL:       defaultImmichBaseURL,
			UploadTimeout: defaultUploadTimeout,
			DeviceID:      defaultDeviceID,
		},
		Scan: Scan{
			Interval:          defaultScanInterval,
			DeleteAfterImport: defaultDeleteAfterImport,
		},
		Stability: Stability{
			MinFileAge:    defaultMinFileAge,
			MinArchiveAge: defaultMinArchiveAge,
			RecheckDelay:  defaultRecheckDelay,
		},
		Accounts: Accounts{
			EnvPrefix: defaultAccountEnvPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
