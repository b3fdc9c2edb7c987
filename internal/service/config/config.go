package config

import "time"

type Config struct {
	// PlatformAddr is the base URL of the platform that owns credit
	// applications. Empty means snapshots are pushed through the API only.
	PlatformAddr    string
	PlatformTimeout time.Duration
}
