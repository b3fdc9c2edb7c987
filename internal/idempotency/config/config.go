package config

import "time"

type Config struct {
	// RedisAddr empty disables request deduplication.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}
