package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	authConfig "github.com/iurnickita/importcredit/internal/auth/config"
	handlerConfig "github.com/iurnickita/importcredit/internal/handler/config"
	idempotencyConfig "github.com/iurnickita/importcredit/internal/idempotency/config"
	loggerConfig "github.com/iurnickita/importcredit/internal/logger/config"
	serviceConfig "github.com/iurnickita/importcredit/internal/service/config"
	storeConfig "github.com/iurnickita/importcredit/internal/store/config"
)

type Config struct {
	Handler     handlerConfig.Config
	Auth        authConfig.Config
	Service     serviceConfig.Config
	Store       storeConfig.Config
	Idempotency idempotencyConfig.Config
	Logger      loggerConfig.Config
}

// GetConfig reads flags, then environment variables, which take precedence.
// A .env file in the working directory is loaded first when present.
func GetConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return parse(os.Args[1:], os.LookupEnv)
}

func parse(args []string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Config{}

	flags := flag.NewFlagSet("importcredit", flag.ContinueOnError)
	flags.StringVar(&cfg.Handler.ServerAddr, "a", "localhost:8080", "address and port to run server")
	flags.StringVar(&cfg.Store.DBDsn, "d", "", "database connection string")
	flags.StringVar(&cfg.Idempotency.RedisAddr, "r", "", "redis address for request keys")
	flags.DurationVar(&cfg.Idempotency.TTL, "t", 24*time.Hour, "request key lifetime")
	flags.StringVar(&cfg.Service.PlatformAddr, "p", "", "platform API address")
	flags.DurationVar(&cfg.Service.PlatformTimeout, "pt", 10*time.Second, "platform request timeout")
	flags.StringVar(&cfg.Auth.TokenSecret, "k", "", "bearer token secret")
	flags.StringVar(&cfg.Logger.LogLevel, "l", "info", "log level")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	// переменные окружения
	strs := map[string]*string{
		"RUN_ADDRESS":      &cfg.Handler.ServerAddr,
		"DATABASE_URI":     &cfg.Store.DBDsn,
		"REDIS_ADDRESS":    &cfg.Idempotency.RedisAddr,
		"REDIS_PASSWORD":   &cfg.Idempotency.RedisPassword,
		"PLATFORM_ADDRESS": &cfg.Service.PlatformAddr,
		"TOKEN_SECRET":     &cfg.Auth.TokenSecret,
		"LOG_LEVEL":        &cfg.Logger.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookupEnv(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"IDEMPOTENCY_TTL":  &cfg.Idempotency.TTL,
		"PLATFORM_TIMEOUT": &cfg.Service.PlatformTimeout,
	}
	for name, dst := range durations {
		if v, ok := lookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}

	if v, ok := lookupEnv("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Idempotency.RedisDB = db
	}

	if cfg.Auth.TokenSecret == "" {
		return Config{}, errors.New("token secret is required (-k or TOKEN_SECRET)")
	}
	return cfg, nil
}
