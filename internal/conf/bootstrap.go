// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files, .env files and environment variables.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with MOOMETRICS_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required environment variables:
//   - DATABASE_URL or MOOMETRICS_DATA_DATABASE_SOURCE: dead-letter database DSN
//   - SECRET_KEY or MOOMETRICS_AUTH_JWT_SECRET: JWT verification secret
//
// Dependency credentials (OPENWEATHER_API_KEY, OPENAI_API_KEY) are optional:
// without them the matching dependency serves fallback data.
func NewBootstrap(configPath string) (*Bootstrap, error) {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MOOMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "DATABASE_URL", "MOOMETRICS_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "MOOMETRICS_DATA_REDIS_ADDR")
	_ = v.BindEnv("auth.jwt.secret", "SECRET_KEY", "MOOMETRICS_AUTH_JWT_SECRET")
	_ = v.BindEnv("weather.api_key", "OPENWEATHER_API_KEY", "MOOMETRICS_WEATHER_API_KEY")
	_ = v.BindEnv("prediction.api_key", "OPENAI_API_KEY", "MOOMETRICS_PREDICTION_API_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &Server_Transport{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: v.GetDuration("server.http.timeout"),
			},
			GRPC: &Server_Transport{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: v.GetDuration("server.grpc.timeout"),
			},
			CORSOrigins: v.GetStringSlice("server.cors_origins"),
		},
		Data: &Data{
			Database: &Data_Database{
				Driver:      v.GetString("data.database.driver"),
				Source:      v.GetString("data.database.source"),
				AutoMigrate: v.GetBool("data.database.auto_migrate"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
			},
			Cache: &Data_Cache{
				Backend:    v.GetString("data.cache.backend"),
				MemorySize: v.GetInt("data.cache.memory_size"),
			},
		},
		Auth: &Auth{
			Jwt: &Auth_JWT{
				Secret: v.GetString("auth.jwt.secret"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Weather: &Weather{
			APIKey:    v.GetString("weather.api_key"),
			BaseURL:   v.GetString("weather.base_url"),
			Timeout:   v.GetDuration("weather.timeout"),
			CacheTTL:  v.GetDuration("weather.cache_ttl"),
			RateLimit: v.GetFloat64("weather.rate_limit"),
			RateBurst: v.GetInt("weather.rate_burst"),
			ProxyURL:  v.GetString("weather.proxy_url"),
			Breaker:   breakerFrom(v, "weather.breaker"),
		},
		Prediction: &Prediction{
			APIKey:   v.GetString("prediction.api_key"),
			Model:    v.GetString("prediction.model"),
			BaseURL:  v.GetString("prediction.base_url"),
			Timeout:  v.GetDuration("prediction.timeout"),
			CacheTTL: v.GetDuration("prediction.cache_ttl"),
			ProxyURL: v.GetString("prediction.proxy_url"),
			Breaker:  breakerFrom(v, "prediction.breaker"),
		},
		Task: &Task{
			Workers:       v.GetInt("task.workers"),
			WorkerEnabled: v.GetBool("task.worker_enabled"),
			PollInterval:  v.GetDuration("task.poll_interval"),
			LeaseTimeout:  v.GetDuration("task.lease_timeout"),
			ResultTTL:     v.GetDuration("task.result_ttl"),
			TaskTimeout:   v.GetDuration("task.task_timeout"),
			Retry: &Task_Retry{
				BaseDelay:  v.GetDuration("task.retry.base_delay"),
				MaxDelay:   v.GetDuration("task.retry.max_delay"),
				MaxRetries: v.GetInt("task.retry.max_retries"),
				Jitter:     v.GetFloat64("task.retry.jitter"),
			},
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func breakerFrom(v *viper.Viper, prefix string) *Breaker {
	return &Breaker{
		FailureThreshold: v.GetInt(prefix + ".failure_threshold"),
		RecoveryTimeout:  v.GetDuration(prefix + ".recovery_timeout"),
		TimeWindow:       v.GetDuration(prefix + ".time_window"),
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	// Data defaults
	v.SetDefault("data.database.driver", "postgres")
	v.SetDefault("data.database.auto_migrate", true)

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.cache.backend", "redis")
	v.SetDefault("data.cache.memory_size", 4096)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.env", "production")

	// Weather defaults
	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.cache_ttl", 5*time.Minute)
	v.SetDefault("weather.rate_limit", 10.0)
	v.SetDefault("weather.rate_burst", 5)
	v.SetDefault("weather.breaker.failure_threshold", 5)
	v.SetDefault("weather.breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("weather.breaker.time_window", 60*time.Second)

	// Prediction defaults
	v.SetDefault("prediction.model", "gpt-4o")
	v.SetDefault("prediction.timeout", 30*time.Second)
	v.SetDefault("prediction.cache_ttl", 30*time.Minute)
	v.SetDefault("prediction.breaker.failure_threshold", 5)
	v.SetDefault("prediction.breaker.recovery_timeout", 120*time.Second)
	v.SetDefault("prediction.breaker.time_window", 60*time.Second)

	// Task defaults
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.worker_enabled", true)
	v.SetDefault("task.poll_interval", time.Second)
	v.SetDefault("task.lease_timeout", 10*time.Minute)
	v.SetDefault("task.result_ttl", time.Hour)
	v.SetDefault("task.task_timeout", 5*time.Minute)
	v.SetDefault("task.retry.base_delay", time.Second)
	v.SetDefault("task.retry.max_delay", 600*time.Second)
	v.SetDefault("task.retry.max_retries", 5)
	v.SetDefault("task.retry.jitter", 0.5)
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (DATABASE_URL)")
	}

	if bc.Auth == nil || bc.Auth.Jwt == nil || bc.Auth.Jwt.Secret == "" {
		missingFields = append(missingFields, "auth.jwt.secret (SECRET_KEY)")
	}

	var invalidFields []string

	if bc.Data != nil && bc.Data.Database != nil {
		switch bc.Data.Database.Driver {
		case "mysql", "postgres":
		default:
			invalidFields = append(invalidFields, fmt.Sprintf("data.database.driver=%q", bc.Data.Database.Driver))
		}
	}

	if bc.Data != nil && bc.Data.Cache != nil {
		switch bc.Data.Cache.Backend {
		case "redis", "memory":
		default:
			invalidFields = append(invalidFields, fmt.Sprintf("data.cache.backend=%q", bc.Data.Cache.Backend))
		}
	}

	if bc.Weather != nil {
		invalidFields = append(invalidFields, validateBreaker("weather.breaker", bc.Weather.Breaker)...)
	}
	if bc.Prediction != nil {
		invalidFields = append(invalidFields, validateBreaker("prediction.breaker", bc.Prediction.Breaker)...)
	}

	if t := bc.Task; t != nil && t.LeaseTimeout > 0 && t.TaskTimeout > 0 &&
		t.LeaseTimeout < t.TaskTimeout+TaskLeaseMargin {
		invalidFields = append(invalidFields, fmt.Sprintf(
			"task.lease_timeout=%s (must be >= task.task_timeout + %s)", t.LeaseTimeout, TaskLeaseMargin))
	}

	if bc.Task != nil && bc.Task.Retry != nil {
		r := bc.Task.Retry
		if r.Jitter < 0 || r.Jitter >= 1 {
			invalidFields = append(invalidFields, fmt.Sprintf("task.retry.jitter=%v (must be in [0,1))", r.Jitter))
		}
		if r.MaxRetries < 0 {
			invalidFields = append(invalidFields, "task.retry.max_retries (must be >= 0)")
		}
		if r.BaseDelay <= 0 || r.MaxDelay < r.BaseDelay {
			invalidFields = append(invalidFields, "task.retry.base_delay/max_delay (need 0 < base_delay <= max_delay)")
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}
	if len(invalidFields) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalidFields, ", "))
	}

	return nil
}

func validateBreaker(prefix string, b *Breaker) []string {
	if b == nil {
		return []string{prefix}
	}
	var invalid []string
	if b.FailureThreshold < 1 {
		invalid = append(invalid, prefix+".failure_threshold (must be >= 1)")
	}
	if b.RecoveryTimeout <= 0 {
		invalid = append(invalid, prefix+".recovery_timeout (must be > 0)")
	}
	if b.TimeWindow <= 0 {
		invalid = append(invalid, prefix+".time_window (must be > 0)")
	}
	return invalid
}
