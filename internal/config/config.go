package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service and the learner CLI.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	AllowOrigins           string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventChannel           string
	JWTSecret              string
	IdentityURL            string
	IdentityAPIKey         string
	IdentityTimeout        time.Duration
	ProvisionProfiles      bool
	CatalogCacheTTL        time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MaxImageMB             int
	// FallbackDemoData serves the sample catalog and enrollments when a lookup finds
	// nothing. Disable it once real content exists.
	FallbackDemoData bool
	HomePath         string
	AuthRateLimit    int
	AuthRateWindow   time.Duration
	SeedEnabled      bool
	SeedToken        string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryConfigured reports whether course images can be stored.
func (c Config) CloudinaryConfigured() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	return load(true)
}

// LoadClient reads the same configuration for tools that never verify tokens
// themselves, so no JWT secret is required.
func LoadClient() (Config, error) {
	return load(false)
}

func load(requireSecret bool) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LEARNHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "LearnHub API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("events.channel", "learnhub")
	v.SetDefault("identity.timeout", "10s")
	v.SetDefault("identity.provision_profiles", true)
	v.SetDefault("catalog.cache_ttl", "5m")
	v.SetDefault("cloudinary.folder", "learnhub/courses")
	v.SetDefault("upload.max_image_mb", 5)
	v.SetDefault("fallback.demo_data", true)
	v.SetDefault("home_path", "/")
	v.SetDefault("auth.rate_limit", 10)
	v.SetDefault("auth.rate_window", "1m")
	v.SetDefault("seed.enabled", false)

	cacheTTL, err := parseDuration(v, "catalog.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid catalog cache ttl: %w", err)
	}
	identityTimeout, err := parseDuration(v, "identity.timeout", 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid identity timeout: %w", err)
	}
	rateWindow, err := parseDuration(v, "auth.rate_window", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid auth rate window: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AllowOrigins:           v.GetString("cors.origins"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventChannel:           v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		IdentityURL:            v.GetString("identity.url"),
		IdentityAPIKey:         v.GetString("identity.api_key"),
		IdentityTimeout:        identityTimeout,
		ProvisionProfiles:      v.GetBool("identity.provision_profiles"),
		CatalogCacheTTL:        cacheTTL,
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MaxImageMB:             v.GetInt("upload.max_image_mb"),
		FallbackDemoData:       v.GetBool("fallback.demo_data"),
		HomePath:               v.GetString("home_path"),
		AuthRateLimit:          v.GetInt("auth.rate_limit"),
		AuthRateWindow:         rateWindow,
		SeedEnabled:            v.GetBool("seed.enabled"),
		SeedToken:              v.GetString("seed.token"),
	}

	if requireSecret && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.IdentityURL == "" {
		return Config{}, fmt.Errorf("identity service url must be provided")
	}

	if cfg.MaxImageMB <= 0 {
		cfg.MaxImageMB = 5
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
