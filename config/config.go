package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Meal entry policies for repeated additions to the same user/date/meal type.
const (
	AppendToExistingMealEntry = "APPEND_TO_EXISTING_MEAL_ENTRY"
	AlwaysCreateNew           = "ALWAYS_CREATE_NEW"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upload    UploadConfig    `koanf:"upload"`
	LogMeal   LogMealConfig   `koanf:"logmeal"`
	Edamam    EdamamConfig    `koanf:"edamam"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Store     StoreConfig     `koanf:"store"`
	S3        S3Config        `koanf:"s3"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Meals     MealsConfig     `koanf:"meals"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port            string        `koanf:"port" validate:"required"`
	Mode            string        `koanf:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type UploadConfig struct {
	Dir      string `koanf:"dir" validate:"required"`
	MaxBytes int64  `koanf:"max_bytes" validate:"gt=0"`
}

type LogMealConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
	TopN    int           `koanf:"top_n" validate:"gt=0"`
}

type EdamamConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	AppID   string        `koanf:"app_id"`
	AppKey  string        `koanf:"app_key"`
	Timeout time.Duration `koanf:"timeout"`
}

type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model" validate:"required"`
}

type StoreConfig struct {
	Driver        string `koanf:"driver" validate:"oneof=mongo postgres"`
	MongoURI      string `koanf:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase string `koanf:"mongo_database" validate:"required_if=Driver mongo"`
	PostgresDSN   string `koanf:"postgres_dsn"`
}

// S3Config enables the photo archive when Bucket is set.
type S3Config struct {
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	PublicURL string `koanf:"public_url"`
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"gte=0"`
	Window   time.Duration `koanf:"window"`
}

type MealsConfig struct {
	EntryPolicy string `koanf:"entry_policy" validate:"oneof=APPEND_TO_EXISTING_MEAL_ENTRY ALWAYS_CREATE_NEW"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Mode: "release", ShutdownTimeout: 10 * time.Second},
		Upload: UploadConfig{Dir: filepath.Join(os.TempDir(), "nutrilog-uploads"), MaxBytes: 10 << 20},
		LogMeal: LogMealConfig{
			BaseURL: "https://api.logmeal.com",
			Timeout: 30 * time.Second,
			TopN:    5,
		},
		Edamam: EdamamConfig{
			BaseURL: "https://api.edamam.com",
			Timeout: 10 * time.Second,
		},
		Gemini:    GeminiConfig{Model: "gemini-2.0-flash"},
		Store:     StoreConfig{Driver: DriverMongo, MongoDatabase: "nutrilog"},
		RateLimit: RateLimitConfig{Requests: 20, Window: time.Minute},
		Meals:     MealsConfig{EntryPolicy: AppendToExistingMealEntry},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// envMappings maps environment variables onto koanf paths.
var envMappings = map[string]string{
	"port":                "server.port",
	"gin_mode":            "server.mode",
	"shutdown_timeout":    "server.shutdown_timeout",
	"upload_dir":          "upload.dir",
	"upload_max_bytes":    "upload.max_bytes",
	"logmeal_base_url":    "logmeal.base_url",
	"logmeal_api_token":   "logmeal.token",
	"logmeal_timeout":     "logmeal.timeout",
	"logmeal_top_n":       "logmeal.top_n",
	"edamam_base_url":     "edamam.base_url",
	"edamam_app_id":       "edamam.app_id",
	"edamam_app_key":      "edamam.app_key",
	"edamam_timeout":      "edamam.timeout",
	"gemini_api_key":      "gemini.api_key",
	"gemini_model":        "gemini.model",
	"store_driver":        "store.driver",
	"mongodb_uri":         "store.mongo_uri",
	"mongodb_database":    "store.mongo_database",
	"database_url":        "store.postgres_dsn",
	"s3_region":           "s3.region",
	"s3_bucket":           "s3.bucket",
	"cloudfront_url":      "s3.public_url",
	"jwt_secret":          "auth.jwt_secret",
	"rate_limit_requests": "ratelimit.requests",
	"rate_limit_window":   "ratelimit.window",
	"meal_entry_policy":   "meals.entry_policy",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
}

func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	// Unknown variables are skipped.
	return ""
}

// Load reads configuration from defaults, an optional .env file and the environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit env files. Missing files are ignored.
func LoadFrom(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyFallbacks fills settings that can be derived from legacy variables.
func (c *Config) applyFallbacks() {
	if c.S3.Region == "" {
		c.S3.Region = os.Getenv("AWS_REGION")
	}
	if c.Store.Driver == DriverPostgres && c.Store.PostgresDSN == "" && os.Getenv("DB_HOST") != "" {
		c.Store.PostgresDSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			os.Getenv("DB_PORT"),
		)
	}
}

// Validate checks struct constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}
	if c.Store.Driver == DriverPostgres && c.Store.PostgresDSN == "" {
		return errors.New("store.postgres_dsn (DATABASE_URL or DB_HOST...) is required for the postgres driver")
	}
	if c.S3.Enabled() && c.S3.Region == "" {
		return errors.New("s3.region (S3_REGION or AWS_REGION) is required when S3_BUCKET is set")
	}
	return nil
}
