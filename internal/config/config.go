package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for photofind.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Caption  CaptionConfig  `mapstructure:"caption"`
	Faces    FacesConfig    `mapstructure:"faces"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

// EncoderConfig points at the CLIP sidecar that serves the shared
// image/text embedding space.
type EncoderConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

type OCRConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CaptionConfig points at an OpenAI-compatible vision model used for
// scene and clothing descriptions.
type CaptionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// FacesConfig controls the face identity store. MatchThreshold is the
// cosine-distance cutoff for accepting an identity match: a face matches a
// known person only when its best distance is strictly below this value.
// Lower values are stricter.
type FacesConfig struct {
	Dir            string  `mapstructure:"dir"` // defaults to <data_dir>/known_faces
	MatchThreshold float64 `mapstructure:"match_threshold"`
	DetectMaxDim   int     `mapstructure:"detect_max_dim"`
	EngineBaseURL  string  `mapstructure:"engine_base_url"`
}

// StorageConfig configures the optional S3-compatible photo source used by
// `photofind index s3://...`.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
	CacheDir  string `mapstructure:"cache_dir"` // defaults to <data_dir>/s3_cache
}

// KnownFacesDir returns the reference photo directory, applying the
// <data_dir>/known_faces convention when unset.
func (c *Config) KnownFacesDir() string {
	if c.Faces.Dir != "" {
		return c.Faces.Dir
	}
	return filepath.Join(c.DataDir, "known_faces")
}

// S3CacheDir returns the local cache directory for photos pulled from S3.
func (c *Config) S3CacheDir() string {
	if c.Storage.CacheDir != "" {
		return c.Storage.CacheDir
	}
	return filepath.Join(c.DataDir, "s3_cache")
}

// Load reads configuration from an optional YAML file, environment
// variables, and defaults, in that order of increasing precedence for env.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults
	v.SetDefault("data_dir", "./data")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/photofind.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "personal_photos")
	v.SetDefault("encoder.base_url", "http://localhost:8765")
	v.SetDefault("encoder.model", "clip-vit-base-patch32")
	v.SetDefault("encoder.dimensions", 512)
	v.SetDefault("ocr.base_url", "http://localhost:8766")
	v.SetDefault("caption.enabled", false)
	v.SetDefault("caption.model", "moondream2")
	v.SetDefault("caption.base_url", "http://localhost:11434/v1")
	v.SetDefault("faces.match_threshold", 0.6)
	v.SetDefault("faces.detect_max_dim", 1024)
	v.SetDefault("faces.engine_base_url", "http://localhost:8767")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.region", "us-east-1")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("data_dir", "PHOTOFIND_DATA_DIR")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("caption.api_key", "OPENAI_API_KEY")
	v.BindEnv("caption.base_url", "OPENAI_BASE_URL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("faces.match_threshold", "FACE_MATCH_THRESHOLD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
