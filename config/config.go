package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	once   sync.Once
	global *Config
	gerr   error
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Worker  WorkerConfig  `yaml:"worker"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	MaxUploadMB       int64    `yaml:"maxUploadMB"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	AsyncEnabled      bool     `yaml:"asyncEnabled"`
	VerifyOutput      bool     `yaml:"verifyOutput"`
	// FontFile is an optional TrueType font for names outside cp1252.
	FontFile          string   `yaml:"fontFile"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout"`
}

// MaxUploadBytes is the per-file size limit.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	File     string `yaml:"file"`
}

// OutputPaths returns the logger sinks.
func (l LogConfig) OutputPaths() []string {
	if l.File == "" {
		return []string{"stdout"}
	}
	return []string{"stdout", l.File}
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

type WorkerConfig struct {
	Concurrency     int      `yaml:"concurrency"`
	CleanupSchedule string   `yaml:"cleanupSchedule"`
	RetentionHours  int      `yaml:"retentionHours"`
	HealthAddr      string   `yaml:"healthAddr"`
	MaxRetries      int      `yaml:"maxRetries"`
	TaskTimeout     Duration `yaml:"taskTimeout"`
}

// Retention is how long generated artifacts are kept.
func (w WorkerConfig) Retention() time.Duration {
	return time.Duration(w.RetentionHours) * time.Hour
}

// Duration unmarshals from YAML strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			MaxUploadMB:       50,
			AllowedExtensions: []string{".numbers"},
			ShutdownTimeout:   Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Storage: StorageConfig{
			Type: "minio",
			Minio: MinioConfig{
				Endpoint:   "localhost:9000",
				BucketName: "numbers2pdf",
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Worker: WorkerConfig{
			Concurrency:     10,
			CleanupSchedule: "@every 1h",
			RetentionHours:  24,
			HealthAddr:      ":9090",
			MaxRetries:      3,
			TaskTimeout:     Duration(5 * time.Minute),
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional) and
// the environment, in that order of precedence from lowest to highest.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get loads the process configuration once. A .env file (ENV_FILE, default
// ".env") is loaded into the environment first; CONFIG_FILE names the
// optional YAML file.
func Get() (*Config, error) {
	once.Do(func() {
		envPath := os.Getenv("ENV_FILE")
		if envPath == "" {
			envPath = ".env"
		}
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}
		global, gerr = Load(os.Getenv("CONFIG_FILE"))
	})
	return global, gerr
}

func applyEnv(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	setString(&cfg.Server.Addr, "HTTP_ADDR")
	collect(setInt64(&cfg.Server.MaxUploadMB, "MAX_UPLOAD_MB"))
	setList(&cfg.Server.AllowedExtensions, "ALLOWED_EXTENSIONS")
	collect(setBool(&cfg.Server.AsyncEnabled, "ASYNC_ENABLED"))
	collect(setBool(&cfg.Server.VerifyOutput, "VERIFY_OUTPUT"))
	setString(&cfg.Server.FontFile, "FONT_FILE")
	collect(setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"))

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Encoding, "LOG_ENCODING")
	setString(&cfg.Log.File, "LOG_FILE")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	collect(setInt(&cfg.Redis.DB, "REDIS_DB"))
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	collect(setInt(&cfg.Worker.Concurrency, "WORKER_CONCURRENCY"))
	setString(&cfg.Worker.CleanupSchedule, "CLEANUP_SCHEDULE")
	collect(setInt(&cfg.Worker.RetentionHours, "RETENTION_HOURS"))
	setString(&cfg.Worker.HealthAddr, "HEALTH_ADDR")
	collect(setInt(&cfg.Worker.MaxRetries, "WORKER_MAX_RETRIES"))
	collect(setDuration(&cfg.Worker.TaskTimeout, "WORKER_TASK_TIMEOUT"))

	applyStorageEnv(&cfg.Storage)
	collect(setBool(&cfg.Storage.Minio.UseSSL, "MINIO_USE_SSL"))

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errs[0])
	}
	return nil
}
