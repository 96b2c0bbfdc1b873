package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type API struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Storage struct {
	// DataDir is the pebble directory. Empty keeps everything in memory.
	DataDir string `yaml:"data_dir"`
}

type Log struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	// AuditFile receives one JSON line per order submission. Empty disables it.
	AuditFile string `yaml:"audit_file"`
}

type Queue struct {
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	Capacity    int           `yaml:"capacity"`
}

type Engine struct {
	BuildDelay   time.Duration `yaml:"build_delay"`
	SubmitDelay  time.Duration `yaml:"submit_delay"`
	VenueTimeout time.Duration `yaml:"venue_timeout"`
}

type Venues struct {
	MinLatency  time.Duration `yaml:"min_latency"`
	MaxLatency  time.Duration `yaml:"max_latency"`
	FailureRate float64       `yaml:"failure_rate"`
}

type Redis struct {
	// Addr empty disables the relay.
	Addr          string `yaml:"addr"`
	ChannelPrefix string `yaml:"channel_prefix"`
	// NodeID tags updates this node relays. Empty picks a random id.
	NodeID        string `yaml:"node_id"`
}

type Publisher struct {
	Buffer int `yaml:"buffer"`
}

type Listener struct {
	SendBuffer int `yaml:"send_buffer"`
}

type Config struct {
	API       API       `yaml:"api"`
	Storage   Storage   `yaml:"storage"`
	Log       Log       `yaml:"log"`
	Queue     Queue     `yaml:"queue"`
	Engine    Engine    `yaml:"engine"`
	Venues    Venues    `yaml:"venues"`
	Redis     Redis     `yaml:"redis"`
	Publisher Publisher `yaml:"publisher"`
	Listener  Listener  `yaml:"listener"`
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Storage: Storage{DataDir: "data/orders"},
		Log:     Log{Level: "info"},
		Queue: Queue{
			Workers:     10,
			MaxAttempts: 3,
			BackoffBase: time.Second,
			BackoffMax:  30 * time.Second,
			Capacity:    1024,
		},
		Engine: Engine{
			BuildDelay:   500 * time.Millisecond,
			SubmitDelay:  time.Second,
			VenueTimeout: 5 * time.Second,
		},
		Venues: Venues{
			MinLatency:  150 * time.Millisecond,
			MaxLatency:  250 * time.Millisecond,
			FailureRate: 0,
		},
		Redis:     Redis{ChannelPrefix: "order-updates:"},
		Publisher: Publisher{Buffer: 1024},
		Listener:  Listener{SendBuffer: 64},
	}
}

// Load builds the configuration.
// Priority: ENV > .env file > YAML file > defaults. Both paths are optional.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}
	cfg = LoadFromEnv(cfg, envPath)
	return cfg, cfg.Validate()
}

// LoadFromEnv loads the .env file (if it exists) and applies environment
// variables on top of cfg.
func LoadFromEnv(cfg Config, envPath string) Config {
	// godotenv never overrides variables already set in the environment
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = splitList(v)
	}

	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	if os.Getenv("IN_MEMORY") == "true" {
		cfg.Storage.DataDir = ""
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.AuditFile = getEnv("AUDIT_LOG_FILE", cfg.Log.AuditFile)

	cfg.Queue.Workers = getEnvInt("QUEUE_WORKERS", cfg.Queue.Workers)
	cfg.Queue.MaxAttempts = getEnvInt("QUEUE_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.BackoffBase = getEnvMs("QUEUE_BACKOFF_BASE_MS", cfg.Queue.BackoffBase)
	cfg.Queue.BackoffMax = getEnvMs("QUEUE_BACKOFF_MAX_MS", cfg.Queue.BackoffMax)
	cfg.Queue.Capacity = getEnvInt("QUEUE_CAPACITY", cfg.Queue.Capacity)

	cfg.Engine.BuildDelay = getEnvMs("ENGINE_BUILD_DELAY_MS", cfg.Engine.BuildDelay)
	cfg.Engine.SubmitDelay = getEnvMs("ENGINE_SUBMIT_DELAY_MS", cfg.Engine.SubmitDelay)
	cfg.Engine.VenueTimeout = getEnvMs("VENUE_TIMEOUT_MS", cfg.Engine.VenueTimeout)

	cfg.Venues.MinLatency = getEnvMs("VENUE_MIN_LATENCY_MS", cfg.Venues.MinLatency)
	cfg.Venues.MaxLatency = getEnvMs("VENUE_MAX_LATENCY_MS", cfg.Venues.MaxLatency)
	if v := os.Getenv("VENUE_FAILURE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Venues.FailureRate = f
		}
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.ChannelPrefix = getEnv("REDIS_CHANNEL_PREFIX", cfg.Redis.ChannelPrefix)
	cfg.Redis.NodeID = getEnv("NODE_ID", cfg.Redis.NodeID)

	cfg.Publisher.Buffer = getEnvInt("PUBLISHER_BUFFER", cfg.Publisher.Buffer)
	cfg.Listener.SendBuffer = getEnvInt("LISTENER_SEND_BUFFER", cfg.Listener.SendBuffer)

	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if c.Queue.Workers <= 0 {
		errs = append(errs, errors.New("queue.workers must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue.max_attempts must be positive"))
	}
	if c.Queue.BackoffBase <= 0 {
		errs = append(errs, errors.New("queue.backoff_base must be positive"))
	}
	if c.Queue.BackoffMax < c.Queue.BackoffBase {
		errs = append(errs, errors.New("queue.backoff_max below backoff_base"))
	}
	if c.Venues.MaxLatency < c.Venues.MinLatency {
		errs = append(errs, errors.New("venues.max_latency below min_latency"))
	}
	if c.Venues.FailureRate < 0 || c.Venues.FailureRate > 1 {
		errs = append(errs, errors.New("venues.failure_rate outside [0,1]"))
	}
	return errors.Join(errs...)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvMs(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
