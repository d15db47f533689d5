package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"supportdesk/pkg/types"
)

const envPrefix = "SUPPORTDESK_"

// Config groups every runtime setting
type Config struct {
	Database   *DatabaseConfig   `json:"database"`
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Dispatcher *DispatcherConfig `json:"dispatcher"`
	Storage    *StorageConfig    `json:"storage"`
	Redis      *RedisConfig      `json:"redis"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

// DispatcherConfig sizes the event loop and the archive workers
type DispatcherConfig struct {
	Categories       []string      `json:"categories"`
	TechnicianName   string        `json:"technician_name"`
	EventBuffer      int           `json:"event_buffer"`
	ArchiveWorkers   int           `json:"archive_workers"`
	ArchiveQueueSize int           `json:"archive_queue_size"`
	ArchiveTimeout   time.Duration `json:"archive_timeout"`
}

// StorageConfig controls HTTP file uploads
type StorageConfig struct {
	UploadDir      string `json:"upload_dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}

// RedisConfig enables the optional state mirror
type RedisConfig struct {
	Enabled   bool          `json:"enabled"`
	Addr      string        `json:"addr"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	KeyPrefix string        `json:"key_prefix"`
	QueueSize int           `json:"queue_size"`
	Timeout   time.Duration `json:"timeout"`
}

// DefaultConfig returns settings suitable for a single local instance
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/supportdesk.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 10 << 20,
		},
		Dispatcher: &DispatcherConfig{
			Categories:       []string{"tech", "billing", "general"},
			TechnicianName:   "Support Agent",
			EventBuffer:      1000,
			ArchiveWorkers:   2,
			ArchiveQueueSize: 1024,
			ArchiveTimeout:   5 * time.Second,
		},
		Storage: &StorageConfig{
			UploadDir:      "./uploads",
			MaxUploadBytes: 25 << 20,
		},
		Redis: &RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			KeyPrefix: "supportdesk",
			QueueSize: 256,
			Timeout:   3 * time.Second,
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher configuration is required")
	}
	for _, category := range c.Dispatcher.Categories {
		if !types.IsValidCategory(category) {
			return fmt.Errorf("invalid dispatcher category %q", category)
		}
	}
	if c.Dispatcher.EventBuffer <= 0 {
		return fmt.Errorf("dispatcher event buffer must be positive")
	}
	if c.Dispatcher.ArchiveWorkers <= 0 {
		return fmt.Errorf("archive workers must be positive")
	}
	if c.Dispatcher.ArchiveQueueSize <= 0 {
		return fmt.Errorf("archive queue size must be positive")
	}

	if c.Storage == nil {
		return fmt.Errorf("storage configuration is required")
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory cannot be empty")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when the mirror is enabled")
	}

	return nil
}

// LoadFromEnv applies SUPPORTDESK_* variables over the defaults.
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envString("DATABASE_PATH", &config.Database.Path)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	if categories := os.Getenv(envPrefix + "DISPATCHER_CATEGORIES"); categories != "" {
		config.Dispatcher.Categories = splitList(categories)
	}
	envString("DISPATCHER_TECHNICIAN_NAME", &config.Dispatcher.TechnicianName)
	envInt("DISPATCHER_EVENT_BUFFER", &config.Dispatcher.EventBuffer)
	envInt("DISPATCHER_ARCHIVE_WORKERS", &config.Dispatcher.ArchiveWorkers)

	envString("STORAGE_UPLOAD_DIR", &config.Storage.UploadDir)

	if enabled := os.Getenv(envPrefix + "REDIS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Redis.Enabled = b
		}
	}
	envString("REDIS_ADDR", &config.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)
	envString("REDIS_KEY_PREFIX", &config.Redis.KeyPrefix)

	return config
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile is the JSON layout on disk; durations are strings like "30s"
type ConfigFile struct {
	Database   *DatabaseConfigFile   `json:"database"`
	HTTP       *HTTPConfigFile       `json:"http"`
	WebSocket  *WebSocketConfigFile  `json:"websocket"`
	Dispatcher *DispatcherConfigFile `json:"dispatcher"`
	Storage    *StorageConfig        `json:"storage"`
	Redis      *RedisConfigFile      `json:"redis"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	BufferSize     int    `json:"buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
}

type DispatcherConfigFile struct {
	Categories       []string `json:"categories"`
	TechnicianName   string   `json:"technician_name"`
	EventBuffer      int      `json:"event_buffer"`
	ArchiveWorkers   int      `json:"archive_workers"`
	ArchiveQueueSize int      `json:"archive_queue_size"`
	ArchiveTimeout   string   `json:"archive_timeout"`
}

type RedisConfigFile struct {
	Enabled   *bool  `json:"enabled"`
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	QueueSize int    `json:"queue_size"`
	Timeout   string `json:"timeout"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	return loadFileOver(DefaultConfig(), filepath)
}

func loadFileOver(config *Config, filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if f := file.Database; f != nil {
		setString(&config.Database.Path, f.Path)
		setDuration(&config.Database.Timeout, f.Timeout)
	}

	if f := file.HTTP; f != nil {
		setInt(&config.HTTP.Port, f.Port)
		setString(&config.HTTP.Host, f.Host)
		setDuration(&config.HTTP.ReadTimeout, f.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, f.WriteTimeout)
	}

	if f := file.WebSocket; f != nil {
		setInt(&config.WebSocket.BufferSize, f.BufferSize)
		setDuration(&config.WebSocket.PingInterval, f.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, f.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, f.WriteTimeout)
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
	}

	if f := file.Dispatcher; f != nil {
		if len(f.Categories) > 0 {
			config.Dispatcher.Categories = f.Categories
		}
		setString(&config.Dispatcher.TechnicianName, f.TechnicianName)
		setInt(&config.Dispatcher.EventBuffer, f.EventBuffer)
		setInt(&config.Dispatcher.ArchiveWorkers, f.ArchiveWorkers)
		setInt(&config.Dispatcher.ArchiveQueueSize, f.ArchiveQueueSize)
		setDuration(&config.Dispatcher.ArchiveTimeout, f.ArchiveTimeout)
	}

	if f := file.Storage; f != nil {
		setString(&config.Storage.UploadDir, f.UploadDir)
		if f.MaxUploadBytes > 0 {
			config.Storage.MaxUploadBytes = f.MaxUploadBytes
		}
	}

	if f := file.Redis; f != nil {
		if f.Enabled != nil {
			config.Redis.Enabled = *f.Enabled
		}
		setString(&config.Redis.Addr, f.Addr)
		setString(&config.Redis.Password, f.Password)
		setInt(&config.Redis.DB, f.DB)
		setString(&config.Redis.KeyPrefix, f.KeyPrefix)
		setInt(&config.Redis.QueueSize, f.QueueSize)
		setDuration(&config.Redis.Timeout, f.Timeout)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence resolves file > environment > defaults.
// A missing or invalid file is logged and the environment config is used.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath == "" {
		return config
	}

	fileConfig, err := loadFileOver(LoadFromEnv(), filepath)
	if err != nil {
		log.Printf("Config file ignored: %v", err)
		return config
	}
	return fileConfig
}
