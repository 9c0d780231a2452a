package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Directory source kinds
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
	SourceSeed     = "seed"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// End-reason thresholds
	RingRejectThreshold      time.Duration
	ConnectedHangupThreshold time.Duration

	// Engine
	EventBufferSize int
	StatsInterval   time.Duration

	// Asterisk REST Interface event stream; empty URL disables it
	ARIURL            string
	ARIUsername       string
	ARIPassword       string
	ARIApp            string
	ARIReconnectDelay time.Duration

	Directory DirectoryConfig
	MQTT      MQTTConfig
}

// DirectoryConfig selects and tunes the agent directory source
type DirectoryConfig struct {
	Source           string
	URL              string
	APIKey           string
	Timeout          time.Duration
	DatabaseURL      string
	PollInterval     time.Duration
	BootAttempts     int
	BootBackoff      time.Duration
	SeedFile         string
	WriteConcurrency int
	WriteRate        int
}

// MQTTConfig configures the broker sink; empty Broker disables it
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ARIURL:         getEnv("ARI_URL", ""),
		ARIUsername:    getEnv("ARI_USERNAME", ""),
		ARIPassword:    getEnv("ARI_PASSWORD", ""),
		ARIApp:         getEnv("ARI_APP", "ccr"),
		Directory: DirectoryConfig{
			Source:      strings.ToLower(getEnv("DIRECTORY_SOURCE", SourceHTTP)),
			URL:         getEnv("DIRECTORY_URL", ""),
			APIKey:      getEnv("DIRECTORY_API_KEY", ""),
			DatabaseURL: getEnv("DIRECTORY_DATABASE_URL", ""),
			SeedFile:    getEnv("DIRECTORY_SEED_FILE", ""),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "ccr-backend"),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "ccr"),
		},
	}

	var err error

	// Parse WebSocket timeouts
	if config.WSReadTimeout, err = seconds("WS_READ_TIMEOUT", "60"); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = seconds("WS_WRITE_TIMEOUT", "10"); err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	if config.RingRejectThreshold, err = millis("RING_REJECT_THRESHOLD_MS", "5000"); err != nil {
		return nil, err
	}
	if config.ConnectedHangupThreshold, err = millis("CONNECTED_HANGUP_THRESHOLD_MS", "3000"); err != nil {
		return nil, err
	}

	if config.EventBufferSize, err = integer("EVENT_BUFFER_SIZE", "1024"); err != nil {
		return nil, err
	}
	if config.StatsInterval, err = seconds("STATS_INTERVAL", "30"); err != nil {
		return nil, err
	}
	if config.ARIReconnectDelay, err = seconds("ARI_RECONNECT_DELAY", "5"); err != nil {
		return nil, err
	}

	dir := &config.Directory
	if dir.Timeout, err = seconds("DIRECTORY_TIMEOUT", "15"); err != nil {
		return nil, err
	}
	if dir.PollInterval, err = seconds("DIRECTORY_POLL_INTERVAL", "10"); err != nil {
		return nil, err
	}
	if dir.BootAttempts, err = integer("DIRECTORY_BOOT_ATTEMPTS", "3"); err != nil {
		return nil, err
	}
	if dir.BootBackoff, err = seconds("DIRECTORY_BOOT_BACKOFF", "2"); err != nil {
		return nil, err
	}
	if dir.WriteConcurrency, err = integer("DIRECTORY_WRITE_CONCURRENCY", "8"); err != nil {
		return nil, err
	}
	if dir.WriteRate, err = integer("DIRECTORY_WRITE_RATE", "20"); err != nil {
		return nil, err
	}

	switch dir.Source {
	case SourceHTTP:
		if dir.URL == "" {
			return nil, fmt.Errorf("DIRECTORY_URL is required for the %s directory source", SourceHTTP)
		}
	case SourcePostgres:
		if dir.DatabaseURL == "" {
			return nil, fmt.Errorf("DIRECTORY_DATABASE_URL is required for the %s directory source", SourcePostgres)
		}
	case SourceSeed:
		if dir.SeedFile == "" {
			return nil, fmt.Errorf("DIRECTORY_SEED_FILE is required for the %s directory source", SourceSeed)
		}
	default:
		return nil, fmt.Errorf("invalid DIRECTORY_SOURCE %q", dir.Source)
	}

	if config.MQTT.QoS, err = integer("MQTT_QOS", "0"); err != nil {
		return nil, err
	}
	if config.MQTT.QoS < 0 || config.MQTT.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT_QOS: %d", config.MQTT.QoS)
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func integer(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func seconds(key, defaultValue string) (time.Duration, error) {
	n, err := integer(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func millis(key, defaultValue string) (time.Duration, error) {
	n, err := integer(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}
