package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration holds all settings of the live client process.
type Configuration struct {
	Service       ServiceConfig
	Backend       BackendConfig
	Session       SessionConfig
	Audio         AudioConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
}

// BackendConfig locates the external collaborators.
type BackendConfig struct {
	WSURL        string // live channel
	APIURL       string // question catalog
	GeneratorURL string // question generation
	HTTPTimeout  time.Duration
}

type SessionConfig struct {
	ProcessingTimeout time.Duration
	DialTimeout       time.Duration
}

type AudioConfig struct {
	SourcePath      string
	ChunkBytes      int
	MaxBytes        int64
	MaxDuration     time.Duration
	PlaybackEnabled bool
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicTurns    string
	TopicSessions string
	Principal     string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration from the environment, after merging .env files
// unless DOTENV_DISABLED is set. Invalid values fall back to defaults.
func Load() *Configuration {
	if !envOrDefaultBool("DOTENV_DISABLED", false) {
		loadDotEnv(".env.local", ".env")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "entrevistas-live-client")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8090"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50061"),
		},
		Backend: BackendConfig{
			WSURL:        envOrDefault("BACKEND_WS_URL", "ws://localhost:8000/ws"),
			APIURL:       envOrDefault("BACKEND_API_URL", "http://localhost:8000"),
			GeneratorURL: envOrDefault("GENERATOR_API_URL", "http://localhost:8001"),
			HTTPTimeout:  envOrDefaultDuration("HTTP_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			ProcessingTimeout: envOrDefaultDuration("SESSION_PROCESSING_TIMEOUT", 10*time.Second),
			DialTimeout:       envOrDefaultDuration("SESSION_DIAL_TIMEOUT", 15*time.Second),
		},
		Audio: AudioConfig{
			SourcePath:      envOrDefault("AUDIO_SOURCE_PATH", ""),
			ChunkBytes:      envOrDefaultInt("AUDIO_CHUNK_BYTES", 3200),
			MaxBytes:        envOrDefaultInt64("AUDIO_MAX_BYTES", 10*1024*1024),
			MaxDuration:     envOrDefaultDuration("AUDIO_MAX_DURATION", 2*time.Minute),
			PlaybackEnabled: envOrDefaultBool("PLAYBACK_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       envOrDefaultList("KAFKA_BROKERS"),
			TopicTurns:    envOrDefault("KAFKA_TOPIC_TURNS", "interview.transcript.turn"),
			TopicSessions: envOrDefault("KAFKA_TOPIC_SESSIONS", "interview.session.lifecycle"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

// loadDotEnv merges the given files into the environment. Variables that are
// already set win; missing files are skipped.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Warn().Err(err).Str("path", p).Msg("Failed to load env file")
			continue
		}
		log.Debug().Str("path", p).Msg("Loaded env file")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma separated value, dropping empty items.
func envOrDefaultList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
