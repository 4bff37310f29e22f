package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	// Traces selects the span exporter: auto (otlp when an endpoint is set,
	// else stdout), otlp, stdout or none.
	Traces string `yaml:"traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Node        NodeConfig       `yaml:"node"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Audio       AudioConfig      `yaml:"audio"`
	Podcast     PodcastConfig    `yaml:"podcast"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, exec, ollama, openai, gemini
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode        string `yaml:"mode"` // mock, exec, openai, elevenlabs
	Endpoint    string `yaml:"endpoint"`
	Command     string `yaml:"command"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	Concurrency int    `yaml:"concurrency"`
	Plan        string `yaml:"plan"`        // turns, chunks
	ByteBudget  int    `yaml:"byte_budget"` // 0 picks the per-format default
	TurnChars   int    `yaml:"turn_chars"`
}

type AudioConfig struct {
	Codec         string `yaml:"codec"` // wav, ffmpeg
	FFmpegCommand string `yaml:"ffmpeg_command"`
	Bitrate       string `yaml:"bitrate"`
}

type PodcastConfig struct {
	Enabled            bool   `yaml:"enabled"`
	OutputDir          string `yaml:"output_dir"`
	ConversationConfig string `yaml:"conversation_config"`
	MaxConcurrentJobs  int    `yaml:"max_concurrent_jobs"`
	JobTimeoutSeconds  int    `yaml:"job_timeout_seconds"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-podcast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
			Traces:         "auto",
		},
		Node: NodeConfig{
			ID:                "podcast-worker-1",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/podcast-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		LLM: LLMConfig{
			Mode:        "mock",
			MaxTokens:   4096,
			Temperature: 1.0,
			TimeoutMS:   120000,
		},
		TTS: TTSConfig{
			Mode:        "mock",
			SampleRate:  22050,
			Channels:    1,
			Concurrency: 1,
			Plan:        "turns",
			TurnChars:   500,
		},
		Audio: AudioConfig{
			Codec:         "wav",
			FFmpegCommand: "ffmpeg",
			Bitrate:       "320k",
		},
		Podcast: PodcastConfig{
			Enabled:           true,
			OutputDir:         "./data",
			MaxConcurrentJobs: 2,
			JobTimeoutSeconds: 1800,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PODCAST_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PODCAST_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PODCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PODCAST_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PODCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PODCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PODCAST_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PODCAST_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Telemetry.Traces, "PODCAST_TELEMETRY_TRACES")
	overrideString(&cfg.Node.ID, "PODCAST_NODE_ID")
	overrideInt(&cfg.Node.HeartbeatInterval, "PODCAST_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "PODCAST_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Embedded, "PODCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PODCAST_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "PODCAST_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "PODCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PODCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PODCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PODCAST_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PODCAST_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PODCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "PODCAST_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "PODCAST_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "PODCAST_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "PODCAST_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "PODCAST_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "PODCAST_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "PODCAST_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "PODCAST_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "PODCAST_LLM_MODEL")
	overrideString(&cfg.LLM.APIKey, "PODCAST_LLM_API_KEY")
	overrideInt(&cfg.LLM.MaxTokens, "PODCAST_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "PODCAST_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "PODCAST_LLM_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "PODCAST_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "PODCAST_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Command, "PODCAST_TTS_COMMAND")
	overrideString(&cfg.TTS.Model, "PODCAST_TTS_MODEL")
	overrideString(&cfg.TTS.APIKey, "PODCAST_TTS_API_KEY")
	overrideInt(&cfg.TTS.SampleRate, "PODCAST_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "PODCAST_TTS_CHANNELS")
	overrideInt(&cfg.TTS.Concurrency, "PODCAST_TTS_CONCURRENCY")
	overrideString(&cfg.TTS.Plan, "PODCAST_TTS_PLAN")
	overrideInt(&cfg.TTS.ByteBudget, "PODCAST_TTS_BYTE_BUDGET")
	overrideInt(&cfg.TTS.TurnChars, "PODCAST_TTS_TURN_CHARS")
	overrideString(&cfg.Audio.Codec, "PODCAST_AUDIO_CODEC")
	overrideString(&cfg.Audio.FFmpegCommand, "PODCAST_AUDIO_FFMPEG_COMMAND")
	overrideString(&cfg.Audio.Bitrate, "PODCAST_AUDIO_BITRATE")
	overrideBool(&cfg.Podcast.Enabled, "PODCAST_SERVICE_ENABLED")
	overrideString(&cfg.Podcast.OutputDir, "PODCAST_OUTPUT_DIR")
	overrideString(&cfg.Podcast.ConversationConfig, "PODCAST_CONVERSATION_CONFIG")
	overrideInt(&cfg.Podcast.MaxConcurrentJobs, "PODCAST_MAX_CONCURRENT_JOBS")
	overrideInt(&cfg.Podcast.JobTimeoutSeconds, "PODCAST_JOB_TIMEOUT_SECONDS")

	// Provider keys may also come from their conventional variables.
	switch cfg.LLM.Mode {
	case "openai":
		fallbackString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	case "gemini":
		fallbackString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	}
	switch cfg.TTS.Mode {
	case "openai":
		fallbackString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
	case "elevenlabs":
		fallbackString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func fallbackString(target *string, envKey string) {
	if *target == "" {
		overrideString(target, envKey)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 || cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must exceed a positive node.heartbeat_interval_ms")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Telemetry.Traces {
	case "auto", "stdout", "none":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when traces=otlp")
		}
	default:
		return errors.New("telemetry.traces must be one of auto|otlp|stdout|none")
	}

	switch cfg.LLM.Mode {
	case "mock", "exec", "ollama", "openai", "gemini":
	default:
		return errors.New("llm.mode must be one of mock|exec|ollama|openai|gemini")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if (cfg.LLM.Mode == "openai" || cfg.LLM.Mode == "gemini") && cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key must be set when mode=%s", cfg.LLM.Mode)
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}

	switch cfg.TTS.Mode {
	case "mock", "exec", "openai", "elevenlabs":
	default:
		return errors.New("tts.mode must be one of mock|exec|openai|elevenlabs")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if (cfg.TTS.Mode == "openai" || cfg.TTS.Mode == "elevenlabs") && cfg.TTS.APIKey == "" {
		return fmt.Errorf("tts.api_key must be set when mode=%s", cfg.TTS.Mode)
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.TTS.Concurrency <= 0 {
		return errors.New("tts.concurrency must be >= 1")
	}
	switch cfg.TTS.Plan {
	case "turns":
	case "chunks":
		// Chunks carry both speakers' tags; only these backends voice them.
		if cfg.TTS.Mode != "exec" && cfg.TTS.Mode != "mock" {
			return fmt.Errorf("tts.plan=chunks requires a multi-speaker tts.mode (exec|mock), got %s", cfg.TTS.Mode)
		}
	default:
		return errors.New("tts.plan must be one of turns|chunks")
	}
	if cfg.TTS.ByteBudget < 0 {
		return errors.New("tts.byte_budget must be >= 0")
	}
	if cfg.TTS.TurnChars <= 0 {
		return errors.New("tts.turn_chars must be positive")
	}

	switch cfg.Audio.Codec {
	case "wav":
	case "ffmpeg":
		if cfg.Audio.FFmpegCommand == "" {
			return errors.New("audio.ffmpeg_command must be set when codec=ffmpeg")
		}
	default:
		return errors.New("audio.codec must be one of wav|ffmpeg")
	}

	if cfg.Podcast.OutputDir == "" {
		return errors.New("podcast.output_dir must not be empty")
	}
	if cfg.Podcast.Enabled && cfg.Podcast.MaxConcurrentJobs <= 0 {
		return errors.New("podcast.max_concurrent_jobs must be >= 1")
	}
	if cfg.Podcast.JobTimeoutSeconds < 0 {
		return errors.New("podcast.job_timeout_seconds must be >= 0")
	}
	return nil
}
