// Package config provides the configuration schema, loader, and provider registry
// for the lingualink listener and relay.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode selects what the process runs.
type Mode string

const (
	// ModeListener runs the caption pipeline for one listener.
	ModeListener Mode = "listener"

	// ModeRelay runs the fragment relay server only.
	ModeRelay Mode = "relay"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeListener || m == ModeRelay
}

// CacheBackend selects the translation cache store.
type CacheBackend string

const (
	CacheNone   CacheBackend = ""
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// OutputKind selects where synthesized audio is written.
type OutputKind string

const (
	OutputStdout  OutputKind = "stdout"
	OutputFile    OutputKind = "file"
	OutputDiscard OutputKind = "discard"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Session     SessionConfig     `yaml:"session"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Capture     CaptureConfig     `yaml:"capture"`
	Captions    CaptionsConfig    `yaml:"captions"`
	Translation TranslationConfig `yaml:"translation"`
	Playback    PlaybackConfig    `yaml:"playback"`
	History     HistoryConfig     `yaml:"history"`
	Event       EventConfig       `yaml:"event"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Mode selects listener or relay operation. Defaults to listener.
	Mode Mode `yaml:"mode"`

	// AllowedOrigins lists browser origins allowed by CORS and by the relay
	// websocket upgrade. Empty allows same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionConfig identifies the meeting and the local listener.
type SessionConfig struct {
	MeetingID     string `yaml:"meeting_id"`
	LocalUserID   string `yaml:"local_user_id"`
	LocalUserName string `yaml:"local_user_name"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Translator ProviderEntry `yaml:"translator"`
	LLM        ProviderEntry `yaml:"llm"`
	TTS        ProviderEntry `yaml:"tts"`
	STT        ProviderEntry `yaml:"stt"`

	// The fallback entries, when named, are tried after the primary provider
	// fails or its circuit is open.
	FallbackTranslator ProviderEntry `yaml:"fallback_translator"`
	FallbackTTS        ProviderEntry `yaml:"fallback_tts"`
	FallbackSTT        ProviderEntry `yaml:"fallback_stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// CaptureConfig selects the audio the local publisher transcribes.
type CaptureConfig struct {
	// Input is "-" for stdin, a file path, or empty to disable capture.
	// The stream is raw 16-bit little-endian PCM.
	Input string `yaml:"input"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Language is passed to the recognizer. Empty selects its default.
	Language string `yaml:"language"`

	// Glossary lists names and terms that recognized text is corrected
	// towards before it is published.
	Glossary []string `yaml:"glossary"`
}

// CaptionsConfig bounds the inbound fragment stream.
type CaptionsConfig struct {
	BufferSize      int           `yaml:"buffer_size"`
	MaxTextLen      int           `yaml:"max_text_len"`
	PartialThrottle time.Duration `yaml:"partial_throttle"`
	ChunkTTL        time.Duration `yaml:"chunk_ttl"`
}

// TranslationConfig holds the orchestrator settings.
type TranslationConfig struct {
	AutoTranslate bool          `yaml:"auto_translate"`
	SourceLang    string        `yaml:"source_lang"`
	TargetLang    string        `yaml:"target_lang"`
	Debounce      time.Duration `yaml:"debounce"`
	Timeout       time.Duration `yaml:"timeout"`
	TaskTTL       time.Duration `yaml:"task_ttl"`
	Cache         CacheConfig   `yaml:"cache"`
}

// CacheConfig configures the translation cache decorator.
type CacheConfig struct {
	Backend CacheBackend  `yaml:"backend"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`
}

// PlaybackConfig holds the speech playback settings.
type PlaybackConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Voice         string        `yaml:"voice"`
	Volume        *float64      `yaml:"volume"`
	Device        string        `yaml:"device"`
	Cooldown      time.Duration `yaml:"cooldown"`
	SlotTimeout   time.Duration `yaml:"slot_timeout"`
	MutedSpeakers []string      `yaml:"muted_speakers"`
	Output        OutputConfig  `yaml:"output"`
}

// OutputConfig selects the default audio output device.
type OutputConfig struct {
	Kind OutputKind `yaml:"kind"`
	Path string     `yaml:"path"`
}

// HistoryConfig configures the history recorder.
type HistoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables
	// persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventConfig configures the event channel.
type EventConfig struct {
	// RelayURL is the websocket URL of the fragment relay
	// (e.g., "ws://relay:8080/ws"). Empty uses an in-process hub, which is
	// only useful for local testing.
	RelayURL string `yaml:"relay_url"`
}
