package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultBufferSize      = 20
	DefaultMaxTextLen      = 4000
	DefaultPartialThrottle = 100 * time.Millisecond
	DefaultChunkTTL        = 10 * time.Second
	DefaultDebounce        = 300 * time.Millisecond
	DefaultTimeout         = 8 * time.Second
	DefaultTaskTTL         = 60 * time.Second
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCacheSize       = 1024
	DefaultVolume          = 0.75
	DefaultCooldown        = 200 * time.Millisecond
	DefaultSlotTimeout     = 10 * time.Second
	DefaultSampleRate      = 16000
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"translator": {"gemini", "llm", "mock"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram", "mock"},
	"tts":        {"elevenlabs", "cartesia", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = ModeListener
	}

	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = DefaultSampleRate
	}
	if cfg.Capture.Channels == 0 {
		cfg.Capture.Channels = 1
	}

	c := &cfg.Captions
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxTextLen == 0 {
		c.MaxTextLen = DefaultMaxTextLen
	}
	if c.PartialThrottle == 0 {
		c.PartialThrottle = DefaultPartialThrottle
	}
	if c.ChunkTTL == 0 {
		c.ChunkTTL = DefaultChunkTTL
	}

	t := &cfg.Translation
	if t.Debounce == 0 {
		t.Debounce = DefaultDebounce
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTimeout
	}
	if t.TaskTTL == 0 {
		t.TaskTTL = DefaultTaskTTL
	}
	if t.Cache.Backend != CacheNone {
		if t.Cache.TTL == 0 {
			t.Cache.TTL = DefaultCacheTTL
		}
		if t.Cache.Size == 0 {
			t.Cache.Size = DefaultCacheSize
		}
	}

	p := &cfg.Playback
	if p.Volume == nil {
		v := DefaultVolume
		p.Volume = &v
	}
	if p.Cooldown == 0 {
		p.Cooldown = DefaultCooldown
	}
	if p.SlotTimeout == 0 {
		p.SlotTimeout = DefaultSlotTimeout
	}
	if p.Output.Kind == "" {
		p.Output.Kind = OutputDiscard
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Mode != "" && !cfg.Server.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("server.mode %q is invalid; valid values: listener, relay", cfg.Server.Mode))
	}

	// The relay only needs the server section.
	if cfg.Server.Mode == ModeRelay {
		return errors.Join(errs...)
	}

	// Session
	if cfg.Session.MeetingID == "" {
		errs = append(errs, errors.New("session.meeting_id is required"))
	}
	if cfg.Session.LocalUserID == "" {
		errs = append(errs, errors.New("session.local_user_id is required"))
	}

	// Providers
	validateProviderName("translator", cfg.Providers.Translator.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("translator", cfg.Providers.FallbackTranslator.Name)
	validateProviderName("tts", cfg.Providers.FallbackTTS.Name)
	validateProviderName("stt", cfg.Providers.FallbackSTT.Name)

	if cfg.Providers.Translator.Name == "llm" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.translator \"llm\" requires providers.llm to be configured"))
	}
	if cfg.Translation.AutoTranslate && cfg.Providers.Translator.Name == "" {
		errs = append(errs, errors.New("translation.auto_translate requires providers.translator to be configured"))
	}
	if cfg.Playback.Enabled && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("playback.enabled requires providers.tts to be configured"))
	}
	if cfg.Capture.Input != "" && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("capture.input requires providers.stt to be configured"))
	}
	if cfg.Capture.SampleRate < 0 || cfg.Capture.Channels < 0 || cfg.Capture.Channels > 2 {
		errs = append(errs, fmt.Errorf("capture: sample_rate %d / channels %d out of range", cfg.Capture.SampleRate, cfg.Capture.Channels))
	}

	// Captions
	c := cfg.Captions
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("captions.buffer_size %d must not be negative", c.BufferSize))
	}
	if c.MaxTextLen < 0 || c.MaxTextLen > DefaultMaxTextLen {
		errs = append(errs, fmt.Errorf("captions.max_text_len %d is out of range [0, %d]", c.MaxTextLen, DefaultMaxTextLen))
	}
	if c.PartialThrottle < 0 {
		errs = append(errs, fmt.Errorf("captions.partial_throttle %s must not be negative", c.PartialThrottle))
	}
	if c.ChunkTTL < 0 {
		errs = append(errs, fmt.Errorf("captions.chunk_ttl %s must not be negative", c.ChunkTTL))
	}

	// Translation
	t := cfg.Translation
	if t.AutoTranslate && t.TargetLang == "" {
		errs = append(errs, errors.New("translation.target_lang is required when auto_translate is set"))
	}
	if t.Debounce < 0 || t.Timeout < 0 || t.TaskTTL < 0 {
		errs = append(errs, errors.New("translation durations must not be negative"))
	}
	switch t.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if t.Cache.Addr == "" {
			errs = append(errs, errors.New("translation.cache.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("translation.cache.backend %q is invalid; valid values: memory, redis", t.Cache.Backend))
	}

	// Playback
	p := cfg.Playback
	if p.Volume != nil && (*p.Volume < 0 || *p.Volume > 1) {
		errs = append(errs, fmt.Errorf("playback.volume %.2f is out of range [0, 1]", *p.Volume))
	}
	if p.Cooldown < 0 || p.SlotTimeout < 0 {
		errs = append(errs, errors.New("playback durations must not be negative"))
	}
	switch p.Output.Kind {
	case "", OutputStdout, OutputDiscard:
	case OutputFile:
		if p.Output.Path == "" {
			errs = append(errs, errors.New("playback.output.path is required when kind is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("playback.output.kind %q is invalid; valid values: stdout, file, discard", p.Output.Kind))
	}

	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; history will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
