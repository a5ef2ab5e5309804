package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/lingualink/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	const session = "session:\n  meeting_id: m\n  local_user_id: u\n"

	tests := []struct {
		name    string
		yaml    string
		wantErr string // empty means valid
	}{
		{
			name:    "missing session",
			yaml:    "server:\n  log_level: info\n",
			wantErr: "session.meeting_id is required",
		},
		{
			name:    "missing local user",
			yaml:    "session:\n  meeting_id: m\n",
			wantErr: "session.local_user_id is required",
		},
		{
			name:    "bad log level",
			yaml:    session + "server:\n  log_level: loud\n",
			wantErr: "server.log_level",
		},
		{
			name:    "bad mode",
			yaml:    session + "server:\n  mode: bridge\n",
			wantErr: "server.mode",
		},
		{
			name:    "auto translate without target",
			yaml:    session + "providers:\n  translator: {name: mock}\ntranslation:\n  auto_translate: true\n",
			wantErr: "translation.target_lang is required",
		},
		{
			name:    "auto translate without translator",
			yaml:    session + "translation:\n  auto_translate: true\n  target_lang: es\n",
			wantErr: "providers.translator",
		},
		{
			name:    "llm translator without llm",
			yaml:    session + "providers:\n  translator: {name: llm}\n",
			wantErr: "requires providers.llm",
		},
		{
			name:    "playback without tts",
			yaml:    session + "playback:\n  enabled: true\n",
			wantErr: "providers.tts",
		},
		{
			name:    "volume out of range",
			yaml:    session + "playback:\n  volume: 1.5\n",
			wantErr: "playback.volume",
		},
		{
			name:    "max text len too large",
			yaml:    session + "captions:\n  max_text_len: 5000\n",
			wantErr: "captions.max_text_len",
		},
		{
			name:    "negative throttle",
			yaml:    session + "captions:\n  partial_throttle: -1s\n",
			wantErr: "captions.partial_throttle",
		},
		{
			name:    "redis without addr",
			yaml:    session + "translation:\n  cache: {backend: redis}\n",
			wantErr: "translation.cache.addr",
		},
		{
			name:    "unknown cache backend",
			yaml:    session + "translation:\n  cache: {backend: memcached}\n",
			wantErr: "translation.cache.backend",
		},
		{
			name:    "file output without path",
			yaml:    session + "playback:\n  output: {kind: file}\n",
			wantErr: "playback.output.path",
		},
		{
			name:    "unknown output kind",
			yaml:    session + "playback:\n  output: {kind: speaker}\n",
			wantErr: "playback.output.kind",
		},
		{
			name:    "capture without stt",
			yaml:    session + "capture:\n  input: \"-\"\n",
			wantErr: "capture.input requires providers.stt",
		},
		{
			name:    "capture with three channels",
			yaml:    session + "capture:\n  channels: 3\n",
			wantErr: "capture:",
		},
		{
			name: "capture from stdin",
			yaml: session + "providers:\n  stt: {name: mock}\ncapture:\n  input: \"-\"\n",
		},
		{
			name: "unknown provider name only warns",
			yaml: session + "providers:\n  stt: {name: acme}\n",
		},
		{
			name: "memory cache",
			yaml: session + "translation:\n  cache: {backend: memory}\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\nplayback:\n  volume: -1\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "session.meeting_id", "playback.volume"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestApplyDefaults_CacheOnlyWithBackend(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Translation.Cache.Backend = config.CacheMemory
	config.ApplyDefaults(cfg)
	if cfg.Translation.Cache.Size != config.DefaultCacheSize {
		t.Errorf("cache size = %d, want %d", cfg.Translation.Cache.Size, config.DefaultCacheSize)
	}
	if cfg.Translation.Cache.TTL != config.DefaultCacheTTL {
		t.Errorf("cache ttl = %s", cfg.Translation.Cache.TTL)
	}
}
