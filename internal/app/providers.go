package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/internal/resilience"
	"github.com/MrWong99/lingualink/pkg/provider/llm"
	"github.com/MrWong99/lingualink/pkg/provider/llm/anyllm"
	"github.com/MrWong99/lingualink/pkg/provider/llm/openai"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	"github.com/MrWong99/lingualink/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/lingualink/pkg/provider/stt/mock"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
	"github.com/MrWong99/lingualink/pkg/provider/translate/gemini"
	"github.com/MrWong99/lingualink/pkg/provider/translate/llmtranslate"
	trmock "github.com/MrWong99/lingualink/pkg/provider/translate/mock"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
	"github.com/MrWong99/lingualink/pkg/provider/tts/cartesia"
	"github.com/MrWong99/lingualink/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/lingualink/pkg/provider/tts/mock"
)

// llmTranslator is the translator name that delegates to providers.llm.
const llmTranslator = "llm"

// RegisterBuiltinProviders wires all built-in provider factories into reg.
// The "llm" translator is not a registry entry: [BuildProviders] builds it
// from the providers.llm entry.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── Translators ───────────────────────────────────────────────────────────

	reg.RegisterTranslator("gemini", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		p, err := gemini.New(context.Background(), entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTranslator("mock", func(entry config.ProviderEntry) (translate.Translator, error) {
		return &trmock.Translator{Default: optString(entry.Options, "reply")}, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile share
	// the same pattern: optional APIKey + optional BaseURL.
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		p, err := deepgram.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("cartesia", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []cartesia.Option
		if entry.Model != "" {
			opts = append(opts, cartesia.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, cartesia.WithVoice(voice))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, cartesia.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, cartesia.WithBaseURL(entry.BaseURL))
		}
		p, err := cartesia.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	for _, kind := range []string{"translator", "llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates all providers named in cfg using the registry.
// When a fallback entry is configured for a slot, the slot is wrapped in a
// circuit-breaking fallback group with the primary tried first.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	pc := cfg.Providers

	if pc.Translator.Name != "" {
		tr, err := buildTranslator(pc.Translator, pc.LLM, reg)
		if err != nil {
			return nil, fmt.Errorf("create translator %q: %w", pc.Translator.Name, err)
		}
		if pc.FallbackTranslator.Name != "" {
			fb, err := buildTranslator(pc.FallbackTranslator, pc.LLM, reg)
			if err != nil {
				return nil, fmt.Errorf("create fallback translator %q: %w", pc.FallbackTranslator.Name, err)
			}
			group := resilience.NewTranslatorFallback(tr, pc.Translator.Name, resilience.FallbackConfig{})
			group.AddFallback(pc.FallbackTranslator.Name, fb)
			tr = group
		}
		ps.Translator = tr
		slog.Info("provider created", "kind", "translator", "name", pc.Translator.Name, "fallback", pc.FallbackTranslator.Name)
	}

	if pc.TTS.Name != "" {
		p, err := reg.CreateTTS(pc.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", pc.TTS.Name, err)
		}
		if pc.FallbackTTS.Name != "" {
			fb, err := reg.CreateTTS(pc.FallbackTTS)
			if err != nil {
				return nil, fmt.Errorf("create fallback tts provider %q: %w", pc.FallbackTTS.Name, err)
			}
			group := resilience.NewTTSFallback(p, pc.TTS.Name, resilience.FallbackConfig{})
			group.AddFallback(pc.FallbackTTS.Name, fb)
			p = group
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", pc.TTS.Name, "fallback", pc.FallbackTTS.Name)
	}

	if pc.STT.Name != "" {
		p, err := reg.CreateSTT(pc.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("recognizer not available, local speech is not published", "name", pc.STT.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", pc.STT.Name, err)
		} else {
			if pc.FallbackSTT.Name != "" {
				fb, err := reg.CreateSTT(pc.FallbackSTT)
				if err != nil {
					return nil, fmt.Errorf("create fallback stt provider %q: %w", pc.FallbackSTT.Name, err)
				}
				group := resilience.NewSTTFallback(p, pc.STT.Name, resilience.FallbackConfig{})
				group.AddFallback(pc.FallbackSTT.Name, fb)
				p = group
			}
			ps.STT = p
			ps.STTName = pc.STT.Name
			slog.Info("provider created", "kind", "stt", "name", pc.STT.Name, "fallback", pc.FallbackSTT.Name)
		}
	}

	return ps, nil
}

// buildTranslator creates the translator for entry. The "llm" translator
// wraps the provider described by llmEntry.
func buildTranslator(entry, llmEntry config.ProviderEntry, reg *config.Registry) (translate.Translator, error) {
	if entry.Name != llmTranslator {
		return reg.CreateTranslator(entry)
	}
	p, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, err
	}
	var opts []llmtranslate.Option
	if t, ok := optFloat(entry.Options, "temperature"); ok {
		opts = append(opts, llmtranslate.WithTemperature(t))
	}
	if n := optInt(entry.Options, "max_tokens"); n > 0 {
		opts = append(opts, llmtranslate.WithMaxTokens(n))
	}
	return llmtranslate.New(p, llmEntry.Name, opts...), nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// optFloat extracts a numeric option and reports whether it was present.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
