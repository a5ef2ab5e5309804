package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranslationChanged is set when auto_translate or a language changed.
	TranslationChanged bool

	// PlaybackChanged is set when enable, voice, volume, device or the muted
	// speaker list changed.
	PlaybackChanged bool

	// RestartRequired lists sections that changed but are not hot-reloadable.
	RestartRequired []string
}

// Changed reports whether d carries any live-applicable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.TranslationChanged || d.PlaybackChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ot, nt := old.Translation, new.Translation
	if ot.AutoTranslate != nt.AutoTranslate || ot.SourceLang != nt.SourceLang || ot.TargetLang != nt.TargetLang {
		d.TranslationChanged = true
	}

	op, np := old.Playback, new.Playback
	if op.Enabled != np.Enabled ||
		op.Voice != np.Voice ||
		volume(op.Volume) != volume(np.Volume) ||
		op.Device != np.Device ||
		!slices.Equal(op.MutedSpeakers, np.MutedSpeakers) {
		d.PlaybackChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.Mode != new.Server.Mode {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !captureEqual(old.Capture, new.Capture) {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Captions != new.Captions {
		d.RestartRequired = append(d.RestartRequired, "captions")
	}
	if ot.Debounce != nt.Debounce || ot.Timeout != nt.Timeout || ot.TaskTTL != nt.TaskTTL || ot.Cache != nt.Cache {
		d.RestartRequired = append(d.RestartRequired, "translation")
	}
	if op.Cooldown != np.Cooldown || op.SlotTimeout != np.SlotTimeout || op.Output != np.Output {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Event != new.Event {
		d.RestartRequired = append(d.RestartRequired, "event")
	}

	return d
}

func volume(v *float64) float64 {
	if v == nil {
		return DefaultVolume
	}
	return *v
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.Translator, b.Translator) &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.STT, b.STT) &&
		entryEqual(a.FallbackTranslator, b.FallbackTranslator) &&
		entryEqual(a.FallbackTTS, b.FallbackTTS) &&
		entryEqual(a.FallbackSTT, b.FallbackSTT)
}

// entryEqual compares Options by length only.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && len(a.Options) == len(b.Options)
}

func captureEqual(a, b CaptureConfig) bool {
	return a.Input == b.Input &&
		a.SampleRate == b.SampleRate &&
		a.Channels == b.Channels &&
		a.Language == b.Language &&
		slices.Equal(a.Glossary, b.Glossary)
}
