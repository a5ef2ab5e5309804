// Package cartesia provides a TTS provider backed by the Cartesia
// /tts/bytes HTTP endpoint, which returns a complete raw PCM clip per
// request.
package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

const (
	defaultBaseURL    = "https://api.cartesia.ai"
	defaultModel      = "sonic-2"
	defaultSampleRate = 16000
	apiVersion        = "2024-11-13"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Cartesia model id.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the voice used when a request does not name one.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voice = voiceID }
}

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithSampleRate sets the PCM sample rate requested from the API.
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider for Cartesia.
type Provider struct {
	apiKey     string
	model      string
	voice      string
	baseURL    string
	sampleRate int
	httpClient *http.Client
}

// New creates a Cartesia provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type bytesRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
}

// Synthesize posts req to /tts/bytes and returns the raw PCM body.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	if voice == "" {
		return audio.Clip{}, errors.New("cartesia: no voice configured")
	}

	body, err := json.Marshal(bytesRequest{
		ModelID:    p.model,
		Transcript: req.Text,
		Voice:      voiceSpec{Mode: "id", ID: voice},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   string(audio.EncodingPCM),
			SampleRate: p.sampleRate,
		},
		Language: language(req.Lang),
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cartesia: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cartesia: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", p.apiKey)
	httpReq.Header.Set("Cartesia-Version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cartesia: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("cartesia: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("cartesia: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) == 0 {
		return audio.Clip{}, errors.New("cartesia: empty audio")
	}

	return audio.Clip{
		Data:   data,
		Format: audio.Format{Encoding: audio.EncodingPCM, SampleRate: p.sampleRate, Channels: 1},
	}, nil
}

// language reduces a BCP-47 tag to the two-letter code Cartesia expects.
func language(tag string) string {
	if tag == "" || tag == "auto" {
		return ""
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
