// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{Data: []byte("pcm")}}
//	clip, _ := p.Synthesize(ctx, tts.Request{Text: "hola", Lang: "es"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned from every successful call. When its Data is empty
	// the request text is returned as 16 kHz mono PCM bytes so that tests
	// can tell clips apart.
	Clip audio.Clip

	// Err, if non-nil, is returned from every call.
	Err error

	// Calls records every call in order.
	Calls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	if len(p.Clip.Data) > 0 {
		return p.Clip, nil
	}
	return audio.Clip{
		Data:   []byte(req.Text),
		Format: audio.Format{Encoding: audio.EncodingPCM, SampleRate: 16000, Channels: 1},
	}, nil
}

// SetErr replaces Err under the provider lock.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	p.Err = err
	p.mu.Unlock()
}

// Texts returns the request texts of all recorded calls in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Req.Text
	}
	return out
}

// Requests returns a copy of all recorded requests.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Req
	}
	return out
}
