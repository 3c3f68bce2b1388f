// Package playback adapts a streaming text-to-speech provider to the
// orchestrator's playback contract. At most one utterance is in flight;
// starting a new one silently cancels the previous, which then emits no
// further events.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/creastat/infra/telemetry"
	providers "github.com/creastat/providers/core"

	"github.com/creastat/assistant/core"
)

// ErrNotSupported is returned by Speak when no provider is configured
var ErrNotSupported = errors.New("playback: no text-to-speech provider available")

// Error codes surfaced through PlaybackEvents.OnError
const (
	ErrCodeSynthesis   = "synthesis-failed"
	ErrCodeInterrupted = "interrupted"
)

// Config holds playback adapter configuration
type Config struct {
	Provider providers.TTSProvider
	Voice    string
	Language string
	Encoding string

	// Sink receives synthesized audio chunks in playback order
	Sink func(data []byte, format string)

	Logger telemetry.Logger
}

// Adapter wraps a TTS provider's streaming lifecycle
type Adapter struct {
	config Config

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	speaking bool
	paused   bool
	resumed  chan struct{}
	events   core.PlaybackEvents
}

// New creates a playback adapter
func New(config Config) *Adapter {
	return &Adapter{config: config}
}

// Speaking reports whether an utterance is in flight
func (a *Adapter) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaking
}

// Paused reports whether the current utterance is paused
func (a *Adapter) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Speak synthesizes and plays text, cancelling any in-flight utterance
// first. Provider failures surface through events.OnError only.
func (a *Adapter) Speak(ctx context.Context, text string, voice *core.VoiceSettings, events core.PlaybackEvents) error {
	if a.config.Provider == nil {
		return ErrNotSupported
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("playback: empty utterance")
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.gen++
	gen := a.gen
	utteranceCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.speaking = true
	a.paused = false
	a.resumed = nil
	a.events = events
	a.mu.Unlock()

	if events.OnStart != nil {
		events.OnStart()
	}

	go a.run(utteranceCtx, gen, text, voice, events)
	return nil
}

// Pause suspends audio delivery for the current utterance
func (a *Adapter) Pause() {
	a.mu.Lock()
	if !a.speaking || a.paused {
		a.mu.Unlock()
		return
	}
	a.paused = true
	a.resumed = make(chan struct{})
	onPause := a.events.OnPause
	a.mu.Unlock()

	if onPause != nil {
		onPause()
	}
}

// Resume continues audio delivery after a Pause
func (a *Adapter) Resume() {
	a.mu.Lock()
	if !a.paused {
		a.mu.Unlock()
		return
	}
	a.paused = false
	if a.resumed != nil {
		close(a.resumed)
		a.resumed = nil
	}
	onResume := a.events.OnResume
	a.mu.Unlock()

	if onResume != nil {
		onResume()
	}
}

// Cancel discards the current utterance. The cancelled utterance emits
// no further events, including OnEnd.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
	a.speaking = false
	a.paused = false
	if a.resumed != nil {
		close(a.resumed)
		a.resumed = nil
	}
	a.events = core.PlaybackEvents{}
	a.mu.Unlock()
}

// run streams one utterance through the provider to the sink
func (a *Adapter) run(ctx context.Context, gen uint64, text string, voice *core.VoiceSettings, events core.PlaybackEvents) {
	logger := a.config.Logger.WithModule("playback")

	req := providers.TTSRequest{
		Voice:    a.config.Voice,
		Language: a.config.Language,
	}
	if voice != nil && voice.Rate > 0 {
		rate := voice.Rate
		req.Speed = &rate
	}

	stream, err := a.config.Provider.StreamSynthesize(ctx, req)
	if err != nil {
		logger.Error("Failed to start TTS stream", telemetry.Err(err), telemetry.String("provider", a.config.Provider.Name()))
		a.fail(gen, events, ErrCodeSynthesis)
		return
	}
	defer stream.Close()

	if err := stream.Send(ctx, text); err != nil {
		logger.Error("Failed to send text to TTS stream", telemetry.Err(err))
		a.fail(gen, events, ErrCodeSynthesis)
		return
	}

	// Providers that buffer server-side need an explicit end-of-input
	if finisher, ok := stream.(interface{ Finish(context.Context) error }); ok {
		if err := finisher.Finish(ctx); err != nil {
			logger.Error("Failed to finish TTS stream", telemetry.Err(err))
		}
	}

	chunks := 0
	for {
		chunk, err := stream.Receive(ctx)
		if err != nil {
			if strings.Contains(err.Error(), "EOF") || strings.Contains(err.Error(), "stream closed") {
				logger.Info("TTS stream finished", telemetry.Int("chunks", chunks))
				a.finish(gen, events)
				return
			}
			if errors.Is(err, context.Canceled) {
				logger.Debug("Utterance cancelled", telemetry.Int("chunks", chunks))
				return
			}
			logger.Error("Error receiving TTS chunk", telemetry.Err(err), telemetry.Int("chunks", chunks))
			a.fail(gen, events, ErrCodeSynthesis)
			return
		}

		if chunk == nil || chunk.Done {
			logger.Info("TTS stream done", telemetry.Int("chunks", chunks))
			a.finish(gen, events)
			return
		}

		if !a.waitWhilePaused(ctx, gen) {
			return
		}

		chunks++
		if a.config.Sink != nil {
			a.config.Sink(chunk.Audio, a.config.Encoding)
		}
	}
}

// waitWhilePaused blocks audio delivery while paused. Returns false if
// the utterance was cancelled or superseded meanwhile.
func (a *Adapter) waitWhilePaused(ctx context.Context, gen uint64) bool {
	for {
		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			return false
		}
		if !a.paused {
			a.mu.Unlock()
			return true
		}
		resumed := a.resumed
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-resumed:
		}
	}
}

// finish marks the utterance complete if it is still the current one
func (a *Adapter) finish(gen uint64, events core.PlaybackEvents) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.speaking = false
	a.paused = false
	a.cancel = nil
	a.events = core.PlaybackEvents{}
	a.mu.Unlock()

	if events.OnEnd != nil {
		events.OnEnd()
	}
}

// fail resets the speaking state without propagating the error
func (a *Adapter) fail(gen uint64, events core.PlaybackEvents, code string) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.speaking = false
	a.paused = false
	a.cancel = nil
	a.events = core.PlaybackEvents{}
	a.mu.Unlock()

	if events.OnError != nil {
		events.OnError(code)
	}
}
