// Package capture adapts a streaming speech-to-text provider to the
// orchestrator's capture contract: interim and final results delivered
// through per-session callbacks, with provider failures converted to
// error codes instead of propagated errors.
package capture

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/creastat/infra/telemetry"
	providers "github.com/creastat/providers/core"

	"github.com/creastat/assistant/core"
)

// ErrNotSupported is returned by Start when no provider is configured
var ErrNotSupported = errors.New("capture: no speech-to-text provider available")

// Error codes surfaced through CaptureEvents.OnError
const (
	ErrCodeAborted  = "aborted"
	ErrCodeNoSpeech = "no-speech"
	ErrCodeNetwork  = "network"
)

// Config holds capture adapter configuration
type Config struct {
	Provider providers.STTProvider

	// Source supplies raw audio frames. It is drained for the lifetime
	// of each capture session and is never closed by the adapter.
	Source <-chan []byte

	Language       string
	Encoding       string
	SampleRate     int
	Continuous     bool
	InterimResults bool
	Logger         telemetry.Logger
}

// Adapter wraps an STT provider's streaming lifecycle
type Adapter struct {
	config Config

	mu         sync.Mutex
	cancel     context.CancelFunc
	transcript string
}

// New creates a capture adapter
func New(config Config) *Adapter {
	return &Adapter{config: config}
}

// Supported reports whether a speech-to-text provider is available
func (a *Adapter) Supported() bool {
	return a.config.Provider != nil
}

// Transcript returns the final text accumulated since the last Reset or Start
func (a *Adapter) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript
}

// Reset clears the accumulated transcript buffer
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.transcript = ""
	a.mu.Unlock()
}

// Stop ends the current capture session, if any
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Start begins a capture session. Any previous session is stopped and
// the transcript buffer cleared. Events are delivered sequentially from
// a single goroutine until the session ends.
func (a *Adapter) Start(ctx context.Context, events core.CaptureEvents) error {
	if !a.Supported() {
		return ErrNotSupported
	}

	logger := a.config.Logger.WithModule("capture")

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.transcript = ""
	a.mu.Unlock()

	logger.Info("Starting capture session",
		telemetry.String("provider", a.config.Provider.Name()),
		telemetry.String("language", a.config.Language))

	stream, err := a.config.Provider.StreamTranscribe(sessionCtx, providers.STTRequest{
		Language:   a.config.Language,
		Encoding:   a.config.Encoding,
		SampleRate: a.config.SampleRate,
		Options: map[string]any{
			"continuous":      a.config.Continuous,
			"interim_results": a.config.InterimResults,
		},
	})
	if err != nil {
		cancel()
		logger.Error("Failed to start STT stream", telemetry.Err(err))
		return err
	}

	// Pump audio frames into the stream until the session ends
	go func() {
		frames := 0
		for {
			select {
			case <-sessionCtx.Done():
				logger.Debug("Audio pump stopped", telemetry.Int("frames_sent", frames))
				return
			case frame, ok := <-a.config.Source:
				if !ok {
					// Empty chunk signals end-of-stream to the provider
					if err := stream.Send(sessionCtx, []byte{}); err != nil {
						logger.Error("Failed to send end-of-stream signal", telemetry.Err(err))
					}
					return
				}
				if err := stream.Send(sessionCtx, frame); err != nil {
					logger.Error("Failed to send audio to STT stream", telemetry.Err(err), telemetry.Int("frames_sent", frames))
					return
				}
				frames++
			}
		}
	}()

	go a.receive(sessionCtx, stream, events, logger)

	return nil
}

// receive reads transcription chunks and invokes callbacks. It owns the
// stream and closes it on exit.
func (a *Adapter) receive(ctx context.Context, stream providers.STTStream, events core.CaptureEvents, logger telemetry.Logger) {
	defer stream.Close()

	finals := 0
	for {
		chunk, err := stream.Receive(ctx)
		if err != nil {
			if err == io.EOF {
				logger.Info("STT stream finished", telemetry.Int("finals", finals))
				if finals == 0 {
					a.emitError(events, ErrCodeNoSpeech)
				}
				a.emitEnd(events)
				return
			}
			if errors.Is(err, context.Canceled) {
				logger.Debug("Capture session aborted")
				a.emitError(events, ErrCodeAborted)
				a.emitEnd(events)
				return
			}
			logger.Error("Error receiving STT chunk", telemetry.Err(err))
			a.emitError(events, ErrCodeNetwork)
			a.emitEnd(events)
			return
		}

		if chunk == nil || chunk.Done {
			logger.Info("STT stream done", telemetry.Int("finals", finals))
			if finals == 0 {
				a.emitError(events, ErrCodeNoSpeech)
			}
			a.emitEnd(events)
			return
		}

		if chunk.Text == "" {
			continue
		}

		if chunk.IsFinal {
			finals++
			a.mu.Lock()
			if a.transcript != "" {
				a.transcript += " "
			}
			a.transcript += chunk.Text
			a.mu.Unlock()
		}

		logger.Debug("Received transcript chunk",
			telemetry.String("text", chunk.Text),
			telemetry.Bool("is_final", chunk.IsFinal))

		if events.OnResult != nil {
			events.OnResult(core.CaptureResult{
				Text:       chunk.Text,
				IsFinal:    chunk.IsFinal,
				Confidence: chunk.Confidence,
			})
		}
	}
}

func (a *Adapter) emitError(events core.CaptureEvents, code string) {
	if events.OnError != nil {
		events.OnError(code)
	}
}

func (a *Adapter) emitEnd(events core.CaptureEvents) {
	if events.OnEnd != nil {
		events.OnEnd()
	}
}
