package core

import "context"

// CaptureResult is one speech-to-text result from the capture adapter
type CaptureResult struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// CaptureEvents receives callbacks for a single capture session.
// Nil funcs are skipped. Callbacks are invoked sequentially.
type CaptureEvents struct {
	OnResult func(result CaptureResult)
	OnEnd    func()
	OnError  func(code string)
}

// SpeechCapture wraps a speech-to-text provider's lifecycle
type SpeechCapture interface {
	// Supported reports whether a provider is available. When false,
	// Start refuses rather than panicking.
	Supported() bool

	// Start begins a capture session, clearing any previous transcript
	// buffer. Events are delivered until Stop or a provider error.
	Start(ctx context.Context, events CaptureEvents) error

	// Stop ends the current capture session, if any
	Stop()

	// Reset clears the accumulated transcript buffer
	Reset()
}

// PlaybackEvents receives callbacks for a single utterance.
// An utterance cancelled by a newer Speak gets no further callbacks,
// including OnEnd.
type PlaybackEvents struct {
	OnStart  func()
	OnEnd    func()
	OnPause  func()
	OnResume func()
	OnError  func(code string)
}

// SpeechPlayback wraps a text-to-speech provider's lifecycle
type SpeechPlayback interface {
	// Speak synthesizes and plays text. Any in-flight utterance is
	// cancelled first; at most one utterance is ever active.
	Speak(ctx context.Context, text string, voice *VoiceSettings, events PlaybackEvents) error

	// Pause suspends audio delivery for the current utterance
	Pause()

	// Resume continues audio delivery after a Pause
	Resume()

	// Cancel discards the current utterance, if any
	Cancel()

	// Speaking reports whether an utterance is in flight
	Speaking() bool

	// Paused reports whether the current utterance is paused
	Paused() bool
}
