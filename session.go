// Package assistant implements the voice-driven conversational
// assistant core: a single-owner orchestrator that arbitrates the
// microphone and speaker between wake-word listening, conversation
// capture, intent resolution, and speech playback.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/creastat/infra/telemetry"
	"github.com/google/uuid"

	"github.com/creastat/assistant/core"
)

var (
	// ErrSessionActive means another VoiceSession owns the audio
	// hardware; only one session may exist per UI surface.
	ErrSessionActive = errors.New("assistant: a voice session is already active")

	// ErrSessionClosed means the session has been torn down
	ErrSessionClosed = errors.New("assistant: session is closed")

	// ErrCaptureUnsupported means no speech-to-text capability exists
	// on this platform; the feature stays permanently disabled.
	ErrCaptureUnsupported = errors.New("assistant: speech capture is not supported")

	// ErrCaptureBusy means another capture already owns the microphone
	ErrCaptureBusy = errors.New("assistant: another capture is active")
)

const (
	defaultDebounceInterval  = 2 * time.Second
	defaultWakeActiveTimeout = 30 * time.Second
	defaultConversationDelay = 1500 * time.Millisecond
)

// Resolver is the intent engine contract the session drives
type Resolver interface {
	Resolve(ctx context.Context, utterance string) core.IntentResponse
	WakeGreeting() core.IntentResponse
	AddMessage(msg core.Message)
	History() []core.Message
}

// Config holds voice session configuration
type Config struct {
	// ID identifies the session in upward events (default: random)
	ID string

	Capture  core.SpeechCapture
	Playback core.SpeechPlayback
	Resolver Resolver

	// WakePhrases are matched case/punctuation-insensitively as
	// substrings of final transcripts.
	WakePhrases []string

	// WakeWordsEnabled is the initial user toggle
	WakeWordsEnabled bool

	// Clock defaults to the wall clock; tests inject clock.NewMock()
	Clock clock.Clock

	DebounceInterval  time.Duration
	WakeActiveTimeout time.Duration
	ConversationDelay time.Duration

	Logger telemetry.Logger
}

// Package-level guard: the microphone and speaker are exclusive
// resources, so at most one session may be open at a time.
var (
	activeMu sync.Mutex
	active   *VoiceSession
)

// VoiceSession is the single source of truth for which audio
// capability may be active. All state transitions happen while holding
// the session mutex, so they are serialized and atomic; asynchronous
// adapter callbacks are tagged with a capture generation id and
// discarded once stale.
type VoiceSession struct {
	config Config
	clock  clock.Clock
	logger telemetry.Logger
	id     string

	ctx    context.Context
	cancel context.CancelFunc

	mu                  sync.Mutex
	state               core.VoiceState
	wakeWordsEnabled    bool
	wakePaused          bool
	lastWakeWordAt      time.Time
	wakeActiveExpiresAt time.Time
	lastError           string
	closed              bool

	// captureID tags the live capture session; events carrying any
	// other id are discarded.
	captureID     uint64
	captureActive bool
	captureMode   core.ListenMode
	turnConsumed  bool

	wakeExpiryTimer *clock.Timer
	convDelayTimer  *clock.Timer

	subMu       sync.RWMutex
	subscribers []func(core.Event)
}

// NewSession creates the voice session, refusing if one is already
// open. The session starts in IDLE; call StartWakeWordDetection to
// begin listening.
func NewSession(config Config) (*VoiceSession, error) {
	if config.Capture == nil || config.Playback == nil || config.Resolver == nil {
		return nil, errors.New("assistant: capture, playback and resolver are required")
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaultDebounceInterval
	}
	if config.WakeActiveTimeout <= 0 {
		config.WakeActiveTimeout = defaultWakeActiveTimeout
	}
	if config.ConversationDelay <= 0 {
		config.ConversationDelay = defaultConversationDelay
	}

	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil {
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &VoiceSession{
		config:           config,
		clock:            config.Clock,
		logger:           config.Logger.WithModule("session"),
		id:               config.ID,
		ctx:              ctx,
		cancel:           cancel,
		state:            core.StateIdle,
		wakeWordsEnabled: config.WakeWordsEnabled,
	}
	active = s

	s.logger.Info("Voice session created", telemetry.String("session_id", s.id))
	return s, nil
}

// Close tears the session down: playback cancelled, captures stopped,
// timers cleared, singleton slot released. Further calls are no-ops.
func (s *VoiceSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.captureID++
	s.captureActive = false
	s.stopTimersLocked()
	s.state = core.StateIdle
	s.mu.Unlock()

	s.cancel()
	s.config.Capture.Stop()
	s.config.Playback.Cancel()

	activeMu.Lock()
	if active == s {
		active = nil
	}
	activeMu.Unlock()

	s.logger.Info("Voice session closed", telemetry.String("session_id", s.id))
}

// ID returns the session identifier
func (s *VoiceSession) ID() string {
	return s.id
}

// State returns the current orchestrator state
func (s *VoiceSession) State() core.VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WakeWordsEnabled reports the user toggle
func (s *VoiceSession) WakeWordsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wakeWordsEnabled
}

// Err returns the last non-fatal error surfaced on the session
func (s *VoiceSession) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// History returns the conversation log snapshot
func (s *VoiceSession) History() []core.Message {
	return s.config.Resolver.History()
}

// Subscribe registers an upward event listener. Events are delivered
// in transition order.
func (s *VoiceSession) Subscribe(fn func(core.Event)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *VoiceSession) emit(events ...core.Event) {
	s.subMu.RLock()
	subs := make([]func(core.Event), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// StartWakeWordDetection enables wake-word mode and opens the wake
// capture. Refused while a conversation capture owns the microphone.
func (s *VoiceSession) StartWakeWordDetection() error {
	if !s.config.Capture.Supported() {
		s.mu.Lock()
		s.lastError = "speech capture not supported"
		s.mu.Unlock()
		s.emit(core.ErrorEvent{
			Kind:    core.ErrorKindProviderUnsupported,
			Message: "speech capture not supported on this platform",
		})
		return ErrCaptureUnsupported
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == core.StateConversationListening {
		s.mu.Unlock()
		return ErrCaptureBusy
	}
	s.wakeWordsEnabled = true
	s.wakePaused = false
	switch s.state {
	case core.StateWakeListening:
		s.mu.Unlock()
		return nil
	case core.StateWakeActive, core.StateThinking, core.StateSpeaking:
		// A turn is in flight; wake listening resumes when it completes
		s.mu.Unlock()
		return nil
	}
	id, events := s.beginWakeListeningLocked()
	s.mu.Unlock()

	s.emit(events...)
	return s.startCapture(id, core.ListenModeWake)
}

// StopWakeWordDetection disables wake-word mode from any state and
// forces IDLE, clearing timers and the last-wake marker.
func (s *VoiceSession) StopWakeWordDetection() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wakeWordsEnabled = false
	s.wakePaused = false
	s.lastWakeWordAt = time.Time{}
	s.wakeActiveExpiresAt = time.Time{}
	s.stopTimersLocked()
	wasListening := s.captureActive && s.captureMode == core.ListenModeWake
	if wasListening {
		s.captureID++
		s.captureActive = false
	}
	events := s.transitionLocked(core.StateIdle)
	if wasListening {
		events = append(events, core.ListeningEvent{Listening: false, Mode: core.ListenModeWake})
	}
	s.mu.Unlock()

	if wasListening {
		s.config.Capture.Stop()
	}
	s.emit(events...)
}

// SetWakeWordsEnabled flips the user toggle. Enabling starts wake
// listening as soon as the microphone is free; disabling behaves like
// StopWakeWordDetection.
func (s *VoiceSession) SetWakeWordsEnabled(enabled bool) error {
	if !enabled {
		s.StopWakeWordDetection()
		return nil
	}
	err := s.StartWakeWordDetection()
	if err == ErrCaptureBusy {
		// Keep the toggle set; listening resumes once the
		// conversation capture ends.
		s.mu.Lock()
		s.wakeWordsEnabled = true
		s.mu.Unlock()
		return nil
	}
	return err
}

// PauseWakeWordDetection stops the wake capture without disabling the
// feature, freeing the microphone for a manual conversation capture.
func (s *VoiceSession) PauseWakeWordDetection() {
	s.mu.Lock()
	if s.closed || s.wakePaused {
		s.mu.Unlock()
		return
	}
	s.wakePaused = true
	s.stopTimersLocked()
	wasListening := s.captureActive && s.captureMode == core.ListenModeWake
	if wasListening {
		s.captureID++
		s.captureActive = false
	}
	var events []core.Event
	if s.state == core.StateWakeListening || s.state == core.StateWakeActive {
		events = s.transitionLocked(core.StatePaused)
	}
	if wasListening {
		events = append(events, core.ListeningEvent{Listening: false, Mode: core.ListenModeWake})
	}
	s.mu.Unlock()

	if wasListening {
		s.config.Capture.Stop()
	}
	s.emit(events...)
}

// ResumeWakeWordDetection reverses a pause once the conversation
// capture has ended.
func (s *VoiceSession) ResumeWakeWordDetection() {
	s.mu.Lock()
	if s.closed || !s.wakePaused {
		s.mu.Unlock()
		return
	}
	s.wakePaused = false

	// Microphone still owned by a conversation capture, or speaker
	// active: wake listening resumes on the next playback end instead.
	if s.state == core.StateConversationListening || s.state == core.StateThinking || s.state == core.StateSpeaking {
		s.mu.Unlock()
		return
	}

	if !s.wakeWordsEnabled || !s.config.Capture.Supported() {
		events := s.transitionLocked(core.StateIdle)
		s.mu.Unlock()
		s.emit(events...)
		return
	}

	id, events := s.beginWakeListeningLocked()
	s.mu.Unlock()

	s.emit(events...)
	s.startCapture(id, core.ListenModeWake)
}

// StartConversation opens the conversation capture directly (the user
// tapped the microphone). Any in-flight speech is cancelled and wake
// capture is displaced.
func (s *VoiceSession) StartConversation() error {
	if !s.config.Capture.Supported() {
		return ErrCaptureUnsupported
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.stopTimersLocked()
	wasWakeListening := s.captureActive && s.captureMode == core.ListenModeWake
	if wasWakeListening {
		s.captureID++
		s.captureActive = false
	}
	wasSpeaking := s.config.Playback.Speaking()
	id, events := s.beginConversationLocked()
	if wasWakeListening {
		events = append(events, core.ListeningEvent{Listening: false, Mode: core.ListenModeWake})
	}
	if wasSpeaking {
		events = append(events, core.SpeakingEvent{Speaking: false})
	}
	s.mu.Unlock()

	if wasSpeaking {
		s.config.Playback.Cancel()
	}
	if wasWakeListening {
		s.config.Capture.Stop()
	}
	s.emit(events...)
	return s.startCapture(id, core.ListenModeConversation)
}

// StopConversation closes the conversation capture without a turn,
// returning to wake listening when the feature allows it.
func (s *VoiceSession) StopConversation() {
	s.mu.Lock()
	if s.closed || s.state != core.StateConversationListening {
		s.mu.Unlock()
		return
	}
	s.captureID++
	s.captureActive = false
	id, events := s.afterConversationLocked()
	events = append([]core.Event{core.ListeningEvent{Listening: false, Mode: core.ListenModeConversation}}, events...)
	s.mu.Unlock()

	s.config.Capture.Stop()
	s.emit(events...)
	if id != 0 {
		s.startCapture(id, core.ListenModeWake)
	}
}

// beginWakeListeningLocked arms a fresh wake capture generation
func (s *VoiceSession) beginWakeListeningLocked() (uint64, []core.Event) {
	s.captureID++
	s.captureActive = true
	s.captureMode = core.ListenModeWake
	events := s.transitionLocked(core.StateWakeListening)
	events = append(events, core.ListeningEvent{Listening: true, Mode: core.ListenModeWake})
	return s.captureID, events
}

// beginConversationLocked arms a fresh conversation capture generation
func (s *VoiceSession) beginConversationLocked() (uint64, []core.Event) {
	s.captureID++
	s.captureActive = true
	s.captureMode = core.ListenModeConversation
	s.turnConsumed = false
	events := s.transitionLocked(core.StateConversationListening)
	events = append(events, core.ListeningEvent{Listening: true, Mode: core.ListenModeConversation})
	return s.captureID, events
}

// afterConversationLocked decides where to land once conversation
// activity ends: wake listening when enabled and not paused, else
// IDLE. Returns a non-zero capture id when wake capture should start.
func (s *VoiceSession) afterConversationLocked() (uint64, []core.Event) {
	if s.wakeWordsEnabled && !s.wakePaused && s.config.Capture.Supported() {
		return s.beginWakeListeningLocked()
	}
	if s.wakePaused {
		return 0, s.transitionLocked(core.StatePaused)
	}
	return 0, s.transitionLocked(core.StateIdle)
}

// transitionLocked changes state and returns the event to emit
func (s *VoiceSession) transitionLocked(next core.VoiceState) []core.Event {
	if s.state == next {
		return nil
	}
	s.logger.Debug("State transition",
		telemetry.String("from", string(s.state)),
		telemetry.String("to", string(next)))
	s.state = next
	return []core.Event{core.StateEvent{State: next}}
}

// startCapture opens the capture stream for a generation. A failure
// rolls the session back and surfaces a capture error.
func (s *VoiceSession) startCapture(id uint64, mode core.ListenMode) error {
	err := s.config.Capture.Start(s.ctx, core.CaptureEvents{
		OnResult: func(result core.CaptureResult) {
			s.handleTranscript(id, mode, result)
		},
		OnEnd: func() {
			s.handleCaptureEnd(id, mode)
		},
		OnError: func(code string) {
			s.handleCaptureError(id, mode, code)
		},
	})
	if err == nil {
		return nil
	}

	s.logger.Error("Failed to start capture", telemetry.Err(err), telemetry.String("mode", string(mode)))
	s.mu.Lock()
	if id != s.captureID {
		// A newer capture replaced this one; its failure is moot
		s.mu.Unlock()
		return err
	}
	s.captureID++
	s.captureActive = false
	s.lastError = err.Error()
	events := s.transitionLocked(core.StateIdle)
	s.mu.Unlock()

	events = append(events, core.ErrorEvent{
		Kind:    core.ErrorKindCapture,
		Message: err.Error(),
	})
	s.emit(events...)
	return err
}

// handleTranscript routes capture results by generation and mode.
// Stale generations are discarded without side effects.
func (s *VoiceSession) handleTranscript(id uint64, mode core.ListenMode, result core.CaptureResult) {
	s.mu.Lock()
	if s.closed || id != s.captureID {
		s.mu.Unlock()
		return
	}

	events := []core.Event{core.TranscriptEvent{
		Text:       result.Text,
		IsFinal:    result.IsFinal,
		Confidence: result.Confidence,
		Mode:       mode,
	}}

	if mode == core.ListenModeWake {
		s.handleWakeTranscriptLocked(result, &events)
		return // handleWakeTranscriptLocked unlocks and emits
	}

	if !result.IsFinal || s.turnConsumed {
		s.mu.Unlock()
		s.emit(events...)
		return
	}

	// First final transcript of the turn: consume it, release the
	// microphone, and resolve the intent off the lock.
	s.turnConsumed = true
	s.captureID++
	s.captureActive = false
	s.lastError = ""
	events = append(events, core.ListeningEvent{Listening: false, Mode: core.ListenModeConversation})
	events = append(events, s.transitionLocked(core.StateThinking)...)

	userMsg := core.Message{
		ID:        uuid.NewString(),
		Role:      core.RoleUser,
		Content:   result.Text,
		Timestamp: s.clock.Now(),
	}
	events = append(events, core.MessageEvent{Message: userMsg})
	s.mu.Unlock()

	s.config.Capture.Stop()
	s.config.Resolver.AddMessage(userMsg)
	s.emit(events...)

	go s.think(result.Text)
}

// handleWakeTranscriptLocked applies wake matching and debounce. Called
// with the lock held; releases it and emits.
func (s *VoiceSession) handleWakeTranscriptLocked(result core.CaptureResult, events *[]core.Event) {
	if !result.IsFinal {
		s.mu.Unlock()
		s.emit(*events...)
		return
	}

	phrase, ok := matchWakePhrase(result.Text, s.config.WakePhrases)
	if !ok {
		s.mu.Unlock()
		s.emit(*events...)
		return
	}

	now := s.clock.Now()
	if !s.lastWakeWordAt.IsZero() && now.Sub(s.lastWakeWordAt) < s.config.DebounceInterval {
		s.logger.Debug("Wake word debounced", telemetry.String("phrase", phrase))
		s.mu.Unlock()
		s.emit(*events...)
		return
	}

	s.logger.Info("Wake word detected", telemetry.String("phrase", phrase), telemetry.String("transcript", result.Text))
	s.lastWakeWordAt = now
	s.wakeActiveExpiresAt = now.Add(s.config.WakeActiveTimeout)
	s.captureID++
	s.captureActive = false
	s.lastError = ""
	s.armWakeExpiryLocked()

	*events = append(*events, core.WakeEvent{Phrase: phrase, Transcript: result.Text})
	*events = append(*events, core.ListeningEvent{Listening: false, Mode: core.ListenModeWake})
	*events = append(*events, s.transitionLocked(core.StateWakeActive)...)

	greeting := s.config.Resolver.WakeGreeting()
	assistantMsg := core.Message{
		ID:        uuid.NewString(),
		Role:      core.RoleAssistant,
		Content:   greeting.Text,
		Emotion:   greeting.Emotion,
		Timestamp: now,
	}
	*events = append(*events, core.MessageEvent{Message: assistantMsg})
	s.mu.Unlock()

	s.config.Capture.Stop()
	s.config.Resolver.AddMessage(assistantMsg)
	s.emit(*events...)
	s.speakGreeting(greeting)
}

// speakGreeting plays the wake response and arms the wake-to-
// conversation delay once the utterance begins, so playback gets a
// head start before the microphone reopens.
func (s *VoiceSession) speakGreeting(greeting core.IntentResponse) {
	err := s.config.Playback.Speak(s.ctx, greeting.Text, greeting.Voice, core.PlaybackEvents{
		OnStart: func() {
			s.emit(core.SpeakingEvent{Speaking: true})
			s.armConversationDelay()
		},
		OnEnd: func() {
			s.emit(core.SpeakingEvent{Speaking: false})
		},
		OnError: func(code string) {
			s.recordPlaybackError(code)
			// Still open the conversation: the wake was accepted
			s.armConversationDelay()
		},
	})
	if err != nil {
		s.logger.Error("Failed to speak wake greeting", telemetry.Err(err))
		s.recordPlaybackError(err.Error())
		s.armConversationDelay()
	}
}

// think resolves the consumed turn and speaks the response
func (s *VoiceSession) think(utterance string) {
	response := s.config.Resolver.Resolve(s.ctx, utterance)

	s.mu.Lock()
	if s.closed || s.state != core.StateThinking {
		s.mu.Unlock()
		return
	}

	text := response.Text
	if response.FollowUp != "" {
		text = text + " " + response.FollowUp
	}

	assistantMsg := core.Message{
		ID:        uuid.NewString(),
		Role:      core.RoleAssistant,
		Content:   text,
		Emotion:   response.Emotion,
		Actions:   response.Actions,
		Timestamp: s.clock.Now(),
	}

	events := s.transitionLocked(core.StateSpeaking)
	events = append(events, core.MessageEvent{Message: assistantMsg})
	if len(response.Actions) > 0 {
		events = append(events, core.ActionEvent{Actions: response.Actions})
	}
	events = append(events, core.SpeakingEvent{Speaking: true})
	s.mu.Unlock()

	s.config.Resolver.AddMessage(assistantMsg)
	s.emit(events...)

	err := s.config.Playback.Speak(s.ctx, text, response.Voice, core.PlaybackEvents{
		OnEnd: func() {
			s.handlePlaybackEnd()
		},
		OnPause: func() {
			s.emit(core.SpeakingEvent{Speaking: true, Paused: true})
		},
		OnResume: func() {
			s.emit(core.SpeakingEvent{Speaking: true})
		},
		OnError: func(code string) {
			s.recordPlaybackError(code)
			s.handlePlaybackEnd()
		},
	})
	if err != nil {
		s.logger.Error("Failed to speak response", telemetry.Err(err))
		s.recordPlaybackError(err.Error())
		s.handlePlaybackEnd()
	}
}

// handlePlaybackEnd resumes wake listening after the response, or goes
// idle when wake-word mode is off.
func (s *VoiceSession) handlePlaybackEnd() {
	s.mu.Lock()
	if s.closed || s.state != core.StateSpeaking {
		s.mu.Unlock()
		return
	}

	events := []core.Event{core.SpeakingEvent{Speaking: false}}
	var id uint64
	if s.wakeWordsEnabled && !s.wakePaused && s.config.Capture.Supported() {
		var wakeEvents []core.Event
		id, wakeEvents = s.beginWakeListeningLocked()
		events = append(events, wakeEvents...)
	} else if s.wakePaused {
		events = append(events, s.transitionLocked(core.StatePaused)...)
	} else {
		events = append(events, s.transitionLocked(core.StateIdle)...)
	}
	s.mu.Unlock()

	s.emit(events...)
	if id != 0 {
		s.startCapture(id, core.ListenModeWake)
	}
}

// handleCaptureError surfaces a transient capture failure. Wake capture
// restarts automatically; conversation capture waits for manual retry.
func (s *VoiceSession) handleCaptureError(id uint64, mode core.ListenMode, code string) {
	s.mu.Lock()
	if s.closed || id != s.captureID {
		s.mu.Unlock()
		return
	}
	s.captureID++
	s.captureActive = false
	s.lastError = code
	s.logger.Warn("Capture error", telemetry.String("code", code), telemetry.String("mode", string(mode)))

	events := []core.Event{
		core.ErrorEvent{Kind: core.ErrorKindCapture, Code: code, Message: "speech capture failed: " + code},
		core.ListeningEvent{Listening: false, Mode: mode},
	}

	var restartID uint64
	if mode == core.ListenModeWake {
		if s.wakeWordsEnabled && !s.wakePaused {
			var wakeEvents []core.Event
			restartID, wakeEvents = s.beginWakeListeningLocked()
			events = append(events, wakeEvents...)
		} else {
			events = append(events, s.transitionLocked(core.StateIdle)...)
		}
	} else {
		var afterEvents []core.Event
		restartID, afterEvents = s.afterConversationLocked()
		events = append(events, afterEvents...)
	}
	s.mu.Unlock()

	s.emit(events...)
	if restartID != 0 {
		s.startCapture(restartID, core.ListenModeWake)
	}
}

// handleCaptureEnd covers a capture stream ending on its own, without
// an error and without the orchestrator stopping it.
func (s *VoiceSession) handleCaptureEnd(id uint64, mode core.ListenMode) {
	s.mu.Lock()
	if s.closed || id != s.captureID {
		s.mu.Unlock()
		return
	}
	s.captureID++
	s.captureActive = false

	events := []core.Event{core.ListeningEvent{Listening: false, Mode: mode}}
	var restartID uint64
	if mode == core.ListenModeWake {
		if s.wakeWordsEnabled && !s.wakePaused {
			var wakeEvents []core.Event
			restartID, wakeEvents = s.beginWakeListeningLocked()
			events = append(events, wakeEvents...)
		} else {
			events = append(events, s.transitionLocked(core.StateIdle)...)
		}
	} else {
		var afterEvents []core.Event
		restartID, afterEvents = s.afterConversationLocked()
		events = append(events, afterEvents...)
	}
	s.mu.Unlock()

	s.emit(events...)
	if restartID != 0 {
		s.startCapture(restartID, core.ListenModeWake)
	}
}

func (s *VoiceSession) recordPlaybackError(code string) {
	s.mu.Lock()
	s.lastError = code
	s.mu.Unlock()
	s.emit(core.ErrorEvent{
		Kind:    core.ErrorKindPlayback,
		Code:    code,
		Message: "speech playback failed: " + code,
	})
}

// armWakeExpiryLocked re-arms the WAKE_ACTIVE expiry timer
func (s *VoiceSession) armWakeExpiryLocked() {
	if s.wakeExpiryTimer != nil {
		s.wakeExpiryTimer.Stop()
	}
	s.wakeExpiryTimer = s.clock.AfterFunc(s.config.WakeActiveTimeout, s.expireWakeActive)
}

// expireWakeActive reverts WAKE_ACTIVE to WAKE_LISTENING after 30s of
// no conversation start, clearing the last-wake marker.
func (s *VoiceSession) expireWakeActive() {
	s.mu.Lock()
	if s.closed || s.state != core.StateWakeActive {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Wake active expired without conversation")
	s.lastWakeWordAt = time.Time{}
	s.wakeActiveExpiresAt = time.Time{}
	id, events := s.beginWakeListeningLocked()
	s.mu.Unlock()

	s.emit(events...)
	s.startCapture(id, core.ListenModeWake)
}

// armConversationDelay schedules the wake-to-conversation handoff
func (s *VoiceSession) armConversationDelay() {
	s.mu.Lock()
	if s.closed || s.state != core.StateWakeActive {
		s.mu.Unlock()
		return
	}
	if s.convDelayTimer != nil {
		s.convDelayTimer.Stop()
	}
	s.convDelayTimer = s.clock.AfterFunc(s.config.ConversationDelay, s.openConversation)
	s.mu.Unlock()
}

// openConversation starts the conversation capture after the wake
// greeting's head start.
func (s *VoiceSession) openConversation() {
	s.mu.Lock()
	if s.closed || s.state != core.StateWakeActive {
		s.mu.Unlock()
		return
	}
	if s.wakeExpiryTimer != nil {
		s.wakeExpiryTimer.Stop()
		s.wakeExpiryTimer = nil
	}
	id, events := s.beginConversationLocked()
	s.mu.Unlock()

	s.emit(events...)
	s.startCapture(id, core.ListenModeConversation)
}

func (s *VoiceSession) stopTimersLocked() {
	if s.wakeExpiryTimer != nil {
		s.wakeExpiryTimer.Stop()
		s.wakeExpiryTimer = nil
	}
	if s.convDelayTimer != nil {
		s.convDelayTimer.Stop()
		s.convDelayTimer = nil
	}
}

// matchWakePhrase reports the first configured phrase found in the
// transcript. Matching is a case/punctuation-insensitive substring
// check, not an acoustic model, so a phrase that is itself a common
// word will false-positive.
func matchWakePhrase(transcript string, phrases []string) (string, bool) {
	normalized := normalizeForMatch(transcript)
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(normalized, normalizeForMatch(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// normalizeForMatch lowercases and strips everything but letters,
// digits and single spaces.
func normalizeForMatch(text string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r >= 0x80: // keep non-ASCII letters as-is
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
