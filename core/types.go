package core

import "time"

// VoiceState identifies the orchestrator's current audio mode
type VoiceState string

const (
	StateIdle                  VoiceState = "idle"
	StateWakeListening         VoiceState = "wake_listening"
	StateWakeActive            VoiceState = "wake_active"
	StateConversationListening VoiceState = "conversation_listening"
	StateThinking              VoiceState = "thinking"
	StateSpeaking              VoiceState = "speaking"
	StatePaused                VoiceState = "paused"
)

// ListenMode distinguishes which capture purpose is active
type ListenMode string

const (
	ListenModeWake         ListenMode = "wake"
	ListenModeConversation ListenMode = "conversation"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mood is the assistant's current disposition
type Mood string

const (
	MoodExcited     Mood = "excited"
	MoodHelpful     Mood = "helpful"
	MoodPlayful     Mood = "playful"
	MoodEncouraging Mood = "encouraging"
	MoodCurious     Mood = "curious"
)

// Energy is the assistant's current energy level
type Energy string

const (
	EnergyHigh   Energy = "high"
	EnergyMedium Energy = "medium"
	EnergyLow    Energy = "low"
)

// Personality is the assistant's mutable mood/energy state.
// It resets with the session and is never persisted.
type Personality struct {
	Mood   Mood
	Energy Energy
}

// ErrorKind categorizes session-level errors
type ErrorKind string

const (
	// ErrorKindProviderUnsupported means the capability is missing on
	// this platform; the feature is disabled, the session continues.
	ErrorKindProviderUnsupported ErrorKind = "provider_unsupported"

	// ErrorKindCapture is a transient speech-to-text failure
	ErrorKindCapture ErrorKind = "capture"

	// ErrorKindPlayback is a transient text-to-speech failure
	ErrorKindPlayback ErrorKind = "playback"

	// ErrorKindCompletion is a remote completion service failure
	ErrorKindCompletion ErrorKind = "completion"
)

// Message is one turn of conversation
type Message struct {
	ID        string
	Role      Role
	Content   string
	Emotion   string
	Actions   []string
	Timestamp time.Time
}

// VoiceSettings tunes playback of a single utterance
type VoiceSettings struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// IntentResponse is the intent engine's output contract
type IntentResponse struct {
	Text     string
	Emotion  string
	Actions  []string
	FollowUp string
	Voice    *VoiceSettings
}
