package core

// EventType categorizes session events
type EventType string

const (
	EventTypeTranscript EventType = "transcript"
	EventTypeWake       EventType = "wake"
	EventTypeState      EventType = "state"
	EventTypeListening  EventType = "listening"
	EventTypeSpeaking   EventType = "speaking"
	EventTypeMessage    EventType = "message"
	EventTypeAction     EventType = "action"
	EventTypeError      EventType = "error"
)

// Event represents any session event delivered to subscribers
type Event interface {
	EventType() EventType
}

// TranscriptEvent carries a live speech-to-text result.
// Interim transcripts update a "listening" display only; final ones
// drive state transitions.
type TranscriptEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Mode       ListenMode
}

func (e TranscriptEvent) EventType() EventType {
	return EventTypeTranscript
}

// WakeEvent signals that a wake phrase was matched in a final transcript
type WakeEvent struct {
	Phrase     string
	Transcript string
}

func (e WakeEvent) EventType() EventType {
	return EventTypeWake
}

// StateEvent signals an orchestrator state transition
type StateEvent struct {
	State VoiceState
}

func (e StateEvent) EventType() EventType {
	return EventTypeState
}

// ListeningEvent signals a change in capture activity
type ListeningEvent struct {
	Listening bool
	Mode      ListenMode
}

func (e ListeningEvent) EventType() EventType {
	return EventTypeListening
}

// SpeakingEvent signals a change in playback activity
type SpeakingEvent struct {
	Speaking bool
	Paused   bool
}

func (e SpeakingEvent) EventType() EventType {
	return EventTypeSpeaking
}

// MessageEvent carries a message appended to the conversation log
type MessageEvent struct {
	Message Message
}

func (e MessageEvent) EventType() EventType {
	return EventTypeMessage
}

// ActionEvent carries side-effect hints for the UI layer to execute.
// The core only names the action; it performs no I/O for it.
type ActionEvent struct {
	Actions []string
}

func (e ActionEvent) EventType() EventType {
	return EventTypeAction
}

// ErrorEvent surfaces a non-fatal session error
type ErrorEvent struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e ErrorEvent) EventType() EventType {
	return EventTypeError
}
