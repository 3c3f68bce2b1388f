package protocol

// OutputMessageType defines session-to-UI message types
type OutputMessageType string

const (
	// Wake word matched in the live transcript
	OutputWakeDetected OutputMessageType = "wake.detected"

	// Live transcript chunk (interim or final)
	OutputTranscript OutputMessageType = "transcript"

	// Orchestrator state transition
	OutputStateChanged OutputMessageType = "state.changed"

	// Capture activity changed
	OutputListeningChanged OutputMessageType = "listening.changed"

	// Playback activity changed
	OutputSpeakingChanged OutputMessageType = "speaking.changed"

	// Message appended to the conversation log
	OutputMessageAppended OutputMessageType = "message.appended"

	// Side-effect hints for the UI to execute
	OutputActionRequest OutputMessageType = "action.request"

	// Non-fatal session error
	OutputError OutputMessageType = "error"
)

// OutputMessage represents a message to the UI
type OutputMessage struct {
	Type      OutputMessageType `json:"type"`
	ID        string            `json:"id"`        // Server-generated message ID
	SessionID string            `json:"sessionId"` // Session identifier
	Payload   any               `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

// WakeDetectedPayload for wake.detected
type WakeDetectedPayload struct {
	Phrase     string `json:"phrase"`
	Transcript string `json:"transcript"`
}

// TranscriptPayload for transcript
type TranscriptPayload struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
	Mode       string  `json:"mode"`
}

// StateChangedPayload for state.changed
type StateChangedPayload struct {
	State string `json:"state"`
}

// ListeningChangedPayload for listening.changed
type ListeningChangedPayload struct {
	Listening bool   `json:"listening"`
	Mode      string `json:"mode"`
}

// SpeakingChangedPayload for speaking.changed
type SpeakingChangedPayload struct {
	Speaking bool `json:"speaking"`
	Paused   bool `json:"paused"`
}

// MessageAppendedPayload for message.appended
type MessageAppendedPayload struct {
	MessageID string   `json:"messageId"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Emotion   string   `json:"emotion,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// ActionRequestPayload for action.request
type ActionRequestPayload struct {
	Actions []string `json:"actions"`
}

// ErrorPayload for error
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
