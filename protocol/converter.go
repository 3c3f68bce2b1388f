package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/creastat/assistant/core"
)

// EventToMessage converts a session event to a UI message.
// Returns nil for event types with no UI representation.
func EventToMessage(event core.Event, sessionID string) *OutputMessage {
	msg := &OutputMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}

	switch e := event.(type) {
	case core.WakeEvent:
		msg.Type = OutputWakeDetected
		msg.Payload = WakeDetectedPayload{
			Phrase:     e.Phrase,
			Transcript: e.Transcript,
		}

	case core.TranscriptEvent:
		msg.Type = OutputTranscript
		msg.Payload = TranscriptPayload{
			Text:       e.Text,
			IsFinal:    e.IsFinal,
			Confidence: e.Confidence,
			Mode:       string(e.Mode),
		}

	case core.StateEvent:
		msg.Type = OutputStateChanged
		msg.Payload = StateChangedPayload{
			State: string(e.State),
		}

	case core.ListeningEvent:
		msg.Type = OutputListeningChanged
		msg.Payload = ListeningChangedPayload{
			Listening: e.Listening,
			Mode:      string(e.Mode),
		}

	case core.SpeakingEvent:
		msg.Type = OutputSpeakingChanged
		msg.Payload = SpeakingChangedPayload{
			Speaking: e.Speaking,
			Paused:   e.Paused,
		}

	case core.MessageEvent:
		msg.Type = OutputMessageAppended
		msg.Payload = MessageAppendedPayload{
			MessageID: e.Message.ID,
			Role:      string(e.Message.Role),
			Content:   e.Message.Content,
			Emotion:   e.Message.Emotion,
			Actions:   e.Message.Actions,
			Timestamp: e.Message.Timestamp.UnixMilli(),
		}

	case core.ActionEvent:
		msg.Type = OutputActionRequest
		msg.Payload = ActionRequestPayload{
			Actions: e.Actions,
		}

	case core.ErrorEvent:
		msg.Type = OutputError
		msg.Payload = ErrorPayload{
			Kind:    string(e.Kind),
			Code:    e.Code,
			Message: e.Message,
		}

	default:
		return nil
	}

	return msg
}
