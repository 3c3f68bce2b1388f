package assistant

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/assistant/core"
	"github.com/creastat/assistant/intent"
)

// Full round trip through the real intent engine: wake phrase, greeting,
// conversation turn, classified response, resume wake listening.
func TestIntegrationConversationRoundTrip(t *testing.T) {
	capture := &fakeCapture{supported: true}
	playback := &fakePlayback{fireStart: true}
	engine := intent.NewEngine(intent.Config{
		Rand:   rand.New(rand.NewSource(7)),
		Logger: testLogger(),
	})
	clk := clock.NewMock()

	session, err := NewSession(Config{
		Capture:          capture,
		Playback:         playback,
		Resolver:         engine,
		WakePhrases:      []string{"hey buddy"},
		WakeWordsEnabled: true,
		Clock:            clk,
		Logger:           testLogger(),
	})
	require.NoError(t, err)
	defer session.Close()

	var actionsMu sync.Mutex
	var actions []string
	session.Subscribe(func(ev core.Event) {
		if action, ok := ev.(core.ActionEvent); ok {
			actionsMu.Lock()
			actions = append(actions, action.Actions...)
			actionsMu.Unlock()
		}
	})

	require.NoError(t, session.StartWakeWordDetection())
	assert.Equal(t, core.StateWakeListening, session.State())

	capture.emitFinal("okay hey buddy are you there")
	assert.Equal(t, core.StateWakeActive, session.State())

	greeting := playback.spokenTexts()
	require.Len(t, greeting, 1)
	assert.Contains(t, intent.WakeResponses, greeting[0])

	clk.Add(1500 * time.Millisecond)
	assert.Equal(t, core.StateConversationListening, session.State())

	capture.emitFinal("what's my balance")
	waitForState(t, session, core.StateSpeaking)

	actionsMu.Lock()
	assert.Contains(t, actions, "load_balance")
	actionsMu.Unlock()
	assert.False(t, capture.isActive(), "capture must be released while speaking")

	history := session.History()
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleAssistant, history[0].Role)
	assert.Equal(t, core.RoleUser, history[1].Role)
	assert.Equal(t, "what's my balance", history[1].Content)
	assert.Equal(t, core.RoleAssistant, history[2].Role)

	playback.finish()
	assert.Equal(t, core.StateWakeListening, session.State())
	assert.True(t, capture.isActive())
}
