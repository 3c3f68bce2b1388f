package intent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/creastat/infra/telemetry"
	"pgregory.net/rapid"

	"github.com/creastat/assistant/core"
)

func testLogger() telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

func newTestEngine(completion CompletionService) *Engine {
	return NewEngine(Config{
		Completion: completion,
		Rand:       rand.New(rand.NewSource(1)),
		Logger:     testLogger(),
	})
}

// stubCompletion implements CompletionService with function fields
type stubCompletion struct {
	completeFn  func(ctx context.Context, messages []core.Message) (string, error)
	transformFn func(op, payload string) (string, error)
}

func (s *stubCompletion) Complete(ctx context.Context, messages []core.Message) (string, error) {
	if s.completeFn == nil {
		return "", errors.New("not implemented")
	}
	return s.completeFn(ctx, messages)
}

func (s *stubCompletion) CleanGrammar(ctx context.Context, text string) (string, error) {
	return s.transformFn("clean", text)
}

func (s *stubCompletion) Rephrase(ctx context.Context, text string) (string, error) {
	return s.transformFn("rephrase", text)
}

func (s *stubCompletion) Ask(ctx context.Context, question string) (string, error) {
	return s.transformFn("ask", question)
}

func (s *stubCompletion) Formula(ctx context.Context, description string) (string, error) {
	return s.transformFn("formula", description)
}

func inPool(pool []string, text string) bool {
	for _, entry := range pool {
		if entry == text {
			return true
		}
	}
	return false
}

func TestResolveDomainIntents(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		pool      []string
		actions   []string
		emotion   string
	}{
		{"balance question", "what's my balance?", balanceResponses, []string{"load_balance"}, "excited"},
		{"coins keyword", "how many coins do I have", balanceResponses, []string{"load_balance"}, "excited"},
		{"game request", "let's play a game", gamesResponses, []string{"show_games"}, "playful"},
		{"rewards", "show me the rewards", rewardsResponses, []string{"load_rewards"}, "excited"},
		{"redeem keyword", "I want to redeem", rewardsResponses, []string{"load_rewards"}, "excited"},
		{"referrals", "invite my friends", referralsResponses, []string{"load_referrals"}, "encouraging"},
		{"help", "help me out", helpResponses, nil, "helpful"},
		{"stats", "show my stats", statsResponses, []string{"load_stats"}, "curious"},
		{"settings", "open my settings", manageResponses, []string{"open_settings"}, "helpful"},
		{"greeting", "hello there", greetingResponses, nil, "excited"},
		{"thanks", "thanks a lot", thanksResponses, nil, "encouraging"},
		{"goodbye", "bye now", goodbyeResponses, nil, "encouraging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(nil)
			resp := engine.Resolve(context.Background(), tt.utterance)

			if !inPool(tt.pool, resp.Text) {
				t.Errorf("Response %q not in expected pool", resp.Text)
			}
			if resp.Emotion != tt.emotion {
				t.Errorf("Expected emotion %q, got %q", tt.emotion, resp.Emotion)
			}
			if len(resp.Actions) != len(tt.actions) {
				t.Fatalf("Expected actions %v, got %v", tt.actions, resp.Actions)
			}
			for i, action := range tt.actions {
				if resp.Actions[i] != action {
					t.Errorf("Expected action %q, got %q", action, resp.Actions[i])
				}
			}
		})
	}
}

func TestResolveWordBoundaries(t *testing.T) {
	engine := newTestEngine(nil)

	// "hi" must not fire inside "this"
	resp := engine.Resolve(context.Background(), "this is nothing recognizable")
	if !inPool(fallbackResponses, resp.Text) {
		t.Errorf("Expected fallback, got %q", resp.Text)
	}
}

func TestResolveGameVoiceSettings(t *testing.T) {
	engine := newTestEngine(nil)
	resp := engine.Resolve(context.Background(), "start a game")

	if resp.Voice == nil {
		t.Fatal("Expected voice settings on game response")
	}
	if resp.Voice.Rate != 1.1 || resp.Voice.Pitch != 1.1 {
		t.Errorf("Unexpected voice settings: %+v", resp.Voice)
	}
}

func TestResolveTransformCommands(t *testing.T) {
	var gotOp, gotPayload string
	completion := &stubCompletion{
		transformFn: func(op, payload string) (string, error) {
			gotOp = op
			gotPayload = payload
			return "transformed", nil
		},
	}
	engine := newTestEngine(completion)

	tests := []struct {
		name      string
		utterance string
		op        string
		payload   string
	}{
		{"clean grammar", "Clean grammar: me goed to store", "clean", "me goed to store"},
		{"fix grammar alias", "please fix grammar in them words", "clean", "in them words"},
		{"rephrase", "rephrase this you are great", "rephrase", "you are great"},
		{"question", "answer this question what is the capital of France", "ask", "what is the capital of France"},
		{"formula", "create a formula, sum of column A", "formula", "sum of column A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := engine.Resolve(context.Background(), tt.utterance)

			if resp.Text != "transformed" {
				t.Errorf("Expected remote result, got %q", resp.Text)
			}
			if gotOp != tt.op {
				t.Errorf("Expected op %q, got %q", tt.op, gotOp)
			}
			if gotPayload != tt.payload {
				t.Errorf("Expected payload %q, got %q", tt.payload, gotPayload)
			}
		})
	}
}

func TestResolveTransformEmptyPayload(t *testing.T) {
	engine := newTestEngine(&stubCompletion{})
	resp := engine.Resolve(context.Background(), "clean grammar")

	if resp.Text != "What text should I clean up?" {
		t.Errorf("Expected payload prompt, got %q", resp.Text)
	}
	if resp.Emotion != "curious" {
		t.Errorf("Expected curious emotion, got %q", resp.Emotion)
	}
}

func TestResolveTransformFailure(t *testing.T) {
	completion := &stubCompletion{
		transformFn: func(op, payload string) (string, error) {
			return "", errors.New("service down")
		},
	}
	engine := newTestEngine(completion)
	resp := engine.Resolve(context.Background(), "rephrase this hello world")

	if !inPool(apologyResponses, resp.Text) {
		t.Errorf("Expected apology, got %q", resp.Text)
	}
}

func TestResolveTransformWithoutCompletion(t *testing.T) {
	engine := newTestEngine(nil)
	resp := engine.Resolve(context.Background(), "rephrase this hello world")

	if !inPool(apologyResponses, resp.Text) {
		t.Errorf("Expected apology, got %q", resp.Text)
	}
}

func TestResolveFallbackEscalation(t *testing.T) {
	var gotMessages []core.Message
	completion := &stubCompletion{
		completeFn: func(ctx context.Context, messages []core.Message) (string, error) {
			gotMessages = messages
			return "42", nil
		},
	}
	engine := newTestEngine(completion)
	engine.AddMessage(core.Message{Role: core.RoleUser, Content: "earlier turn"})

	resp := engine.Resolve(context.Background(), "flibbertigibbet")

	if resp.Text != "42" {
		t.Errorf("Expected escalated completion, got %q", resp.Text)
	}
	if len(gotMessages) != 1 || gotMessages[0].Content != "earlier turn" {
		t.Errorf("Expected history context, got %+v", gotMessages)
	}
}

func TestResolveFallbackWithoutCompletion(t *testing.T) {
	engine := newTestEngine(nil)
	resp := engine.Resolve(context.Background(), "flibbertigibbet")

	if !inPool(fallbackResponses, resp.Text) {
		t.Errorf("Expected fallback sentinel, got %q", resp.Text)
	}
}

func TestResolveFallbackEscalationFailure(t *testing.T) {
	completion := &stubCompletion{
		completeFn: func(ctx context.Context, messages []core.Message) (string, error) {
			return "", errors.New("timeout")
		},
	}
	engine := newTestEngine(completion)
	resp := engine.Resolve(context.Background(), "flibbertigibbet")

	if !inPool(apologyResponses, resp.Text) {
		t.Errorf("Expected apology on escalation failure, got %q", resp.Text)
	}
}

func TestResolveFallbackEmptyCompletion(t *testing.T) {
	completion := &stubCompletion{
		completeFn: func(ctx context.Context, messages []core.Message) (string, error) {
			return "   ", nil
		},
	}
	engine := newTestEngine(completion)
	resp := engine.Resolve(context.Background(), "flibbertigibbet")

	if !inPool(fallbackResponses, resp.Text) {
		t.Errorf("Expected sentinel for blank completion, got %q", resp.Text)
	}
}

func TestWakeGreeting(t *testing.T) {
	engine := newTestEngine(nil)

	for i := 0; i < 20; i++ {
		greeting := engine.WakeGreeting()
		if !inPool(WakeResponses, greeting.Text) {
			t.Fatalf("Greeting %q not in wake pool", greeting.Text)
		}
		if greeting.Emotion != "excited" {
			t.Fatalf("Expected excited greeting, got %q", greeting.Emotion)
		}
	}
}

func TestPersonalityTracking(t *testing.T) {
	tests := []struct {
		utterance string
		mood      core.Mood
		energy    core.Energy
	}{
		{"wow that's awesome", core.MoodExcited, core.EnergyHigh},
		{"let's play something fun", core.MoodPlayful, core.EnergyHigh},
		{"I'm confused and stuck", core.MoodHelpful, core.EnergyMedium},
		{"I'm tired today", core.MoodEncouraging, core.EnergyLow},
		{"I wonder how that works", core.MoodCurious, core.EnergyMedium},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			engine := newTestEngine(nil)
			engine.Resolve(context.Background(), tt.utterance)

			p := engine.Personality()
			if p.Mood != tt.mood || p.Energy != tt.energy {
				t.Errorf("Expected %s/%s, got %s/%s", tt.mood, tt.energy, p.Mood, p.Energy)
			}
		})
	}
}

func TestPersonalityDefault(t *testing.T) {
	engine := newTestEngine(nil)
	p := engine.Personality()
	if p.Mood != core.MoodHelpful || p.Energy != core.EnergyMedium {
		t.Errorf("Unexpected initial personality: %+v", p)
	}
}

// For any number of appended messages, the engine SHALL retain at most
// HistoryLimit entries, keeping the most recent, and SHALL send at most
// ContextWindow of them to the completion service.
func TestPropertyHistoryRetention(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(rt, "limit")
		window := rapid.IntRange(1, 10).Draw(rt, "window")
		total := rapid.IntRange(0, 60).Draw(rt, "total")

		var gotContext []core.Message
		completion := &stubCompletion{
			completeFn: func(ctx context.Context, messages []core.Message) (string, error) {
				gotContext = messages
				return "ok", nil
			},
		}

		engine := NewEngine(Config{
			Completion:    completion,
			HistoryLimit:  limit,
			ContextWindow: window,
			Rand:          rand.New(rand.NewSource(1)),
			Logger:        testLogger(),
		})

		for i := 0; i < total; i++ {
			engine.AddMessage(core.Message{
				ID:        fmt.Sprintf("msg-%d", i),
				Role:      core.RoleUser,
				Content:   fmt.Sprintf("turn %d", i),
				Timestamp: time.Now(),
			})
		}

		history := engine.History()
		if len(history) > limit {
			rt.Fatalf("History length %d exceeds limit %d", len(history), limit)
		}
		if total >= limit && len(history) > 0 {
			wantLast := fmt.Sprintf("turn %d", total-1)
			if history[len(history)-1].Content != wantLast {
				rt.Fatalf("Expected newest message %q, got %q", wantLast, history[len(history)-1].Content)
			}
		}

		engine.Resolve(context.Background(), "flibbertigibbet")
		if len(gotContext) > window {
			rt.Fatalf("Escalation context %d exceeds window %d", len(gotContext), window)
		}
	})
}
