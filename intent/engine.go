// Package intent maps user utterances to structured responses. The
// classifier is ordered (some keyword sets overlap, so first match
// wins) and falls back to the remote completion service for anything
// it cannot categorize locally.
package intent

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/creastat/infra/telemetry"

	"github.com/creastat/assistant/core"
)

// CompletionService is the remote completion contract the engine
// escalates to. All methods may fail; the engine degrades to apology
// text rather than propagating errors.
type CompletionService interface {
	Complete(ctx context.Context, messages []core.Message) (string, error)
	CleanGrammar(ctx context.Context, text string) (string, error)
	Rephrase(ctx context.Context, text string) (string, error)
	Ask(ctx context.Context, question string) (string, error)
	Formula(ctx context.Context, description string) (string, error)
}

// Config holds intent engine configuration
type Config struct {
	// Completion is optional; without it the fallback branch keeps its
	// sentinel text and transform commands apologize.
	Completion CompletionService

	// HistoryLimit bounds the retained message log (default 50)
	HistoryLimit int

	// ContextWindow caps the history sent to the completion service
	// (default 10)
	ContextWindow int

	// Rand makes template selection deterministic in tests
	Rand *rand.Rand

	Logger telemetry.Logger
}

// Engine resolves utterances and tracks personality and history
type Engine struct {
	config Config

	mu          sync.Mutex
	personality core.Personality
	history     []core.Message
}

// NewEngine creates an intent engine
func NewEngine(config Config) *Engine {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.ContextWindow <= 0 {
		config.ContextWindow = 10
	}
	return &Engine{
		config: config,
		personality: core.Personality{
			Mood:   core.MoodHelpful,
			Energy: core.EnergyMedium,
		},
	}
}

// Personality returns the current mood/energy state
func (e *Engine) Personality() core.Personality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.personality
}

// WakeGreeting picks a wake-up response from the fixed pool
func (e *Engine) WakeGreeting() core.IntentResponse {
	return core.IntentResponse{
		Text:    pickTemplate(WakeResponses, e.config.Rand),
		Emotion: "excited",
	}
}

// AddMessage appends one turn to the rolling message log, evicting the
// oldest entries beyond the retention limit.
func (e *Engine) AddMessage(msg core.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, msg)
	if over := len(e.history) - e.config.HistoryLimit; over > 0 {
		e.history = append([]core.Message(nil), e.history[over:]...)
	}
}

// History returns a snapshot of the retained message log
func (e *Engine) History() []core.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Message, len(e.history))
	copy(out, e.history)
	return out
}

// contextWindow returns the most recent messages for escalation
func (e *Engine) contextWindow() []core.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := 0
	if len(e.history) > e.config.ContextWindow {
		start = len(e.history) - e.config.ContextWindow
	}
	out := make([]core.Message, len(e.history)-start)
	copy(out, e.history[start:])
	return out
}

// Resolve classifies an utterance into a structured response. It always
// resolves; remote failures degrade to apology text.
func (e *Engine) Resolve(ctx context.Context, utterance string) core.IntentResponse {
	logger := e.config.Logger.WithModule("intent")

	e.updatePersonality(utterance)

	normalized := strings.ToLower(strings.TrimSpace(utterance))
	if normalized == "" {
		return e.fallback(ctx, logger)
	}

	// Index against the untrimmed lowercase text so payload offsets
	// line up with the original utterance.
	if resp, ok := e.resolveTransform(ctx, utterance, strings.ToLower(utterance), logger); ok {
		return resp
	}
	if resp, ok := e.resolveDomain(normalized); ok {
		return resp
	}
	if resp, ok := e.resolveMeta(normalized); ok {
		return resp
	}
	if resp, ok := e.resolveSocial(normalized); ok {
		return resp
	}

	logger.Debug("No local intent matched", telemetry.String("utterance", utterance))
	return e.fallback(ctx, logger)
}

// transform commands delegate the payload to a named remote operation

type transformOp func(ctx context.Context, svc CompletionService, payload string) (string, error)

var transformTriggers = []struct {
	trigger string
	prompt  string
	op      transformOp
}{
	{"clean grammar", "What text should I clean up?", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.CleanGrammar(ctx, p)
	}},
	{"fix grammar", "What text should I clean up?", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.CleanGrammar(ctx, p)
	}},
	{"rephrase this", "What should I rephrase?", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.Rephrase(ctx, p)
	}},
	{"rephrase", "What should I rephrase?", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.Rephrase(ctx, p)
	}},
	{"answer this question", "What's the question?", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.Ask(ctx, p)
	}},
	{"create a formula", "Describe the formula you need!", func(ctx context.Context, svc CompletionService, p string) (string, error) {
		return svc.Formula(ctx, p)
	}},
}

func (e *Engine) resolveTransform(ctx context.Context, utterance, lower string, logger telemetry.Logger) (core.IntentResponse, bool) {
	for _, t := range transformTriggers {
		idx := strings.Index(lower, t.trigger)
		if idx == -1 {
			continue
		}

		payload := extractPayload(utterance, idx+len(t.trigger))
		if payload == "" {
			return core.IntentResponse{
				Text:    t.prompt,
				Emotion: "curious",
			}, true
		}

		if e.config.Completion == nil {
			return core.IntentResponse{
				Text:    pickTemplate(apologyResponses, e.config.Rand),
				Emotion: "helpful",
			}, true
		}

		logger.Info("Delegating transform command",
			telemetry.String("trigger", t.trigger),
			telemetry.Int("payload_length", len(payload)))

		result, err := t.op(ctx, e.config.Completion, payload)
		if err != nil {
			logger.Error("Transform command failed", telemetry.Err(err), telemetry.String("trigger", t.trigger))
			return core.IntentResponse{
				Text:    pickTemplate(apologyResponses, e.config.Rand),
				Emotion: "helpful",
			}, true
		}

		return core.IntentResponse{
			Text:    result,
			Emotion: "helpful",
		}, true
	}
	return core.IntentResponse{}, false
}

func (e *Engine) resolveDomain(normalized string) (core.IntentResponse, bool) {
	switch {
	case matchesAny(normalized, "balance", "coins", "coin", "wallet", "how much money"):
		return core.IntentResponse{
			Text:     pickTemplate(balanceResponses, e.config.Rand),
			Emotion:  "excited",
			Actions:  []string{"load_balance"},
			FollowUp: "Want to earn more? Try a game!",
		}, true
	case matchesAny(normalized, "game", "games", "play something"):
		return core.IntentResponse{
			Text:    pickTemplate(gamesResponses, e.config.Rand),
			Emotion: "playful",
			Actions: []string{"show_games"},
			Voice:   &core.VoiceSettings{Rate: 1.1, Pitch: 1.1, Volume: 1.0},
		}, true
	case matchesAny(normalized, "reward", "rewards", "convert", "conversion", "redeem", "exchange"):
		return core.IntentResponse{
			Text:     pickTemplate(rewardsResponses, e.config.Rand),
			Emotion:  "excited",
			Actions:  []string{"load_rewards"},
			FollowUp: "Your coins are burning a hole in your pocket!",
		}, true
	case matchesAny(normalized, "referral", "referrals", "refer", "invite"):
		return core.IntentResponse{
			Text:    pickTemplate(referralsResponses, e.config.Rand),
			Emotion: "encouraging",
			Actions: []string{"load_referrals"},
		}, true
	}
	return core.IntentResponse{}, false
}

func (e *Engine) resolveMeta(normalized string) (core.IntentResponse, bool) {
	switch {
	case matchesAny(normalized, "help", "what can you do"):
		return core.IntentResponse{
			Text:    pickTemplate(helpResponses, e.config.Rand),
			Emotion: "helpful",
		}, true
	case matchesAny(normalized, "stats", "statistics", "progress"):
		return core.IntentResponse{
			Text:    pickTemplate(statsResponses, e.config.Rand),
			Emotion: "curious",
			Actions: []string{"load_stats"},
		}, true
	case matchesAny(normalized, "manage", "optimize", "settings"):
		return core.IntentResponse{
			Text:    pickTemplate(manageResponses, e.config.Rand),
			Emotion: "helpful",
			Actions: []string{"open_settings"},
		}, true
	}
	return core.IntentResponse{}, false
}

func (e *Engine) resolveSocial(normalized string) (core.IntentResponse, bool) {
	switch {
	case matchesAny(normalized, "hello", "hi", "hey", "good morning", "good evening"):
		return core.IntentResponse{
			Text:    pickTemplate(greetingResponses, e.config.Rand),
			Emotion: "excited",
		}, true
	case matchesAny(normalized, "thank", "thanks", "appreciate"):
		return core.IntentResponse{
			Text:    pickTemplate(thanksResponses, e.config.Rand),
			Emotion: "encouraging",
		}, true
	case matchesAny(normalized, "bye", "goodbye", "see you", "later"):
		return core.IntentResponse{
			Text:    pickTemplate(goodbyeResponses, e.config.Rand),
			Emotion: "encouraging",
		}, true
	}
	return core.IntentResponse{}, false
}

// fallback returns the continued-learning sentinel, replaced by a
// remote completion over the capped history when a service is wired.
func (e *Engine) fallback(ctx context.Context, logger telemetry.Logger) core.IntentResponse {
	sentinel := core.IntentResponse{
		Text:    pickTemplate(fallbackResponses, e.config.Rand),
		Emotion: "curious",
	}

	if e.config.Completion == nil {
		return sentinel
	}

	window := e.contextWindow()
	logger.Info("Escalating to completion service", telemetry.Int("context_messages", len(window)))

	content, err := e.config.Completion.Complete(ctx, window)
	if err != nil {
		logger.Error("Completion escalation failed", telemetry.Err(err))
		return core.IntentResponse{
			Text:    pickTemplate(apologyResponses, e.config.Rand),
			Emotion: "helpful",
		}
	}
	if strings.TrimSpace(content) == "" {
		return sentinel
	}

	return core.IntentResponse{
		Text:    content,
		Emotion: "helpful",
	}
}

// updatePersonality runs keyword sniffing on every utterance,
// independent of which classification branch matches.
func (e *Engine) updatePersonality(utterance string) {
	normalized := strings.ToLower(utterance)

	signals := []struct {
		terms  []string
		mood   core.Mood
		energy core.Energy
	}{
		{[]string{"excited", "awesome", "amazing", "wow", "love"}, core.MoodExcited, core.EnergyHigh},
		{[]string{"fun", "play", "game", "joke"}, core.MoodPlayful, core.EnergyHigh},
		{[]string{"help", "confused", "stuck", "lost"}, core.MoodHelpful, core.EnergyMedium},
		{[]string{"tired", "sad", "bored"}, core.MoodEncouraging, core.EnergyLow},
		{[]string{"curious", "wonder", "interesting"}, core.MoodCurious, core.EnergyMedium},
	}

	for _, s := range signals {
		if matchesAny(normalized, s.terms...) {
			e.mu.Lock()
			e.personality = core.Personality{Mood: s.mood, Energy: s.energy}
			e.mu.Unlock()
			return
		}
	}
}

// matchesAny reports whether the text contains any term. Multi-word
// terms match as substrings; single words match on word boundaries so
// "hi" does not fire inside "this".
func matchesAny(text string, terms ...string) bool {
	var words map[string]bool
	for _, term := range terms {
		if strings.Contains(term, " ") {
			if strings.Contains(text, term) {
				return true
			}
			continue
		}
		if words == nil {
			words = splitWords(text)
		}
		if words[term] {
			return true
		}
	}
	return false
}

func splitWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		words[strings.Trim(w, "'")] = true
	}
	return words
}

// extractPayload returns the command payload following a trigger
// phrase, with leading separators stripped.
func extractPayload(utterance string, from int) string {
	if from >= len(utterance) {
		return ""
	}
	return strings.TrimLeft(utterance[from:], " \t:,.-")
}
