// Package agent orchestrates one conversation turn end to end: fast-path
// routing, context assembly, safety gating, verbosity budgeting,
// generation, and the persist-then-index write.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/carelyhq/carely/internal/alert"
	"github.com/carelyhq/carely/internal/llm"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/router"
	"github.com/carelyhq/carely/internal/safety"
	"github.com/carelyhq/carely/internal/store"
	"github.com/carelyhq/carely/internal/verbosity"
)

const systemPrompt = `You are Carely, a warm and caring companion for an elderly person. You know their history, medications and upcoming events from the context provided. Be supportive and natural, reference their life when relevant, and never contradict the factual records in the context. If they mention medications, offer to help log them. If they seem distressed, offer gentle support.`

const (
	rateLimitApology = "I'm a little overwhelmed right now and need a moment to catch up. Could you ask me again in a minute or two? I'm not going anywhere."
	genericApology   = "I'm sorry, I'm having a bit of trouble right now. But I'm here for you! Is there anything specific you'd like to talk about or any way I can help you today?"

	alertFailureNote = " If this is urgent, please contact your caregiver directly."

	// A short negative exchange produces one mood alert, not one per
	// turn. Emergency alerts are never debounced.
	moodDebounceWindow = 15 * time.Minute
)

// Reply is the outcome of one processed message.
type Reply struct {
	Text             string
	ConversationType string
	Sentiment        safety.Sentiment
	IsEmergency      bool
	AlertSent        bool
}

// Agent wires the routing cascade and the full generation pipeline.
type Agent struct {
	store     *store.Store
	memory    *memory.Manager
	router    *router.Router
	sentiment *safety.SentimentAnalyzer
	verbosity *verbosity.Controller
	client    llm.Client
	alerts    alert.Sink
	now       func() time.Time

	mu        sync.Mutex
	lastAlert map[int64]time.Time
}

type Options struct {
	Now func() time.Time // test injection
}

func New(s *store.Store, mem *memory.Manager, r *router.Router, client llm.Client, alerts alert.Sink, opts Options) *Agent {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Agent{
		store:     s,
		memory:    mem,
		router:    r,
		sentiment: safety.NewSentimentAnalyzer(client),
		verbosity: verbosity.NewController(client),
		client:    client,
		alerts:    alerts,
		now:       now,
		lastAlert: make(map[int64]time.Time),
	}
}

// Respond processes one user message. Fast-path answers skip the
// sentiment/emergency pipeline entirely; everything else goes through
// full context assembly, safety gating and generation.
func (a *Agent) Respond(ctx context.Context, userID int64, message string) Reply {
	now := a.now()

	if resp := a.router.Route(ctx, router.Request{UserID: userID, Message: message, Now: now}); resp != nil {
		// Fast paths skip generation, not the PII scan: nothing is
		// persisted verbatim.
		storedMessage, privacyNotice := safety.Redacted(message)
		a.persistAndIndex(ctx, store.Turn{
			UserID:           userID,
			Message:          storedMessage,
			Response:         resp.Text,
			Timestamp:        now,
			SentimentLabel:   "neutral",
			ConversationType: resp.ConversationType,
		})
		return Reply{Text: resp.Text + privacyNotice, ConversationType: resp.ConversationType}
	}

	return a.generate(ctx, userID, message, now)
}

func (a *Agent) generate(ctx context.Context, userID int64, message string, now time.Time) Reply {
	fullContext := a.memory.FullContext(ctx, userID, message)
	sentiment := a.sentiment.Analyze(ctx, message)
	emergency := safety.AssessEmergency(message)
	storedMessage, privacyNotice := safety.Redacted(message)
	budget := a.verbosity.Decide(ctx, message)

	prompt := fmt.Sprintf("Context:\n%s\n\nCurrent message: %s\n\nRespond naturally and warmly.", fullContext, message)
	text, genErr := a.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   budget.MaxTokens,
		Temperature: 0.7,
	})
	if genErr != nil {
		log.Printf("[agent] generation failed for user %d: %v", userID, genErr)
		if llm.IsRateLimit(genErr) {
			text = rateLimitApology
		} else {
			text = genericApology
		}
	} else {
		text = verbosity.LimitSentences(text, budget.SentenceLimit)
	}

	if emergency.IsEmergency {
		text = safety.EmergencyPreamble + text
	}

	display := text + privacyNotice

	turnID := a.persist(store.Turn{
		UserID:           userID,
		Message:          storedMessage,
		Response:         safety.RedactPII(text),
		Timestamp:        now,
		SentimentScore:   sentiment.Score,
		SentimentLabel:   sentiment.Label,
		ConversationType: "general",
	})
	if turnID != 0 {
		a.memory.IndexTurn(ctx, userID, turnID, storedMessage, safety.RedactPII(text), now)
	}

	alertSent, alertFailed := a.maybeAlert(userID, message, sentiment, emergency, now)
	if alertFailed {
		display += alertFailureNote
	}

	return Reply{
		Text:             display,
		ConversationType: "general",
		Sentiment:        sentiment,
		IsEmergency:      emergency.IsEmergency,
		AlertSent:        alertSent,
	}
}

// persist saves the turn; failures are logged, not fatal, so the user
// still gets their response.
func (a *Agent) persist(t store.Turn) int64 {
	id, err := a.store.SaveTurn(t)
	if err != nil {
		log.Printf("[agent] persisting turn failed for user %d: %v", t.UserID, err)
		return 0
	}
	return id
}

// persistAndIndex is the two-step, non-transactional write: durable save
// first, then the long-term index. A crash in between leaves a
// saved-but-unindexed turn, which the idempotent index ids make safe to
// re-run later.
func (a *Agent) persistAndIndex(ctx context.Context, t store.Turn) {
	if id := a.persist(t); id != 0 {
		a.memory.IndexTurn(ctx, t.UserID, id, t.Message, t.Response, t.Timestamp)
	}
}

func (a *Agent) maybeAlert(userID int64, message string, sentiment safety.Sentiment, emergency safety.Assessment, now time.Time) (sent, failed bool) {
	if a.alerts == nil {
		return false, false
	}

	var out alert.Alert
	switch {
	case emergency.ShouldAlert:
		out = alert.Alert{
			UserID:      userID,
			AlertType:   "emergency",
			Title:       "Possible emergency reported",
			Description: fmt.Sprintf("User said: %q (concerns: %s)", safety.RedactPII(message), strings.Join(emergency.Concerns, ", ")),
			Severity:    emergency.Severity.String(),
		}
	case safety.ShouldAlertCaregiver(sentiment.Score, message):
		if !a.moodDebounceAllows(userID, now) {
			return false, false
		}
		out = alert.Alert{
			UserID:      userID,
			AlertType:   "mood_concern",
			Title:       "Concerning sentiment detected",
			Description: fmt.Sprintf("User expressed concerning sentiment: %q (sentiment: %s)", safety.RedactPII(message), sentiment.Label),
			Severity:    safety.AlertSeverity(sentiment.Score),
		}
	default:
		return false, false
	}

	if err := a.alerts.Create(out); err != nil {
		log.Printf("[agent] caregiver alert failed for user %d: %v", userID, err)
		return false, true
	}
	return true, false
}

// moodDebounceAllows rate-limits mood alerts only; emergency alerts
// bypass it so they always reach the caregiver.
func (a *Agent) moodDebounceAllows(userID int64, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastAlert[userID]; ok && now.Sub(last) < moodDebounceWindow {
		return false
	}
	a.lastAlert[userID] = now
	return true
}
