package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carelyhq/carely/internal/llm"
)

// Intent is the closed set of message intents the classifier may emit.
type Intent string

const (
	IntentLogMedication Intent = "log_medication"
	IntentAskMedication Intent = "ask_medication"
	IntentAskSchedule   Intent = "ask_schedule"
	IntentEmergency     Intent = "emergency"
	IntentMoodCheck     Intent = "mood_check"
	IntentGeneralChat   Intent = "general_chat"
)

// Decision is one classification outcome. Transient, never persisted.
type Decision struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classifier labels a message with an intent and confidence.
type Classifier interface {
	Classify(ctx context.Context, message string) (Decision, error)
}

const intentPrompt = `Classify the intent of this message from an elderly user of a care assistant.
Intents: log_medication (user reports having taken a medication), ask_medication (user asks whether/what medication to take), ask_schedule (user asks about their day or schedule), emergency (urgent health danger), mood_check (user describes how they feel), general_chat (anything else).
Return strict JSON: {"intent":"general_chat","confidence":0.8,"reasoning":"..."}

Message: %q`

type llmClassifier struct {
	client llm.Client
}

// NewClassifier builds the model-backed intent classifier.
func NewClassifier(client llm.Client) Classifier {
	return &llmClassifier{client: client}
}

func (c *llmClassifier) Classify(ctx context.Context, message string) (Decision, error) {
	resp, err := c.client.Complete(ctx, llm.Request{
		Prompt:      fmt.Sprintf(intentPrompt, message),
		MaxTokens:   150,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("intent classification: %w", err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(resp), &d); err != nil {
		return Decision{}, fmt.Errorf("parse intent response: %w", err)
	}
	switch d.Intent {
	case IntentLogMedication, IntentAskMedication, IntentAskSchedule, IntentEmergency, IntentMoodCheck, IntentGeneralChat:
	default:
		return Decision{}, fmt.Errorf("unknown intent %q", d.Intent)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return Decision{}, fmt.Errorf("confidence %f out of range", d.Confidence)
	}
	return d, nil
}

// SafeClassify never fails: a nil classifier and model errors both fall
// back to the keyword heuristic.
func SafeClassify(ctx context.Context, c Classifier, message string) Decision {
	if c == nil {
		c = HeuristicClassifier{}
	}
	d, err := c.Classify(ctx, message)
	if err != nil {
		d, _ = HeuristicClassifier{}.Classify(ctx, message)
	}
	return d
}

// HeuristicClassifier is a keyword classifier. It backs SafeClassify
// when the model classifier errors or none is configured, so intent
// routing keeps working without the model.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(_ context.Context, message string) (Decision, error) {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, "i took", "i just took", "i've taken", "i have taken"):
		return Decision{Intent: IntentLogMedication, Confidence: 0.8, Reasoning: "past-tense intake phrasing"}, nil
	case containsAny(lower, "did i take", "should i take", "which medication", "what pills", "do i take"):
		return Decision{Intent: IntentAskMedication, Confidence: 0.7, Reasoning: "medication question phrasing"}, nil
	case containsAny(lower, "what's my day", "my schedule", "what do i have today"):
		return Decision{Intent: IntentAskSchedule, Confidence: 0.7, Reasoning: "schedule question phrasing"}, nil
	case containsAny(lower, "i feel", "i'm feeling", "feeling"):
		return Decision{Intent: IntentMoodCheck, Confidence: 0.6, Reasoning: "mood phrasing"}, nil
	default:
		return Decision{Intent: IntentGeneralChat, Confidence: 0.5, Reasoning: "no pattern matched"}, nil
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
