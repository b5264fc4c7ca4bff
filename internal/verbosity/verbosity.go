// Package verbosity maps a message to a response-length budget and
// enforces it after generation.
package verbosity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/carelyhq/carely/internal/llm"
)

// Level is a response-length class.
type Level int

const (
	Short Level = iota
	Medium
	Long
)

func (l Level) String() string {
	switch l {
	case Long:
		return "LONG"
	case Medium:
		return "MEDIUM"
	default:
		return "SHORT"
	}
}

// Decision is the generation budget for one response. SentenceLimit 0
// means unlimited.
type Decision struct {
	Level         Level
	MaxTokens     int
	SentenceLimit int
}

func budgetFor(level Level) Decision {
	switch level {
	case Long:
		return Decision{Level: Long, MaxTokens: 1200}
	case Medium:
		return Decision{Level: Medium, MaxTokens: 600, SentenceLimit: 8}
	default:
		return Decision{Level: Short, MaxTokens: 220, SentenceLimit: 4}
	}
}

const classifyPrompt = `Classify how long a reply this message needs: SHORT (a quick factual or social reply), MEDIUM (an explanation), or LONG (multi-step guidance or several questions at once).
Return strict JSON: {"level":"SHORT"}

Message: %q`

// Controller decides the budget via the model, falling back to keyword
// heuristics on any failure.
type Controller struct {
	client llm.Client
}

func NewController(client llm.Client) *Controller {
	return &Controller{client: client}
}

func (c *Controller) Decide(ctx context.Context, message string) Decision {
	if c.client != nil {
		resp, err := c.client.Complete(ctx, llm.Request{
			Prompt:      fmt.Sprintf(classifyPrompt, message),
			MaxTokens:   50,
			Temperature: 0,
			JSONMode:    true,
		})
		if err == nil {
			var decoded struct {
				Level string `json:"level"`
			}
			if jsonErr := json.Unmarshal([]byte(resp), &decoded); jsonErr == nil {
				switch strings.ToUpper(strings.TrimSpace(decoded.Level)) {
				case "SHORT":
					return budgetFor(Short)
				case "MEDIUM":
					return budgetFor(Medium)
				case "LONG":
					return budgetFor(Long)
				}
			}
			log.Printf("[verbosity] unparseable classifier response, using heuristic")
		} else {
			log.Printf("[verbosity] classifier failed, using heuristic: %v", err)
		}
	}
	return budgetFor(Heuristic(message))
}

var (
	longKeywords = []string{
		"explain", "step by step", "steps", "walk me through", "how do i",
		"everything", "in detail", "tell me about", "what should i do if",
	}
	mediumKeywords = []string{
		"why", "how", "what is", "what are", "summarize", "compare",
	}
)

// Heuristic is the deterministic no-model classification: LONG for
// multi-step keywords or two or more question marks, MEDIUM for
// explanatory keywords, else SHORT.
func Heuristic(message string) Level {
	lower := strings.ToLower(message)

	if strings.Count(message, "?") >= 2 {
		return Long
	}
	for _, kw := range longKeywords {
		if strings.Contains(lower, kw) {
			return Long
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(lower, kw) {
			return Medium
		}
	}
	return Short
}

// LimitSentences trims text to at most limit sentences, space-joined.
// limit 0 means no limit; text within budget is returned unchanged.
func LimitSentences(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	sentences := splitSentences(text)
	if len(sentences) <= limit {
		return text
	}
	return strings.Join(sentences[:limit], " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
