// Package safety gates conversation turns: sentiment scoring, emergency
// severity tiering, caregiver alert triggering, and PII redaction.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/carelyhq/carely/internal/llm"
)

// Sentiment is the scored mood of one message.
type Sentiment struct {
	Score    float64  `json:"score"` // -1 very negative .. 1 very positive
	Label    string   `json:"label"` // positive, negative, neutral
	Emotions []string `json:"emotions"`
}

const sentimentPrompt = `You are an expert sentiment analyzer specializing in elderly care conversations. Score the sentiment of the message from -1 (very negative) to 1 (very positive), label it positive/negative/neutral, and list detected emotions. Be especially sensitive to signs of pain, loneliness, confusion and medication anxiety.
Return strict JSON: {"score":-0.5,"label":"negative","emotions":["worry","sadness"]}

Message: %q`

// SentimentAnalyzer scores free text. The model does the scoring when
// available; a weighted lexical count is the always-on fallback.
type SentimentAnalyzer struct {
	client llm.Client
}

func NewSentimentAnalyzer(client llm.Client) *SentimentAnalyzer {
	return &SentimentAnalyzer{client: client}
}

func (a *SentimentAnalyzer) Analyze(ctx context.Context, text string) Sentiment {
	if a.client != nil {
		resp, err := a.client.Complete(ctx, llm.Request{
			Prompt:      fmt.Sprintf(sentimentPrompt, text),
			MaxTokens:   200,
			Temperature: 0,
			JSONMode:    true,
		})
		if err == nil {
			var s Sentiment
			if jsonErr := json.Unmarshal([]byte(resp), &s); jsonErr == nil && s.Label != "" {
				s.Score = clamp(s.Score, -1, 1)
				return s
			}
			log.Printf("[safety] unparseable sentiment response, using lexical fallback")
		} else {
			log.Printf("[safety] sentiment model failed, using lexical fallback: %v", err)
		}
	}
	return lexicalSentiment(text)
}

var (
	positiveWords = []string{
		"good", "great", "happy", "wonderful", "excellent", "love", "enjoy",
		"better", "fine", "well", "nice", "pleasant", "comfortable", "peaceful",
	}
	negativeWords = []string{
		"bad", "terrible", "awful", "hate", "horrible", "pain", "hurt", "sad",
		"worried", "anxious", "confused", "lost", "dizzy", "sick", "tired",
		"lonely", "scared", "frightened", "depressed", "upset",
	}
	concernWords = []string{
		"pain", "hurt", "dizzy", "fall", "emergency", "help", "confused",
		"memory", "forgot", "lost", "scared", "can't", "unable", "difficult",
	}
)

// concernWeight biases the lexical score toward caution.
const concernWeight = 1.5

func lexicalSentiment(text string) Sentiment {
	lower := strings.ToLower(text)
	totalWords := len(strings.Fields(lower))
	if totalWords == 0 {
		return Sentiment{Label: "neutral"}
	}

	countHits := func(words []string) int {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return n
	}

	positive := countHits(positiveWords)
	negative := countHits(negativeWords)
	concern := countHits(concernWords)

	score := (float64(positive) - float64(negative) - float64(concern)*concernWeight) / float64(totalWords)
	score = clamp(score, -1, 1)

	label := "neutral"
	if score > 0.1 {
		label = "positive"
	} else if score < -0.1 {
		label = "negative"
	}

	var emotions []string
	if concern > 0 {
		emotions = append(emotions, "concern")
	}
	if containsAny(lower, "pain", "hurt", "sick") {
		emotions = append(emotions, "discomfort")
	}
	if containsAny(lower, "lonely", "alone", "miss") {
		emotions = append(emotions, "loneliness")
	}
	if containsAny(lower, "happy", "good", "great") {
		emotions = append(emotions, "contentment")
	}
	if containsAny(lower, "worried", "anxious", "scared") {
		emotions = append(emotions, "anxiety")
	}

	return Sentiment{Score: score, Label: label, Emotions: emotions}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
