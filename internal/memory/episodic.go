package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/carelyhq/carely/internal/llm"
	"github.com/carelyhq/carely/internal/store"
)

const dailySummaryPrompt = `Summarize this day's conversation with an elderly user in 3-6 warm, factual lines. Mention meals, medications, activities, mood and anything a caregiver should know.
Return strict JSON: {"summary":"...","key_topics":["..."]}

Conversation:
%s`

// EpisodicMemory keeps one narrative summary per user per civil day.
// Summaries are written by the daily scheduler and read back for
// "yesterday"-style recaps.
type EpisodicMemory struct {
	store  *store.Store
	client llm.Client
}

func NewEpisodicMemory(s *store.Store, client llm.Client) *EpisodicMemory {
	return &EpisodicMemory{store: s, client: client}
}

// Summary returns the stored summary for a civil day, or nil when none
// exists.
func (m *EpisodicMemory) Summary(userID int64, day time.Time) (*store.DailySummary, error) {
	return m.store.DailySummaryFor(userID, day.Format("2006-01-02"))
}

// FormattedSummary renders a day's summary with its key topics, or a
// gentle "nothing recorded" line.
func (m *EpisodicMemory) FormattedSummary(userID int64, day time.Time) string {
	d, err := m.Summary(userID, day)
	if err != nil || d == nil || strings.TrimSpace(d.Summary) == "" {
		return fmt.Sprintf("I don't have a summary for %s yet.", day.Format("January 2"))
	}

	out := d.Summary
	if len(d.KeyTopics) > 0 {
		out += "\n\nKey topics: " + strings.Join(d.KeyTopics, ", ")
	}
	return out
}

// SummarizeDay builds and stores the summary for one civil day from its
// conversation record. The model writes the narrative; when it fails,
// a lexical digest takes over so the day is never lost.
func (m *EpisodicMemory) SummarizeDay(ctx context.Context, userID int64, day time.Time) (*store.DailySummary, error) {
	turns, err := m.store.TurnsForDay(userID, day)
	if err != nil {
		return nil, fmt.Errorf("load day turns: %w", err)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	summary, topics := m.summarize(ctx, turns)
	d := store.DailySummary{
		UserID:    userID,
		Date:      day.Format("2006-01-02"),
		Summary:   summary,
		KeyTopics: topics,
	}
	if err := m.store.SaveDailySummary(d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *EpisodicMemory) summarize(ctx context.Context, turns []store.Turn) (string, []string) {
	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "User: %s\nCarely: %s\n", t.Message, t.Response)
	}

	if m.client != nil {
		resp, err := m.client.Complete(ctx, llm.Request{
			Prompt:      fmt.Sprintf(dailySummaryPrompt, transcript.String()),
			MaxTokens:   400,
			Temperature: 0.3,
			JSONMode:    true,
		})
		if err == nil {
			var decoded struct {
				Summary   string   `json:"summary"`
				KeyTopics []string `json:"key_topics"`
			}
			if jsonErr := json.Unmarshal([]byte(resp), &decoded); jsonErr == nil && strings.TrimSpace(decoded.Summary) != "" {
				return decoded.Summary, decoded.KeyTopics
			}
			log.Printf("[episodic] unparseable summary response, using lexical digest")
		} else {
			log.Printf("[episodic] summary generation failed, using lexical digest: %v", err)
		}
	}

	return lexicalDigest(turns)
}

var topicKeywords = map[string][]string{
	"meals":       {"breakfast", "lunch", "dinner", "eat", "food", "meal"},
	"medications": {"medication", "medicine", "pill", "dose"},
	"health":      {"pain", "doctor", "dizzy", "tired", "sleep", "blood pressure"},
	"family":      {"daughter", "son", "grandchild", "family", "visit"},
	"activities":  {"walk", "exercise", "garden", "read", "television"},
	"mood":        {"happy", "sad", "lonely", "worried", "anxious", "glad"},
}

// lexicalDigest is the no-model fallback: count topic keyword mentions
// and emit a minimal factual summary.
func lexicalDigest(turns []store.Turn) (string, []string) {
	counts := make(map[string]int)
	for _, t := range turns {
		text := strings.ToLower(t.Message + " " + t.Response)
		for topic, words := range topicKeywords {
			for _, w := range words {
				if strings.Contains(text, w) {
					counts[topic]++
					break
				}
			}
		}
	}

	topics := make([]string, 0, 3)
	for _, topic := range []string{"health", "medications", "meals", "mood", "family", "activities"} {
		if counts[topic] > 0 && len(topics) < 3 {
			topics = append(topics, topic)
		}
	}

	summary := fmt.Sprintf("We had %d exchanges today.", len(turns))
	if len(topics) > 0 {
		summary += " The conversation touched on " + strings.Join(topics, ", ") + "."
	}
	return summary, topics
}
