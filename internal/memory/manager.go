// Package memory composes four stores into the context handed to
// generation: structured facts, the short-term window, the long-term
// similarity index, and per-day episodic summaries.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Manager is the facade over the four memory layers. Context assembly is
// best-effort: a failing layer logs and its section is omitted, never
// surfaced to the caller.
type Manager struct {
	Structured *StructuredMemory
	ShortTerm  *ShortTermMemory
	Episodic   *EpisodicMemory
	LongTerm   *LongTermStore

	topK int
	now  func() time.Time
}

type ManagerOptions struct {
	TopK int
	Now  func() time.Time // test injection
}

func NewManager(structured *StructuredMemory, shortTerm *ShortTermMemory, episodic *EpisodicMemory, longTerm *LongTermStore, opts ManagerOptions) *Manager {
	topK := opts.TopK
	if topK <= 0 {
		topK = 3
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		Structured: structured,
		ShortTerm:  shortTerm,
		Episodic:   episodic,
		LongTerm:   longTerm,
		topK:       topK,
		now:        now,
	}
}

// FullContext assembles the complete prompt context in fixed section
// order: profile, recent conversation, relevant past context.
func (m *Manager) FullContext(ctx context.Context, userID int64, query string) string {
	var parts []string

	if profile := m.Structured.FormattedProfile(userID, m.now()); profile != "" {
		parts = append(parts, "=== USER PROFILE ===", profile)
	}

	if recent := m.ShortTerm.FormattedContext(userID); recent != "" && !strings.Contains(recent, "No recent") {
		parts = append(parts, "\n=== RECENT CONVERSATION ===", recent)
	}

	if similar := m.similarContext(ctx, userID, query); similar != "" {
		parts = append(parts, "\n=== RELEVANT PAST CONTEXT ===", similar)
	}

	return strings.Join(parts, "\n")
}

func (m *Manager) similarContext(ctx context.Context, userID int64, query string) string {
	candidates, err := m.LongTerm.Query(ctx, userID, query, CandidateCount(m.topK))
	if err != nil {
		log.Printf("[memory] long-term retrieval failed for user %d: %v", userID, err)
		return ""
	}
	return FormatSnippets(Fuse(query, candidates, m.topK))
}

// Recall answers memory-specific questions from the right layer
// directly, bypassing the general fusion path.
func (m *Manager) Recall(ctx context.Context, userID int64, query string) string {
	q := strings.ToLower(query)

	switch {
	case containsAny(q, "medication", "medicine", "pill", "schedule"):
		return m.Structured.MedicationSchedule(userID)

	case containsAny(q, "breakfast", "lunch", "dinner", "meal", "eat"):
		return m.recallMeals(userID, query, q)

	case containsAny(q, "remember", "talked about", "discussed", "said"):
		return m.recallSimilar(ctx, userID, query)

	case containsAny(q, "today", "yesterday", "summary"):
		day := m.now()
		if strings.Contains(q, "yesterday") {
			day = day.AddDate(0, 0, -1)
		}
		return m.Episodic.FormattedSummary(userID, day)

	default:
		return m.Structured.FormattedProfile(userID, m.now())
	}
}

func (m *Manager) recallMeals(userID int64, original, q string) string {
	if containsAny(q, "what time", "when is", "time for") {
		meal := ""
		for _, name := range []string{"breakfast", "lunch", "dinner"} {
			if strings.Contains(q, name) {
				meal = name
				break
			}
		}
		if meal != "" {
			if t := m.Structured.MealTime(userID, meal); t != "" {
				return fmt.Sprintf("Your %s is usually at %s.", meal, t)
			}
			return fmt.Sprintf("I don't have a time set for %s. What time do you usually have it?", meal)
		}
	}

	if containsAny(q, "today", "summary", "what did i") {
		logs := m.Structured.DailyLogs(userID, m.now(), original)
		if len(logs.Meals) > 0 {
			return "Today you mentioned: " + strings.Join(logs.Meals, ", ")
		}
	}

	return "I can help you track meals or set meal times. What would you like to know?"
}

func (m *Manager) recallSimilar(ctx context.Context, userID int64, query string) string {
	candidates, err := m.LongTerm.Query(ctx, userID, query, CandidateCount(m.topK))
	if err != nil {
		log.Printf("[memory] recall retrieval failed for user %d: %v", userID, err)
		return "I'm not finding a specific memory of that. Could you give me more details?"
	}

	fused := Fuse(query, candidates, m.topK)
	if len(fused) == 0 {
		return "I'm not finding a specific memory of that. Could you give me more details?"
	}

	var sb strings.Builder
	sb.WriteString("Yes, I remember we talked about:\n")
	limit := len(fused)
	if limit > 2 {
		limit = 2
	}
	for _, s := range fused[:limit] {
		sb.WriteString("\n")
		sb.WriteString(snippetTag(s))
		sb.WriteString(" ")
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// IndexTurn mirrors one saved turn into the long-term index. Failures
// are logged, not returned: the durable record already holds the turn
// and idempotent ids make a later rebuild safe.
func (m *Manager) IndexTurn(ctx context.Context, userID, turnID int64, message, response string, ts time.Time) {
	if err := m.LongTerm.IndexTurn(ctx, userID, turnID, message, response, ts); err != nil {
		log.Printf("[memory] indexing turn %d failed: %v", turnID, err)
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
