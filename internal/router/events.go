package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/store"
)

var (
	eventCategoryKeywords = []string{"meeting", "appointment", "doctor", "event", "visit"}
	eventQuestionMarkers  = []string{"when", "what time", "where", "remind"}

	eventStopwords = map[string]bool{
		"is": true, "my": true, "the": true, "a": true, "an": true,
		"with": true, "at": true, "for": true, "on": true, "to": true,
		"again": true, "next": true, "this": true, "that": true,
		"when": true, "when's": true, "whens": true, "what": true,
		"what's": true, "where": true, "where's": true, "time": true,
		"remind": true, "me": true, "do": true, "i": true, "have": true,
	}
)

// eventLookupWindowDays bounds partial-title matching to the near
// future; farther events need an explicit ask.
const eventLookupWindowDays = 7

// PartialEventHandler resolves questions like "when is my doctor
// appointment" against upcoming events. One match answers directly,
// several ask the user to pick, none falls through.
type PartialEventHandler struct {
	Structured *memory.StructuredMemory
}

func (h *PartialEventHandler) Name() string { return "partial_event" }

func (h *PartialEventHandler) Handle(_ context.Context, req Request) (*Response, error) {
	lower := strings.ToLower(req.Message)

	category := firstMatch(lower, eventCategoryKeywords)
	if category == "" || !containsAny(lower, eventQuestionMarkers...) {
		return nil, nil
	}

	candidate := candidatePhrase(lower, category)
	events := h.Structured.UpcomingEvents(req.UserID, eventLookupWindowDays, req.Now)

	matches := matchEvents(events, category, candidate)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		e := matches[0]
		text := fmt.Sprintf("Your %s is %s at %s.", e.Title, memory.RelativeDayLabel(e.EventDate, req.Now), e.EventDate.Format("3:04 PM"))
		if e.Description != "" {
			text += " " + e.Description
		}
		return &Response{Text: text, ConversationType: "event_query"}, nil
	default:
		var sb strings.Builder
		sb.WriteString("I found a few coming up — which one do you mean?\n")
		for _, e := range matches {
			fmt.Fprintf(&sb, "• %s - %s\n", e.Title, memory.RelativeDayLabel(e.EventDate, req.Now))
		}
		return &Response{Text: sb.String(), ConversationType: "event_query"}, nil
	}
}

func firstMatch(lower string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// candidatePhrase extracts up to three meaningful words from the
// message, dropping the category keyword itself, stopwords and question
// filler. Qualifiers may sit on either side of the keyword ("dentist
// appointment", "appointment with the dentist").
func candidatePhrase(lower, category string) []string {
	var words []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, "?!.,'\"")
		if w == "" || w == category || eventStopwords[w] {
			continue
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	return words
}

func matchEvents(events []store.PersonalEvent, category string, candidate []string) []store.PersonalEvent {
	var matches []store.PersonalEvent
	for _, e := range events {
		haystack := strings.ToLower(e.Title + " " + e.EventType + " " + e.Description)
		if matchesEvent(haystack, category, candidate) {
			matches = append(matches, e)
		}
	}
	return matches
}

func matchesEvent(haystack, category string, candidate []string) bool {
	for _, w := range candidate {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	// No usable phrase after the keyword; match on the category itself.
	return len(candidate) == 0 && strings.Contains(haystack, category)
}
