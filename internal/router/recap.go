package router

import (
	"context"
	"strings"

	"github.com/carelyhq/carely/internal/memory"
)

var recapVerbs = []string{
	"talk", "talked", "discuss", "discussed", "chat", "chatted",
	"summary", "summarize", "recap", "happen", "happened",
}

// RelativeDayRecapHandler answers "what did we talk about yesterday"
// from the episodic store verbatim, resolving an offset of one or two
// civil days.
type RelativeDayRecapHandler struct {
	Episodic *memory.EpisodicMemory
}

func (h *RelativeDayRecapHandler) Name() string { return "relative_day_recap" }

func (h *RelativeDayRecapHandler) Handle(_ context.Context, req Request) (*Response, error) {
	lower := strings.ToLower(req.Message)

	offset := 0
	if strings.Contains(lower, "day before yesterday") {
		offset = 2
	} else if strings.Contains(lower, "yesterday") {
		offset = 1
	}
	if offset == 0 || !hasRecapVerb(lower) {
		return nil, nil
	}

	day := req.Now.AddDate(0, 0, -offset)
	return &Response{
		Text:             h.Episodic.FormattedSummary(req.UserID, day),
		ConversationType: "daily_recap",
	}, nil
}

func hasRecapVerb(lower string) bool {
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, "?!.,")
		for _, verb := range recapVerbs {
			if w == verb {
				return true
			}
		}
	}
	return false
}
