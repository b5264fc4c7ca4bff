package memory

import (
	"fmt"
	"strings"

	"github.com/carelyhq/carely/internal/store"
)

// Each side of an exchange is cut to this many characters in the prompt
// to bound token cost.
const shortTermFieldBudget = 150

// ShortTermMemory exposes the recent conversation window. The window is
// read straight from the durable record, so it survives restarts.
type ShortTermMemory struct {
	store  *store.Store
	window int
}

func NewShortTermMemory(s *store.Store, window int) *ShortTermMemory {
	if window <= 0 {
		window = 8
	}
	return &ShortTermMemory{store: s, window: window}
}

// Recent returns up to n turns, chronological ascending. n <= 0 means
// the configured window.
func (m *ShortTermMemory) Recent(userID int64, n int) ([]store.Turn, error) {
	if n <= 0 {
		n = m.window
	}
	return m.store.RecentTurns(userID, n)
}

// FormattedContext renders the recent window compactly for the prompt.
func (m *ShortTermMemory) FormattedContext(userID int64) string {
	turns, err := m.Recent(userID, m.window)
	if err != nil || len(turns) == 0 {
		return "No recent conversation history."
	}

	lines := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		lines = append(lines,
			fmt.Sprintf("User: %s", truncateChars(t.Message, shortTermFieldBudget)),
			fmt.Sprintf("Carely: %s", truncateChars(t.Response, shortTermFieldBudget)))
	}
	return strings.Join(lines, "\n")
}

func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
