package memory

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Per-type caps applied when merging long-term search results.
	maxConversationSnippets = 1
	maxOtherSnippets        = 2

	// A candidate this close to the current query is the query itself
	// coming back out of the index.
	echoSimilarityThreshold = 0.95

	snippetSentenceLimit = 2

	// Candidates fetched per requested result, so quota filtering still
	// has enough to pick from.
	candidateMultiplier = 3
)

// CandidateCount returns how many raw candidates to fetch for a fusion
// of topK results.
func CandidateCount(topK int) int {
	return candidateMultiplier * topK
}

// Fuse merges ranked candidates under the type quotas: at most one
// conversation snippet, at most two of other kinds, total at most topK.
// Candidates echoing the current query are dropped, and each admitted
// snippet is cut to its first two sentences.
func Fuse(query string, candidates []Snippet, topK int) []Snippet {
	if topK <= 0 {
		return nil
	}

	normalizedQuery := strings.TrimSpace(strings.ToLower(query))
	fused := make([]Snippet, 0, topK)
	conversations, others := 0, 0

	for _, c := range candidates {
		if len(fused) >= topK {
			break
		}
		if isEcho(c, normalizedQuery) {
			continue
		}
		if c.Kind == SnippetConversation {
			if conversations >= maxConversationSnippets {
				continue
			}
			conversations++
		} else {
			if others >= maxOtherSnippets {
				continue
			}
			others++
		}
		c.Text = FirstSentences(c.Text, snippetSentenceLimit)
		fused = append(fused, c)
	}
	return fused
}

func isEcho(c Snippet, normalizedQuery string) bool {
	if strings.TrimSpace(strings.ToLower(c.Text)) == normalizedQuery {
		return true
	}
	return c.Similarity > echoSimilarityThreshold
}

// FormatSnippets renders fused snippets with a source tag per item.
func FormatSnippets(snippets []Snippet) string {
	var sb strings.Builder
	for i, s := range snippets {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(snippetTag(s))
		sb.WriteString(" ")
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func snippetTag(s Snippet) string {
	switch s.Kind {
	case SnippetSummary:
		return fmt.Sprintf("[Summary %s]", s.Metadata["date"])
	case SnippetFact:
		return "[Profile]"
	default:
		if raw := s.Metadata["timestamp"]; raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				return fmt.Sprintf("[%s]", ts.Format("January 2"))
			}
		}
		return "[Past conversation]"
	}
}

// FirstSentences returns up to n sentences of text, space-joined. Text
// already within the budget comes back unchanged.
func FirstSentences(text string, n int) string {
	sentences := SplitSentences(text)
	if n <= 0 || len(sentences) <= n {
		return text
	}
	return strings.Join(sentences[:n], " ")
}

// SplitSentences splits on sentence-terminal punctuation, dropping empty
// fragments. The terminator stays attached to its sentence.
func SplitSentences(text string) []string {
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
