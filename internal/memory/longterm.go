package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
)

// Snippet kinds stored in the long-term index.
const (
	SnippetConversation = "conversation"
	SnippetSummary      = "summary"
	SnippetFact         = "fact"
)

// Snippet is one long-term memory item, with a similarity score in [0,1]
// when returned from a query.
type Snippet struct {
	ID         string
	UserID     int64
	Kind       string
	Text       string
	Metadata   map[string]string
	Similarity float64
}

// LongTermStore is a persistent similarity-searchable index of past
// conversations, daily summaries and profile facts. Each user gets an
// isolated collection. Document ids are deterministic for conversation
// and summary entries, so re-indexing is an upsert.
type LongTermStore struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.Mutex
	collections map[int64]*chromem.Collection
}

func NewLongTermStore(path string, embedder Embedder) (*LongTermStore, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return &LongTermStore{
		db:          db,
		embedder:    embedder,
		collections: make(map[int64]*chromem.Collection),
	}, nil
}

func (s *LongTermStore) collection(userID int64) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	embeddingFunc := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	})
	col, err := s.db.GetOrCreateCollection(fmt.Sprintf("user_%d", userID), nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("get collection for user %d: %w", userID, err)
	}
	s.collections[userID] = col
	return col, nil
}

// IndexTurn upserts one conversation exchange under a deterministic id,
// so indexing the same turn twice keeps exactly one document.
func (s *LongTermStore) IndexTurn(ctx context.Context, userID, turnID int64, message, response string, ts time.Time) error {
	col, err := s.collection(userID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("user_%d_conv_%d", userID, turnID),
		Content: fmt.Sprintf("User: %s\nCarely: %s", message, response),
		Metadata: map[string]string{
			"kind":            SnippetConversation,
			"conversation_id": fmt.Sprintf("%d", turnID),
			"timestamp":       ts.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index turn %d: %w", turnID, err)
	}
	return nil
}

// IndexSummary upserts the daily summary for one civil day (YYYY-MM-DD).
func (s *LongTermStore) IndexSummary(ctx context.Context, userID int64, date, summary string, topics []string) error {
	col, err := s.collection(userID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("user_%d_summary_%s", userID, date),
		Content: summary,
		Metadata: map[string]string{
			"kind":   SnippetSummary,
			"date":   date,
			"topics": strings.Join(topics, ","),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index summary %s: %w", date, err)
	}
	return nil
}

// IndexFact stores one profile fact. Facts have no natural key, so each
// gets a fresh id.
func (s *LongTermStore) IndexFact(ctx context.Context, userID int64, category, fact string) error {
	col, err := s.collection(userID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("user_%d_fact_%s_%s", userID, category, uuid.NewString()),
		Content: fact,
		Metadata: map[string]string{
			"kind":     SnippetFact,
			"category": category,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index fact: %w", err)
	}
	return nil
}

// Query returns up to topN snippets for a user ranked by similarity.
func (s *LongTermStore) Query(ctx context.Context, userID int64, text string, topN int) ([]Snippet, error) {
	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size.
	if count := col.Count(); topN > count {
		topN = count
	}
	if topN <= 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, text, topN, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query long-term memory: %w", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		kind := r.Metadata["kind"]
		if kind == "" {
			log.Printf("[longterm] skipping document %s without kind", r.ID)
			continue
		}
		snippets = append(snippets, Snippet{
			ID:         r.ID,
			UserID:     userID,
			Kind:       kind,
			Text:       r.Content,
			Metadata:   r.Metadata,
			Similarity: float64(r.Similarity),
		})
	}
	return snippets, nil
}
