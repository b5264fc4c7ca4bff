package router

import (
	"context"
	"strings"

	"github.com/carelyhq/carely/internal/memory"
)

var recallKeywords = []string{
	"remember", "talked about", "discussed",
	"breakfast", "lunch", "dinner",
	"yesterday", "summary",
}

// MemoryRecallHandler delegates memory-specific questions to the
// facade's targeted recall, bypassing the general fusion path.
type MemoryRecallHandler struct {
	Memory *memory.Manager
}

func (h *MemoryRecallHandler) Name() string { return "memory_recall" }

func (h *MemoryRecallHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	lower := strings.ToLower(req.Message)
	if !containsAny(lower, recallKeywords...) {
		return nil, nil
	}

	return &Response{
		Text:             h.Memory.Recall(ctx, req.UserID, req.Message),
		ConversationType: "memory_recall",
	}, nil
}
