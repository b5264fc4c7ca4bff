// Package router decides, per incoming message, whether the answer can
// be produced deterministically from structured records. Handlers run in
// a fixed priority order; the first one that produces a response wins
// and generation is skipped entirely.
package router

import (
	"context"
	"log"
	"time"

	"github.com/carelyhq/carely/internal/safety"
)

// Request is one inbound user message.
type Request struct {
	UserID  int64
	Message string
	Now     time.Time
}

// Response is a fast-path answer. ConversationType tags the persisted
// turn with which path produced it.
type Response struct {
	Text             string
	ConversationType string
}

// Handler is one guarded fast path. A nil response with nil error means
// "not mine, try the next one".
type Handler interface {
	Name() string
	Handle(ctx context.Context, req Request) (*Response, error)
}

// Router evaluates handlers in order, first match wins. Handler errors
// are logged and treated as a non-match so a broken fast path degrades
// to generation instead of failing the turn.
type Router struct {
	handlers []Handler
}

func New(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

// Route returns the first handler response, or nil when the message
// needs the full generation pipeline. Messages carrying high or critical
// emergency signals always go to the full pipeline: a utility answer
// must not swallow "chest pain" just because the words "next pill" are
// also present.
func (r *Router) Route(ctx context.Context, req Request) *Response {
	if assessment := safety.AssessEmergency(req.Message); assessment.IsEmergency {
		return nil
	}

	for _, h := range r.handlers {
		resp, err := h.Handle(ctx, req)
		if err != nil {
			log.Printf("[router] handler %s failed, falling through: %v", h.Name(), err)
			continue
		}
		if resp != nil {
			return resp
		}
	}
	return nil
}
