package dispatcher

import (
	"context"

	"github.com/garyjia/agency-ops/internal/domain/event"
)

// Handler processes workflow events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	Handler     Handler
	Description string
}

// Filter wraps h so it only sees events accepted by match
func Filter(match func(evt *event.Event) bool, h Handler) Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if !match(evt) {
			return nil
		}
		return h(ctx, evt)
	}
}

// ForTypes matches events whose type is one of types
func ForTypes(types ...event.Type) func(evt *event.Event) bool {
	set := make(map[event.Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(evt *event.Event) bool {
		_, ok := set[evt.Type]
		return ok
	}
}
