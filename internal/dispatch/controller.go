// ABOUTME: Auto-dispatch controller that sends a seed message exactly once into a fresh conversation
// ABOUTME: The dispatched flag is set before the send so re-evaluation can never fire twice

package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/2389/vnguide/internal/pipeline"
)

// Guard atomically checks that the active conversation is fresh and marks it
// as auto-dispatched. It reports whether the mark was made.
type Guard interface {
	MarkAutoDispatched() bool
}

// Sender submits text through the send pipeline.
type Sender interface {
	Send(ctx context.Context, text string) pipeline.Result
}

// Controller turns seed messages into a single outbound send.
type Controller struct {
	guard  Guard
	sender Sender
	logger *slog.Logger
}

// NewController creates a Controller.
func NewController(guard Guard, sender Sender, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		guard:  guard,
		sender: sender,
		logger: logger.With("component", "dispatch"),
	}
}

// Offer sends seed if it is non-empty and the active conversation is fresh:
// never auto-dispatched, not sending, and without messages. It reports
// whether the seed was dispatched.
func (c *Controller) Offer(ctx context.Context, seed string) (pipeline.Result, bool) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return pipeline.Result{}, false
	}
	if !c.guard.MarkAutoDispatched() {
		c.logger.Debug("seed ignored, conversation is not fresh")
		return pipeline.Result{}, false
	}

	c.logger.Debug("dispatching seed message", "length", len(seed))
	return c.sender.Send(ctx, seed), true
}

// Drain consumes the outstanding seed, if any, and offers it. The seed is
// discarded whether or not it fires.
func (c *Controller) Drain(ctx context.Context, seed *Seed) (pipeline.Result, bool) {
	text, ok := seed.Take()
	if !ok {
		return pipeline.Result{}, false
	}
	return c.Offer(ctx, text)
}
