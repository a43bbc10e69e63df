// ABOUTME: Send pipeline driving one message round-trip through Idle/Sending/Succeeded/Failed
// ABOUTME: Every send ends with a resolution in the store and a guaranteed return to Idle

package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/i18n"
)

// Phase is a state of the send machine.
type Phase string

const (
	Idle      Phase = "idle"
	Sending   Phase = "sending"
	Succeeded Phase = "succeeded"
	Failed    Phase = "failed"
)

// Outcome is how a single Send call ended.
type Outcome string

const (
	// OutcomeSkipped means the entry guard rejected the input. Nothing changed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeSucceeded means the assistant reply was appended.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means a failure notice was appended.
	OutcomeFailed Outcome = "failed"
	// OutcomeStale means the conversation changed while the request was in flight
	// and the result was dropped.
	OutcomeStale Outcome = "stale"
)

// Result describes a finished Send.
type Result struct {
	Outcome        Outcome
	ConversationID string
	Reply          *api.ChatResponse
	// Err is the skip reason, the backend failure, or nil on success.
	Err error
}

// Sender performs the chat round trip.
type Sender interface {
	SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// Store is the part of the conversation store the pipeline drives.
type Store interface {
	BeginSend(text string) (conversation.Ticket, error)
	ResolveSend(ticket conversation.Ticket, resp *api.ChatResponse) error
	ResolveSendFailure(ticket conversation.Ticket, notice string) error
	FinishSend(ticket conversation.Ticket)
	IsSending() bool
}

// LanguageFunc reports the language to send with and to localize failures in.
type LanguageFunc func() i18n.Lang

// Pipeline runs sends against one conversation store.
type Pipeline struct {
	store    Store
	sender   Sender
	language LanguageFunc
	logger   *slog.Logger
}

// New creates a Pipeline. A nil language defaults to i18n.Default.
func New(store Store, sender Sender, language LanguageFunc, logger *slog.Logger) *Pipeline {
	if language == nil {
		language = func() i18n.Lang { return i18n.Default }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		sender:   sender,
		language: language,
		logger:   logger.With("component", "pipeline"),
	}
}

// State reports Sending while the active conversation has a send in flight, else Idle.
// Succeeded and Failed are transient and surface only through Result and logs.
func (p *Pipeline) State() Phase {
	if p.store.IsSending() {
		return Sending
	}
	return Idle
}

// Send submits text as the user's next message. Empty input or a send already
// in flight is a no-op reported as OutcomeSkipped. Backend failures never
// escape as a dangling user turn: a localized notice is appended instead.
func (p *Pipeline) Send(ctx context.Context, text string) Result {
	ticket, err := p.store.BeginSend(text)
	if err != nil {
		p.logger.Debug("send skipped", "reason", err)
		return Result{Outcome: OutcomeSkipped, Err: err}
	}
	defer func() {
		p.store.FinishSend(ticket)
		p.transition(ticket, Idle)
	}()
	p.transition(ticket, Sending)

	lang := p.language()
	resp, err := p.sender.SendMessage(ctx, api.ChatRequest{
		Message:        ticket.Text,
		ConversationID: ticket.ConversationID,
		Language:       string(lang),
	})
	if err != nil {
		p.logger.Warn("send failed",
			"conversation_id", ticket.ConversationID,
			"error", err)
		if rerr := p.store.ResolveSendFailure(ticket, i18n.FailureNotice(p.language())); errors.Is(rerr, conversation.ErrStale) {
			return Result{Outcome: OutcomeStale, ConversationID: ticket.ConversationID, Err: err}
		}
		p.transition(ticket, Failed)
		return Result{Outcome: OutcomeFailed, ConversationID: ticket.ConversationID, Err: err}
	}

	if rerr := p.store.ResolveSend(ticket, resp); rerr != nil {
		if errors.Is(rerr, conversation.ErrStale) {
			return Result{Outcome: OutcomeStale, ConversationID: resp.ConversationID, Reply: resp}
		}
		// Only a nil response reaches here, which SendMessage never returns without an error.
		_ = p.store.ResolveSendFailure(ticket, i18n.FailureNotice(p.language()))
		p.transition(ticket, Failed)
		return Result{Outcome: OutcomeFailed, ConversationID: ticket.ConversationID, Err: rerr}
	}

	p.transition(ticket, Succeeded)
	return Result{Outcome: OutcomeSucceeded, ConversationID: resp.ConversationID, Reply: resp}
}

// FollowUp sends a suggested question exactly as if it had been typed.
// It is disabled while a send is in flight.
func (p *Pipeline) FollowUp(ctx context.Context, question string) Result {
	if p.store.IsSending() {
		p.logger.Debug("follow-up skipped while sending")
		return Result{Outcome: OutcomeSkipped, Err: conversation.ErrSendInFlight}
	}
	return p.Send(ctx, question)
}

func (p *Pipeline) transition(ticket conversation.Ticket, to Phase) {
	p.logger.Debug("send transition",
		"instance", ticket.Instance,
		"conversation_id", ticket.ConversationID,
		"phase", to)
}
