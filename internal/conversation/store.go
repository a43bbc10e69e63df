// ABOUTME: Store owns the single active conversation state and is its only mutator
// ABOUTME: Handles reset/load/optimistic append/send resolution with stale-response discarding

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/i18n"
)

var (
	// ErrEmptyMessage is returned by BeginSend for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned by BeginSend while another send is pending.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrStale is returned when a result arrives for a state instance that is no longer active.
	ErrStale = errors.New("stale response for inactive conversation")
	// ErrNoConversation is returned by Load for an empty id.
	ErrNoConversation = errors.New("conversation id required")
)

// Loader fetches a conversation from the backend.
type Loader interface {
	LoadConversation(ctx context.Context, id string) (*api.ConversationDetail, error)
}

// Invalidator is told when a new conversation id appears so cached lists can be refreshed.
type Invalidator interface {
	Invalidate()
}

// Store holds exactly one active State.
type Store struct {
	mu          sync.Mutex
	state       State
	loader      Loader
	invalidator Invalidator
	events      *Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore creates a Store with an empty conversation. events may be nil.
func NewStore(loader Loader, events *Broadcaster, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:  State{Instance: uuid.New().String()},
		loader: loader,
		events: events,
		logger: logger.With("component", "conversation_store"),
		now:    time.Now,
	}
}

// SetInvalidator configures who is told about newly adopted conversation ids.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidator = inv
}

// Snapshot returns a deep copy of the active state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// ActiveID returns the active conversation id, or "" for an unsaved conversation.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

// IsSending reports whether a send is in flight for the active state.
func (s *Store) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsSending
}

// Reset replaces the active state with a fresh empty conversation.
func (s *Store) Reset() {
	s.mu.Lock()
	prev := s.state.ID
	s.state = State{Instance: uuid.New().String()}
	instance := s.state.Instance
	s.mu.Unlock()

	s.logger.Debug("conversation reset",
		"previous_id", prev,
		"instance", instance)
	s.events.Publish(Event{Kind: EventReset, Instance: instance})
}

// ResetIfActive resets the state only when id is the active conversation. The
// check and the reset happen under one lock, so a load finishing concurrently is
// either replaced or left untouched, never half-applied. It reports whether it reset.
func (s *Store) ResetIfActive(id string) bool {
	s.mu.Lock()
	if id == "" || s.state.ID != id {
		s.mu.Unlock()
		return false
	}
	s.state = State{Instance: uuid.New().String()}
	instance := s.state.Instance
	s.mu.Unlock()

	s.logger.Debug("active conversation reset after delete",
		"previous_id", id,
		"instance", instance)
	s.events.Publish(Event{Kind: EventReset, Instance: instance})
	return true
}

// Load replaces the active state with the backend's version of id.
// It is a no-op when id is already active. On failure the prior state is kept
// and a notice is published.
func (s *Store) Load(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoConversation
	}

	s.mu.Lock()
	if s.state.ID == id {
		s.mu.Unlock()
		return nil
	}
	issuedFor := s.state.Instance
	s.mu.Unlock()

	detail, err := s.loader.LoadConversation(ctx, id)
	if err != nil {
		s.logger.Warn("failed to load conversation",
			"conversation_id", id,
			"error", err)
		s.events.Publish(Event{Kind: EventNotice, Instance: issuedFor, ConversationID: id, Notice: i18n.KeyLoadFailed, Err: err})
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}

	loadedID := detail.ID
	if loadedID == "" {
		loadedID = id
	}
	msgs := make([]Message, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		msgs = append(msgs, Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.Time,
		})
	}

	s.mu.Lock()
	if s.state.Instance != issuedFor {
		s.mu.Unlock()
		s.logger.Debug("discarding stale load", "conversation_id", id)
		return ErrStale
	}
	s.state = State{
		Instance: uuid.New().String(),
		ID:       loadedID,
		Messages: msgs,
	}
	instance := s.state.Instance
	s.mu.Unlock()

	s.logger.Debug("conversation loaded",
		"conversation_id", loadedID,
		"messages", len(msgs),
		"instance", instance)
	s.events.Publish(Event{Kind: EventLoaded, Instance: instance, ConversationID: loadedID})
	return nil
}

// BeginSend optimistically appends the user's message and marks the state as sending.
func (s *Store) BeginSend(text string) (Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state.IsSending {
		s.mu.Unlock()
		return Ticket{}, ErrSendInFlight
	}
	msg := Message{Role: api.RoleUser, Content: text, Timestamp: s.now()}
	s.state.Messages = append(s.state.Messages, msg)
	s.state.IsSending = true
	ticket := Ticket{
		Instance:       s.state.Instance,
		ConversationID: s.state.ID,
		Text:           text,
	}
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventAppended, Instance: ticket.Instance, ConversationID: ticket.ConversationID, Message: &msg})
	s.events.Publish(Event{Kind: EventSending, Instance: ticket.Instance, Sending: true})
	return ticket, nil
}

// ResolveSend applies a successful response to the state the ticket was issued for.
func (s *Store) ResolveSend(ticket Ticket, resp *api.ChatResponse) error {
	if resp == nil {
		return fmt.Errorf("nil chat response")
	}

	s.mu.Lock()
	if s.state.Instance != ticket.Instance {
		inv := s.invalidator
		s.mu.Unlock()
		s.logger.Debug("discarding stale send response", "instance", ticket.Instance)
		// A first send still created the conversation on the backend.
		if ticket.ConversationID == "" && resp.ConversationID != "" && inv != nil {
			inv.Invalidate()
		}
		return ErrStale
	}

	adopted := false
	switch {
	case s.state.ID == "" && resp.ConversationID != "":
		s.state.ID = resp.ConversationID
		adopted = true
	case resp.ConversationID != "" && resp.ConversationID != s.state.ID:
		s.logger.Warn("backend returned a different conversation id, keeping the active one",
			"active_id", s.state.ID,
			"returned_id", resp.ConversationID)
	}

	msg := Message{
		Role:              api.RoleAssistant,
		Content:           resp.Message,
		Timestamp:         s.now(),
		FollowUpQuestions: append([]string(nil), resp.FollowUpQuestions...),
		Links:             append([]api.Link(nil), resp.Links...),
	}
	s.state.Messages = append(s.state.Messages, msg)
	id := s.state.ID
	inv := s.invalidator
	s.mu.Unlock()

	if adopted {
		s.logger.Debug("conversation id adopted", "conversation_id", id)
		s.events.Publish(Event{Kind: EventIdentity, Instance: ticket.Instance, ConversationID: id})
		if inv != nil {
			inv.Invalidate()
		}
	}
	s.events.Publish(Event{Kind: EventAppended, Instance: ticket.Instance, ConversationID: id, Message: &msg})
	return nil
}

// ResolveSendFailure appends a single assistant-role failure notice. The id is untouched.
func (s *Store) ResolveSendFailure(ticket Ticket, notice string) error {
	s.mu.Lock()
	if s.state.Instance != ticket.Instance {
		s.mu.Unlock()
		s.logger.Debug("discarding stale send failure", "instance", ticket.Instance)
		return ErrStale
	}
	msg := Message{
		Role:      api.RoleAssistant,
		Content:   notice,
		Timestamp: s.now(),
		Failed:    true,
	}
	s.state.Messages = append(s.state.Messages, msg)
	id := s.state.ID
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventAppended, Instance: ticket.Instance, ConversationID: id, Message: &msg})
	return nil
}

// FinishSend clears the sending flag for the ticket's state. Always call it, via defer.
func (s *Store) FinishSend(ticket Ticket) {
	s.mu.Lock()
	if s.state.Instance != ticket.Instance || !s.state.IsSending {
		s.mu.Unlock()
		return
	}
	s.state.IsSending = false
	s.mu.Unlock()

	s.events.Publish(Event{Kind: EventSending, Instance: ticket.Instance, Sending: false})
}

// MarkAutoDispatched sets HasAutoDispatched when the active state is a genuinely
// fresh conversation: not yet auto-dispatched, not sending, and without messages.
// It reports whether the mark was made.
func (s *Store) MarkAutoDispatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.HasAutoDispatched || s.state.IsSending || len(s.state.Messages) > 0 {
		return false
	}
	s.state.HasAutoDispatched = true
	return true
}
