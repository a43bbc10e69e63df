// ABOUTME: Conversation state, message and event types owned by the Store
// ABOUTME: Snapshots are deep copies so callers can never mutate the active state

package conversation

import (
	"time"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/i18n"
)

// Message is one turn in the active conversation. Immutable once appended.
type Message struct {
	Role              string
	Content           string
	Timestamp         time.Time
	FollowUpQuestions []string
	Links             []api.Link
	// Failed marks the locally generated notice shown when a send fails.
	Failed bool
}

// clone returns a copy that shares no slices with m.
func (m Message) clone() Message {
	if m.FollowUpQuestions != nil {
		m.FollowUpQuestions = append([]string(nil), m.FollowUpQuestions...)
	}
	if m.Links != nil {
		m.Links = append([]api.Link(nil), m.Links...)
	}
	return m
}

// State is the active conversation. Instance changes whenever the state is
// created or replaced; in-flight requests are tagged with it.
type State struct {
	Instance          string
	ID                string // empty until the backend assigns one
	Messages          []Message
	IsSending         bool
	HasAutoDispatched bool
}

func (s State) clone() State {
	msgs := make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.clone()
	}
	s.Messages = msgs
	return s
}

// LastAssistant returns the most recent non-failure assistant message.
func (s State) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == api.RoleAssistant && !m.Failed {
			return m, true
		}
	}
	return Message{}, false
}

// Ticket identifies one send attempt and the state instance it was issued for.
type Ticket struct {
	Instance       string
	ConversationID string
	Text           string
}

// EventKind classifies a published Event.
type EventKind string

const (
	EventAppended EventKind = "appended" // Message was appended
	EventReset    EventKind = "reset"    // fresh empty conversation
	EventLoaded   EventKind = "loaded"   // state replaced from the backend
	EventIdentity EventKind = "identity" // conversation id adopted
	EventSending  EventKind = "sending"  // Sending flag changed
	EventNotice   EventKind = "notice"   // non-fatal failure for the user
	EventList     EventKind = "list"     // conversation list replaced
)

// Event is published to Broadcaster subscribers.
type Event struct {
	Kind           EventKind
	Instance       string
	ConversationID string
	Message        *Message
	Sending        bool
	Notice         i18n.Key
	Err            error
}
