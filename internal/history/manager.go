// ABOUTME: Conversation list cache with wholesale refresh and two-step deletion
// ABOUTME: Concurrent refreshes collapse into one call; deletions are single-flight per id

package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/dedupe"
	"github.com/2389/vnguide/internal/i18n"
)

var (
	// ErrNoDeletionIntent is returned by ConfirmDeletion when nothing was requested.
	ErrNoDeletionIntent = errors.New("no deletion requested")
	// ErrDeletionInFlight is returned when the same id is already being deleted.
	ErrDeletionInFlight = errors.New("deletion already in progress")
	// ErrNotFound is returned by Resolve for an unknown reference.
	ErrNotFound = errors.New("conversation not found")
	// ErrAmbiguous is returned by Resolve when an id prefix matches several conversations.
	ErrAmbiguous = errors.New("conversation reference is ambiguous")
)

// Backend is the subset of the API client the manager needs.
type Backend interface {
	ListConversations(ctx context.Context) ([]api.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) (*api.Ack, error)
}

// ActiveConversation is the part of the conversation store consulted on delete.
type ActiveConversation interface {
	// ResetIfActive atomically resets the active conversation when its id is id.
	ResetIfActive(id string) bool
}

// DeletionIntent is a pending request to delete one conversation.
type DeletionIntent struct {
	TargetID  string
	Confirmed bool
}

// Manager caches conversation summaries and runs deletions.
type Manager struct {
	backend  Backend
	active   ActiveConversation
	events   *conversation.Broadcaster
	inflight *dedupe.Markers
	logger   *slog.Logger

	refreshGroup singleflight.Group

	mu        sync.Mutex
	summaries []api.ConversationSummary
	loaded    bool
	stale     bool
	gen       uint64 // bumped by Invalidate
	applied   uint64 // gen of the fetch that produced summaries
	refreshed time.Time
	intent    *DeletionIntent
}

// Options configures a Manager.
type Options struct {
	Backend Backend
	Active  ActiveConversation
	Events  *conversation.Broadcaster
	// MarkerTTL bounds how long a stuck deletion blocks a retry. Zero uses dedupe.DefaultTTL.
	MarkerTTL time.Duration
	Logger    *slog.Logger
}

// New creates a Manager. Call Close to stop the marker sweeper.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:  opts.Backend,
		active:   opts.Active,
		events:   opts.Events,
		inflight: dedupe.New(opts.MarkerTTL, 256),
		logger:   logger.With("component", "history"),
	}
}

// Close releases background resources.
func (m *Manager) Close() {
	m.inflight.Close()
}

// Summaries returns a copy of the cached list without touching the network.
func (m *Manager) Summaries() []api.ConversationSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.ConversationSummary(nil), m.summaries...)
}

// LastRefreshed returns when the cache was last replaced, zero if never.
func (m *Manager) LastRefreshed() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshed
}

// Invalidate marks the cache stale so the next List refreshes it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.stale = true
	m.gen++
	m.mu.Unlock()
	m.logger.Debug("conversation list invalidated")
}

// List returns the cached summaries, refreshing first when the cache was never
// loaded or has been invalidated. A failed refresh returns the previous cache
// along with the error.
func (m *Manager) List(ctx context.Context) ([]api.ConversationSummary, error) {
	m.mu.Lock()
	fresh := m.loaded && !m.stale
	m.mu.Unlock()

	if !fresh {
		if err := m.Refresh(ctx); err != nil {
			return m.Summaries(), err
		}
	}
	return m.Summaries(), nil
}

// Refresh fetches the list and replaces the cache wholesale. Concurrent calls
// made between the same two invalidations share one network request; a call
// made after an invalidation never joins a fetch that started before it. On
// failure the cache is kept and a notice is published.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	key := "refresh/" + strconv.FormatUint(gen, 10)
	_, err, shared := m.refreshGroup.Do(key, func() (any, error) {
		list, err := m.backend.ListConversations(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.loaded && gen < m.applied {
			m.logger.Debug("dropping list fetched before a newer refresh", "gen", gen, "applied", m.applied)
			return nil, nil
		}
		m.summaries = append([]api.ConversationSummary(nil), list...)
		m.loaded = true
		m.applied = gen
		// An invalidation that raced this fetch keeps the cache stale.
		m.stale = m.gen != gen
		m.refreshed = time.Now()
		return nil, nil
	})
	if shared {
		m.logger.Debug("joined in-flight refresh")
	}
	if err != nil {
		m.logger.Warn("failed to refresh conversation list", "error", err)
		m.events.Publish(conversation.Event{Kind: conversation.EventNotice, Notice: i18n.KeyRefreshFailed, Err: err})
		return fmt.Errorf("refreshing conversations: %w", err)
	}

	m.events.Publish(conversation.Event{Kind: conversation.EventList})
	return nil
}

// RequestDeletion records the intent to delete id. No network activity.
func (m *Manager) RequestDeletion(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	m.mu.Lock()
	m.intent = &DeletionIntent{TargetID: id}
	m.mu.Unlock()
	m.logger.Debug("deletion requested", "conversation_id", id)
}

// CancelDeletion clears any pending intent. No network activity.
func (m *Manager) CancelDeletion() {
	m.mu.Lock()
	m.intent = nil
	m.mu.Unlock()
}

// PendingDeletion returns the pending intent, if any.
func (m *Manager) PendingDeletion() (DeletionIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intent == nil {
		return DeletionIntent{}, false
	}
	return *m.intent, true
}

// ConfirmDeletion deletes the conversation named by the pending intent.
// While a delete for the same id is in flight, further confirms return
// ErrDeletionInFlight without another request. On success the active
// conversation is reset if it was the one deleted, then the list is refreshed.
// On failure the list and the active conversation are left unchanged.
// The intent is cleared once the attempt completes either way.
func (m *Manager) ConfirmDeletion(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.intent == nil {
		m.mu.Unlock()
		return "", ErrNoDeletionIntent
	}
	intent := m.intent
	id := intent.TargetID
	m.mu.Unlock()

	token, ok := m.inflight.Acquire(id)
	if !ok {
		m.logger.Debug("deletion already in flight", "conversation_id", id)
		return id, ErrDeletionInFlight
	}
	defer m.inflight.Release(id, token)

	m.mu.Lock()
	intent.Confirmed = true
	m.mu.Unlock()

	_, err := m.backend.DeleteConversation(ctx, id)

	m.mu.Lock()
	if m.intent == intent {
		m.intent = nil
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("failed to delete conversation",
			"conversation_id", id,
			"error", err)
		m.events.Publish(conversation.Event{Kind: conversation.EventNotice, ConversationID: id, Notice: i18n.KeyDeleteFailed, Err: err})
		return id, fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	m.logger.Info("conversation deleted", "conversation_id", id)
	if m.active != nil {
		m.active.ResetIfActive(id)
	}

	// Any list fetched before the delete is now outdated. A failed refresh
	// leaves the cache stale for the next List.
	m.Invalidate()
	_ = m.Refresh(ctx)
	return id, nil
}

// Resolve maps a user reference to a cached conversation id. ref is either a
// 1-based position in the cached list or a unique id prefix.
func (m *Manager) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(m.summaries) {
			return m.summaries[n-1].ID, nil
		}
	}

	match := ""
	for _, s := range m.summaries {
		if s.ID == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", ErrAmbiguous
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", ErrNotFound
	}
	return match, nil
}
