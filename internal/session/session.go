// ABOUTME: Session wires the conversation store, list manager, send pipeline and auto-dispatch together
// ABOUTME: It is the single surface the CLI drives, and it remembers language and last conversation

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/destinations"
	"github.com/2389/vnguide/internal/dispatch"
	"github.com/2389/vnguide/internal/history"
	"github.com/2389/vnguide/internal/i18n"
	"github.com/2389/vnguide/internal/pipeline"
)

// Session errors
var (
	// ErrNoSuggestion is returned when a follow-up index has no matching question.
	ErrNoSuggestion = errors.New("no such suggested question")
	// ErrNothingToSpeak is returned when speech is requested without text or a reply.
	ErrNothingToSpeak = errors.New("nothing to speak")
)

// Backend is every backend call a session makes. *api.Client implements it.
type Backend interface {
	SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	ListConversations(ctx context.Context) ([]api.ConversationSummary, error)
	LoadConversation(ctx context.Context, id string) (*api.ConversationDetail, error)
	DeleteConversation(ctx context.Context, id string) (*api.Ack, error)
	SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error)
	ListDestinations(ctx context.Context, filter api.DestinationFilter) ([]api.Destination, error)
}

// Preferences persists the language and the last active conversation.
// *prefs.Store implements it.
type Preferences interface {
	Language(ctx context.Context) (string, error)
	SetLanguage(ctx context.Context, lang string) error
	LastConversation(ctx context.Context) (string, error)
	SetLastConversation(ctx context.Context, id string) error
	ForgetConversation(ctx context.Context, id string) error
}

// Options configures a Session.
type Options struct {
	Backend Backend
	// Prefs is optional; nil disables persistence.
	Prefs Preferences
	// Language is used until a remembered preference or SetLanguage replaces it.
	Language i18n.Lang
	// RestoreLast reopens the remembered conversation in Start.
	RestoreLast bool
	MarkerTTL   time.Duration
	Logger      *slog.Logger
}

// Session is one user's chat surface.
type Session struct {
	backend Backend
	prefs   Preferences
	restore bool

	events     *conversation.Broadcaster
	store      *conversation.Store
	history    *history.Manager
	pipeline   *pipeline.Pipeline
	controller *dispatch.Controller
	browser    *destinations.Browser
	seed       dispatch.Seed
	lang       *i18n.Selector

	logger *slog.Logger
}

// New creates a Session. Call Start to restore preferences and Close when done.
func New(opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.Language
	if lang == "" {
		lang = i18n.Default
	}

	s := &Session{
		backend: opts.Backend,
		prefs:   opts.Prefs,
		restore: opts.RestoreLast,
		lang:    i18n.NewSelector(lang),
		logger:  logger.With("component", "session"),
	}

	s.events = conversation.NewBroadcaster(logger)
	s.store = conversation.NewStore(opts.Backend, s.events, logger)
	s.history = history.New(history.Options{
		Backend:   opts.Backend,
		Active:    s.store,
		Events:    s.events,
		MarkerTTL: opts.MarkerTTL,
		Logger:    logger,
	})
	s.store.SetInvalidator(s.history)
	s.pipeline = pipeline.New(s.store, opts.Backend, s.lang.Get, logger)
	s.controller = dispatch.NewController(s.store, s.pipeline, logger)
	s.browser = destinations.NewBrowser(opts.Backend, logger)
	return s, nil
}

// Start applies the remembered language and, when enabled, reopens the last
// conversation. Preference or load failures are logged, never fatal.
func (s *Session) Start(ctx context.Context) {
	if s.prefs == nil {
		return
	}

	if code, err := s.prefs.Language(ctx); err != nil {
		s.logger.Warn("failed to read language preference", "error", err)
	} else if lang, ok := i18n.Parse(code); ok && code != "" {
		s.lang.Set(lang)
	}

	if !s.restore {
		return
	}
	id, err := s.prefs.LastConversation(ctx)
	if err != nil {
		s.logger.Warn("failed to read last conversation", "error", err)
		return
	}
	if id == "" {
		return
	}
	if err := s.store.Load(ctx, id); err != nil {
		s.logger.Info("could not restore last conversation", "conversation_id", id, "error", err)
		if api.StatusCode(err) == http.StatusNotFound {
			s.forget(ctx, id)
		}
		return
	}
	s.logger.Debug("restored last conversation", "conversation_id", id)
}

// Close releases the list manager and closes every subscription.
func (s *Session) Close() {
	s.history.Close()
	s.events.Close()
}

// Subscribe returns a channel of state events until ctx is done.
func (s *Session) Subscribe(ctx context.Context) (<-chan conversation.Event, string) {
	return s.events.Subscribe(ctx)
}

// Unsubscribe ends a subscription early.
func (s *Session) Unsubscribe(subID string) {
	s.events.Unsubscribe(subID)
}

// Snapshot returns a copy of the active conversation.
func (s *Session) Snapshot() conversation.State {
	return s.store.Snapshot()
}

// Phase reports whether a send is in flight.
func (s *Session) Phase() pipeline.Phase {
	return s.pipeline.State()
}

// Language returns the current language.
func (s *Session) Language() i18n.Lang {
	return s.lang.Get()
}

// SetLanguage switches the language for subsequent sends and remembers it.
func (s *Session) SetLanguage(ctx context.Context, lang i18n.Lang) error {
	if !i18n.Valid(string(lang)) {
		return fmt.Errorf("unsupported language %q", lang)
	}
	s.lang.Set(lang)
	s.logger.Debug("language changed", "language", lang)
	if s.prefs == nil {
		return nil
	}
	if err := s.prefs.SetLanguage(ctx, string(lang)); err != nil {
		s.logger.Warn("failed to remember language", "error", err)
		return fmt.Errorf("saving language: %w", err)
	}
	return nil
}

// NewChat starts a fresh, empty conversation.
func (s *Session) NewChat(ctx context.Context) {
	s.store.Reset()
	s.remember(ctx, "")
}

// Select makes the conversation with id active, loading it from the backend.
func (s *Session) Select(ctx context.Context, id string) error {
	if err := s.store.Load(ctx, id); err != nil {
		return err
	}
	s.remember(ctx, s.store.ActiveID())
	return nil
}

// Send submits a user message to the active conversation.
func (s *Session) Send(ctx context.Context, text string) pipeline.Result {
	res := s.pipeline.Send(ctx, text)
	s.afterSend(ctx, res)
	return res
}

// FollowUp sends the n-th (1-based) suggested question of the latest reply.
func (s *Session) FollowUp(ctx context.Context, n int) pipeline.Result {
	last, ok := s.store.Snapshot().LastAssistant()
	if !ok || n < 1 || n > len(last.FollowUpQuestions) {
		return pipeline.Result{Outcome: pipeline.OutcomeSkipped, Err: ErrNoSuggestion}
	}
	res := s.pipeline.FollowUp(ctx, last.FollowUpQuestions[n-1])
	s.afterSend(ctx, res)
	return res
}

// SeedMessage opens a fresh conversation and auto-sends text into it once.
// It reports whether the seed was dispatched.
func (s *Session) SeedMessage(ctx context.Context, text string) (pipeline.Result, bool) {
	if strings.TrimSpace(text) == "" {
		return pipeline.Result{}, false
	}
	s.seed.Set(text)
	s.NewChat(ctx)
	res, fired := s.controller.Drain(ctx, &s.seed)
	if fired {
		s.afterSend(ctx, res)
	}
	return res, fired
}

// StartDestinationChat seeds a fresh conversation with the destination's localized name.
func (s *Session) StartDestinationChat(ctx context.Context, d api.Destination) (pipeline.Result, bool) {
	return s.SeedMessage(ctx, destinations.SeedText(d, s.lang.Get()))
}

// Destinations lists destinations matching f in the current language.
func (s *Session) Destinations(ctx context.Context, f destinations.Filter) ([]api.Destination, error) {
	return s.browser.List(ctx, f, s.lang.Get())
}

// Conversations returns the cached list, refreshing it when stale.
func (s *Session) Conversations(ctx context.Context) ([]api.ConversationSummary, error) {
	return s.history.List(ctx)
}

// Refresh reloads the conversation list from the backend.
func (s *Session) Refresh(ctx context.Context) error {
	return s.history.Refresh(ctx)
}

// Resolve maps a list position or id prefix to a conversation id.
func (s *Session) Resolve(ref string) (string, error) {
	return s.history.Resolve(ref)
}

// RequestDeletion records the intent to delete id. Nothing is sent until confirmed.
func (s *Session) RequestDeletion(id string) {
	s.history.RequestDeletion(id)
}

// PendingDeletion returns the outstanding deletion intent.
func (s *Session) PendingDeletion() (history.DeletionIntent, bool) {
	return s.history.PendingDeletion()
}

// CancelDeletion drops the pending intent.
func (s *Session) CancelDeletion() {
	s.history.CancelDeletion()
}

// ConfirmDeletion deletes the pending target. A deleted conversation is also
// forgotten as the remembered last conversation.
func (s *Session) ConfirmDeletion(ctx context.Context) (string, error) {
	id, err := s.history.ConfirmDeletion(ctx)
	if err != nil {
		return id, err
	}
	s.forget(ctx, id)
	return id, nil
}

// Speak synthesizes text, or the latest reply when text is blank, in the current language.
func (s *Session) Speak(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		last, ok := s.store.Snapshot().LastAssistant()
		if !ok {
			return nil, ErrNothingToSpeak
		}
		text = last.Content
	}
	audio, err := s.backend.SynthesizeSpeech(ctx, text, string(s.lang.Get()))
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	return audio, nil
}

func (s *Session) afterSend(ctx context.Context, res pipeline.Result) {
	if res.Outcome != pipeline.OutcomeSucceeded {
		return
	}
	s.remember(ctx, s.store.ActiveID())
}

func (s *Session) remember(ctx context.Context, id string) {
	if s.prefs == nil {
		return
	}
	if err := s.prefs.SetLastConversation(ctx, id); err != nil {
		s.logger.Warn("failed to remember conversation", "conversation_id", id, "error", err)
	}
}

func (s *Session) forget(ctx context.Context, id string) {
	if s.prefs == nil {
		return
	}
	if err := s.prefs.ForgetConversation(ctx, id); err != nil {
		s.logger.Warn("failed to forget conversation", "conversation_id", id, "error", err)
	}
}
