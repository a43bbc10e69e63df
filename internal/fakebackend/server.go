// ABOUTME: In-memory stand-in for the travel assistant backend, used by tests and local demos
// ABOUTME: Serves chat, conversations, tts, destinations and health with the real wire format

package fakebackend

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/auth"
)

//go:embed data/destinations.json
var dataFS embed.FS

const maxRequestBytes = 1 << 20

// titleLimit matches the backend's title truncation of the first message.
const titleLimit = 50

// Replier produces the assistant reply for a message. The default is canned.
type Replier func(message, language string, history []api.Message) api.ChatResponse

// Options configures a Server.
type Options struct {
	// Verifier, when set, requires a bearer token on every /api route.
	Verifier auth.TokenVerifier
	Replier  Replier
	Logger   *slog.Logger
	// Now overrides the clock for timestamps.
	Now func() time.Time
	// RateLimit throttles /api routes per client address when RPS is set.
	RateLimit RateLimit
}

type conversation struct {
	id        string
	title     string
	language  string
	messages  []api.Message
	createdAt time.Time
	updatedAt time.Time
}

// Server is an in-memory backend. It is safe for concurrent use.
type Server struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	destinations  []api.Destination

	// failures maps "METHOD /path" prefixes to a forced status code.
	failures map[string]int
	// gates block matching requests until released.
	gates map[string]chan struct{}

	verifier auth.TokenVerifier
	replier  Replier
	now      func() time.Time
	logger   *slog.Logger
	handler  http.Handler
}

// New creates a Server with the embedded destinations catalog.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	data, err := dataFS.ReadFile("data/destinations.json")
	if err != nil {
		return nil, fmt.Errorf("reading destinations: %w", err)
	}
	var dests []api.Destination
	if err := json.Unmarshal(data, &dests); err != nil {
		return nil, fmt.Errorf("parsing destinations: %w", err)
	}

	s := &Server{
		conversations: make(map[string]*conversation),
		destinations:  dests,
		failures:      make(map[string]int),
		gates:         make(map[string]chan struct{}),
		verifier:      opts.Verifier,
		replier:       opts.Replier,
		now:           opts.Now,
		logger:        logger.With("component", "fakebackend"),
	}
	if s.replier == nil {
		s.replier = CannedReply
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/chat/", s.handleChat)
	apiMux.HandleFunc("/api/conversations/", s.handleConversations)
	apiMux.HandleFunc("/api/tts/", s.handleTTS)
	apiMux.HandleFunc("/api/destinations/", s.handleDestinations)

	var apiHandler http.Handler = apiMux
	if s.verifier != nil {
		apiHandler = auth.BearerMiddleware(s.verifier)(apiMux)
	}
	if opts.RateLimit.RPS > 0 {
		apiHandler = newLimiterPool(opts.RateLimit).limit(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", s.intercept(apiHandler))
	mux.HandleFunc("/health", s.handleHealth)
	s.handler = mux
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// FailNext forces requests whose "METHOD /path" starts with route to answer status until cleared.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = status
}

// ClearFailures removes every forced failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.failures)
}

// Gate makes requests matching route block until the returned release func is called.
func (s *Server) Gate(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Seed stores a conversation directly, for tests that need history.
func (s *Server) Seed(title string, messages ...api.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	id := uuid.New().String()
	for i := range messages {
		if messages[i].Timestamp.IsZero() {
			messages[i].Timestamp = api.Time{Time: now}
		}
	}
	s.conversations[id] = &conversation{
		id:        id,
		title:     title,
		language:  api.LanguageVietnamese,
		messages:  messages,
		createdAt: now,
		updatedAt: now,
	}
	return id
}

// Has reports whether a conversation exists.
func (s *Server) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[id]
	return ok
}

// Count returns the number of stored conversations.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// intercept applies forced failures and gates before routing.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		var status int
		for route, code := range s.failures {
			if strings.HasPrefix(key, route) {
				status = code
				break
			}
		}
		var gate chan struct{}
		for route, ch := range s.gates {
			if strings.HasPrefix(key, route) {
				gate = ch
				break
			}
		}
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeError(w, status, "forced failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, api.HealthStatus{Status: "healthy"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req api.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message must not be empty")
		return
	}
	if req.Language == "" {
		req.Language = api.LanguageVietnamese
	}

	s.mu.Lock()
	now := s.now()
	id := req.ConversationID
	if id == "" {
		id = uuid.New().String()
	}
	conv, ok := s.conversations[id]
	if !ok {
		conv = &conversation{id: id, title: "New Conversation", language: req.Language, createdAt: now}
		s.conversations[id] = conv
	}
	history := append([]api.Message(nil), conv.messages...)
	s.mu.Unlock()

	reply := s.replier(req.Message, req.Language, history)
	reply.ConversationID = id

	s.mu.Lock()
	// The conversation may have been deleted while the reply was produced; store it again.
	s.conversations[id] = conv
	conv.messages = append(conv.messages,
		api.Message{Role: api.RoleUser, Content: req.Message, Timestamp: api.Time{Time: now}},
		api.Message{Role: api.RoleAssistant, Content: reply.Message, Timestamp: api.Time{Time: s.now()}},
	)
	if len(history) == 0 {
		conv.title = Title(req.Message)
	}
	conv.updatedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("chat handled", "conversation_id", id, "language", languageTag(req.Language))
	writeJSON(w, http.StatusOK, reply)
}

// Title truncates a first message into a conversation title.
func Title(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/conversations/"), "/")
	switch {
	case id == "" && r.Method == http.MethodGet:
		s.listConversations(w)
	case id == "new" && r.Method == http.MethodPost:
		s.createConversation(w)
	case id != "" && r.Method == http.MethodGet:
		s.getConversation(w, id)
	case id != "" && r.Method == http.MethodDelete:
		s.deleteConversation(w, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listConversations(w http.ResponseWriter) {
	s.mu.Lock()
	out := make([]api.ConversationSummary, 0, len(s.conversations))
	for _, c := range s.conversations {
		last := ""
		if n := len(c.messages); n > 0 {
			last = c.messages[n-1].Content
			if r := []rune(last); len(r) > 100 {
				last = string(r[:100])
			}
		}
		out = append(out, api.ConversationSummary{
			ID:           c.id,
			Title:        c.title,
			LastMessage:  last,
			CreatedAt:    api.Time{Time: c.createdAt},
			UpdatedAt:    api.Time{Time: c.updatedAt},
			MessageCount: len(c.messages),
		})
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt.Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})
	if len(out) > 50 {
		out = out[:50]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createConversation(w http.ResponseWriter) {
	s.mu.Lock()
	now := s.now()
	id := uuid.New().String()
	s.conversations[id] = &conversation{id: id, title: "New Conversation", language: api.LanguageVietnamese, createdAt: now, updatedAt: now}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": id})
}

func (s *Server) getConversation(w http.ResponseWriter, id string) {
	s.mu.Lock()
	c, ok := s.conversations[id]
	var detail api.ConversationDetail
	if ok {
		detail = api.ConversationDetail{
			ID:        c.id,
			Title:     c.title,
			Messages:  append([]api.Message(nil), c.messages...),
			CreatedAt: api.Time{Time: c.createdAt},
			UpdatedAt: api.Time{Time: c.updatedAt},
			Language:  c.language,
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if detail.Messages == nil {
		detail.Messages = []api.Message{}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) deleteConversation(w http.ResponseWriter, id string) {
	s.mu.Lock()
	_, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	s.logger.Debug("conversation deleted", "conversation_id", id)
	writeJSON(w, http.StatusOK, api.Ack{Message: "Conversation deleted successfully"})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req api.TTSRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusInternalServerError, "Error generating speech: empty text")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, FakeAudio(req.Text, req.Language))
}

// FakeAudio is the placeholder payload returned by the tts endpoint.
func FakeAudio(text, language string) string {
	return "ID3" + language + ":" + text
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/destinations/"), "/")
	if id != "" {
		for _, d := range s.destinations {
			if d.ID == id {
				writeJSON(w, http.StatusOK, d)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Destination not found")
		return
	}

	region := r.URL.Query().Get("region")
	kind := r.URL.Query().Get("type")
	out := make([]api.Destination, 0, len(s.destinations))
	for _, d := range s.destinations {
		if region != "" && d.Region != region {
			continue
		}
		if kind != "" && !slices.Contains(d.Types, kind) {
			continue
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
