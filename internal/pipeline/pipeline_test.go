// ABOUTME: Tests for the send pipeline against a real conversation store and a scripted sender
// ABOUTME: Covers success, failure notices, single-flight, stale results and follow-ups

package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/i18n"
)

// scriptedSender answers with the next queued reply or error.
type scriptedSender struct {
	mu       sync.Mutex
	replies  []*api.ChatResponse
	errs     []error
	requests []api.ChatRequest
	gate     chan struct{}
	calls    atomic.Int32
}

func (s *scriptedSender) SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(s.replies) == 0 {
		return &api.ChatResponse{Message: "ok", ConversationID: "c-default"}, nil
	}
	resp := s.replies[0]
	s.replies = s.replies[1:]
	return resp, nil
}

func (s *scriptedSender) Requests() []api.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ChatRequest(nil), s.requests...)
}

type nopLoader struct{}

func (nopLoader) LoadConversation(ctx context.Context, id string) (*api.ConversationDetail, error) {
	return &api.ConversationDetail{ID: id}, nil
}

func newTestPipeline(t *testing.T, sender Sender, lang i18n.Lang) (*Pipeline, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(nopLoader{}, nil, nil)
	sel := i18n.NewSelector(lang)
	return New(store, sender, sel.Get, nil), store
}

func TestPipeline_SendSuccessAdoptsIDOnce(t *testing.T) {
	sender := &scriptedSender{replies: []*api.ChatResponse{
		{Message: "Hoi An is an ancient town.", ConversationID: "c1", FollowUpQuestions: []string{"Best time to visit?"}},
		{Message: "February to April.", ConversationID: "c1"},
	}}
	p, store := newTestPipeline(t, sender, i18n.English)

	res := p.Send(t.Context(), "Tell me about Hoi An")
	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "c1", res.ConversationID)
	assert.Equal(t, Idle, p.State())

	res = p.Send(t.Context(), "Best time to visit?")
	require.Equal(t, OutcomeSucceeded, res.Outcome)

	reqs := sender.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].ConversationID)
	assert.Equal(t, "en", reqs[0].Language)
	assert.Equal(t, "c1", reqs[1].ConversationID)

	st := store.Snapshot()
	assert.Equal(t, "c1", st.ID)
	assert.Len(t, st.Messages, 4)
	assert.Equal(t, []string{"Best time to visit?"}, st.Messages[1].FollowUpQuestions)
}

func TestPipeline_NetworkFailureThenResend(t *testing.T) {
	netErr := &api.Error{Kind: api.KindNetwork, Op: "send message", Err: errors.New("connection refused")}
	sender := &scriptedSender{
		errs:    []error{netErr},
		replies: []*api.ChatResponse{{Message: "Xin chào!", ConversationID: "c9"}},
	}
	p, store := newTestPipeline(t, sender, i18n.Vietnamese)

	res := p.Send(t.Context(), "Xin chào")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, api.IsNetwork(res.Err))

	st := store.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, api.RoleUser, st.Messages[0].Role)
	assert.Equal(t, "Xin chào", st.Messages[0].Content)
	assert.Equal(t, api.RoleAssistant, st.Messages[1].Role)
	assert.True(t, st.Messages[1].Failed)
	assert.Equal(t, i18n.FailureNotice(i18n.Vietnamese), st.Messages[1].Content)
	assert.False(t, st.IsSending)
	assert.Empty(t, st.ID)

	res = p.Send(t.Context(), "Xin chào")
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "c9", store.ActiveID())
	assert.Len(t, store.Snapshot().Messages, 4)
}

func TestPipeline_ServerAndDecodeErrorsAreFailures(t *testing.T) {
	for _, err := range []error{
		&api.Error{Kind: api.KindServer, Op: "send message", Status: 500, Detail: "Internal Server Error"},
		&api.Error{Kind: api.KindDecode, Op: "send message", Detail: "malformed response"},
	} {
		sender := &scriptedSender{errs: []error{err}}
		p, store := newTestPipeline(t, sender, i18n.English)

		res := p.Send(t.Context(), "hello")
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Len(t, store.Snapshot().Messages, 2)
		assert.False(t, store.IsSending())
	}
}

func TestPipeline_EmptyInputSkipped(t *testing.T) {
	sender := &scriptedSender{}
	p, store := newTestPipeline(t, sender, i18n.English)

	res := p.Send(t.Context(), "   \n")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, conversation.ErrEmptyMessage)
	assert.Zero(t, sender.calls.Load())
	assert.Empty(t, store.Snapshot().Messages)
}

func TestPipeline_SingleFlight(t *testing.T) {
	sender := &scriptedSender{gate: make(chan struct{})}
	p, store := newTestPipeline(t, sender, i18n.English)

	done := make(chan Result, 1)
	go func() { done <- p.Send(context.Background(), "first") }()
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Sending, p.State())

	res := p.Send(t.Context(), "second")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.ErrorIs(t, res.Err, conversation.ErrSendInFlight)

	res = p.FollowUp(t.Context(), "a suggestion")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Len(t, store.Snapshot().Messages, 1, "message count does not change while sending")

	close(sender.gate)
	assert.Equal(t, OutcomeSucceeded, (<-done).Outcome)
	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_StaleReplyIsDropped(t *testing.T) {
	sender := &scriptedSender{
		gate:    make(chan struct{}),
		replies: []*api.ChatResponse{{Message: "answer for A", ConversationID: "a"}},
	}
	p, store := newTestPipeline(t, sender, i18n.English)

	done := make(chan Result, 1)
	go func() { done <- p.Send(context.Background(), "question for A") }()
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	store.Reset()
	close(sender.gate)

	res := <-done
	assert.Equal(t, OutcomeStale, res.Outcome)
	st := store.Snapshot()
	assert.Empty(t, st.ID)
	assert.Empty(t, st.Messages)
	assert.False(t, st.IsSending)
}

func TestPipeline_FollowUpSendsQuestionText(t *testing.T) {
	sender := &scriptedSender{}
	p, store := newTestPipeline(t, sender, i18n.English)

	res := p.FollowUp(t.Context(), "What should I eat in Hanoi?")
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	require.Len(t, sender.Requests(), 1)
	assert.Equal(t, "What should I eat in Hanoi?", sender.Requests()[0].Message)
	assert.Equal(t, "What should I eat in Hanoi?", store.Snapshot().Messages[0].Content)
}

func TestPipeline_ConcurrentSendsAdmitOne(t *testing.T) {
	sender := &scriptedSender{gate: make(chan struct{})}
	p, _ := newTestPipeline(t, sender, i18n.English)

	var wg sync.WaitGroup
	results := make(chan Result, 10)
	for range 10 {
		wg.Go(func() { results <- p.Send(context.Background(), "race") })
	}

	require.Eventually(t, func() bool { return len(results) == 9 }, time.Second, 5*time.Millisecond)
	close(sender.gate)
	wg.Wait()
	close(results)

	counts := map[Outcome]int{}
	for r := range results {
		counts[r.Outcome]++
	}
	assert.Equal(t, 1, counts[OutcomeSucceeded])
	assert.Equal(t, 9, counts[OutcomeSkipped])
}
