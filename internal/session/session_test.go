// ABOUTME: End-to-end session tests against the in-memory fake backend
// ABOUTME: Covers sending, id adoption, selection, seeding, deletion and remembered preferences

package session

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/destinations"
	"github.com/2389/vnguide/internal/fakebackend"
	"github.com/2389/vnguide/internal/history"
	"github.com/2389/vnguide/internal/i18n"
	"github.com/2389/vnguide/internal/pipeline"
	"github.com/2389/vnguide/internal/prefs"
)

type harness struct {
	backend *fakebackend.Server
	client  *api.Client
	prefs   *prefs.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb, err := fakebackend.New(fakebackend.Options{})
	require.NoError(t, err)
	hs := httptest.NewServer(fb)
	t.Cleanup(hs.Close)

	client, err := api.New(api.Options{BaseURL: hs.URL + "/api"})
	require.NoError(t, err)

	p, err := prefs.Open(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	return &harness{backend: fb, client: client, prefs: p}
}

func (h *harness) session(t *testing.T, lang i18n.Lang, restore bool) *Session {
	t.Helper()
	s, err := New(Options{Backend: h.client, Prefs: h.prefs, Language: lang, RestoreLast: restore})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	s.Start(t.Context())
	return s
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestSend_AdoptsIDAndRemembersIt(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	res := s.Send(t.Context(), "What to visit in Hoi An?")
	require.Equal(t, pipeline.OutcomeSucceeded, res.Outcome)

	st := s.Snapshot()
	require.NotEmpty(t, st.ID)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "What to visit in Hoi An?", st.Messages[0].Content)
	assert.Contains(t, st.Messages[1].Content, "Hoi An")
	assert.True(t, h.backend.Has(st.ID))

	last, err := h.prefs.LastConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, st.ID, last)

	// The list was invalidated by the adoption, so the next read refreshes
	list, err := s.Conversations(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, st.ID, list[0].ID)
	assert.Equal(t, "What to visit in Hoi An?", list[0].Title)
}

func TestSend_SecondMessageKeepsID(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Hello").Outcome)
	id := s.Snapshot().ID
	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Tell me about Hanoi").Outcome)

	st := s.Snapshot()
	assert.Equal(t, id, st.ID)
	assert.Len(t, st.Messages, 4)
	assert.Equal(t, 1, h.backend.Count())
}

func TestSend_FailureAppendsLocalizedNotice(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.Vietnamese, false)
	h.backend.FailNext("POST /api/chat/", http.StatusInternalServerError)

	res := s.Send(t.Context(), "Xin chào")
	assert.Equal(t, pipeline.OutcomeFailed, res.Outcome)
	assert.True(t, api.IsServer(res.Err))

	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, i18n.FailureNotice(i18n.Vietnamese), st.Messages[1].Content)
	assert.True(t, st.Messages[1].Failed)
	assert.Empty(t, st.ID)
	assert.False(t, st.IsSending)
}

func TestSend_EmptyAndInFlightAreSkipped(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	assert.Equal(t, pipeline.OutcomeSkipped, s.Send(t.Context(), "   ").Outcome)

	release := h.backend.Gate("POST /api/chat/")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Send(t.Context(), "first")
	}()
	require.Eventually(t, func() bool { return s.Phase() == pipeline.Sending }, time.Second, 5*time.Millisecond)

	res := s.Send(t.Context(), "second")
	assert.Equal(t, pipeline.OutcomeSkipped, res.Outcome)
	assert.Equal(t, pipeline.OutcomeSkipped, s.FollowUp(t.Context(), 1).Outcome)

	release()
	wg.Wait()
	assert.Len(t, s.Snapshot().Messages, 2)
}

func TestFollowUp(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	assert.ErrorIs(t, s.FollowUp(t.Context(), 1).Err, ErrNoSuggestion)

	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Trekking in Sa Pa").Outcome)
	assert.ErrorIs(t, s.FollowUp(t.Context(), 9).Err, ErrNoSuggestion)

	res := s.FollowUp(t.Context(), 1)
	require.Equal(t, pipeline.OutcomeSucceeded, res.Outcome)
	st := s.Snapshot()
	require.Len(t, st.Messages, 4)
	assert.Equal(t, "How long does a Sa Pa trek take?", st.Messages[2].Content)
}

func TestNewChatDiscardsInFlightResponse(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	release := h.backend.Gate("POST /api/chat/")
	done := make(chan pipeline.Result, 1)
	go func() { done <- s.Send(t.Context(), "Hoi An?") }()
	require.Eventually(t, func() bool { return s.Phase() == pipeline.Sending }, time.Second, 5*time.Millisecond)

	s.NewChat(t.Context())
	release()

	res := <-done
	assert.Equal(t, pipeline.OutcomeStale, res.Outcome)
	st := s.Snapshot()
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.ID)
	assert.False(t, st.IsSending)
}

func TestNewChatDuringFirstSendStillListsCreatedConversation(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	list, err := s.Conversations(t.Context())
	require.NoError(t, err)
	require.Empty(t, list)

	release := h.backend.Gate("POST /api/chat/")
	done := make(chan pipeline.Result, 1)
	go func() { done <- s.Send(t.Context(), "Da Lat?") }()
	require.Eventually(t, func() bool { return s.Phase() == pipeline.Sending }, time.Second, 5*time.Millisecond)

	s.NewChat(t.Context())
	release()
	require.Equal(t, pipeline.OutcomeStale, (<-done).Outcome)
	require.Equal(t, 1, h.backend.Count())

	list, err = s.Conversations(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, h.backend.Has(list[0].ID))
	assert.Empty(t, s.Snapshot().ID)
}

func TestSelect_LoadsHistory(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Seed("Hue",
		api.Message{Role: api.RoleUser, Content: "Hue?"},
		api.Message{Role: api.RoleAssistant, Content: "Imperial city."},
	)
	s := h.session(t, i18n.English, false)

	require.NoError(t, s.Select(t.Context(), id))
	st := s.Snapshot()
	assert.Equal(t, id, st.ID)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "Imperial city.", st.Messages[1].Content)

	last, err := h.prefs.LastConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, id, last)
}

func TestSelect_FailureKeepsStateAndNotifies(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Hello").Outcome)
	before := s.Snapshot()

	events, _ := s.Subscribe(t.Context())
	err := s.Select(t.Context(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))

	assert.Equal(t, before, s.Snapshot())
	select {
	case ev := <-events:
		assert.Equal(t, conversation.EventNotice, ev.Kind)
		assert.Equal(t, i18n.KeyLoadFailed, ev.Notice)
	case <-time.After(time.Second):
		t.Fatal("expected a load-failed notice")
	}
}

func TestSeedMessage_FiresOnce(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	res, fired := s.SeedMessage(t.Context(), "Tell me about Hoi An")
	require.True(t, fired)
	require.Equal(t, pipeline.OutcomeSucceeded, res.Outcome)
	st := s.Snapshot()
	require.Len(t, st.Messages, 2)
	assert.True(t, st.HasAutoDispatched)
	assert.Equal(t, 1, h.backend.Count())

	_, fired = s.SeedMessage(t.Context(), "   ")
	assert.False(t, fired)
	assert.Len(t, s.Snapshot().Messages, 2, "a blank seed does not reset the conversation")
}

func TestStartDestinationChat_UsesLocalizedName(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.Vietnamese, false)

	list, err := s.Destinations(t.Context(), destinations.Filter{Region: api.RegionCentral, Type: destinations.TypeCulture})
	require.NoError(t, err)
	require.Len(t, list, 2)

	var hoiAn api.Destination
	for _, d := range list {
		if d.ID == "hoi-an" {
			hoiAn = d
		}
	}
	require.Equal(t, "hoi-an", hoiAn.ID)

	_, fired := s.StartDestinationChat(t.Context(), hoiAn)
	require.True(t, fired)
	st := s.Snapshot()
	require.NotEmpty(t, st.Messages)
	assert.Equal(t, "Hội An", st.Messages[0].Content)

	require.NoError(t, s.SetLanguage(t.Context(), i18n.English))
	_, fired = s.StartDestinationChat(t.Context(), hoiAn)
	require.True(t, fired)
	assert.Equal(t, "Hoi An", s.Snapshot().Messages[0].Content)
}

func TestDeleteActiveConversation(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	other := h.backend.Seed("other")

	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Hanoi food?").Outcome)
	active := s.Snapshot().ID

	s.RequestDeletion(active)
	intent, ok := s.PendingDeletion()
	require.True(t, ok)
	assert.Equal(t, history.DeletionIntent{TargetID: active}, intent)

	deleted, err := s.ConfirmDeletion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, active, deleted)

	assert.False(t, h.backend.Has(active))
	st := s.Snapshot()
	assert.Empty(t, st.ID, "deleting the active conversation resets to a fresh one")
	assert.Empty(t, st.Messages)

	list, err := s.Conversations(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other, list[0].ID)

	last, err := h.prefs.LastConversation(t.Context())
	require.NoError(t, err)
	assert.Empty(t, last)

	_, ok = s.PendingDeletion()
	assert.False(t, ok)
}

func TestDeleteOtherConversationKeepsActive(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	other := h.backend.Seed("other")

	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Phu Quoc?").Outcome)
	before := s.Snapshot()

	s.RequestDeletion(other)
	_, err := s.ConfirmDeletion(t.Context())
	require.NoError(t, err)

	assert.Equal(t, before, s.Snapshot())
	assert.True(t, h.backend.Has(before.ID))
}

func TestCancelDeletion(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	id := h.backend.Seed("keep me")

	s.RequestDeletion(id)
	s.CancelDeletion()

	_, err := s.ConfirmDeletion(t.Context())
	assert.ErrorIs(t, err, history.ErrNoDeletionIntent)
	assert.True(t, h.backend.Has(id))
}

func TestDeleteFailureKeepsEverything(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	id := h.backend.Seed("sticky")
	_, err := s.Conversations(t.Context())
	require.NoError(t, err)

	h.backend.FailNext("DELETE /api/conversations/", http.StatusInternalServerError)
	s.RequestDeletion(id)
	_, err = s.ConfirmDeletion(t.Context())
	require.Error(t, err)

	assert.True(t, h.backend.Has(id))
	list, err := s.Conversations(t.Context())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResolve(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	id := h.backend.Seed("only")

	_, err := s.Conversations(t.Context())
	require.NoError(t, err)

	got, err := s.Resolve("1")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = s.Resolve(id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestStart_RestoresLanguageAndConversation(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Seed("Da Lat", api.Message{Role: api.RoleUser, Content: "Da Lat?"})

	require.NoError(t, h.prefs.SetLanguage(t.Context(), "en"))
	require.NoError(t, h.prefs.SetLastConversation(t.Context(), id))

	s := h.session(t, i18n.Vietnamese, true)
	assert.Equal(t, i18n.English, s.Language())
	assert.Equal(t, id, s.Snapshot().ID)
	assert.Len(t, s.Snapshot().Messages, 1)
}

func TestStart_ForgetsVanishedConversation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.SetLastConversation(t.Context(), "gone"))

	s := h.session(t, i18n.Vietnamese, true)
	assert.Empty(t, s.Snapshot().ID)

	last, err := h.prefs.LastConversation(t.Context())
	require.NoError(t, err)
	assert.Empty(t, last)
}

func TestStart_RestoreDisabled(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Seed("x")
	require.NoError(t, h.prefs.SetLastConversation(t.Context(), id))

	s := h.session(t, i18n.Vietnamese, false)
	assert.Empty(t, s.Snapshot().ID)
}

func TestSpeak(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)

	_, err := s.Speak(t.Context(), "")
	assert.ErrorIs(t, err, ErrNothingToSpeak)

	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "Hanoi?").Outcome)
	reply, _ := s.Snapshot().LastAssistant()

	audio, err := s.Speak(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, fakebackend.FakeAudio(reply.Content, "en"), string(audio))

	audio, err = s.Speak(t.Context(), "Xin chào")
	require.NoError(t, err)
	assert.Equal(t, fakebackend.FakeAudio("Xin chào", "en"), string(audio))
}

func TestSetLanguage_RejectsUnknown(t *testing.T) {
	h := newHarness(t)
	s := h.session(t, i18n.English, false)
	require.Error(t, s.SetLanguage(t.Context(), "fr"))
	assert.Equal(t, i18n.English, s.Language())
}

func TestWithoutPrefs(t *testing.T) {
	h := newHarness(t)
	s, err := New(Options{Backend: h.client})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	s.Start(t.Context())

	assert.Equal(t, i18n.Default, s.Language())
	require.NoError(t, s.SetLanguage(t.Context(), i18n.English))
	require.Equal(t, pipeline.OutcomeSucceeded, s.Send(t.Context(), "hi").Outcome)
}
