// ABOUTME: Tests for terminal rendering with colors disabled
// ABOUTME: Covers markdown conversion, message layout, lists and localized labels

package render

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/i18n"
)

func newTestRenderer() (*Renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	r := &Renderer{
		w:     &buf,
		theme: NewTheme(false),
		now:   func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return r, &buf
}

func TestMarkdown(t *testing.T) {
	theme := NewTheme(false)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraph", "Hội An is lovely.", "Hội An is lovely."},
		{"emphasis", "Try **bánh mì** and *cà phê*.", "Try bánh mì and cà phê."},
		{"heading", "# Hoi An\n\nOld town.", "Hoi An\n\nOld town."},
		{"bullets", "- Old town\n- Lanterns", "• Old town\n• Lanterns"},
		{"ordered", "1. Hanoi\n2. Hue", "1. Hanoi\n2. Hue"},
		{"link", "[Map](https://maps.example.com)", "Map (https://maps.example.com)"},
		{"code span", "Call `1900`", "Call 1900"},
		{"raw html dropped", "a <b>b</b> c", "a b c"},
		{"soft break", "line one\nline two", "line one\nline two"},
		{"quote", "> tip", "│ tip"},
		{"code block", "```\nx := 1\n```", "    x := 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Markdown(tt.in, theme))
		})
	}
}

func TestMessage_UserAndAssistant(t *testing.T) {
	r, buf := newTestRenderer()

	r.Message(conversation.Message{Role: api.RoleUser, Content: "Hoi An?"}, i18n.English)
	r.Message(conversation.Message{
		Role:              api.RoleAssistant,
		Content:           "**Hoi An** is a heritage town.",
		FollowUpQuestions: []string{"Best time to visit?", "Where to stay?"},
		Links:             []api.Link{{Title: "Guide", URL: "https://example.com/hoian"}},
	}, i18n.English)

	out := buf.String()
	assert.Contains(t, out, "You › Hoi An?")
	assert.Contains(t, out, "Guide ›\nHoi An is a heritage town.")
	assert.Contains(t, out, "Links:\n  ↗ Guide https://example.com/hoian")
	assert.Contains(t, out, "Suggested questions:\n  [1] Best time to visit?\n  [2] Where to stay?")
}

func TestMessage_FailureNoticeIsNotMarkdown(t *testing.T) {
	r, buf := newTestRenderer()
	r.Message(conversation.Message{Role: api.RoleAssistant, Content: i18n.FailureNotice(i18n.Vietnamese), Failed: true}, i18n.Vietnamese)
	assert.Contains(t, buf.String(), "Hướng dẫn viên › Xin lỗi, có lỗi xảy ra. Vui lòng thử lại sau.")
}

func TestTranscript_EmptyShowsWelcome(t *testing.T) {
	r, buf := newTestRenderer()
	r.Transcript(conversation.State{}, i18n.Vietnamese)

	out := buf.String()
	assert.Contains(t, out, i18n.T(i18n.Vietnamese, i18n.KeyWelcomeTitle))
	assert.Contains(t, out, "[1] Hội An có gì đẹp?")
	assert.Contains(t, out, "[4] Ăn gì ở Hà Nội?")
}

func TestStarters(t *testing.T) {
	assert.Equal(t, "What to visit in Hoi An?", Starters(i18n.English)[0])
	assert.Equal(t, "Trekking Sa Pa", Starters(i18n.Vietnamese)[1])
	assert.Len(t, Starters(i18n.English), 4)
}

func TestConversations(t *testing.T) {
	r, buf := newTestRenderer()
	updated := api.Time{Time: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	r.Conversations([]api.ConversationSummary{
		{ID: "a", Title: "Hội An có gì đẹp?", MessageCount: 4, UpdatedAt: updated, LastMessage: "Hoi An is lovely"},
		{ID: "b", Title: "", MessageCount: 0},
	}, "a", i18n.English)

	out := buf.String()
	assert.Contains(t, out, "▸  1. Hội An có gì đẹp? 4 messages · 2 hours ago")
	assert.Contains(t, out, "Hoi An is lovely")
	assert.Contains(t, out, "   2. New Chat 0 messages")
}

func TestConversations_Empty(t *testing.T) {
	r, buf := newTestRenderer()
	r.Conversations(nil, "", i18n.Vietnamese)
	assert.Equal(t, "Chưa có cuộc trò chuyện\n", buf.String())
}

func TestDestinations(t *testing.T) {
	r, buf := newTestRenderer()
	r.Destinations([]api.Destination{{
		ID:            "hoi-an",
		Name:          "Hội An",
		NameEN:        "Hoi An",
		Region:        api.RegionCentral,
		Types:         []string{"culture"},
		DescriptionEN: "Ancient trading port.",
		HighlightsEN:  []string{"Lanterns", "Old town"},
	}}, i18n.English)

	out := buf.String()
	assert.Contains(t, out, " 1. Hoi An")
	assert.Contains(t, out, "Ancient trading port.")
	assert.Contains(t, out, "★ Lanterns · Old town")
}

func TestNotice(t *testing.T) {
	r, buf := newTestRenderer()
	r.Notice(i18n.KeyDeleteFailed, &api.Error{Kind: api.KindServer, Status: 404, Detail: "Conversation not found"}, i18n.English)
	r.Notice(i18n.KeyRefreshFailed, errors.New("boom"), i18n.English)
	r.Notice(i18n.KeyCancelled, nil, i18n.English)

	assert.Equal(t,
		"! Could not delete the conversation: Conversation not found\n"+
			"! Could not load conversation history: boom\n"+
			"! Deletion cancelled\n",
		buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
}
