// ABOUTME: Terminal presentation for messages, conversation lists, destinations and notices
// ABOUTME: Colors via fatih/color, relative times via go-humanize, text via the i18n catalog

package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/destinations"
	"github.com/2389/vnguide/internal/i18n"
)

// Theme holds the styles used for terminal output.
type Theme struct {
	User    *color.Color
	Guide   *color.Color
	Heading *color.Color
	Bold    *color.Color
	Italic  *color.Color
	Code    *color.Color
	Link    *color.Color
	Bullet  *color.Color
	Muted   *color.Color
	Warn    *color.Color
	Active  *color.Color
}

// NewTheme builds the default theme. With enabled false every style prints plain text.
func NewTheme(enabled bool) *Theme {
	t := &Theme{
		User:    color.New(color.FgGreen, color.Bold),
		Guide:   color.New(color.FgCyan, color.Bold),
		Heading: color.New(color.FgYellow, color.Bold),
		Bold:    color.New(color.Bold),
		Italic:  color.New(color.Italic),
		Code:    color.New(color.FgMagenta),
		Link:    color.New(color.FgBlue, color.Underline),
		Bullet:  color.New(color.FgCyan),
		Muted:   color.New(color.FgHiBlack),
		Warn:    color.New(color.FgYellow),
		Active:  color.New(color.FgGreen),
	}
	if !enabled {
		for _, c := range []*color.Color{t.User, t.Guide, t.Heading, t.Bold, t.Italic, t.Code, t.Link, t.Bullet, t.Muted, t.Warn, t.Active} {
			c.DisableColor()
		}
	}
	return t
}

// Renderer writes presentation output to w.
type Renderer struct {
	w     io.Writer
	theme *Theme
	now   func() time.Time
}

// New creates a Renderer. Colors follow fatih/color's terminal detection unless noColor is set.
func New(w io.Writer, noColor bool) *Renderer {
	return &Renderer{
		w:     w,
		theme: NewTheme(!noColor && !color.NoColor),
		now:   time.Now,
	}
}

// Theme returns the active theme.
func (r *Renderer) Theme() *Theme { return r.theme }

// Message prints one conversation turn. Assistant content is rendered as markdown.
func (r *Renderer) Message(m conversation.Message, lang i18n.Lang) {
	switch {
	case m.Role == api.RoleUser:
		fmt.Fprintf(r.w, "%s %s\n\n", r.theme.User.Sprint(i18n.T(lang, i18n.KeyYou)+" ›"), m.Content)
		return
	case m.Failed:
		fmt.Fprintf(r.w, "%s %s\n\n", r.theme.Guide.Sprint(i18n.T(lang, i18n.KeyGuide)+" ›"), r.theme.Warn.Sprint(m.Content))
		return
	}

	fmt.Fprintf(r.w, "%s\n%s\n", r.theme.Guide.Sprint(i18n.T(lang, i18n.KeyGuide)+" ›"), Markdown(m.Content, r.theme))

	if len(m.Links) > 0 {
		fmt.Fprintf(r.w, "\n%s\n", r.theme.Muted.Sprint(i18n.T(lang, i18n.KeyLinks)+":"))
		for _, l := range m.Links {
			title := l.Title
			if title == "" {
				title = l.URL
			}
			fmt.Fprintf(r.w, "  ↗ %s %s\n", title, r.theme.Link.Sprint(l.URL))
		}
	}
	if len(m.FollowUpQuestions) > 0 {
		r.suggestions(i18n.T(lang, i18n.KeySuggestions), m.FollowUpQuestions)
	}
	fmt.Fprintln(r.w)
}

// Transcript prints every message of a state.
func (r *Renderer) Transcript(st conversation.State, lang i18n.Lang) {
	if len(st.Messages) == 0 {
		r.Welcome(lang)
		return
	}
	for _, m := range st.Messages {
		r.Message(m, lang)
	}
}

// Welcome prints the empty-conversation greeting with starter suggestions.
func (r *Renderer) Welcome(lang i18n.Lang) {
	fmt.Fprintf(r.w, "%s\n%s\n", r.theme.Heading.Sprint(i18n.T(lang, i18n.KeyWelcomeTitle)), r.theme.Muted.Sprint(i18n.T(lang, i18n.KeyWelcomeSubtitle)))
	r.suggestions(i18n.T(lang, i18n.KeySuggestions), Starters(lang))
	fmt.Fprintln(r.w)
}

func (r *Renderer) suggestions(title string, questions []string) {
	fmt.Fprintf(r.w, "\n%s\n", r.theme.Muted.Sprint(title+":"))
	for i, q := range questions {
		fmt.Fprintf(r.w, "  %s %s\n", r.theme.Bullet.Sprintf("[%d]", i+1), q)
	}
}

// starters are the welcome-screen prompts, in Vietnamese and English.
var starters = [][2]string{
	{"Hội An có gì đẹp?", "What to visit in Hoi An?"},
	{"Trekking Sa Pa", "Trekking in Sa Pa"},
	{"Du lịch Phú Quốc", "Phu Quoc tourism"},
	{"Ăn gì ở Hà Nội?", "What to eat in Hanoi?"},
}

// Starters returns the welcome prompts in lang.
func Starters(lang i18n.Lang) []string {
	out := make([]string, len(starters))
	for i, s := range starters {
		if lang == i18n.English {
			out[i] = s[1]
		} else {
			out[i] = s[0]
		}
	}
	return out
}

// Thinking prints the in-flight indicator.
func (r *Renderer) Thinking(lang i18n.Lang) {
	fmt.Fprintln(r.w, r.theme.Muted.Sprint(i18n.T(lang, i18n.KeyThinking)))
}

// Notice prints a localized transient notice, with the error detail when present.
func (r *Renderer) Notice(key i18n.Key, err error, lang i18n.Lang) {
	msg := i18n.T(lang, key)
	if err != nil {
		msg += ": " + api.Detail(err)
	}
	fmt.Fprintln(r.w, r.theme.Warn.Sprint("! "+msg))
}

// Error prints a failure that has no catalog entry.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.w, r.theme.Warn.Sprint("! "+api.Detail(err)))
}

// Info prints a plain status line.
func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.w, r.theme.Muted.Sprint(msg))
}

// Conversations prints the cached list, numbered for /open and /delete.
func (r *Renderer) Conversations(list []api.ConversationSummary, activeID string, lang i18n.Lang) {
	if len(list) == 0 {
		fmt.Fprintln(r.w, r.theme.Muted.Sprint(i18n.T(lang, i18n.KeyNoConversations)))
		return
	}
	now := r.now()
	for i, s := range list {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = i18n.T(lang, i18n.KeyNewChat)
		}
		marker := "  "
		if s.ID == activeID {
			marker = r.theme.Active.Sprint("▸ ")
		}
		meta := fmt.Sprintf("%d %s", s.MessageCount, i18n.T(lang, i18n.KeyMessages))
		if !s.UpdatedAt.IsZero() {
			meta += " · " + humanize.RelTime(s.UpdatedAt.Time, now, "ago", "from now")
		}
		fmt.Fprintf(r.w, "%s%s %s %s\n", marker, r.theme.Bullet.Sprintf("%2d.", i+1), title, r.theme.Muted.Sprint(meta))
		if last := strings.TrimSpace(s.LastMessage); last != "" {
			fmt.Fprintf(r.w, "       %s\n", r.theme.Muted.Sprint(truncate(last, 72)))
		}
	}
}

// Destinations prints a numbered destination listing for /go.
func (r *Renderer) Destinations(list []api.Destination, lang i18n.Lang) {
	if len(list) == 0 {
		fmt.Fprintln(r.w, r.theme.Muted.Sprint(i18n.T(lang, i18n.KeyNoDestinations)))
		return
	}
	for i, d := range list {
		loc := destinations.Localize(d, lang)
		fmt.Fprintf(r.w, "%s %s %s\n", r.theme.Bullet.Sprintf("%2d.", i+1), r.theme.Bold.Sprint(loc.Name), r.theme.Muted.Sprintf("(%s · %s)", loc.Region, strings.Join(loc.Types, ", ")))
		if loc.Description != "" {
			fmt.Fprintf(r.w, "    %s\n", truncate(loc.Description, 96))
		}
		if len(loc.Highlights) > 0 {
			fmt.Fprintf(r.w, "    %s\n", r.theme.Muted.Sprint("★ "+strings.Join(loc.Highlights, " · ")))
		}
	}
}

// Bytes formats a byte count the way humans read it.
func Bytes(n int) string {
	return humanize.Bytes(uint64(n))
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
