// ABOUTME: Interactive chat loop: plain lines are sent, slash commands drive history and destinations
// ABOUTME: Notices published by the session are drained and printed after every command

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/2389/vnguide/internal/api"
	"github.com/2389/vnguide/internal/conversation"
	"github.com/2389/vnguide/internal/destinations"
	"github.com/2389/vnguide/internal/history"
	"github.com/2389/vnguide/internal/i18n"
	"github.com/2389/vnguide/internal/pipeline"
	"github.com/2389/vnguide/internal/render"
	"github.com/2389/vnguide/internal/session"
)

// runChat builds the app and runs the interactive loop until EOF, /quit or ctx ends.
func runChat(ctx context.Context, flags *globalFlags, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, flags, out)
	if err != nil {
		return err
	}
	defer a.Close()

	interactive := isTerminal(in)
	if interactive {
		fmt.Fprint(out, a.out.Theme().Heading.Sprint(banner))
		fmt.Fprintln(out, a.out.Theme().Muted.Sprint("/help for commands, /quit to exit"))
	}

	r := newREPL(ctx, a.sess, a.out, out, a.logger)
	defer r.close()
	r.prompt = interactive

	if flags.seed != "" {
		r.seed(ctx, flags.seed)
	} else {
		a.out.Transcript(a.sess.Snapshot(), a.sess.Language())
	}
	r.flushNotices()

	if err := r.run(ctx, in); err != nil {
		return err
	}
	if interactive {
		fmt.Fprintln(out, "\nTạm biệt! Goodbye!")
	}
	return nil
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// repl is the command dispatcher for one chat session.
type repl struct {
	sess   *session.Session
	out    *render.Renderer
	w      io.Writer
	logger *slog.Logger
	prompt bool

	notices <-chan conversation.Event
	subID   string

	// lastDestinations backs /go numbering.
	lastDestinations []api.Destination
}

func newREPL(ctx context.Context, sess *session.Session, out *render.Renderer, w io.Writer, logger *slog.Logger) *repl {
	if logger == nil {
		logger = slog.Default()
	}
	ch, subID := sess.Subscribe(ctx)
	return &repl{
		sess:    sess,
		out:     out,
		w:       w,
		logger:  logger.With("component", "repl"),
		notices: ch,
		subID:   subID,
	}
}

func (r *repl) close() {
	r.sess.Unsubscribe(r.subID)
}

func (r *repl) lang() i18n.Lang { return r.sess.Language() }

// run reads lines from in until EOF, a quit command or ctx cancellation.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	done := make(chan struct{})
	defer close(done)
	lines, errc := readLines(in, done)

	for {
		if r.prompt {
			fmt.Fprint(r.w, r.out.Theme().User.Sprint("› "))
		}

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case input = <-lines:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		r.handle(ctx, input)
		r.flushNotices()
	}
}

// readLines scans in on one goroutine. A line is read only after the previous
// one was taken, and the goroutine stops once done is closed. errc receives
// nil on EOF.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// handle executes one input line.
func (r *repl) handle(ctx context.Context, input string) {
	if !strings.HasPrefix(input, "/") {
		r.send(ctx, true, func() pipeline.Result { return r.sess.Send(ctx, input) })
		return
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	lang := r.lang()

	switch cmd {
	case "/help":
		r.help()
	case "/new":
		r.sess.NewChat(ctx)
		r.out.Welcome(lang)
	case "/list":
		list, err := r.sess.Conversations(ctx)
		if err != nil {
			r.report(err)
			return
		}
		r.out.Conversations(list, r.sess.Snapshot().ID, lang)
	case "/open":
		id, ok := r.resolve(ctx, arg)
		if !ok {
			return
		}
		if err := r.sess.Select(ctx, id); err != nil {
			r.report(err)
			return
		}
		r.out.Transcript(r.sess.Snapshot(), lang)
	case "/delete":
		id, ok := r.resolve(ctx, arg)
		if !ok {
			return
		}
		r.sess.RequestDeletion(id)
		r.out.Info(i18n.T(lang, i18n.KeyConfirmDelete) + " (/confirm, /cancel)")
	case "/confirm":
		if _, err := r.sess.ConfirmDeletion(ctx); err != nil {
			r.report(err)
			return
		}
		r.out.Info(i18n.T(lang, i18n.KeyDeleted))
	case "/cancel":
		if _, ok := r.sess.PendingDeletion(); ok {
			r.sess.CancelDeletion()
			r.out.Info(i18n.T(lang, i18n.KeyCancelled))
		}
	case "/follow":
		n, err := strconv.Atoi(arg)
		if err != nil {
			r.out.Error(fmt.Errorf("usage: /follow <n>"))
			return
		}
		if len(r.sess.Snapshot().Messages) == 0 {
			starters := render.Starters(lang)
			if n < 1 || n > len(starters) {
				r.out.Error(session.ErrNoSuggestion)
				return
			}
			r.send(ctx, false, func() pipeline.Result { return r.sess.Send(ctx, starters[n-1]) })
			return
		}
		r.send(ctx, false, func() pipeline.Result { return r.sess.FollowUp(ctx, n) })
	case "/explore":
		filter, err := destinations.ParseFilter(strings.Fields(arg))
		if err != nil {
			r.out.Error(err)
			return
		}
		list, err := r.sess.Destinations(ctx, filter)
		if err != nil {
			r.out.Error(err)
			return
		}
		r.lastDestinations = list
		r.out.Destinations(list, lang)
	case "/go":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(r.lastDestinations) {
			r.out.Error(fmt.Errorf("usage: /go <n> after /explore"))
			return
		}
		d := r.lastDestinations[n-1]
		r.send(ctx, false, func() pipeline.Result {
			res, _ := r.sess.StartDestinationChat(ctx, d)
			return res
		})
	case "/lang":
		next, ok := i18n.Parse(arg)
		if !ok {
			r.out.Error(fmt.Errorf("usage: /lang vi|en"))
			return
		}
		if err := r.sess.SetLanguage(ctx, next); err != nil {
			r.out.Error(err)
			return
		}
		r.out.Info(i18n.T(next, i18n.KeyLanguageChanged))
	case "/speak":
		path := arg
		if path == "" {
			path = "speech.mp3"
		}
		audio, err := r.sess.Speak(ctx, "")
		if err != nil {
			r.out.Error(err)
			return
		}
		if err := os.WriteFile(path, audio, 0o644); err != nil {
			r.out.Error(fmt.Errorf("writing %s: %w", path, err))
			return
		}
		r.out.Info(fmt.Sprintf("%s → %s", render.Bytes(len(audio)), path))
	default:
		r.out.Error(fmt.Errorf("unknown command %s, try /help", cmd))
	}
}

// send runs one pipeline round trip and prints the messages it added. Text the
// user just typed at an interactive prompt is not echoed back.
func (r *repl) send(ctx context.Context, typed bool, fn func() pipeline.Result) {
	lang := r.lang()
	before := r.sess.Snapshot()
	if r.prompt {
		r.out.Thinking(lang)
	}
	res := fn()
	switch res.Outcome {
	case pipeline.OutcomeSucceeded, pipeline.OutcomeFailed:
		after := r.sess.Snapshot()
		added := after.Messages
		if after.Instance == before.Instance && len(before.Messages) <= len(added) {
			added = added[len(before.Messages):]
		}
		for _, m := range added {
			if typed && r.prompt && m.Role == api.RoleUser {
				continue
			}
			r.out.Message(m, lang)
		}
	case pipeline.OutcomeSkipped:
		if res.Err != nil {
			r.logger.Debug("send skipped", "reason", res.Err)
			if errors.Is(res.Err, session.ErrNoSuggestion) {
				r.out.Error(res.Err)
			}
		}
	case pipeline.OutcomeStale:
		r.logger.Debug("reply dropped for replaced conversation", "conversation_id", res.ConversationID)
	}
}

// seed opens a fresh conversation and auto-sends text into it.
func (r *repl) seed(ctx context.Context, text string) {
	r.send(ctx, false, func() pipeline.Result {
		res, _ := r.sess.SeedMessage(ctx, text)
		return res
	})
}

// resolve maps a list position or id prefix to a conversation id, falling
// back to the raw reference when the list does not contain it.
func (r *repl) resolve(ctx context.Context, ref string) (string, bool) {
	if ref == "" {
		r.out.Error(fmt.Errorf("usage: /open|/delete <n|id>"))
		return "", false
	}
	if _, err := r.sess.Conversations(ctx); err != nil {
		r.report(err)
		return "", false
	}
	id, err := r.sess.Resolve(ref)
	switch {
	case err == nil:
		return id, true
	case errors.Is(err, history.ErrNotFound):
		if _, convErr := strconv.Atoi(ref); convErr == nil {
			r.out.Error(fmt.Errorf("%s: %w", ref, err))
			return "", false
		}
		return ref, true
	default:
		r.out.Error(fmt.Errorf("%s: %w", ref, err))
		return "", false
	}
}

// report prints err unless the backend failure was already published as a notice.
func (r *repl) report(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return
	}
	switch {
	case errors.Is(err, history.ErrNoDeletionIntent):
		r.out.Error(fmt.Errorf("nothing to confirm, use /delete <n|id> first"))
	case errors.Is(err, history.ErrDeletionInFlight):
		r.out.Info("deletion already in progress")
	default:
		r.out.Error(err)
	}
}

// flushNotices prints every notice published so far without blocking.
func (r *repl) flushNotices() {
	for {
		select {
		case ev, ok := <-r.notices:
			if !ok {
				return
			}
			if ev.Kind == conversation.EventNotice {
				r.out.Notice(ev.Notice, ev.Err, r.lang())
			}
		default:
			return
		}
	}
}

func (r *repl) help() {
	lines := []string{
		"Commands:",
		"  <text>                 Send a message",
		"  /new                   Start a new conversation",
		"  /list                  Show conversation history",
		"  /open <n|id>           Open a conversation",
		"  /delete <n|id>         Ask to delete a conversation",
		"  /confirm, /cancel      Confirm or cancel the pending deletion",
		"  /follow <n>            Send suggested question n",
		"  /explore [region] [type]",
		"                         Browse destinations",
		"  /go <n>                Start a chat about destination n",
		"  /lang vi|en            Switch language",
		"  /speak [file]          Save the latest reply as speech (default speech.mp3)",
		"  /help                  Show this help",
		"  /quit                  Exit",
	}
	for _, l := range lines {
		fmt.Fprintln(r.w, l)
	}
}
