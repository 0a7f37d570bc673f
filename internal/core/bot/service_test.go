package bot

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/solatis/modmail/internal/core/db"
	"github.com/solatis/modmail/internal/logging"
	"github.com/solatis/modmail/internal/telemetry"
	"github.com/solatis/modmail/internal/types"
)

const refundRule = "type: mod\naction: highlight\ncontent(includes): [refund]"

func newTestService(t *testing.T, remote *fakeRemote, opts Options) *Service {
	t.Helper()
	if opts.Subreddits == nil {
		opts.Subreddits = []string{"testsub"}
	}
	if opts.States == nil {
		opts.States = []types.MailboxState{types.StateMod}
	}
	if opts.WikiPage == "" {
		opts.WikiPage = "reddit_modmail"
	}
	opts.Logger = logging.Discard()

	svc, err := NewService(remote, opts)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewService_Validation(t *testing.T) {
	states := []types.MailboxState{types.StateMod}
	tests := []struct {
		name   string
		remote Remote
		opts   Options
	}{
		{"nil remote", nil, Options{Subreddits: []string{"s"}, States: states, WikiPage: "p"}},
		{"no subreddits", &fakeRemote{}, Options{States: states, WikiPage: "p"}},
		{"no states", &fakeRemote{}, Options{Subreddits: []string{"s"}, WikiPage: "p"}},
		{"no wiki page", &fakeRemote{}, Options{Subreddits: []string{"s"}, States: states}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(tt.remote, tt.opts); err == nil {
				t.Error("NewService() error = nil, want error")
			}
		})
	}
}

func TestHandle_Matched(t *testing.T) {
	telemetry.ConversationsHandled.Reset()
	telemetry.ActionsExecuted.Reset()

	remote := &fakeRemote{
		conversations: map[string]*types.Conversation{"c1": conversation("c1", "testsub", "I want a refund please")},
		wiki:          map[string]string{"testsub": refundRule},
	}
	journal := &fakeJournal{}
	svc := newTestService(t, remote, Options{Journal: journal})

	outcome, err := svc.Handle(context.Background(), "testsub", types.StateMod, "c1")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !outcome.Matched || !outcome.Executed || outcome.RuleIndex != 0 {
		t.Errorf("Handle() = %+v, want matched and executed rule 0", outcome)
	}
	if want := []string{"highlight:c1"}; !reflect.DeepEqual(remote.calls, want) {
		t.Errorf("calls = %v, want %v", remote.calls, want)
	}

	if len(journal.entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(journal.entries))
	}
	e := journal.entries[0]
	if e.ConversationID != "c1" || e.Subreddit != "testsub" || e.State != types.StateMod {
		t.Errorf("entry = %+v, wrong conversation fields", e)
	}
	if !reflect.DeepEqual(e.Actions, []string{"highlight"}) {
		t.Errorf("entry actions = %v, want [highlight]", e.Actions)
	}
	if e.ConfigRevision != db.ConfigRevision(refundRule) {
		t.Errorf("entry revision = %q, want %q", e.ConfigRevision, db.ConfigRevision(refundRule))
	}

	if got := testutil.ToFloat64(telemetry.ConversationsHandled.WithLabelValues("testsub", "mod", telemetry.ResultMatched)); got != 1 {
		t.Errorf("matched conversations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(telemetry.ActionsExecuted.WithLabelValues("testsub", "highlight")); got != 1 {
		t.Errorf("highlight actions = %v, want 1", got)
	}
}

func TestHandle_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wiki       string
		state      types.MailboxState
		wantResult string
	}{
		{"no keyword", "hello there", refundRule, types.StateMod, telemetry.ResultUnmatched},
		{"other state", "I want a refund", refundRule, types.StateAppeals, telemetry.ResultUnmatched},
		{"empty wiki", "I want a refund", "", types.StateMod, telemetry.ResultUnmatched},
		{"malformed wiki", "I want a refund", "type: mod\naction: [highlight\n", types.StateMod, telemetry.ResultConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			telemetry.ConversationsHandled.Reset()

			remote := &fakeRemote{
				conversations: map[string]*types.Conversation{"c1": conversation("c1", "testsub", tt.body)},
				wiki:          map[string]string{"testsub": tt.wiki},
			}
			journal := &fakeJournal{}
			svc := newTestService(t, remote, Options{Journal: journal})

			outcome, err := svc.Handle(context.Background(), "testsub", tt.state, "c1")
			if err != nil {
				t.Fatalf("Handle() error = %v, want nil", err)
			}
			if outcome.Matched {
				t.Errorf("Handle() matched = true, want false")
			}
			if len(remote.calls) != 0 {
				t.Errorf("calls = %v, want none", remote.calls)
			}
			if len(journal.entries) != 0 {
				t.Errorf("journal entries = %d, want 0", len(journal.entries))
			}
			if got := testutil.ToFloat64(telemetry.ConversationsHandled.WithLabelValues("testsub", string(tt.state), tt.wantResult)); got != 1 {
				t.Errorf("%s conversations = %v, want 1", tt.wantResult, got)
			}
		})
	}
}

func TestHandle_CollaboratorErrors(t *testing.T) {
	tests := []struct {
		name    string
		convErr error
		wikiErr error
	}{
		{"conversation load fails", errBoom, nil},
		{"wiki load fails", nil, errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			telemetry.ConversationsHandled.Reset()

			remote := &fakeRemote{
				conversations: map[string]*types.Conversation{"c1": conversation("c1", "testsub", "refund")},
				wiki:          map[string]string{"testsub": refundRule},
				convErr:       tt.convErr,
				wikiErr:       tt.wikiErr,
			}
			svc := newTestService(t, remote, Options{})

			_, err := svc.Handle(context.Background(), "testsub", types.StateMod, "c1")
			if !errors.Is(err, errBoom) {
				t.Errorf("Handle() error = %v, want wrapped errBoom", err)
			}
			if got := testutil.ToFloat64(telemetry.ConversationsHandled.WithLabelValues("testsub", "mod", telemetry.ResultError)); got != 1 {
				t.Errorf("error conversations = %v, want 1", got)
			}
		})
	}
}

func TestHandle_JournalFailureIsNotFatal(t *testing.T) {
	remote := &fakeRemote{
		conversations: map[string]*types.Conversation{"c1": conversation("c1", "testsub", "refund me")},
		wiki:          map[string]string{"testsub": refundRule},
	}
	svc := newTestService(t, remote, Options{Journal: &fakeJournal{err: errBoom}})

	outcome, err := svc.Handle(context.Background(), "testsub", types.StateMod, "c1")
	if err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	if !outcome.Executed {
		t.Error("Handle() executed = false, want true")
	}
}

func TestHandle_ReplyPlaceholders(t *testing.T) {
	rule := "type: mod\naction: highlight\ncontent(includes): [refund]\ncomment: Hi {{author}}, see r/{{subreddit}}"
	remote := &fakeRemote{
		conversations: map[string]*types.Conversation{"c1": conversation("c1", "testsub", "refund")},
		wiki:          map[string]string{"testsub": rule},
	}
	journal := &fakeJournal{}
	svc := newTestService(t, remote, Options{Journal: journal})

	if _, err := svc.Handle(context.Background(), "testsub", types.StateMod, "c1"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	want := []string{"highlight:c1", "reply:c1:Hi someuser, see r/testsub"}
	sort.Strings(remote.calls)
	if !reflect.DeepEqual(remote.calls, want) {
		t.Errorf("calls = %v, want %v", remote.calls, want)
	}
	if len(journal.entries) != 1 || len(journal.entries[0].Actions) != 2 {
		t.Errorf("journal = %+v, want one entry with two actions", journal.entries)
	}
}

func TestListen(t *testing.T) {
	telemetry.StreamsActive.Set(0)

	remote := &fakeRemote{
		conversations: map[string]*types.Conversation{
			"a1": conversation("a1", "alpha", "refund please"),
			"a2": conversation("a2", "alpha", "just saying hi"),
			"b1": conversation("b1", "beta", "refund now"),
		},
		wiki: map[string]string{"alpha": refundRule, "beta": refundRule},
		streams: map[string][]streamItem{
			streamKey("alpha", types.StateMod): {{id: "a1"}, {err: errBoom}, {id: "a2"}},
			streamKey("beta", types.StateMod):  {{id: "b1"}},
		},
	}
	health := &fakeHealth{}
	journal := &fakeJournal{}
	svc := newTestService(t, remote, Options{
		Subreddits: []string{"alpha", "beta"},
		Journal:    journal,
		Health:     health,
	})

	if err := svc.Listen(context.Background()); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	sort.Strings(remote.handled)
	if want := []string{"a1", "a2", "b1"}; !reflect.DeepEqual(remote.handled, want) {
		t.Errorf("handled = %v, want %v", remote.handled, want)
	}
	sort.Strings(remote.calls)
	if want := []string{"highlight:a1", "highlight:b1"}; !reflect.DeepEqual(remote.calls, want) {
		t.Errorf("calls = %v, want %v", remote.calls, want)
	}
	if len(journal.entries) != 2 {
		t.Errorf("journal entries = %d, want 2", len(journal.entries))
	}

	for _, key := range []string{streamKey("alpha", types.StateMod), streamKey("beta", types.StateMod)} {
		serving, ok := health.last[key]
		if !ok || serving {
			t.Errorf("health[%s] = %v (set %v), want NOT_SERVING after stream end", key, serving, ok)
		}
	}
	if got := testutil.ToFloat64(telemetry.StreamsActive); got != 0 {
		t.Errorf("active streams = %v, want 0 after Listen returns", got)
	}
}

func TestListen_Once(t *testing.T) {
	svc := newTestService(t, &fakeRemote{}, Options{})
	ctx := context.Background()

	if err := svc.Listen(ctx); err != nil {
		t.Fatalf("first Listen() error = %v", err)
	}
	if err := svc.Listen(ctx); !errors.Is(err, ErrAlreadyListening) {
		t.Errorf("second Listen() error = %v, want ErrAlreadyListening", err)
	}
}

func TestListen_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, &fakeRemote{}, Options{})
	if err := svc.Listen(ctx); err != nil {
		t.Errorf("Listen() error = %v, want nil on cancellation", err)
	}
}
