package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/modmail/internal/types"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(openTestDB(t))
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	return j
}

var journalBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestJournal_RecordAndGet(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	recorded, err := j.Record(ctx, Entry{
		Subreddit:      "TestSub",
		State:          types.StateNew,
		ConversationID: "abc12",
		RuleIndex:      2,
		Actions:        []string{`reply("hi\nthere")`, "highlight"},
		ConfigRevision: ConfigRevision("type: new"),
		ExecutedAt:     journalBase,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if recorded.ID == "" {
		t.Fatal("Record() did not assign an ID")
	}
	if _, err := types.ParseActionID(string(recorded.ID)); err != nil {
		t.Errorf("Record() ID %q is not a UUID: %v", recorded.ID, err)
	}

	got, err := j.Get(ctx, recorded.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subreddit != "testsub" {
		t.Errorf("Subreddit = %q, want lowercased testsub", got.Subreddit)
	}
	if got.State != types.StateNew || got.ConversationID != "abc12" || got.RuleIndex != 2 {
		t.Errorf("Get() = %+v, fields not round-tripped", got)
	}
	if len(got.Actions) != 2 || got.Actions[0] != `reply("hi\nthere")` || got.Actions[1] != "highlight" {
		t.Errorf("Actions = %q, want reply and highlight", got.Actions)
	}
	if !got.ExecutedAt.Equal(journalBase) {
		t.Errorf("ExecutedAt = %v, want %v", got.ExecutedAt, journalBase)
	}
}

func TestJournal_RecordDefaultsTime(t *testing.T) {
	j := newTestJournal(t)
	j.now = func() time.Time { return journalBase }

	e, err := j.Record(context.Background(), Entry{Subreddit: "s", State: types.StateMod, ConversationID: "c"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !e.ExecutedAt.Equal(journalBase) {
		t.Errorf("ExecutedAt = %v, want %v", e.ExecutedAt, journalBase)
	}
	if len(e.Actions) != 0 {
		t.Errorf("Actions = %q, want none", e.Actions)
	}
}

func TestJournal_GetMissing(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Get(context.Background(), types.NewActionID())
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get() error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournal_List(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	seed := []Entry{
		{Subreddit: "alpha", State: types.StateNew, ConversationID: "c1", ExecutedAt: journalBase},
		{Subreddit: "alpha", State: types.StateMod, ConversationID: "c2", ExecutedAt: journalBase.Add(time.Minute)},
		{Subreddit: "beta", State: types.StateNew, ConversationID: "c3", ExecutedAt: journalBase.Add(2 * time.Minute)},
		{Subreddit: "Alpha", State: types.StateNew, ConversationID: "c1", ExecutedAt: journalBase.Add(3 * time.Minute)},
	}
	for _, e := range seed {
		if _, err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // conversation IDs, newest first
	}{
		{"all", Filter{}, []string{"c1", "c3", "c2", "c1"}},
		{"subreddit case-insensitive", Filter{Subreddit: "ALPHA"}, []string{"c1", "c2", "c1"}},
		{"state", Filter{State: types.StateNew}, []string{"c1", "c3", "c1"}},
		{"subreddit and state", Filter{Subreddit: "alpha", State: types.StateMod}, []string{"c2"}},
		{"conversation", Filter{ConversationID: "c1"}, []string{"c1", "c1"}},
		{"since", Filter{Since: journalBase.Add(2 * time.Minute)}, []string{"c1", "c3"}},
		{"limit", Filter{Limit: 1}, []string{"c1"}},
		{"no match", Filter{Subreddit: "gamma"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.ConversationID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("List(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestJournal_CountForConversation(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for range 3 {
		if _, err := j.Record(ctx, Entry{Subreddit: "s", State: types.StateNew, ConversationID: "busy"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := j.CountForConversation(ctx, "busy")
	if err != nil {
		t.Fatalf("CountForConversation() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountForConversation() = %d, want 3", n)
	}

	n, err = j.CountForConversation(ctx, "quiet")
	if err != nil {
		t.Fatalf("CountForConversation() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountForConversation(quiet) = %d, want 0", n)
	}
}

func TestJournal_ListQueryPlaceholders(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{driverSqlite, "subreddit = ?"},
		{driverPostgres, "subreddit = $1"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			j := &Journal{db: sqlx.NewDb(nil, tt.driver)}
			query, args, err := j.listQuery(Filter{Subreddit: "x"}).ToSql()
			if err != nil {
				t.Fatalf("ToSql() error = %v", err)
			}
			if !strings.Contains(query, tt.want) {
				t.Errorf("query = %q, want %q", query, tt.want)
			}
			if len(args) != 1 || args[0] != "x" {
				t.Errorf("args = %v, want [x]", args)
			}
			if !strings.Contains(query, "LIMIT 50") {
				t.Errorf("query = %q, want default LIMIT 50", query)
			}
		})
	}
}

func TestConfigRevision(t *testing.T) {
	a := ConfigRevision("type: new\nbody: refund")
	if len(a) != 16 {
		t.Errorf("ConfigRevision() = %q, want 16 hex chars", a)
	}
	if a != ConfigRevision("type: new\nbody: refund") {
		t.Error("ConfigRevision() not deterministic")
	}
	if a == ConfigRevision("type: new\nbody: refunds") {
		t.Error("ConfigRevision() identical for different text")
	}
}

func TestConfigRevision_PropertyFixedWidth(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("revision is always 16 lowercase hex chars", prop.ForAll(
		func(text string) bool {
			rev := ConfigRevision(text)
			if len(rev) != 16 {
				return false
			}
			return strings.Trim(rev, "0123456789abcdef") == ""
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
