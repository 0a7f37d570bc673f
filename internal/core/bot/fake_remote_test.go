package bot

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/solatis/modmail/internal/core/db"
	"github.com/solatis/modmail/internal/reddit"
	"github.com/solatis/modmail/internal/types"
)

var errBoom = errors.New("boom")

// streamItem is one value yielded by fakeRemote.Stream.
type streamItem struct {
	id  string
	err error
}

// fakeRemote serves canned conversations, wiki pages and stream items.
// Safe for concurrent use by Listen's workers.
type fakeRemote struct {
	mu            sync.Mutex
	conversations map[string]*types.Conversation
	wiki          map[string]string // subreddit -> rule text
	streams       map[string][]streamItem
	convErr       error
	wikiErr       error

	handled []string
	calls   []string
}

func streamKey(subreddit string, state types.MailboxState) string {
	return subreddit + "/" + string(state)
}

func (f *fakeRemote) Conversation(ctx context.Context, id string) (*types.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	conv, ok := f.conversations[id]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	f.handled = append(f.handled, id)
	copied := *conv
	return &copied, nil
}

func (f *fakeRemote) WikiPage(ctx context.Context, subreddit, page string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wikiErr != nil {
		return "", f.wikiErr
	}
	return f.wiki[subreddit], nil
}

func (f *fakeRemote) Stream(ctx context.Context, subreddit string, state types.MailboxState, opts reddit.StreamOptions) iter.Seq2[string, error] {
	f.mu.Lock()
	items := f.streams[streamKey(subreddit, state)]
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, item := range items {
			if !yield(item.id, item.err) {
				return
			}
		}
	}
}

func (f *fakeRemote) Author(ctx context.Context, name string) (*types.Author, error) {
	return &types.Author{Name: name, CreatedUTC: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeRemote) Moderators(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (f *fakeRemote) Contributors(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeRemote) Reply(ctx context.Context, conv *types.Conversation, body string) error {
	return f.record("reply:" + conv.ID + ":" + body)
}

func (f *fakeRemote) Highlight(ctx context.Context, conv *types.Conversation) error {
	return f.record("highlight:" + conv.ID)
}

func (f *fakeRemote) Unhighlight(ctx context.Context, conv *types.Conversation) error {
	return f.record("unhighlight:" + conv.ID)
}

func (f *fakeRemote) Archive(ctx context.Context, conv *types.Conversation) error {
	return f.record("archive:" + conv.ID)
}

// fakeJournal keeps recorded entries in memory.
type fakeJournal struct {
	mu      sync.Mutex
	entries []db.Entry
	err     error
}

func (j *fakeJournal) Record(ctx context.Context, e db.Entry) (db.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return db.Entry{}, j.err
	}
	e.ID = types.NewActionID()
	j.entries = append(j.entries, e)
	return e, nil
}

// fakeHealth remembers the last status per stream and every transition.
type fakeHealth struct {
	mu          sync.Mutex
	last        map[string]bool
	transitions int
}

func (h *fakeHealth) SetStreamServing(subreddit string, state types.MailboxState, serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		h.last = make(map[string]bool)
	}
	h.last[streamKey(subreddit, state)] = serving
	h.transitions++
}

func conversation(id, subreddit, body string) *types.Conversation {
	return &types.Conversation{
		ID:        id,
		Subject:   "Order",
		Subreddit: subreddit,
		Messages: []types.Message{
			{ID: id + "-m1", Author: "someuser", Body: body, Date: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)},
		},
	}
}
