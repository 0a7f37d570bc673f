package rules

import (
	"context"
	"errors"
	"iter"

	"github.com/solatis/modmail/internal/types"
)

var errAuthorNotFound = errors.New("author not found")

// fakeRemote records calls and serves canned authors and listings.
type fakeRemote struct {
	authors      map[string]*types.Author
	moderators   []string
	contributors []string
	authorErr    error
	listErr      error
	actionErr    error

	authorLoads int
	listed      int
	calls       []string
}

func (f *fakeRemote) Author(ctx context.Context, name string) (*types.Author, error) {
	f.authorLoads++
	if f.authorErr != nil {
		return nil, f.authorErr
	}
	a, ok := f.authors[name]
	if !ok {
		return nil, errAuthorNotFound
	}
	return a, nil
}

func (f *fakeRemote) Moderators(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return f.seq(f.moderators)
}

func (f *fakeRemote) Contributors(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return f.seq(f.contributors)
}

func (f *fakeRemote) seq(names []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if f.listErr != nil {
			yield("", f.listErr)
			return
		}
		for _, n := range names {
			f.listed++
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (f *fakeRemote) Reply(ctx context.Context, conv *types.Conversation, body string) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.calls = append(f.calls, "reply:"+body)
	return nil
}

func (f *fakeRemote) Highlight(ctx context.Context, conv *types.Conversation) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.calls = append(f.calls, "highlight")
	return nil
}

func (f *fakeRemote) Unhighlight(ctx context.Context, conv *types.Conversation) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.calls = append(f.calls, "unhighlight")
	return nil
}

func (f *fakeRemote) Archive(ctx context.Context, conv *types.Conversation) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.calls = append(f.calls, "archive")
	return nil
}

// conversation builds a single-message conversation in r/testsub.
func conversation(subject, body, author string) *types.Conversation {
	return &types.Conversation{
		ID:        "abc12",
		Subject:   subject,
		Subreddit: "testsub",
		Messages:  []types.Message{{ID: "m1", Author: author, Body: body}},
	}
}

// mustCompile parses a single-document config and compiles it.
func mustCompile(t interface {
	Helper()
	Fatalf(string, ...any)
}, text string) *RuleAction {
	t.Helper()
	docs, err := ParseDocuments(text)
	if err != nil {
		t.Fatalf("ParseDocuments() error = %v, want nil", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %v, want 1", len(docs))
	}
	rule, err := Compile(docs[0])
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	return rule
}
