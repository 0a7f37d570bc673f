package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/solatis/modmail/internal/rules"
	"github.com/solatis/modmail/internal/types"
	"github.com/spf13/cobra"
)

var errReadOnly = errors.New("check does not execute actions")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a local rule file against a sample conversation",
	Long: `check parses a rule file the way the bot parses a wiki page and reports which
rule would match the sample conversation and what it would do. Nothing is sent to Reddit.`,
	RunE: runCheck,
}

// checkInput describes the sample conversation and its author.
type checkInput struct {
	state       string
	subject     string
	body        string
	author      string
	authorAge   time.Duration
	karma       int64
	linkKarma   int64
	verified    bool
	moderator   bool
	contributor bool
	highlighted bool
}

var checkArgs checkInput
var checkRulesFile string

func init() {
	rootCmd.AddCommand(checkCmd)
	f := checkCmd.Flags()
	f.StringVar(&checkRulesFile, "rules", "", "rule file to evaluate (required)")
	f.StringVar(&checkArgs.state, "state", string(types.StateMod), "mailbox state of the sample conversation")
	f.StringVar(&checkArgs.subject, "subject", "", "conversation subject")
	f.StringVar(&checkArgs.body, "body", "", "latest message body")
	f.StringVar(&checkArgs.author, "author", "sample_user", "latest message author")
	f.DurationVar(&checkArgs.authorAge, "author-age", 365*24*time.Hour, "author account age")
	f.Int64Var(&checkArgs.karma, "karma", 0, "author comment karma")
	f.Int64Var(&checkArgs.linkKarma, "link-karma", 0, "author link karma")
	f.BoolVar(&checkArgs.verified, "verified", false, "author has a verified email")
	f.BoolVar(&checkArgs.moderator, "moderator", false, "author moderates the subreddit")
	f.BoolVar(&checkArgs.contributor, "contributor", false, "author is an approved contributor")
	f.BoolVar(&checkArgs.highlighted, "highlighted", false, "conversation is already highlighted")
	checkCmd.MarkFlagRequired("rules")
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(checkRulesFile)
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}
	return checkRules(cmd.Context(), cmd.OutOrStdout(), string(text), checkArgs, time.Now())
}

// checkRules matches text against the sample conversation and prints the result.
func checkRules(ctx context.Context, w io.Writer, text string, in checkInput, now time.Time) error {
	state, err := types.ParseMailboxState(in.state)
	if err != nil {
		return err
	}

	docs, err := rules.ParseDocuments(text)
	if err != nil {
		return err
	}

	conv := &types.Conversation{
		ID:            "sample",
		Subject:       in.subject,
		Subreddit:     "sample",
		IsHighlighted: in.highlighted,
		Messages: []types.Message{
			{ID: "sample-1", Author: in.author, Body: in.body, Date: now},
		},
	}

	remote := &staticRemote{in: in, now: now}
	engine := rules.NewEngine(rules.Env{Remote: remote, Now: func() time.Time { return now }, Logger: logger})

	rule, outcome, err := engine.Match(ctx, docs, rules.Target{Conversation: conv, State: state})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "documents:  %d\n", len(docs))
	fmt.Fprintf(w, "candidates: %d (type %s)\n", outcome.Candidates, state)
	if rule == nil {
		fmt.Fprintln(w, "match:      none")
		return nil
	}

	fmt.Fprintf(w, "match:      document %d\n", outcome.RuleIndex+1)
	if len(outcome.Plan) == 0 {
		fmt.Fprintln(w, "plan:       nothing to do")
		return nil
	}
	fmt.Fprintln(w, "plan:")
	for i, step := range outcome.Plan {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
	return nil
}

// staticRemote answers author and membership lookups from check's flags and
// refuses to act.
type staticRemote struct {
	in  checkInput
	now time.Time
}

func (r *staticRemote) Author(ctx context.Context, name string) (*types.Author, error) {
	return &types.Author{
		Name:             name,
		CreatedUTC:       r.now.Add(-r.in.authorAge),
		CommentKarma:     r.in.karma,
		LinkKarma:        r.in.linkKarma,
		HasVerifiedEmail: r.in.verified,
	}, nil
}

func (r *staticRemote) members(include bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if include {
			yield(r.in.author, nil)
		}
	}
}

func (r *staticRemote) Moderators(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return r.members(r.in.moderator)
}

func (r *staticRemote) Contributors(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return r.members(r.in.contributor)
}

func (r *staticRemote) Reply(ctx context.Context, conv *types.Conversation, body string) error {
	return errReadOnly
}

func (r *staticRemote) Highlight(ctx context.Context, conv *types.Conversation) error {
	return errReadOnly
}

func (r *staticRemote) Unhighlight(ctx context.Context, conv *types.Conversation) error {
	return errReadOnly
}

func (r *staticRemote) Archive(ctx context.Context, conv *types.Conversation) error {
	return errReadOnly
}
