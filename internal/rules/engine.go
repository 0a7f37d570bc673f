// internal/rules/engine.go
package rules

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/modmail/internal/types"
)

/*
 * Rule dispatch.
 *
 * Configuration text is parsed on every conversation; there is no rule cache,
 * so a wiki edit applies to the next conversation handled.
 *
 * Dispatch flow:
 *   1. ParseDocuments (ConfigParseError is terminal for the conversation)
 *   2. Keep documents whose type names the current state
 *   3. Compile candidates in document order, skipping incomplete ones
 *   4. The first candidate whose ShouldAction is true runs; the rest are ignored
 *
 * The engine holds no mutable state and is safe to share between state workers.
 */

type nameSeq = iter.Seq2[string, error]

// Remote is the part of the Reddit API rules evaluate and act through.
// Implemented by *reddit.Client.
type Remote interface {
	Author(ctx context.Context, name string) (*types.Author, error)
	Moderators(ctx context.Context, subreddit string) iter.Seq2[string, error]
	Contributors(ctx context.Context, subreddit string) iter.Seq2[string, error]
	Reply(ctx context.Context, conv *types.Conversation, body string) error
	Highlight(ctx context.Context, conv *types.Conversation) error
	Unhighlight(ctx context.Context, conv *types.Conversation) error
	Archive(ctx context.Context, conv *types.Conversation) error
}

// Env carries the collaborators a rule needs. Zero Now and Logger use defaults.
type Env struct {
	Remote Remote
	Now    func() time.Time
	Logger *slog.Logger
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Engine dispatches configuration documents against conversations.
type Engine struct {
	env Env
}

// NewEngine creates a rules engine bound to env.
func NewEngine(env Env) *Engine {
	return &Engine{env: env}
}

// Candidate is a document whose type names the dispatched state.
type Candidate struct {
	Index    int // position among all parsed documents
	Document Document
}

// Outcome describes what Dispatch did for one conversation.
type Outcome struct {
	Candidates int
	Matched    bool
	RuleIndex  int // document index of the matched rule; -1 when unmatched
	Plan       []PlannedAction
	Executed   bool
}

// RulesOfType returns documents whose type value is state or a list containing it.
func RulesOfType(state types.MailboxState, docs []Document) []Candidate {
	var out []Candidate
	for i, doc := range docs {
		for _, entry := range doc {
			if entry.Key != "type" {
				continue
			}
			if typeMatches(entry.Value, state) {
				out = append(out, Candidate{Index: i, Document: doc})
				break
			}
		}
	}
	return out
}

func typeMatches(value any, state types.MailboxState) bool {
	switch v := value.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(v), string(state))
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(strings.TrimSpace(s), string(state)) {
				return true
			}
		}
	}
	return false
}

// Match finds the first candidate rule that matches target without running it.
// Returns a nil rule and an Outcome with Matched=false when nothing matches.
func (e *Engine) Match(ctx context.Context, docs []Document, target Target) (*RuleAction, Outcome, error) {
	outcome := Outcome{RuleIndex: -1}

	candidates := RulesOfType(target.State, docs)
	outcome.Candidates = len(candidates)

	for _, c := range candidates {
		rule, err := Compile(c.Document)
		if err != nil {
			if errors.Is(err, types.ErrRuleIncomplete) {
				e.env.logger().Debug("skipping incomplete rule", "rule", c.Index)
				continue
			}
			return nil, outcome, err
		}

		matched, err := rule.ShouldAction(ctx, e.env, target)
		if err != nil {
			return nil, outcome, err
		}
		if matched {
			outcome.Matched = true
			outcome.RuleIndex = c.Index
			outcome.Plan = rule.Plan(target)
			return rule, outcome, nil
		}
	}
	return nil, outcome, nil
}

// Dispatch parses configText, matches it against target and runs the first match.
func (e *Engine) Dispatch(ctx context.Context, configText string, target Target) (Outcome, error) {
	docs, err := ParseDocuments(configText)
	if err != nil {
		return Outcome{RuleIndex: -1}, err
	}

	rule, outcome, err := e.Match(ctx, docs, target)
	if err != nil || rule == nil {
		return outcome, err
	}

	executed, err := rule.Run(ctx, e.env, target)
	outcome.Executed = executed
	return outcome, err
}
