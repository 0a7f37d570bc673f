// internal/rules/actions.go
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/modmail/internal/types"
)

// ActionKind is one executable step of a rule.
type ActionKind string

const (
	ActionReply       ActionKind = "reply"
	ActionHighlight   ActionKind = "highlight"
	ActionUnhighlight ActionKind = "unhighlight"
	ActionArchive     ActionKind = "archive"
)

// Configured values of the action field.
const (
	actionValueHighlight = "highlight"
	actionValueRemove    = "remove"
)

// PlannedAction is a step Run will execute. Body is set for replies.
type PlannedAction struct {
	Kind ActionKind
	Body string
}

func (a PlannedAction) String() string {
	if a.Kind == ActionReply {
		return fmt.Sprintf("%s(%q)", a.Kind, a.Body)
	}
	return string(a.Kind)
}

// placeholder replaces one {{token}} in reply text.
type placeholder struct {
	token   string
	extract func(Target) string
}

var placeholders = []placeholder{
	{"{{author}}", func(t Target) string {
		msg, _ := t.Conversation.LastMessage()
		return msg.Author
	}},
	{"{{content}}", func(t Target) string { return lastBody(t.Conversation) }},
	{"{{permalink}}", func(t Target) string { return t.Conversation.Permalink() }},
	{"{{subreddit}}", func(t Target) string { return t.Conversation.Subreddit }},
	{"{{kind}}", func(t Target) string { return string(t.State) }},
	{"{{subject}}", func(t Target) string { return t.Conversation.Subject }},
}

// ExpandPlaceholders substitutes every known placeholder in text.
func ExpandPlaceholders(text string, target Target) string {
	for _, p := range placeholders {
		if strings.Contains(text, p.token) {
			text = strings.ReplaceAll(text, p.token, p.extract(target))
		}
	}
	return text
}

// Plan computes the steps Run would take, without side effects.
// Only comment and action records contribute, in record order. Action values
// run in lexicographic order; unknown values are ignored.
func (r *RuleAction) Plan(target Target) []PlannedAction {
	var plan []PlannedAction
	highlighted := target.Conversation.IsHighlighted

	for _, rec := range r.Records {
		switch rec.Field {
		case FieldComment:
			body := ExpandPlaceholders(strings.Join(rec.Values, "\n"), target)
			plan = append(plan, PlannedAction{Kind: ActionReply, Body: body})

		case FieldAction:
			values := append([]string(nil), rec.Values...)
			sort.Strings(values)
			for _, v := range values {
				switch strings.ToLower(strings.TrimSpace(v)) {
				case actionValueHighlight:
					if !highlighted {
						plan = append(plan, PlannedAction{Kind: ActionHighlight})
						highlighted = true
					}
				case actionValueRemove:
					if highlighted {
						plan = append(plan, PlannedAction{Kind: ActionUnhighlight})
						highlighted = false
					}
					plan = append(plan, PlannedAction{Kind: ActionArchive})
				}
			}
		}
	}
	return plan
}

// Run executes the rule's plan against target.
// Returns true iff at least one step was executed. Local conversation flags
// follow each successful step.
func (r *RuleAction) Run(ctx context.Context, env Env, target Target) (bool, error) {
	if target.Conversation == nil {
		return false, types.ErrNoMessages
	}

	conv := target.Conversation
	executed := false
	for _, step := range r.Plan(target) {
		if err := execute(ctx, env.Remote, conv, step); err != nil {
			return executed, fmt.Errorf("%s conversation %s: %w", step.Kind, conv.ID, err)
		}
		executed = true
		env.logger().Info("executed rule action",
			"action", string(step.Kind),
			"conversation", conv.ID,
			"subreddit", conv.Subreddit)
	}
	return executed, nil
}

func execute(ctx context.Context, remote Remote, conv *types.Conversation, step PlannedAction) error {
	switch step.Kind {
	case ActionReply:
		return remote.Reply(ctx, conv, step.Body)
	case ActionHighlight:
		if err := remote.Highlight(ctx, conv); err != nil {
			return err
		}
		conv.IsHighlighted = true
	case ActionUnhighlight:
		if err := remote.Unhighlight(ctx, conv); err != nil {
			return err
		}
		conv.IsHighlighted = false
	case ActionArchive:
		if err := remote.Archive(ctx, conv); err != nil {
			return err
		}
		conv.IsArchived = true
	default:
		return fmt.Errorf("%w: %s", types.ErrUnknownAction, step.Kind)
	}
	return nil
}
