// internal/rules/evaluate.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/solatis/modmail/internal/types"
)

/*
 * Rule matching.
 *
 * Walks records in priority order and short-circuits on the first failure.
 * Informational gates (type, is_top_level) run before anything that costs a
 * network call.
 *
 * Author checks share two flags for one pass:
 *   - anyThreshold: set by author.satisfy_any_threshold, sticky
 *   - authorSatisfied: result of the latest author check, never reset
 * In any-threshold mode a failing author check is tolerated, and once one check
 * succeeds the remaining author checks are skipped. The pass does not re-check
 * at the end that some author check succeeded, so a rule in any-threshold mode
 * whose author checks all fail still matches. Known permissiveness, kept as is.
 *
 * Author-lookup caching: the profile is loaded at most once per pass. A deleted,
 * missing or suspended author (types.ErrAuthorUnavailable) fails author checks
 * like an anonymous message does, which any-threshold mode tolerates.
 *
 * Collaborator errors (author load, moderator/contributor listing) are returned
 * unchanged in kind; the engine never turns them into a non-match.
 */

// Target is the conversation a rule is evaluated against.
type Target struct {
	Conversation *types.Conversation
	State        types.MailboxState
}

type evaluation struct {
	env    Env
	target Target

	anyThreshold    bool
	authorSatisfied bool
	authorLoaded    bool
	author          *types.Author
}

// ShouldAction reports whether the rule matches target.
func (r *RuleAction) ShouldAction(ctx context.Context, env Env, target Target) (bool, error) {
	if target.Conversation == nil {
		return false, types.ErrNoMessages
	}

	ev := &evaluation{env: env, target: target}
	for _, rec := range r.Records {
		matched, err := ev.check(ctx, rec)
		if err != nil {
			return false, err
		}
		if !matched {
			env.logger().Debug("rule condition failed",
				"field", rec.Field.String(),
				"conversation", target.Conversation.ID)
			return false, nil
		}
	}
	return true, nil
}

// check evaluates one record. false stops the pass.
func (ev *evaluation) check(ctx context.Context, rec Record) (bool, error) {
	conv := ev.target.Conversation

	switch rec.Field {
	case FieldType:
		return containsState(rec.Values, ev.target.State), nil

	case FieldIsTopLevel:
		return conv.MessageCount() <= 1, nil

	case FieldAuthorSatisfyAnyThreshold:
		ev.anyThreshold = true
		return true, nil

	case FieldAuthorPostKarma, FieldAuthorCommentKarma, FieldAuthorCombinedKarma,
		FieldAuthorAccountAge, FieldAuthorHasVerifiedEmail,
		FieldAuthorIsContributor, FieldAuthorIsModerator:
		return ev.checkAuthor(ctx, rec)

	case FieldContentShorterThan, FieldContentLongerThan:
		return checkLength(rec, lastBody(conv)), nil

	case FieldSubject, FieldContent:
		text := conv.Subject
		if rec.Field == FieldContent {
			text = lastBody(conv)
		}
		matched, err := ParseSelector(rec.Selector).Match(rec.Values, text)
		if err != nil {
			ev.env.logger().Warn("invalid selector pattern",
				"field", rec.Field.String(),
				"selector", rec.Selector,
				"error", err)
			return false, nil
		}
		return matched, nil

	case FieldAction, FieldComment:
		return true, nil

	default:
		return false, fmt.Errorf("unhandled rule field %d", rec.Field)
	}
}

func (ev *evaluation) checkAuthor(ctx context.Context, rec Record) (bool, error) {
	if ev.anyThreshold && ev.authorSatisfied {
		return true, nil
	}

	author, err := ev.loadAuthor(ctx)
	if err != nil {
		return false, err
	}
	if author == nil {
		// Deleted or hidden author: nothing to verify against.
		return ev.anyThreshold, nil
	}

	switch rec.Field {
	case FieldAuthorIsModerator:
		ev.authorSatisfied = false
		if coerceFlag(rec.Values) {
			found, err := containsName(ev.env.Remote.Moderators(ctx, ev.target.Conversation.Subreddit), author.Name)
			if err != nil {
				return false, fmt.Errorf("list moderators: %w", err)
			}
			ev.authorSatisfied = found
		}

	case FieldAuthorIsContributor:
		ev.authorSatisfied = false
		if coerceFlag(rec.Values) {
			found, err := containsName(ev.env.Remote.Contributors(ctx, ev.target.Conversation.Subreddit), author.Name)
			if err != nil {
				return false, fmt.Errorf("list contributors: %w", err)
			}
			ev.authorSatisfied = found
		}

	case FieldAuthorHasVerifiedEmail:
		ev.authorSatisfied = author.HasVerifiedEmail

	default:
		if len(rec.Values) == 0 {
			return false, nil
		}
		threshold, ok := ParseThreshold(rec.Values[0])
		if !ok {
			ev.env.logger().Warn("invalid threshold",
				"field", rec.Field.String(),
				"value", rec.Values[0])
			return false, nil
		}
		ev.authorSatisfied = compareAuthor(rec.Field, threshold, author, ev.env.now())
	}

	if !ev.anyThreshold && !ev.authorSatisfied {
		return false, nil
	}
	return true, nil
}

func (ev *evaluation) loadAuthor(ctx context.Context) (*types.Author, error) {
	if ev.authorLoaded {
		return ev.author, nil
	}
	ev.authorLoaded = true

	msg, ok := ev.target.Conversation.LastMessage()
	if !ok || msg.Author == "" {
		return nil, nil
	}
	author, err := ev.env.Remote.Author(ctx, msg.Author)
	if errors.Is(err, types.ErrAuthorUnavailable) {
		ev.env.logger().Debug("author unavailable", "author", msg.Author, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load author %s: %w", msg.Author, err)
	}
	ev.author = author
	return author, nil
}

func compareAuthor(field Field, t Threshold, a *types.Author, now time.Time) bool {
	switch field {
	case FieldAuthorPostKarma:
		return t.Compare(a.LinkKarma)
	case FieldAuthorCommentKarma:
		return t.Compare(a.CommentKarma)
	case FieldAuthorCombinedKarma:
		return t.Compare(a.LinkKarma + a.CommentKarma)
	case FieldAuthorAccountAge:
		return t.CompareAge(a.CreatedUTC, now)
	default:
		return false
	}
}

// containsName scans a listing and stops at the first case-insensitive match.
func containsName(seq nameSeq, name string) (bool, error) {
	for entry, err := range seq {
		if err != nil {
			return false, err
		}
		if strings.EqualFold(entry, name) {
			return true, nil
		}
	}
	return false, nil
}

func containsState(values []string, state types.MailboxState) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), string(state)) {
			return true
		}
	}
	return false
}

// checkLength compares the body length in characters against the bound.
// An unparseable bound fails the rule.
func checkLength(rec Record, body string) bool {
	if len(rec.Values) == 0 {
		return false
	}
	bound, err := strconv.Atoi(strings.TrimSpace(rec.Values[0]))
	if err != nil {
		return false
	}
	n := utf8.RuneCountInString(body)
	if rec.Field == FieldContentShorterThan {
		return n < bound
	}
	return n > bound
}

func lastBody(conv *types.Conversation) string {
	msg, _ := conv.LastMessage()
	return msg.Body
}
