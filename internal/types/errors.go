package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for modmail operations.
var (
	// ErrUnknownState indicates a mailbox state name outside the recognized set.
	ErrUnknownState = errors.New("unknown mailbox state")

	// ErrUnknownAction indicates an action value the bot cannot execute.
	ErrUnknownAction = errors.New("unknown action")

	// ErrNoMessages indicates a conversation with no loaded messages.
	ErrNoMessages = errors.New("conversation has no messages")

	// ErrInvalidThreshold indicates an unparseable comparison expression.
	// Never returned by the engine; rule evaluation treats it as a non-match.
	ErrInvalidThreshold = errors.New("invalid threshold expression")

	// ErrRuleIncomplete indicates a rule document missing type, action, or content/subject.
	ErrRuleIncomplete = errors.New("rule is missing required fields")

	// ErrAuthorUnavailable indicates the latest message has no loadable author.
	ErrAuthorUnavailable = errors.New("message author unavailable")
)

// ConfigParseError reports a configuration section that is not valid YAML.
// Terminal for the conversation being handled; the section text is kept for logs.
type ConfigParseError struct {
	Section string
	Err     error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("invalid rule configuration section: %v", e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}
