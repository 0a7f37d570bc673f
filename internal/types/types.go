// Package types provides domain models shared across modmail components.
//
// Zero-dependency design: types.go and errors.go use only the standard library so
// the rule engine and the Reddit client can share them without import cycles. ID
// utilities in ids.go import uuid but are only needed by the journal.
//
// Wire formats stay in internal/reddit. This package holds the shapes the rule
// engine reads during evaluation.
package types

import (
	"fmt"
	"strings"
	"time"
)

// MailboxState names a partition of modmail conversations.
// Used both as the stream filter and as the target of a rule's type field.
type MailboxState string

const (
	StateAll           MailboxState = "all"
	StateAppeals       MailboxState = "appeals"
	StateJoinRequests  MailboxState = "join_requests"
	StateMod           MailboxState = "mod"
	StateNotifications MailboxState = "notifications"

	// Historical states still accepted by the modmail API.
	StateArchived   MailboxState = "archived"
	StateInProgress MailboxState = "inprogress"
	StateNew        MailboxState = "new"
)

// DefaultStates is the set of states watched when none are configured.
var DefaultStates = []MailboxState{
	StateAll,
	StateAppeals,
	StateJoinRequests,
	StateMod,
	StateNotifications,
}

var knownStates = map[MailboxState]bool{
	StateAll:           true,
	StateAppeals:       true,
	StateJoinRequests:  true,
	StateMod:           true,
	StateNotifications: true,
	StateArchived:      true,
	StateInProgress:    true,
	StateNew:           true,
}

// ParseMailboxState validates a state name. Matching is case-insensitive.
func ParseMailboxState(s string) (MailboxState, error) {
	state := MailboxState(strings.ToLower(strings.TrimSpace(s)))
	if !knownStates[state] {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return state, nil
}

// Author is a Reddit account as seen by author.* rule fields.
type Author struct {
	Name             string
	CreatedUTC       time.Time
	CommentKarma     int64
	LinkKarma        int64
	HasVerifiedEmail bool
}

// Message is one entry in a modmail conversation.
type Message struct {
	ID     string
	Author string // account name; empty for deleted accounts
	Body   string // markdown body
	Date   time.Time
}

// Conversation is a modmail thread. Messages are ordered oldest first.
// IsHighlighted and IsArchived are updated locally when the bot acts on them.
type Conversation struct {
	ID            string
	Subject       string
	Subreddit     string // owner display name
	Messages      []Message
	IsHighlighted bool
	IsArchived    bool
	NumMessages   int
}

// LastMessage returns the most recent message.
// Returns false for conversations without messages.
func (c *Conversation) LastMessage() (Message, bool) {
	if c == nil || len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MessageCount prefers the server-reported count and falls back to loaded messages.
func (c *Conversation) MessageCount() int {
	if c.NumMessages > 0 {
		return c.NumMessages
	}
	return len(c.Messages)
}

// Permalink is the mod.reddit.com URL of the conversation.
func (c *Conversation) Permalink() string {
	return "https://mod.reddit.com/mail/all/" + c.ID
}
