package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/solatis/modmail/internal/types"
)

// ConversationPage is one page of a modmail listing, newest first.
type ConversationPage struct {
	IDs   []string
	After string // cursor for the next page; empty on the last page
}

// Conversations lists conversation IDs for subreddit in state, most recently
// updated first. after continues from a previous page.
func (c *Client) Conversations(ctx context.Context, subreddit string, state types.MailboxState, limit int, after string) (ConversationPage, error) {
	q := url.Values{
		"entity": {subreddit},
		"state":  {string(state)},
		"sort":   {"recent"},
		"limit":  {strconv.Itoa(limit)},
	}
	if after != "" {
		q.Set("after", after)
	}

	var list wireConversationList
	err := c.do(ctx, call{
		endpoint: "modmail.list",
		method:   http.MethodGet,
		path:     "/api/mod/conversations",
		query:    q,
	}, &list)
	if err != nil {
		return ConversationPage{}, err
	}

	page := ConversationPage{IDs: list.ConversationIDs}
	if limit > 0 && len(list.ConversationIDs) >= limit {
		page.After = list.ConversationIDs[len(list.ConversationIDs)-1]
	}
	return page, nil
}

// Conversation loads a conversation with all of its messages.
func (c *Client) Conversation(ctx context.Context, id string) (*types.Conversation, error) {
	var detail wireConversationDetail
	err := c.do(ctx, call{
		endpoint: "modmail.get",
		method:   http.MethodGet,
		path:     "/api/mod/conversations/" + url.PathEscape(id),
		query:    url.Values{"markRead": {"false"}},
	}, &detail)
	if err != nil {
		return nil, err
	}
	if detail.Conversation.ID == "" {
		return nil, fmt.Errorf("conversation %s: empty response", id)
	}
	return detail.toConversation(), nil
}

// Reply posts a moderator reply visible to the user.
func (c *Client) Reply(ctx context.Context, conv *types.Conversation, body string) error {
	return c.do(ctx, call{
		endpoint: "modmail.reply",
		method:   http.MethodPost,
		path:     "/api/mod/conversations/" + url.PathEscape(conv.ID),
		form: url.Values{
			"body":           {body},
			"isAuthorHidden": {"false"},
			"isInternal":     {"false"},
		},
	}, nil)
}

// Highlight marks the conversation as highlighted.
func (c *Client) Highlight(ctx context.Context, conv *types.Conversation) error {
	return c.do(ctx, call{
		endpoint: "modmail.highlight",
		method:   http.MethodPost,
		path:     "/api/mod/conversations/" + url.PathEscape(conv.ID) + "/highlight",
		form:     url.Values{},
	}, nil)
}

// Unhighlight removes the highlight.
func (c *Client) Unhighlight(ctx context.Context, conv *types.Conversation) error {
	return c.do(ctx, call{
		endpoint: "modmail.unhighlight",
		method:   http.MethodDelete,
		path:     "/api/mod/conversations/" + url.PathEscape(conv.ID) + "/highlight",
	}, nil)
}

// Archive moves the conversation to the archived state.
func (c *Client) Archive(ctx context.Context, conv *types.Conversation) error {
	return c.do(ctx, call{
		endpoint: "modmail.archive",
		method:   http.MethodPost,
		path:     "/api/mod/conversations/" + url.PathEscape(conv.ID) + "/archive",
		form:     url.Values{},
	}, nil)
}
