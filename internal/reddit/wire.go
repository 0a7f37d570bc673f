package reddit

import (
	"sort"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/solatis/modmail/internal/types"
)

// wireStateArchived is the numeric "state" of an archived conversation.
const wireStateArchived = 2

type wireParticipant struct {
	Name      string `json:"name"`
	IsDeleted bool   `json:"isDeleted"`
}

type wireOwner struct {
	DisplayName string `json:"displayName"`
}

type wireObjID struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type wireConversation struct {
	ID            string      `json:"id"`
	Subject       string      `json:"subject"`
	Owner         wireOwner   `json:"owner"`
	IsHighlighted bool        `json:"isHighlighted"`
	State         int         `json:"state"`
	NumMessages   int         `json:"numMessages"`
	LastUpdated   string      `json:"lastUpdated"`
	ObjIDs        []wireObjID `json:"objIds"`
}

type wireMessage struct {
	ID           string          `json:"id"`
	Author       wireParticipant `json:"author"`
	Body         string          `json:"body"` // HTML
	BodyMarkdown string          `json:"bodyMarkdown"`
	Date         string          `json:"date"`
}

// wireConversationList is the /api/mod/conversations payload.
type wireConversationList struct {
	Conversations   map[string]wireConversation `json:"conversations"`
	ConversationIDs []string                    `json:"conversationIds"`
}

// wireConversationDetail is the /api/mod/conversations/:id payload.
type wireConversationDetail struct {
	Conversation wireConversation       `json:"conversation"`
	Messages     map[string]wireMessage `json:"messages"`
}

type wireThing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

type wireWikiPage struct {
	ContentMD string `json:"content_md"`
}

type wireUser struct {
	Name             string  `json:"name"`
	CreatedUTC       float64 `json:"created_utc"`
	CommentKarma     int64   `json:"comment_karma"`
	LinkKarma        int64   `json:"link_karma"`
	HasVerifiedEmail bool    `json:"has_verified_email"`
	IsSuspended      bool    `json:"is_suspended"`
}

type wireListing struct {
	After    string `json:"after"`
	Children []struct {
		Name string `json:"name"`
	} `json:"children"`
}

// toConversation converts a detail payload. Messages are ordered oldest first
// following objIds, falling back to message dates when objIds are absent.
func (d *wireConversationDetail) toConversation() *types.Conversation {
	wc := d.Conversation
	conv := &types.Conversation{
		ID:            wc.ID,
		Subject:       wc.Subject,
		Subreddit:     wc.Owner.DisplayName,
		IsHighlighted: wc.IsHighlighted,
		IsArchived:    wc.State == wireStateArchived,
		NumMessages:   wc.NumMessages,
	}

	var ids []string
	for _, obj := range wc.ObjIDs {
		if obj.Key == "messages" {
			ids = append(ids, obj.ID)
		}
	}
	if len(ids) == 0 {
		for id := range d.Messages {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return d.Messages[ids[i]].Date < d.Messages[ids[j]].Date
		})
	}

	for _, id := range ids {
		wm, ok := d.Messages[id]
		if !ok {
			continue
		}
		conv.Messages = append(conv.Messages, wm.toMessage())
	}
	return conv
}

func (m wireMessage) toMessage() types.Message {
	msg := types.Message{
		ID:   m.ID,
		Body: m.BodyMarkdown,
		Date: parseTime(m.Date),
	}
	if !m.Author.IsDeleted {
		msg.Author = m.Author.Name
	}
	if strings.TrimSpace(msg.Body) == "" && m.Body != "" {
		msg.Body = html2text.HTML2Text(m.Body)
	}
	return msg
}

func (u wireUser) toAuthor() *types.Author {
	sec := int64(u.CreatedUTC)
	return &types.Author{
		Name:             u.Name,
		CreatedUTC:       time.Unix(sec, 0).UTC(),
		CommentKarma:     u.CommentKarma,
		LinkKarma:        u.LinkKarma,
		HasVerifiedEmail: u.HasVerifiedEmail,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
