package reddit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/solatis/modmail/internal/types"
)

const listingLimit = 100

// WikiPage returns the markdown source of a subreddit wiki page.
func (c *Client) WikiPage(ctx context.Context, subreddit, page string) (string, error) {
	var thing wireThing[wireWikiPage]
	err := c.do(ctx, call{
		endpoint: "wiki.page",
		method:   http.MethodGet,
		path:     "/r/" + url.PathEscape(subreddit) + "/wiki/" + url.PathEscape(page),
	}, &thing)
	if err != nil {
		return "", err
	}
	return thing.Data.ContentMD, nil
}

// Moderators iterates the subreddit's moderator names.
// Pages are fetched lazily, so a consumer that stops early saves requests.
func (c *Client) Moderators(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return c.userList(ctx, "subreddit.moderators", "/r/"+url.PathEscape(subreddit)+"/about/moderators")
}

// Contributors iterates the subreddit's approved user names.
func (c *Client) Contributors(ctx context.Context, subreddit string) iter.Seq2[string, error] {
	return c.userList(ctx, "subreddit.contributors", "/r/"+url.PathEscape(subreddit)+"/about/contributors")
}

func (c *Client) userList(ctx context.Context, endpoint, path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		after := ""
		for {
			q := url.Values{"limit": {fmt.Sprint(listingLimit)}}
			if after != "" {
				q.Set("after", after)
			}

			var thing wireThing[wireListing]
			err := c.do(ctx, call{endpoint: endpoint, method: http.MethodGet, path: path, query: q}, &thing)
			if err != nil {
				yield("", err)
				return
			}

			for _, child := range thing.Data.Children {
				if !yield(child.Name, nil) {
					return
				}
			}

			after = thing.Data.After
			if after == "" || len(thing.Data.Children) == 0 {
				return
			}
		}
	}
}

// Author loads a user profile. Concurrent lookups of the same name share one
// request. Deleted, missing and suspended accounts return an error wrapping
// types.ErrAuthorUnavailable.
func (c *Client) Author(ctx context.Context, name string) (*types.Author, error) {
	key := strings.ToLower(name)
	v, err, _ := c.users.Do(key, func() (any, error) {
		var thing wireThing[wireUser]
		err := c.do(ctx, call{
			endpoint: "user.about",
			method:   http.MethodGet,
			path:     "/user/" + url.PathEscape(name) + "/about",
		}, &thing)

		var serr *StatusError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", types.ErrAuthorUnavailable, name)
		}
		if err != nil {
			return nil, err
		}
		if thing.Data.IsSuspended || thing.Data.Name == "" {
			return nil, fmt.Errorf("%w: %s is suspended", types.ErrAuthorUnavailable, name)
		}
		return thing.Data.toAuthor(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Author), nil
}
