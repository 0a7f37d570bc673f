package reddit

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/solatis/modmail/internal/types"
)

/*
 * Polling stream of modmail conversation IDs.
 *
 * Each poll fetches the newest page for one (subreddit, state) and yields the
 * IDs not seen before, oldest first. The first poll yields the whole current
 * page. A conversation is yielded once per stream; later replies to it do not
 * re-trigger rules, so the bot's own replies cannot loop.
 *
 * The seen set is bounded: when full, the oldest remembered ID is evicted.
 * Capacity must exceed the page size, otherwise IDs from the current page could
 * be evicted and yielded again.
 */

const (
	defaultPollInterval = 30 * time.Second
	defaultSeenCapacity = 3 * listingLimit
)

// StreamOptions configures Stream. Zero values use defaults.
type StreamOptions struct {
	Interval     time.Duration
	SeenCapacity int
}

// Stream yields conversation IDs for subreddit in state until ctx is done.
// Poll errors are yielded with an empty ID; the stream continues at the next
// interval if the consumer keeps iterating.
func (c *Client) Stream(ctx context.Context, subreddit string, state types.MailboxState, opts StreamOptions) iter.Seq2[string, error] {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	capacity := opts.SeenCapacity
	if capacity <= listingLimit {
		capacity = defaultSeenCapacity
	}

	return func(yield func(string, error) bool) {
		seen := newBoundedSet(capacity)
		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			page, err := c.Conversations(ctx, subreddit, state, listingLimit, "")
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !yield("", err) {
					return
				}
			} else {
				// Listing is newest first; yield oldest first.
				for _, id := range slices.Backward(page.IDs) {
					if seen.Contains(id) {
						continue
					}
					seen.Add(id)
					if !yield(id, nil) {
						return
					}
				}
			}

			timer.Reset(interval)
		}
	}
}

// boundedSet remembers up to capacity strings, evicting the oldest first.
type boundedSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newBoundedSet(capacity int) *boundedSet {
	return &boundedSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  make(map[string]struct{}, capacity),
	}
}

func (s *boundedSet) Contains(v string) bool {
	_, ok := s.members[v]
	return ok
}

func (s *boundedSet) Add(v string) {
	if s.Contains(v) {
		return
	}
	if len(s.order) == s.capacity {
		delete(s.members, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, v)
	s.members[v] = struct{}{}
}

func (s *boundedSet) Len() int {
	return len(s.order)
}
