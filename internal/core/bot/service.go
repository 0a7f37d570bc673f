// Package bot watches modmail for a set of subreddits and runs each new
// conversation through that subreddit's wiki rules.
package bot

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/solatis/modmail/internal/core/db"
	"github.com/solatis/modmail/internal/reddit"
	"github.com/solatis/modmail/internal/rules"
	"github.com/solatis/modmail/internal/telemetry"
	"github.com/solatis/modmail/internal/types"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyListening is returned by Listen after the first call.
var ErrAlreadyListening = errors.New("bot is already listening")

// Remote is the Reddit surface the bot uses. Implemented by *reddit.Client.
type Remote interface {
	rules.Remote
	Conversation(ctx context.Context, id string) (*types.Conversation, error)
	WikiPage(ctx context.Context, subreddit, page string) (string, error)
	Stream(ctx context.Context, subreddit string, state types.MailboxState, opts reddit.StreamOptions) iter.Seq2[string, error]
}

// Journal records executed rules. Implemented by *db.Journal.
type Journal interface {
	Record(ctx context.Context, e db.Entry) (db.Entry, error)
}

// StatusReporter receives per-stream health. Implemented by *server.HealthServer.
type StatusReporter interface {
	SetStreamServing(subreddit string, state types.MailboxState, serving bool)
}

// Options configures a Service. Journal, Health, Logger and Now are optional.
type Options struct {
	Subreddits   []string
	States       []types.MailboxState
	WikiPage     string
	PollInterval time.Duration

	Journal Journal
	Health  StatusReporter
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service owns the listening lifecycle. Listen may run once per Service.
type Service struct {
	remote    Remote
	engine    *rules.Engine
	opts      Options
	logger    *slog.Logger
	listening atomic.Bool
}

// NewService validates opts and binds a rules engine to remote.
func NewService(remote Remote, opts Options) (*Service, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if len(opts.Subreddits) == 0 {
		return nil, fmt.Errorf("at least one subreddit is required")
	}
	if len(opts.States) == 0 {
		return nil, fmt.Errorf("at least one mailbox state is required")
	}
	if opts.WikiPage == "" {
		return nil, fmt.Errorf("wiki page cannot be empty")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		remote: remote,
		engine: rules.NewEngine(rules.Env{Remote: remote, Now: opts.Now, Logger: logger}),
		opts:   opts,
		logger: logger,
	}, nil
}

// Listen watches every subreddit × state pair until ctx is done, handling
// each stream's conversations one at a time. Returns nil on cancellation.
func (s *Service) Listen(ctx context.Context) error {
	if !s.listening.CompareAndSwap(false, true) {
		return ErrAlreadyListening
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, subreddit := range s.opts.Subreddits {
		for _, state := range s.opts.States {
			g.Go(func() error {
				return s.watch(gctx, subreddit, state)
			})
		}
	}

	s.logger.Info("listening for modmail",
		"subreddits", len(s.opts.Subreddits),
		"states", len(s.opts.States))
	return g.Wait()
}

func (s *Service) watch(ctx context.Context, subreddit string, state types.MailboxState) error {
	logger := s.logger.With("subreddit", subreddit, "state", string(state))

	telemetry.StreamsActive.Inc()
	defer telemetry.StreamsActive.Dec()
	s.setServing(subreddit, state, true)
	defer s.setServing(subreddit, state, false)

	stream := s.remote.Stream(ctx, subreddit, state, reddit.StreamOptions{Interval: s.opts.PollInterval})
	for id, err := range stream {
		if err != nil {
			logger.Error("modmail poll failed", "error", err)
			s.setServing(subreddit, state, false)
			continue
		}
		s.setServing(subreddit, state, true)

		// Errors are logged and counted inside Handle; the stream moves on.
		_, _ = s.Handle(ctx, subreddit, state, id)
	}

	logger.Debug("stream stopped")
	return nil
}

func (s *Service) setServing(subreddit string, state types.MailboxState, serving bool) {
	if s.opts.Health != nil {
		s.opts.Health.SetStreamServing(subreddit, state, serving)
	}
}

// Handle loads one conversation, fetches the subreddit's rules and dispatches.
// A malformed configuration is logged and leaves the conversation unhandled
// without an error; collaborator failures are returned.
func (s *Service) Handle(ctx context.Context, subreddit string, state types.MailboxState, conversationID string) (rules.Outcome, error) {
	start := time.Now()
	defer func() {
		telemetry.DispatchDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())
	}()

	logger := s.logger.With("subreddit", subreddit, "state", string(state), "conversation", conversationID)
	label := strings.ToLower(subreddit)
	outcome := rules.Outcome{RuleIndex: -1}

	conv, err := s.remote.Conversation(ctx, conversationID)
	if err != nil {
		return outcome, s.fail(logger, label, state, fmt.Errorf("failed to load conversation %s: %w", conversationID, err))
	}

	configText, err := s.remote.WikiPage(ctx, subreddit, s.opts.WikiPage)
	if err != nil {
		return outcome, s.fail(logger, label, state, fmt.Errorf("failed to load rules for r/%s: %w", subreddit, err))
	}

	outcome, err = s.engine.Dispatch(ctx, configText, rules.Target{Conversation: conv, State: state})
	if err != nil {
		var parseErr *types.ConfigParseError
		if errors.As(err, &parseErr) {
			logger.Warn("invalid rule configuration", "error", parseErr.Err, "section", parseErr.Section)
			telemetry.ConversationsHandled.WithLabelValues(label, string(state), telemetry.ResultConfigError).Inc()
			return outcome, nil
		}
		return outcome, s.fail(logger, label, state, err)
	}

	if !outcome.Matched {
		logger.Debug("no rule matched", "candidates", outcome.Candidates)
		telemetry.ConversationsHandled.WithLabelValues(label, string(state), telemetry.ResultUnmatched).Inc()
		return outcome, nil
	}

	telemetry.ConversationsHandled.WithLabelValues(label, string(state), telemetry.ResultMatched).Inc()
	if outcome.Executed {
		for _, step := range outcome.Plan {
			telemetry.ActionsExecuted.WithLabelValues(label, string(step.Kind)).Inc()
		}
		s.record(ctx, logger, subreddit, state, conv, configText, outcome)
	}
	return outcome, nil
}

func (s *Service) fail(logger *slog.Logger, label string, state types.MailboxState, err error) error {
	logger.Error("failed to handle conversation", "error", err)
	telemetry.ConversationsHandled.WithLabelValues(label, string(state), telemetry.ResultError).Inc()
	return err
}

// record writes a journal entry. A failed write is logged only: the actions
// have already been applied on Reddit.
func (s *Service) record(ctx context.Context, logger *slog.Logger, subreddit string, state types.MailboxState, conv *types.Conversation, configText string, outcome rules.Outcome) {
	if s.opts.Journal == nil {
		return
	}

	actions := make([]string, len(outcome.Plan))
	for i, step := range outcome.Plan {
		actions[i] = step.String()
	}

	entry, err := s.opts.Journal.Record(ctx, db.Entry{
		Subreddit:      subreddit,
		State:          state,
		ConversationID: conv.ID,
		RuleIndex:      outcome.RuleIndex,
		Actions:        actions,
		ConfigRevision: db.ConfigRevision(configText),
	})
	if err != nil {
		logger.Error("failed to record rule action", "error", err)
		return
	}
	logger.Debug("recorded rule action", "action_id", string(entry.ID), "rule", outcome.RuleIndex)
}
