package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cespare/xxhash/v2"
	"github.com/jmoiron/sqlx"
	"github.com/solatis/modmail/internal/types"
)

// ErrEntryNotFound is returned by Journal.Get for an unknown action ID.
var ErrEntryNotFound = errors.New("journal entry not found")

const defaultListLimit = 50

// Entry records one rule execution against one conversation.
type Entry struct {
	ID             types.ActionID
	Subreddit      string
	State          types.MailboxState
	ConversationID string
	RuleIndex      int
	Actions        []string
	ConfigRevision string
	ExecutedAt     time.Time
}

type entryRow struct {
	ID             string `db:"action_id"`
	Subreddit      string `db:"subreddit"`
	State          string `db:"state"`
	ConversationID string `db:"conversation_id"`
	RuleIndex      int    `db:"rule_index"`
	Actions        string `db:"actions"`
	ConfigRevision string `db:"config_revision"`
	ExecutedAt     int64  `db:"executed_at"`
}

// Actions are stored one per line; PlannedAction strings quote reply
// bodies, so a single action never spans lines.
func (r entryRow) entry() Entry {
	var actions []string
	if r.Actions != "" {
		actions = strings.Split(r.Actions, "\n")
	}
	return Entry{
		ID:             types.ActionID(r.ID),
		Subreddit:      r.Subreddit,
		State:          types.MailboxState(r.State),
		ConversationID: r.ConversationID,
		RuleIndex:      r.RuleIndex,
		Actions:        actions,
		ConfigRevision: r.ConfigRevision,
		ExecutedAt:     time.UnixMilli(r.ExecutedAt).UTC(),
	}
}

var entryColumns = []string{
	"action_id", "subreddit", "state", "conversation_id",
	"rule_index", "actions", "config_revision", "executed_at",
}

// Filter narrows Journal.List. Zero fields match everything.
type Filter struct {
	Subreddit      string
	State          types.MailboxState
	ConversationID string
	Since          time.Time
	Limit          int
}

// Journal is the append-only record of executed rules.
type Journal struct {
	db      *sqlx.DB
	queries *Queries
	now     func() time.Time
}

// NewJournal binds a journal to a migrated database.
func NewJournal(db *sqlx.DB) (*Journal, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db, queries: queries, now: time.Now}, nil
}

// ConfigRevision fingerprints rule configuration text so journal entries
// can be tied to the wiki revision that produced them.
func ConfigRevision(configText string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(configText))
}

// Record appends e, assigning an ID and execution time when unset.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = types.NewActionID()
	}
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = j.now()
	}
	e.ExecutedAt = e.ExecutedAt.UTC().Truncate(time.Millisecond)

	_, err := j.queries.Exec(ctx, "insert-rule-action",
		string(e.ID), strings.ToLower(e.Subreddit), string(e.State), e.ConversationID,
		e.RuleIndex, strings.Join(e.Actions, "\n"), e.ConfigRevision, e.ExecutedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record action for conversation %s: %w", e.ConversationID, err)
	}
	return e, nil
}

// Get returns the entry with the given ID.
func (j *Journal) Get(ctx context.Context, id types.ActionID) (Entry, error) {
	var row entryRow
	if err := j.queries.Get(ctx, "get-rule-action", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return row.entry(), nil
}

// CountForConversation returns how many rules have run against a conversation.
func (j *Journal) CountForConversation(ctx context.Context, conversationID string) (int, error) {
	var n int
	if err := j.queries.Get(ctx, "count-rule-actions-for-conversation", &n, conversationID); err != nil {
		return 0, err
	}
	return n, nil
}

// List returns entries matching f, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args, err := j.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build journal query: %w", err)
	}

	var rows []entryRow
	if err := j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

func (j *Journal) listQuery(f Filter) sq.SelectBuilder {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := sq.Select(entryColumns...).
		From("rule_actions").
		OrderBy("executed_at DESC", "action_id DESC").
		Limit(uint64(limit))

	if f.Subreddit != "" {
		q = q.Where(sq.Eq{"subreddit": strings.ToLower(f.Subreddit)})
	}
	if f.State != "" {
		q = q.Where(sq.Eq{"state": string(f.State)})
	}
	if f.ConversationID != "" {
		q = q.Where(sq.Eq{"conversation_id": f.ConversationID})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"executed_at": f.Since.UnixMilli()})
	}

	if j.db.DriverName() == driverPostgres {
		q = q.PlaceholderFormat(sq.Dollar)
	}
	return q
}
