package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/solatis/modmail/internal/core/db"
	"github.com/solatis/modmail/internal/types"
)

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()
	if err := db.MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	journal, err := db.NewJournal(database)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}

	_, err = journal.Record(ctx, db.Entry{
		Subreddit:      "testsub",
		State:          types.StateMod,
		ConversationID: "abc12",
		RuleIndex:      0,
		Actions:        []string{"highlight", "archive"},
		ConfigRevision: db.ConfigRevision(checkRefundRule),
		ExecutedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var out bytes.Buffer
	if err := printHistory(ctx, &out, journal, db.Filter{Subreddit: "testsub"}); err != nil {
		t.Fatalf("printHistory() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printHistory() lines = %d, want header and one entry:\n%s", len(lines), out.String())
	}
	for _, want := range []string{"2024-06-01T12:00:00Z", "testsub", "mod", "abc12", "highlight, archive"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("entry line = %q, want %q", lines[1], want)
		}
	}
}
