package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

type stubService struct {
	verdict domain.Verdict
	err     error
}

func (s stubService) Evaluate(context.Context, Request) (domain.Verdict, error) {
	return s.verdict, s.err
}

func TestJournalWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	journal, err := NewJournal(JournalConfig{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer func() { _ = journal.Close() }()

	svc := Journaled(stubService{verdict: domain.Verdict{Accuracy: 70, Message: "Bend the knee"}}, journal)
	_, err = svc.Evaluate(context.Background(), Request{
		PoseName:  "Warrior II",
		Measured:  domain.AngleMap{domain.JointKnee: 120},
		Language:  domain.LanguageEnglish,
		UserID:    "user-1",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	line := waitForJournalLine(t, filepath.Join(dir, "user-1", "sess-1.ndjson"))
	var got JournalEntry
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal journal line: %v", err)
	}
	if got.Verdict == nil || got.Verdict.Message != "Bend the knee" {
		t.Fatalf("unexpected verdict in journal: %+v", got.Verdict)
	}
	if got.Measured[domain.JointKnee] != 120 {
		t.Fatalf("unexpected measured angles: %v", got.Measured)
	}
}

func TestJournalRecordsErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	journal, err := NewJournal(JournalConfig{Enabled: true, Dir: dir, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}

	svc := Journaled(stubService{err: errors.New("boom")}, journal)
	if _, err := svc.Evaluate(context.Background(), Request{UserID: "../escape", SessionID: ""}); err == nil {
		t.Fatal("expected wrapped error to propagate")
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".._escape", "default.ndjson"))
	if err != nil {
		t.Fatalf("expected sanitized journal path: %v", err)
	}
	if !strings.Contains(string(data), `"error":"boom"`) {
		t.Fatalf("expected error in journal, got %s", data)
	}
}

func TestJournalDisabledIsNoop(t *testing.T) {
	t.Parallel()

	journal, err := NewJournal(JournalConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	journal.Record(JournalEntry{UserID: "u"})
	if err := journal.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func waitForJournalLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for journal file %s", path)
	return ""
}
