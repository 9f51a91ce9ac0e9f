package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

// JournalConfig controls NDJSON feedback journaling.
type JournalConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// JournalEntry is one feedback exchange written to the journal.
type JournalEntry struct {
	Timestamp string          `json:"ts"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	PoseName  string          `json:"pose_name"`
	Language  domain.Language `json:"language"`
	Measured  domain.AngleMap `json:"measured"`
	Target    domain.AngleMap `json:"target"`
	Verdict   *domain.Verdict `json:"verdict,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Journal records feedback exchanges.
type Journal interface {
	Record(entry JournalEntry)
	Close() error
}

type nopJournal struct{}

func (nopJournal) Record(JournalEntry) {}
func (nopJournal) Close() error        { return nil }

var pathSegmentPattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// fileJournal appends entries to <dir>/<user>/<session>.ndjson from one writer goroutine.
type fileJournal struct {
	dir    string
	queue  chan JournalEntry
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewJournal creates a journal. A disabled config yields a no-op journal.
func NewJournal(cfg JournalConfig, logger *slog.Logger) (Journal, error) {
	if !cfg.Enabled {
		return nopJournal{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j := &fileJournal{
		dir:    cfg.Dir,
		queue:  make(chan JournalEntry, cfg.QueueSize),
		logger: logger,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// Record queues an entry. Entries are dropped when the queue is full.
func (j *fileJournal) Record(entry JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case j.queue <- entry:
	default:
		j.logger.Warn("[JOURNAL] Queue full, dropping entry", "user_id", entry.UserID, "session_id", entry.SessionID)
	}
}

// Close drains the queue and stops the writer.
func (j *fileJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()
	return nil
}

func (j *fileJournal) writeLoop() {
	defer j.wg.Done()
	for entry := range j.queue {
		if err := j.write(entry); err != nil {
			j.logger.Warn("[JOURNAL] Failed to write entry", "error", err, "user_id", entry.UserID)
		}
	}
}

func (j *fileJournal) write(entry JournalEntry) error {
	user := sanitizeSegment(entry.UserID, "unknown")
	session := sanitizeSegment(entry.SessionID, "default")

	dir := filepath.Join(j.dir, user)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create user dir: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(filepath.Join(dir, session+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append journal line: %w", err)
	}
	return f.Close()
}

func sanitizeSegment(s, fallback string) string {
	s = pathSegmentPattern.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}

// journaled records every exchange of the wrapped service.
type journaled struct {
	next    Service
	journal Journal
}

// Journaled wraps svc so each evaluation is written to j.
func Journaled(svc Service, j Journal) Service {
	if j == nil {
		return svc
	}
	return &journaled{next: svc, journal: j}
}

func (s *journaled) Evaluate(ctx context.Context, req Request) (domain.Verdict, error) {
	start := time.Now()
	v, err := s.next.Evaluate(ctx, req)

	entry := JournalEntry{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		PoseName:  req.PoseName,
		Language:  req.Language,
		Measured:  req.Measured,
		Target:    req.Target,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		vc := v.Clone()
		entry.Verdict = &vc
	}
	s.journal.Record(entry)
	return v, err
}

// Health forwards to the wrapped service when it supports health checks.
func (s *journaled) Health(ctx context.Context) error {
	if c, ok := s.next.(Checker); ok {
		return c.Health(ctx)
	}
	return nil
}
