// Package ledger implements the durable, append-only deduplication log.
//
// The ledger is owned by the single active scrape loop; it is loaded once at
// startup and mutated only between items, so no locking is required.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/media"
)

// Record is one persisted ledger line. Intermediary records are non-emitting
// stubs that only exclude an id from future processing.
type Record struct {
	media.Entry
	Intermediary bool `json:"intermediary,omitempty"`
}

func (r Record) valid() bool {
	if r.Intermediary {
		return r.MALID > 0 && r.RootID > 0
	}
	if r.TMDBID > 0 || r.TVDBID > 0 {
		return true
	}
	return r.Title != "" && r.Source != "" && r.Username != ""
}

// Ledger indexes every entry and intermediary ever resolved.
type Ledger struct {
	file      *os.File
	clock     media.Clock
	logger    *zap.Logger
	keys      map[string]struct{}
	sourceIDs map[string]struct{}
	rootIDs   map[int]struct{}
	entries   []media.Entry
}

// Open replays the log at path and returns a ready Ledger. A missing file is
// created; lines that fail structural validation are skipped with a warning.
func Open(path string, clock media.Clock, logger *zap.Logger) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	l := &Ledger{
		clock:     clock,
		logger:    logger,
		keys:      make(map[string]struct{}),
		sourceIDs: make(map[string]struct{}),
		rootIDs:   make(map[int]struct{}),
	}

	if data, err := os.ReadFile(path); err == nil {
		l.replay(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	l.file = f
	return l, nil
}

func (l *Ledger) replay(data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Warn("skipping corrupt ledger line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if !rec.valid() {
			l.logger.Warn("skipping invalid ledger line", zap.Int("line", lineNo))
			continue
		}
		l.index(rec)
	}
}

func (l *Ledger) index(rec Record) {
	if id := rec.SourceID(); id != "" {
		l.sourceIDs[id] = struct{}{}
	}
	if rec.RootID > 0 {
		l.rootIDs[rec.RootID] = struct{}{}
	}
	if rec.Intermediary {
		return
	}
	l.keys[rec.Key()] = struct{}{}
	l.entries = append(l.entries, rec.Entry)
}

// HasKey reports whether an entry with the given composite key was emitted before.
func (l *Ledger) HasKey(key string) bool {
	_, ok := l.keys[key]
	return ok
}

// HasSourceID reports whether the source-native id was processed before,
// whether emitted or consumed as an intermediary.
func (l *Ledger) HasSourceID(id string) bool {
	_, ok := l.sourceIDs[id]
	return ok
}

// HasRootID reports whether the given id is already a known series root.
func (l *Ledger) HasRootID(id int) bool {
	_, ok := l.rootIDs[id]
	return ok
}

// RecordEntry appends an emitted entry. Recording a key already present is a
// no-op; the log is only ever superset-grown.
func (l *Ledger) RecordEntry(entry media.Entry) error {
	if l.HasKey(entry.Key()) {
		return nil
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = l.clock.Now()
	}
	rec := Record{Entry: entry}
	if err := l.append(rec); err != nil {
		return err
	}
	l.index(rec)
	return nil
}

// RecordIntermediary writes a non-emitting stub so the id is permanently
// excluded from future processing without appearing in published lists.
func (l *Ledger) RecordIntermediary(id, rootID int) error {
	rec := Record{
		Entry: media.Entry{
			MALID:   id,
			RootID:  rootID,
			Source:  media.SourceMAL,
			AddedAt: l.clock.Now(),
		},
		Intermediary: true,
	}
	if l.HasSourceID(rec.SourceID()) {
		return nil
	}
	if err := l.append(rec); err != nil {
		return err
	}
	l.index(rec)
	return nil
}

// Entries returns every emitted entry in log order.
func (l *Ledger) Entries() []media.Entry {
	out := make([]media.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	line = append(line, '\n')
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// Close releases the underlying log file.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}
