package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/telemetry"
	"github.com/roach88/litledger/internal/temporal"
)

// Snapshot is the persisted form of a ledger:
//
//	{"events": [...], "last_event_id": 7, "active_buffs": [...]}
//
// ActiveBuffs records the buffs active after the log, for inspection and
// replay verification. Replay never reads it.
type Snapshot struct {
	Events      []*event.Event    `json:"events"`
	LastEventID int64             `json:"last_event_id"`
	ActiveBuffs *temporal.Manager `json:"active_buffs"`
}

// DecodeSnapshot parses a persisted event-log file.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if errs.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.CodeValidation, err, "malformed event log")
	}
	if snap.Events == nil {
		snap.Events = []*event.Event{}
	}
	if snap.ActiveBuffs == nil {
		snap.ActiveBuffs = temporal.New()
	}
	for _, ev := range snap.Events {
		snap.LastEventID = max(snap.LastEventID, ev.ID)
	}
	return &snap, nil
}

// Encode renders the snapshot as indented JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Snapshot captures the committed log and the buffs active after it.
func (l *Ledger) Snapshot(ctx context.Context) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.state(ctx); err != nil {
		return nil, err
	}
	return l.snapshot(), nil
}

func (l *Ledger) snapshot() *Snapshot {
	return &Snapshot{
		Events:      event.CloneAll(l.events),
		LastEventID: l.lastID,
		ActiveBuffs: l.buffs.Clone(),
	}
}

// Restore replaces the log with snap after replaying it. A snapshot that
// fails to replay, or breaks strict mode, is rejected and the ledger is left
// as it was.
func (l *Ledger) Restore(ctx context.Context, snap *Snapshot) (err error) {
	ctx, span := l.inst.Start(ctx, "restore")
	defer func() { telemetry.End(span, err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.tryReplay(ctx, event.CloneAll(snap.Events))
	if err != nil {
		l.reject(ctx, "restore", err)
		return err
	}
	l.lastID = 0
	for _, ev := range t.events {
		l.lastID = max(l.lastID, ev.ID)
	}
	l.commit(t, snap.LastEventID)
	return l.persist()
}

// Save writes the log to path and makes path the ledger's file from then
// on.
func (l *Ledger) Save(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = path
	if _, err := l.state(context.Background()); err != nil {
		return err
	}
	return l.persist()
}

// Load replaces the in-memory log with the file at the ledger's path. A
// missing file, or an empty path, yields an empty log.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events, l.lastID, l.buffs = nil, 0, temporal.New()
	l.invalidate()
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "read %s", l.path)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	l.events, l.lastID, l.buffs = snap.Events, snap.LastEventID, snap.ActiveBuffs
	return nil
}

// persist writes the snapshot atomically: the current file is copied to
// path.backup, the new content goes to path.tmp, and path.tmp is renamed
// over path. Memory-only ledgers skip all of it.
func (l *Ledger) persist() error {
	if l.path == "" {
		return nil
	}
	data, err := l.snapshot().Encode()
	if err != nil {
		return l.persistFailed(err, "encode event log")
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return l.persistFailed(err, "create %s", filepath.Dir(l.path))
	}
	if err := copyFile(l.path, l.path+".backup"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("event log backup failed", "path", l.path, "error", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return l.persistFailed(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return l.persistFailed(err, "rename %s", tmp)
	}
	return nil
}

func (l *Ledger) persistFailed(cause error, format string, args ...any) error {
	err := errs.Wrap(errs.CodePersistence, cause, format, args...).WithDetail("path", l.path)
	l.logger.Error("event log not persisted; in-memory commit stands", "path", l.path, "error", cause)
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReplayReport compares a persisted buff snapshot with a fresh replay.
type ReplayReport struct {
	Events    int      `json:"events"`
	Persisted []string `json:"persisted_buffs"`
	Replayed  []string `json:"replayed_buffs"`
	Match     bool     `json:"match"`
}

// VerifyReplay replays snap's events with this ledger's schema, formulas
// and mode, and reports whether the resulting buff set matches the one
// recorded in the snapshot.
func (l *Ledger) VerifyReplay(ctx context.Context, snap *Snapshot) (*ReplayReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, buffs, err := l.reduce(ctx, event.CloneAll(snap.Events))
	if err != nil {
		return nil, err
	}
	persisted := []string{}
	if snap.ActiveBuffs != nil {
		persisted = snap.ActiveBuffs.IDs()
	}
	replayed := buffs.IDs()
	return &ReplayReport{
		Events:    len(snap.Events),
		Persisted: persisted,
		Replayed:  replayed,
		Match:     slices.Equal(persisted, replayed),
	}, nil
}
