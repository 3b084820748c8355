// Package saveslot exports and imports ledger snapshots as portable save
// slots. A slot is the persisted event log plus a format version and an
// export timestamp; files ending in .zst are zstd-compressed.
package saveslot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/temporal"
)

// Version is written into every exported slot.
const Version = "1.0"

// Slot is the on-disk save-slot document.
type Slot struct {
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Events      []*event.Event    `json:"events"`
	LastEventID int64             `json:"last_event_id"`
	ActiveBuffs *temporal.Manager `json:"active_buffs"`
}

// Clock supplies export timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Export renders the ledger's committed log as a save slot.
func Export(ctx context.Context, l *ledger.Ledger, clock Clock) ([]byte, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("export slot: %w", err)
	}
	slot := Slot{
		Version:     Version,
		Timestamp:   clock.Now().UTC().Format(time.RFC3339),
		Events:      snap.Events,
		LastEventID: snap.LastEventID,
		ActiveBuffs: snap.ActiveBuffs,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(slot); err != nil {
		return nil, fmt.Errorf("export slot: %w", err)
	}
	return buf.Bytes(), nil
}

// Import parses a save slot into a snapshot ready for Ledger.Restore. The
// version and timestamp are informational and not checked.
func Import(data []byte) (*ledger.Snapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "malformed save slot")
	}
	if _, ok := probe["events"]; !ok {
		return nil, errs.New(errs.CodeValidation, "invalid save file format: missing 'events'")
	}
	return ledger.DecodeSnapshot(data)
}

// Compressed reports whether path names a zstd-compressed slot.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// WriteFile writes slot data to path, creating parent directories.
func WriteFile(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errs.Wrap(errs.CodePersistence, cerr, "close %s", path)
		}
	}()

	if !Compressed(path) {
		if _, err := f.Write(data); err != nil {
			return errs.Wrap(errs.CodePersistence, err, "write %s", path)
		}
		return nil
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "zstd writer")
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return errs.Wrap(errs.CodePersistence, err, "write %s", path)
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "flush %s", path)
	}
	return nil
}

// ReadFile reads slot data from path, decompressing .zst files.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.CodeNotFound, err, "save slot %s", path)
		}
		return nil, errs.Wrap(errs.CodePersistence, err, "open %s", path)
	}
	defer f.Close()

	if !Compressed(path) {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, errs.Wrap(errs.CodePersistence, err, "read %s", path)
		}
		return data, nil
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "zstd reader")
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "decompress %s", path)
	}
	return data, nil
}

// Compress zstd-encodes an in-memory payload.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "corrupt compressed payload")
	}
	return out, nil
}
