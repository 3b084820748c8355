package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/saveslot"
)

// SlotInfo describes an archived slot without its payload.
type SlotInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Checksum  string `json:"checksum"`
	Events    int    `json:"events"`
}

// SaveSlot archives an exported save slot under name, replacing any slot
// with the same name.
func (s *Store) SaveSlot(ctx context.Context, name string, data []byte, at time.Time) (*SlotInfo, error) {
	if name == "" {
		return nil, errs.New(errs.CodeValidation, "slot name is required")
	}
	snap, err := saveslot.Import(data)
	if err != nil {
		return nil, err
	}
	sum, err := saveslot.Checksum(data)
	if err != nil {
		return nil, err
	}
	packed, err := saveslot.Compress(data)
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "compress slot %s", name)
	}
	created := at.UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slots (name, created_at, checksum, events, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			created_at = excluded.created_at,
			checksum = excluded.checksum,
			events = excluded.events,
			payload = excluded.payload
	`, name, created, sum, len(snap.Events), packed)
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "save slot %s", name)
	}
	return s.slotInfo(ctx, name)
}

func (s *Store) slotInfo(ctx context.Context, name string) (*SlotInfo, error) {
	var info SlotInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, checksum, events FROM slots WHERE name = ?
	`, name).Scan(&info.ID, &info.Name, &info.CreatedAt, &info.Checksum, &info.Events)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeNotFound, "slot %q not found", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "read slot %s", name)
	}
	return &info, nil
}

// LoadSlot returns the slot document archived under name. A payload whose
// checksum no longer matches is reported as VALIDATION.
func (s *Store) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	var sum string
	var packed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT checksum, payload FROM slots WHERE name = ?
	`, name).Scan(&sum, &packed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeNotFound, "slot %q not found", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "load slot %s", name)
	}
	data, err := saveslot.Decompress(packed)
	if err != nil {
		return nil, err
	}
	got, err := saveslot.Checksum(data)
	if err != nil {
		return nil, err
	}
	if got != sum {
		return nil, errs.New(errs.CodeValidation, "slot %q is corrupt: checksum mismatch", name).
			WithDetail("want", sum).
			WithDetail("got", got)
	}
	return data, nil
}

// ListSlots returns every archived slot ordered by name.
func (s *Store) ListSlots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, checksum, events
		FROM slots
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "list slots")
	}
	defer rows.Close()

	out := []SlotInfo{}
	for rows.Next() {
		var info SlotInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.CreatedAt, &info.Checksum, &info.Events); err != nil {
			return nil, errs.Wrap(errs.CodePersistence, err, "scan slot")
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodePersistence, err, "list slots")
	}
	return out, nil
}

// DeleteSlot removes the slot archived under name.
func (s *Store) DeleteSlot(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, name)
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "delete slot %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.CodePersistence, err, "delete slot %s", name)
	}
	if n == 0 {
		return errs.New(errs.CodeNotFound, "slot %q not found", name)
	}
	return nil
}
