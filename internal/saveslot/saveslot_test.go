package saveslot

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/num"
	"github.com/roach88/litledger/internal/testutil"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(
		ledger.WithIDGenerator(testutil.NewFixedIDs("b")),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return l
}

func seeded(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := newLedger(t)
	for _, raw := range []string{
		`{"type":"gold","action":"gain","value":"12","unit":"GP"}`,
		`{"type":"item","action":"gain","name":"Rope","qty":2}`,
		`{"type":"buff","action":"gain","name":"Bless","effects":{"Luck":"1"},"expiry_type":"permanent"}`,
	} {
		ev, err := event.Decode([]byte(raw))
		require.NoError(t, err)
		_, err = l.AddEvent(context.Background(), ev)
		require.NoError(t, err)
	}
	return l
}

func TestExport_Format(t *testing.T) {
	data, err := Export(context.Background(), seeded(t), testutil.NewClock(time.Time{}))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `"1.0"`, string(doc["version"]))
	assert.JSONEq(t, `"2024-01-01T00:00:00Z"`, string(doc["timestamp"]))
	assert.JSONEq(t, `3`, string(doc["last_event_id"]))
	assert.Contains(t, string(doc["active_buffs"]), "Bless")

	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(doc["events"], &events))
	assert.Len(t, events, 3)
}

func TestImport_RoundTrip(t *testing.T) {
	src := seeded(t)
	data, err := Export(context.Background(), src, nil)
	require.NoError(t, err)

	snap, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.LastEventID)

	dst := newLedger(t)
	require.NoError(t, dst.Restore(context.Background(), snap))
	st, err := dst.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1200", num.String(st.CurrencyBalance))
	assert.Equal(t, "2", num.String(st.Inventory["Rope"]))
}

func TestImport_MissingEvents(t *testing.T) {
	_, err := Import([]byte(`{"version":"1.0","last_event_id":3}`))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
	assert.Contains(t, err.Error(), "missing 'events'")

	_, err = Import([]byte(`not json`))
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestFiles_ZstdRoundTrip(t *testing.T) {
	data, err := Export(context.Background(), seeded(t), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	plain := filepath.Join(dir, "slots", "slot_1.json")
	packed := filepath.Join(dir, "slots", "slot_1.json.zst")
	require.NoError(t, WriteFile(plain, data))
	require.NoError(t, WriteFile(packed, data))

	raw, err := os.ReadFile(packed)
	require.NoError(t, err)
	assert.NotEqual(t, data, raw)

	for _, path := range []string{plain, packed} {
		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		snap, err := Import(got)
		require.NoError(t, err)
		assert.Len(t, snap.Events, 3)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestCompress(t *testing.T) {
	payload := []byte(`{"events":[]}`)
	packed, err := Compress(payload)
	require.NoError(t, err)
	got, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = Decompress([]byte("garbage"))
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	a, err := Checksum([]byte(`{"b": 1, "a": [true, null, "x"]}`))
	require.NoError(t, err)
	b, err := Checksum([]byte("{\n  \"a\": [true, null, \"x\"],\n  \"b\": 1\n}"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Checksum([]byte(`{"a": [true, null, "x"], "b": 2}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = Checksum([]byte(`{`))
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func TestCanonical(t *testing.T) {
	got, err := Canonical(map[string]any{
		"z": "<tag>",
		"a": []any{json.Number("1.50"), nil},
		"é": "café",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1.50,null],"z":"<tag>","é":"café"}`, string(got))

	_, err = Canonical(map[string]any{"f": 1.5})
	assert.Error(t, err)
}
