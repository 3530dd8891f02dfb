package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestCodecRoundTrip(t *testing.T) {
	var c Codec
	in := bytes.Repeat([]byte(`{"k":1,"q":10}`), 100)
	packed, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if len(packed) >= len(in) {
		t.Fatalf("expected compression, got %d >= %d", len(packed), len(in))
	}
	out, err := c.Decode(packed)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("roundtrip mismatch")
	}
	if _, err := c.Decode([]byte("not zstd")); err == nil {
		t.Fatalf("expected decode error for garbage")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	inv, reg := inventory.SampleInventory("u1")
	store := NewMemoryStore()
	if err := store.Save(ctx, inv); err != nil {
		t.Fatalf("save error: %v", err)
	}
	restored := inventory.New(inv.ID, inv.Owner, 0, 0, 0, inventory.WithRegistry(reg))
	if err := store.Load(ctx, restored); err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(restored.Stacks()) != len(inv.Stacks()) || !restored.HasItem("ammo-9mm", 30) {
		t.Fatalf("restored inventory differs")
	}
	if err := store.Delete(ctx, inv.ID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if err := store.Load(ctx, restored); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerRecordsEntries(t *testing.T) {
	ctx := context.Background()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"), quietLogger())
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer l.Close()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, actor := range []string{"a", "b", "a"} {
		entry := LedgerEntry{CommandID: string(rune('x' + i)), Actor: actor, Command: "loot", Inventory: "inv-" + actor, Kind: "apple", Given: i + 1, Outcome: "AllAdded", At: now}
		if err := l.Record(entry); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}
	if err := l.Sync(ctx); err != nil {
		t.Fatalf("sync error: %v", err)
	}
	entries, err := l.Entries(ctx, "a", 10)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(entries) != 2 || entries[0].Given != 1 || entries[1].Given != 3 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !entries[0].At.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, entries[0].At)
	}
	all, _ := l.Entries(ctx, "", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}
