package storage

import (
	"context"
	"path/filepath"
	"testing"

	"cloudMining/internal/model"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	store := NewFileStateStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	if _, ok, err := store.Load(context.Background()); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	snap := model.LedgerSnapshot{
		Owner:       "0x0000000000000000000000000000000000000001",
		Reservoir:   "0x0000000000000000000000000000000000000002",
		MinAmount:   "1000000000000000000",
		FeePercent:  20,
		TotalSupply: "50000000000000000000",
		Balances:    []model.BalanceEntry{{Address: "0x0000000000000000000000000000000000000002", Amount: "50000000000000000000"}},
	}
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.UpdatedAt == "" {
		t.Fatalf("expected updated_at to be set")
	}
	if got.TotalSupply != snap.TotalSupply || got.FeePercent != 20 || len(got.Balances) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestFileStateStoreRejectsDirectory(t *testing.T) {
	store := NewFileStateStore(t.TempDir())
	if _, _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected error for directory path")
	}
}

func TestJsonlJournalAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "ops.jsonl")
	journal := NewJsonlJournal(path)

	if err := journal.Append(); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if err := journal.Append(
		model.JournalEntry{Ledger: "main", Op: model.OpMint, Amount: "10"},
		model.JournalEntry{Ledger: "main", Op: model.OpEnter, Account: "0xabc", Details: map[string]string{"cost": "15"}},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Append(model.JournalEntry{Ledger: "main", Op: model.OpDistribute}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := ReadJournal(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Op != model.OpEnter || entries[1].Details["cost"] != "15" {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}

	missing, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil || missing != nil {
		t.Fatalf("missing journal: %v %v", missing, err)
	}
}
