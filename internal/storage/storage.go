package storage

import (
	"context"

	"cloudMining/internal/model"
)

// StateStore persists the latest ledger snapshot. Load reports false when no
// snapshot was saved yet.
type StateStore interface {
	Load(ctx context.Context) (model.LedgerSnapshot, bool, error)
	Save(ctx context.Context, snap model.LedgerSnapshot) error
}

// Journal is a sink for audit entries.
type Journal interface {
	Append(entries ...model.JournalEntry) error
}

// NopJournal drops every entry.
type NopJournal struct{}

func (NopJournal) Append(...model.JournalEntry) error { return nil }
