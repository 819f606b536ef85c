package pool

import (
	"context"

	"cloudMining/internal/model"
)

type snapshotDB interface {
	LoadSnapshot(ctx context.Context, name string) (model.LedgerSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, name string, snap model.LedgerSnapshot) error
}

// DBStateStore stores one named ledger in the ledger tables.
// *postgres.Store satisfies the DB field.
type DBStateStore struct {
	DB   snapshotDB
	Name string
}

func (s *DBStateStore) Load(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.DB == nil {
		return model.LedgerSnapshot{}, false, nil
	}
	return s.DB.LoadSnapshot(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.SaveSnapshot(ctx, s.Name, snap)
}
