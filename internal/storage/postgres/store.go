package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cloudMining/internal/model"
)

// Store provides Postgres persistence for ledger snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledgers (
		name TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		reservoir TEXT NOT NULL,
		min_amount NUMERIC(78,0) NOT NULL,
		fee_percent SMALLINT NOT NULL,
		total_supply NUMERIC(78,0) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_balances (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		holder TEXT NOT NULL,
		amount NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (ledger, holder)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_investors (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		position INT NOT NULL,
		investor TEXT NOT NULL,
		PRIMARY KEY (ledger, position)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_prices (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		position INT NOT NULL,
		asset TEXT NOT NULL,
		price NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (ledger, position)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_mined_assets (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		position INT NOT NULL,
		asset TEXT NOT NULL,
		ever_distributed NUMERIC(78,0) NOT NULL,
		ever_withdrawn NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (ledger, position)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_pending (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		holder TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (ledger, holder, asset)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_in_flight (
		ledger TEXT NOT NULL REFERENCES ledgers(name) ON DELETE CASCADE,
		position INT NOT NULL,
		kind TEXT NOT NULL,
		token TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		amount NUMERIC(78,0) NOT NULL,
		PRIMARY KEY (ledger, position)
	)`,
}

// EnsureSchema creates the ledger tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored state of a ledger in one transaction.
// Roster tables keep their order through the position column.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.LedgerSnapshot) error {
	if name == "" {
		return fmt.Errorf("ledger name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO ledgers (name, owner, reservoir, min_amount, fee_percent, total_supply, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			reservoir = EXCLUDED.reservoir,
			min_amount = EXCLUDED.min_amount,
			fee_percent = EXCLUDED.fee_percent,
			total_supply = EXCLUDED.total_supply,
			updated_at = now()
	`, name, snap.Owner, snap.Reservoir, snap.MinAmount, int16(snap.FeePercent), snap.TotalSupply)

	for _, table := range []string{"ledger_balances", "ledger_investors", "ledger_prices", "ledger_mined_assets", "ledger_pending", "ledger_in_flight"} {
		batch.Queue(`DELETE FROM `+table+` WHERE ledger = $1`, name)
	}
	for _, b := range snap.Balances {
		batch.Queue(`INSERT INTO ledger_balances (ledger, holder, amount) VALUES ($1, $2, $3::numeric)`, name, b.Address, b.Amount)
	}
	for i, investor := range snap.Investors {
		batch.Queue(`INSERT INTO ledger_investors (ledger, position, investor) VALUES ($1, $2, $3)`, name, i, investor)
	}
	for i, p := range snap.Prices {
		batch.Queue(`INSERT INTO ledger_prices (ledger, position, asset, price) VALUES ($1, $2, $3, $4::numeric)`, name, i, p.Asset, p.Price)
	}
	for i, m := range snap.MinedAssets {
		batch.Queue(`
			INSERT INTO ledger_mined_assets (ledger, position, asset, ever_distributed, ever_withdrawn)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric)
		`, name, i, m.Asset, m.EverDistributed, m.EverWithdrawn)
	}
	for _, p := range snap.Pending {
		batch.Queue(`INSERT INTO ledger_pending (ledger, holder, asset, amount) VALUES ($1, $2, $3, $4::numeric)`, name, p.Holder, p.Asset, p.Amount)
	}
	for i, t := range snap.InFlight {
		batch.Queue(`
			INSERT INTO ledger_in_flight (ledger, position, kind, token, sender, recipient, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
		`, name, i, t.Kind, t.Token, t.From, t.To, t.Amount)
	}

	queued := batch.Len()
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save snapshot %s: %w", name, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}

	return tx.Commit(ctx)
}

// LoadSnapshot returns the stored state of a ledger.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.LedgerSnapshot, bool, error) {
	if name == "" {
		return model.LedgerSnapshot{}, false, fmt.Errorf("ledger name required")
	}

	var (
		snap      model.LedgerSnapshot
		fee       int16
		updatedAt time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT owner, reservoir, min_amount::text, fee_percent, total_supply::text, updated_at
		FROM ledgers WHERE name = $1
	`, name)
	if err := row.Scan(&snap.Owner, &snap.Reservoir, &snap.MinAmount, &fee, &snap.TotalSupply, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, err
	}
	snap.FeePercent = uint8(fee)
	snap.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)

	var err error
	snap.Balances, err = collect(ctx, s.pool, `SELECT holder, amount::text FROM ledger_balances WHERE ledger = $1 ORDER BY holder`, name,
		func(rows pgx.Rows) (model.BalanceEntry, error) {
			var e model.BalanceEntry
			return e, rows.Scan(&e.Address, &e.Amount)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load balances: %w", err)
	}
	snap.Investors, err = collect(ctx, s.pool, `SELECT investor FROM ledger_investors WHERE ledger = $1 ORDER BY position`, name,
		func(rows pgx.Rows) (string, error) {
			var investor string
			return investor, rows.Scan(&investor)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load investors: %w", err)
	}
	snap.Prices, err = collect(ctx, s.pool, `SELECT asset, price::text FROM ledger_prices WHERE ledger = $1 ORDER BY position`, name,
		func(rows pgx.Rows) (model.PriceEntry, error) {
			var e model.PriceEntry
			return e, rows.Scan(&e.Asset, &e.Price)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load prices: %w", err)
	}
	snap.MinedAssets, err = collect(ctx, s.pool, `
		SELECT asset, ever_distributed::text, ever_withdrawn::text
		FROM ledger_mined_assets WHERE ledger = $1 ORDER BY position
	`, name,
		func(rows pgx.Rows) (model.MinedAssetInfo, error) {
			var e model.MinedAssetInfo
			return e, rows.Scan(&e.Asset, &e.EverDistributed, &e.EverWithdrawn)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load mined assets: %w", err)
	}
	snap.Pending, err = collect(ctx, s.pool, `SELECT holder, asset, amount::text FROM ledger_pending WHERE ledger = $1 ORDER BY holder, asset`, name,
		func(rows pgx.Rows) (model.PendingEntry, error) {
			var e model.PendingEntry
			return e, rows.Scan(&e.Holder, &e.Asset, &e.Amount)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load pending: %w", err)
	}
	inFlight, err := collect(ctx, s.pool, `
		SELECT kind, token, sender, recipient, amount::text
		FROM ledger_in_flight WHERE ledger = $1 ORDER BY position
	`, name,
		func(rows pgx.Rows) (model.TransferIntent, error) {
			var t model.TransferIntent
			return t, rows.Scan(&t.Kind, &t.Token, &t.From, &t.To, &t.Amount)
		})
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load in-flight transfers: %w", err)
	}
	if len(inFlight) > 0 {
		snap.InFlight = inFlight
	}

	return snap, true, nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query, name string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
