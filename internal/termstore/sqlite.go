package termstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/safe-negotiator/internal/safe"
)

// SQLiteStore serves reads from an embedded MemoryStore and writes every
// new version through to SQLite.
type SQLiteStore struct {
	*MemoryStore
	db *sqlx.DB
	mu sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS terms_versions (
	version           INTEGER PRIMARY KEY,
	id                TEXT NOT NULL UNIQUE,
	valuation_cap     REAL NOT NULL,
	discount_rate     REAL NOT NULL,
	investment_amount REAL NOT NULL,
	pro_rata_rights   INTEGER NOT NULL DEFAULT 0,
	mfn_provision     INTEGER NOT NULL DEFAULT 0,
	board_observer    INTEGER NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT 'manual',
	note              TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);
`

type versionRow struct {
	Version          int     `db:"version"`
	ID               string  `db:"id"`
	ValuationCap     float64 `db:"valuation_cap"`
	DiscountRate     float64 `db:"discount_rate"`
	InvestmentAmount float64 `db:"investment_amount"`
	ProRataRights    bool    `db:"pro_rata_rights"`
	MFNProvision     bool    `db:"mfn_provision"`
	BoardObserver    bool    `db:"board_observer"`
	Source           string  `db:"source"`
	Note             string  `db:"note"`
	CreatedAt        string  `db:"created_at"`
}

func rowFromVersion(v Version) versionRow {
	return versionRow{
		Version:          v.Number,
		ID:               v.ID,
		ValuationCap:     v.Terms.ValuationCap,
		DiscountRate:     v.Terms.DiscountRate,
		InvestmentAmount: v.Terms.InvestmentAmount,
		ProRataRights:    v.Terms.ProRataRights,
		MFNProvision:     v.Terms.MFNProvision,
		BoardObserver:    v.Terms.BoardObserver,
		Source:           string(v.Source),
		Note:             v.Note,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (r versionRow) version() Version {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return Version{
		ID:     r.ID,
		Number: r.Version,
		Terms: safe.Terms{
			ValuationCap:     r.ValuationCap,
			DiscountRate:     r.DiscountRate,
			InvestmentAmount: r.InvestmentAmount,
			ProRataRights:    r.ProRataRights,
			MFNProvision:     r.MFNProvision,
			BoardObserver:    r.BoardObserver,
		},
		Source:    Source(r.Source),
		Note:      r.Note,
		CreatedAt: created,
	}
}

func NewSQLiteStore(dbPath string, cfg Config) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{MemoryStore: NewMemoryStore(cfg), db: db}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) loadAll() error {
	var rows []versionRow
	if err := s.db.Select(&rows, "SELECT * FROM terms_versions ORDER BY version"); err != nil {
		return err
	}
	versions := make([]Version, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.version())
	}
	s.restore(versions)
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, terms safe.Terms, source Source, note string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.MemoryStore.Update(ctx, terms, source, note)
	if err != nil {
		return Version{}, err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO terms_versions
		(version, id, valuation_cap, discount_rate, investment_amount, pro_rata_rights, mfn_provision, board_observer, source, note, created_at)
		VALUES (:version, :id, :valuation_cap, :discount_rate, :investment_amount, :pro_rata_rights, :mfn_provision, :board_observer, :source, :note, :created_at)`,
		rowFromVersion(v))
	if err != nil {
		history, _ := s.MemoryStore.History(ctx)
		s.restore(history[:len(history)-1])
		return Version{}, fmt.Errorf("insert terms version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
