package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"smc-scanner/pkg/utils"
)

// AliasTable resolves common search aliases (e.g. "bank nifty") to their
// canonical instrument symbol (BANKNIFTY), backed by SQLite the way the
// journal store persists its lookup tables, so the alias list can be
// extended without a code change by editing the on-disk database directly.
type AliasTable struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewAliasTable opens (creating if necessary) the alias database at path
// and seeds it with the default index aliases if empty. Pass ":memory:"
// for an ephemeral table suitable for tests.
func NewAliasTable(path string) (*AliasTable, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening alias db: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS symbol_aliases (
		alias  TEXT PRIMARY KEY,
		symbol TEXT NOT NULL
	);`
	// Retried rather than passed straight through: a fresh on-disk database
	// shared by a concurrently-starting process can still return
	// SQLITE_BUSY during table creation even with _busy_timeout set, since
	// that timeout only covers lock waits once a transaction is underway.
	openRetry := utils.DefaultRetryConfig()
	openRetry.MaxAttempts = 5
	if err := utils.Retry(context.Background(), openRetry, func() error {
		_, err := db.Exec(schema)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing alias schema: %w", err)
	}

	t := &AliasTable{db: db}
	if err := t.seedDefaults(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

var defaultAliases = map[string]string{
	"bank nifty": "BANKNIFTY",
	"banknifty":  "BANKNIFTY",
	"nifty":      "NIFTY50",
	"nifty 50":   "NIFTY50",
	"fin nifty":  "FINNIFTY",
	"finnifty":   "FINNIFTY",
	"sensex":     "SENSEX",
}

func (t *AliasTable) seedDefaults() error {
	for alias, symbol := range defaultAliases {
		if _, err := t.db.Exec(
			`INSERT OR IGNORE INTO symbol_aliases (alias, symbol) VALUES (?, ?)`,
			alias, symbol,
		); err != nil {
			return fmt.Errorf("seeding alias %q: %w", alias, err)
		}
	}
	return nil
}

// Resolve looks up the canonical symbol for a lowercase, trimmed alias.
func (t *AliasTable) Resolve(alias string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var symbol string
	err := t.db.QueryRow(
		`SELECT symbol FROM symbol_aliases WHERE alias = ?`,
		strings.ToLower(strings.TrimSpace(alias)),
	).Scan(&symbol)
	if err != nil {
		return "", false
	}
	return symbol, true
}

// Add registers a new alias for symbol, overwriting any prior mapping.
func (t *AliasTable) Add(alias, symbol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(
		`INSERT INTO symbol_aliases (alias, symbol) VALUES (?, ?)
		 ON CONFLICT(alias) DO UPDATE SET symbol = excluded.symbol`,
		strings.ToLower(strings.TrimSpace(alias)), symbol,
	)
	return err
}

// Close releases the underlying database handle.
func (t *AliasTable) Close() error {
	return t.db.Close()
}
