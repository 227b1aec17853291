package quota

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps State in an embedded database. Every Update runs in one
// immediate transaction, so several processes can share the file.
type SQLiteStore struct {
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_search_state.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	return loadState(ctx, s.db)
}

func (s *SQLiteStore) Save(ctx context.Context, st State) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = saveState(ctx, tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(*State) error) (st State, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	st, err = loadState(ctx, tx)
	if err != nil {
		return State{}, err
	}
	if err = fn(&st); err != nil {
		return State{}, err
	}
	if err = saveState(ctx, tx, st); err != nil {
		return State{}, err
	}
	if err = tx.Commit(); err != nil {
		return State{}, err
	}
	return st, nil
}

func loadState(ctx context.Context, q querier) (State, error) {
	st := newState("")
	row := q.QueryRowContext(ctx, `SELECT day, searches FROM search_quota WHERE id = 1`)
	if err := row.Scan(&st.Date, &st.SearchesUsed); err != nil && err != sql.ErrNoRows {
		return State{}, fmt.Errorf("load search quota: %w", err)
	}

	if err := scanCounts(ctx, q, `SELECT actor, searches FROM actor_searches`, st.Actors); err != nil {
		return State{}, fmt.Errorf("load actor searches: %w", err)
	}
	if err := scanCounts(ctx, q, `SELECT domain, failures FROM domain_failures`, st.FailedDomains); err != nil {
		return State{}, fmt.Errorf("load domain failures: %w", err)
	}
	return st, nil
}

func scanCounts(ctx context.Context, q querier, query string, into map[string]int) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func saveState(ctx context.Context, q querier, st State) error {
	now := time.Now().UTC()
	if _, err := q.ExecContext(
		ctx,
		`INSERT INTO search_quota (id, day, searches, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			day=excluded.day,
			searches=excluded.searches,
			updated_at=excluded.updated_at`,
		st.Date,
		st.SearchesUsed,
		now,
	); err != nil {
		return fmt.Errorf("save search quota: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM actor_searches`); err != nil {
		return fmt.Errorf("clear actor searches: %w", err)
	}
	for actor, n := range st.Actors {
		if _, err := q.ExecContext(ctx, `INSERT INTO actor_searches (actor, searches) VALUES (?, ?)`, actor, n); err != nil {
			return fmt.Errorf("save actor searches: %w", err)
		}
	}

	for domain, n := range st.FailedDomains {
		if _, err := q.ExecContext(
			ctx,
			`INSERT INTO domain_failures (domain, failures, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(domain) DO UPDATE SET
				failures=excluded.failures,
				updated_at=excluded.updated_at`,
			domain,
			n,
			now,
		); err != nil {
			return fmt.Errorf("save domain failures: %w", err)
		}
	}
	return nil
}
