package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite stores the layout in two tables: a single panel_state row and one
// tabs row per session, ordered by position.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection so ":memory:" databases are shared and saves serialize.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load() (*Record, error) {
	r := &Record{}
	err := s.db.QueryRow(`SELECT visible, active_id, height, maximized, minimized
		FROM panel_state WHERE id = 1`).Scan(&r.Visible, &r.ActiveID, &r.Height, &r.Maximized, &r.Minimized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}

	rows, err := s.db.Query("SELECT id, title, hint FROM tabs ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("load tabs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Tab
		if err := rows.Scan(&t.ID, &t.Title, &t.Hint); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		r.Tabs = append(r.Tabs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tabs: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Height == "" {
		r.Height = DefaultHeight
	}
	return r, nil
}

func (s *SQLite) Save(r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tabs"); err != nil {
		return fmt.Errorf("clear tabs: %w", err)
	}
	for i, t := range r.Tabs {
		if _, err := tx.Exec("INSERT INTO tabs (position, id, title, hint) VALUES (?, ?, ?, ?)",
			i, t.ID, t.Title, t.Hint); err != nil {
			return fmt.Errorf("insert tab %s: %w", t.ID, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO panel_state (id, visible, active_id, height, maximized, minimized, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			visible = excluded.visible,
			active_id = excluded.active_id,
			height = excluded.height,
			maximized = excluded.maximized,
			minimized = excluded.minimized,
			updated_at = excluded.updated_at`,
		r.Visible, r.ActiveID, r.Height, r.Maximized, r.Minimized); err != nil {
		return fmt.Errorf("save panel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
