// Package catalog stores human-written image descriptions in SQLite. Descriptions give the
// text re-ranker something to score against and provide the queries for evaluation.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Description is one catalog row.
type Description struct {
	PhotoID string `json:"photo_id"`
	Text    string `json:"text"`
	// Source is the TSV column the text came from.
	Source string `json:"source"`
}

// Catalog is a SQLite-backed description store.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func Open(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS descriptions (
		photo_id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		source TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces descriptions in one transaction.
func (c *Catalog) Put(ctx context.Context, descs []Description) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO descriptions (photo_id, description, source, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(photo_id) DO UPDATE SET
		   description = excluded.description,
		   source = excluded.source,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range descs {
		if _, err := stmt.ExecContext(ctx, d.PhotoID, d.Text, d.Source); err != nil {
			return fmt.Errorf("failed to store description %s: %w", d.PhotoID, err)
		}
	}
	return tx.Commit()
}

// Get returns the description for photoID; ok is false when there is none.
func (c *Catalog) Get(ctx context.Context, photoID string) (text string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT description FROM descriptions WHERE photo_id = ?`, photoID,
	).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Lookup returns the descriptions for the given photo ids. Ids without a description are
// absent from the result.
func (c *Catalog) Lookup(ctx context.Context, photoIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(photoIDs))
	if len(photoIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(photoIDs)), ",")
	args := make([]any, len(photoIDs))
	for i, id := range photoIDs {
		args[i] = id
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT photo_id, description FROM descriptions WHERE photo_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		out[id] = text
	}
	return out, rows.Err()
}

// Sample returns up to n descriptions whose photo id is in allowed, chosen with a
// deterministic shuffle seeded by seed. A nil allowed set admits every row.
func (c *Catalog) Sample(ctx context.Context, n int, seed int64, allowed map[string]struct{}) ([]Description, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT photo_id, description, source FROM descriptions ORDER BY photo_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Description
	for rows.Next() {
		var d Description
		if err := rows.Scan(&d.PhotoID, &d.Text, &d.Source); err != nil {
			return nil, err
		}
		if allowed != nil {
			if _, ok := allowed[d.PhotoID]; !ok {
				continue
			}
		}
		all = append(all, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// Count returns the number of descriptions.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptions`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}
