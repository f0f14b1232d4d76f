// Package webcache caches downloaded source pages between runs so a
// re-run (or the parser self-check) does not hammer the parliament
// website. Pages are keyed by a hash of method, url and an extension
// string that disambiguates POST requests sharing a url.
package webcache

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"nrsr-backend/lib/timezone"
)

const Schema = `
CREATE TABLE IF NOT EXISTS webcache (
	key TEXT NOT NULL PRIMARY KEY,
	contents TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

type Cache struct {
	db *sql.DB
}

func New(db *sql.DB) Cache {
	return Cache{db: db}
}

// OpenFile opens (and initializes) a cache database at the given path,
// ":memory:" included.
func OpenFile(path string) (Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Cache{}, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		return Cache{}, fmt.Errorf("failed to initialize webcache schema: %w", err)
	}
	return New(db), nil
}

// Key derives the cache key for a request. `ext` makes POST requests
// with different form data unique.
func Key(method, url, ext string) string {
	sum := md5.Sum([]byte(method + url + ext))
	return hex.EncodeToString(sum[:])
}

func (c Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var contents string
	err := c.db.QueryRowContext(ctx,
		`SELECT contents FROM webcache WHERE key = ?`, key,
	).Scan(&contents)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return contents, true, nil
}

func (c Cache) Set(ctx context.Context, key, contents string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO webcache (key, contents, created_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET contents = excluded.contents, created_at = excluded.created_at`,
		key, contents, timezone.Now().Unix(),
	)
	return err
}

// Clear drops all cached pages, the scraper does this at the start of
// every run so it never reconciles from stale pages.
func (c Cache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM webcache`)
	return err
}
