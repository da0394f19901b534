package database

import (
	"io/fs"
	"sort"

	"github.com/pkg/errors"

	appfs "github.com/tathmini/backend/fs"
)

// Migrate applies the embedded migrations in filename order. Applied
// versions are tracked in schema_migrations; each migration runs in its
// own transaction.
func Migrate(db *DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    text PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`); err != nil {
		return errors.Wrap(err, "creating schema_migrations")
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return errors.Wrap(err, "querying applied migrations")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var version string
		if err = rows.Scan(&version); err != nil {
			return errors.Wrap(err, "scanning applied migrations")
		}
		applied[version] = true
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "reading applied migrations")
	}

	names, err := fs.Glob(appfs.FS, "migrations/*.sql")
	if err != nil {
		return errors.Wrap(err, "listing migrations")
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}
		script, err := fs.ReadFile(appfs.FS, name)
		if err != nil {
			return errors.Wrapf(err, "reading migration %s", name)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrap(err, "beginning migration transaction")
		}
		if _, err = tx.Exec(string(script)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "applying migration %s", name)
		}
		if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "recording migration %s", name)
		}
		if err = tx.Commit(); err != nil {
			return errors.Wrapf(err, "committing migration %s", name)
		}
	}
	return nil
}
