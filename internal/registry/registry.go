// Package registry keeps the install history in a sqlite database.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Status values recorded for an install.
const (
	StatusInstalled = "installed"
)

// Entry is one recorded execution.
type Entry struct {
	ID         int64
	Invocation string
	Name       string
	Version    string
	Status     string
	StepsRun   int
	Prefix     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the execution took.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// DB is the install registry.
type DB struct {
	*sql.DB
}

// Open opens or creates the registry at path.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
	}
	// one connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		pragma journal_mode = WAL;
		pragma synchronous = normal;
		pragma busy_timeout = 5000;

		create table if not exists installs (
			id integer primary key autoincrement,
			invocation text not null unique,
			name text not null,
			version text not null default '',
			status text not null,
			steps_run integer not null default 0,
			prefix text not null default '',
			error text not null default '',
			started_at text not null,
			finished_at text not null
		);
		create index if not exists installs_name on installs(name, id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", commonerrors.ErrRegistryFailure, err)
	}

	return &DB{db}, nil
}

// Record stores e and returns its id.
func (d *DB) Record(ctx context.Context, e Entry) (int64, error) {
	res, err := d.ExecContext(ctx, `
		insert into installs (invocation, name, version, status, steps_run, prefix, error, started_at, finished_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Invocation, e.Name, e.Version, e.Status, e.StepsRun, e.Prefix, e.Error,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: record %s: %v", commonerrors.ErrRegistryFailure, e.Name, err)
	}
	return res.LastInsertId()
}

// List returns the most recent entries first. A limit <= 0 returns all.
func (d *DB) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		select id, invocation, name, version, status, steps_run, prefix, error, started_at, finished_at
		from installs
		order by id desc`
	var args []any
	if limit > 0 {
		query += " limit ?"
		args = append(args, limit)
	}

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.Invocation, &e.Name, &e.Version, &e.Status, &e.StepsRun,
			&e.Prefix, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
	}

	return entries, nil
}

// Installed returns the names whose latest record is installed, sorted.
func (d *DB) Installed(ctx context.Context) ([]string, error) {
	rows, err := d.QueryContext(ctx, `
		select i.name
		from installs i
		where i.id = (select max(id) from installs where name = i.name)
		  and i.status = ?
		order by i.name`, StatusInstalled)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", commonerrors.ErrRegistryFailure, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
