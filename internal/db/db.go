// Package db stores analysed trials in SQLite: the trial summary, the
// per-frame angle series and the accepted peaks.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielmundi/PronoSupinoADM/internal/timeutil"
	"github.com/rs/zerolog"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the trials database.
type DB struct {
	*sql.DB
	log   zerolog.Logger
	clock timeutil.Clock
}

// Option customises NewDB.
type Option func(*DB)

// WithLogger sets the logger used for migrations and admin routes.
func WithLogger(l zerolog.Logger) Option {
	return func(db *DB) { db.log = l }
}

// WithClock sets the clock used to stamp recorded trials.
func WithClock(c timeutil.Clock) Option {
	return func(db *DB) { db.clock = c }
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// NewDB opens (creating if needed) the database at path and migrates it
// to the latest schema.
func NewDB(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, log: zerolog.Nop(), clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// AttachAdminRoutes mounts the debug pages on mux: the tsweb debugger, a
// read-only SQL browser over the trials and a backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	browser, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("creating tailsql server: %w", err)
	}
	browser.SetDB("sqlite://prosup.db", db.DB, &tailsql.DBOptions{Label: "Trials"})

	debug := tsweb.Debugger(mux)
	debug.Handle("tailsql/", "Query stored trials", browser.NewMux())
	debug.Handle("backup", "Download a gzipped copy of the trials database", db.BackupHandler())
	return nil
}

// BackupHandler snapshots the database with VACUUM INTO and streams the
// copy gzipped.
func (db *DB) BackupHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir, err := os.MkdirTemp("", "prosup-backup-*")
		if err != nil {
			http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				db.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove backup")
			}
		}()

		name := fmt.Sprintf("trials-%s.db", db.clock.Now().UTC().Format("20060102T150405Z"))
		snapshot := filepath.Join(dir, name)
		if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", snapshot); err != nil {
			http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
			return
		}
		f, err := os.Open(snapshot)
		if err != nil {
			http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		zw := gzip.NewWriter(w)
		if _, err := io.Copy(zw, f); err != nil {
			db.log.Error().Err(err).Msg("failed to stream backup")
			return
		}
		if err := zw.Close(); err != nil {
			db.log.Error().Err(err).Msg("failed to finish backup stream")
			return
		}
		db.log.Info().Str("file", name).Msg("database backup sent")
	})
}
