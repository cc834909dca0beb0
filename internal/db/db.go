package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// NewDB opens the database at path and ensures the capture schema exists.
// The inline schema matches migration 0001; later schema changes are applied
// through the migrate commands.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS capture_runs (
			run_id              TEXT PRIMARY KEY,
			interface           TEXT,
			burst_size          BIGINT,
			store_capacity      BIGINT,
			started_at_ns       BIGINT,
			ended_at_ns         BIGINT,
			packets_received    BIGINT,
			packets_timestamped BIGINT,
			packets_evaluated   BIGINT,
			diffs_recorded      BIGINT,
			diffs_dropped       BIGINT,
			output_file         TEXT,
			run_error           TEXT,
			min_ns              BIGINT,
			max_ns              BIGINT,
			mean_ns             DOUBLE,
			stddev_ns           DOUBLE,
			p50_ns              BIGINT,
			p90_ns              BIGINT,
			p95_ns              BIGINT,
			p99_ns              BIGINT,
			timestamp           TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenDB opens the database at path without initializing the schema.
// The migrate commands use this so migrations fully own schema changes.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// AttachAdminRoutes mounts the debug endpoints for database inspection:
// a tailSQL console for live queries and a backup download handler.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://precision.db", db.DB, &tailsql.DBOptions{
		Label: "Precision DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// remove the on-disk backup once it has been sent
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			// Headers are already out, all we can do is log.
			log.Printf("Failed to stream backup file: %v", err)
		}
	}))
}
