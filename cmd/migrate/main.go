package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/migrations"
)

type migrationFile struct {
	version int
	name    string
	path    string
	kind    string // up or down
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or status")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       envOr("LOG_LEVEL", "info"),
		Format:      envOr("LOG_FORMAT", "text"),
		ServiceName: "contractflow-migrate",
	})
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fatal(log, "DATABASE_URL environment variable is required", nil)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fatal(log, "failed to connect database", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatal(log, "failed to ping database", err)
	}

	if err := ensureSchemaMigrations(ctx, db); err != nil {
		fatal(log, "failed to ensure schema_migrations", err)
	}

	var source fs.FS = migrations.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	}
	files, err := loadMigrationFiles(source)
	if err != nil {
		fatal(log, "failed to load migrations", err)
	}

	r := &runner{db: db, source: source, logger: log}
	switch strings.ToLower(*mode) {
	case "up":
		if err := r.applyUp(ctx, files); err != nil {
			fatal(log, "migration up failed", err)
		}
		log.Info(ctx, "Migration up completed successfully", nil)
	case "down":
		if err := r.applyDown(ctx, files); err != nil {
			fatal(log, "migration down failed", err)
		}
		log.Info(ctx, "Migration down completed successfully", nil)
	case "status":
		if err := r.status(ctx, files); err != nil {
			fatal(log, "migration status failed", err)
		}
	default:
		fatal(log, "unknown mode: "+*mode, nil)
	}
}

func fatal(l logger.Logger, msg string, err error) {
	l.Error(context.Background(), msg, err, nil)
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
	log.Fatal(msg)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// loadMigrationFiles lists NNN_name.up.sql / NNN_name.down.sql files in
// ascending version order. Files without a numeric prefix are skipped.
func loadMigrationFiles(source fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, err
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".sql") {
			continue
		}

		kind := "up"
		if strings.HasSuffix(lower, ".down.sql") {
			kind = "down"
		}

		ver, migName, err := parseVersionAndName(name)
		if err != nil {
			continue
		}

		files = append(files, migrationFile{
			version: ver,
			name:    migName,
			path:    name,
			kind:    kind,
		})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// parseVersionAndName splits 001_contract_engine.up.sql into (1, "contract_engine").
func parseVersionAndName(filename string) (int, string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return 0, "", errors.New("invalid filename")
	}
	for _, r := range parts[0] {
		if r < '0' || r > '9' {
			return 0, "", errors.New("invalid version")
		}
	}
	ver, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", err
	}

	name := parts[1]
	for _, suffix := range []string{".up.sql", ".down.sql", ".sql"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return ver, name, nil
}

type runner struct {
	db     *sql.DB
	source fs.FS
	logger logger.Logger
}

func (r *runner) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

func (r *runner) applyUp(ctx context.Context, files []migrationFile) error {
	done, err := r.applied(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.kind != "up" {
			continue
		}
		if _, ok := done[f.version]; ok {
			continue
		}

		r.logger.Info(ctx, "Applying migration", map[string]interface{}{"version": f.version, "name": f.name})
		err := r.execInTx(ctx, f, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, f.version, f.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed applying %s: %w", f.path, err)
		}
	}
	return nil
}

func (r *runner) applyDown(ctx context.Context, files []migrationFile) error {
	done, err := r.applied(ctx)
	if err != nil {
		return err
	}

	var downs []migrationFile
	for _, f := range files {
		if f.kind == "down" {
			downs = append(downs, f)
		}
	}
	sort.SliceStable(downs, func(i, j int) bool { return downs[i].version > downs[j].version })

	for _, f := range downs {
		if _, ok := done[f.version]; !ok {
			continue
		}

		r.logger.Info(ctx, "Reverting migration", map[string]interface{}{"version": f.version, "name": f.name})
		err := r.execInTx(ctx, f, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, f.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed reverting %s: %w", f.path, err)
		}
	}
	return nil
}

func (r *runner) status(ctx context.Context, files []migrationFile) error {
	done, err := r.applied(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.kind != "up" {
			continue
		}
		fields := map[string]interface{}{"version": f.version, "name": f.name, "applied": false}
		if at, ok := done[f.version]; ok {
			fields["applied"] = true
			fields["applied_at"] = at
		}
		r.logger.Info(ctx, "Migration status", fields)
	}
	return nil
}

// execInTx runs one migration file and its bookkeeping atomically.
func (r *runner) execInTx(ctx context.Context, f migrationFile, record func(tx *sql.Tx) error) error {
	body, err := fs.ReadFile(r.source, f.path)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		tx.Rollback()
		return err
	}
	if err := record(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
