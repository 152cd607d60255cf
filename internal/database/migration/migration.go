package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// duplicate_of carries no foreign key: reconcile repair may insert a duplicate before
// its primary.
var postgresSteps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                UUID             PRIMARY KEY,
  number            TEXT,
  subject           TEXT,
  letter_date       DATE,
  kind              TEXT             NOT NULL CHECK (kind IN ('incoming', 'outgoing', 'other')),
  kind_confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
  kind_method       TEXT             NOT NULL DEFAULT '',
  sender            TEXT,
  recipient         TEXT,
  original_filename TEXT             NOT NULL,
  stored_path       TEXT             NOT NULL UNIQUE,
  sidecar_path      TEXT             NOT NULL,
  mime_type         TEXT             NOT NULL,
  size              BIGINT           NOT NULL CHECK (size >= 0),
  fingerprint       TEXT             NOT NULL,
  duplicate_of      UUID,
  ocr_used          BOOLEAN          NOT NULL DEFAULT FALSE,
  created_at        TIMESTAMPTZ      NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ      NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_unique_index_documents_primary_fingerprint",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_primary_fingerprint ON documents (fingerprint) WHERE duplicate_of IS NULL;`,
	},
	{
		Name: "create_index_documents_duplicate_of",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_duplicate_of ON documents (duplicate_of);`,
	},
	{
		Name: "create_index_documents_kind_letter_date",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_kind_letter_date ON documents (kind, letter_date);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
}

// SQLite keeps dates and timestamps as ISO text.
var sqliteSteps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                TEXT    PRIMARY KEY,
  number            TEXT,
  subject           TEXT,
  letter_date       TEXT,
  kind              TEXT    NOT NULL CHECK (kind IN ('incoming', 'outgoing', 'other')),
  kind_confidence   REAL    NOT NULL DEFAULT 0,
  kind_method       TEXT    NOT NULL DEFAULT '',
  sender            TEXT,
  recipient         TEXT,
  original_filename TEXT    NOT NULL,
  stored_path       TEXT    NOT NULL UNIQUE,
  sidecar_path      TEXT    NOT NULL,
  mime_type         TEXT    NOT NULL,
  size              INTEGER NOT NULL CHECK (size >= 0),
  fingerprint       TEXT    NOT NULL,
  duplicate_of      TEXT,
  ocr_used          INTEGER NOT NULL DEFAULT 0,
  created_at        TEXT    NOT NULL,
  updated_at        TEXT    NOT NULL
);`,
	},
	{
		Name: "create_unique_index_documents_primary_fingerprint",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_primary_fingerprint ON documents (fingerprint) WHERE duplicate_of IS NULL;`,
	},
	{
		Name: "create_index_documents_duplicate_of",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_duplicate_of ON documents (duplicate_of);`,
	},
	{
		Name: "create_index_documents_kind_letter_date",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_kind_letter_date ON documents (kind, letter_date);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
}

var sentinels = map[string]string{
	"postgres": `SELECT to_regclass('public.documents') IS NOT NULL`,
	"sqlite":   `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'documents')`,
}

var dialectSteps = map[string][]migrationStep{
	"postgres": postgresSteps,
	"sqlite":   sqliteSteps,
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
// driver is "postgres" or "sqlite"; dbHost only labels the log lines.
func EnsureMigrated(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger, dbHost string) error {
	if logger == nil {
		logger = slog.Default()
	}
	if driver == "" {
		driver = "postgres"
	}
	steps, ok := dialectSteps[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	log := logger.With("component", "database", "db_host", dbHost, "driver", driver)
	start := time.Now()

	log.Info("checking schema", "event", "db_migration_check")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinels[driver]).Scan(&exists); err != nil {
		log.Error("failed to check sentinel table",
			"event", "db_migration_failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("schema already exists, skipping migration",
			"event", "db_migration_skip",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("migrating schema", "event", "db_migration_start", "steps", len(steps))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("migration step failed",
				"event", "db_migration_failed",
				"migration_step", step.Name,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("migration step applied",
			"event", "db_migration_step",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.Info("schema migrated",
		"event", "db_migration_success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
