package postgres

import (
	"context"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the document-store schema migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id VARCHAR(64) NOT NULL,
					class VARCHAR(255) NOT NULL,
					data JSONB NOT NULL DEFAULT '{}',
					object_acl JSONB,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (class, id)
				);

				CREATE INDEX IF NOT EXISTS idx_documents_class ON documents(class);
				CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
			`,
		},
	}
}

// migrate applies pending migrations, recording applied versions in
// document_migrations. Safe to run repeatedly.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS document_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var applied bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM document_migrations WHERE version = $1)`,
			m.Version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		if _, err := s.db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO document_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}
