// Package gatewayrepo is the persistent-store implementation of the
// gateway's Store interface (internal/gateway/store.go): Postgres queries
// over Distribution/Publication/RepositoryVersion/ContentArtifact/
// RemoteArtifact/Remote/Artifact. Grounded on this codebase's advisory-lock
// migration pattern (internal/database/migrations.go) and its
// ON CONFLICT-based upsert idiom (internal/handlers/remote_proxy_handler.go).
package gatewayrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresDB opens and pings a Postgres connection, mirroring the shape
// of this codebase's original database bootstrap.
func NewPostgresDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// migrationLockID is an arbitrary but consistent advisory lock key, same
// technique as internal/database/migrations.go uses for its own schema.
const migrationLockID = 987654321

// Migrate creates the gateway's schema if it does not already exist.
func Migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer db.Exec("SELECT pg_advisory_unlock($1)", migrationLockID)

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("failed to enable uuid-ossp: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gw_domains (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS gw_repositories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			pull_through_supported BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS gw_repository_versions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			repository_id UUID NOT NULL REFERENCES gw_repositories(id) ON DELETE CASCADE,
			number BIGINT NOT NULL,
			UNIQUE(repository_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS gw_publications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			repository_version_id UUID NOT NULL REFERENCES gw_repository_versions(id) ON DELETE CASCADE,
			repository_id UUID NOT NULL REFERENCES gw_repositories(id) ON DELETE CASCADE,
			pass_through BOOLEAN NOT NULL DEFAULT false,
			checkpoint BOOLEAN NOT NULL DEFAULT false,
			complete BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS gw_publications_checkpoint_idx
			ON gw_publications(repository_id, created_at DESC) WHERE checkpoint`,
		`CREATE TABLE IF NOT EXISTS gw_remotes (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			policy VARCHAR(20) NOT NULL DEFAULT 'on_demand'
		)`,
		`CREATE TABLE IF NOT EXISTS gw_distributions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			domain_id UUID NOT NULL REFERENCES gw_domains(id) ON DELETE CASCADE,
			base_path VARCHAR(1024) NOT NULL,
			hidden BOOLEAN NOT NULL DEFAULT false,
			checkpoint BOOLEAN NOT NULL DEFAULT false,
			serve_from_publication BOOLEAN NOT NULL DEFAULT false,
			has_content_guard BOOLEAN NOT NULL DEFAULT false,
			publication_id UUID REFERENCES gw_publications(id) ON DELETE SET NULL,
			repository_id UUID REFERENCES gw_repositories(id) ON DELETE SET NULL,
			repository_version_id UUID REFERENCES gw_repository_versions(id) ON DELETE SET NULL,
			remote_id UUID REFERENCES gw_remotes(id) ON DELETE SET NULL,
			UNIQUE(domain_id, base_path)
		)`,
		`CREATE TABLE IF NOT EXISTS gw_artifacts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sha256 VARCHAR(64) NOT NULL UNIQUE,
			size BIGINT NOT NULL,
			storage_kind VARCHAR(20) NOT NULL,
			storage_path VARCHAR(2048) NOT NULL,
			bucket_name VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS gw_content_units (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS gw_content_artifacts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content_id UUID NOT NULL REFERENCES gw_content_units(id) ON DELETE CASCADE,
			repository_version_id UUID NOT NULL REFERENCES gw_repository_versions(id) ON DELETE CASCADE,
			relative_path VARCHAR(2048) NOT NULL,
			artifact_id UUID REFERENCES gw_artifacts(id) ON DELETE SET NULL,
			UNIQUE(repository_version_id, relative_path)
		)`,
		`CREATE TABLE IF NOT EXISTS gw_published_artifacts (
			publication_id UUID NOT NULL REFERENCES gw_publications(id) ON DELETE CASCADE,
			relative_path VARCHAR(2048) NOT NULL,
			content_artifact_id UUID NOT NULL REFERENCES gw_content_artifacts(id) ON DELETE CASCADE,
			PRIMARY KEY (publication_id, relative_path)
		)`,
		`CREATE TABLE IF NOT EXISTS gw_remote_artifacts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			remote_id UUID NOT NULL REFERENCES gw_remotes(id) ON DELETE CASCADE,
			content_artifact_id UUID NOT NULL REFERENCES gw_content_artifacts(id) ON DELETE CASCADE,
			url VARCHAR(2048) NOT NULL,
			size BIGINT,
			failed_at TIMESTAMPTZ,
			acs_priority INTEGER NOT NULL DEFAULT 0,
			UNIQUE(content_artifact_id, remote_id)
		)`,
		`CREATE TABLE IF NOT EXISTS gw_artifacts_size_samples (
			id BIGSERIAL PRIMARY KEY,
			sampled_at TIMESTAMPTZ NOT NULL,
			total_bytes BIGINT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}
