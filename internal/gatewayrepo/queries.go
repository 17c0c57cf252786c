package gatewayrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

// Repository implements internal/gateway.Store against Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ResolveDomainByName looks up a domain id by its unique name (gw_domains.name),
// the lookup DOMAIN_ENABLED scoping needs before querying gw_distributions'
// (domain_id, base_path) index.
func (r *Repository) ResolveDomainByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT id FROM gw_domains WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ResolveDistribution is the distribution match the path resolver (4.A)
// needs: `WHERE domain_id = $1 AND base_path = ANY($2)`, longest base path
// first, in one round trip. It loads only the gw_distributions row; the
// publication, repository, version and remote are fetched by separate
// lookups later (SPEC_FULL.md §12.8).
func (r *Repository) ResolveDistribution(ctx context.Context, domainID uuid.UUID, basePaths []string) (*models.Distribution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, domain_id, base_path, hidden, checkpoint, serve_from_publication,
		       has_content_guard, publication_id, repository_id, repository_version_id, remote_id
		FROM gw_distributions
		WHERE domain_id = $1 AND base_path = ANY($2)
		ORDER BY length(base_path) DESC
		LIMIT 1`, domainID, pq.Array(basePaths))
	d, err := scanDistribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ListDistributionsUnderPrefix finds distributions whose base_path starts
// with prefix, for the DistroListings branch of 4.A.
func (r *Repository) ListDistributionsUnderPrefix(ctx context.Context, domainID uuid.UUID, prefix string, hideGuarded bool) ([]models.Distribution, error) {
	query := `
		SELECT id, domain_id, base_path, hidden, checkpoint, serve_from_publication,
		       has_content_guard, publication_id, repository_id, repository_version_id, remote_id
		FROM gw_distributions
		WHERE domain_id = $1 AND base_path LIKE $2 AND NOT hidden`
	args := []interface{}{domainID, prefix + "%"}
	if hideGuarded {
		query += " AND NOT has_content_guard"
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *Repository) ListCheckpointPublications(ctx context.Context, repositoryID uuid.UUID) ([]models.Publication, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, repository_version_id, repository_id, pass_through, checkpoint, complete, created_at
		FROM gw_publications WHERE repository_id = $1 AND checkpoint ORDER BY created_at ASC`, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ResolveCheckpointPublication returns the newest checkpoint publication
// with created_at <= at, per spec.md §3 invariant 3.
func (r *Repository) ResolveCheckpointPublication(ctx context.Context, repositoryID uuid.UUID, at time.Time) (*models.Publication, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, repository_version_id, repository_id, pass_through, checkpoint, complete, created_at
		FROM gw_publications
		WHERE repository_id = $1 AND checkpoint AND created_at <= $2
		ORDER BY created_at DESC LIMIT 1`, repositoryID, at)
	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) GetPublication(ctx context.Context, id uuid.UUID) (*models.Publication, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, repository_version_id, repository_id, pass_through, checkpoint, complete, created_at
		FROM gw_publications WHERE id = $1`, id)
	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) LatestCompletePublication(ctx context.Context, repositoryID uuid.UUID) (*models.Publication, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, repository_version_id, repository_id, pass_through, checkpoint, complete, created_at
		FROM gw_publications
		WHERE repository_id = $1 AND complete
		ORDER BY created_at DESC LIMIT 1`, repositoryID)
	p, err := scanPublication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) LatestVersion(ctx context.Context, repositoryID uuid.UUID) (*models.RepositoryVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, repository_id, number FROM gw_repository_versions
		WHERE repository_id = $1 ORDER BY number DESC LIMIT 1`, repositoryID)
	var v models.RepositoryVersion
	err := row.Scan(&v.ID, &v.RepositoryID, &v.Number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, pull_through_supported FROM gw_repositories WHERE id = $1`, id)
	var rep models.Repository
	err := row.Scan(&rep.ID, &rep.Name, &rep.PullThroughSupported)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// PublishedArtifact looks up the ContentArtifact a publication's curated
// list maps a relative path to.
func (r *Repository) PublishedArtifact(ctx context.Context, publicationID uuid.UUID, relPath string) (*models.ContentArtifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ca.id, ca.content_id, ca.relative_path, ca.artifact_id
		FROM gw_published_artifacts pa
		JOIN gw_content_artifacts ca ON ca.id = pa.content_artifact_id
		WHERE pa.publication_id = $1 AND pa.relative_path = $2`, publicationID, relPath)
	ca, err := scanContentArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ca, err
}

// ListPublicationDirectory gathers (name, created_at, size) triples for
// children of relPath, preferring published_artifact entries and folding in
// pass-through content when requested, per 4.E steps 1-2.
func (r *Repository) ListPublicationDirectory(ctx context.Context, publicationID, versionID uuid.UUID, relPath string, passThrough bool) ([]models.DirEntry, error) {
	entries := map[string]models.DirEntry{}

	rows, err := r.db.QueryContext(ctx, `
		SELECT pa.relative_path, ct.created_at, a.size
		FROM gw_published_artifacts pa
		JOIN gw_content_artifacts ca ON ca.id = pa.content_artifact_id
		JOIN gw_content_units ct ON ct.id = ca.content_id
		LEFT JOIN gw_artifacts a ON a.id = ca.artifact_id
		WHERE pa.publication_id = $1 AND pa.relative_path LIKE $2`, publicationID, relPath+"%")
	if err != nil {
		return nil, err
	}
	if err := foldDirectoryRows(rows, relPath, entries); err != nil {
		return nil, err
	}

	if passThrough {
		rows, err := r.db.QueryContext(ctx, `
			SELECT ca.relative_path, ct.created_at, a.size
			FROM gw_content_artifacts ca
			JOIN gw_content_units ct ON ct.id = ca.content_id
			LEFT JOIN gw_artifacts a ON a.id = ca.artifact_id
			WHERE ca.repository_version_id = $1 AND ca.relative_path LIKE $2`, versionID, relPath+"%")
		if err != nil {
			return nil, err
		}
		if err := foldDirectoryRows(rows, relPath, entries); err != nil {
			return nil, err
		}
	}

	return flattenDirectory(entries), nil
}

// VersionContentArtifact looks up a ContentArtifact directly within a
// repository version's content (pass-through / version-only branches).
// Ambiguous matches are bug-compatible 500s per the Open Question decision.
func (r *Repository) VersionContentArtifact(ctx context.Context, versionID uuid.UUID, relPath string) (*models.ContentArtifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content_id, relative_path, artifact_id
		FROM gw_content_artifacts WHERE repository_version_id = $1 AND relative_path = $2`, versionID, relPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.ContentArtifact
	for rows.Next() {
		ca, err := scanContentArtifact(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *ca)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, &gatewayerr.AmbiguousContent{RelativePath: relPath, Count: len(matches)}
	}
}

func (r *Repository) ListVersionDirectory(ctx context.Context, versionID uuid.UUID, relPath string) ([]models.DirEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ca.relative_path, ct.created_at, a.size
		FROM gw_content_artifacts ca
		JOIN gw_content_units ct ON ct.id = ca.content_id
		LEFT JOIN gw_artifacts a ON a.id = ca.artifact_id
		WHERE ca.repository_version_id = $1 AND ca.relative_path LIKE $2`, versionID, relPath+"%")
	if err != nil {
		return nil, err
	}
	entries := map[string]models.DirEntry{}
	if err := foldDirectoryRows(rows, relPath, entries); err != nil {
		return nil, err
	}
	return flattenDirectory(entries), nil
}

func (r *Repository) GetArtifact(ctx context.Context, id uuid.UUID) (*models.Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, sha256, size, storage_kind, storage_path, bucket_name FROM gw_artifacts WHERE id = $1`, id)
	return scanArtifact(row)
}

// RemoteArtifacts lists RemoteArtifacts for a ContentArtifact ordered by ACS
// priority, excluding any within the cooldown window (spec.md §3 invariant 5).
func (r *Repository) RemoteArtifacts(ctx context.Context, contentArtifactID uuid.UUID, cooldown time.Duration) ([]models.RemoteArtifact, error) {
	cutoff := time.Now().Add(-cooldown)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, remote_id, content_artifact_id, url, size, failed_at, acs_priority
		FROM gw_remote_artifacts
		WHERE content_artifact_id = $1 AND (failed_at IS NULL OR failed_at < $2)
		ORDER BY acs_priority ASC`, contentArtifactID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RemoteArtifact
	for rows.Next() {
		var ra models.RemoteArtifact
		if err := rows.Scan(&ra.ID, &ra.RemoteID, &ra.ContentArtifactID, &ra.URL, &ra.Size, &ra.FailedAt, &ra.ACSPriority); err != nil {
			return nil, err
		}
		out = append(out, ra)
	}
	return out, rows.Err()
}

func (r *Repository) GetRemote(ctx context.Context, id uuid.UUID) (*models.Remote, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, policy FROM gw_remotes WHERE id = $1`, id)
	var rem models.Remote
	err := row.Scan(&rem.ID, &rem.Name, &rem.Policy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rem, nil
}

func (r *Repository) FindRemoteArtifactByURL(ctx context.Context, remoteID uuid.UUID, url string) (*models.RemoteArtifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, remote_id, content_artifact_id, url, size, failed_at, acs_priority
		FROM gw_remote_artifacts WHERE remote_id = $1 AND url = $2`, remoteID, url)
	var ra models.RemoteArtifact
	err := row.Scan(&ra.ID, &ra.RemoteID, &ra.ContentArtifactID, &ra.URL, &ra.Size, &ra.FailedAt, &ra.ACSPriority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

// SaveArtifact inserts an Artifact, converging concurrent saves of the same
// content-address onto a single row via ON CONFLICT, per 4.I step 1 (the
// Postgres-native equivalent of "catch unique-violation, look up existing").
func (r *Repository) SaveArtifact(ctx context.Context, a *models.Artifact) (*models.Artifact, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO gw_artifacts (id, sha256, size, storage_kind, storage_path, bucket_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sha256) DO UPDATE SET sha256 = EXCLUDED.sha256
		RETURNING id, sha256, size, storage_kind, storage_path, bucket_name`,
		a.ID, a.Sha256, a.Size, a.StorageKind, a.StoragePath, a.BucketName)
	return scanArtifact(row)
}

// SaveContentArtifact links a ContentArtifact to a saved Artifact,
// converging concurrent first-fetches of the same relative path per 4.I
// step 2.
func (r *Repository) SaveContentArtifact(ctx context.Context, ca *models.ContentArtifact, repositoryVersionID uuid.UUID) (*models.ContentArtifact, error) {
	if ca.ID == uuid.Nil {
		ca.ID = uuid.New()
	}
	if ca.ContentID == uuid.Nil {
		if err := r.db.QueryRowContext(ctx, `INSERT INTO gw_content_units (id) VALUES ($1) RETURNING id`, uuid.New()).Scan(&ca.ContentID); err != nil {
			return nil, fmt.Errorf("failed to create content unit: %w", err)
		}
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO gw_content_artifacts (id, content_id, repository_version_id, relative_path, artifact_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (repository_version_id, relative_path) DO UPDATE
			SET artifact_id = COALESCE(gw_content_artifacts.artifact_id, EXCLUDED.artifact_id)
		RETURNING id, content_id, relative_path, artifact_id`,
		ca.ID, ca.ContentID, repositoryVersionID, ca.RelativePath, ca.ArtifactID)
	return scanContentArtifact(row)
}

// SaveRemoteArtifact records a RemoteArtifact row, ignoring unique-violation
// races per 4.I step 3.
func (r *Repository) SaveRemoteArtifact(ctx context.Context, ra *models.RemoteArtifact) error {
	if ra.ID == uuid.Nil {
		ra.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gw_remote_artifacts (id, remote_id, content_artifact_id, url, size, failed_at, acs_priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_artifact_id, remote_id) DO NOTHING`,
		ra.ID, ra.RemoteID, ra.ContentArtifactID, ra.URL, ra.Size, ra.FailedAt, ra.ACSPriority)
	return err
}

// MarkRemoteArtifactFailed stamps failed_at for a RemoteArtifact, per the
// digest-failure handling in 4.G.
func (r *Repository) MarkRemoteArtifactFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE gw_remote_artifacts SET failed_at = $2 WHERE id = $1`, id, at)
	return err
}

// --- scanning helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDistribution(s scanner) (*models.Distribution, error) {
	var d models.Distribution
	err := s.Scan(&d.ID, &d.DomainID, &d.BasePath, &d.Hidden, &d.Checkpoint, &d.ServeFromPublication,
		&d.HasContentGuard, &d.PublicationID, &d.RepositoryID, &d.RepositoryVersionID, &d.RemoteID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanPublication(s scanner) (*models.Publication, error) {
	var p models.Publication
	err := s.Scan(&p.ID, &p.RepositoryVersionID, &p.RepositoryID, &p.PassThrough, &p.Checkpoint, &p.Complete, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanContentArtifact(s scanner) (*models.ContentArtifact, error) {
	var ca models.ContentArtifact
	err := s.Scan(&ca.ID, &ca.ContentID, &ca.RelativePath, &ca.ArtifactID)
	if err != nil {
		return nil, err
	}
	return &ca, nil
}

func scanArtifact(s scanner) (*models.Artifact, error) {
	var a models.Artifact
	err := s.Scan(&a.ID, &a.Sha256, &a.Size, &a.StorageKind, &a.StoragePath, &a.BucketName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// foldDirectoryRows consumes rows of (relative_path, created_at, size) and
// folds each into its first path segment after relPath, matching 4.E step 1.
func foldDirectoryRows(rows *sql.Rows, relPath string, into map[string]models.DirEntry) error {
	defer rows.Close()
	for rows.Next() {
		var fullPath string
		var createdAt time.Time
		var size sql.NullInt64
		if err := rows.Scan(&fullPath, &createdAt, &size); err != nil {
			return err
		}
		name := firstSegmentAfter(fullPath, relPath)
		if name == "" {
			continue
		}
		entry := into[name]
		entry.Name = name
		if entry.CreatedAt.IsZero() || createdAt.Before(entry.CreatedAt) {
			entry.CreatedAt = createdAt
		}
		if size.Valid && !strings_hasSuffixSlash(name) {
			v := size.Int64
			entry.Size = &v
		}
		into[name] = entry
	}
	return rows.Err()
}

func strings_hasSuffixSlash(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '/'
}

// firstSegmentAfter returns the first path segment of fullPath following
// relPath, with a trailing slash when that segment is itself a directory.
func firstSegmentAfter(fullPath, relPath string) string {
	if len(fullPath) < len(relPath) || fullPath[:len(relPath)] != relPath {
		return ""
	}
	rest := fullPath[len(relPath):]
	for i, ch := range rest {
		if ch == '/' {
			return rest[:i+1]
		}
	}
	return rest
}

func flattenDirectory(entries map[string]models.DirEntry) []models.DirEntry {
	out := make([]models.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out
}
