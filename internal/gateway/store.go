// Package gateway implements the request-dispatch engine: path resolution,
// checkpoint resolution, the guard gate, directory listing, artifact
// responses, on-demand streaming, mirror fallback, and artifact persistence —
// components 4.A through 4.J. The cache is consulted only for base-path
// lookups; full responses are not cached by this package. Persistence,
// remotes and guards are interfaces; caching and storage are the concrete
// gatewaycache and gatewaystorage types, which work without Redis or cloud
// credentials, so the package can be tested without a database or Redis.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/models"
)

// Store is the persistent-store contract the dispatch engine consumes.
// internal/gatewayrepo.Repository implements it against Postgres.
type Store interface {
	// ResolveDomainByName looks up a domain's id by its unique name, for the
	// DOMAIN_ENABLED path-segment scoping in 4.J. A nil error with uuid.Nil
	// means no such domain exists.
	ResolveDomainByName(ctx context.Context, name string) (uuid.UUID, error)

	ResolveDistribution(ctx context.Context, domainID uuid.UUID, basePaths []string) (*models.Distribution, error)
	ListDistributionsUnderPrefix(ctx context.Context, domainID uuid.UUID, prefix string, hideGuarded bool) ([]models.Distribution, error)

	ListCheckpointPublications(ctx context.Context, repositoryID uuid.UUID) ([]models.Publication, error)
	ResolveCheckpointPublication(ctx context.Context, repositoryID uuid.UUID, at time.Time) (*models.Publication, error)

	GetPublication(ctx context.Context, id uuid.UUID) (*models.Publication, error)
	LatestCompletePublication(ctx context.Context, repositoryID uuid.UUID) (*models.Publication, error)
	LatestVersion(ctx context.Context, repositoryID uuid.UUID) (*models.RepositoryVersion, error)
	GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error)

	PublishedArtifact(ctx context.Context, publicationID uuid.UUID, relPath string) (*models.ContentArtifact, error)
	ListPublicationDirectory(ctx context.Context, publicationID, versionID uuid.UUID, relPath string, passThrough bool) ([]models.DirEntry, error)

	VersionContentArtifact(ctx context.Context, versionID uuid.UUID, relPath string) (*models.ContentArtifact, error)
	ListVersionDirectory(ctx context.Context, versionID uuid.UUID, relPath string) ([]models.DirEntry, error)

	GetArtifact(ctx context.Context, id uuid.UUID) (*models.Artifact, error)
	RemoteArtifacts(ctx context.Context, contentArtifactID uuid.UUID, cooldown time.Duration) ([]models.RemoteArtifact, error)
	GetRemote(ctx context.Context, id uuid.UUID) (*models.Remote, error)
	FindRemoteArtifactByURL(ctx context.Context, remoteID uuid.UUID, url string) (*models.RemoteArtifact, error)

	SaveArtifact(ctx context.Context, a *models.Artifact) (*models.Artifact, error)
	SaveContentArtifact(ctx context.Context, ca *models.ContentArtifact, repositoryVersionID uuid.UUID) (*models.ContentArtifact, error)
	SaveRemoteArtifact(ctx context.Context, ra *models.RemoteArtifact) error
	MarkRemoteArtifactFailed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RemoteResolver is the capability set a Remote entity exposes to the
// streamer (spec.md §3), resolved by the dispatcher from a models.Remote row
// plus whatever out-of-band configuration (credentials, base URL) the
// deployment wires in. The Dispatcher takes one RemoteResolver.
type RemoteResolver interface {
	// Downloader returns a downloader for fetching remoteArtifact.
	Downloader(ctx context.Context, remote *models.Remote, remoteArtifact *models.RemoteArtifact) (downloader.Downloader, error)
	// URLFor returns the upstream URL for relPath under this remote, or ""
	// if the remote has nothing for that path.
	URLFor(ctx context.Context, remote *models.Remote, relPath string) (string, error)
	// ContentTypeFor returns the content-type a pull-through fetch of relPath
	// should be recorded under, or "" if the remote declines to classify it
	// (which 4.J's remote branch treats as "do not persist").
	ContentTypeFor(ctx context.Context, remote *models.Remote, relPath string) (string, error)
}

// Clock abstracts "now" so cooldown-dependent tests don't need real sleeps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var RealClock Clock = realClock{}
