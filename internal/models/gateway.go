package models

import (
	"time"

	"github.com/google/uuid"
)

// RemotePolicy controls how an on-demand streamer treats a successfully
// fetched byte stream: whether it is persisted as a new Artifact.
type RemotePolicy string

const (
	RemotePolicyImmediate RemotePolicy = "immediate"
	RemotePolicyOnDemand  RemotePolicy = "on_demand"
	RemotePolicyStreamed  RemotePolicy = "streamed"
)

// StorageBackendKind identifies the class of blob storage an Artifact's
// bytes live on, mirroring the "class identifier string" spec.md §6 names.
type StorageBackendKind string

const (
	StorageBackendLocal StorageBackendKind = "local"
	StorageBackendS3    StorageBackendKind = "s3"
	StorageBackendAzure StorageBackendKind = "azure"
	StorageBackendGCS   StorageBackendKind = "gcs"
)

// Domain scopes base_path uniqueness when multi-tenancy (DOMAIN_ENABLED) is on.
type Domain struct {
	ID   uuid.UUID
	Name string
}

// Distribution is a mount-point entity describing how a URL prefix serves
// repository content. Exactly one of Publication/Repository/Remote
// determines which branch of the dispatcher (4.J) applies.
type Distribution struct {
	ID                   uuid.UUID
	DomainID             uuid.UUID
	BasePath             string
	Hidden               bool
	Checkpoint           bool
	ServeFromPublication bool
	HasContentGuard      bool
	ContentGuardID       *uuid.UUID

	PublicationID       *uuid.UUID
	RepositoryID        *uuid.UUID
	RepositoryVersionID *uuid.UUID
	RemoteID            *uuid.UUID
}

// Publication is an immutable, curated view over a specific RepositoryVersion.
type Publication struct {
	ID                  uuid.UUID
	RepositoryVersionID uuid.UUID
	RepositoryID        uuid.UUID
	PassThrough         bool
	Checkpoint          bool
	Complete            bool
	CreatedAt           time.Time
}

// RepositoryVersion is an immutable snapshot of a repository's content set.
type RepositoryVersion struct {
	ID           uuid.UUID
	RepositoryID uuid.UUID
	Number       int64
}

// Repository owns a sequence of RepositoryVersions and, optionally,
// supports pull-through caching (first on-demand fetch also adds content).
type Repository struct {
	ID                   uuid.UUID
	Name                 string
	PullThroughSupported bool
}

// ContentArtifact joins a logical content unit to an optional binary blob
// (Artifact) at a relative path within a repository version.
type ContentArtifact struct {
	ID           uuid.UUID
	ContentID    uuid.UUID
	RelativePath string
	ArtifactID   *uuid.UUID
}

// RemoteArtifact is the coordinates from which a missing ContentArtifact's
// binary may be fetched.
type RemoteArtifact struct {
	ID                uuid.UUID
	RemoteID          uuid.UUID
	ContentArtifactID uuid.UUID
	URL               string
	Size              *int64
	FailedAt          *time.Time
	ACSPriority       int
}

// Remote describes an upstream mirror: its fetch policy and the three
// capability hooks spec.md §3 assigns to it.
type Remote struct {
	ID     uuid.UUID
	Name   string
	Policy RemotePolicy
}

// Artifact is a single binary blob, content-addressed by its digest and
// located on one storage backend.
type Artifact struct {
	ID          uuid.UUID
	Sha256      string
	Size        int64
	StorageKind StorageBackendKind
	StoragePath string
	BucketName  string
}

// Q returns the content-address selector used to look up an Artifact by its
// digest, matching spec.md §3's `q()` selector.
func (a *Artifact) Q() string {
	return a.Sha256
}

// DirEntry is one row of a directory listing: a child name (possibly a
// "subdirectory/" pseudo-name), its creation timestamp, and its size when
// known.
type DirEntry struct {
	Name      string
	CreatedAt time.Time
	Size      *int64
}
