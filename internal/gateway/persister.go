// Artifact Persister (4.I): saves a freshly downloaded Artifact and wires it
// to the ContentArtifact(s) it belongs to, resolving the content-unit races
// spec.md describes via Postgres upserts rather than hand-rolled retries
// (the store layer owns ON CONFLICT; this package only orchestrates).
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/models"
)

// PersistOptions carries what the streamer learned about the fetch.
type PersistOptions struct {
	StorageKind models.StorageBackendKind
	StoragePath string
	BucketName  string

	// TempFilePath and Sink, when both set, flush the streamer's temp file
	// to its final content-addressed location before the Artifact row is
	// saved — the "save-race unlink" the on-demand/pull-through paths need
	// so a re-request actually finds bytes under StoragePath.
	TempFilePath string
	Sink         DownloadSink
}

// PersistDownload implements 4.I: commit the downloaded bytes to storage,
// save the Artifact row, then attach it to the ContentArtifact. It does not
// branch on whether the ContentArtifact already existed (normal on-demand) or
// was created fresh for this fetch (pull-through first touch); the store's
// SaveContentArtifact upsert covers both.
func PersistDownload(
	ctx context.Context,
	store Store,
	result *downloader.Result,
	contentArtifact *models.ContentArtifact,
	repositoryVersionID uuid.UUID,
	opts PersistOptions,
) (*models.ContentArtifact, error) {
	if opts.TempFilePath != "" && opts.Sink != nil {
		if err := opts.Sink.Commit(opts.TempFilePath, result.Sha256); err != nil {
			return nil, err
		}
	}

	artifact := &models.Artifact{
		ID:          uuid.New(),
		Sha256:      result.Sha256,
		Size:        result.Size,
		StorageKind: opts.StorageKind,
		StoragePath: opts.StoragePath,
		BucketName:  opts.BucketName,
	}

	saved, err := store.SaveArtifact(ctx, artifact)
	if err != nil {
		return nil, err
	}

	contentArtifact.ArtifactID = &saved.ID
	return store.SaveContentArtifact(ctx, contentArtifact, repositoryVersionID)
}

// PersistShielded runs PersistDownload with a context no longer tied to the
// inbound request's cancellation, per spec.md §5: a client disconnect must
// not be allowed to abort a save already in flight and leave an orphaned
// half-written artifact.
func PersistShielded(
	parent context.Context,
	store Store,
	result *downloader.Result,
	contentArtifact *models.ContentArtifact,
	repositoryVersionID uuid.UUID,
	opts PersistOptions,
	timeout time.Duration,
) (*models.ContentArtifact, error) {
	shielded, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	defer cancel()
	return PersistDownload(shielded, store, result, contentArtifact, repositoryVersionID, opts)
}
