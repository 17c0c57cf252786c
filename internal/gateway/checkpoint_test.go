package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

func TestResolveCheckpointEmptyRemainderNeedsListing(t *testing.T) {
	store := &fakeStore{}
	repoID := uuid.New()

	_, err := ResolveCheckpoint(context.Background(), store, repoID, "", time.Now(), "/pulp/content/foo")
	nl, ok := err.(*NeedsCheckpointListing)
	if !ok {
		t.Fatalf("expected *NeedsCheckpointListing, got %T: %v", err, err)
	}
	if nl.RepositoryID != repoID {
		t.Errorf("got repository id %v, want %v", nl.RepositoryID, repoID)
	}
}

func TestResolveCheckpointMalformedTimestamp(t *testing.T) {
	store := &fakeStore{}
	_, err := ResolveCheckpoint(context.Background(), store, uuid.New(), "not-a-timestamp", time.Now(), "/pulp/content/foo")
	if _, ok := err.(*gatewayerr.PathNotResolved); !ok {
		t.Fatalf("expected *PathNotResolved, got %T: %v", err, err)
	}
}

func TestResolveCheckpointFutureTimestampRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour).Format(checkpointTimeLayout)
	store := &fakeStore{}

	_, err := ResolveCheckpoint(context.Background(), store, uuid.New(), future, now, "/pulp/content/foo")
	if _, ok := err.(*gatewayerr.PathNotResolved); !ok {
		t.Fatalf("expected *PathNotResolved for future timestamp, got %T: %v", err, err)
	}
}

func TestResolveCheckpointExactMatchResolves(t *testing.T) {
	repoID := uuid.New()
	createdAt := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	pub := models.Publication{ID: uuid.New(), RepositoryID: repoID, Checkpoint: true, CreatedAt: createdAt}
	store := &fakeStore{checkpointPubs: []models.Publication{pub}}

	ts := createdAt.Format(checkpointTimeLayout)
	now := createdAt.Add(time.Hour)

	result, err := ResolveCheckpoint(context.Background(), store, repoID, ts+"/sub/file.txt", now, "/pulp/content/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Publication.ID != pub.ID {
		t.Errorf("got publication %v, want %v", result.Publication.ID, pub.ID)
	}
	if result.Remainder != "sub/file.txt" {
		t.Errorf("got remainder %q, want %q", result.Remainder, "sub/file.txt")
	}
}

func TestResolveCheckpointNonCanonicalTimestampRedirects(t *testing.T) {
	repoID := uuid.New()
	createdAt := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	pub := models.Publication{ID: uuid.New(), RepositoryID: repoID, Checkpoint: true, CreatedAt: createdAt}
	store := &fakeStore{checkpointPubs: []models.Publication{pub}}

	// Request a timestamp a few seconds after the actual publication: the
	// resolver should still find it (newest at-or-before) but must redirect
	// to the canonical timestamp rather than silently serving under the
	// requested one.
	requested := createdAt.Add(5 * time.Second)
	ts := requested.Format(checkpointTimeLayout)

	_, err := ResolveCheckpoint(context.Background(), store, repoID, ts+"/file.txt", requested.Add(time.Hour), "/pulp/content/foo")
	redirect, ok := err.(*gatewayerr.HTTPMovedPermanently)
	if !ok {
		t.Fatalf("expected *HTTPMovedPermanently, got %T: %v", err, err)
	}
	wantLoc := "/pulp/content/foo/" + createdAt.Format(checkpointTimeLayout) + "/file.txt"
	if redirect.Location != wantLoc {
		t.Errorf("got redirect location %q, want %q", redirect.Location, wantLoc)
	}
}

func TestResolveCheckpointNoEligiblePublication(t *testing.T) {
	repoID := uuid.New()
	createdAt := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	pub := models.Publication{ID: uuid.New(), RepositoryID: repoID, Checkpoint: true, CreatedAt: createdAt}
	store := &fakeStore{checkpointPubs: []models.Publication{pub}}

	before := createdAt.Add(-time.Hour)
	ts := before.Format(checkpointTimeLayout)

	_, err := ResolveCheckpoint(context.Background(), store, repoID, ts, createdAt, "/pulp/content/foo")
	if _, ok := err.(*gatewayerr.PathNotResolved); !ok {
		t.Fatalf("expected *PathNotResolved, got %T: %v", err, err)
	}
}
