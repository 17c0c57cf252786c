package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

type remoteArtifactStore struct {
	fakeStore
	remoteArtifacts []models.RemoteArtifact
	remotesByID     map[uuid.UUID]*models.Remote
}

func (s *remoteArtifactStore) RemoteArtifacts(context.Context, uuid.UUID, time.Duration) ([]models.RemoteArtifact, error) {
	return s.remoteArtifacts, nil
}

func (s *remoteArtifactStore) GetRemote(_ context.Context, id uuid.UUID) (*models.Remote, error) {
	r, ok := s.remotesByID[id]
	if !ok {
		return nil, errors.New("remote not found")
	}
	return r, nil
}

type nopResolver struct{}

func (nopResolver) Downloader(context.Context, *models.Remote, *models.RemoteArtifact) (downloader.Downloader, error) {
	return nil, nil
}
func (nopResolver) URLFor(context.Context, *models.Remote, string) (string, error) { return "", nil }
func (nopResolver) ContentTypeFor(context.Context, *models.Remote, string) (string, error) {
	return "", nil
}

var _ RemoteResolver = nopResolver{}

func TestTryMirrorsNoRemoteArtifactsReturnsNotFound(t *testing.T) {
	store := &remoteArtifactStore{}
	_, _, err := TryMirrors(context.Background(), store, uuid.New(), time.Minute, nopResolver{},
		func(context.Context, *models.Remote, *models.RemoteArtifact, downloader.Downloader) (*StreamOutcome, error) {
			t.Fatal("attemptFn should not be called with no remote artifacts")
			return nil, nil
		})
	if _, ok := err.(*gatewayerr.NotFound); !ok {
		t.Fatalf("expected *NotFound, got %T: %v", err, err)
	}
}

func TestTryMirrorsFirstSucceeds(t *testing.T) {
	remoteID := uuid.New()
	ra := models.RemoteArtifact{ID: uuid.New(), RemoteID: remoteID}
	store := &remoteArtifactStore{
		remoteArtifacts: []models.RemoteArtifact{ra},
		remotesByID:     map[uuid.UUID]*models.Remote{remoteID: {ID: remoteID, Name: "mirror-a"}},
	}

	outcome, gotRA, err := TryMirrors(context.Background(), store, uuid.New(), time.Minute, nopResolver{},
		func(_ context.Context, remote *models.Remote, remoteArtifact *models.RemoteArtifact, _ downloader.Downloader) (*StreamOutcome, error) {
			return &StreamOutcome{BytesSentToClient: 42}, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.BytesSentToClient != 42 {
		t.Errorf("got %d bytes, want 42", outcome.BytesSentToClient)
	}
	if gotRA.ID != ra.ID {
		t.Errorf("got remote artifact %v, want %v", gotRA.ID, ra.ID)
	}
}

func TestTryMirrorsAdvancesPastPreStreamFailure(t *testing.T) {
	remoteID1, remoteID2 := uuid.New(), uuid.New()
	ra1 := models.RemoteArtifact{ID: uuid.New(), RemoteID: remoteID1}
	ra2 := models.RemoteArtifact{ID: uuid.New(), RemoteID: remoteID2}
	store := &remoteArtifactStore{
		remoteArtifacts: []models.RemoteArtifact{ra1, ra2},
		remotesByID: map[uuid.UUID]*models.Remote{
			remoteID1: {ID: remoteID1, Name: "mirror-a"},
			remoteID2: {ID: remoteID2, Name: "mirror-b"},
		},
	}

	attempts := 0
	outcome, gotRA, err := TryMirrors(context.Background(), store, uuid.New(), time.Minute, nopResolver{},
		func(_ context.Context, remote *models.Remote, _ *models.RemoteArtifact, _ downloader.Downloader) (*StreamOutcome, error) {
			attempts++
			if remote.ID == remoteID1 {
				return nil, &gatewayerr.PreStreamFailure{Cause: errors.New("connection refused")}
			}
			return &StreamOutcome{BytesSentToClient: 7}, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("got %d attempts, want 2", attempts)
	}
	if outcome.BytesSentToClient != 7 {
		t.Errorf("got %d bytes, want 7", outcome.BytesSentToClient)
	}
	if gotRA.ID != ra2.ID {
		t.Errorf("got remote artifact %v, want %v", gotRA.ID, ra2.ID)
	}
}

func TestTryMirrorsPropagatesMidStreamFailure(t *testing.T) {
	remoteID := uuid.New()
	ra := models.RemoteArtifact{ID: uuid.New(), RemoteID: remoteID}
	store := &remoteArtifactStore{
		remoteArtifacts: []models.RemoteArtifact{ra},
		remotesByID:     map[uuid.UUID]*models.Remote{remoteID: {ID: remoteID, Name: "mirror-a"}},
	}

	digestErr := &gatewayerr.DigestValidationError{Algorithm: "sha256", Expected: "a", Actual: "b"}
	_, _, err := TryMirrors(context.Background(), store, uuid.New(), time.Minute, nopResolver{},
		func(context.Context, *models.Remote, *models.RemoteArtifact, downloader.Downloader) (*StreamOutcome, error) {
			return nil, digestErr
		})
	if err != digestErr {
		t.Fatalf("expected digest error to propagate unchanged, got %v", err)
	}
}

func TestTryMirrorsExhaustedReturnsNotFound(t *testing.T) {
	remoteID := uuid.New()
	ra := models.RemoteArtifact{ID: uuid.New(), RemoteID: remoteID}
	store := &remoteArtifactStore{
		remoteArtifacts: []models.RemoteArtifact{ra},
		remotesByID:     map[uuid.UUID]*models.Remote{remoteID: {ID: remoteID, Name: "mirror-a"}},
	}

	_, _, err := TryMirrors(context.Background(), store, uuid.New(), time.Minute, nopResolver{},
		func(context.Context, *models.Remote, *models.RemoteArtifact, downloader.Downloader) (*StreamOutcome, error) {
			return nil, &gatewayerr.UpstreamError{StatusCode: 404, URL: "http://mirror-a/x"}
		})
	if _, ok := err.(*gatewayerr.NotFound); !ok {
		t.Fatalf("expected *NotFound after exhausting mirrors, got %T: %v", err, err)
	}
}

func TestIsPreStreamSafe(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"pre-stream failure", &gatewayerr.PreStreamFailure{Cause: errors.New("x")}, true},
		{"upstream error", &gatewayerr.UpstreamError{StatusCode: 503}, true},
		{"generic status coder", &gatewayerr.NotFound{Reason: "x"}, true},
		{"digest validation error is not pre-stream safe", &gatewayerr.DigestValidationError{}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isPreStreamSafe(tc.err); got != tc.want {
				t.Errorf("isPreStreamSafe(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
