package gateway

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/gatewayerr"
)

type fakeDownloader struct {
	headers downloader.Headers
	chunks  [][]byte
	err     error
}

func (d *fakeDownloader) Run(_ context.Context, headersCb downloader.HeadersCb, dataCb downloader.DataCb, finalizeCb downloader.FinalizeCb, _ []error) (*downloader.Result, error) {
	if err := headersCb(d.headers); err != nil {
		return nil, err
	}
	for _, c := range d.chunks {
		if err := dataCb(c); err != nil {
			return nil, err
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := finalizeCb(); err != nil {
		return nil, err
	}
	return &downloader.Result{Size: int64(len(d.chunks))}, nil
}

func TestStreamRemoteArtifactFullBody(t *testing.T) {
	dl := &fakeDownloader{
		headers: downloader.Headers{StatusCode: 200, ContentLength: 11},
		chunks:  [][]byte{[]byte("hello "), []byte("world")},
	}
	rec := httptest.NewRecorder()

	outcome, err := StreamRemoteArtifact(context.Background(), rec, dl, 11, ParsedRange{}, StreamOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.BytesSentToClient != 11 {
		t.Errorf("got %d bytes sent, want 11", outcome.BytesSentToClient)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("got body %q, want %q", rec.Body.String(), "hello world")
	}
	if rec.Code != 200 {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestStreamRemoteArtifactRangeSlicesAcrossChunks(t *testing.T) {
	// Requested range [3, 8) spans the boundary between the two chunks.
	dl := &fakeDownloader{
		headers: downloader.Headers{StatusCode: 200, ContentLength: 11},
		chunks:  [][]byte{[]byte("hello "), []byte("world")},
	}
	rec := httptest.NewRecorder()
	rng := ParsedRange{Start: 3, Stop: 8, Present: true}

	outcome, err := StreamRemoteArtifact(context.Background(), rec, dl, 11, rng, StreamOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.BytesSentToClient != 5 {
		t.Errorf("got %d bytes sent, want 5", outcome.BytesSentToClient)
	}
	if rec.Body.String() != "lo wo" {
		t.Errorf("got body %q, want %q", rec.Body.String(), "lo wo")
	}
	if rec.Code != 206 {
		t.Errorf("got status %d, want 206", rec.Code)
	}
}

func TestStreamRemoteArtifactRangeOutOfBoundsRejected(t *testing.T) {
	dl := &fakeDownloader{headers: downloader.Headers{StatusCode: 200, ContentLength: 11}}
	rec := httptest.NewRecorder()
	rng := ParsedRange{Start: 5, Stop: 100, Present: true}

	_, err := StreamRemoteArtifact(context.Background(), rec, dl, 11, rng, StreamOptions{})
	if _, ok := err.(*gatewayerr.RangeNotSatisfiable); !ok {
		t.Fatalf("expected *RangeNotSatisfiable, got %T: %v", err, err)
	}
}

func TestStreamRemoteArtifactPreHeaderFailureWraps(t *testing.T) {
	dl := &fakeDownloader{err: &gatewayerr.UpstreamError{StatusCode: 503}}
	// headers callback never fires because Run returns before calling it —
	// simulate by making the fake always fail before headersCb.
	dl2 := &failBeforeHeadersDownloader{cause: dl.err}
	rec := httptest.NewRecorder()

	_, err := StreamRemoteArtifact(context.Background(), rec, dl2, -1, ParsedRange{}, StreamOptions{})
	pre, ok := err.(*gatewayerr.PreStreamFailure)
	if !ok {
		t.Fatalf("expected *PreStreamFailure, got %T: %v", err, err)
	}
	if pre.Cause != dl.err {
		t.Errorf("got wrapped cause %v, want %v", pre.Cause, dl.err)
	}
}

type failBeforeHeadersDownloader struct{ cause error }

func (d *failBeforeHeadersDownloader) Run(context.Context, downloader.HeadersCb, downloader.DataCb, downloader.FinalizeCb, []error) (*downloader.Result, error) {
	return nil, d.cause
}

func TestStreamRemoteArtifactDigestFailureForcesClose(t *testing.T) {
	digestErr := &gatewayerr.DigestValidationError{Algorithm: "sha256", Expected: "a", Actual: "b"}
	dl := &fakeDownloader{
		headers: downloader.Headers{StatusCode: 200, ContentLength: 5},
		chunks:  [][]byte{[]byte("hello")},
		err:     digestErr,
	}
	rec := httptest.NewRecorder() // does not implement http.Hijacker; forceCloseConnection must no-op safely

	_, err := StreamRemoteArtifact(context.Background(), rec, dl, 5, ParsedRange{}, StreamOptions{})
	if err != digestErr {
		t.Fatalf("expected digest error to propagate, got %T: %v", err, err)
	}
}

func TestStreamRemoteArtifactMarksNotFoundRetryable(t *testing.T) {
	dl := &fakeDownloader{headers: downloader.Headers{StatusCode: 404, ContentLength: 0}}
	rec := httptest.NewRecorder()

	outcome, err := StreamRemoteArtifact(context.Background(), rec, dl, -1, ParsedRange{}, StreamOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.NotFoundRetryable {
		t.Error("expected NotFoundRetryable to be true for a 404 upstream status")
	}
}

func TestMarkMirrorFailed(t *testing.T) {
	var capturedID uuid.UUID
	var capturedAt time.Time
	store := &markFailedStore{
		fakeStore: fakeStore{},
		onMark: func(id uuid.UUID, at time.Time) {
			capturedID = id
			capturedAt = at
		},
	}
	id := uuid.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := MarkMirrorFailed(context.Background(), store, id, fixedClock{now}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedID != id {
		t.Errorf("got id %v, want %v", capturedID, id)
	}
	if !capturedAt.Equal(now) {
		t.Errorf("got time %v, want %v", capturedAt, now)
	}
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type markFailedStore struct {
	fakeStore
	onMark func(id uuid.UUID, at time.Time)
}

func (s *markFailedStore) MarkRemoteArtifactFailed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.onMark(id, at)
	return nil
}
