package downloader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contentgw/gateway/internal/gatewayerr"
)

func TestHTTPDownloaderSuccess(t *testing.T) {
	body := []byte("hello world, this is the upstream body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), srv.URL)

	var gotHeaders Headers
	var collected bytes.Buffer
	finalizeCalled := false

	result, err := d.Run(context.Background(),
		func(h Headers) error { gotHeaders = h; return nil },
		func(chunk []byte) error { collected.Write(chunk); return nil },
		func() error { finalizeCalled = true; return nil },
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotHeaders.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want 200", gotHeaders.StatusCode)
	}
	if collected.String() != string(body) {
		t.Errorf("got body %q, want %q", collected.String(), body)
	}
	if !finalizeCalled {
		t.Error("finalize callback was not called")
	}
	sum := sha256.Sum256(body)
	wantSha := hex.EncodeToString(sum[:])
	if result.Sha256 != wantSha {
		t.Errorf("got sha256 %q, want %q", result.Sha256, wantSha)
	}
	if result.Size != int64(len(body)) {
		t.Errorf("got size %d, want %d", result.Size, len(body))
	}
}

func TestHTTPDownloaderUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), srv.URL)
	_, err := d.Run(context.Background(),
		func(Headers) error { return nil },
		func([]byte) error { return nil },
		func() error { return nil },
		nil,
	)
	preErr, ok := err.(*gatewayerr.PreStreamFailure)
	if !ok {
		t.Fatalf("expected *PreStreamFailure, got %T: %v", err, err)
	}
	upErr, ok := preErr.Cause.(*gatewayerr.UpstreamError)
	if !ok {
		t.Fatalf("expected cause *UpstreamError, got %T: %v", preErr.Cause, preErr.Cause)
	}
	if upErr.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want 404", upErr.StatusCode)
	}
}

func TestHTTPDownloaderDigestMismatch(t *testing.T) {
	body := []byte("actual content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), srv.URL)
	d.ExpectedSha256 = "0000000000000000000000000000000000000000000000000000000000000"

	_, err := d.Run(context.Background(),
		func(Headers) error { return nil },
		func([]byte) error { return nil },
		func() error { return nil },
		nil,
	)
	if _, ok := err.(*gatewayerr.DigestValidationError); !ok {
		t.Fatalf("expected *DigestValidationError, got %T: %v", err, err)
	}
}

func TestHTTPDownloaderHeadersCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), srv.URL)
	sentinel := &gatewayerr.NotFound{Reason: "guard rejected before body read"}
	_, err := d.Run(context.Background(),
		func(Headers) error { return sentinel },
		func([]byte) error { return nil },
		func() error { return nil },
		nil,
	)
	if err != sentinel {
		t.Errorf("expected headers callback error to propagate unchanged, got %v", err)
	}
}

func TestHTTPDownloaderForwardsRangeHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(srv.Client(), srv.URL)
	d.RangeHeader = "bytes=10-20"

	_, err := d.Run(context.Background(),
		func(Headers) error { return nil },
		func([]byte) error { return nil },
		func() error { return nil },
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotRange != "bytes=10-20" {
		t.Errorf("got forwarded Range header %q, want %q", gotRange, "bytes=10-20")
	}
}
