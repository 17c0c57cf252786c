package gateway

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/contentgw/gateway/internal/gatewayerr"
)

func TestParseRangeAbsentHeader(t *testing.T) {
	rng, err := ParseRange("", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Present {
		t.Errorf("expected no range present for empty header")
	}
}

func TestParseRangeSimple(t *testing.T) {
	rng, err := ParseRange("bytes=0-9", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rng.Present || rng.Start != 0 || rng.Stop != 10 {
		t.Errorf("got %+v, want Start=0 Stop=10", rng)
	}
}

func TestParseRangeOpenEnded(t *testing.T) {
	rng, err := ParseRange("bytes=50-", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Start != 50 || rng.Stop != 100 {
		t.Errorf("got %+v, want Start=50 Stop=100", rng)
	}
}

func TestParseRangeSuffix(t *testing.T) {
	rng, err := ParseRange("bytes=-10", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Start != 90 || rng.Stop != 100 {
		t.Errorf("got %+v, want Start=90 Stop=100", rng)
	}
}

func TestParseRangeSuffixLargerThanSize(t *testing.T) {
	rng, err := ParseRange("bytes=-1000", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Start != 0 || rng.Stop != 100 {
		t.Errorf("got %+v, want Start=0 Stop=100 (clamped)", rng)
	}
}

func TestParseRangeMultiRangeRejected(t *testing.T) {
	_, err := ParseRange("bytes=0-9,20-29", 100)
	if _, ok := err.(*gatewayerr.RangeNotSatisfiable); !ok {
		t.Fatalf("expected *RangeNotSatisfiable, got %T: %v", err, err)
	}
}

func TestParseRangeOutOfBoundsRejected(t *testing.T) {
	_, err := ParseRange("bytes=90-200", 100)
	if _, ok := err.(*gatewayerr.RangeNotSatisfiable); !ok {
		t.Fatalf("expected *RangeNotSatisfiable, got %T: %v", err, err)
	}
}

func TestParseRangeMalformedRejected(t *testing.T) {
	_, err := ParseRange("bytes=abc-def", 100)
	if _, ok := err.(*gatewayerr.RangeNotSatisfiable); !ok {
		t.Fatalf("expected *RangeNotSatisfiable, got %T: %v", err, err)
	}
}

func TestStreamLocalFileFullBody(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "artifact-*.bin")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	content := []byte("0123456789")
	if _, err := f.Write(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	f.Close()

	req := httptest.NewRequest(http.MethodGet, "/whatever", nil)
	rec := httptest.NewRecorder()

	written, err := streamLocalFile(rec, req, f.Name(), int64(len(content)), "application/octet-stream", "artifact.bin", ParsedRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("got %d bytes written, want %d", written, len(content))
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(content) {
		t.Errorf("got body %q, want %q", rec.Body.String(), content)
	}
}

func TestStreamLocalFileRangeRequest(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "artifact-*.bin")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	content := []byte("0123456789")
	if _, err := f.Write(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	f.Close()

	req := httptest.NewRequest(http.MethodGet, "/whatever", nil)
	rec := httptest.NewRecorder()

	rng := ParsedRange{Start: 2, Stop: 5, Present: true}
	written, err := streamLocalFile(rec, req, f.Name(), int64(len(content)), "application/octet-stream", "artifact.bin", rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 3 {
		t.Errorf("got %d bytes written, want 3", written)
	}
	if rec.Code != http.StatusPartialContent {
		t.Errorf("got status %d, want 206", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("got body %q, want %q", rec.Body.String(), "234")
	}
	wantCR := "bytes 2-4/10"
	if got := rec.Header().Get("Content-Range"); got != wantCR {
		t.Errorf("got Content-Range %q, want %q", got, wantCR)
	}
}

func TestStreamLocalFileHeadRequest(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "artifact-*.bin")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	content := []byte("0123456789")
	if _, err := f.Write(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	f.Close()

	req := httptest.NewRequest(http.MethodHead, "/whatever", nil)
	rec := httptest.NewRecorder()

	written, err := streamLocalFile(rec, req, f.Name(), int64(len(content)), "application/octet-stream", "artifact.bin", ParsedRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if written != 0 {
		t.Errorf("HEAD request should write no body bytes, got %d", written)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD request should have empty body, got %q", rec.Body.String())
	}
}
