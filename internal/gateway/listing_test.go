package gateway

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFormatSizeDirectory(t *testing.T) {
	if got := formatSize(nil); got != "-" {
		t.Errorf("formatSize(nil) = %q, want %q", got, "-")
	}
}

func TestFormatSizeBytes(t *testing.T) {
	n := int64(512)
	if got := formatSize(&n); got != "512B" {
		t.Errorf("formatSize(512) = %q, want %q", got, "512B")
	}
}

func TestFormatSizeKiB(t *testing.T) {
	n := int64(2048)
	got := formatSize(&n)
	if !strings.HasSuffix(got, "KiB") {
		t.Errorf("formatSize(2048) = %q, want suffix KiB", got)
	}
}

func TestBuildCheckpointListingPath(t *testing.T) {
	id := uuid.New()
	got := BuildCheckpointListingPath(id)
	want := "/" + id.String() + "/"
	if got != want {
		t.Errorf("BuildCheckpointListingPath(%v) = %q, want %q", id, got, want)
	}
}

func TestRenderListingIncludesEntries(t *testing.T) {
	size := int64(100)
	entries := []DirListEntry{
		{Name: "b.txt", CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC), Size: &size},
		{Name: "a.txt", CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC), Size: &size},
	}

	html, err := RenderListing("/repo1/", entries, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(html, `href="a.txt"`) || !strings.Contains(html, `href="b.txt"`) {
		t.Errorf("rendered listing missing expected entries:\n%s", html)
	}
	if !strings.Contains(html, `href="../"`) {
		t.Errorf("rendered listing missing parent link when not at root:\n%s", html)
	}
	// a.txt must sort before b.txt
	if strings.Index(html, "a.txt") > strings.Index(html, "b.txt") {
		t.Errorf("entries not sorted by name:\n%s", html)
	}
}

func TestRenderListingAtRootHidesParentLink(t *testing.T) {
	html, err := RenderListing("/", nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(html, `href="../"`) {
		t.Errorf("root listing should not show a parent link:\n%s", html)
	}
}
