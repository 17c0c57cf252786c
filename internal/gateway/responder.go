// Artifact Responder (4.F): serves a locally present Artifact, honoring
// Range and dispatching to the right storage backend shape.
package gateway

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/gatewaystorage"
	"github.com/contentgw/gateway/internal/models"
)

// ParsedRange is a single-range RFC 7233 request, half-open [Start, Stop).
type ParsedRange struct {
	Start, Stop int64
	Present     bool
}

// ParseRange parses a `Range: bytes=start-stop` header against a known
// total size. An absent header yields a non-Present, non-error result.
func ParseRange(header string, size int64) (ParsedRange, error) {
	if header == "" {
		return ParsedRange{}, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
	}

	var start, stop int64
	var err error
	switch {
	case parts[0] == "" && parts[1] != "":
		// suffix range: last N bytes
		n, perr := strconv.ParseInt(parts[1], 10, 64)
		if perr != nil || n <= 0 {
			return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		stop = size
	case parts[1] == "":
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
		}
		stop = size
	default:
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
		}
		stop, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
		}
		stop++ // header's stop is inclusive; internally we use exclusive stop
	}

	if start < 0 || stop > size || start >= stop {
		return ParsedRange{}, &gatewayerr.RangeNotSatisfiable{Size: size}
	}
	return ParsedRange{Start: start, Stop: stop, Present: true}, nil
}

// RespondWithArtifact implements 4.F: resolve the artifact's storage backend,
// then either stream local bytes (honoring Range) or redirect to a signed URL.
// Returns the number of bytes actually written to the client, for the
// artifacts_size_counter metric.
func RespondWithArtifact(w http.ResponseWriter, r *http.Request, registry *gatewaystorage.Registry, artifact *models.Artifact, contentType, filename string) (int64, error) {
	backend, ok := registry.Get(artifact.StorageKind)
	if !ok {
		return 0, fmt.Errorf("storage backend %q not implemented", artifact.StorageKind)
	}

	rng, err := ParseRange(r.Header.Get("Range"), artifact.Size)
	if err != nil {
		rerr := err.(*gatewayerr.RangeNotSatisfiable)
		w.Header().Set("Content-Range", rerr.ContentRange())
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return 0, nil
	}

	resolution, err := backend.Resolve(r.Context(), artifact, contentType, filename)
	if err != nil {
		return 0, err
	}

	w.Header().Set("X-PULP-ARTIFACT-SIZE", strconv.FormatInt(artifact.Size, 10))

	switch resolution.Mode {
	case gatewaystorage.ModeRedirect:
		http.Redirect(w, r, resolution.RedirectURL, http.StatusFound)
		return 0, nil
	case gatewaystorage.ModeStreamLocal:
		return streamLocalFile(w, r, resolution.LocalPath, artifact.Size, contentType, filename, rng)
	default:
		return 0, fmt.Errorf("unsupported resolution mode for artifact responder")
	}
}

func streamLocalFile(w http.ResponseWriter, r *http.Request, localPath string, size int64, contentType, filename string, rng ParsedRange) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s", path.Base(filename)))

	start, stop := int64(0), size
	status := http.StatusOK
	if rng.Present {
		start, stop = rng.Start, rng.Stop
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, stop-1, size))
	}
	length := stop - start
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))

	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return 0, nil
	}

	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return 0, err
		}
	}

	w.WriteHeader(status)
	written, err := io.CopyN(w, f, length)
	if err != nil && err != io.EOF {
		return written, err
	}
	return written, nil
}
