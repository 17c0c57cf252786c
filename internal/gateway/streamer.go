// On-Demand Streamer (4.G): streams a single RemoteArtifact fetch to the
// client while optionally persisting the downloaded bytes.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

// DownloadSink receives the bytes of an in-flight 4.G/4.H fetch so they land
// on disk alongside the copy streamed to the client, per 4.I. Satisfied by
// *gatewaystorage.LocalBackend; nil disables the sink (the fetch still
// streams to the client, it's just never persisted).
type DownloadSink interface {
	TempFile() (*os.File, error)
	Commit(tmpPath, sha256 string) error
	Abort(tmpPath string)
}

// hopByHop is the exact header set excluded from the proxied response,
// carried verbatim from the upstream's literal list (SPEC_FULL.md §12.4).
var hopByHop = map[string]bool{
	"connection":         true,
	"content-encoding":   true,
	"content-length":     true,
	"keep-alive":         true,
	"public":             true,
	"proxy-authenticate": true,
	"transfer-encoding":  true,
	"upgrade":            true,
}

// StreamOptions configures a single 4.G attempt.
type StreamOptions struct {
	SaveArtifact bool
	Policy       models.RemotePolicy
	RangeHeader  string

	// Method is the inbound request method. HEAD must produce headers only,
	// per spec.md §6; the zero value behaves as GET.
	Method string

	// Sink, when non-nil and SaveArtifact is set, receives a copy of the
	// fetched bytes as they stream to the client so 4.I can persist them.
	Sink DownloadSink
}

// StreamOutcome reports what happened so 4.I (persistence) and 4.H (mirror
// loop) can act on it.
type StreamOutcome struct {
	BytesSentToClient int64
	DownloadResult    *downloader.Result
	NotFoundRetryable bool

	// TempFilePath is set when opts.Sink wrote the fetched bytes to a temp
	// file; the caller must Commit or Abort it via the same Sink.
	TempFilePath string
}

// digestNoRetry is passed to Downloader.Run so the downloader itself never
// retries a checksum mismatch; the mirror loop (4.H) owns that decision.
var digestNoRetry = []error{&gatewayerr.DigestValidationError{}}

// StreamRemoteArtifact implements 4.G's single-try lifecycle. rangeReq is
// the already-validated client range (if any); knownSize is
// RemoteArtifact.Size when known, or -1.
func StreamRemoteArtifact(
	ctx context.Context,
	w http.ResponseWriter,
	dl downloader.Downloader,
	knownSize int64,
	rangeReq ParsedRange,
	opts StreamOptions,
) (*StreamOutcome, error) {
	if knownSize >= 0 && rangeReq.Present {
		if rangeReq.Start < 0 || rangeReq.Stop > knownSize || rangeReq.Start >= rangeReq.Stop {
			return nil, &gatewayerr.RangeNotSatisfiable{Size: knownSize}
		}
	}

	var seen int64
	var sentToClient int64
	headersSent := false
	finalStatus := http.StatusOK

	var tmp *os.File
	var tmpPath string
	if opts.SaveArtifact && opts.Sink != nil {
		if f, terr := opts.Sink.TempFile(); terr == nil {
			tmp = f
			tmpPath = f.Name()
		}
	}
	abortSink := func() {
		if tmpPath != "" {
			opts.Sink.Abort(tmpPath)
			tmpPath = ""
		}
	}

	headersCb := func(h downloader.Headers) error {
		for k, vs := range h.Header {
			if hopByHop[strings.ToLower(k)] {
				continue
			}
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}

		status := h.StatusCode
		upstreamLen := h.ContentLength

		if rangeReq.Present {
			status = http.StatusPartialContent
			start, stop := rangeReq.Start, rangeReq.Stop
			if upstreamLen > 0 && stop > upstreamLen {
				stop = upstreamLen
			}
			sliced := stop - start
			w.Header().Set("Content-Length", strconv.FormatInt(sliced, 10))
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, stop-1, upstreamLen))
		}

		if upstreamLen >= 0 {
			w.Header().Set("X-PULP-ARTIFACT-SIZE", strconv.FormatInt(upstreamLen, 10))
		}

		finalStatus = status
		w.WriteHeader(status)
		headersSent = true
		return nil
	}

	dataCb := func(chunk []byte) error {
		lo, hi := int64(0), int64(len(chunk))
		if rangeReq.Present {
			lo = rangeReq.Start - seen
			if lo < 0 {
				lo = 0
			}
			hi = rangeReq.Stop - seen
			if hi > int64(len(chunk)) {
				hi = int64(len(chunk))
			}
		}
		seen += int64(len(chunk))

		if lo < hi && opts.Method != http.MethodHead {
			slice := chunk[lo:hi]
			n, err := w.Write(slice)
			sentToClient += int64(n)
			if err != nil {
				return err
			}
		}

		if tmp != nil {
			if _, werr := tmp.Write(chunk); werr != nil {
				tmp.Close()
				abortSink()
				tmp = nil
			}
		}
		return nil
	}

	finalizeCb := func() error {
		if tmp != nil {
			if err := tmp.Close(); err != nil {
				abortSink()
				return err
			}
		}
		return nil
	}

	result, err := dl.Run(ctx, headersCb, dataCb, finalizeCb, digestNoRetry)
	if err != nil {
		abortSink()
		if _, ok := err.(*gatewayerr.DigestValidationError); ok {
			forceCloseConnection(w)
			return nil, err
		}
		if !headersSent {
			return nil, &gatewayerr.PreStreamFailure{Cause: err}
		}
		return nil, err
	}

	if finalStatus == http.StatusNotFound {
		abortSink()
		return &StreamOutcome{BytesSentToClient: sentToClient, DownloadResult: result, NotFoundRetryable: true}, nil
	}

	return &StreamOutcome{BytesSentToClient: sentToClient, DownloadResult: result, TempFilePath: tmpPath}, nil
}

// forceCloseConnection implements the digest-failure recovery spec.md §4.G
// and §5 require: SO_LINGER=(1,0) then close, so the client sees an abrupt
// RST rather than a clean FIN that might look like a truncated-but-valid
// response.
func forceCloseConnection(w http.ResponseWriter) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetLinger(0)
	}
	conn.Close()
}

// MarkMirrorFailed stamps and persists a RemoteArtifact's failure, per the
// digest-failure recovery step of 4.G.
func MarkMirrorFailed(ctx context.Context, store Store, remoteArtifactID uuid.UUID, clock Clock) error {
	return store.MarkRemoteArtifactFailed(ctx, remoteArtifactID, clock.Now())
}
