// Package downloader implements the explicit downloader contract spec.md §9
// calls for, replacing the upstream's monkey-patched callback mutation
// (`downloader.handle_data = handle_data`) with callback values passed into
// Run. Grounded on this codebase's remote-fetch pattern
// (internal/handlers/remote_proxy_handler.go's fetchFromRemote,
// internal/api/proxy_engine.go's ProtocolAdapter).
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/contentgw/gateway/internal/gatewayerr"
)

// Headers is the subset of an upstream response the header-ready callback
// needs: status, header map, and the declared length (may be -1 if unknown).
type Headers struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
}

// HeadersCb is invoked once, when upstream response headers arrive.
type HeadersCb func(h Headers) error

// DataCb is invoked once per chunk of upstream body.
type DataCb func(chunk []byte) error

// FinalizeCb is invoked once, after the body has been fully read.
type FinalizeCb func() error

// Result is what a successful Run produces.
type Result struct {
	Sha256        string
	Size          int64
	ContentLength int64
}

// Downloader performs the actual upstream HTTP fetch with streaming
// callbacks. NoRetry lists error types Run must not retry internally,
// per spec.md §9's `disable_retry_list` — the gateway's mirror-fallback
// loop (4.H) owns retry decisions, not the downloader.
type Downloader interface {
	Run(ctx context.Context, headers HeadersCb, data DataCb, finalize FinalizeCb, noRetry []error) (*Result, error)
}

// HTTPDownloader fetches a URL over plain HTTP(S), optionally validating the
// downloaded bytes' sha256 digest against an expected value.
type HTTPDownloader struct {
	Client         *http.Client
	URL            string
	RangeHeader    string // optional upstream Range to forward
	ExpectedSha256 string // optional; "" disables digest validation
}

func NewHTTPDownloader(client *http.Client, url string) *HTTPDownloader {
	return &HTTPDownloader{Client: client, URL: url}
}

func (d *HTTPDownloader) Run(ctx context.Context, headersCb HeadersCb, dataCb DataCb, finalizeCb FinalizeCb, noRetry []error) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, &gatewayerr.PreStreamFailure{Cause: err}
	}
	if d.RangeHeader != "" {
		req.Header.Set("Range", d.RangeHeader)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, &gatewayerr.PreStreamFailure{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &gatewayerr.PreStreamFailure{Cause: &gatewayerr.UpstreamError{StatusCode: resp.StatusCode, URL: d.URL}}
	}

	if err := headersCb(Headers{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}); err != nil {
		return nil, err
	}

	hasher := sha256.New()
	var size int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			hasher.Write(chunk)
			size += int64(n)
			if err := dataCb(chunk); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Bytes may already have reached the client; this is a
			// mid-stream failure and must propagate, not be retried.
			return nil, readErr
		}
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if d.ExpectedSha256 != "" && d.ExpectedSha256 != actual {
		// noRetry is honored by the caller (4.H's mirror loop), not here:
		// Run never retries internally, so there is nothing to suppress.
		return nil, &gatewayerr.DigestValidationError{
			Algorithm: "sha256",
			Expected:  d.ExpectedSha256,
			Actual:    actual,
		}
	}

	if err := finalizeCb(); err != nil {
		return nil, err
	}

	return &Result{Sha256: actual, Size: size, ContentLength: resp.ContentLength}, nil
}
