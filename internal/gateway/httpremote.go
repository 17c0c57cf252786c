// HTTPRemoteResolver is the default RemoteResolver: every Remote's URL is
// its name treated as a base URL, joined with the requested relative path.
// Grounded on this codebase's remote-fetch client construction
// (internal/handlers/remote_proxy_handler.go).
package gateway

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/models"
)

type HTTPRemoteResolver struct {
	Client *http.Client
}

func NewHTTPRemoteResolver(client *http.Client) *HTTPRemoteResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemoteResolver{Client: client}
}

func (r *HTTPRemoteResolver) joinURL(remote *models.Remote, relPath string) string {
	base := strings.TrimSuffix(remote.Name, "/")
	return base + "/" + strings.TrimPrefix(relPath, "/")
}

func (r *HTTPRemoteResolver) URLFor(_ context.Context, remote *models.Remote, relPath string) (string, error) {
	return r.joinURL(remote, relPath), nil
}

func (r *HTTPRemoteResolver) ContentTypeFor(_ context.Context, _ *models.Remote, relPath string) (string, error) {
	ext := path.Ext(relPath)
	if ext == "" {
		return "", nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t, nil
	}
	return "application/octet-stream", nil
}

func (r *HTTPRemoteResolver) Downloader(_ context.Context, remote *models.Remote, remoteArtifact *models.RemoteArtifact) (downloader.Downloader, error) {
	url := remoteArtifact.URL
	if url == "" {
		url = r.joinURL(remote, "")
	}
	return downloader.NewHTTPDownloader(r.Client, url), nil
}
