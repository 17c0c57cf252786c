// Dispatcher (4.J): the single HTTP entrypoint tying together path
// resolution, checkpoint resolution, the guard gate, directory listing,
// artifact responses, on-demand streaming, mirror fallback, and persistence.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/gatewaycache"
	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/gatewaystorage"
	"github.com/contentgw/gateway/internal/logger"
	"github.com/contentgw/gateway/internal/models"
)

// Dispatcher is the 4.J entrypoint. Store, Remotes, Guards, Clock and
// Metrics are interfaces so they can be replaced by fakes in tests; Cache and
// Storage are concrete types (a disabled cache and a local-only registry
// serve the same purpose).
type Dispatcher struct {
	Settings Settings
	Store    Store
	Cache    *gatewaycache.Cache
	Storage  *gatewaystorage.Registry
	Remotes  RemoteResolver
	Guards   GuardResolver
	Clock    Clock
	Metrics  SizeCounter

	PersistTimeout time.Duration
}

// NewDispatcher wires a Dispatcher with a real clock; use this instead of a
// bare struct literal so concurrent requests never race on a lazily-assigned
// Clock field.
func NewDispatcher(settings Settings, store Store, cache *gatewaycache.Cache, storage *gatewaystorage.Registry, remotes RemoteResolver, guards GuardResolver, metrics SizeCounter) *Dispatcher {
	return &Dispatcher{
		Settings: settings,
		Store:    store,
		Cache:    cache,
		Storage:  storage,
		Remotes:  remotes,
		Guards:   guards,
		Clock:    RealClock,
		Metrics:  metrics,
	}
}

func mimeFor(relPath string) string {
	if idx := strings.LastIndexByte(relPath, '.'); idx >= 0 {
		switch strings.ToLower(relPath[idx+1:]) {
		case "html", "htm":
			return "text/html"
		case "json":
			return "application/json"
		case "txt":
			return "text/plain"
		case "gz":
			return "application/gzip"
		}
	}
	return "application/octet-stream"
}

func basename(relPath string) string {
	if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
		return relPath[idx+1:]
	}
	return relPath
}

// ServeHTTP implements 4.J end to end. It reads the full request path from
// r.URL.Path and strips Settings.ContentPathPrefix (plus the /<domain>
// segment when DomainEnabled) itself, via splitDomain.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if d.Clock == nil {
		d.Clock = RealClock
	}
	if d.Guards == nil {
		d.Guards = &StaticGuardResolver{}
	}

	domainID, prefix, rest, err := d.splitDomain(ctx, r.URL.Path)
	if err != nil {
		d.writeError(w, r, nil, rest, err)
		return
	}

	distro, relPath, err := d.resolveWithCache(ctx, domainID, prefix, rest)
	if err != nil {
		d.writeError(w, r, distro, rest, err)
		return
	}

	if distro.HasContentGuard {
		guard, gerr := d.Guards.Resolve(ctx, distro.ContentGuardID)
		if gerr != nil {
			d.writeError(w, r, nil, rest, gerr)
			return
		}
		if permitErr := guard.Permit(r); permitErr != nil {
			d.Cache.SetGuardPresent(ctx, distro.BasePath, true)
			d.writeError(w, r, nil, rest, &gatewayerr.HTTPForbidden{Reason: permitErr.Error()})
			return
		}
		d.Cache.SetGuardPresent(ctx, distro.BasePath, true)
	}

	pub, version, repo, remainder, err := d.resolveTarget(ctx, distro, relPath, prefix)
	if err != nil {
		d.writeError(w, r, distro, rest, err)
		return
	}

	switch {
	case pub != nil:
		d.servePublication(w, r, distro, pub, version, remainder)
	case version != nil:
		d.serveVersion(w, r, distro, version, remainder)
	case distro.RemoteID != nil:
		d.serveRemote(w, r, distro, repo, remainder)
	default:
		d.writeError(w, r, distro, rest, &gatewayerr.NotFound{Reason: "distribution has no content source"})
	}
}

// splitDomain strips Settings.ContentPathPrefix and, when DomainEnabled,
// the leading /<domain> segment, resolving that segment to a domain id via
// the Store (gw_domains.name, schema.go). prefix is the absolute path
// consumed so far (content path prefix plus any domain segment); callers
// need it to rebuild absolute redirect locations further down the pipeline.
func (d *Dispatcher) splitDomain(ctx context.Context, path string) (uuid.UUID, string, string, error) {
	rest := strings.TrimPrefix(path, d.Settings.ContentPathPrefix)
	rest = strings.TrimPrefix(rest, "/")
	prefix := d.Settings.ContentPathPrefix
	if !d.Settings.DomainEnabled {
		return uuid.Nil, prefix, "/" + rest, nil
	}

	parts := strings.SplitN(rest, "/", 2)
	domainName := parts[0]
	remainder := ""
	if len(parts) == 2 {
		remainder = parts[1]
	}

	domainID, err := d.Store.ResolveDomainByName(ctx, domainName)
	if err != nil {
		return uuid.Nil, prefix, "/" + remainder, err
	}
	if domainID == uuid.Nil {
		return uuid.Nil, prefix, "/" + remainder, &gatewayerr.NotFound{Reason: "unknown domain " + domainName}
	}
	return domainID, prefix + "/" + domainName, "/" + remainder, nil
}

// resolveWithCache implements 4.A with the base-path cache consulted first
// (4.C), falling back to the Path Resolver on a miss and populating the
// cache on success.
func (d *Dispatcher) resolveWithCache(ctx context.Context, domainID uuid.UUID, prefix, path string) (*models.Distribution, string, error) {
	candidates := basePaths(path)
	if canonical, ok, _ := d.Cache.ResolveBasePath(ctx, candidates); ok {
		dist, err := d.Store.ResolveDistribution(ctx, domainID, []string{canonical})
		if err == nil && dist != nil {
			return dist, strings.TrimPrefix(strings.TrimPrefix(path, canonical), "/"), nil
		}
	}

	dist, err := ResolveDistribution(ctx, d.Store, domainID, path, true, prefix)
	if err != nil {
		return nil, "", err
	}
	d.Cache.CacheBasePath(ctx, path, dist.BasePath)
	relPath := strings.TrimPrefix(path, dist.BasePath)
	relPath = strings.TrimPrefix(relPath, "/")
	return dist, relPath, nil
}

// resolveTarget implements step 3 of 4.J: checkpoint resolution or direct
// distribution fields, producing at most one of (publication, version).
func (d *Dispatcher) resolveTarget(ctx context.Context, distro *models.Distribution, relPath, prefix string) (*models.Publication, *models.RepositoryVersion, *models.Repository, string, error) {
	if distro.Checkpoint {
		if distro.RepositoryID == nil {
			return nil, nil, nil, "", &gatewayerr.PathNotResolved{Reason: "checkpoint distribution missing repository"}
		}
		result, err := ResolveCheckpoint(ctx, d.Store, *distro.RepositoryID, relPath, d.Clock.Now(), prefix+distro.BasePath)
		if err != nil {
			return nil, nil, nil, "", err
		}
		repo, rerr := d.Store.GetRepository(ctx, *distro.RepositoryID)
		if rerr != nil {
			return nil, nil, nil, "", rerr
		}
		return result.Publication, nil, repo, result.Remainder, nil
	}

	if distro.PublicationID != nil {
		pub, err := d.Store.GetPublication(ctx, *distro.PublicationID)
		if err != nil {
			return nil, nil, nil, "", err
		}
		return pub, nil, nil, relPath, nil
	}

	if distro.RepositoryVersionID != nil {
		v := &models.RepositoryVersion{ID: *distro.RepositoryVersionID}
		if distro.RepositoryID != nil {
			v.RepositoryID = *distro.RepositoryID
		}
		return nil, v, nil, relPath, nil
	}

	if distro.RepositoryID != nil {
		pub, err := d.Store.LatestCompletePublication(ctx, *distro.RepositoryID)
		if err != nil {
			return nil, nil, nil, "", err
		}
		if pub != nil {
			return pub, nil, nil, relPath, nil
		}
		v, err := d.Store.LatestVersion(ctx, *distro.RepositoryID)
		if err != nil {
			return nil, nil, nil, "", err
		}
		return nil, v, nil, relPath, nil
	}

	repo := (*models.Repository)(nil)
	return nil, nil, repo, relPath, nil
}

func (d *Dispatcher) servePublication(w http.ResponseWriter, r *http.Request, distro *models.Distribution, pub *models.Publication, _ *models.RepositoryVersion, relPath string) {
	ctx := r.Context()

	indexPath := strings.TrimSuffix(relPath, "/")
	if indexPath != "" {
		indexPath += "/"
	}
	indexPath += "index.html"
	if ca, _ := d.Store.PublishedArtifact(ctx, pub.ID, indexPath); ca != nil {
		d.serveContentArtifact(w, r, distro, pub.RepositoryVersionID, ca)
		return
	}

	entries, err := d.Store.ListPublicationDirectory(ctx, pub.ID, pub.RepositoryVersionID, relPath, pub.PassThrough)
	if err == nil && len(entries) > 0 {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		d.writeListing(w, r, relPath, entries)
		return
	}

	ca, err := d.Store.PublishedArtifact(ctx, pub.ID, relPath)
	if err != nil || ca == nil {
		if pub.PassThrough {
			pca, perr := d.Store.VersionContentArtifact(ctx, pub.RepositoryVersionID, relPath)
			if perr != nil {
				if _, ok := perr.(*gatewayerr.AmbiguousContent); ok {
					logger.New().Error("ambiguous pass-through content", perr)
				}
				d.writeError(w, r, distro, relPath, perr)
				return
			}
			if pca != nil {
				d.serveContentArtifact(w, r, distro, pub.RepositoryVersionID, pca)
				return
			}
		}
		d.writeError(w, r, distro, relPath, &gatewayerr.NotFound{Reason: "no published artifact at " + relPath})
		return
	}
	d.serveContentArtifact(w, r, distro, pub.RepositoryVersionID, ca)
}

func (d *Dispatcher) serveVersion(w http.ResponseWriter, r *http.Request, distro *models.Distribution, version *models.RepositoryVersion, relPath string) {
	ctx := r.Context()

	indexPath := strings.TrimSuffix(relPath, "/")
	if indexPath != "" {
		indexPath += "/"
	}
	indexPath += "index.html"
	if ca, _ := d.Store.VersionContentArtifact(ctx, version.ID, indexPath); ca != nil {
		d.serveContentArtifact(w, r, distro, version.ID, ca)
		return
	}

	entries, err := d.Store.ListVersionDirectory(ctx, version.ID, relPath)
	if err == nil && len(entries) > 0 {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		d.writeListing(w, r, relPath, entries)
		return
	}

	ca, err := d.Store.VersionContentArtifact(ctx, version.ID, relPath)
	if err != nil {
		d.writeError(w, r, distro, relPath, err)
		return
	}
	if ca == nil {
		d.writeError(w, r, distro, relPath, &gatewayerr.NotFound{Reason: "no content artifact at " + relPath})
		return
	}
	d.serveContentArtifact(w, r, distro, version.ID, ca)
}

func (d *Dispatcher) serveContentArtifact(w http.ResponseWriter, r *http.Request, distro *models.Distribution, versionID uuid.UUID, ca *models.ContentArtifact) {
	ctx := r.Context()

	if ca.ArtifactID != nil {
		artifact, err := d.Store.GetArtifact(ctx, *ca.ArtifactID)
		if err != nil || artifact == nil {
			d.writeError(w, r, distro, ca.RelativePath, &gatewayerr.NotFound{Reason: "artifact missing"})
			return
		}
		sent, err := RespondWithArtifact(w, r, d.Storage, artifact, mimeFor(ca.RelativePath), basename(ca.RelativePath))
		if err != nil {
			d.writeError(w, r, distro, ca.RelativePath, err)
			return
		}
		if d.Metrics != nil {
			d.Metrics.Add(sent)
		}
		return
	}

	rangeReq, err := ParseRange(r.Header.Get("Range"), -1)
	if err != nil {
		d.writeError(w, r, distro, ca.RelativePath, err)
		return
	}

	sink := d.localSink()
	outcome, ra, err := TryMirrors(ctx, d.Store, ca.ID, d.Settings.RemoteFetchFailureCooldown, d.Remotes,
		func(attemptCtx context.Context, remote *models.Remote, remoteArtifact *models.RemoteArtifact, dl downloader.Downloader) (*StreamOutcome, error) {
			knownSize := int64(-1)
			if remoteArtifact.Size != nil {
				knownSize = *remoteArtifact.Size
			}
			return StreamRemoteArtifact(attemptCtx, w, dl, knownSize, rangeReq, StreamOptions{
				Policy: remote.Policy, Method: r.Method, SaveArtifact: remote.Policy != models.RemotePolicyStreamed, Sink: sink,
			})
		})
	if err != nil {
		if _, ok := err.(*gatewayerr.DigestValidationError); ok && ra != nil {
			d.Store.MarkRemoteArtifactFailed(ctx, ra.ID, d.Clock.Now())
		}
		d.writeError(w, r, distro, ca.RelativePath, err)
		return
	}

	if outcome != nil {
		if d.Metrics != nil {
			d.Metrics.Add(outcome.BytesSentToClient)
		}
		if outcome.DownloadResult != nil && outcome.TempFilePath != "" {
			persistCtx := context.WithoutCancel(ctx)
			_, _ = PersistShielded(persistCtx, d.Store, outcome.DownloadResult, ca, versionID, PersistOptions{
				StorageKind:  models.StorageBackendLocal,
				StoragePath:  outcome.DownloadResult.Sha256,
				TempFilePath: outcome.TempFilePath,
				Sink:         sink,
			}, d.persistTimeout())
		}
	}
}

func (d *Dispatcher) serveRemote(w http.ResponseWriter, r *http.Request, distro *models.Distribution, repo *models.Repository, relPath string) {
	ctx := r.Context()
	if distro.RemoteID == nil {
		d.writeError(w, r, distro, relPath, &gatewayerr.NotFound{Reason: "distribution has no remote"})
		return
	}
	remote, err := d.Store.GetRemote(ctx, *distro.RemoteID)
	if err != nil || remote == nil {
		d.writeError(w, r, distro, relPath, &gatewayerr.NotFound{Reason: "remote not found"})
		return
	}

	url, err := d.Remotes.URLFor(ctx, remote, relPath)
	if err != nil || url == "" {
		d.writeError(w, r, distro, relPath, &gatewayerr.NotFound{Reason: "remote has no content for " + relPath})
		return
	}

	existing, err := d.Store.FindRemoteArtifactByURL(ctx, *distro.RemoteID, url)
	if err != nil {
		d.writeError(w, r, distro, relPath, err)
		return
	}

	knownSize := int64(-1)
	if existing != nil && existing.Size != nil {
		knownSize = *existing.Size
	}

	rangeReq, err := ParseRange(r.Header.Get("Range"), knownSize)
	if err != nil {
		d.writeError(w, r, distro, relPath, err)
		return
	}

	var remoteArtifact *models.RemoteArtifact
	if existing != nil {
		remoteArtifact = existing
	} else {
		remoteArtifact = &models.RemoteArtifact{
			ID:       uuid.New(),
			RemoteID: *distro.RemoteID,
			URL:      url,
		}
	}

	dl, err := d.Remotes.Downloader(ctx, remote, remoteArtifact)
	if err != nil {
		d.writeError(w, r, distro, relPath, &gatewayerr.UpstreamError{StatusCode: http.StatusBadGateway, URL: url})
		return
	}

	contentType, _ := d.Remotes.ContentTypeFor(ctx, remote, relPath)
	saveArtifact := contentType != "" && repo != nil && repo.PullThroughSupported

	sink := d.localSink()
	outcome, err := StreamRemoteArtifact(ctx, w, dl, knownSize, rangeReq, StreamOptions{
		SaveArtifact: saveArtifact,
		Policy:       remote.Policy,
		RangeHeader:  r.Header.Get("Range"),
		Method:       r.Method,
		Sink:         sink,
	})
	if err != nil {
		if _, ok := err.(*gatewayerr.DigestValidationError); ok {
			d.Store.MarkRemoteArtifactFailed(ctx, remoteArtifact.ID, d.Clock.Now())
		}
		d.writeError(w, r, distro, relPath, err)
		return
	}

	if d.Metrics != nil {
		d.Metrics.Add(outcome.BytesSentToClient)
	}

	if saveArtifact && outcome.DownloadResult != nil {
		ca := &models.ContentArtifact{ID: uuid.New(), RelativePath: relPath}
		persistCtx := context.WithoutCancel(ctx)
		if distro.RepositoryVersionID != nil {
			_, _ = PersistShielded(persistCtx, d.Store, outcome.DownloadResult, ca, *distro.RepositoryVersionID, PersistOptions{
				StorageKind:  models.StorageBackendLocal,
				StoragePath:  outcome.DownloadResult.Sha256,
				TempFilePath: outcome.TempFilePath,
				Sink:         sink,
			}, d.persistTimeout())
		} else if outcome.TempFilePath != "" && sink != nil {
			sink.Abort(outcome.TempFilePath)
		}
		remoteArtifact.ContentArtifactID = ca.ID
		_ = d.Store.SaveRemoteArtifact(persistCtx, remoteArtifact)
	}
}

// localSink returns the registry's local storage backend as a DownloadSink,
// when one is registered and it supports it. PersistOptions always targets
// StorageBackendLocal for on-demand/pull-through fetches, so this is the one
// backend the streamer ever needs to tee bytes into.
func (d *Dispatcher) localSink() DownloadSink {
	if d.Storage == nil {
		return nil
	}
	b, ok := d.Storage.Get(models.StorageBackendLocal)
	if !ok {
		return nil
	}
	sink, _ := b.(DownloadSink)
	return sink
}

func (d *Dispatcher) persistTimeout() time.Duration {
	if d.PersistTimeout <= 0 {
		return 30 * time.Second
	}
	return d.PersistTimeout
}

func (d *Dispatcher) writeListing(w http.ResponseWriter, r *http.Request, relPath string, entries []models.DirEntry) {
	view := make([]DirListEntry, len(entries))
	for i, e := range entries {
		view[i] = DirListEntry{Name: e.Name, CreatedAt: e.CreatedAt, Size: e.Size}
	}
	d.writeRenderedListing(w, r, relPath, view)
}

func (d *Dispatcher) writeRenderedListing(w http.ResponseWriter, r *http.Request, relPath string, view []DirListEntry) {
	atRoot := strings.TrimSuffix(r.URL.Path, "/") == strings.TrimSuffix(d.Settings.ContentPathPrefix, "/")
	html, err := RenderListing(r.URL.Path, view, atRoot)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Write([]byte(html))
}

func (d *Dispatcher) writeError(w http.ResponseWriter, r *http.Request, _ *models.Distribution, _ string, err error) {
	switch e := err.(type) {
	case *ListingNeeded:
		view := make([]DirListEntry, 0, len(e.Distributions))
		for _, name := range ChildNames(FilterListing(e.Distributions, d.Settings.HideGuardedDistributions), e.Path) {
			view = append(view, DirListEntry{Name: name})
		}
		d.writeRenderedListing(w, r, e.Path, view)
		return
	case *gatewayerr.HTTPMovedPermanently:
		http.Redirect(w, r, e.Location, http.StatusMovedPermanently)
		return
	case *gatewayerr.HTTPFound:
		http.Redirect(w, r, e.Location, http.StatusFound)
		return
	case *gatewayerr.RangeNotSatisfiable:
		w.Header().Set("Content-Range", e.ContentRange())
		w.WriteHeader(e.Status())
		return
	case *NeedsCheckpointListing:
		pubs, perr := d.Store.ListCheckpointPublications(r.Context(), e.RepositoryID)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusInternalServerError)
			return
		}
		view := make([]DirListEntry, len(pubs))
		for i, p := range pubs {
			view[i] = DirListEntry{Name: p.CreatedAt.UTC().Format(checkpointTimeLayout) + "/", CreatedAt: p.CreatedAt}
		}
		d.writeRenderedListing(w, r, BuildCheckpointListingPath(e.RepositoryID), view)
		return
	}
	var sc gatewayerr.StatusCoder
	if errors.As(err, &sc) {
		http.Error(w, err.Error(), sc.Status())
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
