// Mirror Fallback (4.H): iterates a ContentArtifact's RemoteArtifacts,
// skipping any in cooldown, retrying the next on any pre-stream-safe
// failure.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/downloader"
	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

// MirrorAttempt is one (remote, remote_artifact) pair the dispatcher can try.
type MirrorAttempt struct {
	Remote         *models.Remote
	RemoteArtifact *models.RemoteArtifact
}

// TryMirrors implements 4.H: attempt each candidate via attemptFn in order;
// pre-stream-safe failures advance to the next candidate, mid-stream
// failures propagate immediately. An outcome marked NotFoundRetryable also
// advances to the next candidate. Returns gatewayerr.NotFound if every
// candidate is exhausted.
func TryMirrors(
	ctx context.Context,
	store Store,
	contentArtifactID uuid.UUID,
	cooldown time.Duration,
	resolver RemoteResolver,
	attemptFn func(ctx context.Context, remote *models.Remote, remoteArtifact *models.RemoteArtifact, dl downloader.Downloader) (*StreamOutcome, error),
) (*StreamOutcome, *models.RemoteArtifact, error) {
	remoteArtifacts, err := store.RemoteArtifacts(ctx, contentArtifactID, cooldown)
	if err != nil {
		return nil, nil, err
	}
	if len(remoteArtifacts) == 0 {
		return nil, nil, &gatewayerr.NotFound{Reason: "no remote artifacts available"}
	}

	for i := range remoteArtifacts {
		ra := &remoteArtifacts[i]
		remote, err := store.GetRemote(ctx, ra.RemoteID)
		if err != nil {
			continue
		}
		dl, err := resolver.Downloader(ctx, remote, ra)
		if err != nil {
			continue
		}

		outcome, err := attemptFn(ctx, remote, ra, dl)
		if err == nil {
			if outcome != nil && outcome.NotFoundRetryable {
				continue
			}
			return outcome, ra, nil
		}

		if isPreStreamSafe(err) {
			continue
		}
		// Mid-stream failure (including DigestValidationError): propagate.
		return nil, ra, err
	}

	return nil, nil, &gatewayerr.NotFound{Reason: "all mirrors exhausted"}
}

func isPreStreamSafe(err error) bool {
	switch e := err.(type) {
	case *gatewayerr.PreStreamFailure:
		return true
	case *gatewayerr.UpstreamError:
		return true
	case interface{ Status() int }:
		return e.Status() >= 400 && e.Status() < 600
	default:
		return false
	}
}
