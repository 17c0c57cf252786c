// Checkpoint Resolver (4.B): resolves the `YYYYMMDDThhmmssZ` path segment of
// a checkpointed distribution to the newest eligible publication.
package gateway

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

// checkpointRe matches the strict grammar spec.md §6 requires:
// `YYYYMMDDThhmmssZ[/rel_path]`.
var checkpointRe = regexp.MustCompile(`^(\d{8}T\d{6}Z)(?:/(.*))?$`)

const checkpointTimeLayout = "20060102T150405Z"

// CheckpointResult is a resolved publication with the remaining relative
// path. A request to list all checkpoint timestamps (the distribution's
// remainder path was empty) is reported as a NeedsCheckpointListing error
// instead.
type CheckpointResult struct {
	Publication *models.Publication
	Remainder   string
}

// NeedsCheckpointListing signals the distribution's path remainder was
// empty: render an HTML listing of all checkpoint timestamps instead.
type NeedsCheckpointListing struct {
	RepositoryID uuid.UUID
}

func (n *NeedsCheckpointListing) Error() string { return "checkpoint listing needed" }

// ResolveCheckpoint implements 4.B. basePrefix is the absolute path of the
// distribution itself (content path prefix, domain segment if enabled, and
// distribution base_path) and anchors the canonical-timestamp redirect so it
// lands back on the same distribution instead of at the server root.
func ResolveCheckpoint(ctx context.Context, store Store, repositoryID uuid.UUID, remainder string, now time.Time, basePrefix string) (*CheckpointResult, error) {
	if remainder == "" {
		return nil, &NeedsCheckpointListing{RepositoryID: repositoryID}
	}

	m := checkpointRe.FindStringSubmatch(remainder)
	if m == nil {
		return nil, &gatewayerr.PathNotResolved{Reason: "malformed checkpoint timestamp"}
	}
	requested, err := time.ParseInLocation(checkpointTimeLayout, m[1], time.UTC)
	if err != nil {
		return nil, &gatewayerr.PathNotResolved{Reason: "malformed checkpoint timestamp"}
	}
	if requested.After(now) {
		return nil, &gatewayerr.PathNotResolved{Reason: "checkpoint timestamp is in the future"}
	}

	// Treat the request timestamp as end-of-second: a publication created at
	// exactly the requested second still matches, so compare against the
	// start of the *next* second minus a nanosecond (spec.md §3 invariant 3).
	endOfSecond := requested.Add(time.Second).Add(-time.Nanosecond)

	pub, err := store.ResolveCheckpointPublication(ctx, repositoryID, endOfSecond)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, &gatewayerr.PathNotResolved{Reason: "no checkpoint publication at or before " + m[1]}
	}

	canonical := pub.CreatedAt.UTC().Format(checkpointTimeLayout)
	if canonical != m[1] {
		loc := basePrefix + "/" + canonical
		if m[2] != "" {
			loc += "/" + m[2]
		} else {
			loc += "/"
		}
		return nil, &gatewayerr.HTTPMovedPermanently{Location: loc}
	}

	return &CheckpointResult{Publication: pub, Remainder: strings.TrimPrefix(m[2], "/")}, nil
}
