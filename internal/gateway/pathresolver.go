// Path Resolver (4.A): maps a URL path suffix to a distribution, or to one
// of the listing/redirect outcomes spec.md §9's "exception-as-control-flow"
// note asks to be modeled as an explicit result instead of raised
// exceptions.
package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/gatewayerr"
	"github.com/contentgw/gateway/internal/models"
)

// ListingNeeded signals the Path Resolver found no exact distribution match
// but the path is itself an ancestor of one or more distributions: render a
// DistroListings page (request already ended in a slash) or redirect to add
// one.
type ListingNeeded struct {
	Path          string
	Distributions []models.Distribution
}

func (l *ListingNeeded) Error() string { return "distribution listing needed at " + l.Path }

// splitHead mimics Python's os.path.split(path)[0]: the portion of path
// before its final '/', with "/" itself standing for an empty head at the
// filesystem root.
func splitHead(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	head := path[:idx]
	if head == "" {
		return "/"
	}
	return head
}

// basePaths returns the list of ancestor base paths for a path, repeatedly
// stripping the last segment until the remainder is empty, matching the
// upstream's `_base_paths` (SPEC_FULL.md §4.A implementation note). For
// "/a/b/c/" this yields ["/a/b/c", "/a/b", "/a"] (the empty root is excluded).
func basePaths(path string) []string {
	var tree []string
	for {
		base := splitHead(path)
		if strings.Trim(base, "/") == "" {
			break
		}
		tree = append(tree, base)
		path = base
	}
	return tree
}

// ResolveDistribution implements 4.A: compute ancestor base paths, query the
// store, and on miss decide between a listing, a redirect, or PathNotResolved.
// prefix is the absolute path already consumed by the caller (content path
// prefix plus any domain segment) and is used only to build an absolute
// redirect Location; it plays no part in the store lookup itself.
func ResolveDistribution(ctx context.Context, store Store, domainID uuid.UUID, path string, addTrailingSlash bool, prefix string) (*models.Distribution, error) {
	endsInSlash := strings.HasSuffix(path, "/")
	working := path
	if !endsInSlash && addTrailingSlash {
		working = path + "/"
	}

	candidates := basePaths(working)
	if len(candidates) == 0 {
		return nil, &gatewayerr.PathNotResolved{Reason: "path has no ancestor base paths"}
	}

	dist, err := store.ResolveDistribution(ctx, domainID, candidates)
	if err != nil {
		return nil, err
	}
	if dist != nil {
		return dist, nil
	}

	trimmed := strings.TrimSuffix(working, "/")
	isAncestorCandidate := false
	for _, c := range candidates {
		if c == trimmed {
			isAncestorCandidate = true
			break
		}
	}
	if isAncestorCandidate {
		distros, err := store.ListDistributionsUnderPrefix(ctx, domainID, working, false)
		if err != nil {
			return nil, err
		}
		if len(distros) > 0 {
			if endsInSlash {
				return nil, &ListingNeeded{Path: working, Distributions: distros}
			}
			return nil, &gatewayerr.HTTPMovedPermanently{Location: prefix + working}
		}
	}

	return nil, &gatewayerr.PathNotResolved{Reason: "no distribution matched " + path}
}

// FilterListing excludes hidden distributions and, when configured, any
// distribution carrying a content guard, per 4.A's listing rule.
func FilterListing(distros []models.Distribution, hideGuarded bool) []models.Distribution {
	out := make([]models.Distribution, 0, len(distros))
	for _, d := range distros {
		if d.Hidden {
			continue
		}
		if hideGuarded && d.HasContentGuard {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ChildNames reduces a list of distributions under a common prefix to their
// distinct next-path-segment names, for rendering a DistroListings page.
func ChildNames(distros []models.Distribution, prefix string) []string {
	seen := map[string]bool{}
	var names []string
	for _, d := range distros {
		if len(d.BasePath) <= len(prefix) {
			continue
		}
		rest := d.BasePath[len(prefix):]
		name := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			name = rest[:idx+1]
		} else {
			name += "/"
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
