package gateway

import "time"

// Settings is passed explicitly through the dispatcher rather than read from
// process-wide mutable state, per spec.md §9's "Global settings module"
// design note.
type Settings struct {
	ContentPathPrefix          string
	DomainEnabled              bool
	HideGuardedDistributions   bool
	CacheEnabled               bool
	RemoteFetchFailureCooldown time.Duration
}
