package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/gatewayguard"
)

// GuardResolver maps a Distribution's content_guard_id to a concrete
// ContentGuard. A nil id always resolves to gatewayguard.NoGuard.
type GuardResolver interface {
	Resolve(ctx context.Context, guardID *uuid.UUID) (gatewayguard.ContentGuard, error)
}

// StaticGuardResolver resolves guard IDs against a fixed, in-memory map —
// sufficient for deployments with a small, rarely-changing set of guards.
type StaticGuardResolver struct {
	Guards map[uuid.UUID]gatewayguard.ContentGuard
}

func (r *StaticGuardResolver) Resolve(_ context.Context, guardID *uuid.UUID) (gatewayguard.ContentGuard, error) {
	if guardID == nil {
		return gatewayguard.NoGuard{}, nil
	}
	if g, ok := r.Guards[*guardID]; ok {
		return g, nil
	}
	return gatewayguard.NoGuard{}, nil
}
