// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package evidence

import (
	"context"
	"fmt"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
)

// NewStore builds the configured backend.
func NewStore(ctx context.Context, cfg *config.EvidenceConfig) (Store, error) {
	switch cfg.Backend {
	case config.EvidenceBackendS3:
		return NewS3Store(ctx, cfg)
	case config.EvidenceBackendFS, "":
		return NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.Backend)
	}
}
