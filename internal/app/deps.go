package app

import (
	"context"
	"time"

	"github.com/glassychat/backend/internal/avatars"
	"github.com/glassychat/backend/internal/chat"
	"github.com/glassychat/backend/internal/config"
	"github.com/glassychat/backend/internal/directory"
	"github.com/glassychat/backend/internal/friends"
	"github.com/glassychat/backend/internal/handlers"
	"github.com/glassychat/backend/internal/identity"
	"github.com/glassychat/backend/internal/middleware"
	"github.com/glassychat/backend/internal/store"
	"github.com/glassychat/backend/internal/views"
)

// buildDependencies wires together concrete implementations used by the
// HTTP handlers. Avatar storage is optional: without a configured bucket the
// upload endpoint reports itself unavailable and profiles keep their
// generated avatars.
func buildDependencies(ctx context.Context, st store.Store, cfg config.Config) (handlers.Dependencies, error) {
	deps := handlers.Dependencies{
		Identity:     identity.NewLocalProvider(st),
		Sessions:     identity.NewSessionManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, st),
		Directory:    directory.NewService(st),
		Friends:      friends.NewEngine(st),
		Chat:         chat.NewEngine(st),
		Views:        views.New(st),
		AuthLimiter:  middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		WriteLimiter: middleware.NewIPRateLimiter(cfg.WriteRateLimit, cfg.WriteRateWindow, cfg.WriteRateLimit, 10*time.Minute),
	}

	if cfg.ObjectStore.Bucket != "" {
		s3, err := avatars.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		deps.Avatars = s3
	}

	return deps, nil
}
