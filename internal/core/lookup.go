package core

import (
	"context"

	"go.uber.org/zap"
)

// LookupRepoStats returns the repository stats for name. Any failure,
// including a search with no hits, yields ZeroRepoStats and a warning on log;
// the error is never returned so a broken upstream fails the package closed.
func LookupRepoStats(ctx context.Context, src RepoSource, name string, log *zap.SugaredLogger) RepoStats {
	stats, err := src.FetchRepoStats(ctx, name)
	if err != nil || stats == nil {
		log.Warnw("repository lookup failed, assuming zero stars",
			"source", src.Name(),
			"package", name,
			"error", err,
		)
		return ZeroRepoStats()
	}
	return *stats
}

// LookupPublishStats returns the latest publish stats for name, or
// ZeroPublishStats on any failure. Failures are logged, never returned.
func LookupPublishStats(ctx context.Context, reg Registry, name string, log *zap.SugaredLogger) PublishStats {
	stats, err := reg.FetchPublishStats(ctx, name)
	if err != nil || stats == nil {
		log.Warnw("registry lookup failed, assuming no recent publish",
			"ecosystem", reg.Ecosystem(),
			"package", name,
			"error", err,
		)
		return ZeroPublishStats()
	}
	return *stats
}
