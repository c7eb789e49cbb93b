// Package core provides shared types and the stats source registry.
package core

import "time"

// Epoch is the timestamp reported when a lookup fails.
var Epoch = time.Unix(0, 0).UTC()

// RepoStats describes the code-hosting repository matched for a package.
type RepoStats struct {
	Stars     int
	UpdatedAt time.Time
	FullName  string // owner/name of the matched repository, informational only
}

// ZeroRepoStats is the fail-closed result of a repository lookup.
func ZeroRepoStats() RepoStats {
	return RepoStats{Stars: 0, UpdatedAt: Epoch}
}

// PublishStats describes the latest published version of a package.
type PublishStats struct {
	LastUpdate time.Time
	Version    string
}

// ZeroPublishStats is the fail-closed result of a registry lookup.
func ZeroPublishStats() PublishStats {
	return PublishStats{LastUpdate: Epoch}
}
