// Package syncer keeps the catalog in step with tooth releases published on the
// upstream source-control host.
package syncer

import (
	"context"
	"time"
)

// ManifestPath is the location of the manifest inside a tagged tree.
const ManifestPath = "tooth.json"

// Repository is an upstream repository carrying the tooth topic.
type Repository struct {
	Owner     string
	Name      string
	StarCount int
	CreatedAt time.Time
}

// Key returns "<owner>/<name>".
func (r Repository) Key() string {
	return r.Owner + "/" + r.Name
}

// Release is a published release of a repository.
type Release struct {
	TagName     string
	Draft       bool
	Prerelease  bool
	PublishedAt time.Time
}

// Upstream is the subset of the source-control host the synchronizer needs.
type Upstream interface {
	// SearchRepositories returns every repository tagged with topic.
	SearchRepositories(ctx context.Context, topic string) ([]Repository, error)
	// GetRepository returns one repository by name.
	GetRepository(ctx context.Context, owner, name string) (Repository, error)
	// ListReleases returns every release of a repository, drafts included.
	ListReleases(ctx context.Context, owner, name string) ([]Release, error)
	// FetchManifest returns the raw manifest at ref. A missing file is reported
	// with an error satisfying IsNotFound.
	FetchManifest(ctx context.Context, owner, name, ref string) ([]byte, error)
}
