package services

import (
	"context"

	"github.com/lippkg/lip-index/model"
)

// Column is a physical catalog field a query may filter or sort on.
// The set is closed; storage backends map each value explicitly.
type Column int

const (
	ColumnRepoOwner Column = iota
	ColumnRepoName
	ColumnName
	ColumnDescription
	ColumnAuthor
	ColumnStarCount
	ColumnRepoCreatedAt
	ColumnReleasedAt
)

func (c Column) String() string {
	switch c {
	case ColumnRepoOwner:
		return "repoOwner"
	case ColumnRepoName:
		return "repoName"
	case ColumnName:
		return "name"
	case ColumnDescription:
		return "description"
	case ColumnAuthor:
		return "author"
	case ColumnStarCount:
		return "starCount"
	case ColumnRepoCreatedAt:
		return "repoCreatedAt"
	case ColumnReleasedAt:
		return "releasedAt"
	default:
		return "unknown"
	}
}

// Direction is a physical sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// TermPredicate matches when any of Fields contains Term, ignoring case.
type TermPredicate struct {
	Term   string
	Fields []Column
}

// QuerySpec is a storage-agnostic description of one catalog read.
//
// The filter is the conjunction of every TermPredicate, every tag in Tags
// (exact membership in the entry's tags) and, when LatestOnly is set, isLatest = true.
// Only one sort key is applied; ties come back in whatever order the backend produces
// and are not guaranteed stable across pages.
type QuerySpec struct {
	Terms      []TermPredicate
	Tags       []string
	LatestOnly bool
	Sort       Column
	Direction  Direction
	Offset     int
	Limit      int
}

// CatalogReader is the read side of the catalog used by the query engine.
type CatalogReader interface {
	// FindAndCountAll returns the total number of entries matching spec's filter
	// and the page of entries selected by its sort and pagination.
	FindAndCountAll(ctx context.Context, spec QuerySpec) (int, []model.ToothVersion, error)
	// ListVersions returns every stored version of one repository.
	ListVersions(ctx context.Context, repoOwner, repoName string) ([]model.ToothVersion, error)
	// GetVersion returns a single version of one repository.
	GetVersion(ctx context.Context, repoOwner, repoName, version string) (model.ToothVersion, error)
}

// CatalogWriter is the write side of the catalog, used only by the synchronizer.
type CatalogWriter interface {
	// UpsertVersion inserts or replaces one version. IsLatest on the argument is ignored;
	// use SetLatest to move the flag.
	UpsertVersion(ctx context.Context, entry model.ToothVersion) error
	// SetLatest marks version as the only latest entry of the repository.
	SetLatest(ctx context.Context, repoOwner, repoName, version string) error
	// ListVersions returns every stored version of one repository.
	ListVersions(ctx context.Context, repoOwner, repoName string) ([]model.ToothVersion, error)
}

// Catalog combines both sides of the catalog store.
type Catalog interface {
	CatalogReader
	CatalogWriter
	Close() error
}

// JobManager defines read operations over background jobs
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(jobType *model.JobType, status *model.JobStatus) []*model.Job
}
