package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
)

type versionKey struct {
	owner   string
	name    string
	version string
}

func keyOf(entry model.ToothVersion) versionKey {
	return versionKey{owner: entry.RepoOwner, name: entry.RepoName, version: entry.Version}
}

// MemoryStore is an in-memory catalog. It evaluates QuerySpec in Go with the same
// semantics as the SQLite store and is used for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[versionKey]model.ToothVersion
}

var _ services.Catalog = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[versionKey]model.ToothVersion)}
}

// Put stores an entry exactly as given, including IsLatest. Tests use it to build
// catalog states the synchronizer would never produce on purpose.
func (s *MemoryStore) Put(entries ...model.ToothVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[keyOf(e)] = e.Clone()
	}
}

// FindAndCountAll implements services.CatalogReader.
func (s *MemoryStore) FindAndCountAll(ctx context.Context, spec services.QuerySpec) (int, []model.ToothVersion, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	s.mu.RLock()
	matched := make([]model.ToothVersion, 0)
	for _, entry := range s.entries {
		if matchesSpec(entry, spec) {
			matched = append(matched, entry.Clone())
		}
	}
	s.mu.RUnlock()

	// Map iteration is random; settle on key order before the requested sort
	sort.Slice(matched, func(i, j int) bool {
		return lessKey(keyOf(matched[i]), keyOf(matched[j]))
	})
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareColumn(matched[i], matched[j], spec.Sort)
		if spec.Direction == services.Descending {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	start := min(max(spec.Offset, 0), total)
	end := total
	if spec.Limit > 0 {
		end = min(start+spec.Limit, total)
	}

	return total, matched[start:end], nil
}

// ListVersions implements services.CatalogReader, newest release first.
func (s *MemoryStore) ListVersions(ctx context.Context, repoOwner, repoName string) ([]model.ToothVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make([]model.ToothVersion, 0)
	for key, entry := range s.entries {
		if key.owner == repoOwner && key.name == repoName {
			versions = append(versions, entry.Clone())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].ReleasedAt.Equal(versions[j].ReleasedAt) {
			return versions[i].ReleasedAt.After(versions[j].ReleasedAt)
		}
		return versions[i].Version > versions[j].Version
	})
	return versions, nil
}

// GetVersion implements services.CatalogReader.
func (s *MemoryStore) GetVersion(ctx context.Context, repoOwner, repoName, version string) (model.ToothVersion, error) {
	if err := ctx.Err(); err != nil {
		return model.ToothVersion{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[versionKey{owner: repoOwner, name: repoName, version: version}]
	if !ok {
		return model.ToothVersion{}, internalErrors.NewToothNotFoundError(repoOwner+"/"+repoName, version)
	}
	return entry.Clone(), nil
}

// UpsertVersion implements services.CatalogWriter. An existing latest flag is kept.
func (s *MemoryStore) UpsertVersion(ctx context.Context, entry model.ToothVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(entry)
	stored := entry.Clone()
	stored.IsLatest = s.entries[key].IsLatest
	s.entries[key] = stored
	return nil
}

// SetLatest implements services.CatalogWriter.
func (s *MemoryStore) SetLatest(ctx context.Context, repoOwner, repoName, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := versionKey{owner: repoOwner, name: repoName, version: version}
	if _, ok := s.entries[target]; !ok {
		return internalErrors.NewToothNotFoundError(repoOwner+"/"+repoName, version)
	}

	for key, entry := range s.entries {
		if key.owner != repoOwner || key.name != repoName {
			continue
		}
		entry.IsLatest = key == target
		s.entries[key] = entry
	}
	return nil
}

// Len returns the number of stored versions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements services.Catalog.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesSpec(entry model.ToothVersion, spec services.QuerySpec) bool {
	if spec.LatestOnly && !entry.IsLatest {
		return false
	}

	for _, term := range spec.Terms {
		needle := strings.ToLower(term.Term)
		found := false
		for _, col := range term.Fields {
			if strings.Contains(strings.ToLower(textColumn(entry, col)), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, tag := range spec.Tags {
		if !entry.HasTag(tag) {
			return false
		}
	}

	return true
}

func textColumn(entry model.ToothVersion, col services.Column) string {
	switch col {
	case services.ColumnRepoOwner:
		return entry.RepoOwner
	case services.ColumnRepoName:
		return entry.RepoName
	case services.ColumnName:
		return entry.Name
	case services.ColumnDescription:
		return entry.Description
	case services.ColumnAuthor:
		return entry.Author
	default:
		return ""
	}
}

// compareColumn returns -1, 0 or 1 comparing a and b on a sortable column.
func compareColumn(a, b model.ToothVersion, col services.Column) int {
	switch col {
	case services.ColumnStarCount:
		switch {
		case a.StarCount < b.StarCount:
			return -1
		case a.StarCount > b.StarCount:
			return 1
		}
		return 0
	case services.ColumnRepoCreatedAt:
		return a.RepoCreatedAt.Compare(b.RepoCreatedAt)
	case services.ColumnReleasedAt:
		return a.ReleasedAt.Compare(b.ReleasedAt)
	default:
		return strings.Compare(textColumn(a, col), textColumn(b, col))
	}
}

func lessKey(a, b versionKey) bool {
	if a.owner != b.owner {
		return a.owner < b.owner
	}
	if a.name != b.name {
		return a.name < b.name
	}
	return a.version < b.version
}
