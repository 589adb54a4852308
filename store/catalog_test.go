package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	testutil "github.com/lippkg/lip-index/internal/testing"
	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
	"github.com/lippkg/lip-index/store"
)

var textFields = []services.Column{
	services.ColumnRepoOwner,
	services.ColumnRepoName,
	services.ColumnName,
	services.ColumnDescription,
	services.ColumnAuthor,
}

// catalogFactories lets every contract test run against both backends.
func catalogFactories() map[string]func(t *testing.T, entries ...model.ToothVersion) services.Catalog {
	return map[string]func(t *testing.T, entries ...model.ToothVersion) services.Catalog{
		"memory": func(t *testing.T, entries ...model.ToothVersion) services.Catalog {
			catalog := store.NewMemoryStore()
			testutil.LoadCatalog(t, catalog, entries...)
			return catalog
		},
		"sqlite": func(t *testing.T, entries ...model.ToothVersion) services.Catalog {
			return testutil.NewSQLiteCatalog(t, entries...)
		},
	}
}

func latestSpec() services.QuerySpec {
	return services.QuerySpec{
		LatestOnly: true,
		Sort:       services.ColumnStarCount,
		Direction:  services.Descending,
		Limit:      20,
	}
}

// accentedEntry has non-ASCII text in every searchable field.
func accentedEntry() model.ToothVersion {
	entry := testutil.NewEntry("pâtisserie", "eclair", "1.0.0", 5)
	entry.Name = "Éclair"
	entry.Description = "Crème brûlée helpers"
	entry.Author = "Zoë Ångström"
	entry.Tags = []string{"dessert"}
	return entry
}

func TestFindAndCountAll_Filtering(t *testing.T) {
	tests := []struct {
		name      string
		terms     []string
		tags      []string
		wantRepos []string
	}{
		{
			name:      "empty filter returns every latest entry",
			wantRepos: []string{"LiteLDev/LeviLamina", "LiteLDev/LegacyScriptEngine", "acme/toolbox", "pâtisserie/eclair"},
		},
		{
			name:      "term matches case-insensitively",
			terms:     []string{"levi"},
			wantRepos: []string{"LiteLDev/LeviLamina"},
		},
		{
			name:      "mixed-case term",
			terms:     []string{"LeViLaMiNa"},
			wantRepos: []string{"LiteLDev/LeviLamina"},
		},
		{
			name:      "non-ASCII term in stored case",
			terms:     []string{"Éclair"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "non-ASCII term lower-cased",
			terms:     []string{"éclair"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "non-ASCII term upper-cased",
			terms:     []string{"ÉCLAIR"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "non-ASCII term matches description",
			terms:     []string{"CRÈME BRÛLÉE"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "non-ASCII term matches author",
			terms:     []string{"ångström"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "non-ASCII term matches owner",
			terms:     []string{"PÂTISSERIE"},
			wantRepos: []string{"pâtisserie/eclair"},
		},
		{
			name:      "accented letter does not match its base letter",
			terms:     []string{"creme"},
			wantRepos: []string{},
		},
		{
			name:      "term matches owner",
			terms:     []string{"liteldev"},
			wantRepos: []string{"LiteLDev/LeviLamina", "LiteLDev/LegacyScriptEngine"},
		},
		{
			name:      "term matches author",
			terms:     []string{"coyote"},
			wantRepos: []string{"acme/toolbox"},
		},
		{
			name:      "term matches description",
			terms:     []string{"SCRIPTING"},
			wantRepos: []string{"acme/toolbox"},
		},
		{
			name:      "terms are ANDed",
			terms:     []string{"liteldev", "legacy"},
			wantRepos: []string{"LiteLDev/LegacyScriptEngine"},
		},
		{
			name:      "no match",
			terms:     []string{"nothing-matches-this"},
			wantRepos: []string{},
		},
		{
			name:      "tag filter is exact",
			tags:      []string{"framework"},
			wantRepos: []string{"LiteLDev/LeviLamina", "LiteLDev/LegacyScriptEngine"},
		},
		{
			name:      "tag filter does not match substrings",
			tags:      []string{"frame"},
			wantRepos: []string{},
		},
		{
			name:      "tags are ANDed",
			tags:      []string{"framework", "scripting"},
			wantRepos: []string{"LiteLDev/LegacyScriptEngine"},
		},
		{
			name:      "terms and tags combined",
			terms:     []string{"lite"},
			tags:      []string{"mod-loader"},
			wantRepos: []string{"LiteLDev/LeviLamina"},
		},
		{
			name:      "empty tag matches nothing",
			tags:      []string{""},
			wantRepos: []string{},
		},
	}

	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			catalog := factory(t, append(testutil.SampleCatalog(), accentedEntry())...)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					spec := latestSpec()
					for _, term := range tt.terms {
						spec.Terms = append(spec.Terms, services.TermPredicate{Term: term, Fields: textFields})
					}
					spec.Tags = tt.tags

					count, rows, err := catalog.FindAndCountAll(context.Background(), spec)
					require.NoError(t, err)

					assert.Equal(t, len(tt.wantRepos), count)
					assert.Equal(t, tt.wantRepos, testutil.RepoKeys(rows))
					testutil.AssertAllLatest(t, rows)
				})
			}
		})
	}
}

func TestFindAndCountAll_Sorting(t *testing.T) {
	tests := []struct {
		name      string
		sort      services.Column
		direction services.Direction
		wantRepos []string
	}{
		{"stars descending", services.ColumnStarCount, services.Descending,
			[]string{"LiteLDev/LeviLamina", "LiteLDev/LegacyScriptEngine", "acme/toolbox"}},
		{"stars ascending", services.ColumnStarCount, services.Ascending,
			[]string{"acme/toolbox", "LiteLDev/LegacyScriptEngine", "LiteLDev/LeviLamina"}},
		{"repo created descending", services.ColumnRepoCreatedAt, services.Descending,
			[]string{"acme/toolbox", "LiteLDev/LegacyScriptEngine", "LiteLDev/LeviLamina"}},
		{"released ascending", services.ColumnReleasedAt, services.Ascending,
			[]string{"LiteLDev/LegacyScriptEngine", "LiteLDev/LeviLamina", "acme/toolbox"}},
	}

	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			catalog := factory(t, testutil.SampleCatalog()...)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					spec := latestSpec()
					spec.Sort = tt.sort
					spec.Direction = tt.direction

					_, rows, err := catalog.FindAndCountAll(context.Background(), spec)
					require.NoError(t, err)
					assert.Equal(t, tt.wantRepos, testutil.RepoKeys(rows))
				})
			}
		})
	}
}

func TestFindAndCountAll_Pagination(t *testing.T) {
	var entries []model.ToothVersion
	for i := 0; i < 23; i++ {
		entries = append(entries, testutil.NewEntry("acme", fmt.Sprintf("repo%02d", i), "1.0.0", i))
	}

	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			catalog := factory(t, entries...)

			for _, perPage := range []int{1, 5, 10, 20, 100} {
				for page := 1; page <= 25; page++ {
					spec := latestSpec()
					spec.Offset = (page - 1) * perPage
					spec.Limit = perPage

					count, rows, err := catalog.FindAndCountAll(context.Background(), spec)
					require.NoError(t, err)
					assert.Equal(t, 23, count)

					want := min(perPage, max(0, count-spec.Offset))
					assert.Len(t, rows, want, "perPage=%d page=%d", perPage, page)
				}
			}
		})
	}
}

func TestFindAndCountAll_ExcludesNonLatest(t *testing.T) {
	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			catalog := factory(t, testutil.SampleCatalog()...)

			spec := latestSpec()
			spec.Terms = []services.TermPredicate{{Term: "toolbox", Fields: textFields}}

			count, rows, err := catalog.FindAndCountAll(context.Background(), spec)
			require.NoError(t, err)
			require.Equal(t, 1, count)
			assert.Equal(t, "2.1.0", rows[0].Version)
		})
	}
}

func TestFindAndCountAll_RoundTripsFields(t *testing.T) {
	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			sample := testutil.SampleCatalog()
			catalog := factory(t, sample...)

			spec := latestSpec()
			spec.Tags = []string{"mod-loader"}

			_, rows, err := catalog.FindAndCountAll(context.Background(), spec)
			require.NoError(t, err)
			require.Len(t, rows, 1)

			got := rows[0]
			want := sample[0]
			assert.Equal(t, want.Name, got.Name)
			assert.Equal(t, want.Description, got.Description)
			assert.Equal(t, want.Author, got.Author)
			assert.Equal(t, want.Tags, got.Tags)
			require.NotNil(t, got.AvatarURL)
			assert.Equal(t, *want.AvatarURL, *got.AvatarURL)
			assert.Equal(t, want.StarCount, got.StarCount)
			assert.True(t, want.RepoCreatedAt.Equal(got.RepoCreatedAt))
			assert.True(t, want.ReleasedAt.Equal(got.ReleasedAt))
		})
	}
}

func TestSetLatest(t *testing.T) {
	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			catalog := factory(t, testutil.SampleCatalog()...)

			require.NoError(t, catalog.SetLatest(ctx, "acme", "toolbox", "2.0.0"))

			versions, err := catalog.ListVersions(ctx, "acme", "toolbox")
			require.NoError(t, err)
			require.Len(t, versions, 2)

			latest := 0
			for _, v := range versions {
				if v.IsLatest {
					latest++
					assert.Equal(t, "2.0.0", v.Version)
				}
			}
			assert.Equal(t, 1, latest)

			err = catalog.SetLatest(ctx, "acme", "toolbox", "9.9.9")
			assert.True(t, errors.Is(err, internalErrors.ErrToothNotFound))
		})
	}
}

func TestUpsertVersion_KeepsLatestFlag(t *testing.T) {
	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			catalog := factory(t, testutil.SampleCatalog()...)

			updated := testutil.SampleCatalog()[2]
			updated.StarCount = 99
			updated.IsLatest = false
			require.NoError(t, catalog.UpsertVersion(ctx, updated))

			got, err := catalog.GetVersion(ctx, "acme", "toolbox", "2.1.0")
			require.NoError(t, err)
			assert.Equal(t, 99, got.StarCount)
			assert.True(t, got.IsLatest)

			fresh := testutil.NewEntry("acme", "toolbox", "3.0.0", 99)
			require.NoError(t, catalog.UpsertVersion(ctx, fresh))

			got, err = catalog.GetVersion(ctx, "acme", "toolbox", "3.0.0")
			require.NoError(t, err)
			assert.False(t, got.IsLatest)
			assert.Nil(t, got.AvatarURL)
		})
	}
}

func TestListAndGetVersions(t *testing.T) {
	for backend, factory := range catalogFactories() {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			catalog := factory(t, testutil.SampleCatalog()...)

			versions, err := catalog.ListVersions(ctx, "acme", "toolbox")
			require.NoError(t, err)
			require.Len(t, versions, 2)
			assert.Equal(t, "2.1.0", versions[0].Version)
			assert.Equal(t, "2.0.0", versions[1].Version)

			versions, err = catalog.ListVersions(ctx, "acme", "missing")
			require.NoError(t, err)
			assert.Empty(t, versions)

			_, err = catalog.GetVersion(ctx, "acme", "toolbox", "0.0.1")
			assert.True(t, errors.Is(err, internalErrors.ErrToothNotFound))
		})
	}
}

func TestMemoryStore_DuplicateLatestIsReturned(t *testing.T) {
	first := testutil.NewEntry("acme", "a", "1.0.0", 10)
	second := testutil.NewEntry("acme", "a", "1.1.0", 10)
	catalog := testutil.NewMemoryCatalog(t, first, second)

	count, rows, err := catalog.FindAndCountAll(context.Background(), latestSpec())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"acme/a", "acme/a"}, testutil.RepoKeys(rows))
}

func TestMemoryStore_RespectsContext(t *testing.T) {
	catalog := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := catalog.FindAndCountAll(ctx, latestSpec())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenSQLite_ReopenKeepsData(t *testing.T) {
	path := t.TempDir() + "/catalog.db"
	ctx := context.Background()

	catalog, err := store.OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	entry := testutil.NewEntry("acme", "a", "1.0.0", 1)
	entry.ReleasedAt = time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	require.NoError(t, catalog.UpsertVersion(ctx, entry))
	require.NoError(t, catalog.Close())

	reopened, err := store.OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetVersion(ctx, "acme", "a", "1.0.0")
	require.NoError(t, err)
	assert.True(t, entry.ReleasedAt.Equal(got.ReleasedAt))
	assert.Equal(t, path, reopened.Path())
}

func TestOpenSQLite_InMemory(t *testing.T) {
	ctx := context.Background()
	catalog, err := store.OpenSQLite(ctx, store.MemoryPath, nil)
	require.NoError(t, err)
	defer catalog.Close()

	testutil.LoadCatalog(t, catalog, testutil.SampleCatalog()...)

	count, _, err := catalog.FindAndCountAll(ctx, latestSpec())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
