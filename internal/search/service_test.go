package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	testutil "github.com/lippkg/lip-index/internal/testing"
	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
)

// recordingCatalog counts catalog reads and can be made to fail.
type recordingCatalog struct {
	services.CatalogReader
	calls int
	specs []services.QuerySpec
	err   error
}

func (c *recordingCatalog) FindAndCountAll(ctx context.Context, spec services.QuerySpec) (int, []model.ToothVersion, error) {
	c.calls++
	c.specs = append(c.specs, spec)
	if c.err != nil {
		return 0, nil, c.err
	}
	return c.CatalogReader.FindAndCountAll(ctx, spec)
}

func newTestService(t *testing.T, catalog services.CatalogReader) (*Service, *testutil.SyncBuffer) {
	t.Helper()
	logger, buf := testutil.NewCaptureLogger()
	svc, err := NewService(catalog, "github.com", logger)
	require.NoError(t, err)
	return svc, buf
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, "github.com", hclog.NewNullLogger())
	assert.Error(t, err)

	_, err = NewService(testutil.NewMemoryCatalog(t), "", hclog.NewNullLogger())
	assert.Error(t, err)

	svc, err := NewService(testutil.NewMemoryCatalog(t), "github.com", nil)
	require.NoError(t, err)
	assert.NotNil(t, svc.logger)
}

func TestSearch_FirstPageOfTwo(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t,
		testutil.NewEntry("acme", "a", "1.0.0", 10),
		testutil.NewEntry("acme", "b", "1.0.0", 5),
	)
	svc, _ := newTestService(t, catalog)

	resp, err := svc.Search(context.Background(), RawParams{
		Sort:    strPtr("starCount"),
		Order:   strPtr("descending"),
		PerPage: strPtr("1"),
		Page:    strPtr("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1", resp.APIVersion)
	assert.Equal(t, 1, resp.Data.PageIndex)
	assert.Equal(t, 2, resp.Data.TotalPages)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "github.com/acme/a", resp.Data.Items[0].RepoPath)
}

func TestSearch_SecondPage(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t,
		testutil.NewEntry("acme", "a", "1.0.0", 10),
		testutil.NewEntry("acme", "b", "1.0.0", 5),
	)
	svc, _ := newTestService(t, catalog)

	resp, err := svc.Search(context.Background(), RawParams{PerPage: strPtr("1"), Page: strPtr("2")})
	require.NoError(t, err)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "acme/b", resp.Data.Items[0].RepoOwner+"/"+resp.Data.Items[0].RepoName)

	resp, err = svc.Search(context.Background(), RawParams{PerPage: strPtr("1"), Page: strPtr("3")})
	require.NoError(t, err)
	assert.Empty(t, resp.Data.Items)
	assert.NotNil(t, resp.Data.Items)
	assert.Equal(t, 3, resp.Data.PageIndex)
	assert.Equal(t, 2, resp.Data.TotalPages)
}

func TestSearch_QueryAgainstSampleCatalog(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t, testutil.SampleCatalog()...)
	svc, _ := newTestService(t, catalog)

	tests := []struct {
		name string
		q    string
		want []string
	}{
		{"everything", "", []string{"LeviLamina", "LegacyScriptEngine", "toolbox"}},
		{"owner match is case-insensitive", "liteldev", []string{"LeviLamina", "LegacyScriptEngine"}},
		{"terms narrow results", "liteldev legacy", []string{"LegacyScriptEngine"}},
		{"description match", "helpers", []string{"toolbox"}},
		{"author match", "coyote", []string{"toolbox"}},
		{"tag filter", "tag:framework", []string{"LeviLamina", "LegacyScriptEngine"}},
		{"tags are ANDed", "tag:framework tag:scripting", []string{"LegacyScriptEngine"}},
		{"term and tag", "lite tag:mod-loader", []string{"LeviLamina"}},
		{"tags match exactly", "tag:Framework", []string{}},
		{"empty tag matches nothing", "tag:", []string{}},
		{"unknown prefixes are ignored", "author:nobody", []string{"LeviLamina", "LegacyScriptEngine", "toolbox"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Search(context.Background(), RawParams{Q: strPtr(tt.q)})
			require.NoError(t, err)

			names := make([]string, 0, len(resp.Data.Items))
			for _, item := range resp.Data.Items {
				names = append(names, item.RepoName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSearch_OnlyLatestVersionsAreReturned(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t, testutil.SampleCatalog()...)
	svc, _ := newTestService(t, catalog)

	resp, err := svc.Search(context.Background(), RawParams{Q: strPtr("toolbox")})
	require.NoError(t, err)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "2.1.0", resp.Data.Items[0].LatestVersion)
}

func TestSearch_DuplicateLatestIsNotFatal(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t,
		testutil.NewEntry("acme", "a", "1.0.0", 10),
		testutil.NewEntry("acme", "a", "1.1.0", 10),
	)
	svc, logs := newTestService(t, catalog)

	resp, err := svc.Search(context.Background(), RawParams{})
	require.NoError(t, err)

	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "github.com/acme/a", resp.Data.Items[0].RepoPath)
	assert.Equal(t, "github.com/acme/a", resp.Data.Items[1].RepoPath)
	assert.Equal(t, 1, resp.Data.TotalPages)

	assert.Contains(t, logs.String(), "[WARN]")
	assert.Contains(t, logs.String(), "found duplicate item: acme/a")
}

func TestSearch_DuplicateCheckIsPageScoped(t *testing.T) {
	catalog := testutil.NewMemoryCatalog(t,
		testutil.NewEntry("acme", "a", "1.0.0", 10),
		testutil.NewEntry("acme", "a", "1.1.0", 5),
	)
	svc, logs := newTestService(t, catalog)

	for _, page := range []string{"1", "2"} {
		resp, err := svc.Search(context.Background(), RawParams{PerPage: strPtr("1"), Page: strPtr(page)})
		require.NoError(t, err)
		require.Len(t, resp.Data.Items, 1)
	}
	assert.NotContains(t, logs.String(), "found duplicate item")
}

func TestSearch_BadParamsNeverReachCatalog(t *testing.T) {
	catalog := &recordingCatalog{CatalogReader: testutil.NewMemoryCatalog(t)}
	svc, _ := newTestService(t, catalog)

	_, err := svc.Search(context.Background(), RawParams{PerPage: strPtr("1000")})
	require.Error(t, err)
	assert.ErrorIs(t, err, internalErrors.ErrBadRequest)
	assert.Equal(t, 0, catalog.calls)
}

func TestSearch_SingleCatalogReadPerRequest(t *testing.T) {
	catalog := &recordingCatalog{CatalogReader: testutil.NewMemoryCatalog(t, testutil.SampleCatalog()...)}
	svc, _ := newTestService(t, catalog)

	_, err := svc.Search(context.Background(), RawParams{Q: strPtr("lite tag:framework"), Page: strPtr("2"), PerPage: strPtr("5")})
	require.NoError(t, err)

	require.Equal(t, 1, catalog.calls)
	spec := catalog.specs[0]
	assert.True(t, spec.LatestOnly)
	assert.Equal(t, 5, spec.Offset)
	assert.Equal(t, 5, spec.Limit)
	assert.Equal(t, []string{"framework"}, spec.Tags)
}

func TestSearch_CatalogFailureIsNotBadRequest(t *testing.T) {
	storageErr := errors.New("disk I/O error")
	catalog := &recordingCatalog{CatalogReader: testutil.NewMemoryCatalog(t), err: storageErr}
	svc, _ := newTestService(t, catalog)

	_, err := svc.Search(context.Background(), RawParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
	assert.NotErrorIs(t, err, internalErrors.ErrBadRequest)
}

func TestSearch_SQLiteBackend(t *testing.T) {
	catalog := testutil.NewSQLiteCatalog(t, testutil.SampleCatalog()...)
	svc, _ := newTestService(t, catalog)

	resp, err := svc.Search(context.Background(), RawParams{Q: strPtr("tag:framework"), Sort: strPtr("createdAt"), Order: strPtr("ascending")})
	require.NoError(t, err)

	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "LeviLamina", resp.Data.Items[0].RepoName)
	assert.Equal(t, "LegacyScriptEngine", resp.Data.Items[1].RepoName)
	assert.Equal(t, 1, resp.Data.TotalPages)
}
