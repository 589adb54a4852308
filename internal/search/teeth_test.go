package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	testutil "github.com/lippkg/lip-index/internal/testing"
)

func TestVersions(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewMemoryCatalog(t, testutil.SampleCatalog()...))

	resp, err := svc.Versions(context.Background(), "acme", "toolbox")
	require.NoError(t, err)

	assert.Equal(t, APIVersion, resp.APIVersion)
	assert.Equal(t, "github.com/acme/toolbox", resp.Data.RepoPath)
	require.Len(t, resp.Data.Versions, 2)
	assert.Equal(t, "2.1.0", resp.Data.Versions[0].Version, "newest release first")
	assert.True(t, resp.Data.Versions[0].IsLatest)
	assert.Equal(t, "2.0.0", resp.Data.Versions[1].Version)
	assert.False(t, resp.Data.Versions[1].IsLatest)
	assert.Equal(t, "2023-03-02T12:00:00.000Z", resp.Data.Versions[1].ReleasedAt)
}

func TestVersions_UnknownTooth(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewMemoryCatalog(t, testutil.SampleCatalog()...))

	_, err := svc.Versions(context.Background(), "acme", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalErrors.ErrToothNotFound))
}

func TestVersion(t *testing.T) {
	svc, _ := newTestService(t, testutil.NewSQLiteCatalog(t, testutil.SampleCatalog()...))

	resp, err := svc.Version(context.Background(), "LiteLDev", "LeviLamina", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "github.com/LiteLDev/LeviLamina", resp.Data.RepoPath)
	assert.Equal(t, []string{"framework", "mod-loader"}, resp.Data.Tags)
	require.NotNil(t, resp.Data.AvatarURL)
	assert.Equal(t, "https://example.com/lse.png", *resp.Data.AvatarURL)

	_, err = svc.Version(context.Background(), "LiteLDev", "LeviLamina", "9.9.9")
	assert.True(t, errors.Is(err, internalErrors.ErrToothNotFound))
}
