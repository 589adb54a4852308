package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	testutil "github.com/lippkg/lip-index/internal/testing"
	"github.com/lippkg/lip-index/model"
)

func TestProject(t *testing.T) {
	row := testutil.SampleCatalog()[0]

	item := Project("github.com", row)

	assert.Equal(t, "github.com/LiteLDev/LeviLamina", item.RepoPath)
	assert.Equal(t, "LiteLDev", item.RepoOwner)
	assert.Equal(t, "LeviLamina", item.RepoName)
	assert.Equal(t, "1.0.0", item.LatestVersion)
	assert.Equal(t, "2023-03-04T12:00:00.000Z", item.LatestVersionReleasedAt)
	assert.Equal(t, "2023-01-30T12:00:00.000Z", item.RepoCreatedAt)
	assert.Equal(t, "LeviLamina", item.Name)
	assert.Equal(t, "A lightweight modding framework", item.Description)
	assert.Equal(t, "LiteLDev", item.Author)
	assert.Equal(t, []string{"framework", "mod-loader"}, item.Tags)
	require.NotNil(t, item.AvatarURL)
	assert.Equal(t, "https://example.com/lse.png", *item.AvatarURL)
	assert.Equal(t, 900, item.StarCount)
}

func TestProject_RepoPathRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"Some-Org", "some.repo"},
		{"x_y", "z-1"},
	}
	for _, p := range pairs {
		row := testutil.NewEntry(p[0], p[1], "1.0.0", 0)
		item := Project("example.org", row)
		assert.Equal(t, "example.org/"+p[0]+"/"+p[1], item.RepoPath)
	}
}

func TestProject_NilTagsAndAvatar(t *testing.T) {
	row := testutil.NewEntry("acme", "a", "1.0.0", 1)
	row.Tags = nil
	row.AvatarURL = nil

	data, err := json.Marshal(Project("github.com", row))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []any{}, decoded["tags"])
	value, present := decoded["avatarUrl"]
	assert.True(t, present, "avatarUrl is always present")
	assert.Nil(t, value)
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+8", 8*60*60)
	ts := time.Date(2024, time.January, 2, 8, 30, 0, 123456789, zone)

	assert.Equal(t, "2024-01-02T00:30:00.123Z", FormatTimestamp(ts))
}

func TestCheckDuplicates(t *testing.T) {
	a1 := testutil.NewEntry("acme", "a", "1.0.0", 1)
	a2 := testutil.NewEntry("acme", "a", "1.1.0", 1)
	b := testutil.NewEntry("acme", "b", "1.0.0", 1)

	tests := []struct {
		name string
		rows []model.ToothVersion
		want []string
	}{
		{"empty page", nil, nil},
		{"distinct repos", []model.ToothVersion{a1, b}, nil},
		{"same repo twice", []model.ToothVersion{a1, b, a2}, []string{"acme/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning := CheckDuplicates(tt.rows)
			if tt.want == nil {
				assert.Nil(t, warning)
				return
			}
			require.NotNil(t, warning)
			assert.Equal(t, tt.want, warning.RepoPaths)
			assert.ErrorIs(t, warning, internalErrors.ErrInconsistentCatalog)
			assert.Equal(t, "found duplicate item: acme/a", warning.Error())
		})
	}
}

func TestBuildResponse_EmptyPage(t *testing.T) {
	resp := BuildResponse("github.com", Params{Page: 4, PerPage: 20}, 0, nil)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiVersion":"1","data":{"pageIndex":4,"totalPages":0,"items":[]}}`, string(data))
}
