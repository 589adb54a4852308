package search

import (
	"context"
	"fmt"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	"github.com/lippkg/lip-index/model"
)

// VersionItem is the public projection of any catalog entry, latest or not.
type VersionItem struct {
	RepoPath      string   `json:"repoPath"`
	RepoOwner     string   `json:"repoOwner"`
	RepoName      string   `json:"repoName"`
	Version       string   `json:"version"`
	ReleasedAt    string   `json:"releasedAt"`
	IsLatest      bool     `json:"isLatest"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Author        string   `json:"author"`
	Tags          []string `json:"tags"`
	AvatarURL     *string  `json:"avatarUrl"`
	RepoCreatedAt string   `json:"repoCreatedAt"`
	StarCount     int      `json:"starCount"`
}

// VersionsResponse lists every stored version of one tooth.
type VersionsResponse struct {
	APIVersion string      `json:"apiVersion"`
	Data       VersionList `json:"data"`
}

// VersionList holds the versions of one tooth, newest release first.
type VersionList struct {
	RepoPath string        `json:"repoPath"`
	Versions []VersionItem `json:"versions"`
}

// VersionResponse wraps a single version.
type VersionResponse struct {
	APIVersion string      `json:"apiVersion"`
	Data       VersionItem `json:"data"`
}

// ProjectVersion converts a catalog row into a version item.
func ProjectVersion(host string, row model.ToothVersion) VersionItem {
	item := Project(host, row)
	return VersionItem{
		RepoPath:      item.RepoPath,
		RepoOwner:     item.RepoOwner,
		RepoName:      item.RepoName,
		Version:       row.Version,
		ReleasedAt:    item.LatestVersionReleasedAt,
		IsLatest:      row.IsLatest,
		Name:          item.Name,
		Description:   item.Description,
		Author:        item.Author,
		Tags:          item.Tags,
		AvatarURL:     item.AvatarURL,
		RepoCreatedAt: item.RepoCreatedAt,
		StarCount:     item.StarCount,
	}
}

// Versions returns every stored version of owner/repo.
// A repository with no stored versions is reported as *errors.ToothNotFoundError.
func (s *Service) Versions(ctx context.Context, owner, repo string) (VersionsResponse, error) {
	rows, err := s.catalog.ListVersions(ctx, owner, repo)
	if err != nil {
		return VersionsResponse{}, fmt.Errorf("failed to list versions: %w", err)
	}
	repoPath := s.host + "/" + owner + "/" + repo
	if len(rows) == 0 {
		return VersionsResponse{}, internalErrors.NewToothNotFoundError(repoPath)
	}

	versions := make([]VersionItem, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, ProjectVersion(s.host, row))
	}
	return VersionsResponse{
		APIVersion: APIVersion,
		Data:       VersionList{RepoPath: repoPath, Versions: versions},
	}, nil
}

// Version returns one stored version of owner/repo.
func (s *Service) Version(ctx context.Context, owner, repo, version string) (VersionResponse, error) {
	row, err := s.catalog.GetVersion(ctx, owner, repo, version)
	if err != nil {
		return VersionResponse{}, fmt.Errorf("failed to get version: %w", err)
	}
	return VersionResponse{APIVersion: APIVersion, Data: ProjectVersion(s.host, row)}, nil
}
