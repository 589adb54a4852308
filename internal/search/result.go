package search

import (
	"time"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
	"github.com/lippkg/lip-index/model"
)

// CheckDuplicates scans one page of latest rows for repositories that appear more
// than once. Only the given page is inspected.
func CheckDuplicates(rows []model.ToothVersion) *internalErrors.ConsistencyWarning {
	seen := make(map[string]struct{}, len(rows))
	var duplicates []string
	for _, row := range rows {
		key := row.RepoKey()
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, key)
			continue
		}
		seen[key] = struct{}{}
	}
	if len(duplicates) == 0 {
		return nil
	}
	return internalErrors.NewConsistencyWarning(duplicates)
}

// Project converts a catalog row into a response item.
func Project(host string, row model.ToothVersion) Item {
	tags := row.Tags
	if tags == nil {
		tags = []string{}
	} else {
		tags = append([]string{}, tags...)
	}

	var avatar *string
	if row.AvatarURL != nil {
		v := *row.AvatarURL
		avatar = &v
	}

	return Item{
		RepoPath:                host + "/" + row.RepoOwner + "/" + row.RepoName,
		RepoOwner:               row.RepoOwner,
		RepoName:                row.RepoName,
		LatestVersion:           row.Version,
		LatestVersionReleasedAt: FormatTimestamp(row.ReleasedAt),
		Name:                    row.Name,
		Description:             row.Description,
		Author:                  row.Author,
		Tags:                    tags,
		AvatarURL:               avatar,
		RepoCreatedAt:           FormatTimestamp(row.RepoCreatedAt),
		StarCount:               row.StarCount,
	}
}

// BuildResponse wraps a page of rows in the response envelope.
func BuildResponse(host string, params Params, total int, rows []model.ToothVersion) Response {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Project(host, row))
	}
	return Response{
		APIVersion: APIVersion,
		Data: Page{
			PageIndex:  params.Page,
			TotalPages: TotalPages(total, params.PerPage),
			Items:      items,
		},
	}
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
