package model

import (
	"time"
)

// ToothVersion is one catalog entry: a single published version of one tooth.
// The (RepoOwner, RepoName) pair identifies the upstream repository; Version is the
// semantic version of the release the entry was built from.
//
// At most one ToothVersion per repository should have IsLatest set. The synchronizer
// maintains that eventually; readers must tolerate short windows where it does not hold.
type ToothVersion struct {
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
	Version   string `json:"version"`

	Name        string   `json:"name"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	AvatarURL   *string  `json:"avatarUrl"`

	StarCount     int       `json:"starCount"`
	RepoCreatedAt time.Time `json:"repoCreatedAt"`
	ReleasedAt    time.Time `json:"releasedAt"`

	IsLatest bool `json:"isLatest"`
}

// RepoKey returns "<owner>/<name>", the identity of the upstream repository.
func (tv ToothVersion) RepoKey() string {
	return tv.RepoOwner + "/" + tv.RepoName
}

// HasTag reports whether tag is one of the entry's tags (exact match).
func (tv ToothVersion) HasTag(tag string) bool {
	for _, t := range tv.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so callers can hand entries out without sharing slices.
func (tv ToothVersion) Clone() ToothVersion {
	clone := tv
	if tv.Tags != nil {
		clone.Tags = append([]string(nil), tv.Tags...)
	}
	if tv.AvatarURL != nil {
		avatarURL := *tv.AvatarURL
		clone.AvatarURL = &avatarURL
	}
	return clone
}
