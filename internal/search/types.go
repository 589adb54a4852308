package search

// APIVersion is reported in every search response envelope.
const APIVersion = "1"

// TimestampLayout renders instants as UTC ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Response is the search endpoint's envelope.
type Response struct {
	APIVersion string `json:"apiVersion"`
	Data       Page   `json:"data"`
}

// Page is one page of search results.
type Page struct {
	PageIndex  int    `json:"pageIndex"`
	TotalPages int    `json:"totalPages"`
	Items      []Item `json:"items"`
}

// Item is the public projection of a latest catalog entry.
type Item struct {
	RepoPath                string   `json:"repoPath"`
	RepoOwner               string   `json:"repoOwner"`
	RepoName                string   `json:"repoName"`
	LatestVersion           string   `json:"latestVersion"`
	LatestVersionReleasedAt string   `json:"latestVersionReleasedAt"`
	Name                    string   `json:"name"`
	Description             string   `json:"description"`
	Author                  string   `json:"author"`
	Tags                    []string `json:"tags"`
	AvatarURL               *string  `json:"avatarUrl"`
	RepoCreatedAt           string   `json:"repoCreatedAt"`
	StarCount               int      `json:"starCount"`
}
