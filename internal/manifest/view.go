package manifest

// Manifest is the read-only view of a validated tooth.json document.
type Manifest struct {
	toothRepoPath string
	version       string
	name          string
	description   string
	author        string
	tags          []string
	avatarURL     *string
}

func newManifest(raw *RawManifest) *Manifest {
	m := &Manifest{
		toothRepoPath: *raw.Tooth,
		version:       *raw.Version,
		name:          *raw.Info.Name,
		description:   *raw.Info.Description,
		author:        *raw.Info.Author,
		tags:          append([]string{}, (*raw.Info.Tags)...),
	}
	// An empty avatar_url is treated the same as an absent one
	if raw.Info.AvatarURL != nil && *raw.Info.AvatarURL != "" {
		avatarURL := *raw.Info.AvatarURL
		m.avatarURL = &avatarURL
	}
	return m
}

// ToothRepoPath returns the "tooth" property, e.g. "github.com/owner/repo".
func (m *Manifest) ToothRepoPath() string { return m.toothRepoPath }

// Version returns the semantic version without a "v" prefix.
func (m *Manifest) Version() string { return m.version }

// Name returns info.name.
func (m *Manifest) Name() string { return m.name }

// Description returns info.description.
func (m *Manifest) Description() string { return m.description }

// Author returns info.author.
func (m *Manifest) Author() string { return m.author }

// Tags returns a copy of the manifest's tags.
func (m *Manifest) Tags() []string {
	return append([]string{}, m.tags...)
}

// AvatarURL returns the avatar URL and whether one was provided.
func (m *Manifest) AvatarURL() (string, bool) {
	if m.avatarURL == nil {
		return "", false
	}
	return *m.avatarURL, true
}

// AvatarURLPtr returns a fresh pointer to the avatar URL, or nil when absent.
func (m *Manifest) AvatarURLPtr() *string {
	if m.avatarURL == nil {
		return nil
	}
	avatarURL := *m.avatarURL
	return &avatarURL
}
