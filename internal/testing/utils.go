// Package testing provides fixtures and helpers shared by the catalog tests.
package testing

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
	"github.com/lippkg/lip-index/store"
)

// BaseTime is the reference instant fixtures are dated from.
var BaseTime = time.Date(2023, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewEntry builds a latest catalog entry with deterministic defaults.
func NewEntry(owner, name, version string, starCount int) model.ToothVersion {
	return model.ToothVersion{
		RepoOwner:     owner,
		RepoName:      name,
		Version:       version,
		Name:          name,
		Description:   "The " + name + " tooth",
		Author:        owner,
		Tags:          []string{},
		StarCount:     starCount,
		RepoCreatedAt: BaseTime,
		ReleasedAt:    BaseTime.Add(24 * time.Hour),
		IsLatest:      true,
	}
}

// SampleCatalog returns a small catalog covering every searchable field.
// Only the last entry is not latest.
func SampleCatalog() []model.ToothVersion {
	avatar := "https://example.com/lse.png"

	lse := NewEntry("LiteLDev", "LeviLamina", "1.0.0", 900)
	lse.Name = "LeviLamina"
	lse.Description = "A lightweight modding framework"
	lse.Author = "LiteLDev"
	lse.Tags = []string{"framework", "mod-loader"}
	lse.AvatarURL = &avatar
	lse.RepoCreatedAt = BaseTime.Add(-720 * time.Hour)
	lse.ReleasedAt = BaseTime.Add(72 * time.Hour)

	legacy := NewEntry("LiteLDev", "LegacyScriptEngine", "0.5.0", 120)
	legacy.Name = "Legacy Script Engine"
	legacy.Description = "Runs legacy plugins"
	legacy.Tags = []string{"framework", "scripting"}
	legacy.RepoCreatedAt = BaseTime.Add(-240 * time.Hour)
	legacy.ReleasedAt = BaseTime.Add(48 * time.Hour)

	util := NewEntry("acme", "toolbox", "2.1.0", 15)
	util.Name = "Toolbox"
	util.Description = "Assorted helpers for scripting"
	util.Author = "Wile E. Coyote"
	util.Tags = []string{"utility"}
	util.RepoCreatedAt = BaseTime
	util.ReleasedAt = BaseTime.Add(96 * time.Hour)

	utilOld := util.Clone()
	utilOld.Version = "2.0.0"
	utilOld.ReleasedAt = BaseTime.Add(24 * time.Hour)
	utilOld.IsLatest = false

	return []model.ToothVersion{lse, legacy, util, utilOld}
}

// NewMemoryCatalog returns an in-memory catalog holding entries exactly as given.
func NewMemoryCatalog(t *testing.T, entries ...model.ToothVersion) *store.MemoryStore {
	t.Helper()
	catalog := store.NewMemoryStore()
	catalog.Put(entries...)
	return catalog
}

// NewSQLiteCatalog opens a SQLite catalog in a temp dir and loads entries through the
// writer interface. Latest flags are applied with SetLatest, so at most one latest row
// per repository survives.
func NewSQLiteCatalog(t *testing.T, entries ...model.ToothVersion) *store.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	catalog, err := store.OpenSQLite(context.Background(), path, hclog.NewNullLogger())
	require.NoError(t, err, "Failed to open SQLite catalog")
	t.Cleanup(func() {
		_ = catalog.Close()
	})

	LoadCatalog(t, catalog, entries...)
	return catalog
}

// LoadCatalog writes entries through a CatalogWriter.
func LoadCatalog(t *testing.T, catalog services.CatalogWriter, entries ...model.ToothVersion) {
	t.Helper()
	ctx := context.Background()

	for _, e := range entries {
		require.NoError(t, catalog.UpsertVersion(ctx, e), "Failed to upsert %s@%s", e.RepoKey(), e.Version)
	}
	for _, e := range entries {
		if e.IsLatest {
			require.NoError(t, catalog.SetLatest(ctx, e.RepoOwner, e.RepoName, e.Version))
		}
	}
}

// RepoKeys returns the "<owner>/<name>" of every entry, in order.
func RepoKeys(entries []model.ToothVersion) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.RepoKey()
	}
	return keys
}

// AssertAllLatest verifies that every entry carries the latest flag.
func AssertAllLatest(t *testing.T, entries []model.ToothVersion) {
	t.Helper()
	for _, e := range entries {
		assert.True(t, e.IsLatest, "%s@%s should be latest", e.RepoKey(), e.Version)
	}
}

// SyncBuffer is a goroutine-safe buffer for capturing log output.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewCaptureLogger returns a trace-level logger writing into the returned buffer.
func NewCaptureLogger() (hclog.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "test",
		Level:  hclog.Trace,
		Output: buf,
	})
	return logger, buf
}

// JobPollingOptions configures job polling behavior
type JobPollingOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultJobPollingOptions returns sensible defaults for job polling
func DefaultJobPollingOptions() JobPollingOptions {
	return JobPollingOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

// WaitForJob polls a job until it reaches a terminal status or times out
func WaitForJob(t *testing.T, jobManager services.JobManager, jobID string, opts JobPollingOptions) *model.Job {
	t.Helper()
	timeout := time.After(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Job %s did not finish within %v timeout", jobID, opts.Timeout)
			return nil
		case <-ticker.C:
			job, err := jobManager.GetJob(jobID)
			require.NoError(t, err, "Failed to get job status")
			if job.IsTerminal() {
				return job
			}
		}
	}
}
