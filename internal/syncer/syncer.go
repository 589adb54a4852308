package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenk/backoff"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/lippkg/lip-index/internal/jobs"
	"github.com/lippkg/lip-index/internal/manifest"
	"github.com/lippkg/lip-index/model"
	"github.com/lippkg/lip-index/services"
)

// Options configures a Syncer.
type Options struct {
	Host     string
	Topic    string
	Interval time.Duration
	Expire   time.Duration
	Workers  int

	// RetryInitial and RetryMaxRetries shape the per-repository backoff.
	RetryInitial    time.Duration
	RetryMaxRetries uint64
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		Host:            "github.com",
		Topic:           "lip-tooth",
		Interval:        60 * time.Second,
		Expire:          600 * time.Second,
		Workers:         4,
		RetryInitial:    time.Second,
		RetryMaxRetries: 3,
	}
}

// Report summarises one synchronization round.
type Report struct {
	ReposSeen         int
	ReposSkipped      int
	ReposSynced       int
	ReposFailed       int
	VersionsUpserted  int
	ManifestsRejected int
}

// RepoResult is the outcome of refreshing one repository.
type RepoResult struct {
	Upserted int
	Rejected int
	Latest   string
}

// breakerReporter is implemented by upstreams that expose circuit breaker state.
type breakerReporter interface {
	BreakerState() map[string]string
}

// Syncer mirrors validated tooth releases from the upstream host into the catalog.
type Syncer struct {
	upstream Upstream
	catalog  services.CatalogWriter
	jobs     *jobs.Manager
	state    *RefreshState
	opts     Options
	logger   hclog.Logger
	now      func() time.Time
	inFlight atomic.Bool
}

// New creates a Syncer. manager may be nil when runs are not tracked as jobs.
func New(upstream Upstream, catalog services.CatalogWriter, manager *jobs.Manager, state *RefreshState, opts Options, logger hclog.Logger) (*Syncer, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream cannot be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if opts.Host == "" || opts.Topic == "" {
		return nil, fmt.Errorf("host and topic are required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if state == nil {
		state, _ = LoadState("")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Syncer{
		upstream: upstream,
		catalog:  catalog,
		jobs:     manager,
		state:    state,
		opts:     opts,
		logger:   logger.Named("syncer"),
		now:      time.Now,
	}, nil
}

// BreakerState reports upstream circuit breaker states, if the upstream has any.
func (s *Syncer) BreakerState() map[string]string {
	if r, ok := s.upstream.(breakerReporter); ok {
		return r.BreakerState()
	}
	return map[string]string{}
}

// Run triggers a sync round immediately and then every Interval until ctx is done.
// A round still in flight when the next tick arrives is not overlapped.
func (s *Syncer) Run(ctx context.Context) error {
	if s.jobs == nil {
		return fmt.Errorf("syncer has no job manager")
	}
	s.logger.Info("synchronizer started", "topic", s.opts.Topic, "interval", s.opts.Interval, "expire", s.opts.Expire)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Trigger(); err != nil {
			s.logger.Debug("sync round not started", "reason", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("synchronizer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Trigger starts a sync round as a job and returns its ID.
func (s *Syncer) Trigger() (string, error) {
	if s.jobs == nil {
		return "", fmt.Errorf("syncer has no job manager")
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", fmt.Errorf("a sync round is already running")
	}

	jobID := s.jobs.CreateJob(model.JobTypeSyncAll, s.opts.Topic, map[string]string{"host": s.opts.Host})
	err := s.jobs.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		defer s.inFlight.Store(false)

		report, err := s.SyncOnce(ctx, func(done, total int) {
			s.jobs.UpdateJobProgress(jobID, done, total, "repositories processed")
		})
		s.jobs.SetJobMetadata(jobID, "repos_synced", strconv.Itoa(report.ReposSynced))
		s.jobs.SetJobMetadata(jobID, "repos_failed", strconv.Itoa(report.ReposFailed))
		s.jobs.SetJobMetadata(jobID, "versions_upserted", strconv.Itoa(report.VersionsUpserted))
		s.jobs.SetJobMetadata(jobID, "manifests_rejected", strconv.Itoa(report.ManifestsRejected))
		return err
	})
	if err != nil {
		s.inFlight.Store(false)
		return "", err
	}
	return jobID, nil
}

// SyncOnce runs one synchronization round. progress, if not nil, is called after
// each repository with the number handled so far and the number due.
// A repository that keeps failing is logged and counted; it does not fail the round.
func (s *Syncer) SyncOnce(ctx context.Context, progress func(done, total int)) (Report, error) {
	var report Report

	repos, err := s.upstream.SearchRepositories(ctx, s.opts.Topic)
	if err != nil {
		return report, fmt.Errorf("searching repositories: %w", err)
	}
	report.ReposSeen = len(repos)

	now := s.now()
	due := make([]Repository, 0, len(repos))
	for _, repo := range repos {
		if s.state.Fresh(repo.Key(), now, s.opts.Expire) {
			report.ReposSkipped++
			continue
		}
		due = append(due, repo)
	}
	s.logger.Debug("sync round planned", "seen", len(repos), "due", len(due))

	var mu sync.Mutex
	done := 0
	if progress != nil {
		progress(0, len(due))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, repo := range due {
		g.Go(func() error {
			result, err := s.syncRepoWithRetry(gctx, repo)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.ReposFailed++
				s.recordRepoFailed()
				s.logger.Error("failed to sync repository", "repo", repo.Key(), "error", err)
			} else {
				report.ReposSynced++
				report.VersionsUpserted += result.Upserted
				report.ManifestsRejected += result.Rejected
				s.recordRepoSynced(result)
				s.state.MarkRefreshed(repo.Key(), s.now())
			}
			done++
			if progress != nil {
				progress(done, len(due))
			}
			return nil
		})
	}
	waitErr := g.Wait()

	if err := s.state.Save(); err != nil {
		s.logger.Error("failed to save refresh state", "error", err)
	}

	s.logger.Info("sync round finished",
		"seen", report.ReposSeen,
		"skipped", report.ReposSkipped,
		"synced", report.ReposSynced,
		"failed", report.ReposFailed,
		"upserted", report.VersionsUpserted,
		"rejected", report.ManifestsRejected)

	if waitErr != nil {
		return report, waitErr
	}
	return report, ctx.Err()
}

func (s *Syncer) recordRepoSynced(result RepoResult) {
	if s.jobs != nil {
		s.jobs.Metrics().RecordRepoSynced(result.Upserted, result.Rejected)
	}
}

func (s *Syncer) recordRepoFailed() {
	if s.jobs != nil {
		s.jobs.Metrics().RecordRepoFailed()
	}
}

// SyncNamed refreshes a single repository regardless of its refresh state.
func (s *Syncer) SyncNamed(ctx context.Context, owner, name string) (RepoResult, error) {
	repo, err := s.upstream.GetRepository(ctx, owner, name)
	if err != nil {
		return RepoResult{}, fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
	}

	result, err := s.syncRepoWithRetry(ctx, repo)
	if err != nil {
		s.recordRepoFailed()
		return result, err
	}
	s.recordRepoSynced(result)
	s.state.MarkRefreshed(repo.Key(), s.now())
	if err := s.state.Save(); err != nil {
		s.logger.Error("failed to save refresh state", "error", err)
	}
	return result, nil
}

// syncRepoWithRetry retries transient failures of SyncRepo with exponential backoff.
func (s *Syncer) syncRepoWithRetry(ctx context.Context, repo Repository) (RepoResult, error) {
	expBackoff := backoff.NewExponentialBackOff()
	if s.opts.RetryInitial > 0 {
		expBackoff.InitialInterval = s.opts.RetryInitial
	}
	expBackoff.MaxInterval = 30 * time.Second
	expBackoff.Reset()

	var result RepoResult
	err := backoff.RetryNotify(func() error {
		var err error
		result, err = s.SyncRepo(ctx, repo)
		if err != nil && (isPermanent(err) || errors.Is(err, ErrUpstreamDown) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(expBackoff, s.opts.RetryMaxRetries), ctx), func(err error, next time.Duration) {
		s.logger.Warn("retrying repository", "repo", repo.Key(), "error", err, "retry_in", next)
	})
	return result, err
}

// SyncRepo refreshes one repository: every non-draft release whose manifest is
// valid and matches the repository and tag is upserted, then the latest flag is
// moved to the highest stored version.
func (s *Syncer) SyncRepo(ctx context.Context, repo Repository) (RepoResult, error) {
	var result RepoResult
	logger := s.logger.With("repo", repo.Key())

	releases, err := s.upstream.ListReleases(ctx, repo.Owner, repo.Name)
	if err != nil {
		return result, fmt.Errorf("listing releases: %w", err)
	}

	for _, release := range releases {
		if release.Draft {
			continue
		}

		entry, err := s.entryForRelease(ctx, repo, release)
		if err != nil {
			if errors.Is(err, errRejected) {
				result.Rejected++
				logger.Warn("skipping release", "tag", release.TagName, "reason", err)
				continue
			}
			return result, err
		}

		if err := s.catalog.UpsertVersion(ctx, entry); err != nil {
			return result, fmt.Errorf("storing %s@%s: %w", repo.Key(), entry.Version, err)
		}
		result.Upserted++
		logger.Trace("stored version", "version", entry.Version)
	}

	latest, err := s.refreshLatest(ctx, repo)
	if err != nil {
		return result, err
	}
	result.Latest = latest
	return result, nil
}

var errRejected = errors.New("release rejected")

func (s *Syncer) entryForRelease(ctx context.Context, repo Repository, release Release) (model.ToothVersion, error) {
	data, err := s.upstream.FetchManifest(ctx, repo.Owner, repo.Name, release.TagName)
	if err != nil {
		if IsNotFound(err) {
			return model.ToothVersion{}, fmt.Errorf("%w: no %s at %s", errRejected, ManifestPath, release.TagName)
		}
		return model.ToothVersion{}, fmt.Errorf("fetching manifest at %s: %w", release.TagName, err)
	}

	m, err := manifest.Validate(data)
	if err != nil {
		return model.ToothVersion{}, fmt.Errorf("%w: %v", errRejected, err)
	}

	expectedPath := s.opts.Host + "/" + repo.Owner + "/" + repo.Name
	if !strings.EqualFold(m.ToothRepoPath(), expectedPath) {
		return model.ToothVersion{}, fmt.Errorf("%w: tooth %s does not match repository %s", errRejected, m.ToothRepoPath(), expectedPath)
	}
	tagVersion := strings.TrimPrefix(release.TagName, "v")
	if m.Version() != tagVersion {
		return model.ToothVersion{}, fmt.Errorf("%w: version %s does not match tag %s", errRejected, m.Version(), release.TagName)
	}

	return model.ToothVersion{
		RepoOwner:     repo.Owner,
		RepoName:      repo.Name,
		Version:       m.Version(),
		Name:          m.Name(),
		Description:   m.Description(),
		Author:        m.Author(),
		Tags:          m.Tags(),
		AvatarURL:     m.AvatarURLPtr(),
		StarCount:     repo.StarCount,
		RepoCreatedAt: repo.CreatedAt,
		ReleasedAt:    release.PublishedAt,
	}, nil
}

// refreshLatest flags the highest stored semantic version as latest.
func (s *Syncer) refreshLatest(ctx context.Context, repo Repository) (string, error) {
	versions, err := s.catalog.ListVersions(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", fmt.Errorf("listing stored versions: %w", err)
	}

	latest := HighestVersion(versions)
	if latest == "" {
		return "", nil
	}
	if err := s.catalog.SetLatest(ctx, repo.Owner, repo.Name, latest); err != nil {
		return "", fmt.Errorf("setting latest %s@%s: %w", repo.Key(), latest, err)
	}
	return latest, nil
}

// HighestVersion returns the greatest semantic version among entries, or "".
// Pre-releases are only chosen when no stable version exists.
func HighestVersion(entries []model.ToothVersion) string {
	best, bestPre := "", ""
	for _, e := range entries {
		if !manifest.IsSemVer(e.Version) {
			continue
		}
		v := "v" + e.Version
		if semver.Prerelease(v) != "" {
			if bestPre == "" || semver.Compare(v, "v"+bestPre) > 0 {
				bestPre = e.Version
			}
			continue
		}
		if best == "" || semver.Compare(v, "v"+best) > 0 {
			best = e.Version
		}
	}
	if best == "" {
		return bestPre
	}
	return best
}
