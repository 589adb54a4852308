package syncer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenk/backoff"
	gh "github.com/google/go-github/v80/github"
	"github.com/hashicorp/go-hclog"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// dnsRefreshInterval is how often cached host lookups are refreshed.
	dnsRefreshInterval = 5 * time.Minute

	// breakerThreshold is the number of consecutive failures that opens the breaker.
	breakerThreshold = 5

	perPage = 100
)

// GitHubOptions configures a GitHubClient.
type GitHubOptions struct {
	// Token authenticates requests; empty means anonymous access.
	Token string
	// BaseURL overrides the API root, e.g. for an enterprise host or a test server.
	BaseURL string
	// RequestsPerSecond bounds the request rate; zero uses DefaultRequestsPerSecond
	// and a negative value disables throttling.
	RequestsPerSecond float64
	// Timeout bounds each HTTP request; zero uses DefaultTimeout.
	Timeout time.Duration
	Logger  hclog.Logger
}

// GitHubClient implements Upstream on top of go-github. Every call waits on the
// rate limiter and runs inside a circuit breaker; host lookups are cached.
type GitHubClient struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
	breaker     *circuit.Breaker
	breakerName string
	resolver    *dnscache.Resolver
	logger      hclog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewGitHubClient creates a client. Call Close to stop the DNS refresher.
func NewGitHubClient(opts GitHubOptions) (*GitHubClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = DefaultRequestsPerSecond
	}

	c := &GitHubClient{
		rateLimiter: NewRateLimiter(rps),
		breaker:     newBreaker(),
		breakerName: "github",
		resolver:    &dnscache.Resolver{},
		logger:      logger.Named("github"),
		stop:        make(chan struct{}),
	}
	go c.refreshDNS()

	base := &http.Client{
		Timeout:   timeout,
		Transport: newCachedTransport(c.resolver),
	}
	httpClient := base
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		httpClient.Timeout = timeout
	}

	c.gh = gh.NewClient(httpClient)
	if opts.BaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parse base URL %q: %w", opts.BaseURL, err)
		}
		c.gh.BaseURL = baseURL
		c.breakerName = baseURL.Host
	}

	return c, nil
}

func newBreaker() *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(breakerThreshold),
	})
}

func newCachedTransport(resolver *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
		},
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (c *GitHubClient) refreshDNS() {
	ticker := time.NewTicker(dnsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.resolver.Refresh(true)
		case <-c.stop:
			return
		}
	}
}

// Close stops background work. It is safe to call more than once.
func (c *GitHubClient) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// BreakerState reports the circuit breaker state for health checks.
func (c *GitHubClient) BreakerState() map[string]string {
	state := "closed"
	if c.breaker.Tripped() {
		state = "open"
	}
	return map[string]string{c.breakerName: state}
}

// RateLimiter returns the client's rate limiter.
func (c *GitHubClient) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// call waits for the rate limiter and runs fn inside the breaker. Not-found
// responses are returned to the caller without counting as failures.
func (c *GitHubClient) call(ctx context.Context, operation string, fn func() (*gh.Response, error)) error {
	if !c.breaker.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", c.breakerName, ErrUpstreamDown)
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var notFound error
	err := c.breaker.Call(func() error {
		resp, err := fn()
		if resp != nil && resp.Response != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err == nil {
			return nil
		}
		wrapped := c.wrapError(err, operation)
		if IsNotFound(wrapped) {
			notFound = wrapped
			return nil
		}
		return wrapped
	}, 0)

	if errors.Is(err, circuit.ErrBreakerOpen) {
		return fmt.Errorf("circuit breaker open for %s: %w", c.breakerName, ErrUpstreamDown)
	}
	if err != nil {
		return err
	}
	return notFound
}

// SearchRepositories implements Upstream.
func (c *GitHubClient) SearchRepositories(ctx context.Context, topic string) ([]Repository, error) {
	opts := &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	query := "topic:" + topic

	var repos []Repository
	for {
		var result *gh.RepositoriesSearchResult
		var resp *gh.Response
		err := c.call(ctx, "search repositories", func() (*gh.Response, error) {
			var err error
			result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range result.Repositories {
			repos = append(repos, Repository{
				Owner:     r.GetOwner().GetLogin(),
				Name:      r.GetName(),
				StarCount: r.GetStargazersCount(),
				CreatedAt: r.GetCreatedAt().Time.UTC(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("searched repositories", "topic", topic, "count", len(repos))
	return repos, nil
}

// GetRepository implements Upstream.
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (Repository, error) {
	var repo *gh.Repository
	err := c.call(ctx, "get repository", func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return Repository{}, err
	}
	return Repository{
		Owner:     repo.GetOwner().GetLogin(),
		Name:      repo.GetName(),
		StarCount: repo.GetStargazersCount(),
		CreatedAt: repo.GetCreatedAt().Time.UTC(),
	}, nil
}

// ListReleases implements Upstream.
func (c *GitHubClient) ListReleases(ctx context.Context, owner, name string) ([]Release, error) {
	opts := &gh.ListOptions{PerPage: perPage}

	var releases []Release
	for {
		var page []*gh.RepositoryRelease
		var resp *gh.Response
		err := c.call(ctx, "list releases", func() (*gh.Response, error) {
			var err error
			page, resp, err = c.gh.Repositories.ListReleases(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range page {
			published := r.GetPublishedAt().Time
			if published.IsZero() {
				published = r.GetCreatedAt().Time
			}
			releases = append(releases, Release{
				TagName:     r.GetTagName(),
				Draft:       r.GetDraft(),
				Prerelease:  r.GetPrerelease(),
				PublishedAt: published.UTC(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return releases, nil
}

// FetchManifest implements Upstream.
func (c *GitHubClient) FetchManifest(ctx context.Context, owner, name, ref string) ([]byte, error) {
	var content *gh.RepositoryContent
	err := c.call(ctx, "get contents", func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		content, _, resp, err = c.gh.Repositories.GetContents(ctx, owner, name, ManifestPath,
			&gh.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("%s at %s is a directory: %w", ManifestPath, ref, ErrNotFound)
	}

	decoded, err := content.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return []byte(decoded), nil
}

// wrapError converts go-github errors to the package's error types.
func (c *GitHubClient) wrapError(err error, operation string) error {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
