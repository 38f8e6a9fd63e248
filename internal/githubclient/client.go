// Package githubclient wraps the GitHub API for repository search and
// README retrieval.
//
// Rate-limit responses are recovered internally: the client blocks until the
// provider-declared reset time plus a safety margin and retries the same
// request, so rate limiting never surfaces to callers. Network-level errors
// are retried after a fixed short delay up to a bound, then fail with
// ErrTransientFetch.
package githubclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrTransientFetch is returned after bounded retries of network-level
// errors are exhausted.
var ErrTransientFetch = errors.New("transient fetch failure")

// Repository is the search-time metadata for one candidate repository.
// Identity is FullName; records are never mutated after creation.
type Repository struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	SizeKB      int    `json:"size_kb"`
}

// FileEntry is one entry of a repository's top-level content listing.
type FileEntry struct {
	Name string
	Type string
	Path string
}

// Config holds client configuration.
type Config struct {
	// Token is the bearer token for the GitHub API.
	Token string

	// PerPage is the search page size. Default: 50.
	PerPage int

	// MaxPages is the number of search pages requested per keyword
	// before giving up on more results. Default: 1.
	MaxPages int

	// KeywordCooldown is the pause between per-keyword search batches.
	// Default: 10s.
	KeywordCooldown time.Duration

	// RetryDelay is the fixed delay between transient-error retries.
	// Default: 5s.
	RetryDelay time.Duration

	// MaxRetries bounds transient-error retries. Default: 3.
	MaxRetries int

	// Timeout is the per-HTTP-call timeout. The rate-limit wait is exempt:
	// it happens between calls, not within one. Default: 10s.
	Timeout time.Duration

	// BaseURL overrides the API base URL (tests, GitHub Enterprise).
	BaseURL string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.PerPage == 0 {
		c.PerPage = 50
	}
	if c.MaxPages == 0 {
		c.MaxPages = 1
	}
	if c.KeywordCooldown == 0 {
		c.KeywordCooldown = 10 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Client is a rate-limit-safe GitHub API client.
type Client struct {
	gh     *github.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a Client authenticated with the configured token.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github token not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = cfg.Timeout

	gh := github.NewClient(tc)
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		gh.BaseURL = base
	}

	return &Client{gh: gh, cfg: cfg, logger: logger}, nil
}

// Search returns one page of repository search results for a keyword.
// Forks are excluded from the query.
func (c *Client) Search(ctx context.Context, keyword string, page int) ([]Repository, error) {
	opts := &github.SearchOptions{
		Sort:  "updated",
		Order: "desc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: c.cfg.PerPage,
		},
	}

	var result *github.RepositoriesSearchResult
	err := c.withRetry(ctx, "search repositories", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.gh.Search.Repositories(ctx, keyword+" fork:false", opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(result.Repositories))
	for _, item := range result.Repositories {
		repos = append(repos, Repository{
			FullName:    item.GetFullName(),
			Description: item.GetDescription(),
			Stars:       item.GetStargazersCount(),
			SizeKB:      item.GetSize(),
		})
	}
	return repos, nil
}

// SearchAll searches successive pages for every keyword, deduplicates by
// full name across keywords, and sleeps a fixed cooldown between keywords
// to stay under abuse-detection thresholds. Pagination per keyword stops at
// MaxPages or at the first empty page.
func (c *Client) SearchAll(ctx context.Context, keywords []string) ([]Repository, error) {
	var repos []Repository
	seen := make(map[string]bool)

	for i, keyword := range keywords {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.KeywordCooldown); err != nil {
				return nil, err
			}
		}
		for page := 1; page <= c.cfg.MaxPages; page++ {
			items, err := c.Search(ctx, keyword, page)
			if err != nil {
				return nil, fmt.Errorf("searching %q: %w", keyword, err)
			}
			if len(items) == 0 {
				break
			}
			for _, repo := range items {
				if seen[repo.FullName] {
					continue
				}
				seen[repo.FullName] = true
				repos = append(repos, repo)
			}
		}
		c.logger.Debug("keyword search complete",
			zap.String("keyword", keyword),
			zap.Int("total_repos", len(repos)),
		)
	}
	return repos, nil
}

// ListFiles lists a repository's top-level contents. A missing or otherwise
// unreadable repository yields an empty listing, not an error: per-candidate
// absence must not abort a corpus build.
func (c *Client) ListFiles(ctx context.Context, fullName string) ([]FileEntry, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var listing []*github.RepositoryContent
	err = c.withRetry(ctx, "list contents", func() (*github.Response, error) {
		_, dir, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, "", nil)
		listing = dir
		return resp, err
	})
	if err != nil {
		if isAbsence(err) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]FileEntry, 0, len(listing))
	for _, entry := range listing {
		entries = append(entries, FileEntry{
			Name: entry.GetName(),
			Type: entry.GetType(),
			Path: entry.GetPath(),
		})
	}
	return entries, nil
}

// FileContent fetches and decodes one file. The boolean reports presence:
// 404 and other non-rate-limit response errors are "absent", not fatal.
func (c *Client) FileContent(ctx context.Context, fullName, path string) (string, bool, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return "", false, err
	}

	var file *github.RepositoryContent
	err = c.withRetry(ctx, "get file content", func() (*github.Response, error) {
		f, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
		file = f
		return resp, err
	})
	if err != nil {
		if isAbsence(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if file == nil {
		return "", false, nil
	}

	content, err := file.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("decoding content of %s/%s: %w", fullName, path, err)
	}
	return content, true, nil
}

// withRetry runs one API operation, absorbing rate limits and retrying
// transient errors.
//
// Rate-limit exhaustion blocks until the provider-declared reset plus a one
// second margin and retries without counting against the retry budget.
// Transient errors retry after RetryDelay up to MaxRetries, then fail with
// ErrTransientFetch. Non-retryable response errors return as-is for the
// caller to classify.
func (c *Client) withRetry(ctx context.Context, op string, call func() (*github.Response, error)) error {
	attempts := 0
	for {
		resp, err := call()
		if err == nil {
			return nil
		}

		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			wait := time.Until(rateErr.Rate.Reset.Time) + time.Second
			if wait < time.Second {
				wait = time.Second
			}
			c.logger.Warn("rate limit hit, waiting for reset",
				zap.String("op", op),
				zap.Duration("wait", wait),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		var abuseErr *github.AbuseRateLimitError
		if errors.As(err, &abuseErr) {
			wait := time.Minute
			if abuseErr.RetryAfter != nil {
				wait = *abuseErr.RetryAfter + time.Second
			}
			c.logger.Warn("secondary rate limit hit, backing off",
				zap.String("op", op),
				zap.Duration("wait", wait),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if !isTransient(err, resp) {
			return err
		}

		attempts++
		if attempts > c.cfg.MaxRetries {
			return fmt.Errorf("%s after %d attempts: %w: %v", op, attempts, ErrTransientFetch, err)
		}
		c.logger.Debug("transient error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

// isTransient reports whether an error is worth retrying: network-level
// failures (no HTTP response at all) and 5xx/429 server responses.
func isTransient(err error, resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		var respErr *github.ErrorResponse
		// An ErrorResponse without a Response attached should not loop.
		return !errors.As(err, &respErr)
	}
	code := resp.Response.StatusCode
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// isAbsence reports whether a response error means "no such content" rather
// than a failure: 404 and any other non-rate-limit, non-transient response.
func isAbsence(err error) bool {
	if errors.Is(err, ErrTransientFetch) {
		return false
	}
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr)
}

func splitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full name %q", fullName)
	}
	return parts[0], parts[1], nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
