// Package github implements the hosting.Client interface for GitHub (both
// github.com and GitHub Enterprise Server). It authenticates every call with
// a static token via the REST API v3 and shares a Redis-backed rate budget
// across worker processes so the fleet collectively respects the remote
// limit.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/modhub/modhub/internal/hosting"
	"github.com/modhub/modhub/internal/telemetry"
)

const defaultAPIURL = "https://api.github.com"

// rateKey is the shared budget key; all workers drain the same bucket.
const rateKey = "hosting:github:budget"

// Settings configures a GitHub client.
type Settings struct {
	// Token is the personal access token or installation token.
	Token string
	// BaseURL overrides the API endpoint (tests, GitHub Enterprise). For
	// Enterprise installs pass the instance root; "/api/v3" is appended.
	BaseURL string
	// RequestTimeout bounds each call. Zero means 30 seconds.
	RequestTimeout time.Duration
	// RequestsPerMinute is the shared call budget. Zero disables limiting.
	RequestsPerMinute int
	// RateRedis carries the shared budget when limiting is enabled.
	RateRedis *redis.Client
}

// Client implements hosting.Client for GitHub.
type Client struct {
	apiURL     string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *redis_rate.Limiter
	budget     redis_rate.Limit
}

// NewClient creates a GitHub hosting client.
func NewClient(settings *Settings) (*Client, error) {
	if settings.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}

	apiURL := defaultAPIURL
	if settings.BaseURL != "" {
		apiURL = strings.TrimSuffix(settings.BaseURL, "/")
		if !strings.HasSuffix(apiURL, "/api/v3") && !strings.Contains(apiURL, "api.github.com") {
			// Enterprise server roots serve the REST API under /api/v3;
			// test servers and api.github.com are used as-is.
			if !strings.Contains(apiURL, "127.0.0.1") && !strings.Contains(apiURL, "localhost") {
				apiURL += "/api/v3"
			}
		}
	}

	timeout := settings.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: settings.Token})
	c := &Client{
		apiURL:     apiURL,
		httpClient: oauth2.NewClient(context.Background(), src),
		timeout:    timeout,
	}
	if settings.RequestsPerMinute > 0 && settings.RateRedis != nil {
		c.limiter = redis_rate.NewLimiter(settings.RateRedis)
		c.budget = redis_rate.PerMinute(settings.RequestsPerMinute)
	}
	return c, nil
}

// GetRepository gets metadata for a repository ("owner/name").
func (c *Client) GetRepository(ctx context.Context, repoID string) (*hosting.Repository, error) {
	var gh githubRepo
	err := c.do(ctx, "get_repository", http.MethodGet, "/repos/"+repoID, nil, &gh, hosting.ErrRepositoryNotFound)
	if err != nil {
		return nil, err
	}
	return &hosting.Repository{
		ID:            strings.ToLower(gh.FullName),
		Name:          gh.Name,
		Owner:         gh.Owner.Login,
		Description:   gh.Description,
		DefaultBranch: gh.DefaultBranch,
		HTMLURL:       gh.HTMLURL,
		Stargazers:    gh.StargazersCount,
		Forks:         gh.ForksCount,
		PushedAt:      gh.PushedAt,
	}, nil
}

// GetUser gets a platform account by login.
func (c *Client) GetUser(ctx context.Context, login string) (*hosting.User, error) {
	var gh struct {
		Login   string `json:"login"`
		HTMLURL string `json:"html_url"`
	}
	err := c.do(ctx, "get_user", http.MethodGet, "/users/"+url.PathEscape(login), nil, &gh, hosting.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	return &hosting.User{Login: gh.Login, HTMLURL: gh.HTMLURL}, nil
}

// GetLatestRelease gets the most recent published release. Repositories with
// no releases return hosting.ErrReleaseNotFound, which callers treat as a
// normal condition.
func (c *Client) GetLatestRelease(ctx context.Context, repoID string) (*hosting.Release, error) {
	var gh struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	err := c.do(ctx, "get_latest_release", http.MethodGet, "/repos/"+repoID+"/releases/latest", nil, &gh, hosting.ErrReleaseNotFound)
	if err != nil {
		return nil, err
	}
	return &hosting.Release{TagName: gh.TagName, URL: gh.HTMLURL}, nil
}

// ListContents lists a directory of the repository's default branch.
func (c *Client) ListContents(ctx context.Context, repoID, path string) ([]*hosting.ContentEntry, error) {
	var gh []struct {
		Name string `json:"name"`
		Path string `json:"path"`
		Type string `json:"type"`
	}
	err := c.do(ctx, "list_contents", http.MethodGet, "/repos/"+repoID+"/contents/"+strings.Trim(path, "/"), nil, &gh, hosting.ErrPathNotFound)
	if err != nil {
		return nil, err
	}
	entries := make([]*hosting.ContentEntry, len(gh))
	for i, e := range gh {
		entries[i] = &hosting.ContentEntry{Name: e.Name, Path: e.Path, Type: e.Type}
	}
	return entries, nil
}

// GetFileContent fetches and decodes a single file.
func (c *Client) GetFileContent(ctx context.Context, repoID, path string) ([]byte, error) {
	var gh struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	err := c.do(ctx, "get_file_content", http.MethodGet, "/repos/"+repoID+"/contents/"+strings.Trim(path, "/"), nil, &gh, hosting.ErrPathNotFound)
	if err != nil {
		return nil, err
	}
	if gh.Encoding != "base64" {
		return []byte(gh.Content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(gh.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("github: decode file %s: %w", path, err)
	}
	return decoded, nil
}

// GetBranch gets a branch and its head commit.
func (c *Client) GetBranch(ctx context.Context, repoID, branch string) (*hosting.Branch, error) {
	var gh struct {
		Name   string `json:"name"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	err := c.do(ctx, "get_branch", http.MethodGet, "/repos/"+repoID+"/branches/"+url.PathEscape(branch), nil, &gh, hosting.ErrBranchNotFound)
	if err != nil {
		return nil, err
	}
	return &hosting.Branch{Name: gh.Name, CommitSHA: gh.Commit.SHA}, nil
}

// GetRef gets a git reference by its short name ("heads/submissions/x").
func (c *Client) GetRef(ctx context.Context, repoID, ref string) (*hosting.Ref, error) {
	var gh githubRef
	err := c.do(ctx, "get_ref", http.MethodGet, "/repos/"+repoID+"/git/ref/"+ref, nil, &gh, hosting.ErrRefNotFound)
	if err != nil {
		return nil, err
	}
	return gh.toRef(), nil
}

// CreateRef creates a git reference. ref is the full form ("refs/heads/x").
func (c *Client) CreateRef(ctx context.Context, repoID, ref, sha string) (*hosting.Ref, error) {
	body := map[string]string{"ref": ref, "sha": sha}
	var gh githubRef
	if err := c.do(ctx, "create_ref", http.MethodPost, "/repos/"+repoID+"/git/refs", body, &gh, nil); err != nil {
		return nil, err
	}
	return gh.toRef(), nil
}

// UpdateRef points an existing reference at a new commit. force bypasses the
// fast-forward check; the submission workflow always forces so a resubmission
// wins over manual edits to the submission branch.
func (c *Client) UpdateRef(ctx context.Context, repoID, ref, sha string, force bool) (*hosting.Ref, error) {
	body := map[string]any{"sha": sha, "force": force}
	var gh githubRef
	if err := c.do(ctx, "update_ref", http.MethodPatch, "/repos/"+repoID+"/git/refs/"+ref, body, &gh, hosting.ErrRefNotFound); err != nil {
		return nil, err
	}
	return gh.toRef(), nil
}

// GetCommit gets a git commit object, including its tree.
func (c *Client) GetCommit(ctx context.Context, repoID, sha string) (*hosting.Commit, error) {
	var gh struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
		Tree    struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	err := c.do(ctx, "get_commit", http.MethodGet, "/repos/"+repoID+"/git/commits/"+sha, nil, &gh, hosting.ErrCommitNotFound)
	if err != nil {
		return nil, err
	}
	return &hosting.Commit{SHA: gh.SHA, TreeSHA: gh.Tree.SHA, Message: gh.Message}, nil
}

// CreateTree creates a tree on top of baseTreeSHA.
func (c *Client) CreateTree(ctx context.Context, repoID, baseTreeSHA string, entries []hosting.TreeEntry) (*hosting.Tree, error) {
	type treeEntry struct {
		Path    string `json:"path"`
		Mode    string `json:"mode"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	body := struct {
		BaseTree string      `json:"base_tree,omitempty"`
		Tree     []treeEntry `json:"tree"`
	}{BaseTree: baseTreeSHA}
	for _, e := range entries {
		body.Tree = append(body.Tree, treeEntry(e))
	}
	var gh struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, "create_tree", http.MethodPost, "/repos/"+repoID+"/git/trees", body, &gh, nil); err != nil {
		return nil, err
	}
	return &hosting.Tree{SHA: gh.SHA}, nil
}

// CreateCommit creates a commit object for a tree.
func (c *Client) CreateCommit(ctx context.Context, repoID, message, treeSHA string, parents []string) (*hosting.Commit, error) {
	body := map[string]any{"message": message, "tree": treeSHA, "parents": parents}
	var gh struct {
		SHA  string `json:"sha"`
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := c.do(ctx, "create_commit", http.MethodPost, "/repos/"+repoID+"/git/commits", body, &gh, nil); err != nil {
		return nil, err
	}
	return &hosting.Commit{SHA: gh.SHA, TreeSHA: gh.Tree.SHA, Message: message}, nil
}

// ListPullsByHead lists open pull requests whose head is the given branch of
// the same repository.
func (c *Client) ListPullsByHead(ctx context.Context, repoID, headBranch string) ([]*hosting.PullRequest, error) {
	owner := repoID
	if i := strings.Index(repoID, "/"); i > 0 {
		owner = repoID[:i]
	}
	q := url.Values{}
	q.Set("head", owner+":"+headBranch)
	q.Set("state", "open")
	var gh []githubPull
	err := c.do(ctx, "list_pulls", http.MethodGet, "/repos/"+repoID+"/pulls?"+q.Encode(), nil, &gh, nil)
	if err != nil {
		return nil, err
	}
	pulls := make([]*hosting.PullRequest, len(gh))
	for i, p := range gh {
		pulls[i] = p.toPull()
	}
	return pulls, nil
}

// CreatePull opens a pull request.
func (c *Client) CreatePull(ctx context.Context, repoID string, pull hosting.NewPull) (*hosting.PullRequest, error) {
	body := map[string]string{
		"title": pull.Title,
		"body":  pull.Body,
		"head":  pull.Head,
		"base":  pull.Base,
	}
	var gh githubPull
	if err := c.do(ctx, "create_pull", http.MethodPost, "/repos/"+repoID+"/pulls", body, &gh, nil); err != nil {
		return nil, err
	}
	return gh.toPull(), nil
}

// AddLabels applies labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, repoID string, issueNumber int, labels []string) error {
	body := map[string][]string{"labels": labels}
	return c.do(ctx, "add_labels", http.MethodPost,
		fmt.Sprintf("/repos/%s/issues/%d/labels", repoID, issueNumber), body, nil, nil)
}

// Helper methods

// do performs one API call: rate gate, per-call timeout, auth headers, status
// mapping, JSON decode. notFound, when non-nil, is returned for a 404 so each
// operation surfaces its own sentinel.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any, notFound error) error {
	if err := c.gate(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encode %s request: %w", op, err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, payload)
	if err != nil {
		return fmt.Errorf("github: create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.HostingRequestsTotal.WithLabelValues(op, telemetry.StatusClass(0)).Inc()
		return hosting.WrapRemoteError(0, op+" failed", err)
	}
	defer resp.Body.Close()
	telemetry.HostingRequestsTotal.WithLabelValues(op, telemetry.StatusClass(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	}
	if resp.StatusCode == http.StatusForbidden && strings.Contains(resp.Header.Get("X-RateLimit-Remaining"), "0") {
		return hosting.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return hosting.WrapRemoteError(resp.StatusCode, op+" failed", fmt.Errorf("%s", msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decode %s response: %w", op, err)
	}
	return nil
}

// gate blocks until the shared call budget admits one request or the context
// expires. With no limiter configured it is a no-op.
func (c *Client) gate(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	for {
		res, err := c.limiter.Allow(ctx, rateKey, c.budget)
		if err != nil {
			// A broken limiter should not take the hosting client down with it.
			return nil
		}
		if res.Allowed > 0 {
			return nil
		}
		timer := time.NewTimer(res.RetryAfter)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

type githubRepo struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	HTMLURL         string    `json:"html_url"`
	DefaultBranch   string    `json:"default_branch"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	PushedAt        time.Time `json:"pushed_at"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type githubRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

func (r *githubRef) toRef() *hosting.Ref {
	return &hosting.Ref{
		Name: strings.TrimPrefix(r.Ref, "refs/"),
		SHA:  r.Object.SHA,
	}
}

type githubPull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
}

func (p *githubPull) toPull() *hosting.PullRequest {
	return &hosting.PullRequest{Number: p.Number, HTMLURL: p.HTMLURL, State: p.State}
}

// compile-time interface check
var _ hosting.Client = (*Client)(nil)
