// Package hosting defines the provider-neutral contract for the external VCS
// hosting service. The hub reads repository, user, and release data through
// it, and drives the submission pull-request workflow through its git data
// operations (refs, trees, commits) and pull-request operations.
//
// Concrete providers live in subpackages (currently only hosting/github) and
// are expected to translate provider payloads into the neutral types here, so
// the registry and submission engine never see provider wire formats.
package hosting

import (
	"context"
	"time"
)

// ProviderGitHub is the repository/author type tag for GitHub-hosted entities.
const ProviderGitHub = "github"

// Repository is hosted repository metadata.
type Repository struct {
	ID            string // "owner/name"
	Name          string
	Owner         string // owner login
	Description   string
	DefaultBranch string
	HTMLURL       string
	Stargazers    int
	Forks         int
	PushedAt      time.Time
}

// User is a hosting platform account.
type User struct {
	Login   string
	HTMLURL string
}

// Release is a published release of a repository.
type Release struct {
	TagName string
	URL     string
}

// Branch is a named branch and its head commit.
type Branch struct {
	Name      string
	CommitSHA string
}

// Ref is a git reference. Name is the short form ("heads/submissions/x").
type Ref struct {
	Name string
	SHA  string
}

// Commit is a git commit object.
type Commit struct {
	SHA     string
	TreeSHA string
	Message string
}

// TreeEntry describes one blob to place in a new tree.
type TreeEntry struct {
	Path    string
	Mode    string // "100644" for a regular file
	Type    string // "blob"
	Content string
}

// Tree is a created git tree object.
type Tree struct {
	SHA string
}

// PullRequest is an open or closed pull request.
type PullRequest struct {
	Number  int
	HTMLURL string
	State   string
}

// NewPull describes a pull request to open.
type NewPull struct {
	Title string
	Body  string
	Head  string // branch name on the same repository
	Base  string // target branch name
}

// ContentEntry is one entry of a repository directory listing.
type ContentEntry struct {
	Name string
	Path string
	Type string // "file" or "dir"
}

// Client is the full hosting API surface the hub consumes. Read operations
// serve ingestion and stats refresh; the git data and pull-request operations
// serve the submission workflow. Implementations must return the package's
// sentinel errors for the not-found cases so callers can distinguish terminal
// failures from transient ones.
type Client interface {
	// Reads
	GetRepository(ctx context.Context, repoID string) (*Repository, error)
	GetUser(ctx context.Context, login string) (*User, error)
	GetLatestRelease(ctx context.Context, repoID string) (*Release, error)
	ListContents(ctx context.Context, repoID, path string) ([]*ContentEntry, error)
	GetFileContent(ctx context.Context, repoID, path string) ([]byte, error)

	// Git data plane
	GetBranch(ctx context.Context, repoID, branch string) (*Branch, error)
	GetRef(ctx context.Context, repoID, ref string) (*Ref, error)
	CreateRef(ctx context.Context, repoID, ref, sha string) (*Ref, error)
	UpdateRef(ctx context.Context, repoID, ref, sha string, force bool) (*Ref, error)
	GetCommit(ctx context.Context, repoID, sha string) (*Commit, error)
	CreateTree(ctx context.Context, repoID, baseTreeSHA string, entries []TreeEntry) (*Tree, error)
	CreateCommit(ctx context.Context, repoID, message, treeSHA string, parents []string) (*Commit, error)

	// Pull requests
	ListPullsByHead(ctx context.Context, repoID, headBranch string) ([]*PullRequest, error)
	CreatePull(ctx context.Context, repoID string, pull NewPull) (*PullRequest, error)
	AddLabels(ctx context.Context, repoID string, issueNumber int, labels []string) error
}
