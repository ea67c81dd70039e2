// Package registry owns the catalog's module entity: its document shape, the
// keys it lives under, and the operations that keep the document store, the
// search index, and the suggestion dictionary in sync.
package registry

import (
	"encoding/json"
	"strings"
)

// DocKeyPrefix namespaces module documents in the store.
const DocKeyPrefix = "module:"

// DocKey returns the document key for a repository id. Keys are always
// lowercased so "Acme/Widget" and "acme/widget" address the same module.
func DocKey(repoID string) string {
	return DocKeyPrefix + strings.ToLower(repoID)
}

// Descriptor is a typed pointer to an entity on a hosting platform. The same
// shape describes both the module's repository and its authors.
type Descriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	URL  string `json:"url"`
}

// GithubRepository builds the repository descriptor for a GitHub repo id.
func GithubRepository(repoID string) Descriptor {
	id := strings.ToLower(repoID)
	return Descriptor{Type: "github", ID: id, URL: "https://github.com/" + id}
}

// GithubAuthor builds the author descriptor for a GitHub login.
func GithubAuthor(login string) Descriptor {
	return Descriptor{Type: "github", ID: login, URL: "https://github.com/" + login}
}

// Release names the latest published release of a module.
type Release struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Stats carries the periodically refreshed hosting counters.
type Stats struct {
	Stargazers       int      `json:"stargazers_count"`
	Forks            int      `json:"forks_count"`
	LastModifiedDays int      `json:"last_modified_days"`
	LastRelease      *Release `json:"last_release,omitempty"`
}

// Module is the catalog's module document. Field order is part of the wire
// contract: the submission workflow commits the serialized form to the hub
// repository, and a stable order keeps resubmission diffs meaningful.
type Module struct {
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	License       *string      `json:"license"`
	Repository    Descriptor   `json:"repository"`
	Documentation *string      `json:"documentation"`
	Authors       []Descriptor `json:"authors"`
	Icon          *string      `json:"icon,omitempty"`
	Stats         *Stats       `json:"stats,omitempty"`
}

// RepoID returns the module's repository id, empty when the repository
// descriptor is missing.
func (m *Module) RepoID() string {
	return m.Repository.ID
}

// CanonicalJSON renders the module in its committed form: four-space
// indentation, struct field order, trailing newline.
func (m *Module) CanonicalJSON() ([]byte, error) {
	buf, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}
