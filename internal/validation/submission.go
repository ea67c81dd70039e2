// Package validation provides input validation for module submissions. Each
// validator checks a specific aspect of the submitted form fields: repository
// id shape, author id length, and URL well-formedness. Validators run before
// any state is persisted so invalid submissions are rejected early without
// touching the document store or the queue.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// MaxFieldLength is the maximum length for repository and author ids.
	MaxFieldLength = 255
)

// repoIDPattern matches "owner/name" after lowercasing. Dots, dashes, and
// underscores are the only punctuation the hosting platform allows in either
// segment.
var repoIDPattern = regexp.MustCompile(`^[a-z0-9._-]+/[a-z0-9._-]+$`)

// NormalizeRepoID lowercases a repository id. All document keys and catalog
// references use the normalized form.
func NormalizeRepoID(repoID string) string {
	return strings.ToLower(strings.TrimSpace(repoID))
}

// ValidateRepoID checks that a repository id is present, within length
// limits, and in "owner/name" form. It returns the normalized id.
func ValidateRepoID(repoID string) (string, error) {
	if repoID == "" {
		return "", fmt.Errorf("repository id is required")
	}
	if len(repoID) > MaxFieldLength {
		return "", fmt.Errorf("repository id is over %d characters", MaxFieldLength)
	}
	normalized := NormalizeRepoID(repoID)
	if !repoIDPattern.MatchString(normalized) {
		return "", fmt.Errorf(`repository id is not in the pattern of "owner/name"`)
	}
	return normalized, nil
}

// ValidateAuthors checks author ids for length and emptiness. Blank entries
// are dropped rather than rejected, matching lenient form handling.
func ValidateAuthors(authors []string) ([]string, error) {
	cleaned := make([]string, 0, len(authors))
	for _, a := range authors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if len(a) > MaxFieldLength {
			return nil, fmt.Errorf("author id is over %d characters", MaxFieldLength)
		}
		cleaned = append(cleaned, a)
	}
	return cleaned, nil
}

// ValidateURL checks that a value is an absolute http(s) URL. An empty value
// is accepted because the URL fields are optional.
func ValidateURL(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL", field)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s is not a valid URL", field)
	}
	return nil
}
