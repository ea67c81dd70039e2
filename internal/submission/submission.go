// Package submission implements the module submission workflow: a small
// state machine persisted as one document per repository, driven through the
// hosting platform's pull-request plumbing by an async worker.
package submission

import (
	"errors"
	"strings"
)

// Submission lifecycle states.
const (
	StatusNew      = "new"
	StatusQueued   = "queued"
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// DocKeyPrefix namespaces submission documents in the store.
const DocKeyPrefix = "submission:"

// Submit rejection and lookup sentinels.
var (
	ErrDisabled      = errors.New("submission: submissions are disabled")
	ErrAlreadyListed = errors.New("submission: module is already listed")
	ErrActive        = errors.New("submission: a submission already exists for this module")
	ErrInvalid       = errors.New("submission: invalid submission")
	ErrNotFound      = errors.New("submission: no submission found")
	ErrNotFailed     = errors.New("submission: only failed submissions can be reset")
)

// DocKey returns the document key for a repository id.
func DocKey(repoID string) string {
	return DocKeyPrefix + strings.ToLower(repoID)
}

// Details carries the submitter-provided fields, kept verbatim so the
// processing step can rebuild the module record on every retry.
type Details struct {
	Name       string   `json:"name"`
	Repository string   `json:"repository"`
	Authors    []string `json:"authors,omitempty"`
	DocsURL    string   `json:"docs_url,omitempty"`
	IconURL    string   `json:"icon_url,omitempty"`
}

// Submission is the persisted state of one submission.
type Submission struct {
	Created       int64   `json:"created"`
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Message       string  `json:"message"`
	Details       Details `json:"details"`
	Certification bool    `json:"certification,omitempty"`
	JobID         string  `json:"job_id,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	PullNumber    int     `json:"pull_number,omitempty"`
	PullURL       string  `json:"pull_url,omitempty"`
}

// Request is the input to Submit.
type Request struct {
	Repository    string
	Name          string
	Authors       []string
	DocsURL       string
	IconURL       string
	Certification bool
}
