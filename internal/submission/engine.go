package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modhub/modhub/internal/hosting"
	"github.com/modhub/modhub/internal/registry"
	"github.com/modhub/modhub/internal/store"
	"github.com/modhub/modhub/internal/telemetry"
	"github.com/modhub/modhub/internal/validation"
)

// fillerDescription is committed for repositories without a description.
const fillerDescription = "This module has an air of mystery about it"

// submissionLabel and certificationLabel are applied to submission pulls.
const (
	submissionLabel    = "submission"
	certificationLabel = "certification"
)

// DocStore is the slice of the document store the engine uses.
type DocStore interface {
	CreateJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key, path string, v any) error
	GetJSON(ctx context.Context, key, path string, out any) error
	Del(ctx context.Context, key string) error
}

// Enqueuer schedules submission processing jobs.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, repoID string) (string, error)
}

// Catalog is the engine's view of the hub catalog.
type Catalog interface {
	SubmitEnabled(ctx context.Context) (bool, error)
	ModuleExists(ctx context.Context, repoID string) (bool, error)
	AppendSubmissionLog(ctx context.Context, repoID string, created int64) error
}

// Engine runs submissions through their lifecycle. Submit and Status are
// called from whatever front end accepts submissions; Process runs on the
// worker. Transient processing errors are returned to the queue for retry,
// terminal ones mark the submission failed and stop the job.
type Engine struct {
	docs    DocStore
	queue   Enqueuer
	catalog Catalog
	host    hosting.Client
	hubRepo string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a submission engine. hubRepo is the "owner/name" catalog
// repository that receives submission pull requests.
func New(docs DocStore, queue Enqueuer, catalog Catalog, host hosting.Client, hubRepo string, logger *slog.Logger) *Engine {
	return &Engine{
		docs:    docs,
		queue:   queue,
		catalog: catalog,
		host:    host,
		hubRepo: hubRepo,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit validates a submission request, persists it, and queues it for
// processing. The document create is the concurrency gate: whichever of two
// racing submitters creates the document wins, the other gets ErrActive.
func (e *Engine) Submit(ctx context.Context, req Request) (*Submission, error) {
	repoID, err := validation.ValidateRepoID(req.Repository)
	if err != nil {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_invalid").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	authors, err := validation.ValidateAuthors(req.Authors)
	if err != nil {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_invalid").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	if err := validation.ValidateURL("docs_url", req.DocsURL); err != nil {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_invalid").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	if err := validation.ValidateURL("icon_url", req.IconURL); err != nil {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_invalid").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	enabled, err := e.catalog.SubmitEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("submission: read submit flag: %w", err)
	}
	if !enabled {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_disabled").Inc()
		return nil, ErrDisabled
	}

	listed, err := e.catalog.ModuleExists(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("submission: check listing: %w", err)
	}
	if listed {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_listed").Inc()
		return nil, ErrAlreadyListed
	}

	created := e.now().Unix()
	sub := &Submission{
		Created: created,
		ID:      repoID,
		Status:  StatusNew,
		Message: "Submission received",
		Details: Details{
			Name:       req.Name,
			Repository: repoID,
			Authors:    authors,
			DocsURL:    req.DocsURL,
			IconURL:    req.IconURL,
		},
		Certification: req.Certification,
	}

	ok, err := e.docs.CreateJSON(ctx, DocKey(repoID), sub)
	if err != nil {
		return nil, fmt.Errorf("submission: persist %s: %w", repoID, err)
	}
	if !ok {
		telemetry.SubmissionsTotal.WithLabelValues("rejected_active").Inc()
		return nil, ErrActive
	}
	if err := e.catalog.AppendSubmissionLog(ctx, repoID, created); err != nil {
		// Log-only failure: the submission document is authoritative.
		e.logger.Warn("could not append to catalog submission log",
			"submission", repoID, "error", err)
	}

	jobID, err := e.queue.EnqueueProcess(ctx, repoID)
	if err != nil {
		sub.Message = "Submission could not be scheduled"
		telemetry.SubmissionsTotal.WithLabelValues("unscheduled").Inc()
		e.logger.Error("could not enqueue submission processing",
			"submission", repoID, "error", err)
		if werr := e.docs.SetJSON(ctx, DocKey(repoID), store.RootPath, sub); werr != nil {
			e.logger.Error("could not record scheduling failure",
				"submission", repoID, "error", werr)
		}
		return sub, nil
	}

	sub.Status = StatusQueued
	sub.JobID = jobID
	sub.Message = "Submission queued for processing"
	if err := e.docs.SetJSON(ctx, DocKey(repoID), store.RootPath, sub); err != nil {
		return nil, fmt.Errorf("submission: record queued state %s: %w", repoID, err)
	}

	telemetry.SubmissionsTotal.WithLabelValues("queued").Inc()
	e.logger.Info("submission queued", "submission", repoID, "job", jobID)
	return sub, nil
}

// Status loads a submission by repository id.
func (e *Engine) Status(ctx context.Context, repoID string) (*Submission, error) {
	var sub Submission
	err := e.docs.GetJSON(ctx, DocKey(validation.NormalizeRepoID(repoID)), store.RootPath, &sub)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("submission: load %s: %w", repoID, err)
	}
	return &sub, nil
}

// Reset deletes a failed submission so the module can be submitted again.
// Any other status is refused: in-flight submissions belong to the worker.
func (e *Engine) Reset(ctx context.Context, repoID string) error {
	sub, err := e.Status(ctx, repoID)
	if err != nil {
		return err
	}
	if sub.Status != StatusFailed {
		return fmt.Errorf("%w (status is %q)", ErrNotFailed, sub.Status)
	}
	if err := e.docs.Del(ctx, DocKey(sub.ID)); err != nil {
		return fmt.Errorf("submission: delete %s: %w", sub.ID, err)
	}
	e.logger.Info("submission reset", "submission", sub.ID)
	return nil
}

// Process runs one submission through the hosting workflow. A returned error
// means a transient failure the queue should retry; terminal conditions mark
// the submission failed and return nil.
func (e *Engine) Process(ctx context.Context, repoID string) error {
	sub, err := e.Status(ctx, repoID)
	if errors.Is(err, ErrNotFound) {
		e.logger.Warn("submission document gone, nothing to process", "submission", repoID)
		return nil
	}
	if err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := e.setState(ctx, sub, StatusStarted, "Fetching repository"); err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return err
	}

	repo, err := e.host.GetRepository(ctx, sub.ID)
	if errors.Is(err, hosting.ErrRepositoryNotFound) {
		return e.fail(ctx, sub, fmt.Sprintf("Repository %s not found", sub.ID))
	}
	if err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("submission: fetch repository %s: %w", sub.ID, err)
	}

	for _, login := range sub.Details.Authors {
		if _, err := e.host.GetUser(ctx, login); err != nil {
			if errors.Is(err, hosting.ErrUserNotFound) {
				return e.fail(ctx, sub, fmt.Sprintf("Author %s not found", login))
			}
			telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("submission: fetch author %s: %w", login, err)
		}
	}

	mod := e.buildModule(sub, repo)
	pull, commitSHA, err := e.publish(ctx, sub, mod)
	if err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return err
	}

	sub.Status = StatusFinished
	sub.Message = "Submission complete"
	sub.Commit = commitSHA
	sub.PullNumber = pull.Number
	sub.PullURL = pull.HTMLURL
	if err := e.docs.SetJSON(ctx, DocKey(sub.ID), store.RootPath, sub); err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("submission: record finished state %s: %w", sub.ID, err)
	}

	telemetry.SubmissionProcessTotal.WithLabelValues("finished").Inc()
	e.logger.Info("submission finished", "submission", sub.ID,
		"pull", pull.Number, "commit", commitSHA)
	return nil
}

// buildModule assembles the module record that will be committed to the hub
// repository.
func (e *Engine) buildModule(sub *Submission, repo *hosting.Repository) *registry.Module {
	name := sub.Details.Name
	if name == "" {
		name = repo.Name
	}
	description := repo.Description
	if description == "" {
		description = fillerDescription
	}
	mod := &registry.Module{
		Name:        name,
		Description: description,
		Repository:  registry.GithubRepository(sub.ID),
	}
	if sub.Details.DocsURL != "" {
		mod.Documentation = &sub.Details.DocsURL
	}
	if sub.Details.IconURL != "" {
		mod.Icon = &sub.Details.IconURL
	}
	for _, login := range sub.Details.Authors {
		mod.Authors = append(mod.Authors, registry.GithubAuthor(login))
	}
	if mod.Authors == nil {
		mod.Authors = []registry.Descriptor{}
	}
	return mod
}

// publish commits the module record to the hub repository on a dedicated
// submission branch and makes sure one open pull request exists for it.
// Every step is safe to repeat: the branch is force-updated and the pull is
// only opened when the head has none, so a queue retry picks up cleanly.
func (e *Engine) publish(ctx context.Context, sub *Submission, mod *registry.Module) (*hosting.PullRequest, string, error) {
	hub, err := e.host.GetRepository(ctx, e.hubRepo)
	if err != nil {
		return nil, "", fmt.Errorf("submission: fetch hub repository: %w", err)
	}
	base, err := e.host.GetBranch(ctx, e.hubRepo, hub.DefaultBranch)
	if err != nil {
		return nil, "", fmt.Errorf("submission: fetch hub branch %s: %w", hub.DefaultBranch, err)
	}

	branch := "submissions/" + mod.Name
	commitMsg := "Updates submission"
	ref, err := e.host.GetRef(ctx, e.hubRepo, "heads/"+branch)
	if errors.Is(err, hosting.ErrRefNotFound) {
		commitMsg = fmt.Sprintf("Initial submission of module %s", sub.ID)
		ref, err = e.host.CreateRef(ctx, e.hubRepo, "refs/heads/"+branch, base.CommitSHA)
	}
	if err != nil {
		return nil, "", fmt.Errorf("submission: resolve branch %s: %w", branch, err)
	}

	head, err := e.host.GetCommit(ctx, e.hubRepo, ref.SHA)
	if err != nil {
		return nil, "", fmt.Errorf("submission: fetch branch head: %w", err)
	}

	content, err := mod.CanonicalJSON()
	if err != nil {
		return nil, "", fmt.Errorf("submission: render module record: %w", err)
	}
	tree, err := e.host.CreateTree(ctx, e.hubRepo, head.TreeSHA, []hosting.TreeEntry{{
		Path:    fmt.Sprintf("modules/%s.json", mod.Name),
		Mode:    "100644",
		Type:    "blob",
		Content: string(content),
	}})
	if err != nil {
		return nil, "", fmt.Errorf("submission: create tree: %w", err)
	}
	commit, err := e.host.CreateCommit(ctx, e.hubRepo, commitMsg, tree.SHA, []string{ref.SHA})
	if err != nil {
		return nil, "", fmt.Errorf("submission: create commit: %w", err)
	}
	sub.Commit = commit.SHA
	if err := e.setState(ctx, sub, StatusStarted, "Submission committed"); err != nil {
		return nil, "", err
	}
	if _, err := e.host.UpdateRef(ctx, e.hubRepo, "heads/"+branch, commit.SHA, true); err != nil {
		return nil, "", fmt.Errorf("submission: update branch %s: %w", branch, err)
	}

	pulls, err := e.host.ListPullsByHead(ctx, e.hubRepo, branch)
	if err != nil {
		return nil, "", fmt.Errorf("submission: list pulls: %w", err)
	}
	if len(pulls) > 0 {
		return pulls[0], commit.SHA, nil
	}

	pull, err := e.host.CreatePull(ctx, e.hubRepo, hosting.NewPull{
		Title: fmt.Sprintf("[SUBMISSION] %s", sub.ID),
		Body:  pullBody(mod),
		Head:  branch,
		Base:  hub.DefaultBranch,
	})
	if err != nil {
		return nil, "", fmt.Errorf("submission: create pull: %w", err)
	}
	labels := []string{submissionLabel}
	if sub.Certification {
		labels = append(labels, certificationLabel)
	}
	if err := e.host.AddLabels(ctx, e.hubRepo, pull.Number, labels); err != nil {
		// The pull exists; a missing label is an annoyance, not a failure.
		e.logger.Warn("could not label pull request",
			"submission", sub.ID, "pull", pull.Number, "error", err)
	}
	return pull, commit.SHA, nil
}

// pullBody renders the pull request description.
func pullBody(mod *registry.Module) string {
	owner := mod.Repository.ID
	if i := strings.Index(owner, "/"); i > 0 {
		owner = owner[:i]
	}
	body := fmt.Sprintf("This module has been submitted via the hub.\n\nOwner: @%s\n", owner)
	if len(mod.Authors) > 0 {
		logins := make([]string, len(mod.Authors))
		for i, a := range mod.Authors {
			logins[i] = "@" + a.ID
		}
		body += fmt.Sprintf("Authors: %s\n", strings.Join(logins, ", "))
	}
	return body
}

// fail records a terminal failure. The job is done from the queue's point of
// view; only an operator reset unblocks the module.
func (e *Engine) fail(ctx context.Context, sub *Submission, message string) error {
	if err := e.setState(ctx, sub, StatusFailed, message); err != nil {
		telemetry.SubmissionProcessTotal.WithLabelValues("error").Inc()
		return err
	}
	telemetry.SubmissionProcessTotal.WithLabelValues("failed").Inc()
	e.logger.Warn("submission failed", "submission", sub.ID, "reason", message)
	return nil
}

func (e *Engine) setState(ctx context.Context, sub *Submission, status, message string) error {
	sub.Status = status
	sub.Message = message
	if err := e.docs.SetJSON(ctx, DocKey(sub.ID), store.RootPath, sub); err != nil {
		return fmt.Errorf("submission: record %s state %s: %w", status, sub.ID, err)
	}
	return nil
}
