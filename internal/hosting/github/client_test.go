package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modhub/modhub/internal/hosting"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(&Settings{Token: "test-token", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// ---------------------------------------------------------------------------
// Repository and account lookups
// ---------------------------------------------------------------------------

func TestGetRepository(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("unexpected accept header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":             "Widget",
			"full_name":        "Acme/Widget",
			"description":      "builds widgets",
			"html_url":         "https://github.com/acme/widget",
			"default_branch":   "main",
			"stargazers_count": 42,
			"forks_count":      7,
			"pushed_at":        "2026-08-01T12:00:00Z",
			"owner":            map[string]string{"login": "acme"},
		})
	}))

	repo, err := client.GetRepository(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if repo.ID != "acme/widget" {
		t.Errorf("expected lowercased id, got %q", repo.ID)
	}
	if repo.Owner != "acme" || repo.DefaultBranch != "main" {
		t.Errorf("unexpected repo %+v", repo)
	}
	if repo.Stargazers != 42 || repo.Forks != 7 {
		t.Errorf("unexpected counters %+v", repo)
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetRepository(context.Background(), "acme/ghost")
	if !errors.Is(err, hosting.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetUser(context.Background(), "nobody")
	if !errors.Is(err, hosting.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetLatestReleaseNone(t *testing.T) {
	// Repositories without releases answer 404; the client maps that to the
	// release sentinel so callers can treat it as a normal condition.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetLatestRelease(context.Background(), "acme/widget")
	if !errors.Is(err, hosting.ErrReleaseNotFound) {
		t.Fatalf("expected ErrReleaseNotFound, got %v", err)
	}
}

func TestServerErrorWrapped(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	}))

	_, err := client.GetRepository(context.Background(), "acme/widget")
	var apiErr *hosting.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("unexpected status code %d", apiErr.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Contents
// ---------------------------------------------------------------------------

func TestListContents(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/hub/contents/modules" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"name": "widget.json", "path": "modules/widget.json", "type": "file"},
			{"name": "archive", "path": "modules/archive", "type": "dir"},
		})
	}))

	entries, err := client.ListContents(context.Background(), "acme/hub", "modules")
	if err != nil {
		t.Fatalf("ListContents: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "widget.json" || entries[1].Type != "dir" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestGetFileContentBase64(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"content":  "eyJuYW1l\nIjogIngifQ==\n",
			"encoding": "base64",
		})
	}))

	content, err := client.GetFileContent(context.Background(), "acme/hub", "modules/widget.json")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	if string(content) != `{"name": "x"}` {
		t.Errorf("unexpected content %q", content)
	}
}

// ---------------------------------------------------------------------------
// Git data plumbing
// ---------------------------------------------------------------------------

func TestGetRefNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetRef(context.Background(), "acme/hub", "heads/submissions/widget")
	if !errors.Is(err, hosting.ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
}

func TestCreateRef(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/hub/git/refs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["ref"] != "refs/heads/submissions/widget" || body["sha"] != "abc123" {
			t.Errorf("unexpected body %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"ref":    "refs/heads/submissions/widget",
			"object": map[string]string{"sha": "abc123"},
		})
	}))

	ref, err := client.CreateRef(context.Background(), "acme/hub", "refs/heads/submissions/widget", "abc123")
	if err != nil {
		t.Fatalf("CreateRef: %v", err)
	}
	if ref.Name != "heads/submissions/widget" || ref.SHA != "abc123" {
		t.Errorf("unexpected ref %+v", ref)
	}
}

func TestUpdateRefForce(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("unexpected method %s", r.Method)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["force"] != true {
			t.Errorf("expected force update, got %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ref":    "refs/heads/submissions/widget",
			"object": map[string]string{"sha": "def456"},
		})
	}))

	ref, err := client.UpdateRef(context.Background(), "acme/hub", "heads/submissions/widget", "def456", true)
	if err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	if ref.SHA != "def456" {
		t.Errorf("unexpected ref %+v", ref)
	}
}

func TestGetCommitTree(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sha":     "abc123",
			"message": "initial",
			"tree":    map[string]string{"sha": "tree789"},
		})
	}))

	commit, err := client.GetCommit(context.Background(), "acme/hub", "abc123")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if commit.TreeSHA != "tree789" {
		t.Errorf("unexpected tree sha %q", commit.TreeSHA)
	}
}

func TestCreateTreeAndCommit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/hub/git/trees":
			var body struct {
				BaseTree string `json:"base_tree"`
				Tree     []struct {
					Path string `json:"path"`
					Mode string `json:"mode"`
				} `json:"tree"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.BaseTree != "tree789" || len(body.Tree) != 1 || body.Tree[0].Path != "modules/widget.json" {
				t.Errorf("unexpected tree body %+v", body)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"sha": "newtree"})
		case "/repos/acme/hub/git/commits":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["tree"] != "newtree" {
				t.Errorf("unexpected commit body %+v", body)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"sha":  "commit1",
				"tree": map[string]string{"sha": "newtree"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	tree, err := client.CreateTree(context.Background(), "acme/hub", "tree789", []hosting.TreeEntry{
		{Path: "modules/widget.json", Mode: "100644", Type: "blob", Content: "{}"},
	})
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	commit, err := client.CreateCommit(context.Background(), "acme/hub", "Initial submission of module acme/widget", tree.SHA, []string{"abc123"})
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if commit.SHA != "commit1" || commit.TreeSHA != "newtree" {
		t.Errorf("unexpected commit %+v", commit)
	}
}

// ---------------------------------------------------------------------------
// Pull requests
// ---------------------------------------------------------------------------

func TestListPullsByHead(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("head") != "acme:submissions/widget" || q.Get("state") != "open" {
			t.Errorf("unexpected query %v", q)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"number": 12, "html_url": "https://github.com/acme/hub/pull/12", "state": "open"},
		})
	}))

	pulls, err := client.ListPullsByHead(context.Background(), "acme/hub", "submissions/widget")
	if err != nil {
		t.Fatalf("ListPullsByHead: %v", err)
	}
	if len(pulls) != 1 || pulls[0].Number != 12 {
		t.Errorf("unexpected pulls %+v", pulls)
	}
}

func TestCreatePullAndLabel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/hub/pulls":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["title"] != "[SUBMISSION] acme/widget" || body["base"] != "main" {
				t.Errorf("unexpected pull body %+v", body)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"number":   17,
				"html_url": "https://github.com/acme/hub/pull/17",
				"state":    "open",
			})
		case "/repos/acme/hub/issues/17/labels":
			var body map[string][]string
			json.NewDecoder(r.Body).Decode(&body)
			if len(body["labels"]) != 1 || body["labels"][0] != "submission" {
				t.Errorf("unexpected labels %+v", body)
			}
			json.NewEncoder(w).Encode([]map[string]string{{"name": "submission"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	pull, err := client.CreatePull(context.Background(), "acme/hub", hosting.NewPull{
		Title: "[SUBMISSION] acme/widget",
		Body:  "This module has been submitted via the hub.\n\nOwner: @acme\n",
		Head:  "submissions/widget",
		Base:  "main",
	})
	if err != nil {
		t.Fatalf("CreatePull: %v", err)
	}
	if pull.Number != 17 {
		t.Errorf("unexpected pull %+v", pull)
	}
	if err := client.AddLabels(context.Background(), "acme/hub", pull.Number, []string{"submission"}); err != nil {
		t.Fatalf("AddLabels: %v", err)
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(&Settings{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}
