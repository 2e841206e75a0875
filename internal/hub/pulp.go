package hub

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

const pulpAnsibleRepositories = "/api/galaxy/pulp/api/v3/repositories/ansible/ansible/"

// RepositoryBackend syncs hub pulp repositories from their remotes. Target
// ids are pulp hrefs, job ids are task hrefs.
type RepositoryBackend struct {
	client *Client
}

func NewRepositoryBackend(baseURL, token string, opts Options) *RepositoryBackend {
	return &RepositoryBackend{client: NewClient(baseURL, token, SchemeToken, opts)}
}

func (b *RepositoryBackend) Name() string { return "repositories" }

type repository struct {
	Href   string `json:"pulp_href"`
	Name   string `json:"name"`
	Remote string `json:"remote"`
}

func (b *RepositoryBackend) ListTargets(ctx context.Context) ([]api.Target, error) {
	repos, err := listAll[repository](ctx, b.client, pulpAnsibleRepositories)
	if err != nil {
		return nil, err
	}
	targets := make([]api.Target, 0, len(repos))
	for _, r := range repos {
		targets = append(targets, api.Target{ID: r.Href, Name: r.Name})
	}
	return targets, nil
}

// Eligible re-reads the repository; one without a remote has nothing to sync.
func (b *RepositoryBackend) Eligible(ctx context.Context, target api.Target) (bool, error) {
	var repo repository
	if err := b.client.getJSON(ctx, target.ID, &repo); err != nil {
		return false, err
	}
	return repo.Remote != "", nil
}

func (b *RepositoryBackend) Trigger(ctx context.Context, target api.Target) (*api.TriggerReply, error) {
	resp, err := b.client.Do(ctx, http.MethodPost, target.ID+"sync/", map[string]any{})
	if err != nil {
		return nil, err
	}
	return &api.TriggerReply{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

func (b *RepositoryBackend) JobID(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	var out struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Task, nil
}

func (b *RepositoryBackend) JobStatus(ctx context.Context, jobID string) (api.OperationStatus, error) {
	var out struct {
		State string `json:"state"`
	}
	if err := b.client.getJSON(ctx, jobID, &out); err != nil {
		return api.OperationStatus{}, err
	}
	return api.OperationStatus{JobID: jobID, Status: taskStatus(out.State)}, nil
}

// taskStatus folds pulp task states into the shared status family. A skipped
// task never ran the sync, so it counts as a failure.
func taskStatus(s string) api.StatusCode {
	switch s {
	case "waiting":
		return api.StatusWaiting
	case "running", "canceling":
		return api.StatusRunning
	case "completed":
		return api.StatusSuccessful
	case "failed":
		return api.StatusFailed
	case "canceled", "skipped":
		return api.StatusCanceled
	}
	return api.StatusUnknown
}
