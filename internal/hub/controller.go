package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

const (
	controllerProjects       = "/api/controller/v2/projects/"
	controllerProjectUpdates = "/api/controller/v2/project_updates/"
)

// ProjectBackend syncs automation controller projects from their SCM.
type ProjectBackend struct {
	client *Client
}

func NewProjectBackend(baseURL, token string, opts Options) *ProjectBackend {
	return &ProjectBackend{client: NewClient(baseURL, token, SchemeBearer, opts)}
}

func (b *ProjectBackend) Name() string { return "projects" }

type project struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

func (b *ProjectBackend) ListTargets(ctx context.Context) ([]api.Target, error) {
	projects, err := listAll[project](ctx, b.client, controllerProjects)
	if err != nil {
		return nil, err
	}
	targets := make([]api.Target, 0, len(projects))
	for _, p := range projects {
		targets = append(targets, api.Target{ID: idString(p.ID), Name: p.Name})
	}
	return targets, nil
}

func updatePath(id string) string {
	return fmt.Sprintf("%s%s/update/", controllerProjects, id)
}

func (b *ProjectBackend) Eligible(ctx context.Context, target api.Target) (bool, error) {
	var out struct {
		CanUpdate bool `json:"can_update"`
	}
	if err := b.client.getJSON(ctx, updatePath(target.ID), &out); err != nil {
		return false, err
	}
	return out.CanUpdate, nil
}

func (b *ProjectBackend) Trigger(ctx context.Context, target api.Target) (*api.TriggerReply, error) {
	resp, err := b.client.Do(ctx, http.MethodPost, updatePath(target.ID), nil)
	if err != nil {
		return nil, err
	}
	return &api.TriggerReply{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// JobID reads project_update, falling back to id.
func (b *ProjectBackend) JobID(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	var out struct {
		ProjectUpdate any `json:"project_update"`
		ID            any `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if id := idString(out.ProjectUpdate); id != "" {
		return id, nil
	}
	return idString(out.ID), nil
}

func (b *ProjectBackend) JobStatus(ctx context.Context, jobID string) (api.OperationStatus, error) {
	var out struct {
		Status string `json:"status"`
		Failed bool   `json:"failed"`
	}
	if err := b.client.getJSON(ctx, controllerProjectUpdates+jobID+"/", &out); err != nil {
		return api.OperationStatus{}, err
	}
	return api.OperationStatus{JobID: jobID, Status: controllerStatus(out.Status), Failed: out.Failed}, nil
}

func controllerStatus(s string) api.StatusCode {
	switch s {
	case "new", "pending":
		return api.StatusPending
	case "waiting":
		return api.StatusWaiting
	case "running":
		return api.StatusRunning
	case "successful":
		return api.StatusSuccessful
	case "failed":
		return api.StatusFailed
	case "error":
		return api.StatusError
	case "canceled":
		return api.StatusCanceled
	}
	return api.StatusUnknown
}
