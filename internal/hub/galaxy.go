package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

const (
	platformRoot           = "/api/"
	galaxyCollections      = "/api/galaxy/v3/collections/"
	pulpCollectionVersions = "/api/galaxy/pulp/api/v3/content/ansible/collection_versions/"
	pulpRepositories       = "/api/galaxy/pulp/api/v3/repositories/"
)

// Approvals implements the collection approval calls of both hub flavours.
type Approvals struct {
	client *Client
}

func NewApprovals(baseURL, token string, opts Options) *Approvals {
	return &Approvals{client: NewClient(baseURL, token, SchemeToken, opts)}
}

// PlatformAPI reports whether /api/ answers; a standalone hub returns 404.
func (a *Approvals) PlatformAPI(ctx context.Context) (bool, error) {
	resp, err := a.client.Do(ctx, http.MethodGet, platformRoot, nil)
	if err != nil {
		return false, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	}
	return false, &StatusError{Method: http.MethodGet, URL: a.client.url(platformRoot), StatusCode: resp.StatusCode, Body: string(resp.Body)}
}

func (a *Approvals) MoveToPublished(ctx context.Context, ref api.CollectionRef) (*api.TriggerReply, error) {
	path := fmt.Sprintf("%s%s/%s/versions/%s/move/staging/published/",
		galaxyCollections, url.PathEscape(ref.Namespace), url.PathEscape(ref.Name), url.PathEscape(ref.Version))
	resp, err := a.client.Do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	return &api.TriggerReply{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

type hrefOnly struct {
	Href string `json:"pulp_href"`
}

func (a *Approvals) first(ctx context.Context, path string) (string, error) {
	var p page[hrefOnly]
	if err := a.client.getJSON(ctx, path, &p); err != nil {
		return "", err
	}
	if p.Count == 0 || len(p.Results) == 0 {
		return "", nil
	}
	return p.Results[0].Href, nil
}

func (a *Approvals) FindCollectionVersion(ctx context.Context, ref api.CollectionRef) (string, error) {
	q := url.Values{}
	q.Set("namespace", ref.Namespace)
	q.Set("name", ref.Name)
	q.Set("version", ref.Version)
	return a.first(ctx, pulpCollectionVersions+"?"+q.Encode())
}

func (a *Approvals) FindRepository(ctx context.Context, name string) (string, error) {
	return a.first(ctx, pulpRepositories+"?"+url.Values{"name": {name}}.Encode())
}

func (a *Approvals) MoveCollectionVersion(ctx context.Context, fromRepo, version, toRepo string) (*api.TriggerReply, error) {
	body := map[string][]string{
		"collection_versions":      {version},
		"destination_repositories": {toRepo},
	}
	resp, err := a.client.Do(ctx, http.MethodPost, fromRepo+"move_collection_version/", body)
	if err != nil {
		return nil, err
	}
	return &api.TriggerReply{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
