// Package hubsim is an in-memory automation hub and controller used by tests
// and by the ahctl-hubsim binary for local runs. It implements just enough of
// the remote API for ahctl to drive: project updates, pulp repository syncs
// and collection approval in both standalone and platform flavours.
package hubsim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Call counter keys.
const (
	CallList     = "list"
	CallEligible = "eligible"
	CallTrigger  = "trigger"
	CallStatus   = "status"
	CallProbe    = "probe"
	CallLookup   = "lookup"
	CallMove     = "move"
)

const (
	pulpRoot          = "/api/galaxy/pulp/api/v3"
	ansibleRepos      = pulpRoot + "/repositories/ansible/ansible/"
	stagingID         = "staging"
	publishedID       = "published"
	collectionVersion = pulpRoot + "/content/ansible/collection_versions/"
)

// Project is a controller project. Script is the status reported by each
// successive poll of an update job; the last entry repeats. An empty script
// reports successful on the first poll.
type Project struct {
	ID        int      `yaml:"id"`
	Name      string   `yaml:"name"`
	CanUpdate bool     `yaml:"can_update"`
	Script    []string `yaml:"script"`
}

// Repository is a pulp ansible repository. Script holds pulp task states.
type Repository struct {
	Name   string   `yaml:"name"`
	Remote string   `yaml:"remote"`
	Script []string `yaml:"script"`
}

// Collection is an uploaded version waiting in staging. It becomes visible
// to version lookups after VisibleAfter lookups have missed it.
type Collection struct {
	Namespace    string `yaml:"namespace"`
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	VisibleAfter int    `yaml:"visible_after"`
}

// Server is the simulated hub. Configure the exported fields before the
// first request; they are read-only afterwards.
type Server struct {
	Token        string
	Standalone   bool
	Projects     []Project
	Repositories []Repository
	Collections  []Collection
	// PageSize > 0 paginates list endpoints with absolute next links.
	PageSize int
	// RejectTriggers answers the first N trigger calls with 400.
	RejectTriggers int
	// OmitJobID accepts triggers but returns no job reference.
	OmitJobID bool
	// MoveFailures answers the first N direct moves with 409.
	MoveFailures int

	once      sync.Once
	mu        sync.Mutex
	repoHrefs []string
	jobs      map[string]*job
	nextJob   int
	calls     map[string]int
	lookups   map[string]int
	published map[string]bool
	srv       *http.Server
}

type job struct {
	script []string
	polls  int
}

func (j *job) next(fallback string) string {
	if len(j.script) == 0 {
		return fallback
	}
	i := min(j.polls, len(j.script)-1)
	j.polls++
	return j.script[i]
}

func (s *Server) init() {
	s.once.Do(func() {
		s.jobs = map[string]*job{}
		s.calls = map[string]int{}
		s.lookups = map[string]int{}
		s.published = map[string]bool{}
		s.nextJob = 100
		for range s.Repositories {
			s.repoHrefs = append(s.repoHrefs, ansibleRepos+uuid.NewString()+"/")
		}
	})
}

// Calls returns how many requests of kind were served.
func (s *Server) Calls(kind string) int {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// Published reports whether the collection version reached published.
func (s *Server) Published(namespace, name, version string) bool {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[collectionKey(namespace, name, version)]
}

func collectionKey(namespace, name, version string) string {
	return namespace + "." + name + ":" + version
}

func (s *Server) count(kind string) {
	s.mu.Lock()
	s.calls[kind]++
	s.mu.Unlock()
}

// Handler returns the simulator's routes.
func (s *Server) Handler() http.Handler {
	s.init()
	mux := http.NewServeMux()
	s.routes(mux)
	return mux
}

func (s *Server) routes(mux *http.ServeMux) {
	bearer := func(h http.HandlerFunc) http.HandlerFunc { return s.auth("Bearer", h) }
	token := func(h http.HandlerFunc) http.HandlerFunc { return s.auth("Token", h) }

	mux.HandleFunc("GET /api/{$}", token(s.platformRoot))

	mux.HandleFunc("GET /api/controller/v2/projects/{$}", bearer(s.listProjects))
	mux.HandleFunc("GET /api/controller/v2/projects/{id}/update/{$}", bearer(s.canUpdate))
	mux.HandleFunc("POST /api/controller/v2/projects/{id}/update/{$}", bearer(s.updateProject))
	mux.HandleFunc("GET /api/controller/v2/project_updates/{id}/{$}", bearer(s.projectUpdate))

	mux.HandleFunc("GET "+ansibleRepos+"{$}", token(s.listRepositories))
	mux.HandleFunc("GET "+ansibleRepos+"{id}/{$}", token(s.repository))
	mux.HandleFunc("POST "+ansibleRepos+"{id}/sync/{$}", token(s.syncRepository))
	mux.HandleFunc("POST "+ansibleRepos+"{id}/move_collection_version/{$}", token(s.moveCollectionVersion))
	mux.HandleFunc("GET "+pulpRoot+"/tasks/{id}/{$}", token(s.task))
	mux.HandleFunc("GET "+pulpRoot+"/repositories/{$}", token(s.findRepository))
	mux.HandleFunc("GET "+collectionVersion+"{$}", token(s.findCollectionVersion))
	mux.HandleFunc("POST /api/galaxy/v3/collections/{namespace}/{name}/versions/{version}/move/staging/published/{$}", token(s.directMove))
}

func (s *Server) auth(scheme string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != scheme+" "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Write response")
	}
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

// paginate slices items for the requested page and builds the next link.
func paginate[T any](s *Server, r *http.Request, items []T) map[string]any {
	out := map[string]any{"count": len(items), "next": nil, "results": items}
	if s.PageSize <= 0 {
		return out
	}
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}
	start := min((pageNum-1)*s.PageSize, len(items))
	end := min(start+s.PageSize, len(items))
	out["results"] = items[start:end]
	if end < len(items) {
		out["next"] = fmt.Sprintf("http://%s%s?page=%d", r.Host, r.URL.Path, pageNum+1)
	}
	return out
}

func (s *Server) platformRoot(w http.ResponseWriter, r *http.Request) {
	s.count(CallProbe)
	if s.Standalone {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current_version": "v1"})
}

func (s *Server) project(r *http.Request) (Project, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return Project{}, false
	}
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.count(CallList)
	type item struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	items := make([]item, 0, len(s.Projects))
	for _, p := range s.Projects {
		items = append(items, item{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, paginate(s, r, items))
}

func (s *Server) canUpdate(w http.ResponseWriter, r *http.Request) {
	s.count(CallEligible)
	p, ok := s.project(r)
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_update": p.CanUpdate})
}

// startJob records a new job unless triggers are being rejected. It returns
// the job key, or "" when the trigger was rejected.
func (s *Server) startJob(prefix string, script []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallTrigger]++
	if s.calls[CallTrigger] <= s.RejectTriggers {
		return ""
	}
	s.nextJob++
	key := prefix + strconv.Itoa(s.nextJob)
	s.jobs[key] = &job{script: script}
	return key
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.project(r)
	if !ok {
		notFound(w)
		return
	}
	key := s.startJob("", p.Script)
	switch {
	case key == "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "update rejected"})
	case s.OmitJobID:
		writeJSON(w, http.StatusAccepted, map[string]any{})
	default:
		id, _ := strconv.Atoi(key)
		writeJSON(w, http.StatusAccepted, map[string]int{"project_update": id, "id": id})
	}
}

func (s *Server) jobStatus(key, fallback string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallStatus]++
	j, ok := s.jobs[key]
	if !ok {
		return "", false
	}
	return j.next(fallback), true
}

func (s *Server) projectUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := s.jobStatus(id, "successful")
	if !ok {
		notFound(w)
		return
	}
	failed := status == "failed" || status == "error" || status == "canceled"
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status, "failed": failed})
}

type repoJSON struct {
	Href   string  `json:"pulp_href"`
	Name   string  `json:"name"`
	Remote *string `json:"remote"`
}

func (s *Server) repoJSON(i int) repoJSON {
	out := repoJSON{Href: s.repoHrefs[i], Name: s.Repositories[i].Name}
	if s.Repositories[i].Remote != "" {
		out.Remote = &s.Repositories[i].Remote
	}
	return out
}

func (s *Server) repoIndex(r *http.Request) int {
	href := ansibleRepos + r.PathValue("id") + "/"
	for i, h := range s.repoHrefs {
		if h == href {
			return i
		}
	}
	return -1
}

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	s.count(CallList)
	items := make([]repoJSON, 0, len(s.Repositories))
	for i := range s.Repositories {
		items = append(items, s.repoJSON(i))
	}
	writeJSON(w, http.StatusOK, paginate(s, r, items))
}

func (s *Server) repository(w http.ResponseWriter, r *http.Request) {
	s.count(CallEligible)
	i := s.repoIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, s.repoJSON(i))
}

func (s *Server) syncRepository(w http.ResponseWriter, r *http.Request) {
	i := s.repoIndex(r)
	if i < 0 {
		notFound(w)
		return
	}
	key := s.startJob("task-", s.Repositories[i].Script)
	switch {
	case key == "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "sync rejected"})
	case s.OmitJobID:
		writeJSON(w, http.StatusAccepted, map[string]any{})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task": pulpRoot + "/tasks/" + key + "/"})
	}
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) {
	state, ok := s.jobStatus(r.PathValue("id"), "completed")
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pulp_href": pulpRoot + "/tasks/" + r.PathValue("id") + "/",
		"state":     state,
	})
}

func (s *Server) findRepository(w http.ResponseWriter, r *http.Request) {
	s.count(CallLookup)
	name := r.URL.Query().Get("name")
	var results []map[string]string
	if !s.Standalone && (name == stagingID || name == publishedID) {
		results = append(results, map[string]string{"pulp_href": ansibleRepos + name + "/", "name": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "next": nil, "results": results})
}

func (s *Server) collection(namespace, name, version string) int {
	for i, c := range s.Collections {
		if c.Namespace == namespace && c.Name == name && c.Version == version {
			return i
		}
	}
	return -1
}

func (s *Server) findCollectionVersion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ns, name, version := q.Get("namespace"), q.Get("name"), q.Get("version")

	s.mu.Lock()
	s.calls[CallLookup]++
	key := collectionKey(ns, name, version)
	seen := s.lookups[key]
	s.lookups[key]++
	s.mu.Unlock()

	var results []map[string]string
	if i := s.collection(ns, name, version); i >= 0 && seen >= s.Collections[i].VisibleAfter {
		results = append(results, map[string]string{
			"pulp_href": collectionVersion + strconv.Itoa(i) + "/",
			"namespace": ns,
			"name":      name,
			"version":   version,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "next": nil, "results": results})
}

func (s *Server) moveCollectionVersion(w http.ResponseWriter, r *http.Request) {
	s.count(CallMove)
	if r.PathValue("id") != stagingID {
		notFound(w)
		return
	}
	var body struct {
		CollectionVersions      []string `json:"collection_versions"`
		DestinationRepositories []string `json:"destination_repositories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if len(body.DestinationRepositories) != 1 || body.DestinationRepositories[0] != ansibleRepos+publishedID+"/" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unknown destination"})
		return
	}
	s.mu.Lock()
	for _, href := range body.CollectionVersions {
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(href, collectionVersion), "/"))
		if err != nil || i < 0 || i >= len(s.Collections) {
			continue
		}
		c := s.Collections[i]
		s.published[collectionKey(c.Namespace, c.Name, c.Version)] = true
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]string{"task": pulpRoot + "/tasks/move-" + uuid.NewString() + "/"})
}

func (s *Server) directMove(w http.ResponseWriter, r *http.Request) {
	ns, name, version := r.PathValue("namespace"), r.PathValue("name"), r.PathValue("version")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallMove]++
	if s.collection(ns, name, version) < 0 {
		notFound(w)
		return
	}
	if s.calls[CallMove] <= s.MoveFailures {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "collection is still being imported"})
		return
	}
	s.published[collectionKey(ns, name, version)] = true
	writeJSON(w, http.StatusAccepted, map[string]string{"task": pulpRoot + "/tasks/move-" + uuid.NewString() + "/"})
}

// ListenAndServe starts the simulator on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	return s.srv.ListenAndServe()
}

// Shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return fmt.Errorf("server not running")
	}
	return s.srv.Shutdown(ctx)
}
