// Package stormtest runs an in-process Storm WS double for tests. It keeps
// its state in memory and records every request it serves.
package stormtest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Call is one request served by the double.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type file struct {
	key       string
	content   []byte
	committed bool
	checksum  string
}

type compendium struct {
	id        string
	project   string
	owner     bool
	draft     map[string]any
	record    map[string]any
	files     map[string]*file
	recordFS  map[string]*file
	versionOf string
}

// Server is the Storm WS double.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	seq       int
	calls     []Call
	failures  map[string]int
	projects  map[string]map[string]any
	compendia map[string]*compendium
	graphs    map[string]map[string]any
	runners   map[string]map[string]map[string]any
	services  map[string][]map[string]any
	corrupt   map[string]bool
}

type bodyKey struct{}

// New starts a double and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		failures:  map[string]int{},
		projects:  map[string]map[string]any{},
		compendia: map[string]*compendium{},
		graphs:    map[string]map[string]any{},
		runners: map[string]map[string]map[string]any{
			"deposits":   {},
			"jobs":       {},
			"executions": {},
		},
		services: map[string][]map[string]any{},
		corrupt:  map[string]bool{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			body, _ := io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewBuffer(body))
			s.mu.Lock()
			s.calls = append(s.calls, Call{
				Method: req.Method,
				Path:   req.URL.Path,
				Query:  req.URL.Query(),
				Header: req.Header.Clone(),
				Body:   body,
			})
			status, fail := s.failures[req.Method+" "+req.URL.Path]
			s.mu.Unlock()
			if fail {
				writeError(w, status, "injected failure")
				return
			}
			ctx := context.WithValue(req.Context(), bodyKey{}, body)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/projects", s.listProjects)
	r.Post("/projects", s.createProject)
	r.Get("/projects/{pid}", s.getProject)
	r.Delete("/projects/{pid}", s.deleteProject)

	r.Route("/projects/{pid}/compendia", func(r chi.Router) {
		r.Get("/", s.searchCompendia(false))
		r.Post("/", s.createDraft)
		r.Get("/user", s.searchCompendia(true))
		r.Get("/{cid}", s.getRecord)
		r.Get("/{cid}/versions", s.listVersions)
		r.Post("/{cid}/versions", s.newVersion)
		r.Get("/{cid}/files", s.listFiles(false))
		r.Get("/{cid}/files/{key}/content", s.fileContent(false))
		r.Get("/{cid}/draft", s.getDraft)
		r.Post("/{cid}/draft", s.editDraft)
		r.Put("/{cid}/draft", s.saveDraft)
		r.Post("/{cid}/draft/actions/publish", s.publish)
		r.Get("/{cid}/draft/files", s.listFiles(true))
		r.Post("/{cid}/draft/files", s.defineFiles)
		r.Delete("/{cid}/draft/files/{key}", s.deleteFile)
		r.Put("/{cid}/draft/files/{key}/content", s.uploadFile)
		r.Get("/{cid}/draft/files/{key}/content", s.fileContent(true))
		r.Post("/{cid}/draft/files/{key}/commit", s.commitFile)
	})

	for _, kind := range []string{"pipelines", "workflows"} {
		r.Route("/projects/{pid}/"+kind, func(r chi.Router) {
			r.Get("/", s.searchGraphs(kind))
			r.Post("/", s.createGraph(kind))
			r.Get("/{gid}", s.getGraph(kind))
			r.Put("/{gid}", s.saveGraph(kind))
			r.Delete("/{gid}", s.deleteGraph(kind))
			r.Post("/{gid}/actions/add-compendium/{cid}", s.addCompendium(kind))
			r.Delete("/{gid}/actions/delete-compendium/{cid}", s.deleteCompendium(kind))
			r.Post("/{gid}/actions/finish", s.finishGraph(kind))
			r.Post("/{gid}/versions", s.newGraphVersion(kind))
		})
	}

	for _, coll := range []string{"deposits", "jobs", "executions"} {
		r.Route("/"+coll, func(r chi.Router) {
			r.Get("/", s.searchRunners(coll))
			r.Post("/", s.createRunner(coll))
			r.Get("/services", s.listServices(coll))
			r.Get("/{id}", s.getRunner(coll))
			r.Put("/{id}", s.saveRunner(coll))
			r.Delete("/{id}", s.deleteRunner(coll))
			r.Post("/{id}/actions/{action}", s.runnerAction(coll))
		})
	}
	return r
}

// Calls returns a copy of the recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsMatching returns "METHOD path" strings of the calls whose path
// contains fragment.
func (s *Server) CallsMatching(fragment string) []string {
	var out []string
	for _, c := range s.Calls() {
		if strings.Contains(c.Path, fragment) {
			out = append(out, c.Method+" "+c.Path)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// FailOn makes requests for method and path answer with status.
func (s *Server) FailOn(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// ClearFailures drops every failure set with FailOn.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]int{}
}

// Corrupt makes downloads of key serve different bytes than the checksum
// advertises.
func (s *Server) Corrupt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[key] = true
}

// AddProject seeds a project.
func (s *Server) AddProject(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[id] = map[string]any{
		"id":          id,
		"revision_id": 1,
		"is_finished": false,
		"metadata":    map[string]any{"title": title},
		"links":       map[string]any{"self": s.URL + "/projects/" + id},
	}
}

// AddRecord seeds a published compendium with the given files.
func (s *Server) AddRecord(project, id, title string, files map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &compendium{id: id, project: project, files: map[string]*file{}, recordFS: map[string]*file{}}
	for k, v := range files {
		c.recordFS[k] = newFile(k, []byte(v), true)
	}
	c.record = map[string]any{
		"id":           id,
		"is_published": true,
		"metadata":     map[string]any{"title": title},
	}
	s.compendia[id] = c
}

// AddGraph seeds a pipeline or workflow ("pipelines" or "workflows") whose
// graph holds nodes.
func (s *Server) AddGraph(kind, project, id string, nodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := map[string]any{
		"id":          id,
		"project_id":  project,
		"is_finished": false,
		"metadata":    map[string]any{"title": id, "version": float64(1)},
		"graph":       map[string]any{"nodes": map[string]any{}},
	}
	for _, n := range nodes {
		nodesOf(g)[n] = map[string]any{}
	}
	s.graphs[kind+"/"+id] = g
}

// AddService seeds a plugin service for deposits, jobs or executions.
func (s *Server) AddService(coll, id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[coll] = append(s.services[coll], map[string]any{
		"id":       id,
		"metadata": map[string]any{"title": title},
	})
}

// GraphNodes returns the sorted node ids of a stored graph.
func (s *Server) GraphNodes(kind, id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[kind+"/"+id]
	if !ok {
		return nil
	}
	var out []string
	for k := range nodesOf(g) {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newFile(key string, content []byte, committed bool) *file {
	sum := md5.Sum(content)
	return &file{key: key, content: content, committed: committed, checksum: "md5:" + hex.EncodeToString(sum[:])}
}

func nodesOf(g map[string]any) map[string]any {
	return g["graph"].(map[string]any)["nodes"].(map[string]any)
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

// Handlers below run with s.mu held through locked.

func (s *Server) locked(w http.ResponseWriter, fn func() (int, any)) {
	s.mu.Lock()
	status, body := fn()
	s.mu.Unlock()
	if status >= 300 {
		msg, _ := body.(string)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{
		"code":    strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		"message": msg,
	}})
}

func decodeBody(r *http.Request, v any) error {
	b, _ := r.Context().Value(bodyKey{}).([]byte)
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func hits(items []map[string]any) map[string]any {
	list := make([]any, len(items))
	for i, it := range items {
		list[i] = it
	}
	return map[string]any{"hits": map[string]any{"hits": list, "total": len(items)}}
}

func clone(m map[string]any) map[string]any {
	b, _ := json.Marshal(m)
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}
