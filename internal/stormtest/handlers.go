package stormtest

import (
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

func (s *Server) projectLinks(pid string) string { return s.URL + "/projects/" + pid }

func (s *Server) compendiumURL(c *compendium) string {
	return s.projectLinks(c.project) + "/compendia/" + c.id
}

func (s *Server) draftDoc(c *compendium) map[string]any {
	doc := clone(c.draft)
	base := s.compendiumURL(c)
	doc["id"] = c.id
	doc["is_published"] = false
	doc["links"] = map[string]any{
		"self":     base + "/draft",
		"latest":   base + "/draft",
		"draft":    base + "/draft",
		"versions": base + "/versions",
		"files":    base + "/draft/files",
		"publish":  base + "/draft/actions/publish",
	}
	return doc
}

func (s *Server) recordDoc(c *compendium) map[string]any {
	doc := clone(c.record)
	base := s.compendiumURL(c)
	doc["id"] = c.id
	doc["is_published"] = true
	doc["links"] = map[string]any{
		"self":     base,
		"latest":   base,
		"draft":    base + "/draft",
		"versions": base + "/versions",
		"files":    base + "/files",
	}
	return doc
}

func (s *Server) entryDoc(c *compendium, f *file, draft bool) map[string]any {
	key := url.PathEscape(f.key)
	base := s.compendiumURL(c) + "/files/" + key
	if draft {
		base = s.compendiumURL(c) + "/draft/files/" + key
	}
	status := "pending"
	if f.committed {
		status = "completed"
	}
	doc := map[string]any{
		"key":       f.key,
		"file_id":   c.id + "-" + f.key,
		"bucket_id": "bucket-" + c.id,
		"status":    status,
		"mimetype":  "application/octet-stream",
		"links": map[string]any{
			"self":    base,
			"content": base + "/content",
		},
	}
	if f.content != nil {
		doc["size"] = len(f.content)
		doc["checksum"] = f.checksum
	}
	if draft {
		doc["links"].(map[string]any)["commit"] = base + "/commit"
	}
	return doc
}

func (s *Server) filesDoc(c *compendium, draft bool) map[string]any {
	fs := c.recordFS
	self := s.compendiumURL(c) + "/files"
	if draft {
		fs = c.files
		self = s.compendiumURL(c) + "/draft/files"
	}
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]any, len(keys))
	for i, k := range keys {
		entries[i] = s.entryDoc(c, fs[k], draft)
	}
	return map[string]any{
		"enabled": true,
		"entries": entries,
		"links":   map[string]any{"self": self},
	}
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		ids := make([]string, 0, len(s.projects))
		for id := range s.projects {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		items := make([]map[string]any, len(ids))
		for i, id := range ids {
			items[i] = clone(s.projects[id])
		}
		return http.StatusOK, hits(items)
	})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	pid := param(r, "pid")
	s.locked(w, func() (int, any) {
		p, ok := s.projects[pid]
		if !ok {
			return http.StatusNotFound, "project not found"
		}
		return http.StatusOK, clone(p)
	})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.locked(w, func() (int, any) {
		md, ok := body["metadata"].(map[string]any)
		if !ok {
			return http.StatusBadRequest, "metadata is required"
		}
		id := s.nextID("prj")
		s.projects[id] = map[string]any{
			"id":          id,
			"revision_id": 1,
			"is_finished": false,
			"metadata":    md,
			"links":       map[string]any{"self": s.projectLinks(id)},
		}
		return http.StatusCreated, clone(s.projects[id])
	})
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	pid := param(r, "pid")
	s.locked(w, func() (int, any) {
		if _, ok := s.projects[pid]; !ok {
			return http.StatusNotFound, "project not found"
		}
		delete(s.projects, pid)
		return http.StatusNoContent, nil
	})
}

func (s *Server) lookupCompendium(r *http.Request) (*compendium, bool) {
	c, ok := s.compendia[param(r, "cid")]
	if !ok || c.project != param(r, "pid") {
		return nil, false
	}
	return c, true
}

func (s *Server) searchCompendia(user bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := param(r, "pid")
		q := r.URL.Query().Get("q")
		s.locked(w, func() (int, any) {
			ids := make([]string, 0, len(s.compendia))
			for id := range s.compendia {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			var items []map[string]any
			for _, id := range ids {
				c := s.compendia[id]
				if c.project != pid {
					continue
				}
				if user && !c.owner {
					continue
				}
				if c.record != nil {
					items = append(items, s.recordDoc(c))
				} else if user && c.draft != nil {
					items = append(items, s.draftDoc(c))
				}
			}
			if q != "" {
				filtered := items[:0]
				for _, it := range items {
					md, _ := it["metadata"].(map[string]any)
					if title, _ := md["title"].(string); strings.Contains(title, q) {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			return http.StatusOK, hits(items)
		})
	}
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pid := param(r, "pid")
	s.locked(w, func() (int, any) {
		if _, ok := s.projects[pid]; !ok {
			return http.StatusNotFound, "project not found"
		}
		if body == nil {
			body = map[string]any{}
		}
		delete(body, "links")
		c := &compendium{
			id:       s.nextID("c"),
			project:  pid,
			owner:    true,
			draft:    body,
			files:    map[string]*file{},
			recordFS: map[string]*file{},
		}
		s.compendia[c.id] = c
		return http.StatusCreated, s.draftDoc(c)
	})
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.draft == nil {
			return http.StatusNotFound, "draft not found"
		}
		return http.StatusOK, s.draftDoc(c)
	})
}

// editDraft opens an edit draft of a record, keeping its committed files.
func (s *Server) editDraft(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.record == nil {
			return http.StatusNotFound, "record not found"
		}
		if c.draft == nil {
			c.draft = clone(c.record)
			delete(c.draft, "is_published")
			c.files = map[string]*file{}
			for k, f := range c.recordFS {
				c.files[k] = newFile(k, f.content, true)
			}
		}
		return http.StatusCreated, s.draftDoc(c)
	})
}

func (s *Server) saveDraft(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.draft == nil {
			return http.StatusNotFound, "draft not found"
		}
		delete(body, "links")
		delete(body, "is_published")
		c.draft = body
		return http.StatusOK, s.draftDoc(c)
	})
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.draft == nil {
			return http.StatusNotFound, "draft not found"
		}
		for _, f := range c.files {
			if !f.committed {
				return http.StatusBadRequest, "file " + f.key + " is not committed"
			}
		}
		rec := clone(c.draft)
		delete(rec, "errors")
		c.record = rec
		c.recordFS = c.files
		c.files = map[string]*file{}
		c.draft = nil
		return http.StatusAccepted, s.recordDoc(c)
	})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.record == nil {
			return http.StatusNotFound, "record not found"
		}
		return http.StatusOK, s.recordDoc(c)
	})
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok {
			return http.StatusNotFound, "compendium not found"
		}
		root := c.id
		if c.versionOf != "" {
			root = c.versionOf
		}
		ids := make([]string, 0)
		for id, o := range s.compendia {
			if o.record != nil && (id == root || o.versionOf == root) {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		items := make([]map[string]any, len(ids))
		for i, id := range ids {
			items[i] = s.recordDoc(s.compendia[id])
		}
		return http.StatusOK, hits(items)
	})
}

func (s *Server) newVersion(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.record == nil {
			return http.StatusNotFound, "record not found"
		}
		root := c.id
		if c.versionOf != "" {
			root = c.versionOf
		}
		draft := clone(c.record)
		delete(draft, "is_published")
		nc := &compendium{
			id:        s.nextID("c"),
			project:   c.project,
			owner:     true,
			draft:     draft,
			files:     map[string]*file{},
			recordFS:  map[string]*file{},
			versionOf: root,
		}
		for k, f := range c.recordFS {
			nc.files[k] = newFile(k, f.content, true)
		}
		s.compendia[nc.id] = nc
		return http.StatusCreated, s.draftDoc(nc)
	})
}

func (s *Server) listFiles(draft bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			c, ok := s.lookupCompendium(r)
			if !ok || (draft && c.draft == nil) || (!draft && c.record == nil) {
				return http.StatusNotFound, "compendium not found"
			}
			return http.StatusOK, s.filesDoc(c, draft)
		})
	}
}

func (s *Server) defineFiles(w http.ResponseWriter, r *http.Request) {
	var body []map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.locked(w, func() (int, any) {
		c, ok := s.lookupCompendium(r)
		if !ok || c.draft == nil {
			return http.StatusNotFound, "draft not found"
		}
		for _, e := range body {
			key, _ := e["key"].(string)
			if key == "" {
				return http.StatusBadRequest, "file key is required"
			}
			if _, exists := c.files[key]; !exists {
				c.files[key] = &file{key: key}
			}
		}
		return http.StatusCreated, s.filesDoc(c, true)
	})
}

func (s *Server) draftFile(r *http.Request) (*compendium, *file, int, string) {
	c, ok := s.lookupCompendium(r)
	if !ok || c.draft == nil {
		return nil, nil, http.StatusNotFound, "draft not found"
	}
	f, ok := c.files[param(r, "key")]
	if !ok {
		return nil, nil, http.StatusNotFound, "file not defined"
	}
	return c, f, 0, ""
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, f, status, msg := s.draftFile(r)
		if status != 0 {
			return status, msg
		}
		delete(c.files, f.key)
		return http.StatusNoContent, nil
	})
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	content, _ := io.ReadAll(r.Body)
	s.locked(w, func() (int, any) {
		c, f, status, msg := s.draftFile(r)
		if status != 0 {
			return status, msg
		}
		*f = *newFile(f.key, content, false)
		return http.StatusOK, s.entryDoc(c, f, true)
	})
}

func (s *Server) commitFile(w http.ResponseWriter, r *http.Request) {
	s.locked(w, func() (int, any) {
		c, f, status, msg := s.draftFile(r)
		if status != 0 {
			return status, msg
		}
		if f.content == nil {
			return http.StatusBadRequest, "file content not uploaded"
		}
		f.committed = true
		return http.StatusOK, s.entryDoc(c, f, true)
	})
}

func (s *Server) fileContent(draft bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var content []byte
		var found bool
		if c, ok := s.lookupCompendium(r); ok {
			fs := c.recordFS
			if draft {
				fs = c.files
			}
			if f, ok := fs[param(r, "key")]; ok && f.content != nil {
				content, found = f.content, true
				if s.corrupt[f.key] {
					content = append(append([]byte(nil), content...), "corrupted"...)
				}
			}
		}
		s.mu.Unlock()
		if !found {
			writeError(w, http.StatusNotFound, "file content not found")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	}
}

func (s *Server) graphDoc(kind string, g map[string]any) map[string]any {
	doc := clone(g)
	base := s.projectLinks(g["project_id"].(string)) + "/" + kind + "/" + g["id"].(string)
	doc["links"] = map[string]any{
		"self":     base,
		"versions": base + "/versions",
		"actions": map[string]any{
			"add-compendium":    base + "/actions/add-compendium",
			"delete-compendium": base + "/actions/delete-compendium",
			"finish":            base + "/actions/finish",
		},
	}
	return doc
}

func (s *Server) lookupGraph(kind string, r *http.Request) (map[string]any, bool) {
	g, ok := s.graphs[kind+"/"+param(r, "gid")]
	if !ok || g["project_id"] != param(r, "pid") {
		return nil, false
	}
	return g, true
}

func (s *Server) searchGraphs(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := param(r, "pid")
		s.locked(w, func() (int, any) {
			keys := make([]string, 0)
			for k, g := range s.graphs {
				if strings.HasPrefix(k, kind+"/") && g["project_id"] == pid {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			items := make([]map[string]any, len(keys))
			for i, k := range keys {
				items[i] = s.graphDoc(kind, s.graphs[k])
			}
			return http.StatusOK, hits(items)
		})
	}
}

func (s *Server) createGraph(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pid := param(r, "pid")
		s.locked(w, func() (int, any) {
			if body == nil {
				body = map[string]any{}
			}
			md, ok := body["metadata"].(map[string]any)
			if !ok {
				md = map[string]any{}
			}
			md["version"] = float64(1)
			id := s.nextID(kind[:1])
			g := map[string]any{
				"id":          id,
				"project_id":  pid,
				"is_finished": false,
				"metadata":    md,
				"graph":       map[string]any{"nodes": map[string]any{}},
			}
			s.graphs[kind+"/"+id] = g
			return http.StatusCreated, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) getGraph(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			return http.StatusOK, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) saveGraph(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			if g["is_finished"] == true {
				return http.StatusBadRequest, "graph is finished"
			}
			if md, ok := body["metadata"].(map[string]any); ok {
				md["version"] = g["metadata"].(map[string]any)["version"]
				g["metadata"] = md
			}
			return http.StatusOK, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) deleteGraph(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			if _, ok := s.lookupGraph(kind, r); !ok {
				return http.StatusNotFound, "graph not found"
			}
			delete(s.graphs, kind+"/"+param(r, "gid"))
			return http.StatusNoContent, nil
		})
	}
}

func (s *Server) addCompendium(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			if g["is_finished"] == true {
				return http.StatusBadRequest, "graph is finished"
			}
			nodesOf(g)[param(r, "cid")] = map[string]any{}
			return http.StatusOK, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) deleteCompendium(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			if g["is_finished"] == true {
				return http.StatusBadRequest, "graph is finished"
			}
			nodes := nodesOf(g)
			cid := param(r, "cid")
			if _, ok := nodes[cid]; !ok {
				return http.StatusNotFound, "compendium not in graph"
			}
			delete(nodes, cid)
			return http.StatusOK, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) finishGraph(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			g["is_finished"] = true
			return http.StatusAccepted, s.graphDoc(kind, g)
		})
	}
}

func (s *Server) newGraphVersion(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			g, ok := s.lookupGraph(kind, r)
			if !ok {
				return http.StatusNotFound, "graph not found"
			}
			ng := clone(g)
			ng["id"] = s.nextID(kind[:1])
			ng["is_finished"] = false
			md := ng["metadata"].(map[string]any)
			v, _ := md["version"].(float64)
			md["version"] = v + 1
			s.graphs[kind+"/"+ng["id"].(string)] = ng
			return http.StatusCreated, s.graphDoc(kind, ng)
		})
	}
}

func (s *Server) runnerDoc(coll string, doc map[string]any) map[string]any {
	out := clone(doc)
	out["links"] = map[string]any{"self": s.URL + "/" + coll + "/" + doc["id"].(string)}
	return out
}

func (s *Server) searchRunners(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			ids := make([]string, 0)
			for id := range s.runners[coll] {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			items := make([]map[string]any, len(ids))
			for i, id := range ids {
				items[i] = s.runnerDoc(coll, s.runners[coll][id])
			}
			return http.StatusOK, hits(items)
		})
	}
}

func (s *Server) createRunner(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.locked(w, func() (int, any) {
			if body == nil {
				body = map[string]any{}
			}
			if _, ok := body["service"].(string); !ok {
				return http.StatusBadRequest, "service must be an id"
			}
			if _, has := body["customizations"]; has {
				return http.StatusBadRequest, "invalid customizations"
			}
			delete(body, "links")
			body["id"] = s.nextID(coll[:1])
			body["status"] = "created"
			s.runners[coll][body["id"].(string)] = body
			return http.StatusCreated, s.runnerDoc(coll, body)
		})
	}
}

func (s *Server) listServices(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			return http.StatusOK, hits(s.services[coll])
		})
	}
}

func (s *Server) getRunner(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			doc, ok := s.runners[coll][param(r, "id")]
			if !ok {
				return http.StatusNotFound, "not found"
			}
			return http.StatusOK, s.runnerDoc(coll, doc)
		})
	}
}

func (s *Server) saveRunner(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.locked(w, func() (int, any) {
			doc, ok := s.runners[coll][param(r, "id")]
			if !ok {
				return http.StatusNotFound, "not found"
			}
			if body == nil {
				body = map[string]any{}
			}
			delete(body, "links")
			body["id"] = doc["id"]
			body["status"] = doc["status"]
			s.runners[coll][param(r, "id")] = body
			return http.StatusOK, s.runnerDoc(coll, body)
		})
	}
}

func (s *Server) deleteRunner(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			if _, ok := s.runners[coll][param(r, "id")]; !ok {
				return http.StatusNotFound, "not found"
			}
			delete(s.runners[coll], param(r, "id"))
			return http.StatusNoContent, nil
		})
	}
}

func (s *Server) runnerAction(coll string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.locked(w, func() (int, any) {
			doc, ok := s.runners[coll][param(r, "id")]
			if !ok {
				return http.StatusNotFound, "not found"
			}
			switch param(r, "action") {
			case "start":
				doc["status"] = "running"
			case "cancel":
				doc["status"] = "canceled"
			default:
				return http.StatusNotFound, "unknown action"
			}
			return http.StatusAccepted, nil
		})
	}
}
