package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/mnemo/internal/engine"
)

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req engine.RememberInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}

	result, err := s.engine.Remember(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if result.Status == engine.StatusStored {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := q.Get("owner")
	query := q.Get("q")
	if owner == "" || query == "" {
		writeError(w, http.StatusBadRequest, "owner and q required")
		return
	}

	limit := 5
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	filters := engine.RecallFilters{}
	if c := q.Get("categories"); c != "" {
		filters.Categories = strings.Split(c, ",")
	}
	if t := q.Get("tags"); t != "" {
		filters.Tags = strings.Split(t, ",")
	}

	results, err := s.engine.Recall(r.Context(), owner, query, limit, filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []engine.RecallResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": results})
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "memoryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req struct {
		Owner   string `json:"owner"`
		Outcome string `json:"outcome"`
		Archive bool   `json:"archive,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" || req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "owner and outcome required")
		return
	}

	found, err := s.engine.SetOutcome(req.Owner, id, req.Outcome, req.Archive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	var req engine.ForgetInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}

	result, err := s.engine.Forget(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}

	indexed, embedded, err := s.engine.Reindex(r.Context(), req.Owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reindexed",
		"indexed":  indexed,
		"embedded": embedded,
	})
}

func (s *Server) handleGraphQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner      string   `json:"owner"`
		QueryParts []string `json:"query_parts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" || len(req.QueryParts) == 0 {
		writeError(w, http.StatusBadRequest, "owner and query_parts required")
		return
	}

	result, err := s.engine.RelateQuery(req.Owner, req.QueryParts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRelate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner        string `json:"owner"`
		Source       string `json:"source"`
		Target       string `json:"target"`
		Relationship string `json:"relationship"`
		Description  string `json:"description,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Owner == "" || req.Source == "" || req.Target == "" || req.Relationship == "" {
		writeError(w, http.StatusBadRequest, "owner, source, target, relationship required")
		return
	}

	if err := s.engine.Relate(req.Owner, req.Source, req.Target, req.Relationship, req.Description); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "linked"})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	var err error
	var entities any
	if limit > 0 {
		entities, err = s.db.PopularEntities(owner, limit)
	} else {
		entities, err = s.db.ListEntities(owner)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}

	communities, err := s.engine.Communities(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"communities": communities})
}
