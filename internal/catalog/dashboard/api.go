package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/opendatath/catalog/internal/catalog"
	"github.com/opendatath/catalog/internal/catalog/browse"
	"github.com/opendatath/catalog/internal/catalog/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case catalog.IsNotFound(err):
		status = http.StatusNotFound
	case catalog.IsParse(err):
		status = http.StatusBadRequest
	case catalog.IsRemote(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: catalog.Kind(err)})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", catalog.ErrParse, fmt.Sprintf(format, args...))
}

// parseQuery maps URL parameters onto a service.Query:
// q, organization, file_type, ranking, updated_since, sort, order, page, page_size.
func parseQuery(r *http.Request, now time.Time) (service.Query, error) {
	v := r.URL.Query()
	q := service.Query{Filter: browse.NewFilter()}
	q.Filter.Search = v.Get("q")
	q.Filter.Organization = v.Get("organization")
	q.Filter.FileType = v.Get("file_type")

	if s := v.Get("ranking"); s != "" && s != "all" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, badRequest("ranking must be a number, got %q", s)
		}
		q.Filter.Ranking = n
	}
	if s := v.Get("updated_since"); s != "" {
		t, err := browse.ParseSince(s, now)
		if err != nil {
			return q, badRequest("updated_since: %v", err)
		}
		q.Filter.UpdatedSince = t
	}

	key, ok := browse.ParseSortKey(v.Get("sort"))
	if !ok {
		return q, badRequest("unknown sort column %q", v.Get("sort"))
	}
	q.Sort = key
	q.Desc = strings.EqualFold(v.Get("order"), "desc")

	var err error
	if q.Page, err = intParam(v.Get("page"), 1); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(v.Get("page_size"), browse.DefaultPageSize); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("expected a number, got %q", s)
	}
	return n, nil
}

type pageResponse struct {
	Items   []service.Row `json:"items"`
	Page    int           `json:"page"`
	Pages   int           `json:"pages"`
	Total   int           `json:"total"`
	Caption string        `json:"caption"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	page, err := s.catalog.Browse(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Items:   page.Items,
		Page:    page.Page,
		Pages:   page.Pages,
		Total:   page.Total,
		Caption: page.Caption(),
	})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	dataset, err := s.catalog.GetDataset(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resources, err := s.catalog.ResourcesFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ranking, err := s.catalog.RankingFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":   dataset,
		"resources": resources,
		"ranking":   ranking,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	status := s.catalog.RefreshDataset(r.Context(), mux.Vars(r)["id"])
	code := http.StatusOK
	if !status.OK {
		switch {
		case errors.Is(status.Err, catalog.ErrUnavailable):
			code = http.StatusServiceUnavailable
		case errors.Is(status.Err, catalog.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(status.Err, catalog.ErrParse):
			code = http.StatusBadRequest
		default:
			code = http.StatusBadGateway
		}
	}
	writeJSON(w, code, map[string]any{
		"ok":        status.OK,
		"message":   status.String(),
		"resources": status.Resources,
		"preserved": status.Preserved,
	})
}

func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ranking, err := s.catalog.RankingFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"package_id": id, "ranking": ranking})
}

func (s *Server) handleSetRanking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Ranking *int `json:"ranking"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Ranking == nil {
		s.writeError(w, badRequest(`body must be {"ranking": 0-4}`))
		return
	}
	if !s.catalog.SetRanking(r.Context(), id, *body.Ranking) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "package_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "package_id": id, "ranking": *body.Ranking})
}

// handleRankings serves /api/rankings?id=a&id=b (or id=a,b).
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	rankings, err := s.catalog.RankingsFor(r.Context(), ids)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	topN, err := intParam(r.URL.Query().Get("top"), browse.DefaultTopN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary, err := s.catalog.Stats(r.Context(), topN)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	orgs, err := s.catalog.Organizations(r.Context(), browse.OrgFilter{
		Search:   v.Get("q"),
		Type:     v.Get("type"),
		Province: v.Get("province"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (s *Server) handleFileTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.FileTypes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.catalog.Compare(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets_file_present":  cmp.DatasetsFilePresent,
		"resources_file_present": cmp.ResourcesFilePresent,
		"snapshot_datasets":      cmp.SnapshotDatasets,
		"snapshot_resources":     cmp.SnapshotResources,
		"store_datasets":         cmp.StoreDatasets,
		"store_resources":        cmp.StoreResources,
		"stale":                  cmp.Stale(),
		"in_sync":                cmp.InSync(),
		"last_import":            cmp.LastImport,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	result := s.catalog.Import(r.Context(), force)
	code := http.StatusOK
	if !result.OK {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, map[string]any{
		"ok":        result.OK,
		"skipped":   result.Skipped,
		"message":   result.String(),
		"datasets":  result.Datasets,
		"resources": result.Resources,
		"warnings":  result.Warnings,
	})
}

func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.WipeStore(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if _, err := s.catalog.Store().CountDatasets(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Open Data Catalog</title>
</head>
<body>
    <h1>Open Data Catalog</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Datasets: <a href="/api/datasets">/api/datasets</a></p>
    <p>Statistics: <a href="/api/stats">/api/stats</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}
