package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetjson/internal/core"
	"github.com/JonMunkholm/sheetjson/internal/history"
	"github.com/JonMunkholm/sheetjson/internal/logging"
	"github.com/JonMunkholm/sheetjson/internal/web/templates"
)

var errHistoryDisabled = &core.UserError{
	Technical: errors.New("fetch history is not configured"),
	User: core.UserMessage{
		Message: "Fetch history is not enabled",
		Action:  "Set DATABASE_URL to record fetches",
		Code:    "HIST001",
	},
}

// TableResponse is one table in an API response. Records are omitted for
// raw fetches, which return the titles and data rows instead.
type TableResponse struct {
	Name        string            `json:"name"`
	Records     []core.Record     `json:"records,omitempty"`
	Titles      []string          `json:"titles,omitempty"`
	Rows        [][]string        `json:"rows,omitempty"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
	Error       *ErrorResponse    `json:"error,omitempty"`
}

// BatchResponse is the body of /api/batch.
type BatchResponse struct {
	Tables []TableResponse `json:"tables"`
	Failed int             `json:"failed"`
}

func tableResponse(res core.Result, diags []core.Diagnostic, raw bool) TableResponse {
	out := TableResponse{Name: res.Name, Diagnostics: diags}
	if out.Diagnostics == nil {
		out.Diagnostics = []core.Diagnostic{}
	}
	if res.Err != nil {
		e := newErrorResponse(core.MapError(res.Err))
		out.Error = &e
		return out
	}

	if raw && res.Table != nil {
		out.Titles = res.Table.Titles()
		for _, row := range res.Table.DataRows(nil) {
			out.Rows = append(out.Rows, row.Cells)
		}
		return out
	}
	out.Records = res.Records
	if out.Records == nil {
		out.Records = []core.Record{}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":        "ok",
		"spreadsheetId": s.retriever.SpreadsheetID(),
		"metadata":      s.retriever.Cache().State().String(),
	}
	if l := s.retriever.Limiter(); l != nil {
		body["fetch"] = l.Status()
	}
	writeJSON(w, body)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	refresh, _, err := optionalBool(r.URL.Query(), "refresh")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	md, err := s.retriever.Metadata(r.Context(), refresh)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, md)
}

// fetchTable runs FetchOne for the {name} route parameter, collecting the
// diagnostics reported while building.
func (s *Server) fetchTable(r *http.Request) (core.Result, []core.Diagnostic, tableParams, error) {
	name := tableName(r)
	p, err := parseTableParams(r.URL.Query(), s.retriever.Layout())
	if err != nil {
		return core.Result{Name: name}, nil, p, err
	}

	collector := &core.Collector{}
	ctx := core.ContextWithReporter(r.Context(), collector)

	start := time.Now()
	res, err := s.retriever.FetchOne(ctx, name, core.FetchOptions{
		Hooks:  p.Hooks,
		Layout: p.Layout,
		Start:  p.Start,
		End:    p.End,
		Raw:    p.Raw,
	})
	if err != nil {
		res = core.Result{Name: name, Err: err}
	}
	s.observe(r.Context(), res, collector.Len(), time.Since(start))
	return res, collector.Diagnostics(), p, err
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	res, diags, p, err := s.fetchTable(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, tableResponse(res, diags, p.Raw))
}

func (s *Server) handleTablePage(w http.ResponseWriter, r *http.Request) {
	res, diags, _, err := s.fetchTable(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.TablePage(templates.NewTableView(res.Name, res.Records, diags)).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render table page", "table", res.Name, "error", err)
	}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parseTableParams(q, s.retriever.Layout())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if p.End != "" {
		s.respondError(w, r, badParam("end", p.End, "is not supported for batch requests"))
		return
	}

	collector := &core.Collector{}
	ctx := core.ContextWithReporter(r.Context(), collector)

	start := time.Now()
	batch, err := s.retriever.FetchMany(ctx, splitNames(q, "names"), core.BatchOptions{
		Hooks:  p.Hooks,
		Layout: p.Layout,
		Start:  p.Start,
		Raw:    p.Raw,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	took := time.Since(start)

	out := BatchResponse{Tables: make([]TableResponse, 0, len(batch.Results))}
	for _, res := range batch.Results {
		diags := collector.ForTable(res.Name)
		s.observe(r.Context(), res, len(diags), took)
		out.Tables = append(out.Tables, tableResponse(res, diags, p.Raw))
	}
	out.Failed = len(batch.Failed())
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, r, errHistoryDisabled)
		return
	}
	limit, err := intParam(r.URL.Query(), "limit", history.DefaultLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entries, err := s.history.Recent(r.Context(), s.retriever.SpreadsheetID(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// observe updates metrics and history for one fetched table. History
// failures are logged and never fail the request.
func (s *Server) observe(ctx context.Context, res core.Result, diagnostics int, took time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveRecords(res.Name, len(res.Records))
	}
	if s.history == nil {
		return
	}
	entry := history.FromResult(s.retriever.SpreadsheetID(), res, diagnostics, took)
	if _, err := s.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Error("record fetch history", "table", res.Name, "error", err)
	}
}

// tableName returns the {name} route parameter, unescaped when the router
// matched on the raw path.
func tableName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}
