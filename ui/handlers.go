// Package ui serves the admin JSON API: backend status and switching,
// export and import, and generic record CRUD over the domain tables
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"

	"github.com/preslavrachev/sitebase/config"
	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
	"github.com/preslavrachev/sitebase/middleware/auth"
	"github.com/preslavrachev/sitebase/provider"
)

// DefaultBasePath is where the admin API is mounted when Options.BasePath is empty
const DefaultBasePath = "/admin"

const (
	maxImportBytes = 64 << 20
	maxRecordBytes = 1 << 20
)

// Audit actions written to audit_logs
const (
	ActionSwitch = "database.switch"
	ActionExport = "data.export"
	ActionImport = "data.import"
)

// Backend is the provider surface driven by the admin API
type Backend interface {
	Mode() core.Mode
	Adapter(ctx context.Context) (core.Adapter, error)
	SwitchDatabase(ctx context.Context, mode core.Mode) error
	Reconnect(ctx context.Context) error
	Status(ctx context.Context) provider.Status
}

var _ Backend = (*provider.Provider)(nil)

// Options configures the admin API
type Options struct {
	BasePath string
	Auth     *auth.AuthConfig
	Features *config.FeatureFlags
	Logger   *slog.Logger
	// Now stamps export file names; time.Now when nil
	Now func() time.Time
}

// Handler returns an HTTP handler for the admin API
func Handler(backend Backend, opts Options) http.Handler {
	basePath := strings.TrimSuffix(opts.BasePath, "/")
	if basePath == "" {
		basePath = DefaultBasePath
	}

	handler := &AdminHandler{
		backend:  backend,
		basePath: basePath,
		features: opts.Features,
		logger:   logging.OrDiscard(opts.Logger).With("component", "admin"),
		now:      opts.Now,
	}
	if handler.features == nil {
		handler.features = config.LoadFeatureFlags()
	}
	if handler.now == nil {
		handler.now = time.Now
	}

	api := basePath + "/api"
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api+"/status", handler.handleStatus)
	mux.HandleFunc("GET "+api+"/features", handler.handleFeatures)
	mux.HandleFunc("POST "+api+"/switch", handler.requireAdmin(handler.handleSwitch))
	mux.HandleFunc("POST "+api+"/reconnect", handler.requireAdmin(handler.handleReconnect))
	mux.HandleFunc("GET "+api+"/export", handler.requireAdmin(handler.handleExport))
	mux.HandleFunc("POST "+api+"/import", handler.requireAdmin(handler.handleImport))
	mux.HandleFunc("GET "+api+"/records/{table}", handler.handleListRecords)
	mux.HandleFunc("POST "+api+"/records/{table}", handler.handleCreateRecord)
	mux.HandleFunc("PATCH "+api+"/records/{table}", handler.handleUpdateRecords)
	mux.HandleFunc("DELETE "+api+"/records/{table}", handler.handleDeleteRecords)
	mux.HandleFunc("GET "+api+"/records/{table}/{id}", handler.handleGetRecord)

	var finalHandler http.Handler = mux
	if opts.Auth != nil {
		finalHandler = auth.CreateAuthMiddleware(opts.Auth)(finalHandler)
	}
	return finalHandler
}

// AdminHandler holds the dependencies of the admin API endpoints
type AdminHandler struct {
	backend  Backend
	basePath string
	features *config.FeatureFlags
	logger   *slog.Logger
	now      func() time.Time
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type listResponse struct {
	Data    []core.Row `json:"data"`
	Count   int64      `json:"count"`
	Next    string     `json:"next,omitempty"`
	Reverse string     `json:"reverse,omitempty"`
}

type rowResponse struct {
	Data  core.Row `json:"data"`
	Count *int64   `json:"count,omitempty"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type switchRequest struct {
	Mode string `json:"mode"`
}

// requireAdmin rejects authenticated callers without the admin role.
// Unauthenticated requests only get here when auth is disabled.
func (h *AdminHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.IsAuthenticated(r.Context()) {
			if user, _ := auth.GetAuthUser(r.Context()); !user.HasRole(auth.RoleAdmin) {
				h.writeErrorStatus(w, r, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
		}
		next(w, r)
	}
}

func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.backend.Status(r.Context()))
}

func (h *AdminHandler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.features)
}

func (h *AdminHandler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeBody(w, r, maxRecordBytes, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	mode, ok := core.ParseMode(req.Mode)
	if !ok {
		h.writeError(w, r, core.NewValidationError(
			fmt.Sprintf("unknown database mode %q, expected %q or %q", req.Mode, core.ModeSQLite, core.ModeSupabase), nil))
		return
	}

	from := h.backend.Mode()
	if err := h.backend.SwitchDatabase(r.Context(), mode); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("database switched", "actor", auth.Actor(r.Context()), "from", from, "to", mode)
	if from != mode {
		if adapter, err := h.backend.Adapter(r.Context()); err == nil {
			h.audit(r.Context(), adapter, ActionSwitch, map[string]any{"from": from, "to": mode})
		}
	}

	h.writeJSON(w, r, http.StatusOK, h.backend.Status(r.Context()))
}

func (h *AdminHandler) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Reconnect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.backend.Status(r.Context()))
}

func (h *AdminHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.ExportData(r.Context())
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	rows := make(map[string]int, len(res.Data))
	for table, data := range res.Data {
		rows[table] = len(data)
	}
	h.audit(r.Context(), adapter, ActionExport, map[string]any{"mode": adapter.Mode(), "rows": rows})

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("download") != "false" {
		name := fmt.Sprintf("sitebase-%s-%s.json", adapter.Mode(), h.now().UTC().Format("20060102T150405Z"))
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Data); err != nil {
		h.logger.Warn("failed to write export", "error", err)
	}
}

func (h *AdminHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	var snapshot core.Snapshot
	if err := decodeBody(w, r, maxImportBytes, &snapshot); err != nil {
		h.writeError(w, r, err)
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.ImportData(r.Context(), snapshot)
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	h.audit(r.Context(), adapter, ActionImport, map[string]any{
		"mode":     adapter.Mode(),
		"imported": res.Data.Imported,
		"failed":   res.Data.Failed,
	})
	h.writeJSON(w, r, http.StatusOK, res.Data)
}

func (h *AdminHandler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	table, err := tableFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filters, opts, err := parseSelectFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.Select(r.Context(), table, filters, opts)
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	resp := listResponse{Data: res.Data, Count: res.Total()}
	if resp.Data == nil {
		resp.Data = []core.Row{}
	}
	if resp.Count < 0 {
		resp.Count = int64(len(resp.Data))
	}
	if next := opts.NextPage(); opts.Limit > 0 && int64(next.Offset) < resp.Count {
		resp.Next = NewRecordsURL(h.basePath, table).
			PreserveFromRequest(r).
			WithPagination(next.Offset, next.Limit).
			String()
	}
	if opts.OrderBy != "" {
		resp.Reverse = NewRecordsURL(h.basePath, table).
			PreserveFromRequest(r).
			WithSort(opts.OrderBy, opts.Direction().Opposite().String()).
			RemoveParam("offset").
			String()
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *AdminHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	table, err := tableFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	res := adapter.SelectOne(r.Context(), table, core.Filters{core.PrimaryKey: id})
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}
	if res.Data == nil {
		h.writeErrorStatus(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("%s %q not found", table, id))
		return
	}

	h.writeJSON(w, r, http.StatusOK, rowResponse{Data: res.Data})
}

func (h *AdminHandler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	table, err := tableFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var row core.Row
	if err := decodeBody(w, r, maxRecordBytes, &row); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(row) == 0 {
		h.writeError(w, r, core.NewValidationError("record body must be a non-empty object", nil))
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.Insert(r.Context(), table, row)
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, rowResponse{Data: res.Data})
}

func (h *AdminHandler) handleUpdateRecords(w http.ResponseWriter, r *http.Request) {
	table, err := tableFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filters := parseFilters(r.URL.Query())
	if len(filters) == 0 {
		h.writeError(w, r, core.NewValidationError("update requires at least one filter", nil))
		return
	}

	var changes core.Row
	if err := decodeBody(w, r, maxRecordBytes, &changes); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(changes) == 0 {
		h.writeError(w, r, core.NewValidationError("record body must be a non-empty object", nil))
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.Update(r.Context(), table, filters, changes)
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	count := res.Total()
	h.writeJSON(w, r, http.StatusOK, rowResponse{Data: res.Data, Count: &count})
}

func (h *AdminHandler) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	table, err := tableFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filters := parseFilters(r.URL.Query())
	if len(filters) == 0 {
		h.writeError(w, r, core.NewValidationError("delete requires at least one filter", nil))
		return
	}

	adapter, err := h.backend.Adapter(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := adapter.Delete(r.Context(), table, filters)
	if !res.OK() {
		h.writeError(w, r, res.Error)
		return
	}

	h.writeJSON(w, r, http.StatusOK, countResponse{Count: max(res.Total(), 0)})
}

// audit records an admin action in audit_logs. Failures are logged only.
func (h *AdminHandler) audit(ctx context.Context, adapter core.Adapter, action string, details map[string]any) {
	payload := map[string]any{"actor": auth.Actor(ctx)}
	for k, v := range details {
		payload[k] = v
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to encode audit details", "action", action, "error", err)
		return
	}

	res := adapter.Insert(ctx, core.TableAuditLogs, core.Row{
		"action":  action,
		"details": string(encoded),
	})
	if !res.OK() {
		h.logger.Warn("failed to write audit log", "action", action, "error", res.Error)
	}
}

// tableFromRequest returns the {table} path value if it names a domain table
func tableFromRequest(r *http.Request) (string, error) {
	table := r.PathValue("table")
	if !slices.Contains(core.ExportTables, table) {
		return "", core.NewValidationError(fmt.Sprintf("unknown table %q", table), nil)
	}
	return table, nil
}

// parseSelectFromRequest turns query parameters into filters and select options
func parseSelectFromRequest(r *http.Request) (core.Filters, *core.SelectOptions, error) {
	query := r.URL.Query()
	filters := parseFilters(query)
	opts := core.NewSelectOptions()

	if sortBy := query.Get("sort"); sortBy != "" {
		opts.WithOrder(strcase.ToSnake(sortBy), core.ParseSortDirection(query.Get("direction")))
	}

	limit := core.PageSizeFromEnv()
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return nil, nil, core.NewValidationError(fmt.Sprintf("invalid limit %q", limitStr), err)
		}
		limit = min(parsed, core.MaxPageSize)
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return nil, nil, core.NewValidationError(fmt.Sprintf("invalid offset %q", offsetStr), err)
		}
		offset = parsed
	}

	opts.WithPagination(limit, offset)
	return filters, opts, nil
}

// parseFilters maps non-reserved query parameters to equality filters.
// Keys are normalised to snake_case and the literal "null" matches NULL.
func parseFilters(values url.Values) core.Filters {
	filters := make(core.Filters)
	for key, vals := range values {
		if len(vals) == 0 || isReservedParam(key) {
			continue
		}
		var value any = vals[0]
		if vals[0] == "null" {
			value = nil
		}
		filters[strcase.ToSnake(key)] = value
	}
	return filters
}

// decodeBody decodes a JSON request body of at most limit bytes into dst
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.NewValidationError(fmt.Sprintf("request body exceeds %d bytes", limit), err)
		}
		return core.NewValidationError("invalid JSON body", err)
	}
	return nil
}

// statusForKind maps an adapter error kind to an HTTP status
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.ValidationError:
		return http.StatusBadRequest
	case core.ConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := core.AsError(err, core.QueryError, "request failed")
	status := statusForKind(e.Kind)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "admin request failed",
		"method", r.Method, "path", r.URL.Path, "status", status, "error", e)

	h.writeErrorStatus(w, r, status, e.Kind.String(), e.Error())
}

func (h *AdminHandler) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	h.writeJSON(w, r, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if r.URL.Query().Has("pretty") {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
