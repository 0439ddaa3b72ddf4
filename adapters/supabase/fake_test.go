package supabase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/preslavrachev/sitebase/core"
)

// fakePostgREST is an in-memory stand-in for the REST endpoint, enough to
// exercise filters, counts, single-object reads and upserts
type fakePostgREST struct {
	t *testing.T

	mu       sync.Mutex
	tables   map[string][]core.Row
	nextID   int
	requests []recordedRequest
	status   int                                   // forced status for every request when non-zero
	reject   func(table string, row core.Row) bool // rows the server refuses
	realtime http.HandlerFunc
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
}

func newFakePostgREST(t *testing.T) (*fakePostgREST, *httptest.Server) {
	f := &fakePostgREST{t: t, tables: make(map[string][]core.Row)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePostgREST) seed(table string, rows ...core.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

func (f *fakePostgREST) setRealtime(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.realtime = h
}

func (f *fakePostgREST) rows(table string) []core.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Row(nil), f.tables[table]...)
}

func (f *fakePostgREST) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakePostgREST) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/realtime/") {
		f.mu.Lock()
		handler := f.realtime
		f.mu.Unlock()
		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
	})

	if f.status != 0 {
		writeAPIError(w, f.status, "", http.StatusText(f.status))
		return
	}
	if r.Header.Get("apikey") == "" {
		writeAPIError(w, http.StatusUnauthorized, "", "No API key found in request")
		return
	}

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	query := r.URL.Query()
	prefer := r.Header.Get("Prefer")
	single := r.Header.Get("Accept") == objectMediaType

	matched, rest := f.partition(table, query)

	switch r.Method {
	case http.MethodGet:
		result := orderAndPage(matched, query)
		if strings.Contains(prefer, "count=exact") {
			w.Header().Set("Content-Range", contentRange(query, len(result), len(matched)))
		}
		f.respond(w, http.StatusOK, result, single)

	case http.MethodPost:
		var incoming []core.Row
		if !decodeRows(r, &incoming) {
			writeAPIError(w, http.StatusBadRequest, "PGRST102", "invalid body")
			return
		}
		for _, row := range incoming {
			if f.reject != nil && f.reject(table, row) {
				writeAPIError(w, http.StatusConflict, "23503", "violates foreign key constraint")
				return
			}
		}
		upsert := strings.Contains(prefer, "resolution=merge-duplicates")
		var stored []core.Row
		for _, row := range incoming {
			row = copyRow(row)
			if core.IDFrom(row["id"]).IsZero() {
				f.nextID++
				row["id"] = "gen-" + strconv.Itoa(f.nextID)
			}
			if idx := f.indexOf(table, row["id"]); idx >= 0 {
				if !upsert {
					writeAPIError(w, http.StatusConflict, "23505", "duplicate key value")
					return
				}
				for k, v := range row {
					f.tables[table][idx][k] = v
				}
				stored = append(stored, f.tables[table][idx])
				continue
			}
			if _, ok := row["created_at"]; !ok {
				row["created_at"] = "2024-01-01T00:00:00+00:00"
			}
			f.tables[table] = append(f.tables[table], row)
			stored = append(stored, row)
		}
		if strings.Contains(prefer, "return=representation") {
			f.respond(w, http.StatusCreated, stored, single)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodPatch:
		var changes core.Row
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			writeAPIError(w, http.StatusBadRequest, "PGRST102", "invalid body")
			return
		}
		for _, row := range matched {
			for k, v := range changes {
				row[k] = v
			}
		}
		if strings.Contains(prefer, "return=representation") {
			f.respond(w, http.StatusOK, matched, single)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		f.tables[table] = rest
		if strings.Contains(prefer, "count=exact") {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", len(matched)))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakePostgREST) respond(w http.ResponseWriter, status int, rows []core.Row, single bool) {
	if !single {
		if rows == nil {
			rows = []core.Row{}
		}
		writeJSON(w, status, rows)
		return
	}
	if len(rows) != 1 {
		writeAPIError(w, http.StatusNotAcceptable, CodeNoRows, "JSON object requested, multiple (or no) rows returned")
		return
	}
	writeJSON(w, status, rows[0])
}

func (f *fakePostgREST) indexOf(table string, id any) int {
	for i, row := range f.tables[table] {
		if fmt.Sprint(row["id"]) == fmt.Sprint(id) {
			return i
		}
	}
	return -1
}

// partition splits the table into rows matching every eq/is filter and the rest
func (f *fakePostgREST) partition(table string, query map[string][]string) (matched, rest []core.Row) {
	reserved := map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "on_conflict": true}
	for _, row := range f.tables[table] {
		ok := true
		for col, values := range query {
			if reserved[col] {
				continue
			}
			for _, v := range values {
				switch {
				case v == "is.null":
					ok = ok && row[col] == nil
				case strings.HasPrefix(v, "eq."):
					ok = ok && row[col] != nil && fmt.Sprint(row[col]) == strings.TrimPrefix(v, "eq.")
				}
			}
		}
		if ok {
			matched = append(matched, row)
		} else {
			rest = append(rest, row)
		}
	}
	return matched, rest
}

func orderAndPage(rows []core.Row, query map[string][]string) []core.Row {
	out := append([]core.Row(nil), rows...)
	if order := firstValue(query, "order"); order != "" {
		col, dir, _ := strings.Cut(order, ".")
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if dir == "desc" {
				return a > b
			}
			return a < b
		})
	}
	offset, _ := strconv.Atoi(firstValue(query, "offset"))
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit, err := strconv.Atoi(firstValue(query, "limit")); err == nil && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func contentRange(query map[string][]string, returned, total int) string {
	if returned == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	offset, _ := strconv.Atoi(firstValue(query, "offset"))
	return fmt.Sprintf("%d-%d/%d", offset, offset+returned-1, total)
}

func firstValue(query map[string][]string, key string) string {
	if v := query[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func decodeRows(r *http.Request, out *[]core.Row) bool {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return false
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		return json.Unmarshal(raw, out) == nil
	}
	var row core.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return false
	}
	*out = []core.Row{row}
	return true
}

func copyRow(row core.Row) core.Row {
	out := make(core.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
