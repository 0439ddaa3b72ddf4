package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/preslavrachev/sitebase/core"
)

// CodeNoRows is the PostgREST error code for a single-object request that
// matched no rows
const CodeNoRows = "PGRST116"

const objectMediaType = "application/vnd.pgrst.object+json"

// APIError is an error response from PostgREST
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("postgrest %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsNoRows reports whether err is the PostgREST "no rows" response
func IsNoRows(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeNoRows
}

// Client talks to the PostgREST endpoint of a project
type Client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
}

// NewClient creates a client for the REST endpoint under projectURL. The
// key is sent both as apikey and as bearer token.
func NewClient(projectURL, key string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:  key,
		token:   key,
		http:    &http.Client{Timeout: timeout},
	}
}

// From starts a request against table
func (c *Client) From(table string) *Request {
	return &Request{
		client: c,
		table:  table,
		method: http.MethodGet,
		params: url.Values{},
		header: http.Header{},
	}
}

// Request is a fluent PostgREST request builder
type Request struct {
	client *Client
	table  string
	method string
	params url.Values
	header http.Header
	prefer []string
	body   any
}

// Select sets the returned columns
func (r *Request) Select(columns string) *Request {
	r.method = http.MethodGet
	r.params.Set("select", columns)
	return r
}

// Insert posts one row or a slice of rows
func (r *Request) Insert(rows any) *Request {
	r.method = http.MethodPost
	r.body = rows
	return r
}

// Upsert posts rows, merging on the primary key when it already exists
func (r *Request) Upsert(rows any) *Request {
	r.method = http.MethodPost
	r.body = rows
	r.params.Set("on_conflict", core.PrimaryKey)
	r.prefer = append(r.prefer, "resolution=merge-duplicates", "missing=default")
	return r
}

// Update patches matching rows
func (r *Request) Update(row any) *Request {
	r.method = http.MethodPatch
	r.body = row
	return r
}

// Delete removes matching rows
func (r *Request) Delete() *Request {
	r.method = http.MethodDelete
	return r
}

// Eq adds an equality filter. A nil value matches NULL.
func (r *Request) Eq(column string, value any) *Request {
	if value == nil {
		r.params.Add(column, "is.null")
		return r
	}
	r.params.Add(column, "eq."+formatValue(value))
	return r
}

// Match adds an equality filter per entry, in stable column order
func (r *Request) Match(filters core.Filters) *Request {
	for _, col := range core.SortedKeys(filters) {
		r.Eq(col, filters[col])
	}
	return r
}

// Order sorts by column
func (r *Request) Order(column string, ascending bool) *Request {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	r.params.Set("order", column+"."+dir)
	return r
}

// Limit caps the number of rows returned
func (r *Request) Limit(n int) *Request {
	r.params.Set("limit", strconv.Itoa(n))
	return r
}

// Offset skips rows
func (r *Request) Offset(n int) *Request {
	r.params.Set("offset", strconv.Itoa(n))
	return r
}

// Range restricts the result to rows from..to inclusive
func (r *Request) Range(from, to int) *Request {
	return r.Offset(from).Limit(to - from + 1)
}

// Single asks for one JSON object instead of an array. PostgREST answers
// CodeNoRows when nothing matches.
func (r *Request) Single() *Request {
	r.header.Set("Accept", objectMediaType)
	return r
}

// Count asks for the exact number of matching rows in Content-Range
func (r *Request) Count() *Request {
	r.prefer = append(r.prefer, "count=exact")
	return r
}

// Returning asks for the written rows in the response body
func (r *Request) Returning() *Request {
	r.prefer = append(r.prefer, "return=representation")
	return r
}

// Response is a successful PostgREST response
type Response struct {
	Status int
	Body   []byte
	// Count is parsed from Content-Range, nil when the server sent no total
	Count *int64
}

// Decode unmarshals the body into v
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Execute sends the request. Non-2xx responses return an *APIError.
func (r *Request) Execute(ctx context.Context) (*Response, error) {
	endpoint := r.client.baseURL + "/" + url.PathEscape(r.table)
	if len(r.params) > 0 {
		endpoint += "?" + r.params.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	req.Header.Set("apikey", r.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.client.token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}

	resp, err := r.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.table, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" && apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}

	return &Response{
		Status: resp.StatusCode,
		Body:   data,
		Count:  parseContentRange(resp.Header.Get("Content-Range")),
	}, nil
}

// parseContentRange reads the total from "0-24/3573" or "*/0"
func parseContentRange(header string) *int64 {
	idx := strings.LastIndex(header, "/")
	if idx == -1 {
		return nil
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return nil
	}
	return &total
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case core.ID:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case core.Timestamp:
		return t.String()
	case time.Time:
		return core.NewTimestamp(t).String()
	default:
		return fmt.Sprint(t)
	}
}
