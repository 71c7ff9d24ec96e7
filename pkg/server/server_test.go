package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/tables"
)

// stubBackend records calls and answers with canned results.
type stubBackend struct {
	err error

	discovered string
	filled     [2]string
	clicked    string
	clickMode  browser.ClickMode
	heading    string
	headMode   browser.HeadingMode
	keyword    string
	closed     bool
	active     bool
}

func (b *stubBackend) Discover(_ context.Context, url string) (*browser.Discovery, error) {
	b.discovered = url
	if b.err != nil {
		return nil, b.err
	}
	return &browser.Discovery{
		Buttons:  []browser.Entry{{ID: "btn_1", Name: "Search"}},
		Fields:   []browser.Entry{{ID: "input_1", Name: "Keyword"}},
		Tables:   []browser.Entry{},
		Auth:     browser.AuthNotRequired,
		Warnings: browser.Warnings{"read label of btn_2: detached"},
	}, nil
}

func (b *stubBackend) Fill(id, value string) (*browser.FillResult, error) {
	b.filled = [2]string{id, value}
	if b.err != nil {
		return nil, b.err
	}
	return &browser.FillResult{ID: id, Name: "Keyword"}, nil
}

func (b *stubBackend) Click(_ context.Context, id string, mode browser.ClickMode) (*browser.ClickResult, error) {
	b.clicked, b.clickMode = id, mode
	if b.err != nil {
		return nil, b.err
	}
	res := &browser.ClickResult{ID: id, Name: "Search", URL: "https://portal.example.test/results", Navigation: browser.NavigationSamePage}
	if mode == browser.ClickModeHeadings {
		res.Headings = []browser.Entry{{ID: "h3_1", Name: "Energy"}, {ID: "h3_2", Name: "Water"}}
	}
	return res, nil
}

func (b *stubBackend) ClickHeading(_ context.Context, id string, mode browser.HeadingMode) (*browser.HeadingResult, error) {
	b.heading, b.headMode = id, mode
	if b.err != nil {
		return nil, b.err
	}
	res := &browser.HeadingResult{ID: id, Name: "Water"}
	if mode == browser.HeadingModeTable {
		res.Table = &browser.TablePayload{
			PageSize:  1,
			PageCount: "共 3 页",
			Buttons:   []browser.Control{{ID: "p1216", Name: "前往"}},
			Data:      []tables.Record{{{Key: "Name", Value: "Coal"}, {Key: "Code", Value: "E-01"}}},
		}
	}
	return res, nil
}

func (b *stubBackend) ClickHeadingByKeyword(_ context.Context, keyword string) (*browser.HeadingResult, error) {
	b.keyword = keyword
	if b.err != nil {
		return nil, b.err
	}
	return &browser.HeadingResult{ID: "h3_4", Name: "Other energy"}, nil
}

func (b *stubBackend) Extract() (*browser.Extraction, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &browser.Extraction{Rows: 2, Data: []tables.Record{
		{{Key: "H1", Value: "a"}, {Key: "H2", Value: "b"}},
		{{Key: "col_1", Value: "c"}},
	}}, nil
}

func (b *stubBackend) Outline(maxLength int) (*browser.Outline, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &browser.Outline{URL: "https://portal.example.test/", HTML: fmt.Sprintf("<p>%d</p>", maxLength)}, nil
}

func (b *stubBackend) Status() browser.Status {
	return browser.Status{Active: b.active, URL: "https://portal.example.test/"}
}

func (b *stubBackend) Close() bool {
	b.closed = true
	return b.active
}

func newTestServer(t *testing.T, backend Backend) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(backend, NewMetrics(reg), nil), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestPing(t *testing.T) {
	for _, backend := range []*stubBackend{{}, {active: true}, {err: errors.New("broken")}} {
		srv, _ := newTestServer(t, backend)
		rec, payload := do(t, srv.Handler(), http.MethodGet, "/ping", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"status": "ok"}, payload)
	}
}

func TestGetURLItems(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	rec, _ := do(t, srv.Handler(), http.MethodPost, "/get_url_items", `{"url":"https://portal.example.test/search"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://portal.example.test/search", backend.discovered)
	assert.JSONEq(t, `{
		"buttons": [{"id": "btn_1", "name": "Search"}],
		"inputs": [{"id": "input_1", "name": "Keyword"}],
		"tables": [],
		"auth": "not_required",
		"warnings": ["read label of btn_2: detached"]
	}`, rec.Body.String())
}

func TestSetInputValue(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	rec, payload := do(t, srv.Handler(), http.MethodPost, "/set_input_value", `{"input_id":"input_1","value":"energy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"input_1", "energy"}, backend.filled)
	assert.Equal(t, "200", payload["status"])
	assert.Contains(t, payload["info"], "input_1")
}

func TestClickButton(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	rec, payload := do(t, srv.Handler(), http.MethodPost, "/click_button", `{"button_id":"btn_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, browser.ClickModeStatus, backend.clickMode)
	assert.Equal(t, "200", payload["status"])
	assert.Equal(t, "https://portal.example.test/results", payload["url"])

	rec, _ = do(t, srv.Handler(), http.MethodPost, "/click_button_and_page_items", `{"button_id":"btn_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, browser.ClickModeHeadings, backend.clickMode)
	assert.JSONEq(t, `{"page_items":{"links":[{"id":"h3_1","name":"Energy"},{"id":"h3_2","name":"Water"}]}}`, rec.Body.String())
}

func TestClickLink(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	rec, payload := do(t, srv.Handler(), http.MethodPost, "/click_link", `{"link_id":"h3_2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, browser.HeadingModeAck, backend.headMode)
	assert.Equal(t, "h3_2", payload["id"])

	rec, _ = do(t, srv.Handler(), http.MethodPost, "/click_link_and_page_items", `{"link_id":"h3_2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, browser.HeadingModeTable, backend.headMode)
	assert.JSONEq(t, `{"table":[{
		"table_name": "",
		"page_size": 1,
		"page_count": "共 3 页",
		"buttons": [{"id": "p1216", "name": "前往"}],
		"data": [{"Name": "Coal", "Code": "E-01"}]
	}]}`, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"前往"`, "non-ASCII text is written as is")
}

func TestClickTitleByKeyword(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	rec, payload := do(t, srv.Handler(), http.MethodPost, "/click_title_by_keyword", `{"keyword":"energy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "energy", backend.keyword)
	assert.Equal(t, "h3_4", payload["id"])
}

func TestExtractTable(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	rec, _ := do(t, srv.Handler(), http.MethodPost, "/extract_table", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":2,"data":[{"H1":"a","H2":"b"},{"col_1":"c"}]}`, rec.Body.String())
}

func TestSessionEndpoints(t *testing.T) {
	backend := &stubBackend{active: true}
	srv, _ := newTestServer(t, backend)

	rec, payload := do(t, srv.Handler(), http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, payload["active"])

	rec, payload = do(t, srv.Handler(), http.MethodGet, "/inspect?max_length=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>500</p>", payload["html"])

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/inspect?max_length=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = do(t, srv.Handler(), http.MethodPost, "/close_session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, backend.closed)
	assert.Equal(t, "session closed", payload["info"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"no session", browser.ErrNoActiveSession, http.StatusConflict},
		{"out of range", fmt.Errorf("%w: btn_9 exceeds 1 btn elements", browser.ErrIndexOutOfRange), http.StatusBadRequest},
		{"stale", fmt.Errorf("%w: page moved", browser.ErrStaleSnapshot), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: no heading contains \"x\"", browser.ErrNotFound), http.StatusNotFound},
		{"other", errors.New("target closed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubBackend{err: tt.err})

			rec, payload := do(t, srv.Handler(), http.MethodPost, "/click_button", `{"button_id":"btn_9"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, map[string]any{"error": tt.err.Error()}, payload)
		})
	}
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	tests := []struct {
		path string
		body string
	}{
		{"/get_url_items", ""},
		{"/get_url_items", `{"url":""}`},
		{"/set_input_value", `{"value":"x"}`},
		{"/click_button", `not json`},
		{"/click_link", `{}`},
		{"/click_title_by_keyword", `{"keyword":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+tt.body, func(t *testing.T) {
			rec, payload := do(t, srv.Handler(), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, payload["error"], "bad request")
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, reg := newTestServer(t, &stubBackend{})
	srv.metrics.SessionOpened()
	srv.metrics.AuthChecked(browser.AuthAbandoned)

	do(t, srv.Handler(), http.MethodPost, "/get_url_items", `{"url":"https://portal.example.test/"}`)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pagewalker_http_requests_total{code="200",route="/get_url_items"} 1`)
	assert.Contains(t, body, `pagewalker_operation_warnings_total{operation="discover"} 1`)
	assert.Contains(t, body, `pagewalker_auth_outcomes_total{outcome="abandoned"} 1`)
	assert.Contains(t, body, `pagewalker_sessions_active 1`)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0", time.Second)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
