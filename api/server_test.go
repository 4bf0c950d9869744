package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/ingestion"
	"github.com/poiesic/aisync/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversations struct {
	orgID       string
	searchQuery string
	searchOpts  ingestion.SearchOptions
	listOpts    ingestion.ListOptions
	detail      *ingestion.ConversationDetail
	deletedID   string
	err         error
}

func (f *fakeConversations) SearchConversations(_ context.Context, orgID, query string, opts ingestion.SearchOptions) ([]ingestion.SearchResult, error) {
	f.orgID, f.searchQuery, f.searchOpts = orgID, query, opts
	if query == "" {
		return nil, ingestion.ErrEmptyQuery
	}
	return []ingestion.SearchResult{{ConversationID: "c1", Content: "USER: kyoto", Similarity: 0.9, Title: "Kyoto", Source: "DEEPSEEK:travel"}}, f.err
}

func (f *fakeConversations) GetConversations(_ context.Context, orgID string, opts ingestion.ListOptions) ([]ingestion.AiConversation, error) {
	f.orgID, f.listOpts = orgID, opts
	return []ingestion.AiConversation{{ID: "c1", Title: "Kyoto", Source: "DEEPSEEK", AppName: "travel"}}, f.err
}

func (f *fakeConversations) GetConversation(_ context.Context, orgID, id string) (*ingestion.ConversationDetail, error) {
	f.orgID = orgID
	if f.detail != nil && f.detail.ID == id {
		return f.detail, nil
	}
	return nil, f.err
}

func (f *fakeConversations) DeleteConversation(_ context.Context, orgID, id string) (int, error) {
	f.orgID, f.deletedID = orgID, id
	return 3, f.err
}

func (f *fakeConversations) DeleteBySource(_ context.Context, orgID string, source core.Source) (int, error) {
	f.orgID = orgID
	if err := core.ValidateSource(source); err != nil {
		return 0, err
	}
	return 5, f.err
}

func (f *fakeConversations) GetSummary(_ context.Context, orgID string) (*ingestion.Summary, error) {
	f.orgID = orgID
	return &ingestion.Summary{TotalConversations: 2, BySource: map[string]int{"CLAUDE": 2}, ByApp: map[string]int{"coding": 2}}, f.err
}

type fakeSyncer struct {
	source core.Source
	text   string
	err    error
}

func (f *fakeSyncer) SyncFromJSON(_ context.Context, _ string, source core.Source, jsonText string) (*core.SyncResult, error) {
	f.source, f.text = source, jsonText
	if f.err != nil {
		return &core.SyncResult{Source: source, Errors: []string{f.err.Error()}}, f.err
	}
	return &core.SyncResult{Source: source, Success: true, ConversationsImported: 1, Errors: []string{}}, nil
}

func newTestServer() (*Server, *fakeConversations, *fakeSyncer) {
	convs := &fakeConversations{}
	syncer := &fakeSyncer{}
	return NewServer(convs, syncer), convs, syncer
}

func do(t *testing.T, s *Server, method, path, body string, withOrg bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if withOrg {
		req.Header.Set(OrganizationHeader, "org-1")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer()
	w := do(t, s, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestMissingOrganization(t *testing.T) {
	s, _, _ := newTestServer()
	w := do(t, s, http.MethodGet, "/ai-sync/summary", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], OrganizationHeader)
}

func TestImport(t *testing.T) {
	s, _, syncer := newTestServer()
	w := do(t, s, http.MethodPost, "/ai-sync/import", `{"source":"CLAUDE","jsonContent":"[]"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	result := decode[core.SyncResult](t, w)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ConversationsImported)
	assert.Equal(t, core.SourceClaude, syncer.source)
	assert.Equal(t, "[]", syncer.text)
}

func TestImport_Errors(t *testing.T) {
	s, _, syncer := newTestServer()

	w := do(t, s, http.MethodPost, "/ai-sync/import", `{"source":"GEMINI","jsonContent":"[]"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/ai-sync/import", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	syncer.err = errors.New("disk full")
	w = do(t, s, http.MethodPost, "/ai-sync/import", `{"source":"CLAUDE","jsonContent":"[]"}`, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	result := decode[core.SyncResult](t, w)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"disk full"}, result.Errors)
}

func TestImport_MalformedExportReturnsResult(t *testing.T) {
	s, _, syncer := newTestServer()
	syncer.err = fmt.Errorf("%w: unexpected end of JSON input", parser.ErrMalformedExport)

	w := do(t, s, http.MethodPost, "/ai-sync/import", `{"source":"DEEPSEEK","jsonContent":"{not json"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "DEEPSEEK", body["source"])
	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "malformed export")
}

func TestSearch(t *testing.T) {
	s, convs, _ := newTestServer()
	w := do(t, s, http.MethodPost, "/ai-sync/search", `{"query":"kyoto","limit":3,"source":"DEEPSEEK","appName":"travel"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	results := decode[[]ingestion.SearchResult](t, w)
	require.Len(t, results, 1)
	assert.Equal(t, "DEEPSEEK:travel", results[0].Source)
	assert.Equal(t, "org-1", convs.orgID)
	assert.Equal(t, "kyoto", convs.searchQuery)
	assert.Equal(t, ingestion.SearchOptions{Limit: 3, AppName: "travel", Source: "DEEPSEEK"}, convs.searchOpts)

	w = do(t, s, http.MethodPost, "/ai-sync/search", `{"query":""}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConversations(t *testing.T) {
	s, convs, _ := newTestServer()
	w := do(t, s, http.MethodGet, "/ai-sync/conversations?source=DEEPSEEK&appName=travel&skip=2&take=5", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	list := decode[[]ingestion.AiConversation](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, ingestion.ListOptions{Source: "DEEPSEEK", AppName: "travel", Skip: 2, Take: 5}, convs.listOpts)

	w = do(t, s, http.MethodGet, "/ai-sync/conversations?skip=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/ai-sync/conversations?take=-1", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConversation(t *testing.T) {
	s, convs, _ := newTestServer()
	convs.detail = &ingestion.ConversationDetail{
		AiConversation: ingestion.AiConversation{ID: "c1", Title: "Kyoto"},
		Content:        "USER: Plan a trip",
	}

	w := do(t, s, http.MethodGet, "/ai-sync/conversations/c1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[ingestion.ConversationDetail](t, w)
	assert.Equal(t, "Kyoto", detail.Title)
	assert.Equal(t, "USER: Plan a trip", detail.Content)

	w = do(t, s, http.MethodGet, "/ai-sync/conversations/missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletes(t *testing.T) {
	s, convs, _ := newTestServer()

	w := do(t, s, http.MethodDelete, "/ai-sync/conversations/c1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[deleteConversationResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.DeletedCount)
	assert.Equal(t, "c1", convs.deletedID)

	w = do(t, s, http.MethodDelete, "/ai-sync/source/CHATGPT", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[deleteSourceResponse](t, w).DeletedCount)

	w = do(t, s, http.MethodDelete, "/ai-sync/source/MYSTERY", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummary(t *testing.T) {
	s, convs, _ := newTestServer()
	w := do(t, s, http.MethodGet, "/ai-sync/summary", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[ingestion.Summary](t, w)
	assert.Equal(t, 2, summary.TotalConversations)
	assert.Equal(t, "org-1", convs.orgID)

	convs.err = errors.New("badger closed")
	w = do(t, s, http.MethodGet, "/ai-sync/summary", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	w := do(t, s, http.MethodGet, "/nonexistent", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
