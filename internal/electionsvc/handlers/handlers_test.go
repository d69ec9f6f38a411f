package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
	"github.com/avvvet/electionday-services/internal/electionsvc/service"
	"github.com/avvvet/electionday-services/internal/electionsvc/store/memstore"
)

const testSecret = "secret"

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("DEBUG_PRINCIPAL", "")

	zg, err := principal.NewCanton("zg", principal.Entities{2025: {
		1701: {Name: "Baar", District: "Baar"},
		1702: {Name: "Cham", District: "Cham"},
	}})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	mem := memstore.New()
	locales := []string{"de_CH"}
	imports := service.NewImportService(mem.Votes(), mem.Elections(),
		map[string]*principal.Principal{"zg": zg}, nil, service.NewMetrics(registry), locales)
	results := service.NewResultService(mem.Votes(), mem.Elections(), locales)

	r := chi.NewRouter()
	h := NewHandler(imports, results, registry)
	h.InitAuth()
	h.SetRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	_, token, err := jwtauth.New("HS256", []byte(testSecret), nil).Encode(map[string]interface{}{"principal": "zg"})
	require.NoError(t, err)
	return &testServer{Server: srv, token: token}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var rsp Response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rsp))
	}
	return resp, rsp
}

func (s *testServer) createVote(t *testing.T) string {
	t.Helper()
	resp, rsp := s.do(t, http.MethodPost, "/v1/votes", "application/json",
		strings.NewReader(`{"title":{"de_CH":"Vorlage"},"domain":"canton","date":"2025-06-01"}`))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data, ok := rsp.Data.(map[string]interface{})
	require.True(t, ok)
	return data["id"].(string)
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (string, *bytes.Buffer) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+name+`"; filename="`+name+`.csv"`)
		header.Set("Content-Type", "text/csv")
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), body
}

const voteCSV = "status,type,entity_id,counted,yeas,nays,invalid,empty,eligible_voters\n" +
	"final,proposal,1701,true,100,50,1,2,200\n" +
	"final,proposal,1702,true,10,50,1,2,100\n"

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, rsp := s.do(t, http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, rsp.Message, "election service is running")

	resp, _ = s.do(t, http.MethodGet, "/v1/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	resp, _ := s.do(t, http.MethodGet, "/v1/summaries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadVote(t *testing.T) {
	s := newTestServer(t)
	id := s.createVote(t)

	contentType, body := multipartBody(t, map[string]string{"format": "internal"}, map[string]string{"results": voteCSV})
	resp, rsp := s.do(t, http.MethodPost, "/v1/upload/vote/"+id, contentType, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, rsp.Error)
	assert.Equal(t, "results imported", rsp.Message)

	resp, rsp = s.do(t, http.MethodGet, "/v1/votes/"+id+"/summary", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := rsp.Data.(map[string]interface{})
	assert.Equal(t, true, summary["completed"])
	assert.Equal(t, "accepted", summary["answer"])

	req, err := http.NewRequest(http.MethodGet, s.URL+"/v1/votes/"+id+"/export?format=csv", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	csvResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer csvResp.Body.Close()
	assert.Equal(t, "text/csv; charset=utf-8", csvResp.Header.Get("Content-Type"))
	content, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "eligible_voters")
	assert.Contains(t, lines[1], "Baar")

	resp, rsp = s.do(t, http.MethodGet, "/v1/summaries", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rsp.Data, 1)
}

func TestUploadVoteErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.createVote(t)

	contentType, body := multipartBody(t, map[string]string{"format": "internal"},
		map[string]string{"results": "status,type,entity_id,counted,yeas,nays,invalid,empty,eligible_voters\nfinal,proposal,1234,true,1,1,0,0,10\n"})
	resp, rsp := s.do(t, http.MethodPost, "/v1/upload/vote/"+id, contentType, body)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "1 errors found", rsp.Error)
	errs := rsp.Data.([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, map[string]interface{}{"line": float64(2), "error": "1234 is unknown"}, errs[0])

	contentType, body = multipartBody(t, map[string]string{"format": "xml"}, nil)
	resp, _ = s.do(t, http.MethodPost, "/v1/upload/vote/"+id, contentType, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	contentType, body = multipartBody(t, map[string]string{"format": "internal"}, map[string]string{"results": voteCSV})
	resp, _ = s.do(t, http.MethodPost, "/v1/upload/vote/missing", contentType, body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownPrincipal(t *testing.T) {
	s := newTestServer(t)
	_, token, err := jwtauth.New("HS256", []byte(testSecret), nil).Encode(map[string]interface{}{"principal": "be"})
	require.NoError(t, err)
	s.token = token

	contentType, body := multipartBody(t, map[string]string{"format": "internal"}, map[string]string{"results": voteCSV})
	resp, _ := s.do(t, http.MethodPost, "/v1/upload/vote/x", contentType, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCSVValue(t *testing.T) {
	n := 5
	var missing *int
	assert.Equal(t, "5", csvValue(&n))
	assert.Equal(t, "", csvValue(missing))
	assert.Equal(t, "", csvValue(nil))
	assert.Equal(t, "true", csvValue(true))
}
