package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotlinehq/plotline/config"
	"github.com/plotlinehq/plotline/llm"
	"github.com/plotlinehq/plotline/llm/testutil"
	"github.com/plotlinehq/plotline/storage"
)

func newTestServer(t *testing.T, mock *testutil.MockClient) *Server {
	t.Helper()

	db, err := storage.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Server.UploadDir = t.TempDir()

	return New(cfg, mock, storage.NewStore(db), nil)
}

func analyzeForm(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const salesCSV = "Month,Sales\nJan,100\nJan,50\nFeb,80\n"

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAnalyzeProducesChart(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{
			Content: "Here is the breakdown.\n```json\n{\"type\": \"bar\", \"x\": \"month\", \"y\": \"sales\"}\n```",
		}},
	}
	srv := newTestServer(t, mock)

	body, contentType := analyzeForm(t,
		map[string]string{"query": "sales by month"},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Response  string `json:"response"`
		ChartData *struct {
			Type     string   `json:"type"`
			Labels   []string `json:"labels"`
			Datasets []struct {
				Label string    `json:"label"`
				Data  []float64 `json:"data"`
			} `json:"datasets"`
		} `json:"chartData"`
		CSVColumns []string `json:"csvColumns"`
		SessionID  string   `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.ChartData)
	assert.Equal(t, "bar", resp.ChartData.Type)
	assert.Equal(t, []string{"Jan", "Feb"}, resp.ChartData.Labels)
	require.Len(t, resp.ChartData.Datasets, 1)
	assert.Equal(t, []float64{150, 80}, resp.ChartData.Datasets[0].Data)
	assert.Equal(t, []string{"Month", "Sales"}, resp.CSVColumns)
	assert.NotEmpty(t, resp.SessionID)

	// The exchange is persisted.
	req2 := httptest.NewRequest(http.MethodGet, "/session/"+resp.SessionID, nil)
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "sales by month")
}

func TestAnalyzeUnresolvedColumnsReturnsText(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{
			Content: "Sure.\n```json\n{\"type\": \"bar\", \"x\": \"Qqqq\", \"y\": \"Zzzz\"}\n```",
		}},
	}
	srv := newTestServer(t, mock)

	body, contentType := analyzeForm(t,
		map[string]string{"query": "plot the qqqq"},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response  string          `json:"response"`
		ChartData json.RawMessage `json:"chartData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Response, "Could not find required columns")
	assert.Equal(t, "null", string(resp.ChartData))
}

func TestAnalyzeNoSpecInReply(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{Content: "The data shows steady growth."}},
	}
	srv := newTestServer(t, mock)

	body, contentType := analyzeForm(t,
		map[string]string{"query": "describe the data"},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "steady growth")
	assert.Contains(t, rec.Body.String(), `"chartData":null`)
}

func TestAnalyzeRequiresQueryAndFiles(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	body, contentType := analyzeForm(t, map[string]string{}, map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = analyzeForm(t, map[string]string{"query": "q"}, nil)
	req = httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeCarriesHistory(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{Content: "Answer two."}},
	}
	srv := newTestServer(t, mock)

	history := `[{"query": "first question", "response": "first answer"}]`
	body, contentType := analyzeForm(t,
		map[string]string{"query": "second question", "chat_history": history},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// Prior turns are replayed to the model before the new query.
	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	msgs := reqs[0].Messages
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Contains(t, msgs[len(msgs)-1].Content, "second question")
}

func TestAnalyzeLLMFailure(t *testing.T) {
	mock := &testutil.MockClient{Err: llm.NewFatalError(io.ErrUnexpectedEOF)}
	srv := newTestServer(t, mock)

	body, contentType := analyzeForm(t,
		map[string]string{"query": "q"},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestUpload(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	body, contentType := analyzeForm(t, nil, map[string]string{"data.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "data.csv")
}

func TestSessionUnknownReturnsEmpty(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/nope", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "nope", resp.Session.ID)
	assert.Empty(t, resp.ChatHistory)
	assert.Empty(t, resp.Visualizations)
}

func TestSessionsListing(t *testing.T) {
	mock := &testutil.MockClient{
		Responses: []*llm.Response{{Content: "fine"}},
	}
	srv := newTestServer(t, mock)

	body, contentType := analyzeForm(t,
		map[string]string{"query": "what does this data show about regional sales trends over the past year"},
		map[string]string{"sales.csv": salesCSV})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, 1, resp.Sessions[0].ChatCount)
	// Titles are truncated to 50 characters.
	assert.LessOrEqual(t, len(resp.Sessions[0].Title), 50)
	assert.True(t, strings.HasPrefix(resp.Sessions[0].Title, "what does this data show"))
}

func TestExportData(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	payload := `{
		"title": "monthly",
		"format": "csv",
		"chart_data": {
			"type": "bar",
			"labels": ["Jan", "Feb"],
			"datasets": [{"label": "Sales", "data": [150, 80]}]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/export/data", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "monthly.csv")
	assert.Equal(t, "Label,Dataset_1\nJan,150\nFeb,80\n", rec.Body.String())
}

func TestExportDataMissingChart(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	req := httptest.NewRequest(http.MethodPost, "/export/data", strings.NewReader(`{"format":"csv"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &testutil.MockClient{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
