package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plotlinehq/plotline/chart"
	"github.com/plotlinehq/plotline/dataset"
	"github.com/plotlinehq/plotline/export"
	"github.com/plotlinehq/plotline/llm"
	"github.com/plotlinehq/plotline/metrics"
	"github.com/plotlinehq/plotline/storage"
)

// previewRows is how many rows of each file are shown to the model.
const previewRows = 10

// uploadedFile describes one stored upload in the /upload response.
type uploadedFile struct {
	Filename    string  `json:"filename"`
	SizeMB      float64 `json:"size_mb"`
	ContentType string  `json:"content_type"`
}

// handleUpload stores multipart files under the upload directory.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0o755); err != nil {
		s.logger.Error("Creating upload dir failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}

	var uploaded []uploadedFile
	for _, fh := range files {
		if fh.Size > s.cfg.Server.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File %s exceeds %dMB limit.", fh.Filename, s.cfg.Server.MaxUploadBytes>>20))
			return
		}
		if err := s.saveUpload(fh); err != nil {
			s.logger.Warn("Saving upload failed",
				slog.String("file", fh.Filename),
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store %s", fh.Filename))
			return
		}
		uploaded = append(uploaded, uploadedFile{
			Filename:    filepath.Base(fh.Filename),
			SizeMB:      float64(fh.Size) / (1 << 20),
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	s.logger.Info("Uploaded files", slog.Int("count", len(uploaded)))
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": uploaded})
}

func (s *Server) saveUpload(fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	// filepath.Base strips any path components a client smuggles in.
	dstPath := filepath.Join(s.cfg.Server.UploadDir, filepath.Base(fh.Filename))
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, s.cfg.Server.MaxUploadBytes)); err != nil {
		return fmt.Errorf("writing upload file: %w", err)
	}
	return nil
}

// analyzeResponse is the /analyze payload shape the frontend consumes.
type analyzeResponse struct {
	Response    string             `json:"response"`
	ChartData   *chart.Data        `json:"chartData"`
	ChatHistory []llm.HistoryEntry `json:"chatHistory"`
	CSVColumns  []string           `json:"csvColumns"`
	DatasetInfo *datasetInfo       `json:"datasetInfo"`
	SessionID   string             `json:"sessionId"`
}

type datasetInfo struct {
	TotalRows    int      `json:"totalRows"`
	TotalColumns int      `json:"totalColumns"`
	FileNames    []string `json:"fileNames"`
}

// handleAnalyze runs the full query pipeline: load the uploaded tables, ask
// the model, extract a chart spec from its reply, resolve it against the
// data and persist the exchange. Column-resolution failures come back as
// user-facing text in the response, never as a 5xx.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeAnalyzeForm(w)
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		metrics.AnalyzeRequests.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		metrics.AnalyzeRequests.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	tables, fileNames, previews, err := s.loadAnalyzeFiles(r.MultipartForm.File["files"])
	if err != nil {
		metrics.AnalyzeRequests.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	merged := dataset.Concat(tables...)
	columns := merged.Columns()

	history := parseChatHistory(r.FormValue("chat_history"), s.logger)

	msgs := llm.BuildAnalyzeMessages(query, strings.Join(previews, "\n\n"), columns, history)
	temp := s.cfg.Model.Temperature
	resp, err := s.completer.Complete(r.Context(), llm.Request{
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   s.cfg.Model.MaxTokens,
	})
	if err != nil {
		s.logger.Error("LLM request failed", slog.String("error", err.Error()))
		metrics.AnalyzeRequests.WithLabelValues("llm_error").Inc()
		writeError(w, llmErrorStatus(err), fmt.Sprintf("Error communicating with model API: %v", err))
		return
	}
	content := resp.Content

	chartData, spec := s.resolveChartSpec(content, merged, &content)

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
		s.logger.Info("Generated new session ID", slog.String("session_id", sessionID))
	}

	updatedHistory := append(history, llm.HistoryEntry{Query: query, Response: content})

	info := &datasetInfo{
		TotalRows:    merged.NumRows(),
		TotalColumns: len(columns),
		FileNames:    fileNames,
	}
	s.persistAnalyze(r, sessionID, query, content, columns, info, spec, chartData)

	metrics.AnalyzeRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, analyzeResponse{
		Response:    content,
		ChartData:   chartData,
		ChatHistory: updatedHistory,
		CSVColumns:  columns,
		DatasetInfo: info,
		SessionID:   sessionID,
	})
}

// loadAnalyzeFiles parses every uploaded CSV part. Unsupported or unreadable
// files are skipped with a log line; zero usable files is an error.
func (s *Server) loadAnalyzeFiles(files []*multipart.FileHeader) ([]*dataset.Table, []string, []string, error) {
	var (
		tables    []*dataset.Table
		fileNames []string
		previews  []string
	)
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
			s.logger.Warn("Skipping unsupported file type", slog.String("file", fh.Filename))
			continue
		}
		src, err := fh.Open()
		if err != nil {
			s.logger.Warn("Could not open file", slog.String("file", fh.Filename), slog.String("error", err.Error()))
			continue
		}
		tbl, err := dataset.ReadCSV(io.LimitReader(src, s.cfg.Server.MaxUploadBytes))
		src.Close()
		if err != nil {
			s.logger.Warn("Could not parse file", slog.String("file", fh.Filename), slog.String("error", err.Error()))
			continue
		}
		tables = append(tables, tbl)
		fileNames = append(fileNames, filepath.Base(fh.Filename))
		previews = append(previews, fh.Filename+":\n"+tbl.Preview(previewRows))
	}
	if len(tables) == 0 {
		return nil, nil, nil, errors.New("no valid CSV files uploaded")
	}
	return tables, fileNames, previews, nil
}

// resolveChartSpec extracts a chart spec block from the model reply and
// resolves it. On a column-resolution failure the user-facing error text is
// appended to content and no chart data is returned.
func (s *Server) resolveChartSpec(reply string, table *dataset.Table, content *string) (*chart.Data, *chart.Spec) {
	block := llm.ExtractSpecBlock(reply)
	if block == "" {
		s.logger.Debug("No chart spec found in model reply")
		return nil, nil
	}

	spec, err := chart.ParseSpec(block)
	if err != nil {
		s.logger.Warn("Failed to parse chart spec", slog.String("error", err.Error()))
		return nil, nil
	}

	data, err := chart.Resolve(spec, table)
	if err != nil {
		var resErr *chart.ResolutionError
		if errors.As(err, &resErr) {
			*content = *content + "\n\n" + resErr.Error()
			return nil, spec
		}
		s.logger.Warn("Chart resolution failed", slog.String("error", err.Error()))
		return nil, spec
	}
	return data, spec
}

// persistAnalyze saves the session, visualization and chat entry. Persistence
// failures are logged, not surfaced: the analysis result is already in hand.
func (s *Server) persistAnalyze(r *http.Request, sessionID, query, response string,
	columns []string, info *datasetInfo, spec *chart.Spec, chartData *chart.Data) {

	ctx := r.Context()

	infoJSON, _ := json.Marshal(map[string]any{
		"columns":      columns,
		"file_names":   info.FileNames,
		"totalRows":    info.TotalRows,
		"totalColumns": info.TotalColumns,
	})

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Session lookup failed", slog.String("error", err.Error()))
			return
		}
		if err := s.store.CreateSession(ctx, &storage.Session{ID: sessionID, DatasetInfo: infoJSON}); err != nil {
			s.logger.Warn("Session create failed", slog.String("error", err.Error()))
			return
		}
	} else if err := s.store.UpdateSessionInfo(ctx, sessionID, infoJSON, nil); err != nil {
		s.logger.Warn("Session update failed", slog.String("error", err.Error()))
	}

	var vizID string
	if chartData != nil {
		specJSON, _ := json.Marshal(spec)
		dataJSON, _ := json.Marshal(chartData)
		viz := &storage.Visualization{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Query:     query,
			ChartSpec: specJSON,
			ChartData: dataJSON,
			ChartType: chartData.Type,
		}
		if err := s.store.SaveVisualization(ctx, viz); err != nil {
			s.logger.Warn("Visualization save failed", slog.String("error", err.Error()))
		} else {
			vizID = viz.ID
		}
	}

	entry := &storage.ChatEntry{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Query:           query,
		Response:        response,
		VisualizationID: vizID,
	}
	if err := s.store.SaveChatEntry(ctx, entry); err != nil {
		s.logger.Warn("Chat entry save failed", slog.String("error", err.Error()))
	}
}

// parseChatHistory decodes the optional chat_history form field. Malformed
// history is ignored rather than failing the request.
func parseChatHistory(raw string, logger *slog.Logger) []llm.HistoryEntry {
	if raw == "" {
		return nil
	}
	var history []llm.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		logger.Warn("Could not parse chat_history", slog.String("error", err.Error()))
		return nil
	}
	return history
}

// llmErrorStatus maps model API failures to upstream-style status codes.
func llmErrorStatus(err error) int {
	if llm.IsFatal(err) {
		return http.StatusBadGateway
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) writeAnalyzeForm(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body>
<h3>/analyze test form</h3>
<form action="/analyze" method="post" enctype="multipart/form-data">
<input type="text" name="query" placeholder="Query" required />
<input type="file" name="files" multiple required />
<button type="submit">Submit</button>
</form>
</body></html>`)
}

// sessionPayload is the GET /session/{id} response shape.
type sessionPayload struct {
	Session        *storage.Session         `json:"session"`
	ChatHistory    []*storage.ChatEntry     `json:"chatHistory"`
	Visualizations []*storage.Visualization `json:"visualizations"`
}

// handleSession returns a session with its chat history and visualizations.
// Unknown sessions return an empty payload rather than 404, so a fresh
// client can poll before its first analyze.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/session/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, sessionPayload{
				Session:        &storage.Session{ID: id},
				ChatHistory:    []*storage.ChatEntry{},
				Visualizations: []*storage.Visualization{},
			})
			return
		}
		s.logger.Error("Session lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	history, err := s.store.ChatHistory(ctx, id)
	if err != nil {
		s.logger.Error("Chat history lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "chat history lookup failed")
		return
	}
	vizzes, err := s.store.ListVisualizations(ctx, id)
	if err != nil {
		s.logger.Error("Visualization lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "visualization lookup failed")
		return
	}

	if history == nil {
		history = []*storage.ChatEntry{}
	}
	if vizzes == nil {
		vizzes = []*storage.Visualization{}
	}
	writeJSON(w, http.StatusOK, sessionPayload{Session: sess, ChatHistory: history, Visualizations: vizzes})
}

// sessionSummary is one entry of the GET /sessions listing.
type sessionSummary struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ChatCount          int             `json:"chat_count"`
	VisualizationCount int             `json:"visualization_count"`
	DatasetInfo        json.RawMessage `json:"dataset_info,omitempty"`
}

const sessionListLimit = 50

// handleSessions lists sessions, most recently updated first, titled by
// their latest query.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	sessions, err := s.store.ListSessions(ctx, sessionListLimit)
	if err != nil {
		s.logger.Error("Listing sessions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		history, err := s.store.ChatHistory(ctx, sess.ID)
		if err != nil {
			s.logger.Warn("Chat history lookup failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
			continue
		}
		vizzes, err := s.store.ListVisualizations(ctx, sess.ID)
		if err != nil {
			s.logger.Warn("Visualization lookup failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
			continue
		}

		title := "Untitled Session"
		if len(history) > 0 {
			title = history[len(history)-1].Query
			if len(title) > 50 {
				title = title[:50]
			}
		}

		summaries = append(summaries, sessionSummary{
			ID:                 sess.ID,
			Title:              title,
			CreatedAt:          sess.CreatedAt,
			UpdatedAt:          sess.UpdatedAt,
			ChatCount:          len(history),
			VisualizationCount: len(vizzes),
			DatasetInfo:        sess.DatasetInfo,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// exportRequest is the POST /export/data body.
type exportRequest struct {
	ChartData *chart.Data `json:"chart_data"`
	Format    string      `json:"format"`
	Title     string      `json:"title"`
}

// handleExportData renders chart data as a CSV or JSON attachment.
func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req exportRequest
	body := io.LimitReader(r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChartData == nil {
		writeError(w, http.StatusBadRequest, "No chart data provided")
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	title := req.Title
	if title == "" {
		title = "chart_data"
	}

	out, err := export.Render(format, title, req.ChartData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.%s", title, format.Extension()))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
