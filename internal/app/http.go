package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nbpress/internal/contents"
	"nbpress/internal/notebook"
	"nbpress/internal/publish"
	"nbpress/internal/search"
	"nbpress/internal/store"
)

const maxNotebookBytes = 64 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		handler := s.service.MetricsHandler()
		if handler == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Metrics are not enabled", nil)
			return
		}
		handler.ServeHTTP(w, r)
		return
	}

	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && len(parts) == 3 && parts[1] == "publish":
		s.handlePublish(w, r, parts[2])
	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "history":
		s.handleHistory(w, r, parts[2])
	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "attempts":
		attempt, err := s.service.Attempt(r.Context(), parts[2])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attemptView(attempt))
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "search":
		s.handleSearch(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request, kind string) {
	if kind != publish.StrategyBlog && kind != publish.StrategyEbook {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotebookBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Notebook exceeds the upload limit", nil)
		return
	}

	in := PublishInput{
		Notebook:  body,
		Title:     r.URL.Query().Get("title"),
		OwnerRepo: r.URL.Query().Get("repo"),
		Token:     contentsToken(r),
	}
	var result PublishResult
	if kind == publish.StrategyBlog {
		result, err = s.service.PublishBlog(r.Context(), in)
	} else {
		result, err = s.service.PublishEbook(r.Context(), in)
	}
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publishView(result))
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, documentID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	attempts, err := s.service.History(r.Context(), documentID, limit)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(attempts))
	for _, attempt := range attempts {
		items = append(items, attemptView(attempt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": documentID, "items": items})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:     strings.TrimSpace(r.URL.Query().Get("q")),
		Strategy: r.URL.Query().Get("strategy"),
	}
	if q.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	if q.Strategy != "" && q.Strategy != publish.StrategyBlog && q.Strategy != publish.StrategyEbook {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "strategy must be blog or ebook", nil)
		return
	}
	var err error
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

// authorized checks the optional serve token sent in X-Nbpress-Serve-Token.
func (s *HTTPServer) authorized(r *http.Request) bool {
	want := s.service.ServeToken()
	if want == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("X-Nbpress-Serve-Token"))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, message, details)
}

func publishView(result PublishResult) map[string]any {
	outcome := result.Outcome
	chunks := make([]map[string]any, 0, len(outcome.Chunks))
	for _, c := range outcome.Chunks {
		item := map[string]any{"index": c.Index, "path": c.Path, "status": c.Code}
		if c.Err != nil {
			item["error"] = c.Err.Error()
		}
		chunks = append(chunks, item)
	}
	return map[string]any{
		"attemptId":  result.AttemptID,
		"documentId": outcome.DocumentID,
		"title":      outcome.Title,
		"strategy":   outcome.Strategy,
		"target":     outcome.Target.String(),
		"overall":    outcome.Overall.String(),
		"ok":         outcome.Overall == publish.Success,
		"message":    outcome.Message(),
		"chunks":     chunks,
	}
}

func attemptView(a store.Attempt) map[string]any {
	chunks := make([]map[string]any, 0, len(a.Chunks))
	for _, c := range a.Chunks {
		item := map[string]any{"index": c.Index, "path": c.Path, "status": c.StatusCode}
		if c.Error != "" {
			item["error"] = c.Error
		}
		chunks = append(chunks, item)
	}
	return map[string]any{
		"id":           a.ID,
		"documentId":   a.DocumentID,
		"strategy":     a.Strategy,
		"title":        a.Title,
		"repo":         a.Owner + "/" + a.Repo,
		"branch":       a.Branch,
		"path":         a.Path,
		"chunkCount":   a.ChunkCount,
		"payloadBytes": a.PayloadBytes,
		"outcome":      a.Outcome,
		"failed":       a.Failed(),
		"createdAt":    a.CreatedAt.UTC().Format(time.RFC3339),
		"chunks":       chunks,
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Nbpress-Serve-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// contentsToken reads "Authorization: token <t>"; "Bearer <t>" is accepted too.
func contentsToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	for _, scheme := range []string{"token ", "Bearer "} {
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
	}
	return ""
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return value, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, notebook.ErrInvalidDocument):
		return http.StatusBadRequest, "INVALID_NOTEBOOK", "Body is not a notebook document", nil
	case errors.Is(err, publish.ErrMalformedDocument):
		return http.StatusUnprocessableEntity, "MALFORMED_DOCUMENT", err.Error(), nil
	case errors.Is(err, publish.ErrNoRepository):
		return http.StatusUnprocessableEntity, "NO_REPOSITORY", "No blog repository configured; pass repo or run repo set", nil
	case errors.Is(err, contents.ErrInvalidRepo):
		return http.StatusUnprocessableEntity, "INVALID_REPOSITORY", err.Error(), nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
