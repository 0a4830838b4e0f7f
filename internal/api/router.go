// Package api exposes the HTTP surface: document ingestion, corpus search,
// template and benchmark inspection, and offer-letter generation. An MCP
// server over the same engine lives in mcp.go.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/recruitdesk/offergen/internal/parser"
	"github.com/recruitdesk/offergen/internal/pipeline"
	"github.com/recruitdesk/offergen/internal/retrieval"
	"github.com/recruitdesk/offergen/internal/storage"
)

const maxUploadBodySize = 10 << 20 // 10MB
const maxRequestBodySize = 1 << 20 // 1MB

// Enqueuer schedules background ingestion for an accepted document.
type Enqueuer interface {
	Enqueue(documentID string) error
}

// SearchRetriever abstracts semantic corpus search for the API layer.
type SearchRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// OfferGenerator abstracts the generation pipeline for the API layer.
type OfferGenerator interface {
	Generate(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type AppDeps struct {
	Store      *storage.Store
	Ingest     Enqueuer
	Retriever  SearchRetriever
	Generator  OfferGenerator
	Token      string
	TopK       int
	HTTPClient *http.Client
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))

		r.Get("/search", handleSearch(deps))

		r.Get("/templates", handleListTemplates(deps))
		r.Post("/templates/{id}/default", handleSetDefaultTemplate(deps))

		r.Get("/benchmarks", handleListBenchmarks(deps))
		r.Get("/benchmarks/{designation}", handleGetBenchmark(deps))
		r.Get("/defaults", handleListDefaults(deps))

		r.Post("/resumes", handleSaveResume(deps))
		r.Get("/resumes/{id}", handleGetResume(deps))

		r.Post("/generate", handleGenerate(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// UploadRequest is the document upload body. Content carries plain text;
// ContentBase64 carries binary files (PDF) and is decoded before text
// extraction; URL fetches the document over HTTP. Filename drives format
// detection for inline content.
type UploadRequest struct {
	Title         string `json:"title"`
	Filename      string `json:"filename"`
	Content       string `json:"content"`
	ContentBase64 string `json:"content_base64"`
	URL           string `json:"url"`
}

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" && req.ContentBase64 == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of content, content_base64, or url is required")
			return
		}

		data := []byte(req.Content)
		filename := req.Filename
		switch {
		case req.ContentBase64 != "":
			decoded, err := base64.StdEncoding.DecodeString(req.ContentBase64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			data = decoded
		case req.URL != "":
			fetched, name, err := fetchDocument(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to fetch url: %v", err)
				return
			}
			data = fetched
			if filename == "" {
				filename = name
			}
		}

		text, err := parser.ExtractText(filename, data)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract text: %v", err)
			return
		}
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document contains no text")
			return
		}

		title := req.Title
		if title == "" {
			title = filename
		}

		doc := storage.Document{
			ID:        uuid.New().String(),
			Title:     title,
			RawText:   text,
			Status:    storage.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}
		if err := deps.Ingest.Enqueue(doc.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue ingestion: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     doc.ID,
			"status": storage.StatusPending,
		})
	}
}

// fetchDocument downloads a document over HTTP and derives a filename from
// the URL path, falling back to the Content-Type for format detection.
func fetchDocument(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBodySize))
	if err != nil {
		return nil, "", err
	}

	name := path.Base(resp.Request.URL.Path)
	if name == "/" || name == "." || !strings.Contains(name, ".") {
		switch {
		case strings.Contains(resp.Header.Get("Content-Type"), "text/html"):
			name = "document.html"
		case strings.Contains(resp.Header.Get("Content-Type"), "application/pdf"):
			name = "document.pdf"
		default:
			name = "document.txt"
		}
	}
	return data, name, nil
}

// documentSummary omits the raw text from listings.
type documentSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func summarize(d storage.Document) documentSummary {
	return documentSummary{
		ID:         d.ID,
		Title:      d.Title,
		Status:     d.Status,
		ChunkCount: d.ChunkCount,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListDocuments(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		summaries := make([]documentSummary, len(docs))
		for i, d := range docs {
			summaries[i] = summarize(d)
		}
		writeJSON(w, summaries)
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		writeJSON(w, summarize(doc))
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		topK := parseIntParam(r, "top_k", deps.TopK, 50)

		chunks, err := deps.Retriever.Retrieve(r.Context(), query, topK)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if chunks == nil {
			chunks = []retrieval.ContextChunk{}
		}
		writeJSON(w, chunks)
	}
}

func handleListTemplates(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles, err := deps.Store.ListActiveTemplateProfiles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list templates: %v", err)
			return
		}
		if profiles == nil {
			profiles = []storage.TemplateProfile{}
		}
		writeJSON(w, profiles)
	}
}

func handleSetDefaultTemplate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.SetDefaultTemplateProfile(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "template profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set default template: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handleListBenchmarks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		benchmarks, err := deps.Store.ListSalaryBenchmarks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list benchmarks: %v", err)
			return
		}
		if benchmarks == nil {
			benchmarks = []storage.SalaryBenchmark{}
		}
		writeJSON(w, benchmarks)
	}
}

func handleGetBenchmark(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "designation")
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
		designation := strings.ToLower(strings.TrimSpace(raw))

		b, err := deps.Store.GetSalaryBenchmark(designation)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no benchmark for designation %q", designation)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get benchmark: %v", err)
			return
		}
		writeJSON(w, b)
	}
}

func handleListDefaults(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defaults, err := deps.Store.AllCompanyDefaults()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list defaults: %v", err)
			return
		}
		writeJSON(w, defaults)
	}
}

// ResumeRequest carries candidate facts extracted from a resume, stored for
// later reference in generation requests.
type ResumeRequest struct {
	CandidateName   string  `json:"candidate_name"`
	Designation     string  `json:"designation"`
	ExperienceYears float64 `json:"experience_years"`
	ExpectedCTC     float64 `json:"expected_ctc"`
	Location        string  `json:"location"`
}

func handleSaveResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req ResumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.CandidateName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "candidate_name is required")
			return
		}

		resume := storage.ResumeExtraction{
			ID:              uuid.New().String(),
			CandidateName:   req.CandidateName,
			Designation:     req.Designation,
			ExperienceYears: req.ExperienceYears,
			ExpectedCTC:     req.ExpectedCTC,
			Location:        req.Location,
			CreatedAt:       time.Now().UTC(),
		}
		if err := deps.Store.SaveResumeExtraction(resume); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save resume: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": resume.ID})
	}
}

func handleGetResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		resume, err := deps.Store.GetResumeExtraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "resume not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get resume: %v", err)
			return
		}
		writeJSON(w, resume)
	}
}

func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		result, err := deps.Generator.Generate(r.Context(), req)
		if errors.Is(err, pipeline.ErrNoTemplates) {
			httpError(w, http.StatusConflict, "empty_corpus", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "generation failed: %v", err)
			return
		}
		writeJSON(w, result)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
