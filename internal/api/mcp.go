package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/recruitdesk/offergen/internal/pipeline"
	"github.com/recruitdesk/offergen/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Ingest    Enqueuer
	Retriever SearchRetriever
	Generator OfferGenerator
	TopK      int
}

// NewMCPServer creates an MCP server exposing corpus search, document
// ingestion, and offer generation to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"offergen",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("offergen: HR document learning engine for generating offer letters from learned templates."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_corpus",
			mcp.WithDescription("Semantically search the ingested HR document corpus and return the most relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchCorpus(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_document",
			mcp.WithDescription("Store a reference document (offer letter, appointment letter) and queue it for learning."),
			mcp.WithString("title", mcp.Description("Title for the document")),
			mcp.WithString("content", mcp.Description("Plain text content of the document"), mcp.Required()),
		),
		mcpIngestDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_offer",
			mcp.WithDescription("Generate an offer letter for a candidate using learned templates and patterns."),
			mcp.WithString("candidate_name", mcp.Description("Candidate's full name"), mcp.Required()),
			mcp.WithString("designation", mcp.Description("Designation being offered"), mcp.Required()),
			mcp.WithNumber("annual_ctc", mcp.Description("Annual CTC in rupees")),
			mcp.WithNumber("experience_years", mcp.Description("Candidate's experience in years")),
			mcp.WithString("joining_date", mcp.Description("Joining date, YYYY-MM-DD")),
			mcp.WithString("location", mcp.Description("Work location")),
		),
		mcpGenerateOffer(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hr://benchmarks",
			"Salary Benchmarks",
			mcp.WithResourceDescription("Per-designation salary statistics learned from ingested documents"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBenchmarks(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hr://templates",
			"Template Profiles",
			mcp.WithResourceDescription("Active offer-letter template profiles"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTemplates(deps),
	)

	return s
}

func mcpSearchCorpus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", deps.TopK)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID         string  `json:"id"`
			DocumentID string  `json:"document_id"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ID:         c.ID,
				DocumentID: c.DocumentID,
				Text:       c.Text,
				Score:      c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIngestDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")

		doc := storage.Document{
			ID:        uuid.New().String(),
			Title:     title,
			RawText:   content,
			Status:    storage.StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveDocument(doc); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		if err := deps.Ingest.Enqueue(doc.ID); err != nil {
			return mcpError(fmt.Sprintf("saved document but failed to queue ingestion: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Queued document %s for learning", doc.ID)), nil
	}
}

func mcpGenerateOffer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("candidate_name")
		if err != nil {
			return mcpError("candidate_name is required"), nil
		}
		designation, err := req.RequireString("designation")
		if err != nil {
			return mcpError("designation is required"), nil
		}

		result, err := deps.Generator.Generate(ctx, pipeline.Request{
			CandidateName:   name,
			Designation:     designation,
			AnnualCTC:       req.GetFloat("annual_ctc", 0),
			ExperienceYears: req.GetFloat("experience_years", 0),
			JoiningDate:     req.GetString("joining_date", ""),
			Location:        req.GetString("location", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal letter: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceBenchmarks(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		benchmarks, err := deps.Store.ListSalaryBenchmarks()
		if err != nil {
			return nil, fmt.Errorf("failed to list benchmarks: %w", err)
		}

		b, err := json.Marshal(benchmarks)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal benchmarks: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceTemplates(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profiles, err := deps.Store.ListActiveTemplateProfiles()
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}

		type profileSummary struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Tone        string `json:"tone"`
			LengthClass string `json:"length_class"`
			UsageCount  int    `json:"usage_count"`
			IsDefault   bool   `json:"is_default"`
		}
		summaries := make([]profileSummary, len(profiles))
		for i, p := range profiles {
			summaries[i] = profileSummary{
				ID:          p.ID,
				Name:        p.Name,
				Tone:        p.Tone,
				LengthClass: p.LengthClass,
				UsageCount:  p.UsageCount,
				IsDefault:   p.IsDefault,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal templates: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
