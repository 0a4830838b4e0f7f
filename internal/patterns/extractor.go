// Package patterns learns structured facts from reference documents: company
// info, clause text, and salary figures, plus the running per-designation
// salary benchmarks derived from them.
package patterns

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recruitdesk/offergen/internal/llm"
	"github.com/recruitdesk/offergen/internal/storage"
)

// Chatter is the interface for structured chat completion.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// PatternStore is the slice of storage the extractor writes to.
type PatternStore interface {
	SaveLearnedPattern(p storage.LearnedPattern) error
	UpsertCompanyDefault(key, value, sourceDocument string) error
}

// Extractor runs a single structured-extraction pass over a document and
// persists what it learns. Extraction is best-effort: any failure is logged
// and skipped, never fatal to the ingestion pipeline.
type Extractor struct {
	client Chatter
	model  string
	store  PatternStore
	bench  *Aggregator
	logger *slog.Logger
}

// NewExtractor creates an Extractor using the given model client and stores.
func NewExtractor(client Chatter, model string, store PatternStore, bench *Aggregator) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		store:  store,
		bench:  bench,
		logger: slog.Default(),
	}
}

// flexNumber tolerates models returning numbers as JSON numbers or as
// numeric strings ("1200000", "12,00,000").
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unparseable values degrade to zero rather than failing the whole row.
		*f = 0
		return nil
	}
	*f = flexNumber(v)
	return nil
}

// extraction mirrors the model's JSON response. Every field is optional;
// missing fields default to their zero value.
type extraction struct {
	CompanyName    *string            `json:"company_name"`
	CompanyAddress *string            `json:"company_address"`
	HRName         *string            `json:"hr_name"`
	HRTitle        *string            `json:"hr_title"`
	Probation      *string            `json:"probation"`
	NoticePeriod   *string            `json:"notice_period"`
	WorkingHours   *string            `json:"working_hours"`
	LeavePolicy    *string            `json:"leave_policy"`
	Benefits       []string           `json:"benefits"`
	Breakdown      map[string]float64 `json:"salary_breakdown"`
	Designation    *string            `json:"designation"`
	CTC            flexNumber         `json:"ctc"`
	Clauses        []string           `json:"clauses"`
}

// Extract asks the model for the document's structured facts and persists a
// LearnedPattern row, company defaults, and (when designation and CTC are
// both present) a salary benchmark contribution. Any failure is logged and
// the call returns; callers continue the pipeline regardless.
func (e *Extractor) Extract(ctx context.Context, doc storage.Document) {
	raw, err := e.client.Chat(ctx, e.model, buildPatternPrompt(doc.RawText), patternSchema())
	if err != nil {
		e.logger.Warn("pattern extraction chat failed", "document_id", doc.ID, "error", err)
		return
	}

	var ext extraction
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		e.logger.Warn("failed to unmarshal pattern extraction", "document_id", doc.ID, "error", err)
		return
	}

	pattern := storage.LearnedPattern{
		ID:             uuid.New().String(),
		DocumentID:     doc.ID,
		CompanyName:    deref(ext.CompanyName),
		CompanyAddress: deref(ext.CompanyAddress),
		HRName:         deref(ext.HRName),
		HRTitle:        deref(ext.HRTitle),
		Probation:      deref(ext.Probation),
		NoticePeriod:   deref(ext.NoticePeriod),
		WorkingHours:   deref(ext.WorkingHours),
		LeavePolicy:    deref(ext.LeavePolicy),
		Benefits:       marshalStrings(ext.Benefits),
		Breakdown:      marshalBreakdown(ext.Breakdown),
		Designation:    deref(ext.Designation),
		CTC:            float64(ext.CTC),
		Clauses:        marshalStrings(ext.Clauses),
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.SaveLearnedPattern(pattern); err != nil {
		e.logger.Warn("failed to save learned pattern", "document_id", doc.ID, "error", err)
		return
	}

	// Latest write wins for every non-empty scalar fact.
	e.upsertDefault("company_name", ext.CompanyName, doc.ID)
	e.upsertDefault("company_address", ext.CompanyAddress, doc.ID)
	e.upsertDefault("hr_name", ext.HRName, doc.ID)
	e.upsertDefault("hr_title", ext.HRTitle, doc.ID)
	e.upsertDefault("probation", ext.Probation, doc.ID)
	e.upsertDefault("notice_period", ext.NoticePeriod, doc.ID)
	e.upsertDefault("working_hours", ext.WorkingHours, doc.ID)
	e.upsertDefault("leave_policy", ext.LeavePolicy, doc.ID)

	if pattern.Designation != "" && pattern.CTC > 0 {
		if err := e.bench.Update(pattern.Designation, pattern.CTC, ext.Breakdown, doc.ID); err != nil {
			e.logger.Warn("failed to update salary benchmark", "document_id", doc.ID, "error", err)
		}
	}
}

func (e *Extractor) upsertDefault(key string, value *string, documentID string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	if err := e.store.UpsertCompanyDefault(key, strings.TrimSpace(*value), documentID); err != nil {
		e.logger.Warn("failed to upsert company default", "key", key, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func marshalStrings(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func marshalBreakdown(m map[string]float64) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func buildPatternPrompt(text string) []llm.Message {
	return []llm.Message{
		{
			Role: "system",
			Content: "You extract structured facts from HR offer letters and employment documents. " +
				"Return only the requested JSON. Omit fields that are not present in the document; " +
				"never invent values. Clause fields must quote the document verbatim.",
		},
		{
			Role:    "user",
			Content: "Extract company and employment facts from this document:\n\n" + text,
		},
	}
}

// patternSchema returns the JSON schema for structured pattern output.
func patternSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"company_name":     {Type: "string", Description: "Legal name of the hiring company"},
			"company_address":  {Type: "string", Description: "Registered or office address"},
			"hr_name":          {Type: "string", Description: "Name of the HR signatory"},
			"hr_title":         {Type: "string", Description: "Title of the HR signatory"},
			"probation":        {Type: "string", Description: "Verbatim probation clause"},
			"notice_period":    {Type: "string", Description: "Verbatim notice period clause"},
			"working_hours":    {Type: "string", Description: "Verbatim working hours clause"},
			"leave_policy":     {Type: "string", Description: "Verbatim leave policy clause"},
			"benefits":         {Type: "array", Description: "List of benefits mentioned"},
			"salary_breakdown": {Type: "object", Description: "Salary component percentages, e.g. {\"basic\": 40, \"hra\": 20}"},
			"designation":      {Type: "string", Description: "Designation the letter was issued for"},
			"ctc":              {Type: "number", Description: "Annual CTC figure found in the document"},
			"clauses":          {Type: "array", Description: "Any other notable clauses, verbatim"},
		},
	}
}
