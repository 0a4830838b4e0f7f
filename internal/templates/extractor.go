package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recruitdesk/offergen/internal/llm"
)

// DefaultSubChunkLimit caps the text sent per extraction call so large
// documents fit the model's context window.
const DefaultSubChunkLimit = 12000

// Chatter is the interface for structured chat completion.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// Extractor derives a template Structure and full section content from a
// document via two structured-extraction passes.
type Extractor struct {
	client        Chatter
	model         string
	subChunkLimit int
	logger        *slog.Logger
}

// NewExtractor creates an Extractor. A non-positive subChunkLimit falls back
// to DefaultSubChunkLimit.
func NewExtractor(client Chatter, model string, subChunkLimit int) *Extractor {
	if subChunkLimit <= 0 {
		subChunkLimit = DefaultSubChunkLimit
	}
	return &Extractor{
		client:        client,
		model:         model,
		subChunkLimit: subChunkLimit,
		logger:        slog.Default(),
	}
}

// Extract runs the structure pass and the full-section pass over the document
// text. Documents longer than the sub-chunk limit are split at paragraph
// boundaries and the per-piece results merged, first non-empty value winning.
// It errors only when every structure sub-chunk fails.
func (e *Extractor) Extract(ctx context.Context, text string) (Structure, []Section, error) {
	pieces := splitSubChunks(text, e.subChunkLimit)

	var merged Structure
	succeeded := 0
	for i, piece := range pieces {
		s, err := e.extractStructure(ctx, piece)
		if err != nil {
			e.logger.Warn("template structure extraction failed for sub-chunk", "index", i, "error", err)
			continue
		}
		mergeStructure(&merged, s)
		succeeded++
	}
	if succeeded == 0 {
		return Structure{}, nil, fmt.Errorf("template structure extraction failed for all %d sub-chunks", len(pieces))
	}
	merged.LengthClass = ClassifyLength(text)

	var sections []Section
	seen := make(map[string]bool)
	for i, piece := range pieces {
		ss, err := e.extractSections(ctx, piece)
		if err != nil {
			e.logger.Warn("section extraction failed for sub-chunk", "index", i, "error", err)
			continue
		}
		// First occurrence of a title wins across sub-chunks.
		for _, s := range ss {
			key := normalizeTitle(s.Title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			sections = append(sections, s)
		}
	}

	return merged, sections, nil
}

func (e *Extractor) extractStructure(ctx context.Context, text string) (Structure, error) {
	raw, err := e.client.Chat(ctx, e.model, []llm.Message{
		{
			Role: "system",
			Content: "You analyze offer letters and employment documents to capture their reusable template. " +
				"Replace candidate-specific values in clause text with named placeholders in curly braces, " +
				"e.g. {candidate_name}, {designation}, {ctc}, {joining_date}, {company_name}. " +
				"Return only the requested JSON.",
		},
		{
			Role:    "user",
			Content: "Extract the template structure of this document:\n\n" + text,
		},
	}, structureSchema())
	if err != nil {
		return Structure{}, err
	}

	var s Structure
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Structure{}, fmt.Errorf("unmarshaling structure response: %w", err)
	}
	s.Tone = strings.ToLower(strings.TrimSpace(s.Tone))
	return s, nil
}

func (e *Extractor) extractSections(ctx context.Context, text string) ([]Section, error) {
	raw, err := e.client.Chat(ctx, e.model, []llm.Message{
		{
			Role: "system",
			Content: "You split offer letters into their titled sections. Return every section with its " +
				"complete verbatim content, in document order. Return only the requested JSON.",
		},
		{
			Role:    "user",
			Content: "List all sections of this document with full content:\n\n" + text,
		},
	}, sectionsSchema())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Sections []Section `json:"sections"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling sections response: %w", err)
	}
	return resp.Sections, nil
}

// mergeStructure folds src into dst: scalars and lists keep the first
// non-empty value, clause slots keep the first value per key, and structural
// flags are true if any sub-chunk saw the feature.
func mergeStructure(dst *Structure, src Structure) {
	if dst.HeaderFormat == "" {
		dst.HeaderFormat = src.HeaderFormat
	}
	if dst.GreetingFormat == "" {
		dst.GreetingFormat = src.GreetingFormat
	}
	if dst.OpeningFormat == "" {
		dst.OpeningFormat = src.OpeningFormat
	}
	if dst.ClosingFormat == "" {
		dst.ClosingFormat = src.ClosingFormat
	}
	if dst.Tone == "" {
		dst.Tone = src.Tone
	}
	if len(dst.SectionOrder) == 0 {
		dst.SectionOrder = src.SectionOrder
	}
	if len(src.Clauses) > 0 {
		if dst.Clauses == nil {
			dst.Clauses = make(map[string]string)
		}
		for k, v := range src.Clauses {
			if _, ok := dst.Clauses[k]; !ok && strings.TrimSpace(v) != "" {
				dst.Clauses[k] = v
			}
		}
	}
	dst.HasSalaryTable = dst.HasSalaryTable || src.HasSalaryTable
	dst.HasKRASection = dst.HasKRASection || src.HasKRASection
	dst.HasAnnexures = dst.HasAnnexures || src.HasAnnexures
	dst.DesignationTags = appendMissing(dst.DesignationTags, src.DesignationTags)
	dst.ExperienceLevels = appendMissing(dst.ExperienceLevels, src.ExperienceLevels)
}

func appendMissing(dst, src []string) []string {
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		found := false
		for _, d := range dst {
			if strings.EqualFold(d, s) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}

// splitSubChunks breaks text into pieces no longer than limit, preferring
// blank-line boundaries. A single paragraph longer than the limit is split
// hard at the limit.
func splitSubChunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var pieces []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		for len(para) > limit {
			if current.Len() > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			pieces = append(pieces, para[:limit])
			para = para[limit:]
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > limit {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func structureSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"header_format":     {Type: "string", Description: "Letterhead/header layout with placeholders"},
			"greeting_format":   {Type: "string", Description: "Salutation line, e.g. 'Dear {candidate_name},'"},
			"opening_format":    {Type: "string", Description: "Opening paragraph with placeholders"},
			"closing_format":    {Type: "string", Description: "Closing paragraph with placeholders"},
			"tone":              {Type: "string", Description: "Overall tone: formal, friendly, or neutral"},
			"section_order":     {Type: "array", Description: "Section names in document order"},
			"clauses":           {Type: "object", Description: "Clause slot to verbatim text with placeholders. Slots: opening, probation, notice_period, confidentiality, termination, general_terms, benefits, working_hours, leave_policy, closing"},
			"has_salary_table":  {Type: "boolean", Description: "Whether the document contains a salary breakup table"},
			"has_kra_section":   {Type: "boolean", Description: "Whether the document contains a KRA/responsibilities section"},
			"has_annexures":     {Type: "boolean", Description: "Whether the document contains annexures"},
			"designation_tags":  {Type: "array", Description: "Designations this template appears intended for"},
			"experience_levels": {Type: "array", Description: "Applicable levels: fresher, junior, mid, senior, lead"},
		},
	}
}

func sectionsSchema() *llm.Schema {
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"sections": {Type: "array", Description: "Array of {title, content} objects in document order"},
		},
	}
}
