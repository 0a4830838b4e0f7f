// Package templates extracts, stores and matches reusable offer-letter
// template profiles. A profile captures one structurally distinct letter
// format; documents of the same format merge into one profile.
package templates

import (
	"encoding/json"
	"strings"
)

// Length classification boundaries, measured in characters of source text.
const (
	ShortDocLimit = 1500
	LongDocLimit  = 6000
)

// Template length classes.
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// Section is one titled block of verbatim document content.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Structure is the skeleton of one document's template as extracted by the
// model: formats, ordering, tone, clause text with placeholders, and
// structural flags.
type Structure struct {
	HeaderFormat     string            `json:"header_format"`
	GreetingFormat   string            `json:"greeting_format"`
	OpeningFormat    string            `json:"opening_format"`
	ClosingFormat    string            `json:"closing_format"`
	Tone             string            `json:"tone"`
	SectionOrder     []string          `json:"section_order"`
	Clauses          map[string]string `json:"clauses"`
	HasSalaryTable   bool              `json:"has_salary_table"`
	HasKRASection    bool              `json:"has_kra_section"`
	HasAnnexures     bool              `json:"has_annexures"`
	DesignationTags  []string          `json:"designation_tags"`
	ExperienceLevels []string          `json:"experience_levels"`
	LengthClass      string            `json:"-"`
}

// ClassifyLength buckets a document into short/medium/long by text size.
func ClassifyLength(text string) string {
	switch n := len(text); {
	case n < ShortDocLimit:
		return LengthShort
	case n < LongDocLimit:
		return LengthMedium
	default:
		return LengthLong
	}
}

// ExperienceBucket maps years of experience to a level tag.
func ExperienceBucket(years float64) string {
	switch {
	case years < 1:
		return "fresher"
	case years < 3:
		return "junior"
	case years < 6:
		return "mid"
	case years < 10:
		return "senior"
	default:
		return "lead"
	}
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalStrings(raw string) []string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func unmarshalClauses(raw string) map[string]string {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
