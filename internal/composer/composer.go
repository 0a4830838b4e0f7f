// Package composer assembles the final offer-letter content from a selected
// template profile, learned clause text, company defaults, and candidate
// data. It never invents clause text: every sentence comes from a stored
// source or a fixed generic fallback.
package composer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/recruitdesk/offergen/internal/storage"
)

// Salary breakdown defaults, applied when no benchmark supplies percentages.
const (
	DefaultBasicPercent     = 40.0
	DefaultHRAPercent       = 20.0
	DefaultMedicalAllowance = 15000.0
)

// Clause slots resolved per letter, in output order.
var clauseSlots = []string{
	"opening",
	"probation",
	"notice_period",
	"confidentiality",
	"termination",
	"general_terms",
	"benefits",
	"working_hours",
	"leave_policy",
	"closing",
}

// Clause sources, in priority order.
const (
	SourceTemplate = "template"
	SourcePattern  = "pattern"
	SourceGeneric  = "generic"
)

const (
	genericOpening = "We are pleased to offer you the position of {designation} at {company_name}. " +
		"Your annual compensation will be Rs. {ctc} ({ctc_in_words})."
	genericClosing = "We look forward to welcoming you aboard. Please sign and return a copy of this " +
		"letter as acceptance of the offer."
)

// Candidate carries the person-specific inputs for one letter.
type Candidate struct {
	Name            string
	Designation     string
	ExperienceYears float64
	AnnualCTC       float64
	JoiningDate     time.Time
	Location        string
}

// Options carries the letter-level configuration supplied per request.
type Options struct {
	WorkLocation string
	HRName       string
	HRTitle      string
	ValidityDays int
	IssueDate    time.Time
}

// SalaryComponent is one row of the salary annexure.
type SalaryComponent struct {
	Name    string  `json:"name"`
	Monthly float64 `json:"monthly"`
	Annual  float64 `json:"annual"`
}

// SalaryAnnexure is the computed salary breakup.
type SalaryAnnexure struct {
	Components   []SalaryComponent `json:"components"`
	TotalMonthly float64           `json:"total_monthly"`
	TotalAnnual  float64           `json:"total_annual"`
	TotalInWords string            `json:"total_in_words"`
}

// BodySection is one titled block of letter body text.
type BodySection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Signature is the letter's sign-off block.
type Signature struct {
	HRName      string `json:"hr_name"`
	HRTitle     string `json:"hr_title"`
	CompanyName string `json:"company_name"`
}

// LetterContent is the composed letter, consumed by an external renderer.
type LetterContent struct {
	Header     string         `json:"header"`
	Date       string         `json:"date"`
	Greeting   string         `json:"greeting"`
	Opening    string         `json:"opening"`
	Body       []BodySection  `json:"body"`
	Salary     SalaryAnnexure `json:"salary_annexure"`
	KRA        []string       `json:"kra_annexure,omitempty"`
	Closing    string         `json:"closing"`
	Signature  Signature      `json:"signature"`
	ValidUntil string         `json:"valid_until,omitempty"`
}

// Composer builds letters. It holds no state; one instance serves all requests.
type Composer struct{}

// New creates a Composer.
func New() *Composer {
	return &Composer{}
}

// Compose builds the letter content. profile and pattern may each be nil;
// missing sources simply leave their clause slots empty. The returned map
// records which source filled each slot.
func (c *Composer) Compose(
	profile *storage.TemplateProfile,
	pattern *storage.LearnedPattern,
	defaults map[string]string,
	basicPercent, hraPercent float64,
	cand Candidate,
	opts Options,
) (LetterContent, map[string]string) {
	issue := opts.IssueDate
	if issue.IsZero() {
		issue = time.Now()
	}

	salary := BuildSalaryAnnexure(cand.AnnualCTC, basicPercent, hraPercent)
	values := c.placeholderValues(pattern, defaults, cand, opts, salary)

	clauses, sources := c.resolveClauses(profile, pattern)
	for slot, text := range clauses {
		clauses[slot] = substitutePlaceholders(text, values)
	}

	letter := LetterContent{
		Header:   c.headerText(profile, values),
		Date:     FormatDate(issue),
		Greeting: c.greetingText(profile, values),
		Opening:  clauses["opening"],
		Salary:   salary,
		Closing:  clauses["closing"],
		Signature: Signature{
			HRName:      firstNonEmpty(opts.HRName, lookup(defaults, "hr_name"), patternField(pattern, "hr_name")),
			HRTitle:     firstNonEmpty(opts.HRTitle, lookup(defaults, "hr_title"), patternField(pattern, "hr_title")),
			CompanyName: firstNonEmpty(lookup(defaults, "company_name"), patternField(pattern, "company_name")),
		},
	}
	if opts.ValidityDays > 0 {
		letter.ValidUntil = FormatDate(issue.AddDate(0, 0, opts.ValidityDays))
	}

	for _, slot := range clauseSlots {
		if slot == "opening" || slot == "closing" {
			continue
		}
		if text := clauses[slot]; text != "" {
			letter.Body = append(letter.Body, BodySection{Title: slotTitle(slot), Content: text})
		}
	}

	if profile != nil && profile.HasKRASection {
		letter.KRA = kraFromSections(profile.Sections)
	}

	return letter, sources
}

// resolveClauses fills each slot by strict priority: profile clause text,
// then the pattern's corresponding field, then a generic fallback for
// opening and closing only. Other slots stay empty when neither source has
// them.
func (c *Composer) resolveClauses(profile *storage.TemplateProfile, pattern *storage.LearnedPattern) (map[string]string, map[string]string) {
	var profileClauses map[string]string
	if profile != nil {
		profileClauses = clauseMap(profile.Clauses)
	}

	clauses := make(map[string]string, len(clauseSlots))
	sources := make(map[string]string, len(clauseSlots))
	for _, slot := range clauseSlots {
		if text := strings.TrimSpace(profileClauses[slot]); text != "" {
			clauses[slot] = text
			sources[slot] = SourceTemplate
			continue
		}
		if text := patternClause(pattern, slot); text != "" {
			clauses[slot] = text
			sources[slot] = SourcePattern
			continue
		}
		switch slot {
		case "opening":
			clauses[slot] = genericOpening
			sources[slot] = SourceGeneric
		case "closing":
			clauses[slot] = genericClosing
			sources[slot] = SourceGeneric
		}
	}

	// A profile opening/closing format beats clause-slot text.
	if profile != nil {
		if text := strings.TrimSpace(profile.OpeningFormat); text != "" {
			clauses["opening"] = text
			sources["opening"] = SourceTemplate
		}
		if text := strings.TrimSpace(profile.ClosingFormat); text != "" {
			clauses["closing"] = text
			sources["closing"] = SourceTemplate
		}
	}

	return clauses, sources
}

// clauseMap parses a profile's stored clause JSON. Malformed JSON degrades
// to no stored clauses rather than failing composition.
func clauseMap(raw string) map[string]string {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func patternClause(pattern *storage.LearnedPattern, slot string) string {
	if pattern == nil {
		return ""
	}
	switch slot {
	case "probation":
		return strings.TrimSpace(pattern.Probation)
	case "notice_period":
		return strings.TrimSpace(pattern.NoticePeriod)
	case "working_hours":
		return strings.TrimSpace(pattern.WorkingHours)
	case "leave_policy":
		return strings.TrimSpace(pattern.LeavePolicy)
	case "benefits":
		var items []string
		if err := json.Unmarshal([]byte(pattern.Benefits), &items); err != nil || len(items) == 0 {
			return ""
		}
		return "You will be eligible for the following benefits: " + strings.Join(items, ", ") + "."
	}
	return ""
}

func patternField(pattern *storage.LearnedPattern, field string) string {
	if pattern == nil {
		return ""
	}
	switch field {
	case "company_name":
		return pattern.CompanyName
	case "company_address":
		return pattern.CompanyAddress
	case "hr_name":
		return pattern.HRName
	case "hr_title":
		return pattern.HRTitle
	}
	return ""
}

func (c *Composer) headerText(profile *storage.TemplateProfile, values map[string]string) string {
	if profile != nil && strings.TrimSpace(profile.HeaderFormat) != "" {
		return substitutePlaceholders(profile.HeaderFormat, values)
	}
	header := values["company_name"]
	if addr := values["company_address"]; addr != "" {
		header += "\n" + addr
	}
	return header
}

func (c *Composer) greetingText(profile *storage.TemplateProfile, values map[string]string) string {
	if profile != nil && strings.TrimSpace(profile.GreetingFormat) != "" {
		return substitutePlaceholders(profile.GreetingFormat, values)
	}
	return "Dear " + values["candidate_name"] + ","
}

func (c *Composer) placeholderValues(
	pattern *storage.LearnedPattern,
	defaults map[string]string,
	cand Candidate,
	opts Options,
	salary SalaryAnnexure,
) map[string]string {
	values := map[string]string{
		"candidate_name":  cand.Name,
		"name":            cand.Name,
		"designation":     cand.Designation,
		"role":            cand.Designation,
		"position":        cand.Designation,
		"ctc":             formatAmount(cand.AnnualCTC),
		"annual_ctc":      formatAmount(cand.AnnualCTC),
		"ctc_in_words":    salary.TotalInWords,
		"monthly_salary":  formatAmount(salary.TotalMonthly),
		"location":        firstNonEmpty(opts.WorkLocation, cand.Location),
		"work_location":   firstNonEmpty(opts.WorkLocation, cand.Location),
		"hr_name":         firstNonEmpty(opts.HRName, lookup(defaults, "hr_name"), patternField(pattern, "hr_name")),
		"hr_title":        firstNonEmpty(opts.HRTitle, lookup(defaults, "hr_title"), patternField(pattern, "hr_title")),
		"company_name":    firstNonEmpty(lookup(defaults, "company_name"), patternField(pattern, "company_name")),
		"company_address": firstNonEmpty(lookup(defaults, "company_address"), patternField(pattern, "company_address")),
	}
	if !cand.JoiningDate.IsZero() {
		values["joining_date"] = FormatDate(cand.JoiningDate)
		values["date_of_joining"] = values["joining_date"]
	}
	return values
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// substitutePlaceholders replaces {placeholder} tokens case-insensitively.
// Unknown placeholders are left intact so missing data stays visible.
func substitutePlaceholders(text string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.ToLower(match[1 : len(match)-1])
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return match
	})
}

// BuildSalaryAnnexure splits the annual CTC into Basic, HRA, Medical
// Allowance and Special Allowance. Special Allowance is the remainder, so
// the four-component annual total always equals the CTC exactly.
func BuildSalaryAnnexure(annualCTC, basicPercent, hraPercent float64) SalaryAnnexure {
	if basicPercent <= 0 {
		basicPercent = DefaultBasicPercent
	}
	if hraPercent <= 0 {
		hraPercent = DefaultHRAPercent
	}

	basic := annualCTC * basicPercent / 100
	hra := annualCTC * hraPercent / 100
	medical := DefaultMedicalAllowance
	if medical > annualCTC-basic-hra {
		medical = 0
	}
	// Remainder component: summing the four annual figures in order yields
	// the CTC exactly.
	special := annualCTC - (basic + hra + medical)

	components := []SalaryComponent{
		{Name: "Basic Salary", Annual: basic, Monthly: basic / 12},
		{Name: "House Rent Allowance", Annual: hra, Monthly: hra / 12},
		{Name: "Medical Allowance", Annual: medical, Monthly: medical / 12},
		{Name: "Special Allowance", Annual: special, Monthly: special / 12},
	}
	return SalaryAnnexure{
		Components:   components,
		TotalMonthly: annualCTC / 12,
		TotalAnnual:  annualCTC,
		TotalInWords: AmountInWords(annualCTC),
	}
}

func kraFromSections(sectionsJSON string) []string {
	var sections []BodySection
	if err := json.Unmarshal([]byte(sectionsJSON), &sections); err != nil {
		return nil
	}
	for _, s := range sections {
		title := strings.ToLower(s.Title)
		if strings.Contains(title, "kra") || strings.Contains(title, "responsibilit") {
			var items []string
			for _, line := range strings.Split(s.Content, "\n") {
				if line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t")); line != "" {
					items = append(items, line)
				}
			}
			return items
		}
	}
	return nil
}

func slotTitle(slot string) string {
	switch slot {
	case "probation":
		return "Probation"
	case "notice_period":
		return "Notice Period"
	case "confidentiality":
		return "Confidentiality"
	case "termination":
		return "Termination"
	case "general_terms":
		return "General Terms"
	case "benefits":
		return "Benefits"
	case "working_hours":
		return "Working Hours"
	case "leave_policy":
		return "Leave Policy"
	}
	return slot
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func lookup(m map[string]string, key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}
