// Package pipeline orchestrates offer-letter generation: candidate
// resolution, template selection, learned-data lookup, and composition.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recruitdesk/offergen/internal/composer"
	"github.com/recruitdesk/offergen/internal/patterns"
	"github.com/recruitdesk/offergen/internal/retrieval"
	"github.com/recruitdesk/offergen/internal/storage"
	"github.com/recruitdesk/offergen/internal/templates"
)

// ErrNoTemplates signals an empty training corpus. Callers surface this as
// "upload sample documents first", not as a server error.
var ErrNoTemplates = errors.New("no template profiles available, upload sample documents first")

// Store is the storage slice generation reads from.
type Store interface {
	GetResumeExtraction(id string) (storage.ResumeExtraction, error)
	GetTemplateProfile(id string) (storage.TemplateProfile, error)
	LatestLearnedPattern(designation string) (storage.LearnedPattern, error)
	AllCompanyDefaults() (map[string]string, error)
	GetSalaryBenchmark(designation string) (storage.SalaryBenchmark, error)
}

// Request carries everything one generation call needs. Candidate identity
// comes either from ResumeID or the inline fields; inline values win when
// both are present.
type Request struct {
	ResumeID string `json:"resume_id,omitempty"`

	CandidateName   string  `json:"candidate_name,omitempty"`
	Designation     string  `json:"designation,omitempty"`
	ExperienceYears float64 `json:"experience_years,omitempty"`
	AnnualCTC       float64 `json:"annual_ctc,omitempty"`
	JoiningDate     string  `json:"joining_date,omitempty"` // YYYY-MM-DD
	Location        string  `json:"location,omitempty"`

	ProfileID      string `json:"profile_id,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`
	WorkLocation   string `json:"work_location,omitempty"`
	HRName         string `json:"hr_name,omitempty"`
	HRTitle        string `json:"hr_title,omitempty"`
	ValidityDays   int    `json:"validity_days,omitempty"`
	LengthHint     string `json:"length_hint,omitempty"` // "short", "medium", "long"
}

// Result is the generation outcome with its confidence breakdown.
type Result struct {
	Success            bool                     `json:"success"`
	Letter             composer.LetterContent   `json:"letter"`
	ProfileID          string                   `json:"profile_id"`
	ProfileName        string                   `json:"profile_name"`
	TemplateConfidence float64                  `json:"template_confidence"`
	ClauseSources      map[string]string        `json:"clause_sources"`
	Context            []retrieval.ContextChunk `json:"context,omitempty"`
}

// Generator wires the generation-time collaborators together.
type Generator struct {
	store     Store
	selector  *templates.Selector
	composer  *composer.Composer
	retriever *retrieval.Retriever
	logger    *slog.Logger
}

// NewGenerator creates a Generator. The retriever may be nil; it only feeds
// supporting context when the selected profile carries no clause text.
func NewGenerator(store Store, selector *templates.Selector, comp *composer.Composer, retriever *retrieval.Retriever) *Generator {
	return &Generator{
		store:     store,
		selector:  selector,
		composer:  comp,
		retriever: retriever,
		logger:    slog.Default(),
	}
}

// Generate produces one offer letter. Returns ErrNoTemplates when no active
// profile exists and no explicit profile id was given.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	cand, err := g.resolveCandidate(req)
	if err != nil {
		return Result{}, err
	}

	profile, confidence, err := g.resolveProfile(req, cand)
	if err != nil {
		return Result{}, err
	}

	pattern, err := g.latestPattern(cand.Designation)
	if err != nil {
		return Result{}, err
	}

	defaults, err := g.store.AllCompanyDefaults()
	if err != nil {
		return Result{}, fmt.Errorf("loading company defaults: %w", err)
	}

	basicPercent, hraPercent := 0.0, 0.0
	benchmark, err := g.store.GetSalaryBenchmark(patterns.NormalizeDesignation(cand.Designation))
	if err == nil {
		basicPercent, hraPercent = benchmark.BasicPercent, benchmark.HRAPercent
		if cand.AnnualCTC <= 0 {
			cand.AnnualCTC = benchmark.AvgCTC
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("loading salary benchmark: %w", err)
	}
	if cand.AnnualCTC <= 0 {
		return Result{}, fmt.Errorf("annual CTC is required: none given and no benchmark exists for %q", cand.Designation)
	}

	letter, sources := g.composer.Compose(profile, pattern, defaults, basicPercent, hraPercent, cand, composer.Options{
		WorkLocation: req.WorkLocation,
		HRName:       req.HRName,
		HRTitle:      req.HRTitle,
		ValidityDays: req.ValidityDays,
	})

	result := Result{
		Success:            true,
		Letter:             letter,
		TemplateConfidence: confidence,
		ClauseSources:      sources,
	}
	if profile != nil {
		result.ProfileID = profile.ID
		result.ProfileName = profile.Name
	}

	// When the profile carries no clause text the letter leans on learned
	// patterns alone; attach the closest corpus chunks as reviewer context.
	if g.retriever != nil && profileHasNoClauses(profile) {
		chunks, err := g.retriever.Retrieve(ctx, cand.Designation+" offer letter terms", 3)
		if err != nil {
			g.logger.Warn("context retrieval failed", "error", err)
		} else {
			result.Context = chunks
		}
	}

	return result, nil
}

// resolveCandidate merges the resume extraction (when referenced) with the
// inline fields, inline winning per field.
func (g *Generator) resolveCandidate(req Request) (composer.Candidate, error) {
	cand := composer.Candidate{
		Name:            req.CandidateName,
		Designation:     req.Designation,
		ExperienceYears: req.ExperienceYears,
		AnnualCTC:       req.AnnualCTC,
		Location:        req.Location,
	}
	if req.JoiningDate != "" {
		d, err := time.Parse("2006-01-02", req.JoiningDate)
		if err != nil {
			return composer.Candidate{}, fmt.Errorf("invalid joining_date %q: %w", req.JoiningDate, err)
		}
		cand.JoiningDate = d
	}

	if req.ResumeID != "" {
		resume, err := g.store.GetResumeExtraction(req.ResumeID)
		if err != nil {
			return composer.Candidate{}, fmt.Errorf("loading resume %s: %w", req.ResumeID, err)
		}
		if cand.Name == "" {
			cand.Name = resume.CandidateName
		}
		if cand.Designation == "" {
			cand.Designation = resume.Designation
		}
		if cand.ExperienceYears == 0 {
			cand.ExperienceYears = resume.ExperienceYears
		}
		if cand.AnnualCTC == 0 {
			cand.AnnualCTC = resume.ExpectedCTC
		}
		if cand.Location == "" {
			cand.Location = resume.Location
		}
	}

	if cand.Name == "" {
		return composer.Candidate{}, errors.New("candidate name is required")
	}
	if cand.Designation == "" {
		return composer.Candidate{}, errors.New("designation is required")
	}
	return cand, nil
}

// resolveProfile honors an explicit profile id, otherwise runs the staged
// selector. A nil selector result means the corpus is empty.
func (g *Generator) resolveProfile(req Request, cand composer.Candidate) (*storage.TemplateProfile, float64, error) {
	if req.ProfileID != "" {
		p, err := g.store.GetTemplateProfile(req.ProfileID)
		if err != nil {
			return nil, 0, fmt.Errorf("loading profile %s: %w", req.ProfileID, err)
		}
		return &p, 1.0, nil
	}

	profile, err := g.selector.Select(templates.SelectionRequest{
		Designation:     cand.Designation,
		ExperienceYears: cand.ExperienceYears,
		EmploymentType:  req.EmploymentType,
		Location:        firstNonEmpty(req.WorkLocation, cand.Location),
		LengthHint:      req.LengthHint,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("selecting template: %w", err)
	}
	if profile == nil {
		return nil, 0, ErrNoTemplates
	}
	return profile, selectionConfidence(profile, cand), nil
}

// selectionConfidence is a coarse score for how specific the selected
// profile is to the candidate: 0.5 for a bare fallback hit, up to 1.0 when
// both designation and experience level line up.
func selectionConfidence(profile *storage.TemplateProfile, cand composer.Candidate) float64 {
	confidence := 0.5
	if tagListMatches(profile.DesignationTags, cand.Designation) {
		confidence += 0.3
	}
	if tagListMatches(profile.ExperienceLevels, templates.ExperienceBucket(cand.ExperienceYears)) {
		confidence += 0.2
	}
	return confidence
}

// tagListMatches reports whether any tag in the JSON array matches the value
// by case-insensitive substring in either direction.
func tagListMatches(tagsJSON, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return false
	}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(value, tag) || strings.Contains(tag, value) {
			return true
		}
	}
	return false
}

func (g *Generator) latestPattern(designation string) (*storage.LearnedPattern, error) {
	p, err := g.store.LatestLearnedPattern(designation)
	if errors.Is(err, storage.ErrNotFound) {
		// Fall back to the most recent pattern across all designations.
		p, err = g.store.LatestLearnedPattern("")
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading learned pattern: %w", err)
	}
	return &p, nil
}

func profileHasNoClauses(profile *storage.TemplateProfile) bool {
	if profile == nil {
		return true
	}
	clauses := profile.Clauses
	return clauses == "" || clauses == "{}" || clauses == "null"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
