package templates

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/recruitdesk/offergen/internal/storage"
)

// DefaultMergeThreshold is the similarity at which a newly extracted
// structure merges into an existing profile instead of creating a new one.
// A score equal to the threshold merges; only strictly lower scores create.
// Tuned to tolerate extraction noise between two documents of the same
// underlying template while keeping distinct templates apart.
const DefaultMergeThreshold = 0.8

// Composite similarity weights. They sum to 1.0 so the score stays in [0, 1].
const (
	toneWeight    = 0.25
	sectionWeight = 0.35
	flagsWeight   = 0.25
	lengthWeight  = 0.15
)

// ProfileStorage is the slice of storage the profile store needs.
type ProfileStorage interface {
	ListActiveTemplateProfiles() ([]storage.TemplateProfile, error)
	SaveTemplateProfile(p storage.TemplateProfile) error
	UpdateTemplateProfile(p storage.TemplateProfile) error
	SaveTemplateMatch(m storage.TemplateMatch) error
}

// ProfileStore decides whether an extracted structure is a new template or
// another instance of a known one. The merge-or-create decision runs under a
// single-writer mutex so concurrent ingestions cannot both create a profile
// for the same template.
type ProfileStore struct {
	store     ProfileStorage
	threshold float64

	mu sync.Mutex
}

// NewProfileStore creates a ProfileStore. A non-positive threshold falls back
// to DefaultMergeThreshold.
func NewProfileStore(store ProfileStorage, threshold float64) *ProfileStore {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	return &ProfileStore{store: store, threshold: threshold}
}

// Similarity scores how closely a structure matches an existing profile,
// weighting tone match, section-order overlap, structural flag agreement,
// and length class agreement.
func Similarity(s Structure, p storage.TemplateProfile) float64 {
	score := 0.0

	// Empty on both sides counts as agreement, mirroring jaccard's rule for
	// two empty section lists; a structure scores 1.0 against the profile
	// built from it even when the model omitted the tone.
	if strings.EqualFold(strings.TrimSpace(s.Tone), strings.TrimSpace(p.Tone)) {
		score += toneWeight
	}

	score += sectionWeight * jaccard(s.SectionOrder, unmarshalStrings(p.SectionOrder))

	flags := 0
	if s.HasSalaryTable == p.HasSalaryTable {
		flags++
	}
	if s.HasKRASection == p.HasKRASection {
		flags++
	}
	if s.HasAnnexures == p.HasAnnexures {
		flags++
	}
	score += flagsWeight * float64(flags) / 3

	if s.LengthClass == p.LengthClass {
		score += lengthWeight
	}

	return score
}

// jaccard computes |A ∩ B| / |A ∪ B| over normalized section names.
// Two empty lists count as identical.
func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		if key := normalizeTitle(s); key != "" {
			setA[key] = true
		}
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		if key := normalizeTitle(s); key != "" {
			setB[key] = true
		}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for key := range setA {
		if setB[key] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// MatchResult reports where a document's structure landed.
type MatchResult struct {
	ProfileID  string
	Confidence float64
	Merged     bool
}

// CreateOrUpdate matches the structure against every active profile. Above
// the threshold it merges into the best match: the document id joins the
// profile's source list, usage_count increments, and the stored full-section
// snapshot is replaced with this document's. Otherwise it creates a new
// profile with confidence 1.0.
func (ps *ProfileStore) CreateOrUpdate(s Structure, documentID string, sections []Section) (MatchResult, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	profiles, err := ps.store.ListActiveTemplateProfiles()
	if err != nil {
		return MatchResult{}, fmt.Errorf("listing profiles: %w", err)
	}

	var best *storage.TemplateProfile
	bestScore := 0.0
	for i := range profiles {
		score := Similarity(s, profiles[i])
		if score > bestScore {
			best = &profiles[i]
			bestScore = score
		}
	}

	if best != nil && bestScore >= ps.threshold {
		merged := *best
		merged.UsageCount++
		merged.SourceDocs = appendSourceDoc(merged.SourceDocs, documentID)
		merged.Sections = marshalJSON(sections)
		mergeClausesInto(&merged, s.Clauses)
		merged.DesignationTags = marshalJSON(appendMissing(unmarshalStrings(merged.DesignationTags), s.DesignationTags))
		merged.ExperienceLevels = marshalJSON(appendMissing(unmarshalStrings(merged.ExperienceLevels), s.ExperienceLevels))
		if err := ps.store.UpdateTemplateProfile(merged); err != nil {
			return MatchResult{}, fmt.Errorf("merging into profile %s: %w", merged.ID, err)
		}
		if err := ps.recordMatch(documentID, merged.ID, bestScore); err != nil {
			return MatchResult{}, err
		}
		return MatchResult{ProfileID: merged.ID, Confidence: bestScore, Merged: true}, nil
	}

	profile := storage.TemplateProfile{
		ID:               uuid.New().String(),
		Name:             profileName(s, len(profiles)+1),
		HeaderFormat:     s.HeaderFormat,
		GreetingFormat:   s.GreetingFormat,
		OpeningFormat:    s.OpeningFormat,
		ClosingFormat:    s.ClosingFormat,
		Tone:             s.Tone,
		SectionOrder:     marshalJSON(s.SectionOrder),
		Clauses:          marshalJSON(s.Clauses),
		HasSalaryTable:   s.HasSalaryTable,
		HasKRASection:    s.HasKRASection,
		HasAnnexures:     s.HasAnnexures,
		DesignationTags:  marshalJSON(s.DesignationTags),
		ExperienceLevels: marshalJSON(s.ExperienceLevels),
		LengthClass:      s.LengthClass,
		Sections:         marshalJSON(sections),
		SourceDocs:       marshalJSON([]string{documentID}),
		UsageCount:       1,
		IsActive:         true,
	}
	if err := ps.store.SaveTemplateProfile(profile); err != nil {
		return MatchResult{}, fmt.Errorf("creating profile: %w", err)
	}
	if err := ps.recordMatch(documentID, profile.ID, 1.0); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{ProfileID: profile.ID, Confidence: 1.0, Merged: false}, nil
}

func (ps *ProfileStore) recordMatch(documentID, profileID string, confidence float64) error {
	err := ps.store.SaveTemplateMatch(storage.TemplateMatch{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		ProfileID:  profileID,
		Confidence: confidence,
	})
	if err != nil {
		return fmt.Errorf("recording template match: %w", err)
	}
	return nil
}

// mergeClausesInto fills clause slots the profile is missing; existing clause
// text is kept.
func mergeClausesInto(p *storage.TemplateProfile, clauses map[string]string) {
	if len(clauses) == 0 {
		return
	}
	existing := unmarshalClauses(p.Clauses)
	if existing == nil {
		existing = make(map[string]string)
	}
	for k, v := range clauses {
		if _, ok := existing[k]; !ok && strings.TrimSpace(v) != "" {
			existing[k] = v
		}
	}
	p.Clauses = marshalJSON(existing)
}

func appendSourceDoc(raw, documentID string) string {
	docs := unmarshalStrings(raw)
	return marshalJSON(append(docs, documentID))
}

func profileName(s Structure, ordinal int) string {
	if len(s.DesignationTags) > 0 {
		return fmt.Sprintf("%s %s template", s.DesignationTags[0], s.LengthClass)
	}
	return fmt.Sprintf("Template %d (%s, %s)", ordinal, s.Tone, s.LengthClass)
}
