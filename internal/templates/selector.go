package templates

import (
	"sort"
	"strings"

	"github.com/recruitdesk/offergen/internal/storage"
)

// SelectorStorage lists the candidate profiles for selection. No ordering is
// assumed; Select sorts the candidates itself.
type SelectorStorage interface {
	ListActiveTemplateProfiles() ([]storage.TemplateProfile, error)
}

// SelectionRequest carries the candidate facts the selector matches on.
// LengthHint ("short", "medium", "long") narrows the candidate set to
// profiles of that length class when any exist.
type SelectionRequest struct {
	Designation     string
	ExperienceYears float64
	EmploymentType  string
	Location        string
	LengthHint      string
}

// Selector picks the best template profile for a generation request using
// staged fallback rules: the first stage producing a result wins.
type Selector struct {
	store SelectorStorage
}

// NewSelector creates a Selector over the given profile storage.
func NewSelector(store SelectorStorage) *Selector {
	return &Selector{store: store}
}

// Select returns the best matching active profile, or nil when no active
// profile exists at all. Callers must treat nil as "upload samples first",
// not as an error.
func (s *Selector) Select(req SelectionRequest) (*storage.TemplateProfile, error) {
	profiles, err := s.store.ListActiveTemplateProfiles()
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	// Later stages prefer the most-used profile, so fix the order here
	// instead of relying on how the storage happens to sort.
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].UsageCount > profiles[j].UsageCount
	})

	if hint := strings.ToLower(strings.TrimSpace(req.LengthHint)); hint != "" {
		var matching []storage.TemplateProfile
		for _, p := range profiles {
			if p.LengthClass == hint {
				matching = append(matching, p)
			}
		}
		if len(matching) > 0 {
			profiles = matching
		}
	}

	designation := strings.ToLower(strings.TrimSpace(req.Designation))
	location := strings.ToLower(strings.TrimSpace(req.Location))
	employment := strings.ToLower(strings.TrimSpace(req.EmploymentType))

	// Stage 1: designation match plus the profile mentioning the location.
	if location != "" {
		for i := range profiles {
			if matchesDesignation(&profiles[i], designation) && mentionsText(&profiles[i], location) {
				return &profiles[i], nil
			}
		}
	}

	// Stage 2: employment-type heuristic for interns and contractors.
	for _, kind := range []string{"intern", "contract", "consultant"} {
		if !strings.Contains(designation, kind) && !strings.Contains(employment, kind) {
			continue
		}
		for i := range profiles {
			if mentionsTag(&profiles[i], kind) {
				return &profiles[i], nil
			}
		}
	}

	// Stage 3: designation match alone. The list is ordered by usage_count
	// desc, so prefer an is_default hit within equals.
	var byDesignation []*storage.TemplateProfile
	for i := range profiles {
		if matchesDesignation(&profiles[i], designation) {
			byDesignation = append(byDesignation, &profiles[i])
		}
	}
	if len(byDesignation) > 0 {
		best := byDesignation[0]
		for _, p := range byDesignation[1:] {
			if p.UsageCount == best.UsageCount && p.IsDefault && !best.IsDefault {
				best = p
			}
		}
		return best, nil
	}

	// Stage 4: experience bucket against the profile's recorded levels.
	bucket := ExperienceBucket(req.ExperienceYears)
	for i := range profiles {
		for _, level := range unmarshalStrings(profiles[i].ExperienceLevels) {
			if strings.EqualFold(level, bucket) {
				return &profiles[i], nil
			}
		}
	}

	// Stage 5: the default profile, else the single most-used one.
	for i := range profiles {
		if profiles[i].IsDefault {
			return &profiles[i], nil
		}
	}
	return &profiles[0], nil
}

// matchesDesignation reports whether the profile is meant for the given
// designation, by substring in either direction against its tags and name.
func matchesDesignation(p *storage.TemplateProfile, designation string) bool {
	if designation == "" {
		return false
	}
	for _, tag := range unmarshalStrings(p.DesignationTags) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(designation, tag) || strings.Contains(tag, designation) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(p.Name), designation)
}

// mentionsText reports whether the profile's stored content contains the
// needle anywhere: name, sections, clauses, or header.
func mentionsText(p *storage.TemplateProfile, needle string) bool {
	for _, haystack := range []string{p.Name, p.HeaderFormat, p.Sections, p.Clauses} {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

func mentionsTag(p *storage.TemplateProfile, kind string) bool {
	if strings.Contains(strings.ToLower(p.Name), kind) {
		return true
	}
	for _, tag := range unmarshalStrings(p.DesignationTags) {
		if strings.Contains(strings.ToLower(tag), kind) {
			return true
		}
	}
	return false
}
