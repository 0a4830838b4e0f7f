package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/recruitdesk/offergen/internal/composer"
	"github.com/recruitdesk/offergen/internal/storage"
	"github.com/recruitdesk/offergen/internal/templates"
)

type mockStore struct {
	resumes    map[string]storage.ResumeExtraction
	profiles   []storage.TemplateProfile
	pattern    *storage.LearnedPattern
	defaults   map[string]string
	benchmarks map[string]storage.SalaryBenchmark
}

func newMockStore() *mockStore {
	return &mockStore{
		resumes:    make(map[string]storage.ResumeExtraction),
		defaults:   make(map[string]string),
		benchmarks: make(map[string]storage.SalaryBenchmark),
	}
}

func (m *mockStore) GetResumeExtraction(id string) (storage.ResumeExtraction, error) {
	r, ok := m.resumes[id]
	if !ok {
		return storage.ResumeExtraction{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *mockStore) GetTemplateProfile(id string) (storage.TemplateProfile, error) {
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return storage.TemplateProfile{}, storage.ErrNotFound
}

func (m *mockStore) ListActiveTemplateProfiles() ([]storage.TemplateProfile, error) {
	var active []storage.TemplateProfile
	for _, p := range m.profiles {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (m *mockStore) LatestLearnedPattern(designation string) (storage.LearnedPattern, error) {
	if m.pattern == nil {
		return storage.LearnedPattern{}, storage.ErrNotFound
	}
	return *m.pattern, nil
}

func (m *mockStore) AllCompanyDefaults() (map[string]string, error) {
	return m.defaults, nil
}

func (m *mockStore) GetSalaryBenchmark(designation string) (storage.SalaryBenchmark, error) {
	b, ok := m.benchmarks[designation]
	if !ok {
		return storage.SalaryBenchmark{}, storage.ErrNotFound
	}
	return b, nil
}

func newTestGenerator(store *mockStore) *Generator {
	return NewGenerator(store, templates.NewSelector(store), composer.New(), nil)
}

func engineerProfile() storage.TemplateProfile {
	return storage.TemplateProfile{
		ID:              "profile-1",
		Name:            "Engineer offer",
		Tone:            "formal",
		DesignationTags: `["software engineer"]`,
		Clauses:         `{"probation": "Probation of six months applies to the {designation} role."}`,
		UsageCount:      3,
		IsActive:        true,
	}
}

func TestGenerate_SelectsMergedProfileAndExactSalaryTotal(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile())
	store.defaults["company_name"] = "Acme Tech Pvt Ltd"
	store.benchmarks["software engineer"] = storage.SalaryBenchmark{
		Designation:  "software engineer",
		MinCTC:       600000,
		MaxCTC:       800000,
		AvgCTC:       700000,
		BasicPercent: 40,
		HRAPercent:   20,
		SampleCount:  3,
	}

	g := newTestGenerator(store)
	res, err := g.Generate(context.Background(), Request{
		CandidateName:   "Asha Verma",
		Designation:     "Software Engineer",
		ExperienceYears: 2,
		AnnualCTC:       750000,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Success {
		t.Error("success = false")
	}
	if res.ProfileID != "profile-1" {
		t.Errorf("profile = %q, want profile-1", res.ProfileID)
	}

	var sum float64
	for _, comp := range res.Letter.Salary.Components {
		sum += comp.Annual
	}
	if sum != 750000 {
		t.Errorf("annexure component total = %f, want exactly 750000", sum)
	}
	if res.Letter.Salary.TotalAnnual != 750000 {
		t.Errorf("TotalAnnual = %f, want 750000", res.Letter.Salary.TotalAnnual)
	}

	// Benchmark percentages drive the breakup.
	if res.Letter.Salary.Components[0].Annual != 300000 {
		t.Errorf("basic = %f, want 40%% of 750000", res.Letter.Salary.Components[0].Annual)
	}
}

func TestGenerate_EmptyCorpusReturnsErrNoTemplates(t *testing.T) {
	g := newTestGenerator(newMockStore())
	_, err := g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
		AnnualCTC:     750000,
	})
	if !errors.Is(err, ErrNoTemplates) {
		t.Errorf("err = %v, want ErrNoTemplates", err)
	}
}

func TestGenerate_ExplicitProfileOverridesSelector(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile(), storage.TemplateProfile{
		ID:       "profile-2",
		Name:     "Alternate layout",
		IsActive: true,
	})

	g := newTestGenerator(store)
	res, err := g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
		AnnualCTC:     750000,
		ProfileID:     "profile-2",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ProfileID != "profile-2" {
		t.Errorf("profile = %q, want explicit profile-2", res.ProfileID)
	}
	if res.TemplateConfidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0 for explicit profile", res.TemplateConfidence)
	}

	_, err = g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
		AnnualCTC:     750000,
		ProfileID:     "missing",
	})
	if err == nil {
		t.Error("expected error for unknown profile id")
	}
}

func TestGenerate_ResolvesCandidateFromResume(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile())
	store.resumes["resume-1"] = storage.ResumeExtraction{
		ID:              "resume-1",
		CandidateName:   "Nikhil Rao",
		Designation:     "Software Engineer",
		ExperienceYears: 4,
		ExpectedCTC:     900000,
		Location:        "Hyderabad",
	}

	g := newTestGenerator(store)
	res, err := g.Generate(context.Background(), Request{ResumeID: "resume-1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Letter.Greeting != "Dear Nikhil Rao," {
		t.Errorf("greeting = %q", res.Letter.Greeting)
	}
	if res.Letter.Salary.TotalAnnual != 900000 {
		t.Errorf("ctc = %f, want resume expected CTC", res.Letter.Salary.TotalAnnual)
	}

	// Inline fields win over the resume.
	res, err = g.Generate(context.Background(), Request{ResumeID: "resume-1", AnnualCTC: 1000000})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Letter.Salary.TotalAnnual != 1000000 {
		t.Errorf("ctc = %f, inline value must win", res.Letter.Salary.TotalAnnual)
	}
}

func TestGenerate_BenchmarkFillsMissingCTC(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile())
	store.benchmarks["software engineer"] = storage.SalaryBenchmark{
		Designation: "software engineer",
		AvgCTC:      700000,
		SampleCount: 3,
	}

	g := newTestGenerator(store)
	res, err := g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Letter.Salary.TotalAnnual != 700000 {
		t.Errorf("ctc = %f, want benchmark average", res.Letter.Salary.TotalAnnual)
	}
}

func TestGenerate_MissingCTCWithoutBenchmarkFails(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile())

	g := newTestGenerator(store)
	_, err := g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
	})
	if err == nil {
		t.Error("expected error when neither CTC nor benchmark exists")
	}
}

func TestGenerate_ValidatesCandidate(t *testing.T) {
	g := newTestGenerator(newMockStore())

	if _, err := g.Generate(context.Background(), Request{Designation: "Engineer", AnnualCTC: 1}); err == nil {
		t.Error("expected error for missing candidate name")
	}
	if _, err := g.Generate(context.Background(), Request{CandidateName: "Asha", AnnualCTC: 1}); err == nil {
		t.Error("expected error for missing designation")
	}
	if _, err := g.Generate(context.Background(), Request{CandidateName: "A", Designation: "B", AnnualCTC: 1, JoiningDate: "01-10-2026"}); err == nil {
		t.Error("expected error for malformed joining date")
	}
}

func TestGenerate_ClausesComeFromProfile(t *testing.T) {
	store := newMockStore()
	store.profiles = append(store.profiles, engineerProfile())

	g := newTestGenerator(store)
	res, err := g.Generate(context.Background(), Request{
		CandidateName: "Asha Verma",
		Designation:   "Software Engineer",
		AnnualCTC:     750000,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ClauseSources["probation"] != composer.SourceTemplate {
		t.Errorf("probation source = %q, want template", res.ClauseSources["probation"])
	}
	found := false
	for _, s := range res.Letter.Body {
		if s.Title == "Probation" && s.Content == "Probation of six months applies to the Software Engineer role." {
			found = true
		}
	}
	if !found {
		t.Errorf("probation clause not substituted into body: %+v", res.Letter.Body)
	}
}
