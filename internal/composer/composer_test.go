package composer

import (
	"strings"
	"testing"
	"time"

	"github.com/recruitdesk/offergen/internal/storage"
)

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func testCandidate() Candidate {
	return Candidate{
		Name:        "Asha Verma",
		Designation: "Software Engineer",
		AnnualCTC:   1200000,
		JoiningDate: date(2026, 10, 1),
		Location:    "Pune",
	}
}

func TestBuildSalaryAnnexure_TotalEqualsCTC(t *testing.T) {
	for _, ctc := range []float64{1200000, 600000, 733333, 999999.99} {
		a := BuildSalaryAnnexure(ctc, 40, 20)
		var sum float64
		for _, comp := range a.Components {
			sum += comp.Annual
		}
		if sum != ctc {
			t.Errorf("component sum = %f, want exactly %f", sum, ctc)
		}
		if a.TotalAnnual != ctc {
			t.Errorf("TotalAnnual = %f, want %f", a.TotalAnnual, ctc)
		}
		if a.TotalMonthly != ctc/12 {
			t.Errorf("TotalMonthly = %f, want %f", a.TotalMonthly, ctc/12)
		}
	}
}

func TestBuildSalaryAnnexure_ComponentMath(t *testing.T) {
	a := BuildSalaryAnnexure(1200000, 40, 20)
	if len(a.Components) != 4 {
		t.Fatalf("got %d components, want 4", len(a.Components))
	}
	if a.Components[0].Annual != 480000 {
		t.Errorf("basic = %f, want 480000", a.Components[0].Annual)
	}
	if a.Components[1].Annual != 240000 {
		t.Errorf("hra = %f, want 240000", a.Components[1].Annual)
	}
	if a.Components[2].Annual != DefaultMedicalAllowance {
		t.Errorf("medical = %f, want %f", a.Components[2].Annual, DefaultMedicalAllowance)
	}
	if a.Components[0].Monthly != 40000 {
		t.Errorf("basic monthly = %f, want 40000", a.Components[0].Monthly)
	}
	if a.TotalInWords != "Twelve Lakh" {
		t.Errorf("words = %q, want %q", a.TotalInWords, "Twelve Lakh")
	}
}

func TestBuildSalaryAnnexure_DefaultPercents(t *testing.T) {
	a := BuildSalaryAnnexure(1000000, 0, 0)
	if a.Components[0].Annual != 400000 {
		t.Errorf("basic with default percent = %f, want 400000", a.Components[0].Annual)
	}
	if a.Components[1].Annual != 200000 {
		t.Errorf("hra with default percent = %f, want 200000", a.Components[1].Annual)
	}
}

func TestCompose_ClausePriority(t *testing.T) {
	profile := &storage.TemplateProfile{
		Clauses:      `{"probation": "Template probation for {designation}."}`,
		SectionOrder: `[]`,
	}
	pattern := &storage.LearnedPattern{
		Probation:    "Pattern probation text.",
		NoticePeriod: "Either party may terminate with 60 days notice.",
		Benefits:     `["Health insurance"]`,
	}

	c := New()
	letter, sources := c.Compose(profile, pattern, nil, 40, 20, testCandidate(), Options{IssueDate: date(2026, 9, 2)})

	bodyByTitle := make(map[string]string)
	for _, s := range letter.Body {
		bodyByTitle[s.Title] = s.Content
	}

	// Profile clause wins over the pattern's.
	if got := bodyByTitle["Probation"]; got != "Template probation for Software Engineer." {
		t.Errorf("probation = %q", got)
	}
	if sources["probation"] != SourceTemplate {
		t.Errorf("probation source = %q, want %q", sources["probation"], SourceTemplate)
	}

	// Pattern fills slots the profile is missing.
	if got := bodyByTitle["Notice Period"]; got != "Either party may terminate with 60 days notice." {
		t.Errorf("notice period = %q", got)
	}
	if sources["notice_period"] != SourcePattern {
		t.Errorf("notice source = %q, want %q", sources["notice_period"], SourcePattern)
	}
	if !strings.Contains(bodyByTitle["Benefits"], "Health insurance") {
		t.Errorf("benefits = %q", bodyByTitle["Benefits"])
	}

	// Slots with no source stay absent; the composer never invents text.
	if _, ok := bodyByTitle["Confidentiality"]; ok {
		t.Error("confidentiality should be absent with no source")
	}
}

func TestCompose_MalformedClauseJSONFallsBack(t *testing.T) {
	profile := &storage.TemplateProfile{
		Clauses: `{"probation": truncated`,
	}
	pattern := &storage.LearnedPattern{
		Probation: "Pattern probation text.",
	}

	c := New()
	letter, sources := c.Compose(profile, pattern, nil, 0, 0, testCandidate(), Options{})

	bodyByTitle := make(map[string]string)
	for _, s := range letter.Body {
		bodyByTitle[s.Title] = s.Content
	}
	if got := bodyByTitle["Probation"]; got != "Pattern probation text." {
		t.Errorf("probation = %q, want the pattern clause", got)
	}
	if sources["probation"] != SourcePattern {
		t.Errorf("probation source = %q, want %q", sources["probation"], SourcePattern)
	}
	if letter.Opening == "" || sources["opening"] != SourceGeneric {
		t.Errorf("opening = %q source %q, want generic fallback", letter.Opening, sources["opening"])
	}
}

func TestCompose_GenericFallbackOnlyForOpeningAndClosing(t *testing.T) {
	c := New()
	letter, sources := c.Compose(nil, nil, map[string]string{"company_name": "Acme"}, 0, 0, testCandidate(), Options{})

	if letter.Opening == "" {
		t.Error("opening must fall back to generic text")
	}
	if sources["opening"] != SourceGeneric {
		t.Errorf("opening source = %q, want %q", sources["opening"], SourceGeneric)
	}
	if letter.Closing == "" || sources["closing"] != SourceGeneric {
		t.Errorf("closing = %q source %q", letter.Closing, sources["closing"])
	}
	if len(letter.Body) != 0 {
		t.Errorf("body = %+v, want empty with no sources", letter.Body)
	}
	if !strings.Contains(letter.Opening, "Software Engineer") || !strings.Contains(letter.Opening, "Acme") {
		t.Errorf("opening placeholders not substituted: %q", letter.Opening)
	}
	if !strings.Contains(letter.Opening, "Twelve Lakh") {
		t.Errorf("opening missing ctc in words: %q", letter.Opening)
	}
}

func TestCompose_PlaceholderSubstitutionIsCaseInsensitive(t *testing.T) {
	profile := &storage.TemplateProfile{
		GreetingFormat: "Dear {CANDIDATE_NAME},",
		OpeningFormat:  "Welcome, {Candidate_Name}, to the {designation} role. {unknown_token} stays.",
	}
	c := New()
	letter, _ := c.Compose(profile, nil, nil, 0, 0, testCandidate(), Options{})

	if letter.Greeting != "Dear Asha Verma," {
		t.Errorf("greeting = %q", letter.Greeting)
	}
	if !strings.Contains(letter.Opening, "Welcome, Asha Verma, to the Software Engineer role.") {
		t.Errorf("opening = %q", letter.Opening)
	}
	if !strings.Contains(letter.Opening, "{unknown_token}") {
		t.Errorf("unknown placeholder must stay intact: %q", letter.Opening)
	}
}

func TestCompose_SignatureAndValidity(t *testing.T) {
	defaults := map[string]string{
		"company_name": "Acme Tech Pvt Ltd",
		"hr_name":      "Priya Sharma",
		"hr_title":     "HR Manager",
	}
	c := New()
	letter, _ := c.Compose(nil, nil, defaults, 0, 0, testCandidate(), Options{
		HRName:       "Rohit Mehta",
		ValidityDays: 7,
		IssueDate:    date(2026, 9, 2),
	})

	// The per-request HR name overrides the stored default.
	if letter.Signature.HRName != "Rohit Mehta" {
		t.Errorf("hr name = %q", letter.Signature.HRName)
	}
	if letter.Signature.HRTitle != "HR Manager" {
		t.Errorf("hr title = %q", letter.Signature.HRTitle)
	}
	if letter.Signature.CompanyName != "Acme Tech Pvt Ltd" {
		t.Errorf("company = %q", letter.Signature.CompanyName)
	}
	if letter.Date != "2nd Sep 2026" {
		t.Errorf("date = %q", letter.Date)
	}
	if letter.ValidUntil != "9th Sep 2026" {
		t.Errorf("valid until = %q", letter.ValidUntil)
	}
}

func TestCompose_KRAAnnexure(t *testing.T) {
	profile := &storage.TemplateProfile{
		HasKRASection: true,
		Sections:      `[{"title": "Key Responsibility Areas", "content": "- Ship features\n- Review code\n\n- Mentor juniors"}]`,
	}
	c := New()
	letter, _ := c.Compose(profile, nil, nil, 0, 0, testCandidate(), Options{})

	want := []string{"Ship features", "Review code", "Mentor juniors"}
	if len(letter.KRA) != len(want) {
		t.Fatalf("kra = %v, want %v", letter.KRA, want)
	}
	for i := range want {
		if letter.KRA[i] != want[i] {
			t.Errorf("kra[%d] = %q, want %q", i, letter.KRA[i], want[i])
		}
	}
}
