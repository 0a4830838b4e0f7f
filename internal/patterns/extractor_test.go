package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/recruitdesk/offergen/internal/llm"
	"github.com/recruitdesk/offergen/internal/storage"
)

type mockChatter struct {
	response string
	err      error
	calls    int
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error) {
	m.calls++
	return m.response, m.err
}

type mockPatternStore struct {
	patterns []storage.LearnedPattern
	defaults map[string]string
	saveErr  error
}

func newMockPatternStore() *mockPatternStore {
	return &mockPatternStore{defaults: make(map[string]string)}
}

func (m *mockPatternStore) SaveLearnedPattern(p storage.LearnedPattern) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.patterns = append(m.patterns, p)
	return nil
}

func (m *mockPatternStore) UpsertCompanyDefault(key, value, sourceDocument string) error {
	m.defaults[key] = value
	return nil
}

func testDoc() storage.Document {
	return storage.Document{ID: "doc-1", RawText: "We are pleased to offer you the role of Software Engineer."}
}

func TestExtract_SavesPatternAndDefaults(t *testing.T) {
	chatter := &mockChatter{response: `{
		"company_name": "Acme Tech Pvt Ltd",
		"hr_name": "Priya Sharma",
		"probation": "Probation period of six months from date of joining.",
		"designation": "Software Engineer",
		"ctc": 1200000,
		"benefits": ["Health insurance", "Provident fund"],
		"salary_breakdown": {"basic": 40, "hra": 20}
	}`}
	store := newMockPatternStore()
	bench := newMemBenchmarkStore()
	ext := NewExtractor(chatter, "test-model", store, NewAggregator(bench))

	ext.Extract(context.Background(), testDoc())

	if len(store.patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(store.patterns))
	}
	p := store.patterns[0]
	if p.CompanyName != "Acme Tech Pvt Ltd" {
		t.Errorf("company name = %q", p.CompanyName)
	}
	if p.CTC != 1200000 {
		t.Errorf("ctc = %f, want 1200000", p.CTC)
	}
	if p.Benefits != `["Health insurance","Provident fund"]` {
		t.Errorf("benefits = %q", p.Benefits)
	}

	if store.defaults["company_name"] != "Acme Tech Pvt Ltd" {
		t.Errorf("company_name default = %q", store.defaults["company_name"])
	}
	if store.defaults["hr_name"] != "Priya Sharma" {
		t.Errorf("hr_name default = %q", store.defaults["hr_name"])
	}
	if _, ok := store.defaults["hr_title"]; ok {
		t.Error("hr_title default should not be written when absent from the response")
	}

	b, err := bench.GetSalaryBenchmark("software engineer")
	if err != nil {
		t.Fatalf("benchmark not written: %v", err)
	}
	if b.SampleCount != 1 || b.AvgCTC != 1200000 {
		t.Errorf("benchmark = %+v", b)
	}
	if b.BasicPercent != 40 || b.HRAPercent != 20 {
		t.Errorf("percents = %f/%f, want 40/20", b.BasicPercent, b.HRAPercent)
	}
}

func TestExtract_ChatFailureIsNonFatal(t *testing.T) {
	chatter := &mockChatter{err: errors.New("connection refused")}
	store := newMockPatternStore()
	ext := NewExtractor(chatter, "test-model", store, NewAggregator(newMemBenchmarkStore()))

	ext.Extract(context.Background(), testDoc())

	if len(store.patterns) != 0 {
		t.Errorf("got %d patterns, want 0 after chat failure", len(store.patterns))
	}
	if len(store.defaults) != 0 {
		t.Errorf("got %d defaults, want 0 after chat failure", len(store.defaults))
	}
}

func TestExtract_MalformedResponseIsNonFatal(t *testing.T) {
	chatter := &mockChatter{response: "not json at all"}
	store := newMockPatternStore()
	ext := NewExtractor(chatter, "test-model", store, NewAggregator(newMemBenchmarkStore()))

	ext.Extract(context.Background(), testDoc())

	if len(store.patterns) != 0 {
		t.Errorf("got %d patterns, want 0 after malformed response", len(store.patterns))
	}
}

func TestExtract_CTCAsString(t *testing.T) {
	chatter := &mockChatter{response: `{"designation": "Analyst", "ctc": "6,00,000"}`}
	store := newMockPatternStore()
	bench := newMemBenchmarkStore()
	ext := NewExtractor(chatter, "test-model", store, NewAggregator(bench))

	ext.Extract(context.Background(), testDoc())

	if len(store.patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(store.patterns))
	}
	if store.patterns[0].CTC != 600000 {
		t.Errorf("ctc = %f, want 600000", store.patterns[0].CTC)
	}
	if _, err := bench.GetSalaryBenchmark("analyst"); err != nil {
		t.Errorf("benchmark not written for string ctc: %v", err)
	}
}

func TestExtract_NoBenchmarkWithoutDesignation(t *testing.T) {
	chatter := &mockChatter{response: `{"company_name": "Acme", "ctc": 500000}`}
	store := newMockPatternStore()
	bench := newMemBenchmarkStore()
	ext := NewExtractor(chatter, "test-model", store, NewAggregator(bench))

	ext.Extract(context.Background(), testDoc())

	if len(bench.rows) != 0 {
		t.Errorf("got %d benchmark rows, want 0 when designation missing", len(bench.rows))
	}
}
