package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/recruitdesk/offergen/internal/storage"
)

// BenchmarkStore is the slice of storage the aggregator needs.
type BenchmarkStore interface {
	GetSalaryBenchmark(designation string) (storage.SalaryBenchmark, error)
	SaveSalaryBenchmark(b storage.SalaryBenchmark) error
}

// Aggregator maintains running per-designation CTC statistics.
type Aggregator struct {
	store BenchmarkStore
}

// NewAggregator creates an Aggregator backed by the given store.
func NewAggregator(store BenchmarkStore) *Aggregator {
	return &Aggregator{store: store}
}

// NormalizeDesignation lowercases and trims a designation so that
// "Software Engineer " and "software engineer" share one benchmark row.
func NormalizeDesignation(designation string) string {
	return strings.ToLower(strings.TrimSpace(designation))
}

// Update incorporates one observed CTC into the designation's benchmark.
// The mean is an exact running mean: re-deriving it from the full sample
// history equals the maintained average at every step. sample_count grows
// by exactly one per contribution.
func (a *Aggregator) Update(designation string, ctc float64, breakdown map[string]float64, documentID string) error {
	key := NormalizeDesignation(designation)
	if key == "" {
		return fmt.Errorf("empty designation")
	}
	if ctc <= 0 {
		return fmt.Errorf("non-positive ctc %f", ctc)
	}

	existing, err := a.store.GetSalaryBenchmark(key)
	if errors.Is(err, storage.ErrNotFound) {
		b := storage.SalaryBenchmark{
			Designation: key,
			MinCTC:      ctc,
			MaxCTC:      ctc,
			AvgCTC:      ctc,
			SampleCount: 1,
			SourceDocs:  marshalDocList(nil, documentID),
		}
		b.BasicPercent, b.HRAPercent = breakdownPercents(breakdown)
		return a.store.SaveSalaryBenchmark(b)
	}
	if err != nil {
		return fmt.Errorf("loading benchmark for %q: %w", key, err)
	}

	updated := existing
	if ctc < updated.MinCTC {
		updated.MinCTC = ctc
	}
	if ctc > updated.MaxCTC {
		updated.MaxCTC = ctc
	}
	updated.AvgCTC = (existing.AvgCTC*float64(existing.SampleCount) + ctc) / float64(existing.SampleCount+1)
	updated.SampleCount = existing.SampleCount + 1
	updated.SourceDocs = marshalDocList(parseDocList(existing.SourceDocs), documentID)

	// Percentages follow the newest observation when present.
	if basic, hra := breakdownPercents(breakdown); basic > 0 || hra > 0 {
		updated.BasicPercent, updated.HRAPercent = basic, hra
	}

	return a.store.SaveSalaryBenchmark(updated)
}

func breakdownPercents(breakdown map[string]float64) (basic, hra float64) {
	if breakdown == nil {
		return 0, 0
	}
	return breakdown["basic"], breakdown["hra"]
}

func parseDocList(raw string) []string {
	var docs []string
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil
	}
	return docs
}

func marshalDocList(docs []string, add string) string {
	if add != "" {
		docs = append(docs, add)
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
