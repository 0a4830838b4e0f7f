package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApply(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("versions = %v, want at least [1]", versions)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := openTestStore(t)

	doc := Document{ID: "doc-1", Title: "Offer sample", RawText: "text", Status: StatusPending}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Offer sample" || got.Status != StatusPending {
		t.Errorf("got %+v", got)
	}

	if err := s.UpdateDocumentStatus("doc-1", StatusProcessing, ""); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	if err := s.UpdateDocumentChunkCount("doc-1", 7); err != nil {
		t.Fatalf("UpdateDocumentChunkCount: %v", err)
	}
	if err := s.UpdateDocumentStatus("doc-1", StatusFailed, "llm unavailable"); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}

	got, err = s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "llm unavailable" || got.ChunkCount != 7 {
		t.Errorf("got %+v", got)
	}

	docs, err := s.ListDocuments(10, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("len(docs) = %d, want 1", len(docs))
	}

	if err := s.DeleteDocument("doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument("doc-1"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument("doc-1"); err != ErrNotFound {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestStuckDocumentIDs(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDocument(Document{ID: "stuck", RawText: "x", Status: StatusPending}); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if err := s.UpdateDocumentStatus("stuck", StatusProcessing, ""); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	if err := s.SaveDocument(Document{ID: "fresh", RawText: "y", Status: StatusProcessing}); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	// Backdate the stuck document past the threshold.
	old := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	if _, err := s.DB().Exec(`UPDATE documents SET updated_at = ? WHERE id = 'stuck'`, old); err != nil {
		t.Fatalf("backdating: %v", err)
	}
	if _, err := s.DB().Exec(`UPDATE documents SET status = 'processing', updated_at = ? WHERE id = 'fresh'`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("updating fresh: %v", err)
	}

	ids, err := s.StuckDocumentIDs(5 * time.Minute)
	if err != nil {
		t.Fatalf("StuckDocumentIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "stuck" {
		t.Errorf("ids = %v, want [stuck]", ids)
	}

	// A live job referencing the document suppresses recovery.
	if err := s.EnqueueJob(Job{ID: "j1", Type: "document_ingest", PayloadJSON: `{"document_id":"stuck"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	ids, err = s.StuckDocumentIDs(5 * time.Minute)
	if err != nil {
		t.Fatalf("StuckDocumentIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none while job pending", ids)
	}
}

func TestJobQueueLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "document_ingest", PayloadJSON: `{"document_id":"d1"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"document_ingest"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" || job.Status != "running" {
		t.Fatalf("job = %+v", job)
	}

	// Running jobs are not claimable again.
	again, err := s.ClaimNextJob([]string{"document_ingest"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("claimed running job %+v", again)
	}

	if err := s.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("querying status: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}

	if err := s.CompleteJob("missing"); err != ErrNotFound {
		t.Errorf("CompleteJob(missing) = %v, want ErrNotFound", err)
	}
}

func TestFailJobBacksOffThenExhausts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "document_ingest", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"document_ingest"})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob: job=%v err=%v", job, err)
	}

	// First failure returns the job to pending with a future run_after.
	if err := s.FailJob("j1", "embed timeout"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	var status, runAfter, lastError string
	var attempts int
	if err := s.DB().QueryRow(`SELECT status, run_after, last_error, attempts FROM jobs WHERE id = 'j1'`).
		Scan(&status, &runAfter, &lastError, &attempts); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "pending" || attempts != 1 || lastError != "embed timeout" {
		t.Errorf("status=%q attempts=%d lastError=%q", status, attempts, lastError)
	}
	due, err := time.Parse(time.RFC3339, runAfter)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !due.After(time.Now().UTC()) {
		t.Errorf("run_after = %v, want in the future", due)
	}

	// Not claimable while backing off.
	job, err = s.ClaimNextJob([]string{"document_ingest"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("claimed backing-off job %+v", job)
	}

	// Second failure hits the attempt limit.
	if err := s.FailJob("j1", "embed timeout again"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if err := s.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'j1'`).Scan(&status, &attempts); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "failed" || attempts != 2 {
		t.Errorf("status=%q attempts=%d, want failed/2", status, attempts)
	}
}

func TestCompanyDefaultLastWriteWins(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertCompanyDefault("hr_name", "Priya Sharma", "doc-1"); err != nil {
		t.Fatalf("UpsertCompanyDefault: %v", err)
	}
	if err := s.UpsertCompanyDefault("hr_name", "Rahul Mehta", "doc-2"); err != nil {
		t.Fatalf("UpsertCompanyDefault: %v", err)
	}

	d, err := s.GetCompanyDefault("hr_name")
	if err != nil {
		t.Fatalf("GetCompanyDefault: %v", err)
	}
	if d.Value != "Rahul Mehta" || d.SourceDocument != "doc-2" {
		t.Errorf("default = %+v", d)
	}

	all, err := s.AllCompanyDefaults()
	if err != nil {
		t.Fatalf("AllCompanyDefaults: %v", err)
	}
	if all["hr_name"] != "Rahul Mehta" {
		t.Errorf("all = %v", all)
	}

	if _, err := s.GetCompanyDefault("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSalaryBenchmarkUpsert(t *testing.T) {
	s := openTestStore(t)

	b := SalaryBenchmark{Designation: "software engineer", MinCTC: 600000, MaxCTC: 600000, AvgCTC: 600000, SampleCount: 1}
	if err := s.SaveSalaryBenchmark(b); err != nil {
		t.Fatalf("SaveSalaryBenchmark: %v", err)
	}

	b.MaxCTC = 800000
	b.AvgCTC = 700000
	b.SampleCount = 2
	if err := s.SaveSalaryBenchmark(b); err != nil {
		t.Fatalf("SaveSalaryBenchmark update: %v", err)
	}

	got, err := s.GetSalaryBenchmark("software engineer")
	if err != nil {
		t.Fatalf("GetSalaryBenchmark: %v", err)
	}
	if got.AvgCTC != 700000 || got.SampleCount != 2 {
		t.Errorf("got %+v", got)
	}

	list, err := s.ListSalaryBenchmarks()
	if err != nil {
		t.Fatalf("ListSalaryBenchmarks: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}
}

func TestTemplateProfilesOrderAndDefault(t *testing.T) {
	s := openTestStore(t)

	profiles := []TemplateProfile{
		{ID: "p1", Name: "Formal", UsageCount: 2, IsActive: true},
		{ID: "p2", Name: "Casual", UsageCount: 5, IsActive: true},
		{ID: "p3", Name: "Retired", UsageCount: 9, IsActive: false},
	}
	for _, p := range profiles {
		if err := s.SaveTemplateProfile(p); err != nil {
			t.Fatalf("SaveTemplateProfile(%s): %v", p.ID, err)
		}
	}

	active, err := s.ListActiveTemplateProfiles()
	if err != nil {
		t.Fatalf("ListActiveTemplateProfiles: %v", err)
	}
	if len(active) != 2 || active[0].ID != "p2" || active[1].ID != "p1" {
		t.Errorf("active = %+v, want [p2 p1] by usage", active)
	}

	if err := s.SetDefaultTemplateProfile("p1"); err != nil {
		t.Fatalf("SetDefaultTemplateProfile: %v", err)
	}
	if err := s.SetDefaultTemplateProfile("p2"); err != nil {
		t.Fatalf("SetDefaultTemplateProfile: %v", err)
	}

	p1, _ := s.GetTemplateProfile("p1")
	p2, _ := s.GetTemplateProfile("p2")
	if p1.IsDefault || !p2.IsDefault {
		t.Errorf("defaults: p1=%v p2=%v, want only p2", p1.IsDefault, p2.IsDefault)
	}

	p2.Name = "Casual v2"
	p2.UsageCount = 6
	if err := s.UpdateTemplateProfile(p2); err != nil {
		t.Fatalf("UpdateTemplateProfile: %v", err)
	}
	got, err := s.GetTemplateProfile("p2")
	if err != nil {
		t.Fatalf("GetTemplateProfile: %v", err)
	}
	if got.Name != "Casual v2" || got.UsageCount != 6 {
		t.Errorf("got %+v", got)
	}

	if _, err := s.GetTemplateProfile("nope"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLatestLearnedPattern(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	rows := []LearnedPattern{
		{ID: "lp1", DocumentID: "d1", Designation: "Software Engineer", CTC: 600000, CreatedAt: base},
		{ID: "lp2", DocumentID: "d2", Designation: "Data Analyst", CTC: 500000, CreatedAt: base.Add(time.Minute)},
		{ID: "lp3", DocumentID: "d3", Designation: "Senior Software Engineer", CTC: 900000, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range rows {
		if err := s.SaveLearnedPattern(p); err != nil {
			t.Fatalf("SaveLearnedPattern(%s): %v", p.ID, err)
		}
	}

	latest, err := s.LatestLearnedPattern("")
	if err != nil {
		t.Fatalf("LatestLearnedPattern: %v", err)
	}
	if latest.ID != "lp3" {
		t.Errorf("latest = %s, want lp3", latest.ID)
	}

	bySubstring, err := s.LatestLearnedPattern("software engineer")
	if err != nil {
		t.Fatalf("LatestLearnedPattern(designation): %v", err)
	}
	if bySubstring.ID != "lp3" {
		t.Errorf("bySubstring = %s, want lp3", bySubstring.ID)
	}

	if _, err := s.LatestLearnedPattern("cfo"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResumeExtractionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	r := ResumeExtraction{
		ID:              "r1",
		CandidateName:   "Asha Verma",
		Designation:     "Analyst",
		ExperienceYears: 2.5,
		ExpectedCTC:     750000,
		Location:        "Pune",
	}
	if err := s.SaveResumeExtraction(r); err != nil {
		t.Fatalf("SaveResumeExtraction: %v", err)
	}

	got, err := s.GetResumeExtraction("r1")
	if err != nil {
		t.Fatalf("GetResumeExtraction: %v", err)
	}
	if got.CandidateName != "Asha Verma" || got.ExperienceYears != 2.5 {
		t.Errorf("got %+v", got)
	}

	if _, err := s.GetResumeExtraction("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
