package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveLearnedPattern(p LearnedPattern) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO learned_patterns (id, document_id, company_name, company_address, hr_name, hr_title,
			probation, notice_period, working_hours, leave_policy, benefits, breakdown, designation, ctc, clauses, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DocumentID, p.CompanyName, p.CompanyAddress, p.HRName, p.HRTitle,
		p.Probation, p.NoticePeriod, p.WorkingHours, p.LeavePolicy,
		jsonOrDefault(p.Benefits, "[]"), jsonOrDefault(p.Breakdown, "{}"),
		p.Designation, p.CTC, jsonOrDefault(p.Clauses, "[]"),
		createdAt.Format(time.RFC3339),
	)
	return err
}

// LatestLearnedPattern returns the most recently written pattern row,
// optionally filtered to a designation (case-insensitive substring match).
// Pattern rows are immutable, so "latest" is purely insertion order.
func (s *Store) LatestLearnedPattern(designation string) (LearnedPattern, error) {
	query := `
		SELECT id, document_id, company_name, company_address, hr_name, hr_title,
			probation, notice_period, working_hours, leave_policy, benefits, breakdown, designation, ctc, clauses, created_at
		FROM learned_patterns`
	args := []interface{}{}
	if designation != "" {
		query += ` WHERE LOWER(designation) LIKE '%' || LOWER(?) || '%'`
		args = append(args, designation)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	p, err := scanLearnedPattern(row)
	if err == sql.ErrNoRows {
		return LearnedPattern{}, ErrNotFound
	}
	return p, err
}

func (s *Store) ListLearnedPatterns(documentID string) ([]LearnedPattern, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, company_name, company_address, hr_name, hr_title,
			probation, notice_period, working_hours, leave_policy, benefits, breakdown, designation, ctc, clauses, created_at
		FROM learned_patterns WHERE document_id = ? ORDER BY created_at ASC`, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LearnedPattern
	for rows.Next() {
		p, err := scanLearnedPattern(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLearnedPattern(row rowScanner) (LearnedPattern, error) {
	var p LearnedPattern
	var createdAt string
	err := row.Scan(&p.ID, &p.DocumentID, &p.CompanyName, &p.CompanyAddress, &p.HRName, &p.HRTitle,
		&p.Probation, &p.NoticePeriod, &p.WorkingHours, &p.LeavePolicy, &p.Benefits, &p.Breakdown,
		&p.Designation, &p.CTC, &p.Clauses, &createdAt)
	if err != nil {
		return LearnedPattern{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return LearnedPattern{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return p, nil
}

// UpsertCompanyDefault records the latest-known value for a company fact.
// Last write wins, replacing both the value and the source document reference.
func (s *Store) UpsertCompanyDefault(key, value, sourceDocument string) error {
	_, err := s.db.Exec(`
		INSERT INTO company_defaults (key, value, source_document, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			source_document = excluded.source_document, updated_at = excluded.updated_at`,
		key, value, sourceDocument, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCompanyDefault(key string) (CompanyDefault, error) {
	var d CompanyDefault
	var updatedAt string
	err := s.db.QueryRow(`SELECT key, value, source_document, updated_at FROM company_defaults WHERE key = ?`, key).
		Scan(&d.Key, &d.Value, &d.SourceDocument, &updatedAt)
	if err == sql.ErrNoRows {
		return CompanyDefault{}, ErrNotFound
	}
	if err != nil {
		return CompanyDefault{}, err
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return CompanyDefault{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

func (s *Store) AllCompanyDefaults() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM company_defaults`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

func (s *Store) GetSalaryBenchmark(designation string) (SalaryBenchmark, error) {
	var b SalaryBenchmark
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT designation, min_ctc, max_ctc, avg_ctc, basic_percent, hra_percent, sample_count, source_docs, updated_at
		FROM salary_benchmarks WHERE designation = ?`, designation,
	).Scan(&b.Designation, &b.MinCTC, &b.MaxCTC, &b.AvgCTC, &b.BasicPercent, &b.HRAPercent,
		&b.SampleCount, &b.SourceDocs, &updatedAt)
	if err == sql.ErrNoRows {
		return SalaryBenchmark{}, ErrNotFound
	}
	if err != nil {
		return SalaryBenchmark{}, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return SalaryBenchmark{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return b, nil
}

func (s *Store) SaveSalaryBenchmark(b SalaryBenchmark) error {
	_, err := s.db.Exec(`
		INSERT INTO salary_benchmarks (designation, min_ctc, max_ctc, avg_ctc, basic_percent, hra_percent, sample_count, source_docs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(designation) DO UPDATE SET
			min_ctc = excluded.min_ctc, max_ctc = excluded.max_ctc, avg_ctc = excluded.avg_ctc,
			basic_percent = excluded.basic_percent, hra_percent = excluded.hra_percent,
			sample_count = excluded.sample_count, source_docs = excluded.source_docs,
			updated_at = excluded.updated_at`,
		b.Designation, b.MinCTC, b.MaxCTC, b.AvgCTC, b.BasicPercent, b.HRAPercent,
		b.SampleCount, jsonOrDefault(b.SourceDocs, "[]"), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListSalaryBenchmarks() ([]SalaryBenchmark, error) {
	rows, err := s.db.Query(`
		SELECT designation, min_ctc, max_ctc, avg_ctc, basic_percent, hra_percent, sample_count, source_docs, updated_at
		FROM salary_benchmarks ORDER BY designation ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SalaryBenchmark
	for rows.Next() {
		var b SalaryBenchmark
		var updatedAt string
		if err := rows.Scan(&b.Designation, &b.MinCTC, &b.MaxCTC, &b.AvgCTC, &b.BasicPercent, &b.HRAPercent,
			&b.SampleCount, &b.SourceDocs, &updatedAt); err != nil {
			return nil, err
		}
		if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

func jsonOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
