package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveDocument(d Document) error {
	now := time.Now().UTC()
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := d.Status
	if status == "" {
		status = StatusPending
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, raw_text, status, chunk_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.RawText, status, d.ChunkCount, d.Error,
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, title, raw_text, status, chunk_count, error, created_at, updated_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.RawText, &d.Status, &d.ChunkCount, &d.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

// UpdateDocumentStatus transitions a document's lifecycle status. The error
// message is stored verbatim; pass "" outside the failed state.
func (s *Store) UpdateDocumentStatus(id, status, errMsg string) error {
	res, err := s.db.Exec(`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateDocumentChunkCount(id string, count int) error {
	res, err := s.db.Exec(`UPDATE documents SET chunk_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListDocuments(limit, offset int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, raw_text, status, chunk_count, error, created_at, updated_at
		FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.RawText, &d.Status, &d.ChunkCount, &d.Error, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDocument removes a document and its chunk embeddings.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunk_embeddings WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// StuckDocumentIDs returns ids of documents that have sat in "processing"
// longer than olderThan without any pending or running ingestion job. These
// are casualties of a process restart mid-ingestion and need re-queueing.
func (s *Store) StuckDocumentIDs(olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	rows, err := s.db.Query(`
		SELECT d.id FROM documents d
		WHERE d.status = 'processing' AND d.updated_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.status IN ('pending', 'running')
			AND j.payload_json LIKE '%' || d.id || '%'
		)`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) SaveResumeExtraction(r ResumeExtraction) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO resume_extractions (id, candidate_name, designation, experience_years, expected_ctc, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CandidateName, r.Designation, r.ExperienceYears, r.ExpectedCTC, r.Location,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetResumeExtraction(id string) (ResumeExtraction, error) {
	var r ResumeExtraction
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, candidate_name, designation, experience_years, expected_ctc, location, created_at
		FROM resume_extractions WHERE id = ?`, id,
	).Scan(&r.ID, &r.CandidateName, &r.Designation, &r.ExperienceYears, &r.ExpectedCTC, &r.Location, &createdAt)
	if err == sql.ErrNoRows {
		return ResumeExtraction{}, ErrNotFound
	}
	if err != nil {
		return ResumeExtraction{}, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ResumeExtraction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}
