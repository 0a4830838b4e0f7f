package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveTemplateProfile(p TemplateProfile) error {
	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	usage := p.UsageCount
	if usage == 0 {
		usage = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO template_profiles (id, name, header_format, greeting_format, opening_format, closing_format,
			tone, section_order, clauses, has_salary_table, has_kra_section, has_annexures,
			designation_tags, experience_levels, length_class, sections, source_docs,
			usage_count, is_default, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.HeaderFormat, p.GreetingFormat, p.OpeningFormat, p.ClosingFormat,
		p.Tone, jsonOrDefault(p.SectionOrder, "[]"), jsonOrDefault(p.Clauses, "{}"),
		p.HasSalaryTable, p.HasKRASection, p.HasAnnexures,
		jsonOrDefault(p.DesignationTags, "[]"), jsonOrDefault(p.ExperienceLevels, "[]"),
		p.LengthClass, jsonOrDefault(p.Sections, "[]"), jsonOrDefault(p.SourceDocs, "[]"),
		usage, p.IsDefault, p.IsActive,
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

// UpdateTemplateProfile refreshes the merge-mutable fields of a profile:
// clause text, section snapshot, source list, usage count, and applicability tags.
func (s *Store) UpdateTemplateProfile(p TemplateProfile) error {
	res, err := s.db.Exec(`
		UPDATE template_profiles SET
			header_format = ?, greeting_format = ?, opening_format = ?, closing_format = ?,
			tone = ?, section_order = ?, clauses = ?, has_salary_table = ?, has_kra_section = ?, has_annexures = ?,
			designation_tags = ?, experience_levels = ?, length_class = ?, sections = ?, source_docs = ?,
			usage_count = ?, updated_at = ?
		WHERE id = ?`,
		p.HeaderFormat, p.GreetingFormat, p.OpeningFormat, p.ClosingFormat,
		p.Tone, jsonOrDefault(p.SectionOrder, "[]"), jsonOrDefault(p.Clauses, "{}"),
		p.HasSalaryTable, p.HasKRASection, p.HasAnnexures,
		jsonOrDefault(p.DesignationTags, "[]"), jsonOrDefault(p.ExperienceLevels, "[]"),
		p.LengthClass, jsonOrDefault(p.Sections, "[]"), jsonOrDefault(p.SourceDocs, "[]"),
		p.UsageCount, time.Now().UTC().Format(time.RFC3339), p.ID,
	)
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

func (s *Store) GetTemplateProfile(id string) (TemplateProfile, error) {
	row := s.db.QueryRow(templateProfileSelect+` WHERE id = ?`, id)
	p, err := scanTemplateProfile(row)
	if err == sql.ErrNoRows {
		return TemplateProfile{}, ErrNotFound
	}
	return p, err
}

// ListActiveTemplateProfiles returns all active profiles, most used first.
func (s *Store) ListActiveTemplateProfiles() ([]TemplateProfile, error) {
	rows, err := s.db.Query(templateProfileSelect + ` WHERE is_active = 1 ORDER BY usage_count DESC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TemplateProfile
	for rows.Next() {
		p, err := scanTemplateProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// SetDefaultTemplateProfile marks one profile as the global fallback,
// clearing the flag on every other profile.
func (s *Store) SetDefaultTemplateProfile(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning default transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE template_profiles SET is_default = 0 WHERE is_default = 1`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE template_profiles SET is_default = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
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

const templateProfileSelect = `
	SELECT id, name, header_format, greeting_format, opening_format, closing_format,
		tone, section_order, clauses, has_salary_table, has_kra_section, has_annexures,
		designation_tags, experience_levels, length_class, sections, source_docs,
		usage_count, is_default, is_active, created_at, updated_at
	FROM template_profiles`

func scanTemplateProfile(row rowScanner) (TemplateProfile, error) {
	var p TemplateProfile
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.HeaderFormat, &p.GreetingFormat, &p.OpeningFormat, &p.ClosingFormat,
		&p.Tone, &p.SectionOrder, &p.Clauses, &p.HasSalaryTable, &p.HasKRASection, &p.HasAnnexures,
		&p.DesignationTags, &p.ExperienceLevels, &p.LengthClass, &p.Sections, &p.SourceDocs,
		&p.UsageCount, &p.IsDefault, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return TemplateProfile{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return TemplateProfile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return TemplateProfile{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

func (s *Store) SaveTemplateMatch(m TemplateMatch) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO template_matches (id, document_id, profile_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.DocumentID, m.ProfileID, m.Confidence, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListTemplateMatches(profileID string) ([]TemplateMatch, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, profile_id, confidence, created_at
		FROM template_matches WHERE profile_id = ? ORDER BY created_at ASC`, profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TemplateMatch
	for rows.Next() {
		var m TemplateMatch
		var createdAt string
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.ProfileID, &m.Confidence, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
