package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document is one ingested reference document. RawText is the already-extracted
// plain text; extraction from PDF/HTML happens before the row is created.
type Document struct {
	ID         string
	Title      string
	RawText    string
	Status     string // "pending", "processing", "completed", "failed"
	ChunkCount int
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LearnedPattern holds the structured facts extracted from one document.
// Rows are immutable once written; re-processing a document appends a new row.
type LearnedPattern struct {
	ID             string
	DocumentID     string
	CompanyName    string
	CompanyAddress string
	HRName         string
	HRTitle        string
	Probation      string
	NoticePeriod   string
	WorkingHours   string
	LeavePolicy    string
	Benefits       string // JSON array stored as text
	Breakdown      string // JSON object of salary component percentages
	Designation    string
	CTC            float64
	Clauses        string // JSON array of free-text clauses
	CreatedAt      time.Time
}

// CompanyDefault is the latest-known value for a recurring company fact.
// One row per key, last successfully processed document wins.
type CompanyDefault struct {
	Key            string
	Value          string
	SourceDocument string
	UpdatedAt      time.Time
}

// SalaryBenchmark keeps running CTC statistics per normalized designation.
type SalaryBenchmark struct {
	Designation  string // normalized: lowercase, trimmed
	MinCTC       float64
	MaxCTC       float64
	AvgCTC       float64
	BasicPercent float64
	HRAPercent   float64
	SampleCount  int
	SourceDocs   string // JSON array of contributing document ids
	UpdatedAt    time.Time
}

// TemplateProfile is a reusable, structurally distinct offer-letter format.
type TemplateProfile struct {
	ID               string
	Name             string
	HeaderFormat     string
	GreetingFormat   string
	OpeningFormat    string
	ClosingFormat    string
	Tone             string
	SectionOrder     string // JSON array of section names
	Clauses          string // JSON map of clause slot -> verbatim text with placeholders
	HasSalaryTable   bool
	HasKRASection    bool
	HasAnnexures     bool
	DesignationTags  string // JSON array
	ExperienceLevels string // JSON array: fresher/junior/mid/senior/lead
	LengthClass      string // "short", "medium", "long"
	Sections         string // JSON array of {title, content} from the most recent merge
	SourceDocs       string // JSON array of contributing document ids
	UsageCount       int
	IsDefault        bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TemplateMatch links a document to the profile it was merged into,
// with the similarity score that justified the link.
type TemplateMatch struct {
	ID         string
	DocumentID string
	ProfileID  string
	Confidence float64
	CreatedAt  time.Time
}

// ResumeExtraction holds candidate facts previously extracted from a resume,
// referencable by generation requests instead of inline candidate fields.
type ResumeExtraction struct {
	ID              string
	CandidateName   string
	Designation     string
	ExperienceYears float64
	ExpectedCTC     float64
	Location        string
	CreatedAt       time.Time
}

// Job is one row in the durable ingestion queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
