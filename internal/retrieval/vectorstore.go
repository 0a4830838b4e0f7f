package retrieval

import "time"

// VectorStore is the interface for chunk-embedding storage and similarity
// search. The only implementation scans SQLite rows with brute-force cosine
// similarity; the corpus is small and admin-curated, so no index structure
// is maintained.
type VectorStore interface {
	// Insert adds chunk records for a document.
	Insert(records []Record) error

	// Search scores every chunk belonging to a completed document against
	// the query vector and returns the topK highest-scoring records in
	// descending score order. Ties keep original chunk order.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDocument removes all chunk records of a document.
	DeleteByDocument(documentID string) error

	// Count returns the number of stored chunk records.
	Count() (int, error)
}

// Record represents one chunk-embedding row. ChunkIndex is the chunk's
// position within its owning document.
type Record struct {
	ID         string
	DocumentID string
	ChunkIndex int
	ChunkText  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float64
}
